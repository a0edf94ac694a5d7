package apiapp

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/config"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/jobs/sender"
	audiencesvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/audience"
	broadcastsvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/broadcasts"
	historysvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/history"
	planssvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/plans"
	httperrors "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/errors"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/handlers"
)

type Dependencies struct {
	HistoryService   *historysvc.Service
	PlanService      *planssvc.Service
	AudienceService  *audiencesvc.Service
	BroadcastService *broadcastsvc.Service
	Processor        *sender.Job
	Logger           *zap.Logger
	Config           config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	notificationsHandler := handlers.NewNotificationsHandler(
		deps.HistoryService,
		deps.AudienceService,
		deps.BroadcastService,
		deps.Config.HTTP.MaxUploadBytes,
		deps.Logger,
	)
	if deps.Processor != nil {
		notificationsHandler.AttachProcessor(deps.Processor)
	}
	subscriptionsHandler := handlers.NewSubscriptionsHandler(deps.PlanService, deps.Logger)
	botUsersHandler := handlers.NewBotUsersHandler(deps.AudienceService, deps.Logger)

	r.NotFound(httperrors.NotFound)
	r.MethodNotAllowed(httperrors.MethodNotAllowed)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/admin", func(r chi.Router) {
		// Progress streams stay open for the whole send, so they skip the timeout.
		r.Get("/notifications/{id}/events", notificationsHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/history", notificationsHandler.History)
				r.Post("/audience", notificationsHandler.Audience)
				r.Post("/bulk", notificationsHandler.Bulk)
				r.Post("/process", notificationsHandler.Process)
				r.Post("/", notificationsHandler.Create)
				r.Put("/{id}", notificationsHandler.Apply)
				r.Delete("/{id}", notificationsHandler.Delete)
				r.Get("/{id}/errors", notificationsHandler.Errors)
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", subscriptionsHandler.List)
				r.Post("/", subscriptionsHandler.Create)
				r.Put("/{id}", subscriptionsHandler.Update)
				r.Delete("/{id}", subscriptionsHandler.Delete)
				r.Patch("/{id}/toggle-active", subscriptionsHandler.ToggleActive)
				r.Patch("/{id}/toggle-popular", subscriptionsHandler.TogglePopular)
			})

			r.Route("/bot-users", func(r chi.Router) {
				r.Get("/", botUsersHandler.List)
				r.Delete("/{id}", botUsersHandler.Delete)
			})
		})
	})
}
