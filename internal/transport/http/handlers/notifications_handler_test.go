package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/jobs/sender"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
	audiencesvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/audience"
	broadcastsvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/broadcasts"
	historysvc "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/services/history"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/dto"
)

type jobStoreStub struct {
	mu         sync.Mutex
	jobs       map[int64]model.BroadcastJob
	recipients []model.BroadcastRecipient
	listErr    error
	nextID     int64
}

func newJobStoreStub(jobs ...model.BroadcastJob) *jobStoreStub {
	store := &jobStoreStub{jobs: map[int64]model.BroadcastJob{}, nextID: 100}
	for _, job := range jobs {
		store.jobs[job.ID] = job
	}
	return store
}

func (s *jobStoreStub) ListRecent(_ context.Context, limit int) ([]model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]model.BroadcastJob, 0, len(s.jobs))
	for id := s.nextID; id > 0 && len(out) < limit; id-- {
		if job, ok := s.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *jobStoreStub) CreateWithRecipients(_ context.Context, job model.BroadcastJob, recipients []model.BroadcastRecipient) (model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job.ID = s.nextID
	job.Total = len(recipients)
	job.Status = enums.JobStatusQueued
	job.HasImage = job.ImageKey != ""
	job.HasButtons = len(job.CustomButtons) > 0
	s.jobs[job.ID] = job
	s.recipients = append(s.recipients, recipients...)
	return job, nil
}

func (s *jobStoreStub) GetByID(_ context.Context, id int64) (model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.BroadcastJob{}, pgrepo.ErrNotFound
	}
	return job, nil
}

func (s *jobStoreStub) TransitionStatus(_ context.Context, id int64, from []enums.JobStatus, next enums.JobStatus) (model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.BroadcastJob{}, pgrepo.ErrNotFound
	}
	for _, status := range from {
		if job.Status == status {
			job.Status = next
			s.jobs[id] = job
			return job, nil
		}
	}
	return model.BroadcastJob{}, pgrepo.ErrStatusConflict
}

func (s *jobStoreStub) Delete(_ context.Context, id int64, _ []enums.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return pgrepo.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *jobStoreStub) ListFailedRecipients(context.Context, int64, int) ([]model.BroadcastRecipient, error) {
	return []model.BroadcastRecipient{{ID: 5, TelegramID: 202, UserName: "Boris", Error: "Forbidden: bot was blocked by the user"}}, nil
}

func (s *jobStoreStub) RecipientStats(context.Context, int64) (model.RecipientStats, error) {
	return model.RecipientStats{Total: 2, Sent: 1, Failed: 1}, nil
}

func (s *jobStoreStub) CancelOlderThan(context.Context, time.Time) (int64, error) { return 3, nil }

func (s *jobStoreStub) DeleteFinishedOlderThan(context.Context, time.Time) (int64, []string, error) {
	return 0, nil, nil
}

func (s *jobStoreStub) PauseRunning(context.Context) (int64, error) { return 1, nil }

type imageStorageStub struct {
	keys []string
	body []byte
}

func (s *imageStorageStub) EnsureBucket(context.Context) error { return nil }

func (s *imageStorageStub) PutImage(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.keys = append(s.keys, key)
	s.body = data
	return nil
}

func (s *imageStorageStub) Delete(context.Context, string) error { return nil }

type processorStub struct {
	result sender.Result
	err    error
}

func (p processorStub) RunOnce(context.Context) (sender.Result, error) {
	return p.result, p.err
}

func newNotificationsHandler(store *jobStoreStub, roster audiencesvc.RosterProvider, images broadcastsvc.ImageStorage) *NotificationsHandler {
	audience := audiencesvc.NewService(roster)
	return NewNotificationsHandler(
		historysvc.NewService(store, historysvc.Config{}),
		audience,
		broadcastsvc.NewService(store, audience, images, broadcastsvc.Config{}),
		1<<20,
		nil,
	)
}

func TestNotificationsHistoryReturnsRows(t *testing.T) {
	store := newJobStoreStub(
		model.BroadcastJob{ID: 1, Title: "first", Status: enums.JobStatusDone},
		model.BroadcastJob{ID: 2, Title: "second", Status: enums.JobStatusQueued, CustomButtons: []model.BroadcastButton{{Text: "Go", URL: "https://example.com"}}},
	)
	handler := newNotificationsHandler(store, annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications/history", nil)
	rr := httptest.NewRecorder()
	handler.History(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody[dto.HistoryResponse](t, rr)
	if !body.Success || len(body.Rows) != 2 {
		t.Fatalf("unexpected history payload: %+v", body)
	}
	if body.Rows[0].ID != 2 || body.Rows[1].ID != 1 {
		t.Fatalf("rows must be newest first: %+v", body.Rows)
	}
	if len(body.Rows[0].CustomButtons) != 1 {
		t.Fatalf("unexpected custom buttons: %+v", body.Rows[0].CustomButtons)
	}
}

func TestNotificationsHistoryEmptyTableIsSuccess(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications/history", nil)
	rr := httptest.NewRecorder()
	handler.History(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"rows":[]`) {
		t.Fatalf("empty history must encode an empty array: %s", rr.Body.String())
	}
}

func TestNotificationsHistoryFailure(t *testing.T) {
	store := newJobStoreStub()
	store.listErr = errors.New("connection refused")
	handler := newNotificationsHandler(store, annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications/history", nil)
	rr := httptest.NewRecorder()
	handler.History(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusInternalServerError)
	}
	body := decodeBody[dto.FailureResponse](t, rr)
	if body.Success || body.Error != "history_error" {
		t.Fatalf("unexpected failure payload: %+v", body)
	}
}

func TestNotificationsAudienceSelectsActivePremiumUsers(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications/audience",
		strings.NewReader(`{"segment":"premium","activeWithinDays":7}`))
	rr := httptest.NewRecorder()
	handler.Audience(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody[dto.AudienceResponse](t, rr)
	if body.Total != 1 || body.Users[0].Name != "Anna" || body.Users[0].TelegramID != "101" {
		t.Fatalf("unexpected audience: %+v", body)
	}
	if body.Skipped != 1 {
		t.Fatalf("unexpected skipped count: got %d want 1", body.Skipped)
	}
}

func TestNotificationsAudienceSourceFailure(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), &rosterStub{err: errors.New("file locked")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications/audience", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	handler.Audience(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestNotificationsCreateFromJSON(t *testing.T) {
	store := newJobStoreStub()
	handler := newNotificationsHandler(store, annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications", strings.NewReader(`{
		"title": "Eclipse",
		"text": "Tonight",
		"segment": "all",
		"buttonText": "Read",
		"buttonUrl": "example.com/eclipse"
	}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	body := decodeBody[dto.CreateBroadcastResponse](t, rr)
	if !body.Success || body.JobID != 101 || body.Total != 2 {
		t.Fatalf("unexpected create payload: %+v", body)
	}

	job := store.jobs[101]
	if len(job.CustomButtons) != 1 || job.CustomButtons[0].URL != "https://example.com/eclipse" {
		t.Fatalf("legacy button must be normalized: %+v", job.CustomButtons)
	}
}

func TestNotificationsCreateWithoutAudience(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), &rosterStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications", strings.NewReader(`{"title":"t","text":"x"}`))
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	body := decodeBody[dto.FailureResponse](t, rr)
	if body.Error != "no_recipients" {
		t.Fatalf("unexpected error code: %s", body.Error)
	}
}

func TestNotificationsCreateRejectsMissingTitle(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications", strings.NewReader(`{"text":"x"}`))
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestNotificationsCreateFromMultipartWithImage(t *testing.T) {
	store := newJobStoreStub()
	images := &imageStorageStub{}
	handler := newNotificationsHandler(store, annaAndBoris(), images)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("title", "Full moon")
	_ = writer.WriteField("text", "Look up")
	_ = writer.WriteField("segment", "premium")
	_ = writer.WriteField("parseMode", "HTML")
	_ = writer.WriteField("customButtons", `[{"text":"Open","url":"https://example.com"}]`)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="image"; filename="moon.png"`)
	partHeader.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("create image part: %v", err)
	}
	_, _ = part.Write([]byte("png-bytes"))
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	body := decodeBody[dto.CreateBroadcastResponse](t, rr)
	if body.Total != 1 {
		t.Fatalf("unexpected total: got %d want 1", body.Total)
	}
	if len(images.keys) != 1 || !strings.HasSuffix(images.keys[0], ".png") {
		t.Fatalf("unexpected uploaded keys: %v", images.keys)
	}
	if string(images.body) != "png-bytes" {
		t.Fatalf("unexpected uploaded body: %q", images.body)
	}
	job := store.jobs[body.JobID]
	if !job.HasImage || job.Payload.ParseMode != "HTML" || len(job.CustomButtons) != 1 {
		t.Fatalf("unexpected stored job: %+v", job)
	}
}

func TestNotificationsApplyRejectsInvalidTransition(t *testing.T) {
	store := newJobStoreStub(model.BroadcastJob{ID: 7, Status: enums.JobStatusQueued})
	handler := newNotificationsHandler(store, annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPut, "/admin/notifications/7", strings.NewReader(`{"action":"pause"}`))
	req = req.WithContext(withURLParam(req.Context(), "id", "7"))
	rr := httptest.NewRecorder()
	handler.Apply(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	body := decodeBody[dto.FailureResponse](t, rr)
	if body.Error != "cannot_pause_job" {
		t.Fatalf("unexpected error code: %s", body.Error)
	}
}

func TestNotificationsApplyCancel(t *testing.T) {
	store := newJobStoreStub(model.BroadcastJob{ID: 7, Status: enums.JobStatusRunning})
	handler := newNotificationsHandler(store, annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPut, "/admin/notifications/7", strings.NewReader(`{"action":"cancel"}`))
	req = req.WithContext(withURLParam(req.Context(), "id", "7"))
	rr := httptest.NewRecorder()
	handler.Apply(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody[dto.JobActionResponse](t, rr)
	if body.NewStatus != string(enums.JobStatusCancelled) {
		t.Fatalf("unexpected new status: %s", body.NewStatus)
	}
}

func TestNotificationsApplyValidatesInput(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPut, "/admin/notifications/abc", strings.NewReader(`{"action":"cancel"}`))
	req = req.WithContext(withURLParam(req.Context(), "id", "abc"))
	rr := httptest.NewRecorder()
	handler.Apply(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for bad id: got %d want %d", rr.Code, http.StatusBadRequest)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/notifications/7", strings.NewReader(`{"action":"explode"}`))
	req = req.WithContext(withURLParam(req.Context(), "id", "7"))
	rr = httptest.NewRecorder()
	handler.Apply(rr, req)
	body := decodeBody[dto.FailureResponse](t, rr)
	if rr.Code != http.StatusBadRequest || body.Error != "invalid_action" {
		t.Fatalf("unexpected response for bad action: %d %+v", rr.Code, body)
	}
}

func TestNotificationsDeleteMissingJob(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodDelete, "/admin/notifications/9", nil)
	req = req.WithContext(withURLParam(req.Context(), "id", "9"))
	rr := httptest.NewRecorder()
	handler.Delete(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestNotificationsErrorsReport(t *testing.T) {
	store := newJobStoreStub(model.BroadcastJob{ID: 4, Title: "report", Status: enums.JobStatusDone})
	handler := newNotificationsHandler(store, annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications/4/errors", nil)
	req = req.WithContext(withURLParam(req.Context(), "id", "4"))
	rr := httptest.NewRecorder()
	handler.Errors(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody[dto.JobErrorsResponse](t, rr)
	if body.Job.ID != 4 || len(body.Errors) != 1 || body.Stats.Failed != 1 {
		t.Fatalf("unexpected report: %+v", body)
	}
}

func TestNotificationsBulk(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications/bulk", strings.NewReader(`{"action":"cancel_old","days":3}`))
	rr := httptest.NewRecorder()
	handler.Bulk(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody[dto.BulkResponse](t, rr)
	if body.AffectedRows != 3 {
		t.Fatalf("unexpected affected rows: %d", body.AffectedRows)
	}
}

func TestNotificationsProcess(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/notifications/process", nil)
	rr := httptest.NewRecorder()
	handler.Process(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status without sender: got %d want %d", rr.Code, http.StatusServiceUnavailable)
	}

	handler.AttachProcessor(processorStub{result: sender.Result{JobID: 3, Sent: 4, Failed: 1, Finished: true}})
	rr = httptest.NewRecorder()
	handler.Process(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody[dto.ProcessResponse](t, rr)
	if body.Message != "done" || body.Processed != 5 || body.Errors != 1 {
		t.Fatalf("unexpected process payload: %+v", body)
	}
}

func TestNotificationsEventsStreamsUntilFinished(t *testing.T) {
	store := newJobStoreStub(model.BroadcastJob{ID: 8, Status: enums.JobStatusDone, Total: 2, Sent: 2})
	handler := newNotificationsHandler(store, annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications/8/events", nil)
	req = req.WithContext(withURLParam(req.Context(), "id", "8"))
	rr := httptest.NewRecorder()
	handler.Events(rr, req)

	if got := rr.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", got)
	}
	stream := rr.Body.String()
	if !strings.Contains(stream, "event: progress\n") || !strings.Contains(stream, `"status":"done"`) {
		t.Fatalf("unexpected event stream: %q", stream)
	}
}

func TestNotificationsEventsReportsMissingJob(t *testing.T) {
	handler := newNotificationsHandler(newJobStoreStub(), annaAndBoris(), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications/99/events", nil)
	req = req.WithContext(withURLParam(req.Context(), "id", "99"))
	rr := httptest.NewRecorder()
	handler.Events(rr, req)

	if !strings.Contains(rr.Body.String(), "event: error\n") || !strings.Contains(rr.Body.String(), "job_not_found") {
		t.Fatalf("unexpected event stream: %q", rr.Body.String())
	}
}
