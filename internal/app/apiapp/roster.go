package apiapp

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/config"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/dualrepo"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/jsonfile"
	pgrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/postgres"
	redrepo "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/redis"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/repo/sqlite"
)

// rosterSource is the provider chosen by roster.source, optionally behind the
// Redis snapshot cache. closeFn releases whatever the provider opened.
type rosterSource struct {
	provider redrepo.RosterSource
	closeFn  func() error
}

func newRosterSource(cfg config.RosterConfig, pool *pgxpool.Pool, client *goredis.Client, log *zap.Logger) (rosterSource, error) {
	var (
		provider redrepo.RosterSource
		db       *sql.DB
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case config.RosterSourcePostgres, "":
		provider = pgrepo.NewBotUserRepo(pool)
	case config.RosterSourceSQLite:
		opened, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return rosterSource{}, fmt.Errorf("open sqlite roster: %w", err)
		}
		db = opened
		provider = sqlite.NewBotUserRepo(db)
	case config.RosterSourceFile:
		provider = jsonfile.NewBotUserRepo(cfg.FilePath)
	case config.RosterSourceDual:
		provider = dualrepo.NewRosterRepo(pgrepo.NewBotUserRepo(pool), jsonfile.NewBotUserRepo(cfg.FilePath), dualrepo.ModeDual)
	default:
		return rosterSource{}, fmt.Errorf("unknown roster source %q", cfg.Source)
	}

	log.Info("roster source selected", zap.String("source", cfg.Source), zap.Duration("cache_ttl", cfg.CacheTTL))

	if client != nil && cfg.CacheTTL > 0 {
		provider = redrepo.NewRosterCacheRepo(client, provider, cfg.CacheTTL, log.Named("roster_cache"))
	}

	out := rosterSource{provider: provider, closeFn: func() error { return nil }}
	if db != nil {
		out.closeFn = db.Close
	}
	return out, nil
}
