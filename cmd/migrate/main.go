package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/config"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/infra/logger"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/migrations"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to APP_CONFIG)")
	dsnFlag := flag.String("dsn", "", "postgres connection string (defaults to postgres.dsn)")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		panic(err)
	}
	dsn := cfg.Postgres.DSN
	if *dsnFlag != "" {
		dsn = *dsnFlag
	}

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "usage: migrate [-config path] [-dsn url] [%s]\n", strings.Join(migrations.Commands, "|"))
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Command(db, command); err != nil {
		log.Fatal("migrate failed", zap.String("command", command), zap.Error(err))
	}
	log.Info("migrate finished", zap.String("command", command))
}
