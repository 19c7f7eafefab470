package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/matthewbaird/dirconsole/internal/config"
	"github.com/matthewbaird/dirconsole/internal/database"
	"github.com/matthewbaird/dirconsole/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("loading configuration")
	}
	log := config.NewLogger(cfg)

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("opening database")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("running schema migration")
	}
	log.Info("database migrated successfully")

	srv, err := server.New(ctx, cfg, db, log)
	if err != nil {
		log.WithError(err).Fatal("building server")
	}
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server error")
		os.Exit(1)
	}
}
