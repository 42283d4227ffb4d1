package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/pillbox/internal/config"
	"github.com/dukerupert/pillbox/internal/database"
	"github.com/dukerupert/pillbox/internal/email"
	"github.com/dukerupert/pillbox/internal/logging"
	"github.com/dukerupert/pillbox/internal/reminder"
	"github.com/dukerupert/pillbox/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var notifier reminder.Notifier
	if cfg.PostmarkToken != "" {
		notifier = email.NewClient(cfg.PostmarkToken, cfg.FromEmail)
		logger.Info("email delivery via postmark", "from", cfg.FromEmail)
	} else {
		notifier = email.NewLogSender(logger.With("component", "email"))
		logger.Warn("PILLBOX_POSTMARK_TOKEN not set; reminders will only be logged")
	}

	srv := server.New(db, notifier, reminder.Config{
		Location:          cfg.Location,
		LowStockThreshold: cfg.LowStockThreshold,
		SendTimeout:       cfg.SendTimeout,
		Workers:           cfg.TickWorkers,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Scheduler().Start(ctx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("pillbox running", "url", cfg.BaseURL, "timezone", cfg.Location.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	srv.Scheduler().Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
