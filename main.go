package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dispatch_portal/pkg/api"
	"dispatch_portal/pkg/blobsas"
	"dispatch_portal/pkg/config"
	"dispatch_portal/pkg/dynamics"
	"dispatch_portal/pkg/flow"
	"dispatch_portal/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "config", cfg.String())

	deps := api.Deps{
		Logger:              logger,
		Metrics:             metrics.New(),
		AttachmentContainer: cfg.Storage.AttachmentContainer,
	}

	// A section that fails validation still gets its routes; they answer
	// with a configuration error instead of the process refusing to start.
	if err := cfg.Dataverse.Validate(); err != nil {
		logger.Error("dataverse disabled", "error", err)
		deps.DirectoryErr = err
	} else if cred, err := dynamics.NewCredential(cfg.Dataverse); err != nil {
		logger.Error("dataverse credential", "error", err)
		deps.DirectoryErr = err
	} else {
		deps.Directory = dynamics.NewD365Client(cfg.Dataverse, cred)
	}

	if cfg.Storage.Enabled() {
		issuer := blobsas.NewIssuer(cfg.Storage.ConnectionString, cfg.Storage.SignedURLTTL, logger)
		if err := issuer.Ready(); err != nil {
			// Records are still served, just without links.
			logger.Warn("attachment links disabled", "error", err)
		}
		deps.Signer = issuer
	} else {
		logger.Info("attachment links disabled", "reason", "AZURE_STORAGE_CONNECTION_STRING is not set")
	}

	if err := cfg.Flow.Validate(); err != nil {
		logger.Error("completion workflow disabled", "error", err)
		deps.NotifierErr = err
	} else {
		deps.Notifier = flow.NewClient(cfg.Flow)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(api.NewHandler(deps)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
