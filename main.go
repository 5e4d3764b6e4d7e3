package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"tabguard.app/cloud/handlers"
	"tabguard.app/cloud/internal/config"
	"tabguard.app/cloud/internal/download"
	"tabguard.app/cloud/internal/email"
	"tabguard.app/cloud/internal/logger"
	"tabguard.app/cloud/internal/payment"
	"tabguard.app/cloud/storage"
)

func main() {
	if versionBytes, err := os.ReadFile("VERSION"); err == nil {
		handlers.Version = strings.TrimSpace(string(versionBytes))
	}

	godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %s", err)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		TracesSampleRate: 1.0,
	}); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx := context.Background()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("storage: %s", err)
	}

	signer, err := download.NewS3Signer(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Key)
	if err != nil {
		log.Fatalf("download signer: %s", err)
	}

	sender, err := newSender(ctx, cfg)
	if err != nil {
		log.Fatalf("email: %s", err)
	}

	payments := payment.NewClient(cfg.StripeSecretKey, cfg.StripePriceID, cfg.BaseURL)

	server := handlers.NewHTTPServer(handlers.Options{
		Storage:  store,
		Payments: payments,
		Checkout: payments,
		Signer:   signer,
		Email:    sender,
		Config:   cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("TabGuard Cloud API starting", map[string]interface{}{
			"version": handlers.Version,
			"port":    cfg.Port,
			"store":   cfg.Store,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := store.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("store close: %w", err))
	}
	if err := errs.ErrorOrNil(); err != nil {
		logger.Error("Shutdown finished with errors", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case config.StoreSQLite:
		return storage.NewSQLiteStore(cfg.SQLitePath)
	default:
		logger.Warn("Using in-memory store, records will not survive restarts")
		return storage.NewMemoryStore(), nil
	}
}

func newSender(ctx context.Context, cfg *config.Config) (email.Sender, error) {
	if cfg.EmailService == "ses" {
		return email.NewSESSender(ctx, cfg.AWSRegion, cfg.EmailFrom)
	}
	return &email.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	}, nil
}
