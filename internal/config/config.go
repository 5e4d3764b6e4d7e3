package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

type Config struct {
	Port    string
	BaseURL string

	Store         string // memory, redis or sqlite
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	ProductID           string

	AWSRegion string
	S3Bucket  string
	S3Key     string

	EmailService string // "smtp" or "ses"
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	SentryDSN string
}

// New reads the configuration from the environment. Missing required
// variables are reported together rather than one at a time.
func New() (*Config, error) {
	cfg := &Config{
		Port:                getenv("PORT", "8080"),
		BaseURL:             getenv("BASE_URL", "https://tabguard.app"),
		Store:               getenv("STORE", StoreMemory),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		SQLitePath:          getenv("SQLITE_PATH", "tabguard.db"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID"),
		ProductID:           getenv("PRODUCT_ID", "tabguard-pro"),
		AWSRegion:           getenv("AWS_REGION", "us-east-1"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3Key:               getenv("S3_KEY", "installers/TabGuardPro.zip"),
		EmailService:        getenv("EMAIL_SERVICE", "smtp"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            os.Getenv("SMTP_PORT"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFrom:           getenv("EMAIL_FROM", "licenses@tabguard.app"),
		SentryDSN:           os.Getenv("SENTRY_DSN"),
	}

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("REDIS_DB must be an integer")
		}
		cfg.RedisDB = db
	}

	var errs *multierror.Error
	if cfg.StripeSecretKey == "" {
		errs = multierror.Append(errs, errors.New("STRIPE_SECRET_KEY environment variable is required"))
	}
	if cfg.StripeWebhookSecret == "" {
		errs = multierror.Append(errs, errors.New("STRIPE_WEBHOOK_SECRET environment variable is required"))
	}
	if cfg.StripePriceID == "" {
		errs = multierror.Append(errs, errors.New("STRIPE_PRICE_ID environment variable is required"))
	}
	if cfg.S3Bucket == "" {
		errs = multierror.Append(errs, errors.New("S3_BUCKET environment variable is required"))
	}

	switch cfg.Store {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		errs = multierror.Append(errs, errors.New("STORE must be one of memory, redis, sqlite"))
	}

	if cfg.EmailService == "smtp" {
		if cfg.SMTPHost == "" || cfg.SMTPPort == "" || cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
			errs = multierror.Append(errs, errors.New("SMTP_HOST, SMTP_PORT, SMTP_USERNAME, and SMTP_PASSWORD environment variables are required when using SMTP"))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
