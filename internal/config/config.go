package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	ServerAddr  string
	LogLevel    slog.Level
	NodeID      int64

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	AMQPURL             string
	FirebaseCredentials string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	Currency            string

	BlockedWords      []string
	CampaignCloseCron string
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, is loaded first without overriding real variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	cfg := &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            envOrDefault("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		ServerAddr:          envOrDefault("SERVER_ADDR", ":8080"),
		LogLevel:            parseLogLevel(os.Getenv("LOG_LEVEL")),
		NodeID:              parseInt(os.Getenv("NODE_ID"), 1),
		MinIOEndpoint:       os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:      os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:      os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:         envOrDefault("MINIO_BUCKET", "sermons"),
		MinIOUseSSL:         os.Getenv("MINIO_USE_SSL") == "true",
		AMQPURL:             os.Getenv("AMQP_URL"),
		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS_PATH"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  envOrDefault("CHECKOUT_SUCCESS_URL", "http://localhost:3000/give/thanks"),
		CheckoutCancelURL:   envOrDefault("CHECKOUT_CANCEL_URL", "http://localhost:3000/give"),
		Currency:            strings.ToLower(envOrDefault("CURRENCY", "usd")),
		BlockedWords:        splitList(os.Getenv("CHAT_BLOCKED_WORDS")),
		CampaignCloseCron:   envOrDefault("CAMPAIGN_CLOSE_CRON", "*/5 * * * *"),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		panic(fmt.Sprintf("required environment variables not set: %s", strings.Join(missing, ", ")))
	}

	return cfg
}

// PaymentsEnabled reports whether checkout and webhooks can be served.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseInt(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
