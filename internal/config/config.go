package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration snapshot. It is loaded once at
// startup; in particular CommissionBPS is captured here and injected into the
// commission calculator per call, never re-read mid-calculation.
type Config struct {
	HTTPAddr string

	PostgresDSN string

	// CommissionBPS is the platform fee in basis points (200 = 2%).
	CommissionBPS int64
	Currency      string

	ProcessorBaseURL string
	ProcessorAPIKey  string
	ProcessorTimeout time.Duration
	WebhookSecret    string

	SettleHold     time.Duration
	SettleInterval time.Duration
	ReconInterval  time.Duration
	ReconLag       time.Duration

	KafkaBrokerURL   string
	PayoutTopic      string
	OutboxPollEvery  time.Duration
	OutboxPollLimit  int
	OutboxPollBudget time.Duration
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:    getEnvOrDefault("PALENGKE_HTTP_ADDR", ":8080"),
		PostgresDSN: getEnvOrDefault("PALENGKE_PG_DSN", ""),

		CommissionBPS: getEnvAsInt64("PALENGKE_COMMISSION_BPS", 200),
		Currency:      strings.ToUpper(getEnvOrDefault("PALENGKE_CURRENCY", "PHP")),

		ProcessorBaseURL: getEnvOrDefault("PALENGKE_PROCESSOR_URL", "http://localhost:9200"),
		ProcessorAPIKey:  getEnvOrDefault("PALENGKE_PROCESSOR_API_KEY", ""),
		ProcessorTimeout: getEnvAsDuration("PALENGKE_PROCESSOR_TIMEOUT", 10*time.Second),
		WebhookSecret:    getEnvOrDefault("PALENGKE_WEBHOOK_SECRET", ""),

		SettleHold:     getEnvAsDuration("PALENGKE_SETTLE_HOLD", 168*time.Hour),
		SettleInterval: getEnvAsDuration("PALENGKE_SETTLE_INTERVAL", time.Hour),
		ReconInterval:  getEnvAsDuration("PALENGKE_RECON_INTERVAL", 24*time.Hour),
		ReconLag:       getEnvAsDuration("PALENGKE_RECON_LAG", 24*time.Hour),

		KafkaBrokerURL:   getEnvOrDefault("PALENGKE_KAFKA_BROKERS", "localhost:9092"),
		PayoutTopic:      getEnvOrDefault("PALENGKE_PAYOUT_TOPIC", "seller_payout_requests"),
		OutboxPollEvery:  getEnvAsDuration("PALENGKE_OUTBOX_POLL_INTERVAL", 5*time.Second),
		OutboxPollLimit:  int(getEnvAsInt64("PALENGKE_OUTBOX_POLL_LIMIT", 50)),
		OutboxPollBudget: getEnvAsDuration("PALENGKE_OUTBOX_POLL_TIMEOUT", 3*time.Second),
	}

	if cfg.CommissionBPS < 0 || cfg.CommissionBPS > 10_000 {
		return nil, fmt.Errorf("PALENGKE_COMMISSION_BPS out of range: %d", cfg.CommissionBPS)
	}
	if cfg.SettleHold < 0 {
		return nil, fmt.Errorf("PALENGKE_SETTLE_HOLD must not be negative")
	}
	return cfg, nil
}

// KafkaBrokers splits the broker list for the kafka writer.
func (c *Config) KafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return v
}
