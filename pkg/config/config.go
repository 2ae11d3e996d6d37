package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv         string
	LogLevel       string
	LogFormat      string
	ServiceVersion string

	// Database. An empty DatabaseURL selects the embedded SQLite store.
	DatabaseURL      string
	DatabaseDriver   string
	SQLitePath       string
	DatabaseMaxConns int

	// Redis read cache for business hours and service types.
	// Empty disables caching.
	RedisURL string
	CacheTTL time.Duration

	// RabbitMQ. Empty keeps events in process.
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr   string
	OfferSweepInterval time.Duration

	// HTTP
	HTTPAddr         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	PublicBaseURL    string

	// Scheduling policy
	MaxReschedules      int
	MinNoticeHours      int
	LateFees            []LateFeeTier
	InvitationTTL       time.Duration
	InvitationBatchSize int
	SoftHoldOffers      bool
	RebookingTTL        time.Duration

	// Resilience for availability reads
	BreakerMaxFailures   int
	BreakerOpenTimeout   time.Duration
	RetryInitialInterval time.Duration
	RetryMaxElapsed      time.Duration

	// ContactEncryptionKey is a base64 AES-256 key sealing waitlist
	// contact details at rest. Empty stores them in plain text.
	ContactEncryptionKey string
}

// LateFeeTier charges AmountCents when a change happens less than Within
// before the appointment.
type LateFeeTier struct {
	Within      time.Duration
	AmountCents int64
}

const defaultLateFees = "2h:7500,12h:5000,24h:2500"

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	lateFees, err := ParseLateFees(getEnv("SCHEDULING_LATE_FEES", defaultLateFees))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		ServiceVersion: getEnv("CHIROFLOW_VERSION", "dev"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseDriver:   getEnv("DATABASE_DRIVER", "auto"),
		SQLitePath:       getEnv("SQLITE_PATH", ""),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),

		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: getDurationEnv("CACHE_TTL", 5*time.Minute),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		WorkerHealthAddr:   getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		OfferSweepInterval: getDurationEnv("OFFER_SWEEP_INTERVAL", time.Minute),

		HTTPAddr:         getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT", 15*time.Second),
		PublicBaseURL:    strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		MaxReschedules:      getIntEnv("SCHEDULING_MAX_RESCHEDULES", 2),
		MinNoticeHours:      getIntEnv("SCHEDULING_MIN_NOTICE_HOURS", 24),
		LateFees:            lateFees,
		InvitationTTL:       getDurationEnv("SCHEDULING_INVITATION_TTL", 2*time.Hour),
		InvitationBatchSize: getIntEnv("SCHEDULING_INVITATION_BATCH_SIZE", 5),
		SoftHoldOffers:      getBoolEnv("SCHEDULING_SOFT_HOLD_OFFERS", true),
		RebookingTTL:        getDurationEnv("SCHEDULING_REBOOKING_TTL", 72*time.Hour),

		BreakerMaxFailures:   getIntEnv("BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout:   getDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		RetryInitialInterval: getDurationEnv("RETRY_INITIAL_INTERVAL", 50*time.Millisecond),
		RetryMaxElapsed:      getDurationEnv("RETRY_MAX_ELAPSED", 2*time.Second),

		ContactEncryptionKey: getEnv("CONTACT_ENCRYPTION_KEY", ""),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ParseLateFees parses "2h:7500,12h:5000" into tiers sorted by window.
func ParseLateFees(value string) ([]LateFeeTier, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	var tiers []LateFeeTier
	for _, part := range strings.Split(value, ",") {
		window, amount, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid late fee tier %q: want <duration>:<cents>", part)
		}
		d, err := time.ParseDuration(window)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid late fee window %q", window)
		}
		cents, err := strconv.ParseInt(amount, 10, 64)
		if err != nil || cents < 0 {
			return nil, fmt.Errorf("invalid late fee amount %q", amount)
		}
		tiers = append(tiers, LateFeeTier{Within: d, AmountCents: cents})
	}

	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Within < tiers[j].Within })
	return tiers, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
