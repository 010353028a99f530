package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything enrolld reads from the environment. FromEnv
// applies defaults so main stays lean and local runs need no setup beyond
// the store URLs.
type Config struct {
	Addr string

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	Retry    RetryConfig
	Worker   WorkerConfig
	Notifier NotifierConfig
}

// RedisConfig holds connection tuning for the retry queue client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig describes the signup-confirmation topic subscription. Brokers
// empty means the Kafka entry point is disabled and only HTTP is served.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

// RetryConfig is the backoff policy surface: attempt budget, delay bounds,
// and the per-attempt timeout guarding each conditional write.
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// WorkerConfig tunes the retry worker loop.
type WorkerConfig struct {
	PollInterval      time.Duration
	BatchSize         int
	Concurrency       int
	VisibilityTimeout time.Duration
}

// NotifierConfig points at the operator alert webhook. Empty URL means alerts
// only go to the log.
type NotifierConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// FromEnv builds a Config from environment variables with defaults.
func FromEnv() Config {
	return Config{
		Addr:        envString("ENROLLD_ADDR", ":8080"),
		PostgresURL: os.Getenv("ENROLLD_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("ENROLLD_REDIS_URL"),
			PoolSize:     envInt("ENROLLD_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ENROLLD_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("ENROLLD_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ENROLLD_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ENROLLD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("ENROLLD_KAFKA_BROKERS"),
			Topic:   envString("ENROLLD_KAFKA_TOPIC", "signup.confirmed"),
			Group:   envString("ENROLLD_KAFKA_GROUP", "enrolld"),
		},
		Retry: RetryConfig{
			MaxAttempts:    envInt("ENROLLD_MAX_ATTEMPTS", 3),
			BaseDelay:      envDuration("ENROLLD_BASE_DELAY", 30*time.Second),
			MaxDelay:       envDuration("ENROLLD_MAX_DELAY", 300*time.Second),
			AttemptTimeout: envDuration("ENROLLD_ATTEMPT_TIMEOUT", 5*time.Second),
		},
		Worker: WorkerConfig{
			PollInterval:      envDuration("ENROLLD_POLL_INTERVAL", 5*time.Second),
			BatchSize:         envInt("ENROLLD_BATCH_SIZE", 10),
			Concurrency:       envInt("ENROLLD_WORKER_CONCURRENCY", 4),
			VisibilityTimeout: envDuration("ENROLLD_VISIBILITY_TIMEOUT", 60*time.Second),
		},
		Notifier: NotifierConfig{
			WebhookURL: os.Getenv("ENROLLD_ALERT_WEBHOOK_URL"),
			Timeout:    envDuration("ENROLLD_ALERT_TIMEOUT", 10*time.Second),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
