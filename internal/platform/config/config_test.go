package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.PostgresURL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, "signup.confirmed", cfg.Kafka.Topic)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 300*time.Second, cfg.Retry.MaxDelay)

	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ENROLLD_ADDR", ":9090")
	t.Setenv("ENROLLD_POSTGRES_URL", "postgres://localhost/enrolld")
	t.Setenv("ENROLLD_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("ENROLLD_MAX_ATTEMPTS", "5")
	t.Setenv("ENROLLD_BASE_DELAY", "10s")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://localhost/enrolld", cfg.PostgresURL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Retry.BaseDelay)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("ENROLLD_MAX_ATTEMPTS", "-1")
	t.Setenv("ENROLLD_BASE_DELAY", "soon")
	t.Setenv("ENROLLD_BATCH_SIZE", "zero")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
}
