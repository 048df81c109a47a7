package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 0.5, cfg.BreakerFailureRatio)
	assert.Equal(t, uint32(10), cfg.BreakerMinRequests)
	assert.Equal(t, 30*time.Second, cfg.BreakerOpenTimeout)
	assert.Equal(t, uint64(3), cfg.RetryAttempts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("LEDGER", "dynamodb")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("BREAKER_OPEN_TIMEOUT", "5s")
	t.Setenv("NOTIFIER_WORKERS", "2")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "dynamodb", cfg.Ledger)
	assert.Equal(t, 0.25, cfg.BreakerFailureRatio)
	assert.Equal(t, 5*time.Second, cfg.BreakerOpenTimeout)
	assert.Equal(t, 2, cfg.NotifierWorkers)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("BREAKER_FAILURE_RATIO", "1.5")
	t.Setenv("RETRY_ATTEMPTS", "many")
	t.Setenv("PRODUCT_CACHE_TTL", "-1m")

	cfg := Load()

	assert.Equal(t, 0.5, cfg.BreakerFailureRatio)
	assert.Equal(t, uint64(3), cfg.RetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.ProductCacheTTL)
}
