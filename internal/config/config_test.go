package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "MYSQL_DSN", "REDIS_ADDR", "KAFKA_BROKERS", "TAX_RATE", "LOCK_WAIT", "LOCK_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Empty(t, cfg.MySQLDSN)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.True(t, cfg.TaxRate.IsZero())
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Equal(t, uint64(5), cfg.MaxRetries)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("LOCK_WAIT", "500ms")
	t.Setenv("MAX_RETRIES", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "0.08", cfg.TaxRate.String())
	assert.Equal(t, 500*time.Millisecond, cfg.LockWait)
	assert.Equal(t, uint64(2), cfg.MaxRetries)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"TAX_RATE", "ten"},
		{"TAX_RATE", "-0.1"},
		{"LOCK_WAIT", "soon"},
		{"LOCK_WAIT", "-1s"},
		{"MAX_RETRIES", "-3"},
		{"MYSQL_MAX_CONNS", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_LockTTLShorterThanWait(t *testing.T) {
	t.Setenv("LOCK_WAIT", "5s")
	t.Setenv("LOCK_TTL", "1s")

	_, err := Load()
	assert.ErrorContains(t, err, "LOCK_TTL")
}
