package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Indexer.ChannelCapacity)
	assert.Equal(t, FailurePolicyAbort, cfg.Indexer.FailurePolicy)
	assert.Equal(t, UnroutableFail, cfg.Indexer.Unroutable)
	assert.Equal(t, BackendFile, cfg.Artifacts.Backend)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexgen.yaml")
	data := []byte(`
indexer:
  channelCapacity: 64
  idleTimeout: 2s
  failurePolicy: partial
artifacts:
  backend: bolt
  boltPath: /tmp/x.db
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("IG_INDEXER_UNROUTABLE", "skip")
	t.Setenv("IG_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Indexer.ChannelCapacity)
	assert.Equal(t, 2*time.Second, cfg.Indexer.IdleTimeout)
	assert.Equal(t, FailurePolicyPartial, cfg.Indexer.FailurePolicy)
	assert.Equal(t, UnroutableSkip, cfg.Indexer.Unroutable)
	assert.Equal(t, BackendBolt, cfg.Artifacts.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Artifacts.BoltPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// untouched sections keep their defaults
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"capacity", "IG_INDEXER_CHANNEL_CAPACITY", "0"},
		{"policy", "IG_INDEXER_FAILURE_POLICY", "ignore"},
		{"unroutable", "IG_INDEXER_UNROUTABLE", "clamp"},
		{"backend", "IG_ARTIFACTS_BACKEND", "s3"},
		{"word length", "IG_INDEXER_MAX_WORD_LENGTH", "-1"},
		{"log level", "IG_LOGGING_LEVEL", "verbose"},
		{"log format", "IG_LOGGING_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := Load("")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateWorkers(t *testing.T) {
	for n := MinWorkers; n <= MaxWorkers; n++ {
		assert.NoError(t, ValidateWorkers(n))
	}
	for _, n := range []int{-1, 0, 6, 26} {
		err := ValidateWorkers(n)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidWorkerCount)
		assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
	}
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Postgres
	assert.Equal(t,
		"host=localhost port=5432 user=indexgen password=localdev dbname=indexgen sslmode=disable",
		p.DSN())
}
