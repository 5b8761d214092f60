package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/redis"
)

func writeArtifact(t *testing.T, s Store, worker int, content string) {
	t.Helper()
	w, err := s.Create(context.Background(), worker)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readArtifact(t *testing.T, s Store, worker int) string {
	t.Helper()
	r, err := s.Open(context.Background(), worker)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	writeArtifact(t, s, 0, "cat 1\n")
	writeArtifact(t, s, 1, "")
	writeArtifact(t, s, 2, "the 1, 2\n")

	assert.Equal(t, "cat 1\n", readArtifact(t, s, 0))
	assert.Equal(t, "", readArtifact(t, s, 1))
	assert.Equal(t, "the 1, 2\n", readArtifact(t, s, 2))

	_, err := s.Open(ctx, 3)
	assert.ErrorIs(t, err, apperrors.ErrArtifactNotFound)

	require.NoError(t, s.Remove(ctx, 0))
	_, err = s.Open(ctx, 0)
	assert.ErrorIs(t, err, apperrors.ErrArtifactNotFound)
	require.NoError(t, s.Remove(ctx, 0), "removing twice is not an error")

	// uncommitted writes are invisible
	w, err := s.Create(ctx, 4)
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial 1\n")
	require.NoError(t, err)
	_, err = s.Open(ctx, 4)
	assert.ErrorIs(t, err, apperrors.ErrArtifactNotFound)
	require.NoError(t, w.Close())
	assert.Equal(t, "partial 1\n", readArtifact(t, s, 4))

	// discarded writes never become visible
	w, err = s.Create(ctx, 5)
	require.NoError(t, err)
	_, err = io.WriteString(w, "lost 1\n")
	require.NoError(t, err)
	require.NoError(t, Discard(w))
	_, err = s.Open(ctx, 5)
	assert.ErrorIs(t, err, apperrors.ErrArtifactNotFound)
}

func TestFileStore(t *testing.T) {
	base := t.TempDir()
	s, err := NewFileStore(base, "run-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "indexgen-run-1"), s.Dir())

	exerciseStore(t, s)

	_, err = os.Stat(filepath.Join(s.Dir(), "outfile-2"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")
	s, err := NewBoltStore(path, uuid.NewString())
	require.NoError(t, err)

	exerciseStore(t, s)
	require.NoError(t, s.Close())
}

func TestBoltStoreRunsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")

	first, err := NewBoltStore(path, "a")
	require.NoError(t, err)
	writeArtifact(t, first, 0, "ant 1\n")
	require.NoError(t, first.Close())

	second, err := NewBoltStore(path, "b")
	require.NoError(t, err)
	defer second.Close()
	_, err = second.Open(context.Background(), 0)
	assert.ErrorIs(t, err, apperrors.ErrArtifactNotFound)
}

func TestRedisStore(t *testing.T) {
	cfg := config.Default().Redis
	if addr := os.Getenv("IG_TEST_REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := pkgredis.NewClient(ctx, cfg)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	s := NewRedisStore(client, uuid.NewString(), time.Minute)
	exerciseStore(t, s)
	require.NoError(t, s.Close())
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Artifacts.Dir = t.TempDir()

	s, err := Open(context.Background(), *cfg, "sel")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	cfg.Artifacts.Backend = config.BackendBolt
	cfg.Artifacts.BoltPath = filepath.Join(t.TempDir(), "sel.db")
	s, err = Open(context.Background(), *cfg, "sel")
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	cfg.Artifacts.Backend = "tape"
	_, err = Open(context.Background(), *cfg, "sel")
	assert.Error(t, err)
}
