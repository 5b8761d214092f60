// Package artifact holds the per-worker partial indexes between the moment a
// worker finishes and the merge. Each worker writes exactly one artifact; the
// merger reads them back in worker order; everything is removed at the end of
// the run. Three backends are available: plain files (the default), a bbolt
// database, and Redis.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/redis"
)

// Store creates, reads and removes worker artifacts for one run.
type Store interface {
	// Create returns a writer for the worker's artifact. The artifact becomes
	// visible to Open only after the writer is closed successfully.
	Create(ctx context.Context, worker int) (io.WriteCloser, error)
	// Open returns the worker's artifact, or an error wrapping
	// ErrArtifactNotFound if it was never committed.
	Open(ctx context.Context, worker int) (io.ReadCloser, error)
	Remove(ctx context.Context, worker int) error
	// Close releases the backend and anything left over from the run.
	Close() error
}

// Open selects the backend configured in cfg.Backend. Artifacts are
// namespaced by runID so concurrent runs never share them.
func Open(ctx context.Context, cfg config.Config, runID string) (Store, error) {
	switch cfg.Artifacts.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.Artifacts.Dir, runID)
	case config.BackendBolt:
		return NewBoltStore(cfg.Artifacts.BoltPath, runID)
	case config.BackendRedis:
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting artifact redis: %w", err)
		}
		return NewRedisStore(client, runID, cfg.Artifacts.TTL), nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Artifacts.Backend)
	}
}

// Discard abandons an artifact writer without committing it. Writers that
// cannot be abandoned are closed instead.
func Discard(w io.WriteCloser) error {
	if d, ok := w.(interface{ Discard() error }); ok {
		return d.Discard()
	}
	return w.Close()
}

// bufferedWriter collects an artifact in memory and hands it to commit on
// Close. Used by the key-value backends, which store each artifact as a
// single value.
type bufferedWriter struct {
	buf    bytes.Buffer
	commit func([]byte) error
	closed bool
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed artifact")
	}
	return w.buf.Write(p)
}

func (w *bufferedWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	data := w.buf.Bytes()
	if data == nil {
		data = []byte{}
	}
	return w.commit(data)
}

func (w *bufferedWriter) Discard() error {
	w.closed = true
	w.buf.Reset()
	return nil
}
