package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/redis"
)

const redisKeyPrefix = "indexgen:"

// RedisStore keeps artifacts as Redis string values under
// indexgen:<run-id>:<worker>. The TTL bounds how long a crashed run's
// artifacts linger.
type RedisStore struct {
	client *pkgredis.Client
	runID  string
	ttl    time.Duration
}

// NewRedisStore takes ownership of client; Close closes it.
func NewRedisStore(client *pkgredis.Client, runID string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, runID: runID, ttl: ttl}
}

func (s *RedisStore) key(worker int) string {
	return fmt.Sprintf("%s%s:%d", redisKeyPrefix, s.runID, worker)
}

func (s *RedisStore) Create(ctx context.Context, worker int) (io.WriteCloser, error) {
	return &bufferedWriter{commit: func(data []byte) error {
		if err := s.client.Put(ctx, s.key(worker), data, s.ttl); err != nil {
			return fmt.Errorf("%w: storing artifact for worker %d: %v", apperrors.ErrIO, worker, err)
		}
		return nil
	}}, nil
}

func (s *RedisStore) Open(ctx context.Context, worker int) (io.ReadCloser, error) {
	data, err := s.client.Get(ctx, s.key(worker))
	if err != nil {
		if errors.Is(err, pkgredis.ErrNotFound) {
			return nil, fmt.Errorf("%w: worker %d", apperrors.ErrArtifactNotFound, worker)
		}
		return nil, fmt.Errorf("%w: reading artifact for worker %d: %v", apperrors.ErrIO, worker, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Ping checks the connection to the Redis server.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) Remove(ctx context.Context, worker int) error {
	return s.client.Delete(ctx, s.key(worker))
}

// Close deletes any keys left for the run and closes the client.
func (s *RedisStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.client.Sweep(ctx, redisKeyPrefix+s.runID+":")
	if cerr := s.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
