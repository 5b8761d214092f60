package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	bolt "go.etcd.io/bbolt"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

// BoltStore keeps artifacts as values in a bbolt database, one bucket per run.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

// NewBoltStore opens (or creates) the database at path and the run's bucket.
func NewBoltStore(path, runID string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening bbolt database: %v", apperrors.ErrIO, err)
	}
	s := &BoltStore{db: db, bucket: []byte("run/" + runID)}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating run bucket: %v", apperrors.ErrIO, err)
	}
	return s, nil
}

func boltKey(worker int) []byte {
	return []byte(strconv.Itoa(worker))
}

func (s *BoltStore) Create(_ context.Context, worker int) (io.WriteCloser, error) {
	return &bufferedWriter{commit: func(data []byte) error {
		err := s.db.Update(func(tx *bolt.Tx) error {
			bkt := tx.Bucket(s.bucket)
			if bkt == nil {
				return fmt.Errorf("bucket not found: %s", s.bucket)
			}
			return bkt.Put(boltKey(worker), data)
		})
		if err != nil {
			return fmt.Errorf("%w: storing artifact for worker %d: %v", apperrors.ErrIO, worker, err)
		}
		return nil
	}}, nil
}

func (s *BoltStore) Open(_ context.Context, worker int) (io.ReadCloser, error) {
	var value []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(s.bucket)
		if bkt == nil {
			return fmt.Errorf("bucket not found: %s", s.bucket)
		}
		// seek rather than Get so that an empty artifact is still found
		key := boltKey(worker)
		k, v := bkt.Cursor().Seek(key)
		if k != nil && bytes.Equal(k, key) {
			// v is only valid for the life of the transaction
			value = make([]byte, len(v))
			copy(value, v)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading artifact for worker %d: %v", apperrors.ErrIO, worker, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: worker %d", apperrors.ErrArtifactNotFound, worker)
	}
	return io.NopCloser(bytes.NewReader(value)), nil
}

func (s *BoltStore) Remove(_ context.Context, worker int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(s.bucket)
		if bkt == nil {
			return nil
		}
		return bkt.Delete(boltKey(worker))
	})
}

// Close drops the run bucket and closes the database.
func (s *BoltStore) Close() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(s.bucket)
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("closing bbolt artifact store: %w", err)
	}
	return nil
}
