package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

const fileNameTemplate = "outfile-%d"

// FileStore keeps each artifact as a file in a per-run directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the run directory indexgen-<runID> under baseDir, or
// under the OS temp directory when baseDir is empty.
func NewFileStore(baseDir, runID string) (*FileStore, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	dir := filepath.Join(baseDir, "indexgen-"+runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating artifact directory: %v", apperrors.ErrIO, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the run directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(worker int) string {
	return filepath.Join(s.dir, fmt.Sprintf(fileNameTemplate, worker))
}

// Create writes to a .tmp file that is synced and renamed into place on Close.
func (s *FileStore) Create(_ context.Context, worker int) (io.WriteCloser, error) {
	finalPath := s.path(worker)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating artifact for worker %d: %v", apperrors.ErrIO, worker, err)
	}
	return &fileWriter{f: f, tmpPath: tmpPath, finalPath: finalPath}, nil
}

func (s *FileStore) Open(_ context.Context, worker int) (io.ReadCloser, error) {
	f, err := os.Open(s.path(worker))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: worker %d", apperrors.ErrArtifactNotFound, worker)
		}
		return nil, fmt.Errorf("%w: opening artifact for worker %d: %v", apperrors.ErrIO, worker, err)
	}
	return f, nil
}

func (s *FileStore) Remove(_ context.Context, worker int) error {
	err := os.Remove(s.path(worker))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing artifact for worker %d: %w", worker, err)
	}
	return nil
}

// Close removes the run directory and anything still in it.
func (s *FileStore) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("removing artifact directory: %w", err)
	}
	return nil
}

type fileWriter struct {
	f         *os.File
	tmpPath   string
	finalPath string
	closed    bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.tmpPath)
		return fmt.Errorf("%w: syncing artifact: %v", apperrors.ErrIO, err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("%w: closing artifact: %v", apperrors.ErrIO, err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		return fmt.Errorf("%w: renaming artifact: %v", apperrors.ErrIO, err)
	}
	return nil
}

func (w *fileWriter) Discard() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.f.Close()
	if err := os.Remove(w.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing discarded artifact: %w", err)
	}
	return nil
}
