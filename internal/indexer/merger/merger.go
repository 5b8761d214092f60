// Package merger produces the final index from the worker artifacts. Because
// the partition table hands each worker a block of letters that sorts entirely
// before the next worker's block, the artifacts are concatenated in worker
// order; nothing is compared or re-sorted here.
package merger

import (
	"context"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/logger"
)

// Source yields the artifact written by a worker.
type Source interface {
	Open(ctx context.Context, worker int) (io.ReadCloser, error)
}

type Options struct {
	// SkipMissing continues past workers that left no artifact instead of
	// failing the merge.
	SkipMissing bool
}

type Result struct {
	Bytes   int64
	Missing []int
}

// Concat copies the artifacts of workers 0..workers-1, in that order, to out.
func Concat(ctx context.Context, out io.Writer, src Source, workers int, opts Options) (Result, error) {
	log := logger.For(ctx, "merger")
	var res Result
	for worker := 0; worker < workers; worker++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("merge cancelled: %w", err)
		}
		r, err := src.Open(ctx, worker)
		if err != nil {
			if opts.SkipMissing && errors.Is(err, apperrors.ErrArtifactNotFound) {
				log.Warn("artifact missing, skipping", "worker_id", worker)
				res.Missing = append(res.Missing, worker)
				continue
			}
			return res, fmt.Errorf("opening artifact of worker %d: %w", worker, err)
		}
		n, err := io.Copy(out, r)
		r.Close()
		res.Bytes += n
		if err != nil {
			return res, fmt.Errorf("%w: copying artifact of worker %d: %v", apperrors.ErrIO, worker, err)
		}
		log.Debug("artifact merged", "worker_id", worker, "bytes", n)
	}
	return res, nil
}
