package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/artifact"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/logger"
)

// Worker consumes the messages of one channel until the sentinel, then writes
// its sorted index as a single artifact.
type Worker struct {
	id          int
	in          <-chan Message
	store       artifact.Store
	idleTimeout time.Duration
}

// WorkerResult is what a worker reports when it exits.
type WorkerResult struct {
	ID       int
	Messages int
	Entries  int
	Postings int
	Bytes    int64
	Err      error

	gotSentinel bool
}

func NewWorker(id int, in <-chan Message, store artifact.Store, idleTimeout time.Duration) *Worker {
	return &Worker{
		id:          id,
		in:          in,
		store:       store,
		idleTimeout: idleTimeout,
	}
}

// Run receives until the sentinel and writes the artifact. A receive failure
// (cancellation, idle timeout, or a channel closed before the sentinel) ends
// the worker without an artifact.
func (w *Worker) Run(ctx context.Context) WorkerResult {
	res := WorkerResult{ID: w.id}
	idx := index.NewWorkerIndex()
	log := logger.For(ctx, "worker").With("worker_id", w.id)

	var idle <-chan time.Time
	var timer *time.Timer
	if w.idleTimeout > 0 {
		timer = time.NewTimer(w.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			res.Err = fmt.Errorf("%w: worker %d: %v", apperrors.ErrReceiveFailed, w.id, context.Cause(ctx))
			return res
		case <-idle:
			res.Err = fmt.Errorf("%w: worker %d: no message for %s",
				apperrors.ErrIdleTimeout, w.id, w.idleTimeout)
			return res
		case msg, ok := <-w.in:
			if !ok {
				res.Err = fmt.Errorf("%w: worker %d: channel closed before end of stream",
					apperrors.ErrReceiveFailed, w.id)
				return res
			}
			if msg.IsSentinel() {
				res.gotSentinel = true
				log.Debug("end of stream", "messages", res.Messages, "words", idx.Len())
				w.flush(ctx, idx, &res, log)
				return res
			}
			if err := idx.Add(msg.Word, msg.Line); err != nil {
				res.Err = fmt.Errorf("worker %d: %w", w.id, err)
				return res
			}
			res.Messages++
			if timer != nil {
				timer.Reset(w.idleTimeout)
			}
		}
	}
}

func (w *Worker) flush(ctx context.Context, idx *index.WorkerIndex, res *WorkerResult, log *slog.Logger) {
	entries := idx.Sorted()
	dst, err := w.store.Create(ctx, w.id)
	if err != nil {
		res.Err = fmt.Errorf("worker %d: %w", w.id, err)
		return
	}
	sw := segment.NewWriter(dst)
	if err := sw.Write(entries); err == nil {
		err = sw.Flush()
	}
	if err != nil {
		artifact.Discard(dst)
		res.Err = fmt.Errorf("%w: worker %d: writing artifact: %v", apperrors.ErrIO, w.id, err)
		return
	}
	if err := dst.Close(); err != nil {
		res.Err = fmt.Errorf("worker %d: committing artifact: %w", w.id, err)
		return
	}
	res.Entries = sw.Entries()
	res.Bytes = sw.Bytes()
	res.Postings = idx.Refs()
	idx.Reset()
	log.Info("artifact written",
		"entries", res.Entries,
		"postings", res.Postings,
		"messages", res.Messages,
		"bytes", res.Bytes,
	)
}

// drain discards messages until the sentinel so that the orchestrator is never
// blocked by a worker that already failed.
func drain(ctx context.Context, in <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok || msg.IsSentinel() {
				return
			}
		}
	}
}
