// Package indexer builds a word -> line-number index of a text stream with a
// fixed pool of workers. The orchestrator reads and tokenizes the input and
// routes every word over a bounded channel to the worker owning the word's
// first letter. Each worker builds a sorted partial index and writes it as an
// artifact once it receives its end-of-stream sentinel. Because workers own
// contiguous, ascending letter ranges, the final index is the artifacts
// concatenated in worker order.
package indexer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/artifact"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/merger"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/tracing"
)

// Options is the immutable configuration of one pipeline.
type Options struct {
	Workers int
	Indexer config.IndexerConfig

	// RunID namespaces artifacts and log records. Generated when empty.
	RunID string
	// Trace logs the phase span tree when a run ends.
	Trace bool
}

// Summary describes a finished (or failed) run.
type Summary struct {
	RunID         string        `json:"run_id"`
	Workers       int           `json:"workers"`
	Lines         int           `json:"lines"`
	Tokens        int           `json:"tokens"`
	Entries       int           `json:"entries"`
	Postings      int           `json:"postings"`
	Skipped       int           `json:"skipped"`
	FailedWorkers []int         `json:"failed_workers,omitempty"`
	Bytes         int64         `json:"bytes"`
	Duration      time.Duration `json:"duration_ns"`
}

type Pipeline struct {
	opts    Options
	table   *shard.Table
	tok     *tokenizer.Tokenizer
	store   artifact.Store
	metrics *metrics.Metrics
}

// New validates opts and builds the partition table. A nil m records metrics
// into unregistered collectors.
func New(opts Options, store artifact.Store, m *metrics.Metrics) (*Pipeline, error) {
	table, err := shard.NewTable(opts.Workers)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: artifact store is required", apperrors.ErrInvalidInput)
	}
	ic := &opts.Indexer
	if ic.ChannelCapacity < 1 {
		return nil, fmt.Errorf("%w: channel capacity must be >= 1, got %d",
			apperrors.ErrInvalidInput, ic.ChannelCapacity)
	}
	if ic.FailurePolicy == "" {
		ic.FailurePolicy = config.FailurePolicyAbort
	}
	if ic.Unroutable == "" {
		ic.Unroutable = config.UnroutableFail
	}
	cfg := config.Default()
	cfg.Indexer = *ic
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Pipeline{
		opts:    opts,
		table:   table,
		tok:     tokenizer.New(ic.MaxWordLength),
		store:   store,
		metrics: m,
	}, nil
}

func (p *Pipeline) RunID() string {
	return p.opts.RunID
}

func (p *Pipeline) partial() bool {
	return p.opts.Indexer.FailurePolicy == config.FailurePolicyPartial
}

// Run indexes in and writes the merged index to out. Nothing is written to out
// unless every worker finished, or the partial failure policy is in effect.
func (p *Pipeline) Run(ctx context.Context, in io.Reader, out io.Writer) (*Summary, error) {
	start := time.Now()
	n := p.table.Workers()
	sum := &Summary{RunID: p.opts.RunID, Workers: n}

	ctx = logger.WithRunID(ctx, p.opts.RunID)
	log := logger.For(ctx, "pipeline")
	ctx, root := tracing.StartSpan(ctx, "index", p.opts.RunID)
	defer func() {
		root.End()
		if p.opts.Trace {
			root.Log(log)
		}
	}()

	log.Info("run started",
		"workers", n,
		"channel_capacity", p.opts.Indexer.ChannelCapacity,
		"failure_policy", p.opts.Indexer.FailurePolicy,
		"unroutable", p.opts.Indexer.Unroutable,
	)
	for _, r := range p.table.Ranges() {
		log.Debug("partition", "worker_id", r.Worker, "letters", r.String(), "count", r.Len())
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	chans := newChannelSet(n, p.opts.Indexer.ChannelCapacity)
	results := make([]WorkerResult, n)
	stopped := make([]bool, n)

	_, workersSpan := tracing.StartChildSpan(ctx, "workers")
	var g errgroup.Group
	for i := 0; i < n; i++ {
		w := NewWorker(i, chans[i], p.store, p.opts.Indexer.IdleTimeout)
		g.Go(func() error {
			res := w.Run(runCtx)
			results[i] = res
			label := metrics.WorkerLabel(i)
			if res.Err == nil {
				p.metrics.WorkerEntries.WithLabelValues(label).Set(float64(res.Entries))
				return nil
			}
			if runCtx.Err() != nil && errors.Is(res.Err, apperrors.ErrReceiveFailed) {
				stopped[i] = true
				log.Debug("worker stopped", "worker_id", i, "cause", res.Err)
				return res.Err
			}
			p.metrics.WorkerFailuresTotal.WithLabelValues(label).Inc()
			log.Error("worker failed", "worker_id", i, "status", res.Err)
			if !p.partial() {
				cancel(res.Err)
			} else if !res.gotSentinel {
				drain(runCtx, chans[i])
			}
			return res.Err
		})
	}

	_, readSpan := tracing.StartChildSpan(ctx, "read")
	prodErr := p.produce(runCtx, in, chans, sum, log)
	if prodErr == nil {
		for i := range chans {
			if err := chans.send(runCtx, i, Sentinel); err != nil {
				prodErr = err
				break
			}
		}
	}
	readSpan.SetAttr("lines", sum.Lines)
	readSpan.SetAttr("tokens", sum.Tokens)
	readSpan.EndWithError(prodErr)
	if prodErr != nil {
		cancel(prodErr)
	}

	// join barrier: no artifact is read before every worker has exited
	_ = g.Wait()
	chans.close()
	workersSpan.End()

	var failures []error
	for i, r := range results {
		sum.Entries += r.Entries
		sum.Postings += r.Postings
		if r.Err != nil && !stopped[i] {
			sum.FailedWorkers = append(sum.FailedWorkers, i)
			failures = append(failures, r.Err)
		}
	}

	if len(failures) > 0 && !p.partial() {
		p.cleanup(ctx, n, log)
		return sum, fmt.Errorf("%w: %d of %d workers: %w",
			apperrors.ErrWorkerFailed, len(failures), n, errors.Join(failures...))
	}
	if prodErr != nil {
		p.cleanup(ctx, n, log)
		return sum, prodErr
	}

	_, mergeSpan := tracing.StartChildSpan(ctx, "merge")
	res, err := merger.Concat(ctx, out, p.store, n, merger.Options{SkipMissing: p.partial()})
	sum.Bytes = res.Bytes
	p.metrics.MergeBytesTotal.Add(float64(res.Bytes))
	mergeSpan.SetAttr("bytes", res.Bytes)
	mergeSpan.EndWithError(err)
	p.cleanup(ctx, n, log)
	if err != nil {
		return sum, fmt.Errorf("merging artifacts: %w", err)
	}

	sum.Duration = time.Since(start)
	p.metrics.RunDurationSeconds.Observe(sum.Duration.Seconds())
	if len(sum.FailedWorkers) > 0 {
		log.Warn("run completed with failed workers", "failed_workers", sum.FailedWorkers)
	}
	log.Info("run completed",
		"lines", sum.Lines,
		"tokens", sum.Tokens,
		"entries", sum.Entries,
		"postings", sum.Postings,
		"skipped", sum.Skipped,
		"size", humanize.Bytes(uint64(sum.Bytes)),
		"duration", sum.Duration,
	)
	return sum, nil
}

// produce reads in line by line and routes every token to its worker.
func (p *Pipeline) produce(ctx context.Context, in io.Reader, chans channelSet, sum *Summary, log *slog.Logger) error {
	routed := make([]prometheus.Counter, len(chans))
	for i := range routed {
		routed[i] = p.metrics.MessagesRoutedTotal.WithLabelValues(metrics.WorkerLabel(i))
	}
	skip := p.opts.Indexer.Unroutable == config.UnroutableSkip

	br := bufio.NewReader(in)
	for line := 1; ; line++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: input aborted at line %d: %v",
				apperrors.ErrSendFailed, line, context.Cause(ctx))
		}
		text, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("%w: reading line %d: %v", apperrors.ErrIO, line, readErr)
		}
		if text == "" && readErr == io.EOF {
			return nil
		}
		sum.Lines++
		p.metrics.LinesReadTotal.Inc()

		tokens, err := p.tok.Tokenize(strings.TrimSuffix(text, "\n"), line)
		if err != nil {
			return err
		}
		for _, tok := range tokens {
			worker, err := p.table.Route(tok.Term)
			if err != nil {
				if !skip {
					return fmt.Errorf("line %d: %w", line, err)
				}
				sum.Skipped++
				p.metrics.UnroutableWordsTotal.Inc()
				log.Warn("unroutable word skipped", "line", line, "word", tok.Term)
				continue
			}
			if err := chans.send(ctx, worker, Message{Word: tok.Term, Line: tok.Line}); err != nil {
				return err
			}
			sum.Tokens++
			routed[worker].Inc()
		}
		if readErr == io.EOF {
			return nil
		}
	}
}

// cleanup removes every artifact, best effort. It runs even after ctx is
// cancelled.
func (p *Pipeline) cleanup(ctx context.Context, workers int, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < workers; i++ {
		if err := p.store.Remove(ctx, i); err != nil {
			log.Warn("artifact cleanup failed", "worker_id", i, "error", err)
		}
	}
}
