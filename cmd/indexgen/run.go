package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/renameio"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/artifact"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/resilience"
)

const pingTimeout = 2 * time.Second

func (a *app) runIndex(cmd *cobra.Command, workers int, inputPath, outputPath string) error {
	ctx := cmd.Context()
	cfg := a.cfg
	log := logger.For(ctx, "cli")

	in, err := os.Open(inputPath)
	if err != nil {
		return apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "opening input: %v", err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "reading input: %v", err)
	}

	// one writer per output path
	lockFile, err := lockPath(outputPath)
	if err != nil {
		return apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "locking output: %v", err)
	}
	lock := flock.New(lockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "locking output: %v", err)
	}
	if !locked {
		return apperrors.Newf(apperrors.ErrBackendUnavailable, apperrors.ExitResource,
			"%s is being written by another run", outputPath)
	}
	defer lock.Unlock()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log = logger.For(ctx, "cli")
	store, err := artifact.Open(ctx, *cfg, runID)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBackendUnavailable, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing artifact store", "error", err)
		}
	}()

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("%w: run ledger: %v", apperrors.ErrBackendUnavailable, err)
		}
		defer pg.Close()
	}
	recorder := runlog.NewRecorder(pg)
	if err := recorder.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBackendUnavailable, err)
	}
	notifier := notify.New(cfg.Kafka)
	defer notifier.Close()

	checker := preflightChecks(cfg, store, pg)
	if err := checker.Preflight(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg, checker)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	p, err := indexer.New(indexer.Options{
		Workers: workers,
		Indexer: cfg.Indexer,
		RunID:   runID,
		Trace:   cfg.Tracing.Enabled,
	}, store, m)
	if err != nil {
		return err
	}

	out, err := renameio.TempFile(filepath.Dir(outputPath), outputPath)
	if err != nil {
		return apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "creating output: %v", err)
	}
	defer out.Cleanup()
	if err := out.Chmod(0o644); err != nil {
		return apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "creating output: %v", err)
	}

	var src io.Reader = in
	var bar *progressbar.ProgressBar
	if a.progress {
		bar = newProgressBar(info.Size(), cmd.ErrOrStderr())
		src = io.TeeReader(in, bar)
	}

	sum, runErr := p.Run(ctx, src, out)
	if bar != nil {
		bar.Finish()
	}
	if runErr == nil {
		if err := out.CloseAtomicallyReplace(); err != nil {
			runErr = apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "replacing %s: %v", outputPath, err)
		}
	}

	report(ctx, log, recorder, notifier, sum, outputPath, runErr)
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			log.Warn("metrics textfile not written", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	log.Info("index written",
		"output", outputPath,
		"entries", sum.Entries,
		"size", humanize.Bytes(uint64(sum.Bytes)),
		"input", humanize.Bytes(uint64(info.Size())),
	)
	return nil
}

// report records the run in the ledger and announces it. Neither is allowed
// to change the outcome of the run.
func report(ctx context.Context, log *slog.Logger, recorder *runlog.Recorder, notifier notify.Notifier,
	sum *indexer.Summary, outputPath string, runErr error) {
	ctx = context.WithoutCancel(ctx)
	if recorder.Enabled() {
		err := resilience.Retry(ctx, "record run", resilience.DefaultBackoff(), func(ctx context.Context) error {
			return recorder.Record(ctx, sum, runErr)
		})
		if err != nil {
			log.Warn("run not recorded", "error", err)
		}
	}
	ev := notify.NewRunEvent(sum, runlog.StatusOf(sum, runErr), outputPath, runErr)
	err := resilience.Retry(ctx, "announce run", resilience.DefaultBackoff(), func(ctx context.Context) error {
		return notifier.RunCompleted(ctx, ev)
	})
	if err != nil {
		log.Warn("run not announced", "error", err)
	}
}

// lockPath names the lock guarding outputPath. It lives in the temp dir, keyed
// by the absolute output path, so nothing is left beside the output.
func lockPath(outputPath string) (string, error) {
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(os.TempDir(), "indexgen-"+hex.EncodeToString(sum[:8])+".lock"), nil
}

// preflightChecks covers the backends. The output directory is not checked
// here: a missing or read-only directory surfaces as an I/O error when the
// output is created.
func preflightChecks(cfg *config.Config, store artifact.Store, pg *postgres.Client) *health.Checker {
	c := health.NewChecker()
	switch s := store.(type) {
	case *artifact.FileStore:
		c.Register("artifacts", health.DirWritableCheck(s.Dir()))
	case *artifact.BoltStore:
		c.Register("bolt", health.FileWritableCheck(cfg.Artifacts.BoltPath))
	case *artifact.RedisStore:
		c.Register("redis", health.PingCheck(pingTimeout, s.Ping))
	}
	if pg != nil {
		c.Register("postgres", health.PingCheck(pingTimeout, pg.Ping))
	}
	return c
}

func newProgressBar(size int64, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
