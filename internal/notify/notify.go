// Package notify announces finished runs to other systems.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/kafka"
)

// EventType is sent in the event-type header of every run event.
const EventType = "index.run.completed"

// RunEvent is the payload published when a run ends.
type RunEvent struct {
	RunID         string    `json:"run_id"`
	Status        string    `json:"status"`
	Output        string    `json:"output,omitempty"`
	Workers       int       `json:"workers"`
	Lines         int       `json:"lines"`
	Tokens        int       `json:"tokens"`
	Entries       int       `json:"entries"`
	Postings      int       `json:"postings"`
	Skipped       int       `json:"skipped"`
	FailedWorkers []int     `json:"failed_workers,omitempty"`
	Bytes         int64     `json:"bytes"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// NewRunEvent builds the event for a run that ended with runErr.
func NewRunEvent(sum *indexer.Summary, status, output string, runErr error) RunEvent {
	ev := RunEvent{
		Status:     status,
		Output:     output,
		FinishedAt: time.Now().UTC(),
	}
	if sum != nil {
		ev.RunID = sum.RunID
		ev.Workers = sum.Workers
		ev.Lines = sum.Lines
		ev.Tokens = sum.Tokens
		ev.Entries = sum.Entries
		ev.Postings = sum.Postings
		ev.Skipped = sum.Skipped
		ev.FailedWorkers = sum.FailedWorkers
		ev.Bytes = sum.Bytes
		ev.DurationMS = sum.Duration.Milliseconds()
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	return ev
}

type Notifier interface {
	RunCompleted(ctx context.Context, ev RunEvent) error
	Close() error
}

// New returns a Kafka notifier when cfg.Enabled, otherwise Noop.
func New(cfg config.KafkaConfig) Notifier {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewKafkaNotifier(kafka.NewProducer(cfg))
}

type Noop struct{}

func (Noop) RunCompleted(context.Context, RunEvent) error { return nil }
func (Noop) Close() error                                 { return nil }

// KafkaNotifier publishes RunEvents keyed by run id.
type KafkaNotifier struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

func NewKafkaNotifier(p *kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{
		producer: p,
		logger:   slog.Default().With("component", "notify"),
	}
}

func (n *KafkaNotifier) RunCompleted(ctx context.Context, ev RunEvent) error {
	if err := n.producer.Publish(ctx, kafka.Event{Key: ev.RunID, Type: EventType, Value: ev}); err != nil {
		return fmt.Errorf("announcing run %s: %w", ev.RunID, err)
	}
	n.logger.Info("run announced", "run_id", ev.RunID, "status", ev.Status)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
