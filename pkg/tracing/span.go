// Package tracing records the phases of a run as a tree of timed spans carried
// through a context. The tree is logged via slog when the run ends.
package tracing

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is a timed phase of a run.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Err       error
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// StartSpan creates a root span, usually named after the run, and stores it
// in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a span under the one in ctx. Without a parent the
// child is simply detached.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Children:  make([]*Span, 0),
		Attrs:     make(map[string]any),
	}
}

func (s *Span) End() {
	s.mu.Lock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.mu.Unlock()
}

// EndWithError ends the span and marks it failed when err is non-nil.
func (s *Span) EndWithError(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
	s.End()
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to logger, one record per span, parents first.
// Each record carries the span's path from the root, e.g. "index/merge".
func (s *Span) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.log(logger, "")
}

func (s *Span) log(logger *slog.Logger, parent string) {
	s.mu.Lock()
	path := s.Name
	if parent != "" {
		path = parent + "/" + s.Name
	}
	keys := make([]string, 0, len(s.Attrs))
	for k := range s.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, 8+2*len(keys))
	attrs = append(attrs,
		"trace_id", s.TraceID,
		"span", path,
		"duration_ms", s.Duration.Milliseconds(),
	)
	for _, k := range keys {
		attrs = append(attrs, k, s.Attrs[k])
	}
	level := slog.LevelInfo
	if s.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", s.Err)
	}
	children := slices.Clone(s.Children)
	s.mu.Unlock()

	logger.Log(context.Background(), level, "span", attrs...)
	for _, child := range children {
		child.log(logger, path)
	}
}
