// Package health runs dependency checks concurrently. The CLI uses a Checker
// as a preflight gate before a run starts; the metrics server exposes the
// same Checker as liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes a single dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all checks. Status is the worst status
// among the components.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// severity orders statuses from best to worst.
func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Checker holds named checks. Run executes them all at once.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a named check, replacing any check of the same name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// snapshot returns the registered checks ordered by name.
func (c *Checker) snapshot() ([]string, []Check) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	return names, checks
}

func (c *Checker) Run(ctx context.Context) Report {
	names, checks := c.snapshot()
	results := make([]ComponentHealth, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			start := time.Now()
			res := check(ctx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		if results[i].Status.severity() > report.Status.severity() {
			report.Status = results[i].Status
		}
	}
	return report
}

// Preflight runs every check and fails with ErrBackendUnavailable naming the
// components that are down. Degraded components are logged but allowed.
func (c *Checker) Preflight(ctx context.Context) error {
	report := c.Run(ctx)
	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var down []string
	for _, name := range names {
		comp := report.Components[name]
		switch comp.Status {
		case StatusUp:
			c.logger.Debug("preflight check passed", "check", name, "latency", comp.Latency)
		case StatusDegraded:
			c.logger.Warn("preflight check degraded", "check", name, "message", comp.Message)
		default:
			c.logger.Error("preflight check failed", "check", name, "message", comp.Message)
			down = append(down, fmt.Sprintf("%s (%s)", name, comp.Message))
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrBackendUnavailable, strings.Join(down, ", "))
	}
	return nil
}

// PingCheck adapts a ping function, such as a redis or database ping, into a
// Check with its own timeout.
func PingCheck(timeout time.Duration, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// DirWritableCheck reports whether a file can be created in dir. A missing
// dir is created first.
func DirWritableCheck(dir string) Check {
	return func(context.Context) ComponentHealth {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		f, err := os.CreateTemp(dir, ".indexgen-probe-*")
		if err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return ComponentHealth{Status: StatusUp}
	}
}

// FileWritableCheck reports whether the directory that will hold path is
// writable.
func FileWritableCheck(path string) Check {
	return DirWritableCheck(filepath.Dir(path))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// LiveHandler answers 200 while the process is serving.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler runs the checks and answers 503 unless every one is up.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		code := http.StatusOK
		if report.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}
