package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/health"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LinesReadTotal.Add(3)
	m.MessagesRoutedTotal.WithLabelValues(WorkerLabel(0)).Inc()
	m.MessagesRoutedTotal.WithLabelValues(WorkerLabel(4)).Add(2)
	m.WorkerEntries.WithLabelValues(WorkerLabel(4)).Set(7)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinesReadTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRoutedTotal.WithLabelValues("4")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.WorkerEntries.WithLabelValues("4")))

	count, err := testutil.GatherAndCount(reg, "indexgen_messages_routed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewWithoutRegisterer(t *testing.T) {
	m := New(nil)
	m.UnroutableWordsTotal.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnroutableWordsTotal))
	// a second set must not collide with the first
	assert.NotPanics(t, func() { New(nil) })
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.MergeBytesTotal.Add(42)

	path := filepath.Join(t.TempDir(), "indexgen.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "indexgen_merge_bytes_total 42")
}

func TestMuxServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).LinesReadTotal.Inc()
	srv := httptest.NewServer(NewMux(reg, health.NewChecker()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "indexgen_lines_read_total 1")

	live, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	live.Body.Close()
	assert.Equal(t, http.StatusOK, live.StatusCode)

	ready, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}
