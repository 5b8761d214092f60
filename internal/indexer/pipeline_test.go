package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/artifact"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/metrics"
)

func defaultOptions(workers int) Options {
	return Options{
		Workers: workers,
		Indexer: config.Default().Indexer,
	}
}

func run(t *testing.T, opts Options, store artifact.Store, input string) (string, *Summary, error) {
	t.Helper()
	if store == nil {
		store = newFileStore(t)
	}
	p, err := New(opts, store, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	sum, err := p.Run(context.Background(), strings.NewReader(input), &out)
	return out.String(), sum, err
}

// referenceIndex builds the expected output with no partitioning at all.
func referenceIndex(input string) string {
	lines := map[string]map[int]bool{}
	for i, text := range strings.Split(input, "\n") {
		for _, w := range strings.Fields(strings.ToLower(text)) {
			if lines[w] == nil {
				lines[w] = map[int]bool{}
			}
			lines[w][i+1] = true
		}
	}
	words := make([]string, 0, len(lines))
	for w := range lines {
		words = append(words, w)
	}
	sort.Strings(words)
	var b strings.Builder
	for _, w := range words {
		nums := make([]int, 0, len(lines[w]))
		for n := range lines[w] {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		parts := make([]string, len(nums))
		for i, n := range nums {
			parts[i] = fmt.Sprint(n)
		}
		fmt.Fprintf(&b, "%s %s\n", w, strings.Join(parts, ", "))
	}
	return b.String()
}

func randomText(r *rand.Rand, lines int) string {
	seps := []string{" ", "  ", "\t", " \t "}
	var b strings.Builder
	for i := 0; i < lines; i++ {
		words := r.IntN(12)
		for j := 0; j < words; j++ {
			if j > 0 {
				b.WriteString(seps[r.IntN(len(seps))])
			}
			n := 1 + r.IntN(6)
			for k := 0; k < n; k++ {
				c := byte('a' + r.IntN(26))
				if r.IntN(8) == 0 {
					c -= 'a' - 'A'
				}
				b.WriteByte(c)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func TestRunConcreteScenario(t *testing.T) {
	out, sum, err := run(t, defaultOptions(1), nil, "the cat sat\nthe dog ran\n")
	require.NoError(t, err)
	assert.Equal(t, "cat 1\ndog 2\nran 2\nsat 1\nthe 1, 2\n", out)
	assert.Equal(t, 2, sum.Lines)
	assert.Equal(t, 6, sum.Tokens)
	assert.Equal(t, 5, sum.Entries)
	assert.Equal(t, 6, sum.Postings)
	assert.Equal(t, int64(len(out)), sum.Bytes)
	assert.Empty(t, sum.FailedWorkers)
	assert.NotEmpty(t, sum.RunID)
}

func TestRunMatchesReferenceForEveryWorkerCount(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	input := randomText(r, 200)
	want := referenceIndex(input)

	for n := config.MinWorkers; n <= config.MaxWorkers; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			out, sum, err := run(t, defaultOptions(n), nil, input)
			require.NoError(t, err)
			assert.Equal(t, want, out)

			entries, err := segment.Verify(strings.NewReader(out))
			require.NoError(t, err, "output must be strictly ascending")
			assert.Equal(t, sum.Entries, entries)
		})
	}
}

func TestRunIsDeterministic(t *testing.T) {
	input := randomText(rand.New(rand.NewPCG(1, 2)), 50)
	first, _, err := run(t, defaultOptions(4), nil, input)
	require.NoError(t, err)
	second, _, err := run(t, defaultOptions(4), nil, input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunInputShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"blank lines count", "\n\nzebra\n", "zebra 3\n"},
		{"no trailing newline", "ant\nbee", "ant 1\nbee 2\n"},
		{"crlf", "ant bee\r\nant\r\n", "ant 1, 2\nbee 1\n"},
		{"case folded", "The THE the\n", "the 1\n"},
		{"punctuation kept", "cat, cat.\n", "cat, 1\ncat. 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, defaultOptions(3), nil, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRunPreservesNonUTF8Bytes(t *testing.T) {
	out, _, err := run(t, defaultOptions(1), nil, "CAF\xc9 caf\xe9\nbar\xa0baz\n")
	require.NoError(t, err)
	assert.Equal(t, "bar\xa0baz 2\ncaf\xc9 1\ncaf\xe9 1\n", out)
	assert.NotContains(t, out, "\uFFFD")

	n, err := segment.Verify(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunBackpressure(t *testing.T) {
	opts := defaultOptions(2)
	opts.Indexer.ChannelCapacity = 1
	input := strings.Repeat("alpha beta zulu yankee\n", 500)

	out, sum, err := run(t, opts, nil, input)
	require.NoError(t, err)
	assert.Equal(t, referenceIndex(input), out)
	assert.Equal(t, 2000, sum.Tokens, "no message is dropped under backpressure")
}

func TestRunUnroutable(t *testing.T) {
	input := "ant 42 bee\n#tag cat\n"

	_, _, err := run(t, defaultOptions(2), nil, input)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnroutableWord)
	assert.Contains(t, err.Error(), "line 1")

	opts := defaultOptions(2)
	opts.Indexer.Unroutable = config.UnroutableSkip
	out, sum, err := run(t, opts, nil, input)
	require.NoError(t, err)
	assert.Equal(t, "ant 1\nbee 1\ncat 2\n", out)
	assert.Equal(t, 2, sum.Skipped)
}

func TestRunWordTooLong(t *testing.T) {
	opts := defaultOptions(1)
	opts.Indexer.MaxWordLength = 4
	_, _, err := run(t, opts, nil, "ant\nelephant\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrWordTooLong)
	assert.Contains(t, err.Error(), "line 2")
}

// failingStore refuses to create the artifact of one worker.
type failingStore struct {
	artifact.Store
	worker int
}

func (s failingStore) Create(ctx context.Context, worker int) (io.WriteCloser, error) {
	if worker == s.worker {
		return nil, fmt.Errorf("%w: disk full", apperrors.ErrIO)
	}
	return s.Store.Create(ctx, worker)
}

func TestRunWorkerFailureAbort(t *testing.T) {
	store := failingStore{Store: newFileStore(t), worker: 1}
	out, sum, err := run(t, defaultOptions(5), store, "ant\nfig\nzoo\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrWorkerFailed)
	assert.ErrorIs(t, err, apperrors.ErrIO)
	assert.Empty(t, out)
	assert.Equal(t, []int{1}, sum.FailedWorkers)

	for w := 0; w < 5; w++ {
		_, err := store.Open(context.Background(), w)
		assert.ErrorIs(t, err, apperrors.ErrArtifactNotFound, "worker %d artifact left behind", w)
	}
}

func TestRunWorkerFailurePartial(t *testing.T) {
	opts := defaultOptions(5)
	opts.Indexer.FailurePolicy = config.FailurePolicyPartial
	store := failingStore{Store: newFileStore(t), worker: 1}

	out, sum, err := run(t, opts, store, "ant\nfig\nzoo\n")
	require.NoError(t, err)
	assert.Equal(t, "ant 1\nzoo 3\n", out)
	assert.Equal(t, []int{1}, sum.FailedWorkers)
}

// slowReader yields its content only after a delay.
type slowReader struct {
	delay time.Duration
	r     io.Reader
	slept bool
}

func (s *slowReader) Read(p []byte) (int, error) {
	if !s.slept {
		time.Sleep(s.delay)
		s.slept = true
	}
	return s.r.Read(p)
}

func TestRunIdleTimeout(t *testing.T) {
	opts := defaultOptions(1)
	opts.Indexer.IdleTimeout = 20 * time.Millisecond
	p, err := New(opts, newFileStore(t), nil)
	require.NoError(t, err)

	in := &slowReader{delay: 300 * time.Millisecond, r: strings.NewReader("ant\nbee\n")}
	var out bytes.Buffer
	_, err = p.Run(context.Background(), in, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrWorkerFailed)
	assert.ErrorIs(t, err, apperrors.ErrIdleTimeout)
	assert.Empty(t, out.String())
}

func TestRunCancelled(t *testing.T) {
	p, err := New(defaultOptions(3), newFileStore(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	_, err = p.Run(ctx, strings.NewReader("ant bee\n"), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSendFailed)
	assert.Equal(t, apperrors.ExitCommunication, apperrors.ExitCode(err))
	assert.Empty(t, out.String())
}

func TestRunRemovesArtifacts(t *testing.T) {
	store := newFileStore(t)
	_, _, err := run(t, defaultOptions(3), store, "ant\nmoth\nzoo\n")
	require.NoError(t, err)
	for w := 0; w < 3; w++ {
		_, err := store.Open(context.Background(), w)
		assert.ErrorIs(t, err, apperrors.ErrArtifactNotFound)
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	opts := defaultOptions(5)
	opts.Indexer.Unroutable = config.UnroutableSkip
	p, err := New(opts, newFileStore(t), m)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = p.Run(context.Background(), strings.NewReader("ant zoo 9lives\nant\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesReadTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRoutedTotal.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRoutedTotal.WithLabelValues("4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnroutableWordsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerEntries.WithLabelValues("4")))
	assert.Equal(t, float64(out.Len()), testutil.ToFloat64(m.MergeBytesTotal))
	count, err := testutil.GatherAndCount(reg, "indexgen_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewValidates(t *testing.T) {
	store := newFileStore(t)
	for _, n := range []int{0, 6, -1} {
		_, err := New(defaultOptions(n), store, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidWorkerCount)
		assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
	}

	opts := defaultOptions(2)
	opts.Indexer.ChannelCapacity = 0
	_, err := New(opts, store, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	opts = defaultOptions(2)
	opts.Indexer.FailurePolicy = "retry"
	_, err = New(opts, store, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = New(defaultOptions(2), nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	p, err := New(Options{Workers: 1, Indexer: config.IndexerConfig{ChannelCapacity: 1}, RunID: "fixed"}, store, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", p.RunID())
}

func BenchmarkRun(b *testing.B) {
	input := randomText(rand.New(rand.NewPCG(3, 4)), 2000)
	store, err := artifact.NewFileStore(b.TempDir(), "bench")
	require.NoError(b, err)
	defer store.Close()
	p, err := New(defaultOptions(5), store, nil)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Run(context.Background(), strings.NewReader(input), io.Discard); err != nil {
			b.Fatal(err)
		}
	}
}
