package index

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

// WorkerIndex is the word -> lines index built by a single worker. It is owned
// by that worker's goroutine and is not safe for concurrent use.
type WorkerIndex struct {
	entries map[string]*WordEntry
	refs    int
}

func NewWorkerIndex() *WorkerIndex {
	return &WorkerIndex{
		entries: make(map[string]*WordEntry),
	}
}

// Add records that word occurs on line. Line numbers start at 1.
func (x *WorkerIndex) Add(word string, line int) error {
	if line < 1 {
		return fmt.Errorf("%w: line number %d for %q", apperrors.ErrInvalidInput, line, word)
	}
	e, exists := x.entries[word]
	if !exists {
		x.entries[word] = &WordEntry{
			Word:  word,
			Lines: []int{line},
		}
		x.refs++
		return nil
	}
	if e.AddLine(line) {
		x.refs++
	}
	return nil
}

// Sorted returns the entries ordered by the raw bytes of the word.
func (x *WorkerIndex) Sorted() []WordEntry {
	entries := make([]WordEntry, 0, len(x.entries))
	for _, e := range x.entries {
		entries = append(entries, WordEntry{
			Word:  e.Word,
			Lines: append([]int(nil), e.Lines...),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Word < entries[j].Word
	})
	return entries
}

// Len returns the number of distinct words.
func (x *WorkerIndex) Len() int {
	return len(x.entries)
}

// Refs returns the number of distinct (word, line) pairs.
func (x *WorkerIndex) Refs() int {
	return x.refs
}

func (x *WorkerIndex) Reset() {
	x.entries = make(map[string]*WordEntry)
	x.refs = 0
}
