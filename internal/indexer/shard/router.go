// Package shard assigns words to workers by their first letter. The table is
// monotonic: every letter owned by worker i sorts before every letter owned by
// worker i+1, which is what lets the merger concatenate worker output instead
// of merging it.
package shard

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

// AlphabetSize is the number of routable first letters, 'a' through 'z'.
const AlphabetSize = 26

// Table maps each lowercase ASCII letter to the worker that owns it.
type Table struct {
	owners  [AlphabetSize]int
	workers int
}

// Range is a contiguous block of letters owned by one worker.
type Range struct {
	Worker int
	First  byte
	Last   byte
}

func (r Range) String() string {
	return fmt.Sprintf("%c-%c", r.First, r.Last)
}

// Len returns the number of letters in the range.
func (r Range) Len() int {
	return int(r.Last-r.First) + 1
}

// NewTable builds the partition for n workers. Each worker takes
// AlphabetSize/n consecutive letters; the trailing AlphabetSize%n letters all
// go to the last worker, so it can own more than its share.
func NewTable(n int) (*Table, error) {
	if err := config.ValidateWorkers(n); err != nil {
		return nil, err
	}
	t := &Table{workers: n}
	step := AlphabetSize / n
	for i := 0; i < n; i++ {
		for j := 0; j < step; j++ {
			t.owners[i*step+j] = i
		}
	}
	for i := AlphabetSize % n; i > 0; i-- {
		t.owners[AlphabetSize-i] = n - 1
	}
	return t, nil
}

// Route returns the worker responsible for word. The word must already be
// lowercased; a first byte outside 'a'..'z' is reported as ErrUnroutableWord.
func (t *Table) Route(word string) (int, error) {
	if word == "" {
		return 0, fmt.Errorf("%w: empty word", apperrors.ErrUnroutableWord)
	}
	worker, ok := t.Owner(word[0])
	if !ok {
		return 0, fmt.Errorf("%w: %q does not start with a letter a-z", apperrors.ErrUnroutableWord, word)
	}
	return worker, nil
}

// Owner returns the worker owning the given letter.
func (t *Table) Owner(letter byte) (int, bool) {
	if letter < 'a' || letter > 'z' {
		return 0, false
	}
	return t.owners[letter-'a'], true
}

// Workers returns the number of workers the table was built for.
func (t *Table) Workers() int {
	return t.workers
}

// Ranges returns the letter blocks in alphabetical order.
func (t *Table) Ranges() []Range {
	ranges := make([]Range, 0, t.workers)
	for i := 0; i < AlphabetSize; i++ {
		letter := byte('a' + i)
		last := len(ranges) - 1
		if last >= 0 && ranges[last].Worker == t.owners[i] {
			ranges[last].Last = letter
			continue
		}
		ranges = append(ranges, Range{Worker: t.owners[i], First: letter, Last: letter})
	}
	return ranges
}
