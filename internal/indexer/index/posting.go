package index

import (
	"slices"
	"sort"
)

// WordEntry is one word and the lines it appears on. Lines is kept strictly
// ascending at all times.
type WordEntry struct {
	Word  string
	Lines []int
}

// AddLine inserts line at its sorted position. It reports false when the line
// is already present.
func (e *WordEntry) AddLine(line int) bool {
	i := sort.SearchInts(e.Lines, line)
	if i < len(e.Lines) && e.Lines[i] == line {
		return false
	}
	e.Lines = slices.Insert(e.Lines, i, line)
	return true
}
