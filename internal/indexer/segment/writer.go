// Package segment reads and writes the text form of an index: one line per
// word, "word line1, line2, ..., lineK", words in ascending byte order. Worker
// artifacts and the final merged output share this format.
package segment

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/index"
)

const (
	wordSeparator = " "
	lineSeparator = ", "
)

// Writer serialises sorted word entries.
type Writer struct {
	bw      *bufio.Writer
	entries int
	bytes   int64
}

// NewWriter wraps w in a buffered segment writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteEntry appends one formatted entry.
func (w *Writer) WriteEntry(e index.WordEntry) error {
	if len(e.Lines) == 0 {
		return fmt.Errorf("entry %q has no lines", e.Word)
	}
	buf := AppendEntry(make([]byte, 0, len(e.Word)+8*len(e.Lines)), e)
	n, err := w.bw.Write(buf)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("writing entry %q: %w", e.Word, err)
	}
	w.entries++
	return nil
}

// Write appends every entry in order.
func (w *Writer) Write(entries []index.WordEntry) error {
	for _, e := range entries {
		if err := w.WriteEntry(e); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flushing segment: %w", err)
	}
	return nil
}

// Entries returns the number of entries written so far.
func (w *Writer) Entries() int {
	return w.entries
}

// Bytes returns the number of bytes written so far.
func (w *Writer) Bytes() int64 {
	return w.bytes
}

// AppendEntry appends the line for e, including the trailing newline.
func AppendEntry(dst []byte, e index.WordEntry) []byte {
	dst = append(dst, e.Word...)
	dst = append(dst, wordSeparator...)
	for i, line := range e.Lines {
		if i > 0 {
			dst = append(dst, lineSeparator...)
		}
		dst = strconv.AppendInt(dst, int64(line), 10)
	}
	return append(dst, '\n')
}

// FormatEntry returns the line for e without the trailing newline.
func FormatEntry(e index.WordEntry) string {
	b := AppendEntry(nil, e)
	return string(b[:len(b)-1])
}
