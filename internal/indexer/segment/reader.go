package segment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

// ParseLine parses a single index line (without its newline).
func ParseLine(line string) (index.WordEntry, error) {
	word, rest, ok := strings.Cut(line, wordSeparator)
	if !ok || word == "" || rest == "" {
		return index.WordEntry{}, fmt.Errorf("%w: malformed index line %q", apperrors.ErrInvalidInput, line)
	}
	fields := strings.Split(rest, lineSeparator)
	lines := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 {
			return index.WordEntry{}, fmt.Errorf("%w: bad line number %q for %q", apperrors.ErrInvalidInput, f, word)
		}
		if len(lines) > 0 && n <= lines[len(lines)-1] {
			return index.WordEntry{}, fmt.Errorf("%w: line numbers for %q not strictly ascending", apperrors.ErrInvalidInput, word)
		}
		lines = append(lines, n)
	}
	return index.WordEntry{Word: word, Lines: lines}, nil
}

// ReadEntries parses r line by line and calls fn for every entry.
func ReadEntries(r io.Reader, fn func(index.WordEntry) error) error {
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			e, perr := ParseLine(strings.TrimSuffix(raw, "\n"))
			if perr != nil {
				return perr
			}
			if ferr := fn(e); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading index: %v", apperrors.ErrIO, err)
		}
	}
}

// Verify checks that r holds a well-formed index whose words are strictly
// ascending. It returns the number of entries.
func Verify(r io.Reader) (int, error) {
	count := 0
	prev := ""
	err := ReadEntries(r, func(e index.WordEntry) error {
		if count > 0 && e.Word <= prev {
			return fmt.Errorf("%w: entry %d %q does not sort after %q",
				apperrors.ErrInvalidInput, count+1, e.Word, prev)
		}
		prev = e.Word
		count++
		return nil
	})
	return count, err
}

type dictEntry struct {
	word   string
	offset int64
	length int
}

// Reader answers word lookups against a sorted index file by binary search
// over an in-memory dictionary of line offsets.
type Reader struct {
	file     *os.File
	filePath string
	dict     []dictEntry
}

// OpenReader scans the file at path once to build its dictionary. The file
// must be sorted; an out-of-order entry is an error.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening index file: %v", apperrors.ErrIO, err)
	}
	br := bufio.NewReader(f)
	var dict []dictEntry
	var offset int64
	for {
		raw, rerr := br.ReadString('\n')
		if raw != "" {
			word, _, _ := strings.Cut(raw, wordSeparator)
			if n := len(dict); n > 0 && word <= dict[n-1].word {
				f.Close()
				return nil, fmt.Errorf("%w: index file %s not sorted at %q", apperrors.ErrInvalidInput, path, word)
			}
			dict = append(dict, dictEntry{
				word:   word,
				offset: offset,
				length: len(strings.TrimSuffix(raw, "\n")),
			})
			offset += int64(len(raw))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			f.Close()
			return nil, fmt.Errorf("%w: reading index file: %v", apperrors.ErrIO, rerr)
		}
	}
	return &Reader{
		file:     f,
		filePath: path,
		dict:     dict,
	}, nil
}

// Search returns the entry for word, or false when the word is absent.
func (r *Reader) Search(word string) (index.WordEntry, bool, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].word >= word
	})
	if idx >= len(r.dict) || r.dict[idx].word != word {
		return index.WordEntry{}, false, nil
	}
	entry := r.dict[idx]
	buf := make([]byte, entry.length)
	if _, err := r.file.ReadAt(buf, entry.offset); err != nil {
		return index.WordEntry{}, false, fmt.Errorf("%w: reading entry %q: %v", apperrors.ErrIO, word, err)
	}
	e, err := ParseLine(string(buf))
	if err != nil {
		return index.WordEntry{}, false, err
	}
	return e, true, nil
}

// Len returns the number of words in the file.
func (r *Reader) Len() int {
	return len(r.dict)
}

func (r *Reader) Close() error {
	return r.file.Close()
}
