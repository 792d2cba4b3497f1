// Package reader tails a JSONL events file, tracking a byte offset so
// repeated polls only parse newly-appended bytes.
package reader

import (
	"bytes"
	"fmt"
	"os"

	"github.com/steveyegge/ralph/internal/events"
)

// Reader tails path, parsing whole lines as they are appended.
// Incomplete trailing lines (no newline yet) are held back: their bytes
// are not consumed from the offset until a newline arrives.
type Reader struct {
	path       string
	offset     int64
	lineNumber int
}

// New returns a Reader starting at offset 0.
func New(path string) *Reader {
	return &Reader{path: path}
}

// Offset reports the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.offset }

// Poll reads all bytes appended since the last poll, parses whole
// lines, and advances the offset past exactly the lines it consumed.
// If the file is missing, Poll returns an empty result without error
// (nothing has been written yet). If the file has shrunk below the
// reader's offset (truncated out from underneath, e.g. by --continue
// rotation), the offset resets to 0 and the whole file is re-read.
func (r *Reader) Poll() (events.ParseResult, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return events.ParseResult{}, nil
		}
		return events.ParseResult{}, fmt.Errorf("reader: opening %s: %w", r.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return events.ParseResult{}, fmt.Errorf("reader: stat %s: %w", r.path, err)
	}
	if info.Size() < r.offset {
		r.offset = 0
		r.lineNumber = 0
	}

	if _, err := f.Seek(r.offset, 0); err != nil {
		return events.ParseResult{}, fmt.Errorf("reader: seek %s: %w", r.path, err)
	}

	chunk := make([]byte, info.Size()-r.offset)
	if len(chunk) == 0 {
		return events.ParseResult{}, nil
	}
	if _, err := readFull(f, chunk); err != nil {
		return events.ParseResult{}, fmt.Errorf("reader: reading %s: %w", r.path, err)
	}

	lastNewline := bytes.LastIndexByte(chunk, '\n')
	if lastNewline < 0 {
		// No complete line yet; leave the offset untouched.
		return events.ParseResult{}, nil
	}

	complete := chunk[:lastNewline]
	lines := splitLines(complete)

	result := events.ParseLines(lines, r.lineNumber)
	r.lineNumber += len(lines)
	r.offset += int64(lastNewline) + 1

	return result, nil
}

func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.Split(b, []byte{'\n'})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
