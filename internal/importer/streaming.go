package importer

// streaming.go provides the io.Reader wrappers the CSV path is built on.
// Source files come from field laptops and old Windows exports, so the
// stream is cleaned on the fly without ever buffering the whole file:
//
//   - a UTF-8 BOM is skipped when present
//   - invalid UTF-8 bytes are replaced with '?'
//   - bytes read are counted for progress and row-size estimation

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// countingReader tracks bytes consumed from the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (c *countingReader) BytesRead() int64 {
	return c.n
}

// utf8CleaningReader replaces invalid UTF-8 sequences with '?' as data
// streams through. Up to three trailing bytes are held back between reads in
// case they begin a multi-byte rune that completes in the next chunk.
type utf8CleaningReader struct {
	r       io.Reader
	pending []byte
	eof     bool
}

func newUTF8CleaningReader(r io.Reader) *utf8CleaningReader {
	return &utf8CleaningReader{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (u *utf8CleaningReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Replay held-back bytes before reading more.
	off := copy(p, u.pending)
	u.pending = u.pending[:0]

	n, err := u.r.Read(p[off:])
	n += off
	if err == io.EOF {
		u.eof = true
	}
	if n == 0 {
		return 0, err
	}

	out := u.clean(p[:n])
	if out == 0 && err == nil {
		// Everything got held back; try again for more bytes.
		return u.Read(p)
	}
	return out, err
}

// clean sanitizes data in place and returns the number of output bytes.
// Incomplete trailing sequences are moved to pending unless the stream has
// ended, in which case they are invalid and replaced.
func (u *utf8CleaningReader) clean(data []byte) int {
	w := 0
	for i := 0; i < len(data); {
		b := data[i]
		if b < utf8.RuneSelf {
			data[w] = b
			w++
			i++
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		if r != utf8.RuneError || size > 1 {
			copy(data[w:], data[i:i+size])
			w += size
			i += size
			continue
		}

		if !u.eof && i+utf8.UTFMax > len(data) && startsRune(data[i:]) {
			u.pending = append(u.pending, data[i:]...)
			return w
		}

		// Replacement is single-byte so cleaning never grows the data.
		data[w] = '?'
		w++
		i++
	}
	return w
}

// startsRune reports whether data could be the beginning of a multi-byte
// rune that is simply cut off by the chunk boundary.
func startsRune(data []byte) bool {
	if len(data) == 0 || data[0] < 0xC2 {
		return false
	}
	want := 2
	switch {
	case data[0] >= 0xF0:
		want = 4
	case data[0] >= 0xE0:
		want = 3
	}
	if len(data) >= want {
		return false
	}
	for _, b := range data[1:] {
		if b&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// wrapTextStream prepares a raw file stream for CSV parsing: BOM skip, then
// UTF-8 cleaning, with byte counting innermost so it sees the true file
// offset. Returns the reader to parse from and the counter.
func wrapTextStream(r io.Reader) (io.Reader, *countingReader) {
	counter := &countingReader{r: r}
	buffered := bufio.NewReaderSize(counter, 32*1024)

	// A UTF-8 BOM (EF BB BF) is common on files saved from Windows tools.
	if lead, err := buffered.Peek(3); err == nil &&
		lead[0] == 0xEF && lead[1] == 0xBB && lead[2] == 0xBF {
		_, _ = buffered.Discard(3)
	}

	return newUTF8CleaningReader(buffered), counter
}
