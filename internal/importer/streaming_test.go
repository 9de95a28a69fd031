package importer

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// chunkReader returns data in fixed-size chunks to exercise boundary
// handling.
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestUTF8CleaningReaderPassesValidText(t *testing.T) {
	in := "Kouamé, N'Guessan, Aïcha"
	out, err := io.ReadAll(newUTF8CleaningReader(strings.NewReader(in)))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != in {
		t.Errorf("valid text altered: %q", out)
	}
}

func TestUTF8CleaningReaderReplacesInvalidBytes(t *testing.T) {
	out, err := io.ReadAll(newUTF8CleaningReader(bytes.NewReader([]byte("Kou\xffam\xfee"))))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Kou?am?e" {
		t.Errorf("got %q, want Kou?am?e", out)
	}
}

func TestUTF8CleaningReaderRuneSplitAcrossChunks(t *testing.T) {
	// "é" is C3 A9; a 4-byte chunk size splits it after "Kou".
	in := []byte("Kou\xc3\xa9am\xc3\xa9")
	out, err := io.ReadAll(newUTF8CleaningReader(&chunkReader{data: in, size: 4}))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Kouéamé" {
		t.Errorf("split rune mangled: %q", out)
	}
}

func TestUTF8CleaningReaderTruncatedRuneAtEOF(t *testing.T) {
	// A lead byte with no continuation at end of stream is invalid.
	out, err := io.ReadAll(newUTF8CleaningReader(bytes.NewReader([]byte("abc\xc3"))))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "abc?" {
		t.Errorf("got %q, want abc?", out)
	}
}

func TestWrapTextStreamSkipsBOM(t *testing.T) {
	r, counter := wrapTextStream(strings.NewReader("\xef\xbb\xbfNOM\n"))
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "NOM\n" {
		t.Errorf("got %q", out)
	}
	if counter.BytesRead() != 7 {
		t.Errorf("BytesRead = %d, want 7 including the BOM", counter.BytesRead())
	}
}

func TestWrapTextStreamNoBOM(t *testing.T) {
	r, _ := wrapTextStream(strings.NewReader("NOM\n"))
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "NOM\n" {
		t.Errorf("got %q", out)
	}
}
