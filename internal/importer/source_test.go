package importer

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, src RowSource) [][]string {
	t.Helper()
	var rows [][]string
	for {
		record, err := src.Next()
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, record)
	}
}

func TestOpenSourceUnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "data.pdf", "whatever")
	_, err := openSource(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestCSVSourceBasics(t *testing.T) {
	path := writeTempFile(t, "data.csv",
		"NOM,PRENOMS,CONTACT\n"+
			"Kouame,Jean,07123456\n"+
			"Traore,Awa,05998877\n")

	src, err := openSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	headers := src.Headers()
	if len(headers) != 3 || headers[0] != "NOM" {
		t.Errorf("headers = %v", headers)
	}

	rows := readAll(t, src)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1][0] != "Traore" {
		t.Errorf("row 2 = %v", rows[1])
	}
}

func TestCSVSourceSkipsBOM(t *testing.T) {
	path := writeTempFile(t, "data.csv", "\xef\xbb\xbfNOM,PRENOMS\nKouame,Jean\n")

	src, err := openSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if got := src.Headers()[0]; got != "NOM" {
		t.Errorf("first header = %q, BOM not stripped", got)
	}
}

func TestCSVSourceSkipsBlankRows(t *testing.T) {
	path := writeTempFile(t, "data.csv",
		"NOM,PRENOMS\n"+
			"Kouame,Jean\n"+
			",\n"+
			"   ,\n"+
			"Traore,Awa\n")

	src, err := openSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	rows := readAll(t, src)
	if len(rows) != 2 {
		t.Errorf("rows = %d, want blank lines skipped", len(rows))
	}
}

func TestCSVSourceRaggedRows(t *testing.T) {
	path := writeTempFile(t, "data.csv",
		"NOM,PRENOMS,CONTACT\n"+
			"Kouame,Jean\n"+
			"Traore,Awa,05998877,extra\n")

	src, err := openSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	rows := readAll(t, src)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want ragged rows tolerated", len(rows))
	}
	if len(rows[0]) != 2 || len(rows[1]) != 4 {
		t.Errorf("row widths = %d, %d", len(rows[0]), len(rows[1]))
	}
}

func TestCSVSourceInvalidUTF8Sanitized(t *testing.T) {
	path := writeTempFile(t, "data.csv", "NOM,PRENOMS\nKou\xffame,Jean\n")

	src, err := openSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	rows := readAll(t, src)
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "Kou?ame" {
		t.Errorf("invalid byte not replaced: %q", rows[0][0])
	}
}

func TestCSVSourceEmptyFile(t *testing.T) {
	path := writeTempFile(t, "data.csv", "")
	if _, err := openSource(path); err == nil {
		t.Error("expected an error for an empty file")
	}
}

func TestCSVSourceBytesReadAdvances(t *testing.T) {
	path := writeTempFile(t, "data.csv",
		"NOM,PRENOMS\nKouame,Jean\nTraore,Awa\n")

	src, err := openCSVSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.fileSize() == 0 {
		t.Error("fileSize = 0")
	}

	before := src.bytesRead()
	if _, err := src.Next(); err != nil {
		t.Fatal(err)
	}
	if src.bytesRead() <= 0 || src.bytesRead() < before {
		t.Errorf("bytesRead did not advance: %d -> %d", before, src.bytesRead())
	}
}
