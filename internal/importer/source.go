package importer

// source.go abstracts the two supported file formats behind a row cursor.
// CSV files are parsed record-at-a-time from a cleaned stream; XLSX files
// use the spreadsheet library's streaming row iterator. Neither path ever
// materializes the whole file.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for file extensions the importer does
// not understand.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// RowSource is a forward-only cursor over a source file. Headers is valid
// after opening; Next returns io.EOF at end of data.
type RowSource interface {
	Headers() []string
	Next() ([]string, error)
	Close() error
}

// openSource opens path with the parser matching its extension.
func openSource(path string) (RowSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return openCSVSource(path)
	case ".xlsx":
		return openXLSXSource(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ----------------------------------------------------------------------------
// CSV
// ----------------------------------------------------------------------------

type csvSource struct {
	file    *os.File
	reader  *csv.Reader
	counter *countingReader
	headers []string
	size    int64
}

func openCSVSource(path string) (*csvSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}

	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}

	stream, counter := wrapTextStream(file)
	reader := csv.NewReader(stream)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}

	return &csvSource{
		file:    file,
		reader:  reader,
		counter: counter,
		headers: headers,
		size:    size,
	}, nil
}

func (s *csvSource) Headers() []string { return s.headers }

func (s *csvSource) Next() ([]string, error) {
	for {
		record, err := s.reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			// Structurally broken line: surface as a row error, keep going.
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, &RowParseError{Line: parseErr.Line, Err: err}
			}
			return nil, err
		}
		if isBlank(record) {
			continue
		}
		return record, nil
	}
}

func (s *csvSource) Close() error { return s.file.Close() }

// bytesRead reports stream progress for size-based row estimation.
func (s *csvSource) bytesRead() int64 { return s.counter.BytesRead() }

// fileSize is the total source size in bytes (0 when unknown).
func (s *csvSource) fileSize() int64 { return s.size }

// RowParseError marks a single structurally-malformed row. The pipeline
// records it and continues; it never aborts the import.
type RowParseError struct {
	Line int
	Err  error
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("malformed row at line %d: %v", e.Line, e.Err)
}

func (e *RowParseError) Unwrap() error { return e.Err }

// ----------------------------------------------------------------------------
// XLSX
// ----------------------------------------------------------------------------

type xlsxSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

func openXLSXSource(path string) (*xlsxSource, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheets[0], err)
	}

	if !rows.Next() {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("empty sheet")
	}
	headers, err := rows.Columns()
	if err != nil {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}

	return &xlsxSource{file: file, rows: rows, headers: headers}, nil
}

func (s *xlsxSource) Headers() []string { return s.headers }

func (s *xlsxSource) Next() ([]string, error) {
	for s.rows.Next() {
		record, err := s.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(record) {
			continue
		}
		return record, nil
	}
	if err := s.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *xlsxSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}

// isBlank reports whether every cell of a record is empty after trimming.
func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
