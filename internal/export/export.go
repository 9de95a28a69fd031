// Package export renders the card registry as downloadable CSV or XLSX
// files. Column labels match the import header vocabulary, so an exported
// file re-imports cleanly as a no-op.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/koffiyao/cartes/internal/cards"
)

// Source is the read surface the exporter needs. Satisfied by
// *cards.Queries.
type Source interface {
	ForEach(ctx context.Context, fn func(*cards.Card) error) error
}

// Exporter streams registry exports.
type Exporter struct {
	src Source
}

// New creates an exporter over a card source.
func New(src Source) *Exporter {
	return &Exporter{src: src}
}

// headers is the export column order. These are the canonical French labels
// the import side recognizes.
var headers = []string{
	"NOM",
	"PRENOMS",
	"DATE DE NAISSANCE",
	"LIEU DE NAISSANCE",
	"LIEU D'ENROLEMENT",
	"SITE DE RETRAIT",
	"LIEU DE STOCKAGE",
	"CONTACT",
	"DELIVRANCE",
	"CONTACT DE RETRAIT",
	"DATE DE DELIVRANCE",
}

// exportColumns maps header positions to canonical columns.
var exportColumns = []string{
	cards.ColLastName,
	cards.ColFirstNames,
	cards.ColBirthDate,
	cards.ColBirthPlace,
	cards.ColEnrollmentLocation,
	cards.ColWithdrawalSite,
	cards.ColStorageLocation,
	cards.ColContactPhone,
	cards.ColDeliveryStatus,
	cards.ColWithdrawalContactPhone,
	cards.ColDeliveryDate,
}

// record renders one card in export column order.
func record(c *cards.Card) []string {
	row := make([]string, len(exportColumns))
	for i, col := range exportColumns {
		row[i] = c.Field(col)
	}
	return row
}

// CSV streams the registry as UTF-8 CSV with a BOM, so spreadsheet tools
// pick up accented names correctly. Returns the number of data rows written.
func (e *Exporter) CSV(ctx context.Context, w io.Writer) (int64, error) {
	if _, err := w.Write([]byte("\xef\xbb\xbf")); err != nil {
		return 0, fmt.Errorf("write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	var rows int64
	err := e.src.ForEach(ctx, func(c *cards.Card) error {
		if err := cw.Write(record(c)); err != nil {
			return fmt.Errorf("write row %d: %w", c.ID, err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}

// XLSX streams the registry as a single-sheet workbook. Returns the number
// of data rows written.
func (e *Exporter) XLSX(ctx context.Context, w io.Writer) (int64, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	var rows int64
	err = e.src.ForEach(ctx, func(c *cards.Card) error {
		cells := make([]interface{}, len(exportColumns))
		for i, col := range exportColumns {
			cells[i] = c.Field(col)
		}
		cell, err := excelize.CoordinatesToCellName(1, int(rows)+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write row %d: %w", c.ID, err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	if err := sw.Flush(); err != nil {
		return rows, fmt.Errorf("flush workbook: %w", err)
	}
	if err := f.Write(w); err != nil {
		return rows, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}
