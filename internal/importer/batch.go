package importer

// batch.go executes one batch of source rows inside a single database
// transaction. The batch is the unit of atomicity: row-level problems are
// recorded and skipped, but any database error rolls the whole batch back
// and surfaces as a batch-level error. Earlier committed batches are never
// affected.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/koffiyao/cartes/internal/audit"
	"github.com/koffiyao/cartes/internal/cards"
)

// maxRowErrorSample bounds how many row errors a batch result carries.
// The error count is always exact; only the detail list is sampled.
const maxRowErrorSample = 20

// batchProcessor drives batches for one import run.
type batchProcessor struct {
	registry Registry
	sink     audit.Sink
	mode     Mode
	batchID  uuid.UUID
	actor    string
	timeout  time.Duration

	// auditEvery throttles per-row journal entries: 1 journals every
	// materially changed row, N journals one in N. Used to bound journal
	// volume on memory-capped deployments.
	auditEvery int
	changed    int
}

// ProcessBatch runs all rows in order under one transaction with a
// wall-clock timeout. The returned result is valid even when err is non-nil,
// but in that case no row of this batch was persisted.
func (p *batchProcessor) ProcessBatch(ctx context.Context, rows []RawRow) (BatchResult, error) {
	var result BatchResult

	batchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := p.registry.InTx(batchCtx, func(tx RegistryTx) error {
		for _, row := range rows {
			if err := batchCtx.Err(); err != nil {
				return fmt.Errorf("batch aborted: %w", err)
			}
			if err := p.processRow(batchCtx, tx, row, &result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back: nothing from this batch persisted,
		// so the per-row counters no longer describe reality.
		return BatchResult{Errors: len(rows)}, err
	}

	return result, nil
}

// processRow classifies and persists one row. Validation failures are
// recorded on the result and return nil; only database errors propagate.
func (p *batchProcessor) processRow(ctx context.Context, tx RegistryTx, row RawRow, result *BatchResult) error {
	normalized := NormalizeRow(row.Values)

	if normalized.LastName == "" || normalized.FirstNames == "" {
		result.Errors++
		result.recordError(row.LineNumber, "missing required NOM or PRENOMS")
		return nil
	}

	existing, err := tx.FindExact(ctx, normalized.Key())
	if err != nil {
		return fmt.Errorf("line %d: %w", row.LineNumber, err)
	}

	if existing == nil {
		card := normalized.Card(p.batchID)
		if _, err := tx.Insert(ctx, card); err != nil {
			return fmt.Errorf("line %d: %w", row.LineNumber, err)
		}
		result.Imported++
		p.journalInsert(ctx, card)
		return nil
	}

	if p.mode == ModeInsertOnly {
		result.Duplicates++
		return nil
	}

	decision := Decide(existing, normalized)
	if !decision.ShouldUpdate() {
		result.Skipped++
		return nil
	}

	if err := tx.UpdateFields(ctx, existing.ID, decision.FieldsToUpdate); err != nil {
		return fmt.Errorf("line %d: %w", row.LineNumber, err)
	}
	result.Updated++
	p.journalUpdate(ctx, existing, decision)
	return nil
}

// recordError appends a bounded error detail.
func (b *BatchResult) recordError(line int, reason string) {
	if len(b.RowErrors) < maxRowErrorSample {
		b.RowErrors = append(b.RowErrors, RowError{LineNumber: line, Reason: reason})
	}
}

// journalInsert emits an audit entry for a newly created card, subject to
// throttling.
func (p *batchProcessor) journalInsert(ctx context.Context, c *cards.Card) {
	if !p.shouldJournal() {
		return
	}
	p.sink.LogAction(ctx, audit.Entry{
		Actor:     p.actor,
		Action:    audit.ActionImportInsert,
		TableName: "cartes",
		RecordID:  c.ID,
		NewValue: map[string]string{
			cards.ColLastName:   c.LastName,
			cards.ColFirstNames: c.FirstNames,
		},
		ImportBatchID: uuid.NullUUID{UUID: p.batchID, Valid: true},
	})
}

// journalUpdate emits an audit entry for a smart-sync update, subject to
// throttling. Old and new values cover only the changed fields.
func (p *batchProcessor) journalUpdate(ctx context.Context, existing *cards.Card, d Decision) {
	if !p.shouldJournal() {
		return
	}

	oldValues := make(map[string]string, len(d.FieldsToUpdate))
	for col := range d.FieldsToUpdate {
		oldValues[col] = existing.Field(col)
	}

	details := ""
	for i, line := range d.ChangeLog {
		if i > 0 {
			details += "; "
		}
		details += line
	}

	p.sink.LogAction(ctx, audit.Entry{
		Actor:         p.actor,
		Action:        audit.ActionImportUpdate,
		TableName:     "cartes",
		RecordID:      existing.ID,
		OldValue:      oldValues,
		NewValue:      d.FieldsToUpdate,
		ImportBatchID: uuid.NullUUID{UUID: p.batchID, Valid: true},
		Details:       details,
	})
}

// shouldJournal applies the audit throttle. The counter spans batches so a
// throttle of N journals one row in N across the whole import.
func (p *batchProcessor) shouldJournal() bool {
	p.changed++
	if p.auditEvery <= 1 {
		return true
	}
	return p.changed%p.auditEvery == 1
}
