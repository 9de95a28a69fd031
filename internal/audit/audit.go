// Package audit provides the journal sink consumed by the import engine and
// the CRUD surface. Writes are fire-and-forget: a failing journal must never
// abort the operation that produced the entry.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/koffiyao/cartes/internal/database"
)

// Action identifies the kind of journaled operation.
type Action string

const (
	ActionImportInsert Action = "import_insert"
	ActionImportUpdate Action = "import_update"
	ActionImportRun    Action = "import_run"
	ActionCardUpdate   Action = "card_update"
)

// Entry is one journal record.
type Entry struct {
	Actor         string
	Action        Action
	TableName     string
	RecordID      int64
	OldValue      map[string]string
	NewValue      map[string]string
	ImportBatchID uuid.NullUUID
	Details       string
}

// Sink accepts journal entries. LogAction never returns an error; sinks
// handle their own failures.
type Sink interface {
	LogAction(ctx context.Context, e Entry)
}

// Journal writes entries to the journal table.
type Journal struct {
	db database.DBTX
}

// NewJournal creates a Postgres-backed journal sink.
func NewJournal(db database.DBTX) *Journal {
	return &Journal{db: db}
}

// LogAction inserts one journal row. Failures are logged and swallowed.
func (j *Journal) LogAction(ctx context.Context, e Entry) {
	query := `INSERT INTO journal
		(actor, action_type, table_name, record_id, old_value, new_value, import_batch_id, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	var recordID interface{}
	if e.RecordID != 0 {
		recordID = e.RecordID
	}

	var batchID pgtype.UUID
	if e.ImportBatchID.Valid {
		batchID = pgtype.UUID{Bytes: e.ImportBatchID.UUID, Valid: true}
	}

	_, err := j.db.Exec(ctx, query,
		e.Actor, string(e.Action), e.TableName, recordID,
		marshalValues(e.OldValue), marshalValues(e.NewValue),
		batchID, e.Details,
	)
	if err != nil {
		slog.Warn("journal write failed",
			"action", e.Action,
			"table", e.TableName,
			"record_id", e.RecordID,
			"error", err,
		)
	}
}

// marshalValues renders a field map as JSONB input, nil for empty.
func marshalValues(m map[string]string) []byte {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

// Discard is a Sink that drops all entries. Used in tests and as the default
// when no journal is configured.
type Discard struct{}

// LogAction implements Sink.
func (Discard) LogAction(context.Context, Entry) {}
