// Package importer implements the bulk import/synchronization engine of the
// card registry: streaming file ingestion, row normalization, duplicate
// resolution, smart-sync merging, batched transactional persistence and
// import-session tracking.
package importer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/koffiyao/cartes/internal/cards"
)

// Mode selects how rows that match an existing card are handled.
type Mode string

const (
	// ModeSmartSync merges qualifying fields into the existing card.
	ModeSmartSync Mode = "smart"

	// ModeInsertOnly treats any match as a duplicate to ignore.
	ModeInsertOnly Mode = "insert"
)

// RawRow is one parsed line of the source file keyed by canonical column.
type RawRow struct {
	LineNumber int
	Values     map[string]string
}

// NormalizedRow is the cleaned, type-coerced form of a source row.
// A zero BirthDate or DeliveryDate means the source had no parsable value.
type NormalizedRow struct {
	EnrollmentLocation     string
	WithdrawalSite         string
	StorageLocation        string
	LastName               string
	FirstNames             string
	BirthDate              time.Time
	BirthPlace             string
	ContactPhone           string
	DeliveryStatus         string
	WithdrawalContactPhone string
	DeliveryDate           time.Time
}

// Key returns the identity tuple used for exact matching.
func (r NormalizedRow) Key() cards.MatchKey {
	return cards.MatchKey{
		LastName:   r.LastName,
		FirstNames: r.FirstNames,
		BirthDate:  r.BirthDate,
		BirthPlace: r.BirthPlace,
	}
}

// Field returns the normalized value for a canonical column as a string,
// dates in ISO format and "" for null.
func (r NormalizedRow) Field(col string) string {
	switch col {
	case cards.ColEnrollmentLocation:
		return r.EnrollmentLocation
	case cards.ColWithdrawalSite:
		return r.WithdrawalSite
	case cards.ColStorageLocation:
		return r.StorageLocation
	case cards.ColLastName:
		return r.LastName
	case cards.ColFirstNames:
		return r.FirstNames
	case cards.ColBirthDate:
		return formatDate(r.BirthDate)
	case cards.ColBirthPlace:
		return r.BirthPlace
	case cards.ColContactPhone:
		return r.ContactPhone
	case cards.ColDeliveryStatus:
		return r.DeliveryStatus
	case cards.ColWithdrawalContactPhone:
		return r.WithdrawalContactPhone
	case cards.ColDeliveryDate:
		return formatDate(r.DeliveryDate)
	default:
		return ""
	}
}

// Card builds a new card from the normalized row, tagged with the import
// batch id.
func (r NormalizedRow) Card(batchID uuid.UUID) *cards.Card {
	return &cards.Card{
		EnrollmentLocation:     r.EnrollmentLocation,
		WithdrawalSite:         r.WithdrawalSite,
		StorageLocation:        r.StorageLocation,
		LastName:               r.LastName,
		FirstNames:             r.FirstNames,
		BirthDate:              r.BirthDate,
		BirthPlace:             r.BirthPlace,
		ContactPhone:           r.ContactPhone,
		DeliveryStatus:         r.DeliveryStatus,
		WithdrawalContactPhone: r.WithdrawalContactPhone,
		DeliveryDate:           r.DeliveryDate,
		ImportBatchID:          uuid.NullUUID{UUID: batchID, Valid: true},
	}
}

// RowError describes one rejected source row.
type RowError struct {
	LineNumber int    `json:"lineNumber"`
	Reason     string `json:"reason"`
}

// BatchResult aggregates the outcome of one batch transaction.
type BatchResult struct {
	Imported   int
	Updated    int
	Duplicates int
	Skipped    int
	Errors     int
	RowErrors  []RowError
}

// Add accumulates another batch's counters into this result.
func (b *BatchResult) Add(o BatchResult) {
	b.Imported += o.Imported
	b.Updated += o.Updated
	b.Duplicates += o.Duplicates
	b.Skipped += o.Skipped
	b.Errors += o.Errors
	b.RowErrors = append(b.RowErrors, o.RowErrors...)
}

// Rows returns how many rows the result accounts for.
func (b BatchResult) Rows() int {
	return b.Imported + b.Updated + b.Duplicates + b.Skipped + b.Errors
}

// Registry is what the batch processor needs from the record store.
// Implemented by the cards package over PostgreSQL and by fakes in tests.
type Registry interface {
	// InTx runs fn inside one transaction; a non-nil error from fn rolls the
	// whole transaction back.
	InTx(ctx context.Context, fn func(tx RegistryTx) error) error
}

// RegistryTx is the per-transaction record store surface.
type RegistryTx interface {
	FindExact(ctx context.Context, key cards.MatchKey) (*cards.Card, error)
	Insert(ctx context.Context, c *cards.Card) (int64, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]string) error
}

// Events carries the pipeline's lifecycle callbacks. Any field may be nil.
// Callbacks run on the import worker goroutine; they must be fast.
type Events struct {
	OnProgress      func(done, total int)
	OnBatchComplete func(batch int, r BatchResult)
	OnBatchError    func(batch int, err error)
	OnWarning       func(msg string)
}

func (e Events) progress(done, total int) {
	if e.OnProgress != nil {
		e.OnProgress(done, total)
	}
}

func (e Events) batchComplete(batch int, r BatchResult) {
	if e.OnBatchComplete != nil {
		e.OnBatchComplete(batch, r)
	}
}

func (e Events) batchError(batch int, err error) {
	if e.OnBatchError != nil {
		e.OnBatchError(batch, err)
	}
}

func (e Events) warning(msg string) {
	if e.OnWarning != nil {
		e.OnWarning(msg)
	}
}

// formatDate renders a date in canonical ISO format, "" for zero.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
