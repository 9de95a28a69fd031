package importer

// merge.go is the smart-sync merge policy: given an existing card and a
// normalized incoming row, decide per field what may change. This is the
// core business rule of the registry and the table below is contractual:
//
//	delivery_status            overwritten when incoming is non-empty and differs
//	contact_phone              first value wins, never overwritten once set
//	withdrawal_contact_phone   first value wins, never overwritten once set
//	delivery_date              first value wins, never overwritten once set
//	all other card fields      overwritten when incoming is non-empty and differs
//
// Name fields are identity, not data: a row only reaches the merge policy
// because its names matched, so they are never part of the update set.

import (
	"fmt"

	"github.com/koffiyao/cartes/internal/cards"
)

// protectedColumns are write-once: a non-empty stored value is permanent.
var protectedColumns = map[string]bool{
	cards.ColContactPhone:           true,
	cards.ColWithdrawalContactPhone: true,
	cards.ColDeliveryDate:           true,
}

// mergeColumns is the evaluation order of the merge policy. Deterministic
// order keeps change logs stable.
var mergeColumns = []string{
	cards.ColDeliveryStatus,
	cards.ColEnrollmentLocation,
	cards.ColWithdrawalSite,
	cards.ColStorageLocation,
	cards.ColBirthDate,
	cards.ColBirthPlace,
	cards.ColContactPhone,
	cards.ColWithdrawalContactPhone,
	cards.ColDeliveryDate,
}

// Decision is the outcome of the merge policy for one matched row.
type Decision struct {
	// FieldsToUpdate maps canonical columns to their new values, restricted
	// to fields that actually qualify for an update.
	FieldsToUpdate map[string]string

	// ChangeLog holds one human-readable "field: old -> new" line per
	// applied change, for the audit journal.
	ChangeLog []string
}

// ShouldUpdate reports whether at least one field qualifies. When false the
// row is a no-op and is classified skipped, not an error.
func (d Decision) ShouldUpdate() bool {
	return len(d.FieldsToUpdate) > 0
}

// Decide computes the smart-sync update set for an existing card against a
// normalized incoming row.
func Decide(existing *cards.Card, incoming NormalizedRow) Decision {
	d := Decision{FieldsToUpdate: make(map[string]string)}

	for _, col := range mergeColumns {
		oldVal := existing.Field(col)
		newVal := incoming.Field(col)

		// An empty incoming value never changes anything, for any field.
		if newVal == "" || newVal == oldVal {
			continue
		}

		// Protected fields: the first non-empty value is permanent.
		if protectedColumns[col] && oldVal != "" {
			continue
		}

		d.FieldsToUpdate[col] = newVal
		d.ChangeLog = append(d.ChangeLog, fmt.Sprintf("%s: %q -> %q", col, oldVal, newVal))
	}

	return d
}
