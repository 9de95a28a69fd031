// Package cards defines the card registry entity and its PostgreSQL store.
// This package has no HTTP or import-pipeline dependencies and is consumed by
// both the CRUD surface and the bulk import engine.
package cards

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Canonical column names of the cartes table. Field-level merge decisions,
// partial updates and role capabilities all speak in these names so there is
// a single vocabulary from merge policy to SQL.
const (
	ColEnrollmentLocation     = "enrollment_location"
	ColWithdrawalSite         = "withdrawal_site"
	ColStorageLocation        = "storage_location"
	ColLastName               = "last_name"
	ColFirstNames             = "first_names"
	ColBirthDate              = "birth_date"
	ColBirthPlace             = "birth_place"
	ColContactPhone           = "contact_phone"
	ColDeliveryStatus         = "delivery_status"
	ColWithdrawalContactPhone = "withdrawal_contact_phone"
	ColDeliveryDate           = "delivery_date"
)

// PhoneLength is the fixed length of stored phone numbers (local format,
// digits only).
const PhoneLength = 8

// Card is the canonical registry entity, one row of the cartes table.
//
// A zero BirthDate or DeliveryDate means NULL in the store. LastName and
// FirstNames are never empty for a persisted card.
type Card struct {
	ID                     int64
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
	ImportBatchID          uuid.NullUUID
	CreatedAt              time.Time
}

// MatchKey is the identity tuple used for exact duplicate resolution.
// Two cards with an equal MatchKey are considered the same physical person.
// Missing birth data compares equal to missing birth data.
type MatchKey struct {
	LastName   string
	FirstNames string
	BirthDate  time.Time // zero = unknown
	BirthPlace string
}

// Key returns the card's own match key.
func (c *Card) Key() MatchKey {
	return MatchKey{
		LastName:   c.LastName,
		FirstNames: c.FirstNames,
		BirthDate:  c.BirthDate,
		BirthPlace: c.BirthPlace,
	}
}

// Field returns the card's current value for a canonical column as a string.
// Dates are rendered in ISO format, NULL dates as "".
func (c *Card) Field(col string) string {
	switch col {
	case ColEnrollmentLocation:
		return c.EnrollmentLocation
	case ColWithdrawalSite:
		return c.WithdrawalSite
	case ColStorageLocation:
		return c.StorageLocation
	case ColLastName:
		return c.LastName
	case ColFirstNames:
		return c.FirstNames
	case ColBirthDate:
		return formatDate(c.BirthDate)
	case ColBirthPlace:
		return c.BirthPlace
	case ColContactPhone:
		return c.ContactPhone
	case ColDeliveryStatus:
		return c.DeliveryStatus
	case ColWithdrawalContactPhone:
		return c.WithdrawalContactPhone
	case ColDeliveryDate:
		return formatDate(c.DeliveryDate)
	default:
		return ""
	}
}

// formatDate renders a date in the canonical ISO format, empty for NULL.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// Equal reports whether two match keys identify the same person.
// Name comparison is case-insensitive; zero/empty birth data on both sides
// counts as equal (COALESCE-to-empty semantics).
func (k MatchKey) Equal(o MatchKey) bool {
	if !strings.EqualFold(strings.TrimSpace(k.LastName), strings.TrimSpace(o.LastName)) {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(k.FirstNames), strings.TrimSpace(o.FirstNames)) {
		return false
	}
	if formatDate(k.BirthDate) != formatDate(o.BirthDate) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(k.BirthPlace), strings.TrimSpace(o.BirthPlace))
}
