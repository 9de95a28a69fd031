package importer

// header.go maps source file headers to canonical columns and validates that
// the required ones are present before any row is consumed.

import (
	"github.com/koffiyao/cartes/internal/cards"
)

// headerAliases maps folded header labels to canonical columns. The registry
// historically received files from several enrollment operators, hence the
// label variants.
var headerAliases = map[string]string{
	"nom":            cards.ColLastName,
	"nom de famille": cards.ColLastName,
	"prenoms":        cards.ColFirstNames,
	"prenom":         cards.ColFirstNames,

	"lieu d'enrolement": cards.ColEnrollmentLocation,
	"lieu enrolement":   cards.ColEnrollmentLocation,
	"enrolement":        cards.ColEnrollmentLocation,

	"site de retrait": cards.ColWithdrawalSite,
	"site retrait":    cards.ColWithdrawalSite,

	"lieu de stockage": cards.ColStorageLocation,
	"stockage":         cards.ColStorageLocation,

	"date de naissance": cards.ColBirthDate,
	"ne le":             cards.ColBirthDate,

	"lieu de naissance": cards.ColBirthPlace,
	"ne a":              cards.ColBirthPlace,

	"contact":   cards.ColContactPhone,
	"telephone": cards.ColContactPhone,

	"delivrance":        cards.ColDeliveryStatus,
	"statut delivrance": cards.ColDeliveryStatus,

	"contact de retrait": cards.ColWithdrawalContactPhone,
	"contact retrait":    cards.ColWithdrawalContactPhone,

	"date de delivrance": cards.ColDeliveryDate,
	"delivre le":         cards.ColDeliveryDate,
}

// requiredColumns must be resolvable from the header row for an import to
// proceed at all. Everything else is optional.
var requiredColumns = []struct {
	col   string
	label string
}{
	{cards.ColLastName, "NOM"},
	{cards.ColFirstNames, "PRENOMS"},
}

// HeaderMap maps canonical columns to their position in the source rows.
type HeaderMap map[string]int

// MapHeaders resolves a header row to canonical column positions.
// Comparison is case- and diacritic-insensitive; unrecognized headers are
// ignored. The first occurrence of a column wins.
func MapHeaders(headers []string) HeaderMap {
	m := make(HeaderMap, len(headers))
	for i, h := range headers {
		col, ok := headerAliases[cards.Fold(h)]
		if !ok {
			continue
		}
		if _, seen := m[col]; !seen {
			m[col] = i
		}
	}
	return m
}

// ValidateHeaders returns the display labels of required columns that cannot
// be resolved from the header row. An empty result means the file may be
// processed; anything else is a pre-flight failure.
func ValidateHeaders(headers []string) []string {
	m := MapHeaders(headers)

	var missing []string
	for _, req := range requiredColumns {
		if _, ok := m[req.col]; !ok {
			missing = append(missing, req.label)
		}
	}
	return missing
}

// Extract builds the canonical raw-value map for one source row.
// Positions beyond the row's length read as empty, tolerating ragged lines.
func (m HeaderMap) Extract(row []string) map[string]string {
	values := make(map[string]string, len(m))
	for col, idx := range m {
		if idx < len(row) {
			values[col] = row[idx]
		}
	}
	return values
}
