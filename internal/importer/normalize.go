package importer

// normalize.go cleans and type-coerces raw source rows. Everything here is
// pure and deterministic: the same raw row always yields the same normalized
// row, and nothing ever panics or returns an error for bad data. Unparsable
// values collapse to empty, the row-level validation downstream decides
// whether that makes the row unusable.

import (
	"strings"
	"time"

	"github.com/koffiyao/cartes/internal/cards"
)

// countryCode is the phone country prefix stripped during normalization.
const countryCode = "225"

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Date layouts tried in order. First successful parse wins.
var (
	dateLayouts = []string{
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"2006/01/02",
	}

	// Loose textual formats as exported by spreadsheet tools,
	// e.g. "Thu Jul 12 2001".
	textualLayouts = []string{
		"Mon Jan 2 2006",
		"Mon Jan 02 2006",
		"Jan 2 2006",
		"2 Jan 2006",
		"Jan 2, 2006",
	}

	// Two-digit-year fallbacks; years are interpreted as 2000+yy.
	shortYearLayouts = []string{
		"02/01/06",
		"02-01-06",
		"06-01-02",
	}
)

// NormalizeRow cleans a raw row into its canonical field set.
func NormalizeRow(raw map[string]string) NormalizedRow {
	get := func(col string) string { return CleanValue(raw[col]) }

	birthDate, _ := ParseDate(get(cards.ColBirthDate))
	deliveryDate, _ := ParseDate(get(cards.ColDeliveryDate))

	return NormalizedRow{
		EnrollmentLocation:     get(cards.ColEnrollmentLocation),
		WithdrawalSite:         get(cards.ColWithdrawalSite),
		StorageLocation:        get(cards.ColStorageLocation),
		LastName:               get(cards.ColLastName),
		FirstNames:             get(cards.ColFirstNames),
		BirthDate:              birthDate,
		BirthPlace:             get(cards.ColBirthPlace),
		ContactPhone:           NormalizePhone(get(cards.ColContactPhone)),
		DeliveryStatus:         get(cards.ColDeliveryStatus),
		WithdrawalContactPhone: NormalizePhone(get(cards.ColWithdrawalContactPhone)),
		DeliveryDate:           deliveryDate,
	}
}

// CleanValue trims a raw cell. The empty string and the literal token "null"
// (any case) both collapse to "".
func CleanValue(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

// ParseDate attempts to parse a cleaned cell as a calendar date.
// Formats are tried in order: ISO, DD/MM/YYYY, DD-MM-YYYY, YYYY/MM/DD, loose
// textual dates, spreadsheet serial numbers (epoch 1899-12-30), then
// two-digit-year fallbacks (interpreted as 2000+yy).
// Returns (zero, false) for empty or unparsable input, never an error.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	for _, layout := range textualLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if t, ok := parseSerialDate(s); ok {
		return t, true
	}

	for _, layout := range shortYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// time.Parse maps two-digit years to 1969-2068; registry files
			// are all from this century, so a yy year always means 20yy.
			if t.Year() < 2000 {
				t = t.AddDate(100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// parseSerialDate interprets a bare integer as a spreadsheet serial date.
// Only values that land after 1900 and before 2101 are accepted, so ordinary
// small numbers in a date column stay unparsable instead of becoming
// nonsense dates.
func parseSerialDate(s string) (time.Time, bool) {
	if len(s) == 0 || len(s) > 6 {
		return time.Time{}, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return time.Time{}, false
		}
	}

	var days int
	for _, r := range s {
		days = days*10 + int(r-'0')
	}

	t := excelEpoch.AddDate(0, 0, days)
	if t.Year() <= 1900 || t.Year() > 2100 {
		return time.Time{}, false
	}
	return t, true
}

// NormalizePhone reduces a raw phone value to the stored 8-digit local form:
// strip every non-digit, drop a leading 00225/225 country prefix, left-pad
// short numbers with zeros, and keep at most the first 8 digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(digits, "00"+countryCode) {
		digits = digits[len(countryCode)+2:]
	} else if strings.HasPrefix(digits, countryCode) {
		digits = digits[len(countryCode):]
	}
	if digits == "" {
		return ""
	}

	if len(digits) < cards.PhoneLength {
		digits = strings.Repeat("0", cards.PhoneLength-len(digits)) + digits
	}
	if len(digits) > cards.PhoneLength {
		digits = digits[:cards.PhoneLength]
	}
	return digits
}
