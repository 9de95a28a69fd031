package importer

import (
	"testing"
	"time"

	"github.com/koffiyao/cartes/internal/cards"
)

func TestCleanValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trims whitespace", "  Abidjan  ", "Abidjan"},
		{"empty stays empty", "", ""},
		{"whitespace only", "   ", ""},
		{"null token lowercase", "null", ""},
		{"null token uppercase", "NULL", ""},
		{"null token mixed case", "Null", ""},
		{"null inside a word survives", "nullify", "nullify"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanValue(tt.input); got != tt.want {
				t.Errorf("CleanValue(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // ISO, "" means unparsable
	}{
		{"iso", "2024-11-20", "2024-11-20"},
		{"slash dmy", "20/11/2024", "2024-11-20"},
		{"dash dmy", "20-11-2024", "2024-11-20"},
		{"slash ymd", "2024/11/20", "2024-11-20"},
		{"textual", "Wed Nov 20 2024", "2024-11-20"},
		{"textual short day", "Nov 20 2024", "2024-11-20"},
		{"serial date", "45616", "2024-11-20"},
		{"short year slash", "20/11/24", "2024-11-20"},
		{"short year dash", "20-11-24", "2024-11-20"},
		{"empty", "", ""},
		{"garbage", "not-a-date", ""},
		{"small number not a serial", "42", ""},
		{"serial landing in 1900 rejected", "300", ""},
		{"first accepted serial", "367", "1901-01-01"},
		{"huge serial out of window", "999999", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if tt.want == "" {
				if ok {
					t.Fatalf("ParseDate(%q) = %v, want unparsable", tt.input, got)
				}
				if !got.IsZero() {
					t.Fatalf("ParseDate(%q) returned non-zero time with ok=false", tt.input)
				}
				return
			}
			if !ok {
				t.Fatalf("ParseDate(%q) failed, want %s", tt.input, tt.want)
			}
			if iso := got.Format("2006-01-02"); iso != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, iso, tt.want)
			}
		})
	}
}

func TestParseDateShortYearWindow(t *testing.T) {
	// Two-digit years always land in the 2000s.
	got, ok := ParseDate("05/03/99")
	if !ok {
		t.Fatal("expected short-year date to parse")
	}
	if got.Year() != 2099 {
		t.Errorf("year = %d, want 2099", got.Year())
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already local", "07123456", "07123456"},
		{"spaces and dashes", "07 12-34.56", "07123456"},
		{"international 00225", "0022507123456", "07123456"},
		{"plus 225", "+22507123456", "07123456"},
		{"bare 225 prefix on long number", "22507123456", "07123456"},
		{"bare 225 prefix on eight digits", "22567890", "00067890"},
		{"bare 225 prefix on short number", "2251234", "00001234"},
		{"short number left-padded", "1234", "00001234"},
		{"overlong truncated to eight", "0712345699", "07123456"},
		{"empty", "", ""},
		{"no digits", "n/a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.input); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeRow(t *testing.T) {
	raw := map[string]string{
		cards.ColLastName:       "  KOUAME  ",
		cards.ColFirstNames:     "Jean",
		cards.ColBirthDate:      "20/11/2024",
		cards.ColBirthPlace:     "null",
		cards.ColContactPhone:   "+225 07 12 34 56",
		cards.ColDeliveryStatus: "NON",
		cards.ColDeliveryDate:   "junk",
	}

	row := NormalizeRow(raw)

	if row.LastName != "KOUAME" {
		t.Errorf("LastName = %q", row.LastName)
	}
	if row.BirthPlace != "" {
		t.Errorf("BirthPlace = %q, want empty for null token", row.BirthPlace)
	}
	if row.ContactPhone != "07123456" {
		t.Errorf("ContactPhone = %q", row.ContactPhone)
	}
	want := time.Date(2024, time.November, 20, 0, 0, 0, 0, time.UTC)
	if !row.BirthDate.Equal(want) {
		t.Errorf("BirthDate = %v, want %v", row.BirthDate, want)
	}
	if !row.DeliveryDate.IsZero() {
		t.Errorf("DeliveryDate = %v, want zero for unparsable input", row.DeliveryDate)
	}
}

func TestNormalizeRowDeterministic(t *testing.T) {
	raw := map[string]string{
		cards.ColLastName:   "Traore",
		cards.ColFirstNames: "Awa",
		cards.ColBirthDate:  "1995-06-01",
	}
	a := NormalizeRow(raw)
	b := NormalizeRow(raw)
	if a != b {
		t.Errorf("NormalizeRow not deterministic: %+v vs %+v", a, b)
	}
}
