package web

// cards.go handles the card CRUD surface, duplicate review and exports.

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koffiyao/cartes/internal/audit"
	"github.com/koffiyao/cartes/internal/cards"
	"github.com/koffiyao/cartes/internal/importer"
	"github.com/koffiyao/cartes/internal/logging"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// cardView is the JSON shape of a card. Dates render in ISO format, NULL
// dates as empty strings.
type cardView struct {
	ID                     int64  `json:"id"`
	EnrollmentLocation     string `json:"enrollmentLocation"`
	WithdrawalSite         string `json:"withdrawalSite"`
	StorageLocation        string `json:"storageLocation"`
	LastName               string `json:"lastName"`
	FirstNames             string `json:"firstNames"`
	BirthDate              string `json:"birthDate"`
	BirthPlace             string `json:"birthPlace"`
	ContactPhone           string `json:"contactPhone"`
	DeliveryStatus         string `json:"deliveryStatus"`
	WithdrawalContactPhone string `json:"withdrawalContactPhone"`
	DeliveryDate           string `json:"deliveryDate"`
	ImportBatchID          string `json:"importBatchId,omitempty"`
	CreatedAt              string `json:"createdAt"`
}

func viewOf(c *cards.Card) cardView {
	v := cardView{
		ID:                     c.ID,
		EnrollmentLocation:     c.EnrollmentLocation,
		WithdrawalSite:         c.WithdrawalSite,
		StorageLocation:        c.StorageLocation,
		LastName:               c.LastName,
		FirstNames:             c.FirstNames,
		BirthDate:              c.Field(cards.ColBirthDate),
		BirthPlace:             c.BirthPlace,
		ContactPhone:           c.ContactPhone,
		DeliveryStatus:         c.DeliveryStatus,
		WithdrawalContactPhone: c.WithdrawalContactPhone,
		DeliveryDate:           c.Field(cards.ColDeliveryDate),
	}
	if c.ImportBatchID.Valid {
		v.ImportBatchID = c.ImportBatchID.UUID.String()
	}
	if !c.CreatedAt.IsZero() {
		v.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return v
}

// handleListCards returns a page of cards, optionally filtered by last-name
// prefix via the q parameter.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	list, total, err := s.queries.List(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]cardView, len(list))
	for i := range list {
		views[i] = viewOf(&list[i])
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"cards": views,
		"total": total,
	})
}

// handleGetCard returns one card.
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, r, http.StatusOK, viewOf(card))
}

// handleUpdateCard applies a partial update. The payload maps canonical
// column names to new values; columns outside the caller's role capability
// are rejected, and phone and date values are normalized the same way the
// import path normalizes them.
func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}

	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(payload) == 0 {
		respondError(w, r, http.StatusBadRequest, "empty update")
		return
	}

	identity := identityFrom(r.Context())
	fields, rejected := cards.FilterWritable(identity.Role, payload)
	if len(fields) == 0 {
		respondError(w, r, http.StatusForbidden,
			fmt.Sprintf("role %s may not modify: %v", identity.Role, rejected))
		return
	}
	if len(rejected) > 0 {
		logging.FromContext(r.Context()).Warn("update fields dropped by role filter",
			"role", identity.Role, "rejected", rejected)
	}

	if err := normalizeFields(fields); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.queries.UpdateFields(r.Context(), card.ID, fields); err != nil {
		if errors.Is(err, cards.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "card not found")
			return
		}
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	oldValues := make(map[string]string, len(fields))
	for col := range fields {
		oldValues[col] = card.Field(col)
	}
	s.sink.LogAction(r.Context(), audit.Entry{
		Actor:     identity.Subject,
		Action:    audit.ActionCardUpdate,
		TableName: "cartes",
		RecordID:  card.ID,
		OldValue:  oldValues,
		NewValue:  fields,
	})

	updated, err := s.queries.GetByID(r.Context(), card.ID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, r, http.StatusOK, viewOf(updated))
}

// normalizeFields applies the canonical phone and date normalization to an
// update payload in place. An explicitly empty date clears the column; a
// non-empty unparsable one is an error rather than a silent NULL.
func normalizeFields(fields map[string]string) error {
	for col, val := range fields {
		switch col {
		case cards.ColContactPhone, cards.ColWithdrawalContactPhone:
			fields[col] = importer.NormalizePhone(importer.CleanValue(val))
		case cards.ColBirthDate, cards.ColDeliveryDate:
			cleaned := importer.CleanValue(val)
			if cleaned == "" {
				fields[col] = ""
				continue
			}
			t, ok := importer.ParseDate(cleaned)
			if !ok {
				return fmt.Errorf("unparsable date %q for %s", val, col)
			}
			fields[col] = t.Format("2006-01-02")
		default:
			fields[col] = importer.CleanValue(val)
		}
	}
	return nil
}

// handleSimilarCards returns advisory duplicate candidates for one card,
// ranked by name similarity. The card itself is excluded.
func (s *Server) handleSimilarCards(w http.ResponseWriter, r *http.Request) {
	card, ok := s.cardFromPath(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", cards.DefaultSimilarCandidates)
	candidates, err := s.queries.FindSimilar(r.Context(), card.LastName, card.FirstNames, limit+1)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	type match struct {
		Card  cardView `json:"card"`
		Score float64  `json:"score"`
	}
	matches := make([]match, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Card.ID == card.ID {
			continue
		}
		if len(matches) == limit {
			break
		}
		matches = append(matches, match{Card: viewOf(&cand.Card), Score: cand.Score})
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"matches": matches})
}

// handleExportCSV streams the registry as a CSV download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cartes.csv"`)

	rows, err := s.exporter.CSV(r.Context(), w)
	if err != nil {
		// Headers are gone; all we can do is log and drop the connection.
		logging.FromContext(r.Context()).Error("csv export failed", "rows", rows, "error", err)
		return
	}
	logging.FromContext(r.Context()).Info("csv export complete", "rows", rows)
}

// handleExportXLSX streams the registry as a workbook download.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="cartes.xlsx"`)

	rows, err := s.exporter.XLSX(r.Context(), w)
	if err != nil {
		logging.FromContext(r.Context()).Error("xlsx export failed", "rows", rows, "error", err)
		return
	}
	logging.FromContext(r.Context()).Info("xlsx export complete", "rows", rows)
}

// cardFromPath loads the card addressed by the id path parameter, writing
// the error response itself when that fails.
func (s *Server) cardFromPath(w http.ResponseWriter, r *http.Request) (*cards.Card, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, r, http.StatusBadRequest, "invalid card id")
		return nil, false
	}

	card, err := s.queries.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, cards.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "card not found")
			return nil, false
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return card, true
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
