package cards

// similarity.go implements the advisory fuzzy-match lookup used to surface
// likely duplicates for manual review. Scores are never used to merge
// automatically; only exact match drives the import path.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultSimilarCandidates is how many ranked candidates FindSimilar returns.
const DefaultSimilarCandidates = 5

// candidatePoolSize bounds how many rows are pulled from the store for
// in-process scoring.
const candidatePoolSize = 500

// lastNameWeight and firstNamesWeight combine the two per-field scores.
// Last name dominates: first names vary more across re-enrollments.
const (
	lastNameWeight   = 0.6
	firstNamesWeight = 0.4
)

// Candidate is a scored potential duplicate.
type Candidate struct {
	Card  Card
	Score float64
}

// FindSimilar returns up to limit cards ranked by name similarity to the
// given names, best first. Rows scoring zero are dropped.
func (q *Queries) FindSimilar(ctx context.Context, lastName, firstNames string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = DefaultSimilarCandidates
	}

	folded := Fold(lastName)
	if folded == "" {
		return nil, nil
	}

	// Pull a bounded candidate pool sharing the first letter of the folded
	// last name, then score in process. Cheap enough for a manual-review
	// endpoint and avoids a trigram extension dependency.
	prefix := folded[:1]
	rows, err := q.db.Query(ctx, `SELECT `+cardColumns+`
		FROM cartes
		WHERE lower(last_name) LIKE $1 || '%'
		LIMIT $2`, prefix, candidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("similar candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		score := NameSimilarity(lastName, firstNames, card.LastName, card.FirstNames)
		if score > 0 {
			candidates = append(candidates, Candidate{Card: *card, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similar candidates: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// NameSimilarity combines last-name and first-names similarity into one
// score in [0,1].
func NameSimilarity(lastA, firstA, lastB, firstB string) float64 {
	return lastNameWeight*Similarity(lastA, lastB) + firstNamesWeight*Similarity(firstA, firstB)
}

// Similarity returns a bigram Dice coefficient between two strings in [0,1].
// Input is folded first, so case and diacritics do not count as differences
// ("Kouamé" scores 1.0 against "KOUAME").
func Similarity(a, b string) float64 {
	a, b = Fold(a), Fold(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	var shared int
	for g, n := range ba {
		if m, ok := bb[g]; ok {
			if m < n {
				shared += m
			} else {
				shared += n
			}
		}
	}

	var totalA, totalB int
	for _, n := range ba {
		totalA += n
	}
	for _, n := range bb {
		totalB += n
	}

	return 2 * float64(shared) / float64(totalA+totalB)
}

// bigrams counts character pairs in s.
func bigrams(s string) map[string]int {
	runes := []rune(s)
	grams := make(map[string]int)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// Fold lowercases s, strips diacritics and collapses interior whitespace,
// producing the form used for all fuzzy comparisons.
func Fold(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	lastSpace := false
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark from decomposition
		}
		if unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}
