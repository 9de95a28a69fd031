package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/koffiyao/cartes/internal/audit"
	"github.com/koffiyao/cartes/internal/cards"
	"github.com/koffiyao/cartes/internal/config"
	"github.com/koffiyao/cartes/internal/importer"
)

// fakeQueries is an in-memory CardQueries for handler tests.
type fakeQueries struct {
	mu     sync.Mutex
	cards  map[int64]*cards.Card
	nextID int64
}

func newFakeQueries(seed ...cards.Card) *fakeQueries {
	f := &fakeQueries{cards: make(map[int64]*cards.Card)}
	for _, c := range seed {
		f.nextID++
		cp := c
		cp.ID = f.nextID
		f.cards[cp.ID] = &cp
	}
	return f
}

func (f *fakeQueries) GetByID(_ context.Context, id int64) (*cards.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return nil, cards.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeQueries) List(_ context.Context, search string, limit, offset int) ([]cards.Card, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []cards.Card
	for _, c := range f.cards {
		if search == "" || cards.Fold(c.LastName) >= cards.Fold(search) {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeQueries) UpdateFields(_ context.Context, id int64, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.cards[id]
	if !ok {
		return cards.ErrNotFound
	}
	for col, val := range fields {
		switch col {
		case cards.ColLastName:
			c.LastName = val
		case cards.ColContactPhone:
			c.ContactPhone = val
		case cards.ColDeliveryStatus:
			c.DeliveryStatus = val
		case cards.ColBirthDate:
			t, _ := time.Parse("2006-01-02", val)
			c.BirthDate = t
		case cards.ColStorageLocation:
			c.StorageLocation = val
		}
	}
	return nil
}

func (f *fakeQueries) FindSimilar(_ context.Context, lastName, firstNames string, limit int) ([]cards.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []cards.Candidate
	for _, c := range f.cards {
		score := cards.NameSimilarity(lastName, firstNames, c.LastName, c.FirstNames)
		if score > 0 {
			out = append(out, cards.Candidate{Card: *c, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQueries) ForEach(_ context.Context, fn func(*cards.Card) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, 0, len(f.cards))
	for id := range f.cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		cp := *f.cards[id]
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

// noopRegistry satisfies importer.Registry for tests that never reach the
// database.
type noopRegistry struct{}

func (noopRegistry) InTx(_ context.Context, fn func(tx importer.RegistryTx) error) error {
	return fn(noopTx{})
}

type noopTx struct{}

func (noopTx) FindExact(context.Context, cards.MatchKey) (*cards.Card, error) { return nil, nil }
func (noopTx) Insert(_ context.Context, c *cards.Card) (int64, error)         { return 1, nil }
func (noopTx) UpdateFields(context.Context, int64, map[string]string) error   { return nil }

func testServerConfig(secret string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxRows:       1000,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			BatchSize:     50,
			BatchTimeout:  5 * time.Second,
		},
		Sessions: config.SessionConfig{Retention: 20},
		Auth:     config.AuthConfig{JWTSecret: secret},
	}
}

func newTestServer(t *testing.T, secret string, q CardQueries) *httptest.Server {
	t.Helper()
	cfg := testServerConfig(secret)
	svc := importer.NewService(importer.Config{
		BatchSize:     cfg.Import.BatchSize,
		BatchTimeout:  cfg.Import.BatchTimeout,
		MaxRows:       cfg.Import.MaxRows,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
	}, noopRegistry{}, audit.Discard{}, importer.NewMemoryStore(cfg.Sessions.Retention))

	srv := httptest.NewServer(NewServer(cfg, q, svc, audit.Discard{}).Router())
	t.Cleanup(srv.Close)
	return srv
}

// signToken issues an HS256 token for tests.
func signToken(t *testing.T, secret, subject string, role cards.Role) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
