package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koffiyao/cartes/internal/cards"
)

func seedCards() []cards.Card {
	return []cards.Card{
		{
			LastName:       "Kouame",
			FirstNames:     "Jean",
			BirthDate:      time.Date(1990, time.March, 5, 0, 0, 0, 0, time.UTC),
			BirthPlace:     "Abidjan",
			ContactPhone:   "07123456",
			DeliveryStatus: "NON",
		},
		{LastName: "Kouamet", FirstNames: "Jeanne"},
		{LastName: "Traore", FirstNames: "Awa"},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries())
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListCards(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries(seedCards()...))

	resp, err := http.Get(srv.URL + "/api/cards?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Cards []cardView `json:"cards"`
		Total int64      `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(3), body.Total)
	require.Len(t, body.Cards, 2)
	assert.Equal(t, "Kouame", body.Cards[0].LastName)
	assert.Equal(t, "1990-03-05", body.Cards[0].BirthDate)
}

func TestGetCardNotFound(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries())
	resp, err := http.Get(srv.URL + "/api/cards/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetCardBadID(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries())
	resp, err := http.Get(srv.URL + "/api/cards/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func patchCard(t *testing.T, url, token string, payload map[string]string) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doRequest(t, req)
}

func TestUpdateCardNormalizesValues(t *testing.T) {
	q := newFakeQueries(seedCards()...)
	srv := newTestServer(t, "", q)

	resp := patchCard(t, srv.URL+"/api/cards/3", "", map[string]string{
		cards.ColContactPhone:   "+225 05 99 88 77",
		cards.ColDeliveryStatus: "OUI",
		cards.ColBirthDate:      "20/11/2024",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view cardView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "05998877", view.ContactPhone)
	assert.Equal(t, "OUI", view.DeliveryStatus)
	assert.Equal(t, "2024-11-20", view.BirthDate)
}

func TestUpdateCardRejectsBadDate(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries(seedCards()...))
	resp := patchCard(t, srv.URL+"/api/cards/1", "", map[string]string{
		cards.ColBirthDate: "not-a-date",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateCardRoleFiltering(t *testing.T) {
	const secret = "test-secret"
	q := newFakeQueries(seedCards()...)
	srv := newTestServer(t, secret, q)

	// An agent may flip delivery fields but not rename.
	agent := signToken(t, secret, "agent1", cards.RoleAgent)
	resp := patchCard(t, srv.URL+"/api/cards/1", agent, map[string]string{
		cards.ColLastName: "Hacked",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = patchCard(t, srv.URL+"/api/cards/1", agent, map[string]string{
		cards.ColDeliveryStatus: "OUI",
		cards.ColLastName:       "Hacked",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view cardView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "OUI", view.DeliveryStatus)
	assert.Equal(t, "Kouame", view.LastName, "rejected field must not be applied")
}

func TestSimilarCardsExcludesSelf(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries(seedCards()...))

	resp, err := http.Get(srv.URL + "/api/cards/1/similar")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Matches []struct {
			Card  cardView `json:"card"`
			Score float64  `json:"score"`
		} `json:"matches"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Matches)
	for _, m := range body.Matches {
		assert.NotEqual(t, int64(1), m.Card.ID)
	}
	assert.Equal(t, "Kouamet", body.Matches[0].Card.LastName)
}

func TestExportCSVEndpoint(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries(seedCards()...))

	resp, err := http.Get(srv.URL + "/api/export/cards.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "cartes.csv")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "\xef\xbb\xbf"))
	assert.Contains(t, text, "NOM,PRENOMS")
	assert.Contains(t, text, "Kouame")
}

func uploadCSV(t *testing.T, url, token, filename, content string, extraFields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range extraFields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/api/imports", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doRequest(t, req)
}

func TestCreateImportAndPollSession(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries())

	resp := uploadCSV(t, srv.URL, "", "people.csv",
		"NOM,PRENOMS\nKouame,Jean\nTraore,Awa\n", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.NotEmpty(t, accepted.SessionID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		r2, err := http.Get(srv.URL + "/api/imports/" + accepted.SessionID)
		require.NoError(t, err)
		var session struct {
			Status   string `json:"status"`
			Imported int    `json:"imported"`
		}
		require.NoError(t, json.NewDecoder(r2.Body).Decode(&session))
		r2.Body.Close()

		if session.Status == "completed" {
			assert.Equal(t, 2, session.Imported)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("import stuck in status %s", session.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCreateImportRejectsUnsupportedType(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries())
	resp := uploadCSV(t, srv.URL, "", "people.pdf", "junk", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateImportRequiresRole(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, secret, newFakeQueries())

	viewer := signToken(t, secret, "viewer1", cards.RoleViewer)
	resp := uploadCSV(t, srv.URL, viewer, "people.csv", "NOM,PRENOMS\nA,B\n", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	operator := signToken(t, secret, "op1", cards.RoleOperator)
	resp = uploadCSV(t, srv.URL, operator, "people.csv", "NOM,PRENOMS\nA,B\n", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestGetImportNotFound(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries())
	resp, err := http.Get(srv.URL + "/api/imports/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListImports(t *testing.T) {
	srv := newTestServer(t, "", newFakeQueries())

	for i := 0; i < 2; i++ {
		resp := uploadCSV(t, srv.URL, "", fmt.Sprintf("f%d.csv", i), "NOM,PRENOMS\nA,B\n", nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	// Let the tiny imports settle so the list is stable.
	time.Sleep(200 * time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/imports")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Sessions, 2)
}
