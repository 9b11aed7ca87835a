package verification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"address-verifier/internal/auspost"
	"address-verifier/internal/auth"
	"address-verifier/internal/observability"
)

type fakeStore struct {
	entries      []Entry
	records      []Record
	logErr       error
	fetchErr     error
	fetchCalls   int
	lastFetchLim int
}

func (f *fakeStore) Log(_ context.Context, entry Entry) (string, error) {
	if f.logErr != nil {
		return "", f.logErr
	}
	f.entries = append(f.entries, entry)
	return "log-1", nil
}

func (f *fakeStore) FetchRecent(_ context.Context, limit int) ([]Record, error) {
	f.fetchCalls++
	f.lastFetchLim = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records, nil
}

func authedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return req.WithContext(auth.WithSession(req.Context(), auth.SessionPayload{Username: "alice"}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_Logs_AnonymousShortCircuits(t *testing.T) {
	store := &fakeStore{records: []Record{{ID: "r1"}}}
	h := NewHandler(store, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Logs(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Empty(t, body["items"])
	assert.Zero(t, store.fetchCalls, "anonymous requests must not hit the store")
}

func TestHandler_Logs_ReturnsRecent(t *testing.T) {
	store := &fakeStore{records: []Record{
		{ID: "r2", Username: "alice", Postcode: "4000", Success: true},
		{ID: "r1", Username: "alice", Postcode: "3000", Success: false},
	}}
	h := NewHandler(store, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Logs(rec, authedRequest(http.MethodGet, "/logs", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "r2", items[0].(map[string]any)["id"])
	assert.Equal(t, 50, store.lastFetchLim)
}

func TestHandler_Logs_StoreFailure(t *testing.T) {
	store := &fakeStore{fetchErr: errors.New("search failed")}
	h := NewHandler(store, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Logs(rec, authedRequest(http.MethodGet, "/logs", ""))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch logs.", decodeBody(t, rec)["error"])
}

func TestHandler_Verify_RecordsEntry(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Verify(rec, authedRequest(http.MethodPost, "/verify",
		`{"postcode":"4000","suburb":" brisbane ","state":"qld","success":true,"lat":-27.47,"lng":153.02}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "log-1", body["id"])

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, "BRISBANE", entry.Suburb)
	assert.Equal(t, "QLD", entry.State)
	assert.True(t, entry.Success)
	assert.Equal(t, auspost.MsgValid, entry.Message)
	require.NotNil(t, entry.Lat)
	assert.InDelta(t, -27.47, *entry.Lat, 0.001)
}

func TestHandler_Verify_FailureMessage(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Verify(rec, authedRequest(http.MethodPost, "/verify",
		`{"postcode":"4000","suburb":"NOWHERE","state":"QLD","success":false,"error":"no match"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.False(t, entry.Success)
	assert.Equal(t, "Verification failed.", entry.Message)
	require.NotNil(t, entry.Error)
	assert.Equal(t, "no match", *entry.Error)
}

func TestHandler_Verify_Anonymous(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodPost, "/verify",
		strings.NewReader(`{"postcode":"4000","suburb":"BRISBANE","state":"QLD","success":true}`)))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, store.entries)
}

func TestHandler_Verify_MissingFields(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, observability.NewLogger())

	for _, body := range []string{
		`{"suburb":"BRISBANE","state":"QLD","success":true}`,
		`{"postcode":"4000","state":"QLD","success":true}`,
		`{"postcode":"4000","suburb":"BRISBANE","success":true}`,
		`{"postcode":"4000","suburb":"BRISBANE","state":"QLD"}`,
	} {
		rec := httptest.NewRecorder()
		h.Verify(rec, authedRequest(http.MethodPost, "/verify", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	assert.Empty(t, store.entries)
}

func TestHandler_Verify_StoreFailureIsPrimary(t *testing.T) {
	store := &fakeStore{logErr: errors.New("index unavailable")}
	h := NewHandler(store, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Verify(rec, authedRequest(http.MethodPost, "/verify",
		`{"postcode":"4000","suburb":"BRISBANE","state":"QLD","success":true}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "index unavailable", body["error"])
}

func TestHandler_Verify_InvalidJSON(t *testing.T) {
	h := NewHandler(&fakeStore{}, observability.NewLogger())

	rec := httptest.NewRecorder()
	h.Verify(rec, authedRequest(http.MethodPost, "/verify", `{"postcode":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
