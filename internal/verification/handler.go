package verification

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"address-verifier/internal/auspost"
	"address-verifier/internal/auth"
	"address-verifier/internal/observability"
)

const recentLogsLimit = 50

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	store  Store
	logger *observability.Logger
}

func NewHandler(store Store, logger *observability.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Logs returns the most recent verification entries. Anonymous callers get
// an empty list without a store round-trip.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.SessionFromContext(r.Context()); !ok {
		writeJSON(w, http.StatusOK, map[string]any{"items": []Record{}})
		return
	}

	items, err := h.store.FetchRecent(r.Context(), recentLogsLimit)
	if err != nil {
		sentry.CaptureException(err)
		h.logger.Error("fetch_logs_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to fetch logs."})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type verifyRequest struct {
	Postcode string   `json:"postcode"`
	Suburb   string   `json:"suburb"`
	State    string   `json:"state"`
	Success  *bool    `json:"success"`
	Error    *string  `json:"error"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

// Verify records a client-reported validation attempt. The route is mounted
// behind RequireSession. Unlike the pipeline's own logging, the write here is
// the whole point of the request, so a store failure is the primary error.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	payload, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body verifyRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Invalid request body."})
		return
	}

	if strings.TrimSpace(body.Postcode) == "" ||
		strings.TrimSpace(body.Suburb) == "" ||
		strings.TrimSpace(body.State) == "" ||
		body.Success == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "postcode, suburb, state and success are required."})
		return
	}

	message := "Verification failed."
	if *body.Success {
		message = auspost.MsgValid
	}

	id, err := h.store.Log(r.Context(), Entry{
		Username: payload.Username,
		Postcode: strings.ToUpper(strings.TrimSpace(body.Postcode)),
		Suburb:   strings.ToUpper(strings.TrimSpace(body.Suburb)),
		State:    strings.ToUpper(strings.TrimSpace(body.State)),
		Success:  *body.Success,
		Message:  message,
		Error:    body.Error,
		Lat:      body.Lat,
		Lng:      body.Lng,
	})
	if err != nil {
		sentry.CaptureException(err)
		h.logger.Error("verify_log_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
