package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"address-verifier/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service  *Service
	sessions *Sessions
	limiter  *LoginRateLimiter
	logger   *observability.Logger
}

func NewHandler(service *Service, sessions *Sessions, limiter *LoginRateLimiter, logger *observability.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, limiter: limiter, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok":    false,
			"error": "The information you entered is not valid. Please try again.",
		})
		return
	}

	id, err := h.service.Register(r.Context(), strings.TrimSpace(body.Username), body.Password)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok":          false,
				"error":       "Please check your username and password format.",
				"fieldErrors": verr.Fields,
			})
		case errors.Is(err, ErrUsernameTaken):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok": false,
				"fieldErrors": FieldErrors{
					"username": {"This username is already taken. Please choose another one."},
				},
			})
		default:
			sentry.CaptureException(err)
			h.logger.Error("register_failed", map[string]any{"error": err.Error()})
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "Sorry, we're having trouble right now. Please try again later.",
			})
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	addr := ClientAddr(r)
	allowed, retryAfter := h.limiter.Check(addr)
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"ok":         false,
			"formErrors": []string{"Too many login attempts. Please wait a moment and try again."},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok":         false,
			"formErrors": []string{"Invalid request. Please check your input and try again."},
		})
		return
	}

	fields := FieldErrors{}
	if strings.TrimSpace(body.Username) == "" {
		fields["username"] = []string{"Username is required"}
	}
	if body.Password == "" {
		fields["password"] = []string{"Password is required"}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "fieldErrors": fields})
		return
	}

	user, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"ok":          false,
				"fieldErrors": FieldErrors{"username": {"No account found with that username."}},
			})
		case errors.Is(err, ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"ok":          false,
				"fieldErrors": FieldErrors{"password": {"Incorrect password."}},
			})
		default:
			sentry.CaptureException(err)
			h.logger.Error("login_failed", map[string]any{"error": err.Error()})
			writeError(w, http.StatusInternalServerError, "Login failed. Please try again later.")
		}
		return
	}

	token, err := h.sessions.Issue(user.Username)
	if err != nil {
		sentry.CaptureException(err)
		h.logger.Error("issue_session_failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Login failed. Please try again later.")
		return
	}

	h.sessions.SetCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "username": user.Username})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if payload, ok := SessionFromContext(r.Context()); ok {
		writeJSON(w, http.StatusOK, map[string]any{"username": payload.Username})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": nil})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
