package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTTL = 7 * 24 * time.Hour

// Sessions mints and verifies the signed session cookie. The token is the
// whole session: nothing is stored server-side, so verification is pure
// signature + expiry checking.
type Sessions struct {
	secret     []byte
	cookieName string
	secure     bool
}

func NewSessions(secret, cookieName string, secure bool) *Sessions {
	return &Sessions{secret: []byte(secret), cookieName: cookieName, secure: secure}
}

func (s *Sessions) Issue(username string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(sessionTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the payload for a valid, unexpired token. An invalid token
// is reported as (zero, false), never as an error: "no session" is a normal
// state, not a failure.
func (s *Sessions) Verify(token string) (SessionPayload, bool) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return SessionPayload{}, false
	}

	username, _ := claims["username"].(string)
	if username == "" {
		return SessionPayload{}, false
	}

	return SessionPayload{Username: username}, true
}

// FromRequest reads the session cookie; absence or an invalid token both
// mean anonymous.
func (s *Sessions) FromRequest(r *http.Request) (SessionPayload, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return SessionPayload{}, false
	}
	return s.Verify(cookie.Value)
}

func (s *Sessions) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
}

func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
}
