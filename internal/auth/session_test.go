package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_IssueAndVerify(t *testing.T) {
	s := NewSessions("test-secret", "session", false)

	token, err := s.Issue("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, ok := s.Verify(token)
	require.True(t, ok)
	assert.Equal(t, "alice", payload.Username)
}

func TestSessions_Verify_WrongSecret(t *testing.T) {
	issuer := NewSessions("secret-a", "session", false)
	verifier := NewSessions("secret-b", "session", false)

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	_, ok := verifier.Verify(token)
	assert.False(t, ok)
}

func TestSessions_Verify_Expired(t *testing.T) {
	s := NewSessions("test-secret", "session", false)

	claims := jwt.MapClaims{
		"username": "alice",
		"iat":      time.Now().Add(-2 * time.Hour).Unix(),
		"exp":      time.Now().Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, ok := s.Verify(token)
	assert.False(t, ok)
}

func TestSessions_Verify_Garbage(t *testing.T) {
	s := NewSessions("test-secret", "session", false)

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, ok := s.Verify(token)
		assert.False(t, ok, "token %q should not verify", token)
	}
}

func TestSessions_Verify_RejectsUnsignedToken(t *testing.T) {
	s := NewSessions("test-secret", "session", false)

	claims := jwt.MapClaims{
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, ok := s.Verify(token)
	assert.False(t, ok)
}

func TestSessions_FromRequest(t *testing.T) {
	s := NewSessions("test-secret", "session", false)

	token, err := s.Issue("bob")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})

	payload, ok := s.FromRequest(req)
	require.True(t, ok)
	assert.Equal(t, "bob", payload.Username)

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok = s.FromRequest(bare)
	assert.False(t, ok)
}

func TestSessions_CookieAttributes(t *testing.T) {
	s := NewSessions("test-secret", "session", true)

	rec := httptest.NewRecorder()
	s.SetCookie(rec, "token-value")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	c := cookies[0]
	assert.Equal(t, "session", c.Name)
	assert.Equal(t, "token-value", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(sessionTTL/time.Second), c.MaxAge)
}

func TestSessions_ClearCookie(t *testing.T) {
	s := NewSessions("test-secret", "session", false)

	rec := httptest.NewRecorder()
	s.ClearCookie(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
