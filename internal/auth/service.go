package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,50}$`)

var ErrInvalidCredentials = errors.New("invalid credentials")

// FieldErrors maps a form field to its validation messages, mirroring the
// shape the login/register endpoints return to the client.
type FieldErrors map[string][]string

type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

type Service struct {
	users      UserStore
	bcryptCost int
}

func NewService(users UserStore) *Service {
	return &Service{users: users, bcryptCost: bcrypt.DefaultCost}
}

// ValidateRegistration checks the username/password policy without touching
// the store. Violations never reach the database.
func ValidateRegistration(username, password string) *ValidationError {
	fields := FieldErrors{}

	if !usernameRegex.MatchString(username) {
		fields["username"] = append(fields["username"],
			"Username must be 3-50 characters using letters, digits, '.', '_' or '-'.")
	}

	if len(password) < 8 {
		fields["password"] = append(fields["password"], "Password must be at least 8 characters.")
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		fields["password"] = append(fields["password"],
			"Password must contain an uppercase letter, a lowercase letter, a digit and a symbol.")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Register creates a new user. The pre-insert lookup produces the friendly
// duplicate error without hashing; the store's unique constraint closes the
// remaining race.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	if verr := ValidateRegistration(username, password); verr != nil {
		return "", verr
	}

	_, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		return "", ErrUsernameTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		return "", fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return "", err
	}

	return id, nil
}

// Login verifies a username/password pair. ErrUserNotFound and
// ErrInvalidCredentials are distinct so the handler can attach the failure
// to the right form field.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}
