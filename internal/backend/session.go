package backend

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"iesb-saude-portal/internal/appointment"
)

// User is the profile the backend returns on login.
type User struct {
	ID    int64            `json:"id"`
	Name  string           `json:"name"`
	Email string           `json:"email"`
	Role  appointment.Role `json:"role"`
}

// Session carries the bearer token of one signed-in user. It is passed
// explicitly to every Client built for that user.
type Session struct {
	mu        sync.RWMutex
	token     string
	user      User
	expiresAt time.Time
}

// NewSession wraps a token. The expiry is read from the token's exp claim
// when it is a JWT; otherwise it stays zero.
func NewSession(token string, user User) *Session {
	s := &Session{user: user}
	s.SetToken(token)
	return s
}

func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// ExpiresAt is the token expiry, zero when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// SetToken replaces the token after a refresh.
func (s *Session) SetToken(token string) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
	exp, _ := TokenExpiry(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = exp
}

// Clear forgets the token. Requests made afterwards are anonymous.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The backend is the only party that verifies tokens.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
