// Package auth implements the shared-passcode instructor login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quiz-proctor-service/internal/domain"
)

// RoleInstructor is the only role a token can carry.
const RoleInstructor = "instructor"

// DefaultCost keeps login fast; the passcode is shared, not per-user.
const DefaultCost = 8

// Claims extends JWT standard claims with the instructor flag.
type Claims struct {
	jwt.RegisteredClaims
	Role      string    `json:"role"`
	LoginTime time.Time `json:"login_time"`
}

// Authenticator checks the instructor passcode and issues signed tokens.
type Authenticator struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New builds an Authenticator. passcodeHash takes precedence; when it is
// empty the plaintext passcode is hashed once at startup.
func New(passcode, passcodeHash, secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	hash := []byte(passcodeHash)
	if len(hash) == 0 {
		if passcode == "" {
			return nil, errors.New("passcode or passcode hash is required")
		}
		h, err := HashPasscode(passcode)
		if err != nil {
			return nil, err
		}
		hash = []byte(h)
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("invalid passcode hash: %w", err)
	}
	return &Authenticator{hash: hash, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// HashPasscode returns a bcrypt hash suitable for instructor.passcode_hash.
func HashPasscode(passcode string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(passcode), DefaultCost)
	return string(h), err
}

// CheckPasscode compares a candidate against the configured hash.
func (a *Authenticator) CheckPasscode(passcode string) error {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(passcode)); err != nil {
		return domain.ErrInvalidPasscode
	}
	return nil
}

// Login verifies the passcode and returns a signed instructor token.
func (a *Authenticator) Login(passcode string) (string, Claims, error) {
	if err := a.CheckPasscode(passcode); err != nil {
		return "", Claims{}, err
	}
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   RoleInstructor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Role:      RoleInstructor,
		LoginTime: now.UTC(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a token, returning the claims.
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Role != RoleInstructor {
		return nil, errors.New("token is not an instructor token")
	}
	return claims, nil
}
