// Package auth issues and verifies the bearer tokens that guard /api routes,
// and hashes the client secret exchanged for them.
// It is a leaf package with no domain dependencies.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// BCryptCost is the work factor used by HashSecret.
const BCryptCost = 12

// DefaultTokenExpiry applies when NewIssuer is given a non-positive expiry.
const DefaultTokenExpiry = 24 * time.Hour

const issuerName = "moviegpt"

var (
	ErrEmptySecret  = errors.New("auth: signing secret is empty")
	ErrEmptySubject = errors.New("auth: subject is empty")
	ErrEmptyToken   = errors.New("auth: token is empty")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ===== CLIENT SECRETS =====

// HashSecret hashes a plaintext client secret with bcrypt.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BCryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether secret matches hash. Malformed hashes never match.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ===== TOKENS =====

// Claims carries only registered claims; Subject names the caller and
// namespaces its conversations.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs and parses HS256 tokens with one secret.
type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, expiry time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &Issuer{secret: []byte(secret), expiry: expiry, now: time.Now}, nil
}

// Expiry is the lifetime of tokens from Generate.
func (i *Issuer) Expiry() time.Duration { return i.expiry }

// Generate returns a signed token for subject and its expiry time.
func (i *Issuer) Generate(subject string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	now := i.now()
	expiresAt := now.Add(i.expiry)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuerName,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates signature, algorithm and time claims, and returns the claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// HMAC only; rejects alg substitution
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
