// Package session validates the session tokens minted by the identity issuer.
//
// The portal never issues sessions itself. A request carries the issuer's
// session JWT as a bearer token; the Verifier checks its signature and expiry
// and hands back the subject, which is the caller's external identity:
//
//	v, err := session.NewRS256Verifier(pemBytes)
//	externalID, err := v.Verify(token)
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("session: missing token")
	ErrInvalidToken = errors.New("session: invalid token")
	ErrNoKey        = errors.New("session: no verification key configured")
)

// Claims are the session claims the service reads.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the verification key and optional claim checks.
type Config struct {
	SigningMethod jwt.SigningMethod
	VerifyingKey  any
	Issuer        string
	Leeway        time.Duration
}

// Verifier validates session tokens.
type Verifier struct {
	config Config
	parser *jwt.Parser
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.SigningMethod == nil || cfg.VerifyingKey == nil {
		return nil, ErrNoKey
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{cfg.SigningMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{config: cfg, parser: jwt.NewParser(opts...)}, nil
}

// NewRS256Verifier verifies tokens against a PEM encoded RSA public key.
func NewRS256Verifier(pemKey []byte) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("session: parse public key: %w", err)
	}
	return NewVerifier(Config{SigningMethod: jwt.SigningMethodRS256, VerifyingKey: key})
}

// NewHS256Verifier verifies tokens signed with a shared secret.
func NewHS256Verifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoKey
	}
	return NewVerifier(Config{SigningMethod: jwt.SigningMethodHS256, VerifyingKey: []byte(secret)})
}

// Verify validates token and returns its trimmed subject.
func (v *Verifier) Verify(token string) (string, error) {
	claims, err := v.Parse(token)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(claims.Subject), nil
}

// Parse validates token and returns its claims. A token without a subject
// is rejected.
func (v *Verifier) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := v.parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.config.VerifyingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
