package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier validates session tokens against the key set the issuer
// publishes, so keys can rotate without a redeploy. Keys are fetched on
// first use and refreshed when a token names an unknown key id.
type JWKSVerifier struct {
	ctx       context.Context
	keys      oidc.KeySet
	validator *jwt.Validator
}

// NewJWKSVerifier verifies tokens against the JWKS document at jwksURL.
// ctx bounds key fetches for the lifetime of the verifier. issuer, when set,
// must match the iss claim.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string, leeway time.Duration) (*JWKSVerifier, error) {
	if strings.TrimSpace(jwksURL) == "" {
		return nil, ErrNoKey
	}
	return newJWKSVerifier(ctx, oidc.NewRemoteKeySet(ctx, jwksURL), issuer, leeway), nil
}

func newJWKSVerifier(ctx context.Context, keys oidc.KeySet, issuer string, leeway time.Duration) *JWKSVerifier {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWKSVerifier{ctx: ctx, keys: keys, validator: jwt.NewValidator(opts...)}
}

// Verify validates token and returns its trimmed subject.
func (v *JWKSVerifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	payload, err := v.keys.VerifySignature(v.ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := v.validator.Validate(claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
