// Package identity verifies the bearer tokens that open web sessions.
package identity

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/captify/captify/internal/platform/errors"
)

// ErrSecretRequired indicates a verifier without a signing secret.
var ErrSecretRequired = errors.New("jwt secret is required")

// Config defines how tokens are verified. Issuer and Audience are only
// checked when set.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

// Claims are the verified identity of a token.
type Claims struct {
	UserID    string
	Issuer    string
	ExpiresAt time.Time
}

// Verifier checks HS256 tokens.
type Verifier struct {
	cfg Config
}

// NewVerifier builds a verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretRequired
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	return &Verifier{cfg: cfg}, nil
}

// Verify parses token and returns its claims. The subject is the user ID.
func (v *Verifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}

	var parsed jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token subject is required")
	}
	if v.cfg.Issuer != "" && parsed.Issuer != v.cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeUnauthenticated,
			"token issuer mismatch",
			map[string]string{"Field": "issuer"})
	}
	if v.cfg.Audience != "" && !slices.Contains([]string(parsed.Audience), v.cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeUnauthenticated,
			"token audience mismatch",
			map[string]string{"Field": "audience"})
	}

	now := v.cfg.Now().UTC()
	claims := Claims{UserID: parsed.Subject, Issuer: parsed.Issuer}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
		if !claims.ExpiresAt.After(now) {
			return Claims{}, apperrors.New(apperrors.CodeSessionExpired, "token is expired")
		}
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time) {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token not active yet")
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token alg is invalid", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token is malformed", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token is invalid", err)
	}
}
