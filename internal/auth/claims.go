package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL applies when a token is minted with a non-positive lifetime.
const DefaultTTL = 60 * time.Minute

// CustomClaims extends JWT standard claims with the caller's role.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenOptions configures GenerateAccessToken.
type TokenOptions struct {
	Subject string
	Role    Role
	Secret  string
	Issuer  string
	TTL     time.Duration
	Now     func() time.Time
}

// GenerateAccessToken creates a signed JWT access token.
func GenerateAccessToken(opts TokenOptions) (string, error) {
	if opts.Secret == "" {
		return "", ErrSecretRequired
	}
	if !IsValidSubject(opts.Subject) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, opts.Subject)
	}
	if !IsValidRole(opts.Role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, opts.Role)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}

	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   opts.Subject,
			Issuer:    opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
			ID:        uuid.NewString(),
		},
		Role: opts.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(opts.Secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT access token, returning the custom claims.
// It checks the signature, expiry, issuer (when non-empty), and required fields.
func ParseToken(tokenString, secret, issuer string) (*CustomClaims, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}
