package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSigningKeyTooShort is returned when the HS512 signing key is less than 64 bytes.
	ErrSigningKeyTooShort = errors.New("HS512 signing key must be at least 64 bytes (512 bits)")
	// ErrTokenExpired is returned when the token has expired.
	ErrTokenExpired = errors.New("JWT token has expired")
	// ErrInvalidToken is returned when the token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingTenant is returned for tokens that do not name both a user
	// and an organization.
	ErrMissingTenant = errors.New("token is not scoped to a user and organization")
)

// Subject is the identity a token is issued for.
type Subject struct {
	UserID         int64
	OrganizationID int64
	Email          string
	Role           string
}

// JWT generates and verifies tokens.
type JWT interface {
	Generate(sub Subject) (string, error)
	Verify(tokenStr string) (Claims, error)
}

type clocker interface {
	Now() time.Time
}

type generator interface {
	Generate() string
}

// Config defines the inputs for building a JWT implementation.
type Config struct {
	Secret    []byte
	Issuer    string
	Audiences []string
	// TTL bounds tokens produced by Generate.
	TTL time.Duration
	// Leeway tolerates clock skew between us and the issuer.
	Leeway time.Duration
	Clock  clocker
	UUID   generator
}

// Claims are the registered claims plus the tenant the caller acts in.
type Claims struct {
	jwt.RegisteredClaims
	UserID         int64  `json:"user_id,string"`
	OrganizationID int64  `json:"organization_id,string"`
	UserEmail      string `json:"user_email"`
	// Role is the caller's role inside the organization, checked by authz.
	Role string `json:"role,omitempty"`
}

type jwtContextKey struct{}

// GetAuth returns the claims stored in ctx, or nil for anonymous requests.
func GetAuth(ctx context.Context) *Claims {
	clm, ok := ctx.Value(jwtContextKey{}).(Claims)
	if !ok {
		return nil
	}
	return &clm
}

// SetAuth stores claims in ctx.
func SetAuth(ctx context.Context, clm Claims) context.Context {
	return context.WithValue(ctx, jwtContextKey{}, clm)
}
