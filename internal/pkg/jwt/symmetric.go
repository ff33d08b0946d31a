package jwt

import (
	"errors"
	"strconv"

	libJWT "github.com/golang-jwt/jwt/v5"
)

// Symmetric signs and verifies HS512 tokens with a shared secret.
type Symmetric struct {
	cfg    Config
	parser *libJWT.Parser
}

// NewHS512 builds a Symmetric. The secret must be at least 64 bytes.
func NewHS512(cfg Config) (*Symmetric, error) {
	if len(cfg.Secret) < 64 {
		return nil, ErrSigningKeyTooShort
	}

	opts := []libJWT.ParserOption{
		libJWT.WithValidMethods([]string{libJWT.SigningMethodHS512.Alg()}),
		libJWT.WithIssuedAt(),
		libJWT.WithExpirationRequired(),
		libJWT.WithLeeway(cfg.Leeway),
		libJWT.WithTimeFunc(cfg.Clock.Now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, libJWT.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audiences) > 0 {
		opts = append(opts, libJWT.WithAudience(cfg.Audiences...))
	}

	return &Symmetric{cfg: cfg, parser: libJWT.NewParser(opts...)}, nil
}

// Generate signs a token for sub that expires after Config.TTL.
func (s *Symmetric) Generate(sub Subject) (string, error) {
	now := s.cfg.Clock.Now()

	return libJWT.NewWithClaims(libJWT.SigningMethodHS512, Claims{
		RegisteredClaims: libJWT.RegisteredClaims{
			ID:        s.cfg.UUID.Generate(),
			Subject:   strconv.FormatInt(sub.UserID, 10),
			Issuer:    s.cfg.Issuer,
			Audience:  s.cfg.Audiences,
			IssuedAt:  libJWT.NewNumericDate(now),
			NotBefore: libJWT.NewNumericDate(now),
			ExpiresAt: libJWT.NewNumericDate(now.Add(s.cfg.TTL)),
		},
		UserID:         sub.UserID,
		OrganizationID: sub.OrganizationID,
		UserEmail:      sub.Email,
		Role:           sub.Role,
	}).SignedString(s.cfg.Secret)
}

// Verify parses tokenStr and returns its claims. Tokens that are valid but
// not scoped to a user inside an organization are rejected.
func (s *Symmetric) Verify(tokenStr string) (Claims, error) {
	var claims Claims

	token, err := s.parser.ParseWithClaims(tokenStr, &claims, func(*libJWT.Token) (any, error) {
		return s.cfg.Secret, nil
	})
	switch {
	case errors.Is(err, libJWT.ErrTokenExpired):
		return Claims{}, ErrTokenExpired
	case err != nil:
		return Claims{}, errors.Join(ErrInvalidToken, err)
	case !token.Valid:
		return Claims{}, ErrInvalidToken
	case claims.UserID == 0 || claims.OrganizationID == 0:
		return Claims{}, ErrMissingTenant
	}

	return claims, nil
}
