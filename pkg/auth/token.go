// Package auth issues and verifies the bearer tokens identifying actors.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = 12 * time.Hour

const issuer = "querygate"

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingToken  = errors.New("missing bearer token")
)

// Claims carries the actor identity. The subject is the actor ID.
type Claims struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	Team string      `json:"team"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 tokens with a shared secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for actor valid for ttl.
func (a *Authenticator) Issue(actor models.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", errors.New("actor id is required")
	}

	if !validRole(actor.Role) {
		return "", fmt.Errorf("unknown role %q", actor.Role)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := a.now()
	claims := &Claims{
		Name: actor.Name,
		Role: actor.Role,
		Team: actor.Team,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses token and returns the actor it identifies.
func (a *Authenticator) Verify(token string) (models.Actor, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !parsed.Valid || claims.Subject == "" || !validRole(claims.Role) {
		return models.Actor{}, ErrInvalidToken
	}

	return models.Actor{
		ID:   claims.Subject,
		Name: claims.Name,
		Role: claims.Role,
		Team: claims.Team,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}

	return strings.TrimSpace(token), nil
}

func validRole(role models.Role) bool {
	switch role {
	case models.RoleDeveloper, models.RoleManager, models.RoleAdmin:
		return true
	default:
		return false
	}
}
