// Package auth validates bearer tokens issued by the identity service and
// carries the resulting identity through request contexts. Token issuing
// lives outside this service.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Role      Role
}

// IsStaff reports whether the identity may perform admin/manager operations.
func (i Identity) IsStaff() bool {
	return i.Role == RoleAdmin || i.Role == RoleManager
}

type claims struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 bearer token and extracts the identity.
func ParseToken(secret, token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject claim: %w", err)
	}

	role := Role(c.Role)
	switch role {
	case RoleCustomer, RoleManager, RoleAdmin:
	case "":
		role = RoleCustomer
	default:
		return nil, fmt.Errorf("unknown role claim: %q", c.Role)
	}

	return &Identity{
		UserID:    userID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		Role:      role,
	}, nil
}

type identityContextKey struct{}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// FromContext returns the identity stored in context, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}
