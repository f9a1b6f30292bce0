package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, claimsMap jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsMap)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestParseToken(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":        userID.String(),
		"email":      "abebe@example.com",
		"first_name": "Abebe",
		"last_name":  "Bikila",
		"phone":      "+251911000000",
		"role":       "manager",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	identity, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if identity.UserID != userID {
		t.Errorf("UserID = %s, want %s", identity.UserID, userID)
	}
	if identity.Email != "abebe@example.com" {
		t.Errorf("Email = %q", identity.Email)
	}
	if identity.Role != RoleManager {
		t.Errorf("Role = %q, want manager", identity.Role)
	}
	if !identity.IsStaff() {
		t.Error("manager should be staff")
	}
}

func TestParseTokenDefaultsRole(t *testing.T) {
	t.Parallel()

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	identity, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if identity.Role != RoleCustomer {
		t.Errorf("Role = %q, want customer", identity.Role)
	}
	if identity.IsStaff() {
		t.Error("customer should not be staff")
	}
}

func TestParseTokenRejects(t *testing.T) {
	t.Parallel()

	valid := jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name   string
		secret string
		claims jwt.MapClaims
	}{
		{
			name:   "wrong secret",
			secret: "ffffffffffffffffffffffffffffffff",
			claims: valid,
		},
		{
			name:   "expired",
			secret: testSecret,
			claims: jwt.MapClaims{
				"sub": uuid.New().String(),
				"exp": time.Now().Add(-time.Hour).Unix(),
			},
		},
		{
			name:   "bad subject",
			secret: testSecret,
			claims: jwt.MapClaims{
				"sub": "not-a-uuid",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
		},
		{
			name:   "unknown role",
			secret: testSecret,
			claims: jwt.MapClaims{
				"sub":  uuid.New().String(),
				"role": "superuser",
				"exp":  time.Now().Add(time.Hour).Unix(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			token := signToken(t, tt.secret, tt.claims)
			if _, err := ParseToken(testSecret, token); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	if _, ok := FromContext(t.Context()); ok {
		t.Fatal("empty context should have no identity")
	}

	identity := &Identity{UserID: uuid.New(), Role: RoleCustomer}
	ctx := WithIdentity(t.Context(), identity)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("identity not found in context")
	}
	if got.UserID != identity.UserID {
		t.Errorf("UserID = %s, want %s", got.UserID, identity.UserID)
	}
}
