package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/famshop/internal/domain"
	"github.com/vbonduro/famshop/internal/logging"
)

const secret = "test-secret"

func resolve(t *testing.T, header string) *domain.Identity {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/shopping/items", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return NewResolver(secret, logging.Discard()).Resolve(req)
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestResolveIssuedToken(t *testing.T) {
	token, err := NewIssuer(secret).Issue("u1", "PARENT", "f1", time.Hour)
	require.NoError(t, err)

	id := resolve(t, "Bearer "+token)
	require.NotNil(t, id)
	assert.Equal(t, domain.Identity{UserID: "u1", Role: "PARENT", FamilyID: "f1"}, *id)
}

func TestResolveFallbacks(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS384, []byte(secret), jwt.MapClaims{"userId": "u2"})

	id := resolve(t, "Bearer "+token)
	require.NotNil(t, id)
	assert.Equal(t, "u2", id.UserID)
	assert.Equal(t, DefaultRole, id.Role)
	assert.Empty(t, id.FamilyID)
}

func TestResolveRejects(t *testing.T) {
	good, err := NewIssuer(secret).Issue("u1", "PARENT", "f1", time.Hour)
	require.NoError(t, err)
	expired := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix(),
	})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "u1"})
	noSubject := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"role": "PARENT"})
	unsigned := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "u1"})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", good},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"no subject", "Bearer " + noSubject},
		{"alg none", "Bearer " + unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, resolve(t, tt.header))
		})
	}
}

func TestVerifyWithoutSecret(t *testing.T) {
	_, err := NewResolver("", logging.Discard()).Verify("anything")
	assert.Error(t, err)

	_, err = NewIssuer("").Issue("u1", "PARENT", "", 0)
	assert.Error(t, err)
}

func TestIssueWithoutExpiry(t *testing.T) {
	token, err := NewIssuer(secret).Issue("u1", "CHILD", "", 0)
	require.NoError(t, err)

	id, err := NewResolver(secret, logging.Discard()).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "CHILD", id.Role)
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	id := &domain.Identity{UserID: "u1"}
	ctx := WithIdentity(context.Background(), id)
	assert.Same(t, id, FromContext(ctx))
}
