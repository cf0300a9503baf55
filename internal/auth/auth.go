// Package auth resolves the caller from an HMAC-signed bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vbonduro/famshop/internal/domain"
)

const bearerPrefix = "Bearer "

// DefaultRole is assigned when a token carries no role claim.
const DefaultRole = "user"

var validMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Claims accepts the subject in either sub or userId.
type Claims struct {
	UserID   string `json:"userId,omitempty"`
	Role     string `json:"role,omitempty"`
	FamilyID string `json:"familyId,omitempty"`
	jwt.RegisteredClaims
}

type Resolver struct {
	secret []byte
	logger *slog.Logger
}

func NewResolver(secret string, logger *slog.Logger) *Resolver {
	return &Resolver{secret: []byte(secret), logger: logger}
}

// Resolve returns the caller identity, or nil when the request carries no
// usable token. Verification failures are logged, never returned.
func (r *Resolver) Resolve(req *http.Request) *domain.Identity {
	header := req.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, bearerPrefix) {
		return nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return nil
	}

	id, err := r.Verify(token)
	if err != nil {
		r.logger.Warn("token verification failed", "path", req.URL.Path, "error", err)
		return nil
	}
	return id
}

// Verify checks the token signature and standard time claims.
func (r *Resolver) Verify(token string) (*domain.Identity, error) {
	if len(r.secret) == 0 {
		return nil, errors.New("no signing secret configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods(validMethods))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return nil, errors.New("token has no subject")
	}
	role := claims.Role
	if role == "" {
		role = DefaultRole
	}
	return &domain.Identity{UserID: userID, Role: role, FamilyID: claims.FamilyID}, nil
}

// Issuer mints HS256 tokens that Resolver accepts.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for userID. A zero ttl produces a token without expiry.
func (i *Issuer) Issue(userID, role, familyID string, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := i.now()
	claims := Claims{
		Role:     role,
		FamilyID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

type contextKey struct{}

// WithIdentity stores id in ctx for downstream handlers.
func WithIdentity(ctx context.Context, id *domain.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or nil.
func FromContext(ctx context.Context) *domain.Identity {
	id, _ := ctx.Value(contextKey{}).(*domain.Identity)
	return id
}
