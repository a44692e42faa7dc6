// Package auth is the identity gate: it resolves a connection's credential
// token to a verified identity or rejects it. Token issuance is owned by the
// external account system; this package only verifies.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/talentlink/talentlink/internal/domain"
)

type contextKey int

const identityKey contextKey = iota

// Claims is the token payload the account system signs for a session.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Gate verifies credential tokens against the shared signing secret.
type Gate struct {
	secret []byte
}

// NewGate creates an identity gate for the given HMAC signing secret.
func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// Verify resolves a token to an identity. Any parse or signature failure is
// an authentication error; nothing else is mutated on the rejection path.
func (g *Gate) Verify(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	role := domain.Role(claims.Role)
	if role != domain.RoleStudent && role != domain.RoleRecruiter {
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}

	return domain.Identity{ID: claims.Subject, Role: role}, nil
}

// TokenFromRequest extracts the credential token from the Authorization
// header, or from the token query parameter for websocket upgrades where
// browsers cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, found := strings.CutPrefix(h, "Bearer "); found {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// IdentityFromContext extracts the verified identity from the request
// context. The second return is false if the gate middleware did not run.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

// Middleware verifies the request's token and injects the identity into the
// request context, rejecting unauthenticated requests with 401.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := g.Verify(TokenFromRequest(r))
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
