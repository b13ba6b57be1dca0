// Package auth verifies bearer tokens and resolves the caller's tenant.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/leagueops/scorekeeper/internal/domain"
)

// Claims is the token payload the scorekeeper issues and accepts. The tenant
// is carried in the token, never in the request body: callers cannot address
// another tenant's data by naming it.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a token verifier. The issuer is enforced when non-empty.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a bearer token and returns the caller's
// identity. All failures carry a typed code so handlers can distinguish a
// missing token from an expired or malformed one.
func (v *Verifier) Verify(tokenString string) (*domain.AuthContext, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, domain.NewUnauthorized(domain.CodeTokenMissing, "authorization token required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.NewUnauthorized(domain.CodeTokenExpired, "token expired")
		}
		return nil, domain.NewUnauthorized(domain.CodeTokenInvalid, "token invalid")
	}

	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return nil, domain.NewUnauthorized(domain.CodeTenantMissing, "token carries no valid tenant")
	}

	return &domain.AuthContext{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Roles:    claims.Roles,
	}, nil
}

// Issue mints a token for the given identity. Used by the producer tool and
// by tests.
func (v *Verifier) Issue(userID, tenantID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
