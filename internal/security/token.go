// Package security issues and verifies signed claim sets and derives caller
// privilege from bearer tokens.
package security

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/simp-lee/attendance/internal/domain"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claim keys written by Issue.
const (
	ClaimExpiresAt = "exp"
	ClaimTokenType = "token_type"
	ClaimRole      = "role"
)

var signingMethod = jwt.SigningMethodHS256

// Claims is a decoded token payload.
type Claims map[string]any

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// TokenType returns the token_type claim.
func (c Claims) TokenType() TokenType {
	return TokenType(c.String(ClaimTokenType))
}

// Roles returns the role claim, which may be a single value or a list.
func (c Claims) Roles() []string {
	switch v := c[ClaimRole].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
		return roles
	}
	return nil
}

// HasRole reports whether any role in the claim set matches any allowed role,
// ignoring case.
func (c Claims) HasRole(allowed ...string) bool {
	for _, role := range c.Roles() {
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(role), a) {
				return true
			}
		}
	}
	return false
}

// Issue signs claims with secret using HS256. The returned token carries
// exp = now + ttl and the token type; the caller's map is not modified.
func Issue(claims map[string]any, secret string, ttl time.Duration, typ TokenType) (string, int64, error) {
	if secret == "" {
		return "", 0, domain.MissingSecret()
	}

	expiresAt := time.Now().Add(ttl).Unix()
	payload := jwt.MapClaims{}
	maps.Copy(payload, claims)
	payload[ClaimExpiresAt] = expiresAt
	payload[ClaimTokenType] = string(typ)

	token, err := jwt.NewWithClaims(signingMethod, payload).SignedString([]byte(secret))
	if err != nil {
		return "", 0, domain.NewAppError(domain.CodeInternal, "failed to sign token", err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// An expired but correctly signed token yields CodeTokenExpired; every other
// failure yields CodeTokenInvalid. The token type is not checked.
func Verify(token, secret string) (Claims, error) {
	if secret == "" {
		return nil, domain.MissingSecret()
	}
	if token == "" {
		return nil, domain.NewAppError(domain.CodeTokenInvalid, "invalid token", jwt.ErrTokenMalformed)
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{signingMethod.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.NewAppError(domain.CodeTokenExpired, "token expired", err)
		}
		return nil, domain.NewAppError(domain.CodeTokenInvalid, "invalid token", err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, domain.NewAppError(domain.CodeTokenInvalid, "invalid token", nil)
	}
	return Claims(mc), nil
}

// Codec binds the process-wide signing secret.
type Codec struct {
	secret string
}

// NewCodec returns a Codec for secret. An empty secret is accepted here and
// reported as a configuration error on first use.
func NewCodec(secret string) *Codec {
	return &Codec{secret: secret}
}

// Configured reports whether a signing secret is present.
func (c *Codec) Configured() bool {
	return c != nil && c.secret != ""
}

func (c *Codec) Issue(claims map[string]any, ttl time.Duration, typ TokenType) (string, int64, error) {
	if c == nil {
		return Issue(claims, "", ttl, typ)
	}
	return Issue(claims, c.secret, ttl, typ)
}

func (c *Codec) Verify(token string) (Claims, error) {
	if c == nil {
		return Verify(token, "")
	}
	return Verify(token, c.secret)
}

// VerifyType verifies token and additionally requires its token_type to be typ.
func (c *Codec) VerifyType(token string, typ TokenType) (Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType() != typ {
		return nil, domain.NewAppError(domain.CodeTokenInvalid,
			fmt.Sprintf("expected %s token", typ), nil)
	}
	return claims, nil
}
