package security

import (
	"strings"

	"github.com/simp-lee/attendance/internal/domain"
)

const bearerScheme = "bearer"

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Inspector answers privilege questions about the bearer of a request.
// Only access tokens are accepted.
type Inspector struct {
	codec      *Codec
	privileged []string
}

// NewInspector returns an Inspector backed by codec. When no privileged roles
// are given, domain.PrivilegedRoles is used.
func NewInspector(codec *Codec, privileged ...string) *Inspector {
	if len(privileged) == 0 {
		privileged = domain.PrivilegedRoles
	}
	return &Inspector{codec: codec, privileged: privileged}
}

// IsPrivileged reports whether header carries a valid access token whose role
// is in the privileged set. It never fails; any problem yields false.
func (i *Inspector) IsPrivileged(header string) bool {
	claims, err := i.authenticate(header)
	if err != nil {
		return false
	}
	return claims.HasRole(i.privileged...)
}

// Caller returns the caller context for header.
func (i *Inspector) Caller(header string) domain.Caller {
	return domain.Caller{Privileged: i.IsPrivileged(header)}
}

// RequireRole verifies header and requires one of allowed roles. With no
// allowed roles any authenticated caller passes.
func (i *Inspector) RequireRole(header string, allowed ...string) (Claims, error) {
	claims, err := i.authenticate(header)
	if err != nil {
		return nil, err
	}
	if len(allowed) > 0 && !claims.HasRole(allowed...) {
		return nil, domain.NewAppError(domain.CodeForbidden, "insufficient role", nil)
	}
	return claims, nil
}

func (i *Inspector) authenticate(header string) (Claims, error) {
	if !i.codec.Configured() {
		return nil, domain.MissingSecret()
	}
	token, ok := BearerToken(header)
	if !ok {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "missing or malformed authorization header", nil)
	}
	return i.codec.VerifyType(token, AccessToken)
}
