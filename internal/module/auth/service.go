package auth

import (
	"context"
	"strings"
	"time"

	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/security"
	"github.com/simp-lee/attendance/internal/settings"
	"golang.org/x/crypto/bcrypt"
)

// Claim keys describing the authenticated account.
const (
	ClaimUserID    = "user_id"
	ClaimGlobalID  = "global_id"
	ClaimEmail     = "email"
	ClaimFirstName = "first_name"
	ClaimLastName  = "last_name"
)

const emailColumn = "email"

// Service defines the authentication operations.
type Service interface {
	AdminLogin(ctx context.Context, email, password string) (*TokenResponse, error)
	AdminRefresh(ctx context.Context, claims security.Claims) (*TokenResponse, error)
	UserLogin(ctx context.Context, email, password string) (*TokenResponse, error)
	UserRefresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// AccountFinder looks up an account row by a unique column.
// *repository.Repository[T] implements it.
type AccountFinder[T any] interface {
	FindBy(ctx context.Context, column string, value any) (*T, error)
}

// TTLSource resolves token lifetimes from runtime settings.
// *settings.Cache implements it.
type TTLSource interface {
	Duration(ctx context.Context, key string, def time.Duration) time.Duration
}

// Accounts groups the account lookups used for login.
type Accounts struct {
	Admins      AccountFinder[domain.Admin]
	Instructors AccountFinder[domain.Instructor]
	Students    AccountFinder[domain.Student]
}

// TTL holds the configured token lifetimes used when no setting overrides them.
type TTL struct {
	Access  time.Duration
	Refresh time.Duration
}

// authService implements Service.
type authService struct {
	codec    *security.Codec
	accounts Accounts
	ttls     TTLSource
	defaults TTL
}

// NewService creates a new auth Service. ttls may be nil, in which case the
// defaults always apply.
func NewService(codec *security.Codec, accounts Accounts, ttls TTLSource, defaults TTL) Service {
	return &authService{
		codec:    codec,
		accounts: accounts,
		ttls:     ttls,
		defaults: defaults,
	}
}

func invalidCredentials() error {
	return domain.NewAppError(domain.CodeUnauthorized, "invalid credentials", nil)
}

// AdminLogin authenticates an administrator and issues a token pair.
func (s *authService) AdminLogin(ctx context.Context, email, password string) (*TokenResponse, error) {
	if !s.codec.Configured() {
		return nil, domain.MissingSecret()
	}

	admin, err := authenticate(ctx, s.accounts.Admins, email, password, func(a *domain.Admin) (string, domain.Lifecycle) {
		return a.PasswordHash, a.Active
	})
	if err != nil {
		return nil, err
	}

	return s.issuePair(ctx, map[string]any{
		ClaimUserID:        admin.ID,
		ClaimGlobalID:      admin.GlobalID,
		ClaimEmail:         admin.Email,
		security.ClaimRole: admin.Role,
		ClaimFirstName:     admin.FirstName,
		ClaimLastName:      admin.LastName,
	})
}

// AdminRefresh issues a new token pair for an administrator holding a valid
// access token.
func (s *authService) AdminRefresh(ctx context.Context, claims security.Claims) (*TokenResponse, error) {
	if len(claims) == 0 {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "missing claims", nil)
	}
	return s.issuePair(ctx, claims)
}

// UserLogin authenticates an instructor or, failing that, a student.
func (s *authService) UserLogin(ctx context.Context, email, password string) (*TokenResponse, error) {
	if !s.codec.Configured() {
		return nil, domain.MissingSecret()
	}

	instructor, err := authenticate(ctx, s.accounts.Instructors, email, password, func(i *domain.Instructor) (string, domain.Lifecycle) {
		return i.PasswordHash, i.Active
	})
	if err == nil {
		return s.issuePair(ctx, map[string]any{
			ClaimUserID:        instructor.ID,
			ClaimGlobalID:      instructor.GlobalID,
			ClaimEmail:         instructor.Email,
			security.ClaimRole: instructorRole(instructor.Position),
			ClaimFirstName:     instructor.FirstName,
			ClaimLastName:      instructor.LastName,
		})
	}
	if !domain.IsUnauthorized(err) {
		return nil, err
	}

	student, err := authenticate(ctx, s.accounts.Students, email, password, func(st *domain.Student) (string, domain.Lifecycle) {
		return st.PasswordHash, st.Active
	})
	if err != nil {
		return nil, err
	}
	globalID := student.GlobalID
	if globalID == "" {
		globalID = student.StudentCode
	}
	return s.issuePair(ctx, map[string]any{
		ClaimUserID:        student.ID,
		ClaimGlobalID:      globalID,
		ClaimEmail:         student.Email,
		security.ClaimRole: domain.RoleStudent,
		ClaimFirstName:     student.FirstName,
		ClaimLastName:      student.LastName,
	})
}

// UserRefresh exchanges a refresh token for a new access token and a rotated
// refresh token.
func (s *authService) UserRefresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.codec.VerifyType(refreshToken, security.RefreshToken)
	if err != nil {
		return nil, err
	}
	return s.issuePair(ctx, claims)
}

func (s *authService) issuePair(ctx context.Context, claims map[string]any) (*TokenResponse, error) {
	accessTTL, refreshTTL := s.defaults.Access, s.defaults.Refresh
	if s.ttls != nil {
		accessTTL = s.ttls.Duration(ctx, settings.KeyAccessTTL, accessTTL)
		refreshTTL = s.ttls.Duration(ctx, settings.KeyRefreshTTL, refreshTTL)
	}

	token, expires, err := s.codec.Issue(claims, accessTTL, security.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, refreshExpires, err := s.codec.Issue(claims, refreshTTL, security.RefreshToken)
	if err != nil {
		return nil, err
	}

	role, _ := claims[security.ClaimRole].(string)
	return &TokenResponse{
		Token:          token,
		Expires:        expires,
		Role:           role,
		RefreshToken:   refresh,
		RefreshExpires: refreshExpires,
	}, nil
}

// authenticate loads the account by email and checks its password. Unknown,
// inactive, and mismatching accounts are indistinguishable to the caller.
func authenticate[T any](ctx context.Context, finder AccountFinder[T], email, password string, secret func(*T) (string, domain.Lifecycle)) (*T, error) {
	if finder == nil {
		return nil, invalidCredentials()
	}
	account, err := finder.FindBy(ctx, emailColumn, strings.TrimSpace(email))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, invalidCredentials()
		}
		return nil, err
	}

	hash, state := secret(account)
	if state != domain.LifecycleActive || hash == "" {
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, invalidCredentials()
	}
	return account, nil
}

// instructorRole maps an instructor position to its role claim.
func instructorRole(position *string) string {
	if position != nil {
		switch p := strings.ToLower(strings.TrimSpace(*position)); p {
		case domain.RoleProfessor, domain.RoleLecturer, domain.RoleAssistant:
			return p
		}
	}
	return domain.RoleLecturer
}
