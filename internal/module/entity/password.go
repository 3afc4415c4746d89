package entity

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/simp-lee/attendance/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	passwordField     = "password"
	passwordHashField = "password_hash"

	minPasswordLength = 8
	maxPasswordLength = 32
	// bcrypt refuses longer input.
	maxPasswordBytes = 72
)

// PasswordRule is the validator tag for account passwords.
var PasswordRule = fmt.Sprintf("min=%d,max=%d", minPasswordLength, maxPasswordLength)

// HashPassword replaces a plain "password" field with its bcrypt hash in
// "password_hash". A client-supplied password_hash is always discarded.
func HashPassword(cost int) PrepareFunc {
	return func(_ context.Context, _ Op, payload domain.Payload) error {
		delete(payload, passwordHashField)

		raw, ok := payload[passwordField]
		if !ok {
			return nil
		}
		delete(payload, passwordField)
		if raw == nil {
			return nil
		}

		password, ok := raw.(string)
		if !ok {
			return domain.NewAppError(domain.CodeValidation, "password must be a string", nil)
		}
		if n := utf8.RuneCountInString(password); n < minPasswordLength || n > maxPasswordLength {
			return domain.NewAppError(domain.CodeValidation,
				fmt.Sprintf("password must be %d-%d characters", minPasswordLength, maxPasswordLength), nil)
		}
		if len(password) > maxPasswordBytes {
			return domain.NewAppError(domain.CodeValidation,
				fmt.Sprintf("password must not exceed %d bytes", maxPasswordBytes), nil)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return domain.NewAppError(domain.CodeInternal, "failed to hash password", err)
		}
		payload[passwordHashField] = string(hash)
		return nil
	}
}
