package repository

import (
	"errors"
	"strings"

	"github.com/simp-lee/attendance/internal/domain"
	"gorm.io/gorm"
)

// mapError translates storage errors into domain errors. entity names the
// table in not-found messages.
func mapError(entity string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewAppError(domain.CodeNotFound, entity+" not found", nil)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, entity+" already exists", err)
	}
	if isNotNullError(err) {
		return domain.NewAppError(domain.CodeValidation, "missing required field", err)
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. Not all GORM dialectors translate driver-level errors to
// gorm.ErrDuplicatedKey (e.g. the pure-Go SQLite driver).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// isNotNullError detects NOT NULL violations in SQLite and PostgreSQL messages.
func isNotNullError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not null constraint") ||
		strings.Contains(msg, "violates not-null constraint")
}
