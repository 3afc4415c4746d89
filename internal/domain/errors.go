package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried by AppError. They are stable and never reused.
const (
	CodeNotFound          = 1
	CodeAlreadyExists     = 2
	CodeValidation        = 3
	CodeInternal          = 4
	CodeUnauthorized      = 5
	CodeForbidden         = 6
	CodeReferenceNotFound = 7
	CodeConfiguration     = 8
	CodeTokenExpired      = 9
	CodeTokenInvalid      = 10
)

// AppError is the error type every layer below the handlers returns for
// failures the caller is meant to see. Message is safe to show to clients;
// Err is kept for logs and errors.Is.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// Sentinels. Compare with the Is* helpers, which match on the code and so
// also catch NewAppError values and wrapped errors.
var (
	ErrNotFound          = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists     = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation        = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal          = &AppError{Code: CodeInternal, Message: "internal error"}
	ErrUnauthorized      = &AppError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden         = &AppError{Code: CodeForbidden, Message: "forbidden"}
	ErrReferenceNotFound = &AppError{Code: CodeReferenceNotFound, Message: "referenced entity not found"}
	ErrConfiguration     = &AppError{Code: CodeConfiguration, Message: "server misconfigured"}
	ErrTokenExpired      = &AppError{Code: CodeTokenExpired, Message: "token expired"}
	ErrTokenInvalid      = &AppError{Code: CodeTokenInvalid, Message: "invalid token"}
)

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// ReferenceNotFound reports a foreign-key field whose global identifier does
// not resolve to a live row, e.g. "group_id with global_id 'g-1' not found".
func ReferenceNotFound(field, globalID string, err error) *AppError {
	return NewAppError(CodeReferenceNotFound, fmt.Sprintf("%s with global_id '%s' not found", field, globalID), err)
}

// MissingSecret is returned by every token operation when no signing secret
// is configured.
func MissingSecret() *AppError {
	return NewAppError(CodeConfiguration, "token secret is not configured", nil)
}

func codeOf(err error) (int, bool) {
	var appErr *AppError
	if err == nil || !errors.As(err, &appErr) {
		return 0, false
	}
	return appErr.Code, true
}

func hasCode(err error, codes ...int) bool {
	got, ok := codeOf(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if got == c {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool          { return hasCode(err, CodeNotFound) }
func IsAlreadyExists(err error) bool     { return hasCode(err, CodeAlreadyExists) }
func IsValidation(err error) bool        { return hasCode(err, CodeValidation) }
func IsInternal(err error) bool          { return hasCode(err, CodeInternal) }
func IsForbidden(err error) bool         { return hasCode(err, CodeForbidden) }
func IsReferenceNotFound(err error) bool { return hasCode(err, CodeReferenceNotFound) }
func IsConfiguration(err error) bool     { return hasCode(err, CodeConfiguration) }
func IsTokenExpired(err error) bool      { return hasCode(err, CodeTokenExpired) }
func IsTokenInvalid(err error) bool      { return hasCode(err, CodeTokenInvalid) }

// IsUnauthorized covers every unauthenticated failure, expired and invalid
// tokens included.
func IsUnauthorized(err error) bool {
	return hasCode(err, CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid)
}

// HTTPStatusCode maps err to the status the API answers with. Anything that
// is not an AppError, or carries an unknown code, is a 500.
func HTTPStatusCode(err error) int {
	code, _ := codeOf(err)
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeValidation, CodeReferenceNotFound:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
