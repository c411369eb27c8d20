package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeInvalidOrExpiredCode = "INVALID_OR_EXPIRED_CODE"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeUnauthenticated      = "UNAUTHENTICATED"
	TextCodeDeliveryFailure      = "DELIVERY_FAILURE"
	TextCodeValidationFailure    = "VALIDATION_FAILURE"
	TextCodeStaleSession         = "STALE_SESSION"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
)

// ErrInvalidCredentials covers "no such account", "wrong password" and
// "banned account" alike; callers must not be able to tell them apart.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateEmail is returned when a signup collides with an existing address.
var ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrInvalidOrExpiredCode covers both "no match" and "expired"; the two
// must be indistinguishable from the outside.
var ErrInvalidOrExpiredCode = goerrors.New("code is invalid or has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidOrExpiredCode).
	WithCode(goerrors.CodeBadRequest)

// ErrForbidden is returned when the resolved role is not in the allowed set.
var ErrForbidden = goerrors.New("you do not have permission to perform this action", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrUnauthenticated is returned when no usable session accompanies a request.
var ErrUnauthenticated = goerrors.New("you are not logged in", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrDeliveryFailure signals the out-of-band channel failed and the
// just-issued code was rolled back; the caller may retry.
var ErrDeliveryFailure = goerrors.New("could not deliver the code, please try again", goerrors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailure).
	WithCode(goerrors.CodeInternal)

// ErrValidationFailure covers malformed input, e.g. a password
// confirmation mismatch.
var ErrValidationFailure = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidationFailure).
	WithCode(goerrors.CodeBadRequest)

// ErrStaleSession is returned when a token predates the last password change.
var ErrStaleSession = goerrors.New("password changed, please log in again", goerrors.CategoryAuth).
	WithTextCode(TextCodeStaleSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is the session token past its exp claim.
var ErrTokenExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is a session token we could not parse or validate.
var ErrTokenMalformed = goerrors.New("invalid session token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// storeFailure wraps a persistence error. Fatal: the in-progress
// transition aborts and the core does not retry.
func storeFailure(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrTokenExpired) ||
		strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrTokenMalformed) ||
		strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
