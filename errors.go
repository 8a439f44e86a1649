package accounts

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

// ErrMismatchedHashAndPassword is the collapsed credentials error. It covers
// both unknown accounts and wrong passwords so callers cannot probe which
// emails are registered.
var ErrMismatchedHashAndPassword = errors.New(
	"Email and Password did not match or Account not found",
	errors.CategoryAuth,
).WithTextCode("CREDENTIALS_MISMATCH").WithCode(errors.CodeUnauthorized)

// ErrAccountNotVerified is returned when credentials match but the account
// has not completed email verification.
var ErrAccountNotVerified = errors.New(
	"Account not yet verified",
	errors.CategoryAuthz,
).WithTextCode("ACCOUNT_NOT_VERIFIED").WithCode(errors.CodeForbidden)

// ErrNoActiveSession is returned by account removal flows when the caller
// re-authenticated but presented no live session.
var ErrNoActiveSession = errors.New(
	"Login first",
	errors.CategoryAuthz,
).WithTextCode("NO_ACTIVE_SESSION").WithCode(errors.CodeForbidden)

// ErrRequestNotAllowed is the cross-account tamper error: the session
// identity and the submitted identity do not match.
var ErrRequestNotAllowed = errors.New(
	"Request not allowed",
	errors.CategoryAuthz,
).WithTextCode("REQUEST_NOT_ALLOWED").WithCode(http.StatusNotAcceptable)

// ErrTooManyLoginAttempts is returned when an account is cooling down after
// repeated failed logins.
var ErrTooManyLoginAttempts = errors.New(
	"Too many login attempts, try again later",
	errors.CategoryRateLimit,
).WithTextCode("TOO_MANY_ATTEMPTS").WithCode(http.StatusTooManyRequests)

// ErrTokenExpired is returned when a JWT is past its expiration.
var ErrTokenExpired = errors.New(
	"Authentication token expired",
	errors.CategoryAuth,
).WithTextCode("TOKEN_EXPIRED").WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens we cannot parse or verify.
var ErrTokenMalformed = errors.New(
	"Invalid authentication token",
	errors.CategoryAuth,
).WithTextCode("TOKEN_MALFORMED").WithCode(errors.CodeUnauthorized)

// ErrTokenRevoked is returned for tokens invalidated by logout or refresh.
var ErrTokenRevoked = errors.New(
	"Authentication token revoked",
	errors.CategoryAuth,
).WithTextCode("TOKEN_REVOKED").WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New(
	"identity not found",
	errors.CategoryNotFound,
).WithTextCode("IDENTITY_NOT_FOUND").WithCode(errors.CodeNotFound)

// ErrNoEmptyString guards against hashing empty passwords
var ErrNoEmptyString = stderrors.New("password should not be an empty string")

// ErrUnableToFindSession is the error when our reequest has no token
var ErrUnableToFindSession = stderrors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from the presented token
var ErrUnableToDecodeSession = stderrors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = stderrors.New("unable to map claims")

// ErrUnableToParseData parse error
var ErrUnableToParseData = stderrors.New("unable to parse data")

// ValidationFailed builds the field-level validation error used across the
// account lifecycle. The fields map travels in error metadata so HTTP
// handlers can render `{error: {field: message}}` bodies.
func ValidationFailed(fields map[string]string) *errors.Error {
	meta := make(map[string]any, len(fields))
	for field, message := range fields {
		meta[field] = message
	}

	return errors.New("The given data was invalid", errors.CategoryValidation).
		WithTextCode("VALIDATION_FAILED").
		WithCode(errors.CodeBadRequest).
		WithMetadata(meta)
}

// IsValidationError checks the error category
func IsValidationError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryValidation
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
