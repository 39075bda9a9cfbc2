package auth

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidCode     = errors.New("invalid code")
	ErrCodeExpired     = errors.New("code expired or not requested")
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrSuccessFailed wraps any error returned by the success callback.
	ErrSuccessFailed = errors.New("authentication could not be completed")
)

// OAuth error codes.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeServerError             = "server_error"
)

// Error is an OAuth protocol error.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

// Status maps the error code onto an HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case CodeInvalidClient:
		return http.StatusUnauthorized
	case CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func oauthError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// AsError returns err as an *Error, turning anything else into server_error.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return oauthError(CodeServerError, "internal error")
}
