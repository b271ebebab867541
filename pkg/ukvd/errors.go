package ukvd

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a machine-readable classification of a provider failure.
type ErrorCode string

const (
	CodeBadRequest  ErrorCode = "bad_request"
	CodeAuth        ErrorCode = "auth"
	CodeNotFound    ErrorCode = "not_found"
	CodeRateLimited ErrorCode = "rate_limited"
	CodeUpstream    ErrorCode = "upstream"
)

// APIError is a classified failure from the provider.
type APIError struct {
	StatusCode int
	Code       ErrorCode
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ukvd: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Transient reports whether the failure is safe to retry.
func (e *APIError) Transient() bool {
	return e.Code == CodeRateLimited || e.Code == CodeUpstream
}

// ErrCode extracts the machine-readable code from an error chain, or ""
// if the chain contains no APIError.
func ErrCode(err error) ErrorCode {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeUpstream
	default:
		return CodeBadRequest
	}
}
