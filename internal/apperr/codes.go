package apperr

import "net/http"

type Code string

const (
	CodeValidation   Code = "VALIDATION"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeUnavailable  Code = "BACKING_STORE_UNAVAILABLE"
	CodeUpstream     Code = "UPSTREAM_VERIFICATION_FAILED"
	CodeDisabled     Code = "DISABLED"
	CodeInternal     Code = "INTERNAL"
)

// HTTPStatus maps a code to the status written by the HTTP layer.
func HTTPStatus(c Code) int {
	switch c {
	case CodeValidation, CodeUpstream:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
