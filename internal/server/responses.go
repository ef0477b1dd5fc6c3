package server

import (
	"context"
	"errors"
	"net/http"

	"beatsketch/internal/analysis"
	"beatsketch/internal/audio"
)

// Error codes sent in the "errcode" field.
const (
	ErrCodeBadRequest      = "BS_BAD_REQUEST"
	ErrCodeTooLarge        = "BS_TOO_LARGE"
	ErrCodeUnsupportedType = "BS_UNSUPPORTED_TYPE"
	ErrCodeNoBeats         = "BS_NO_BEATS"
	ErrCodeFetchFailed     = "BS_FETCH_FAILED"
	ErrCodeRateLimited     = "BS_LIMIT_EXCEEDED"
	ErrCodeNotFound        = "BS_NOT_FOUND"
	ErrCodeUnknown         = "BS_UNKNOWN"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    string `json:"errcode"`
	Message string `json:"error"`
	status  int
}

func BadRequest(message string) *ErrorResponse {
	return &ErrorResponse{ErrCodeBadRequest, message, http.StatusBadRequest}
}

func RequestTooLarge(message string) *ErrorResponse {
	return &ErrorResponse{ErrCodeTooLarge, message, http.StatusRequestEntityTooLarge}
}

func UnsupportedType(message string) *ErrorResponse {
	return &ErrorResponse{ErrCodeUnsupportedType, message, http.StatusUnsupportedMediaType}
}

func NoBeats() *ErrorResponse {
	return &ErrorResponse{ErrCodeNoBeats, "No beats detected", http.StatusUnprocessableEntity}
}

func FetchFailed(message string) *ErrorResponse {
	return &ErrorResponse{ErrCodeFetchFailed, message, http.StatusBadGateway}
}

func RateLimitReached() *ErrorResponse {
	return &ErrorResponse{ErrCodeRateLimited, "Rate Limited", http.StatusTooManyRequests}
}

func NotFoundError() *ErrorResponse {
	return &ErrorResponse{ErrCodeNotFound, "Not found", http.StatusNotFound}
}

func MethodNotAllowed() *ErrorResponse {
	return &ErrorResponse{ErrCodeUnknown, "Method Not Allowed", http.StatusMethodNotAllowed}
}

func InternalServerError(message string) *ErrorResponse {
	return &ErrorResponse{ErrCodeUnknown, message, http.StatusInternalServerError}
}

// errorFor maps pipeline errors to responses.
func errorFor(err error) *ErrorResponse {
	switch {
	case errors.Is(err, audio.ErrTooLarge):
		return RequestTooLarge(err.Error())
	case errors.Is(err, audio.ErrUnsupportedType):
		return UnsupportedType(err.Error())
	case errors.Is(err, audio.ErrDecode),
		errors.Is(err, audio.ErrInvalidURL),
		errors.Is(err, audio.ErrUnsupportedScheme),
		errors.Is(err, analysis.ErrInvalidBuffer):
		return BadRequest(err.Error())
	case errors.Is(err, audio.ErrFetch):
		return FetchFailed(err.Error())
	case errors.Is(err, analysis.ErrNoBeats):
		return NoBeats()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &ErrorResponse{ErrCodeUnknown, "Analysis cancelled", http.StatusServiceUnavailable}
	default:
		return InternalServerError("Unexpected error during analysis")
	}
}
