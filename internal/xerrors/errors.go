package xerrors

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Code is the machine readable error identifier sent to clients.
type Code string

const (
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeInternal           Code = "internal_error"
	CodeUnavailable        Code = "service_unavailable"
	CodeRateLimited        Code = "rate_limited"
	CodeValidation         Code = "validation_failed"
	CodeIncompatibleClient Code = "incompatible_version"
)

type Error struct {
	StatusCode int
	Code       Code
	Message    string
	Cause      error
	RateLimit  *RateLimitInfo
	Validation *ValidationInfo
}

type RateLimitInfo struct {
	RetryAfter time.Duration
	Reason     string
}

type ValidationInfo struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func Unauthorized(opts ...Option) *Error {
	return newErr(http.StatusUnauthorized, CodeUnauthorized, opts)
}

func Forbidden(opts ...Option) *Error {
	return newErr(http.StatusForbidden, CodeForbidden, opts)
}

func BadRequest(opts ...Option) *Error {
	return newErr(http.StatusBadRequest, CodeBadRequest, opts)
}

func NotFound(opts ...Option) *Error {
	return newErr(http.StatusNotFound, CodeNotFound, opts)
}

func Internal(opts ...Option) *Error {
	return newErr(http.StatusInternalServerError, CodeInternal, opts)
}

func ServiceUnavailable(opts ...Option) *Error {
	return newErr(http.StatusServiceUnavailable, CodeUnavailable, opts)
}

func TooManyRequests(opts ...Option) *Error {
	return newErr(http.StatusTooManyRequests, CodeRateLimited, opts)
}

func UpgradeRequired(opts ...Option) *Error {
	return newErr(http.StatusUpgradeRequired, CodeIncompatibleClient, opts)
}

func Validation(fields map[string]string, opts ...Option) *Error {
	e := newErr(http.StatusUnprocessableEntity, CodeValidation, opts)
	e.Validation = &ValidationInfo{Fields: fields}
	return e
}

func newErr(status int, code Code, opts []Option) *Error {
	e := &Error{
		StatusCode: status,
		Code:       code,
		Message:    strings.ToLower(http.StatusText(status)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*Error)

func WithMessage(msg string) Option { return func(e *Error) { e.Message = msg } }
func WithCause(err error) Option    { return func(e *Error) { e.Cause = err } }

func WithRetryAfter(d time.Duration) Option {
	return func(e *Error) {
		if e.RateLimit == nil {
			e.RateLimit = &RateLimitInfo{}
		}
		e.RateLimit.RetryAfter = d
	}
}

func WithReason(reason string) Option {
	return func(e *Error) {
		if e.RateLimit == nil {
			e.RateLimit = &RateLimitInfo{}
		}
		e.RateLimit.Reason = reason
	}
}

func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
