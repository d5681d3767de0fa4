package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrNotFound     ErrorType = "NOT_FOUND"
	ErrRateLimited  ErrorType = "RATE_LIMITED"
	ErrUpstream     ErrorType = "UPSTREAM"
	ErrConflict     ErrorType = "CONFLICT"
	ErrInvalidInput ErrorType = "INVALID_INPUT"
	ErrInternal     ErrorType = "INTERNAL"
	ErrUnauthorized ErrorType = "UNAUTHORIZED"
)

// AppError represents an application error
type AppError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return isType(err, ErrNotFound) || errors.As(err, &nf)
}

// IsRateLimited checks if the error is a provider rate limit error
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return isType(err, ErrRateLimited) || errors.As(err, &rl)
}

// IsUpstream checks if the error is a non-2xx upstream API error
func IsUpstream(err error) bool {
	var up *UpstreamError
	return isType(err, ErrUpstream) || errors.As(err, &up)
}

// IsSyncInProgress checks if the error is a concurrency conflict on an
// already-running import
func IsSyncInProgress(err error) bool {
	var sip *SyncInProgressError
	return isType(err, ErrConflict) || errors.As(err, &sip)
}

// IsValidationError checks if the error is an invalid input error
func IsValidationError(err error) bool {
	return isType(err, ErrInvalidInput)
}

// NotFoundError is returned when a provider call succeeds but finds nothing,
// or when a local entity is missing.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// RateLimitedError is returned when a provider answers with a rate-limit
// response. Callers back off and retry; it is not a permanent failure.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %v", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// NewRateLimitedError creates a new RateLimitedError
func NewRateLimitedError(provider string, retryAfter time.Duration) error {
	return &RateLimitedError{Provider: provider, RetryAfter: retryAfter}
}

// UpstreamError is a non-2xx, non-429 provider response. 4xx are
// non-retryable; 5xx may be retried by the caller.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the upstream failure is worth retrying.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode >= 500
}

// NewUpstreamError creates a new UpstreamError
func NewUpstreamError(provider string, statusCode int, message string) error {
	return &UpstreamError{Provider: provider, StatusCode: statusCode, Message: message}
}

// SyncInProgressError is raised when an import trigger arrives while one is
// already in flight for the same artist. Callers coalesce into the running
// import rather than surfacing a failure.
type SyncInProgressError struct {
	ArtistID int64
}

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("import already in progress for artist %d", e.ArtistID)
}

// NewSyncInProgressError creates a new SyncInProgressError
func NewSyncInProgressError(artistID int64) error {
	return &SyncInProgressError{ArtistID: artistID}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return New(ErrInvalidInput, message, err)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrInternal, message, err)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return New(ErrUnauthorized, message, err)
}
