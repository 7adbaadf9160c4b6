package apperror

import (
	"errors"
	"net/http"
)

// Error is the error type surfaced to callers of the service. Code is a
// stable string the routing layer and clients match on; Message is safe to
// show to users; Internal carries the underlying cause and is never exposed
// outside development diagnostics.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Internal   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Validation errors raised before any transform attempt. All of these are
// terminal: a job carrying one must never be redelivered.
var (
	ErrMissingFiles = &Error{
		Code:       "MISSING_FILES",
		Message:    "No file was provided",
		StatusCode: http.StatusBadRequest,
	}

	ErrFileTooLarge = &Error{
		Code:       "FILE_TOO_LARGE",
		Message:    "The file exceeds the maximum allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	ErrFileTooSmall = &Error{
		Code:       "FILE_TOO_SMALL",
		Message:    "The file is below the minimum allowed size",
		StatusCode: http.StatusBadRequest,
	}

	ErrFilenameTooLong = &Error{
		Code:       "FILENAME_TOO_LONG",
		Message:    "The filename exceeds 255 characters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidFilename = &Error{
		Code:       "INVALID_FILENAME",
		Message:    "The filename is empty or contains invalid characters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidExtension = &Error{
		Code:       "INVALID_EXTENSION",
		Message:    "This file extension is not supported",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidMimeType = &Error{
		Code:       "INVALID_MIME_TYPE",
		Message:    "This file type is not supported",
		StatusCode: http.StatusBadRequest,
	}

	ErrDangerousExtension = &Error{
		Code:       "DANGEROUS_EXTENSION",
		Message:    "This file extension is not allowed",
		StatusCode: http.StatusBadRequest,
	}

	ErrTypeMismatch = &Error{
		Code:       "TYPE_MISMATCH",
		Message:    "The file extension does not match the declared content type",
		StatusCode: http.StatusBadRequest,
	}

	ErrMaliciousContent = &Error{
		Code:       "MALICIOUS_CONTENT",
		Message:    "The file contains content that is not allowed",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidFileHeader = &Error{
		Code:       "INVALID_FILE_HEADER",
		Message:    "The file content does not match the declared format",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidContainer = &Error{
		Code:       "INVALID_CONTAINER",
		Message:    "The media container structure is invalid",
		StatusCode: http.StatusBadRequest,
	}

	ErrTooManyOperations = &Error{
		Code:       "TOO_MANY_OPERATIONS",
		Message:    "Too many operations were requested for this media type",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnsupportedOperations = &Error{
		Code:       "UNSUPPORTED_OPERATIONS",
		Message:    "One or more operations are not supported for this media type",
		StatusCode: http.StatusBadRequest,
	}

	ErrJobNotFound = &Error{
		Code:       "JOB_NOT_FOUND",
		Message:    "The requested job was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrJobNotCompleted = &Error{
		Code:       "JOB_NOT_COMPLETED",
		Message:    "The job has not completed yet",
		StatusCode: http.StatusConflict,
	}

	ErrFileNotFound = &Error{
		Code:       "FILE_NOT_FOUND",
		Message:    "The requested file was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrServiceUnavailable = &Error{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service temporarily unavailable. Please try again later",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrInternal = &Error{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred. Please try again later",
		StatusCode: http.StatusInternalServerError,
	}
)

func New(code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Validation builds a bad-request error with a caller-supplied code, used for
// per-operation parameter failures (INVALID_CROP, INVALID_RESIZE_WIDTH, ...).
func Validation(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:       appErr.Code,
		Message:    appErr.Message,
		StatusCode: appErr.StatusCode,
		Internal:   err,
	}
}

func WrapWithMessage(err error, code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// IsValidation reports whether err is (or wraps) an *Error. Validation errors
// are never retried.
func IsValidation(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr)
}

func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func SafeMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}
