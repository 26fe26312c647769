package errors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tunegrab/tunegrab/internal/logger"
)

// Stable error codes for pipeline failures. Each code maps to exactly one
// user-facing message; callers match on code, never on message text.
const (
	CodeFileTooLarge           = "FILE_TOO_LARGE"
	CodeExtractionFailed       = "EXTRACTION_FAILED"
	CodeRecognitionUnavailable = "RECOGNITION_SERVICE_UNAVAILABLE"
	CodeNoSourceFound          = "NO_SOURCE_FOUND"
	CodeAutomationBlocked      = "AUTOMATION_BLOCKED"
	CodeDownloadFailed         = "DOWNLOAD_FAILED"
	CodeReachabilityWrite      = "REACHABILITY_WRITE_FAILED"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInternal               = "INTERNAL_ERROR"
)

// PipelineError is a structured error with a stable code and HTTP context.
type PipelineError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches two pipeline errors by code, so errors.Is works against the
// constructor outputs regardless of context or cause.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return pe.Code == e.Code
	}
	return false
}

// CodeOf returns the pipeline error code of err, or empty when err is not a
// PipelineError.
func CodeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ToGinResponse sends the error as a standardized JSON response.
func (e *PipelineError) ToGinResponse(c *gin.Context) {
	statusCode := e.HTTPStatus
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	response := gin.H{
		"error": e.Message,
		"code":  e.Code,
	}
	if len(e.Context) > 0 {
		response["details"] = e.Context
	}

	logger.Error("HTTP error response", []logger.Field{
		logger.Int("status", statusCode),
		logger.String("code", e.Code),
		logger.String("path", c.Request.URL.Path),
	})

	c.JSON(statusCode, response)
}

// NewFileTooLarge reports an input or artifact above the configured byte ceiling.
func NewFileTooLarge(sizeBytes, ceilingBytes int64) *PipelineError {
	return &PipelineError{
		Code:       CodeFileTooLarge,
		Message:    "file exceeds the maximum allowed size",
		HTTPStatus: http.StatusRequestEntityTooLarge,
		Context:    map[string]interface{}{"size_bytes": sizeBytes, "ceiling_bytes": ceilingBytes},
	}
}

// NewExtractionFailed reports corrupt input, an unsupported codec, or a
// missing audio stream.
func NewExtractionFailed(cause error) *PipelineError {
	return &PipelineError{
		Code:       CodeExtractionFailed,
		Message:    "audio extraction failed",
		HTTPStatus: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewRecognitionUnavailable reports a transport failure talking to the
// recognition service.
func NewRecognitionUnavailable(cause error) *PipelineError {
	return &PipelineError{
		Code:       CodeRecognitionUnavailable,
		Message:    "recognition service unavailable",
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewNoSourceFound reports that every search key and the fallback engine
// failed to produce a playable source.
func NewNoSourceFound(title, artist string) *PipelineError {
	return &PipelineError{
		Code:       CodeNoSourceFound,
		Message:    "no playable source found for the recognized track",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"title": title, "artist": artist},
	}
}

// NewAutomationBlocked reports that the download source kept rejecting the
// request as automated traffic after all retries. Usually needs refreshed
// session credentials.
func NewAutomationBlocked(attempts int) *PipelineError {
	return &PipelineError{
		Code:       CodeAutomationBlocked,
		Message:    "download source blocked the request as automated traffic",
		HTTPStatus: http.StatusBadGateway,
		Context:    map[string]interface{}{"attempts": attempts},
	}
}

// NewDownloadFailed reports a persistent, non-challenge download failure.
func NewDownloadFailed(cause error) *PipelineError {
	return &PipelineError{
		Code:       CodeDownloadFailed,
		Message:    "audio download failed",
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewReachabilityWriteFailed reports a failed reachability bookkeeping write.
// Non-fatal: callers log it and continue.
func NewReachabilityWriteFailed(cause error) *PipelineError {
	return &PipelineError{
		Code:    CodeReachabilityWrite,
		Message: "failed to persist reachability transition",
		Cause:   cause,
	}
}

// NewValidationError reports a bad request field.
func NewValidationError(message, field string) *PipelineError {
	return &PipelineError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *PipelineError {
	return &PipelineError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// HandleValidationError sends a validation error response.
func HandleValidationError(c *gin.Context, message, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

// HandleInternalError sends an internal server error response.
func HandleInternalError(c *gin.Context, message string, err error) {
	NewInternalError(message, err).ToGinResponse(c)
}
