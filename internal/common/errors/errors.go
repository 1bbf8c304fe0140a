// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidScope       ErrorCode = "INVALID_SCOPE"
	ErrCodeMissingDimension   ErrorCode = "MISSING_DIMENSION"
	ErrCodeSnapshotLoadFailed ErrorCode = "SNAPSHOT_LOAD_FAILED"
	ErrCodeSnapshotEmpty      ErrorCode = "SNAPSHOT_EMPTY"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeCacheFailed   ErrorCode = "CACHE_FAILED"
	ErrCodeCacheMiss     ErrorCode = "CACHE_MISS"
	ErrCodeIndexFailed   ErrorCode = "INDEX_FAILED"
	ErrCodeExportFailed  ErrorCode = "EXPORT_FAILED"
	ErrCodeAnalysisAbort ErrorCode = "ANALYSIS_ABORTED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func NewInvalidInputError(details string) *StandardError {
	e := newError(ErrCodeInvalidInput, "Job input is invalid", nil, false)
	e.Details = details
	return e
}

func NewInvalidScopeError(details string) *StandardError {
	e := newError(ErrCodeInvalidScope, "Analysis scope is invalid", nil, false)
	e.Details = details
	return e
}

// NewMissingDimensionError wraps the engine's fatal dimension error.
func NewMissingDimensionError(err error) *StandardError {
	return newError(ErrCodeMissingDimension, "Dataset lacks a required dimension", err, false)
}

func NewSnapshotLoadFailedError(source string, err error) *StandardError {
	return newError(ErrCodeSnapshotLoadFailed, "Failed to load transaction snapshot", err, true).
		WithMetadata("source", source)
}

func NewSnapshotEmptyError(source string) *StandardError {
	e := newError(ErrCodeSnapshotEmpty, "Transaction snapshot is empty", nil, false)
	e.Details = source
	return e
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection failed", err, true)
}

func NewQueryTimeoutError(source string) *StandardError {
	e := newError(ErrCodeQueryTimeout, "Snapshot query timed out", nil, true)
	e.Details = source
	return e
}

func NewCacheFailedError(op string, err error) *StandardError {
	return newError(ErrCodeCacheFailed, "Score cache operation failed", err, true).
		WithMetadata("operation", op)
}

func NewCacheMissError(key string) *StandardError {
	e := newError(ErrCodeCacheMiss, "No cached result for key", nil, false)
	e.Details = key
	return e
}

func NewIndexFailedError(index string, err error) *StandardError {
	return newError(ErrCodeIndexFailed, "Cohort indexing failed", err, true).
		WithMetadata("index", index)
}

func NewExportFailedError(target string, err error) *StandardError {
	return newError(ErrCodeExportFailed, "Result export failed", err, false).
		WithMetadata("target", target)
}

func NewAnalysisAbortedError(err error) *StandardError {
	return newError(ErrCodeAnalysisAbort, "Analysis run aborted", err, true)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification send failed", err, true).
		WithMetadata("channel", channel)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes the
// process model catches.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:             "INVALID_INPUT",
	ErrCodeInvalidScope:             "INVALID_INPUT",
	ErrCodeMissingDimension:         "MISSING_DIMENSION",
	ErrCodeSnapshotLoadFailed:       "SNAPSHOT_LOAD_FAILED",
	ErrCodeSnapshotEmpty:            "SNAPSHOT_EMPTY",
	ErrCodeDatabaseConnectionFailed: "SNAPSHOT_LOAD_FAILED",
	ErrCodeQueryTimeout:             "SNAPSHOT_LOAD_FAILED",
	ErrCodeCacheFailed:              "CACHE_FAILED",
	ErrCodeCacheMiss:                "RESULT_NOT_FOUND",
	ErrCodeIndexFailed:              "INDEX_FAILED",
	ErrCodeExportFailed:             "EXPORT_FAILED",
	ErrCodeAnalysisAbort:            "ANALYSIS_ABORTED",
	ErrCodeNotificationSendFailed:   "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSnapshotLoadFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeCacheFailed,
		ErrCodeIndexFailed,
		ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeQueryTimeout,
		ErrCodeAnalysisAbort:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError finds a StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SNAPSHOT") || strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "SOURCE"
	case strings.Contains(codeStr, "DIMENSION") || strings.Contains(codeStr, "ANALYSIS"):
		return "ANALYSIS"
	case strings.Contains(codeStr, "CACHE") || strings.Contains(codeStr, "INDEX") || strings.Contains(codeStr, "EXPORT"):
		return "SINK"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
