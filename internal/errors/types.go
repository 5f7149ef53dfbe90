package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeDependency ErrorType = "dependency"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes shared across packages.
const (
	CodeExternalReference = "EXTERNAL_REFERENCE"
	CodeEscapingReference = "ESCAPING_REFERENCE"
	CodeNoSourceRoots     = "NO_SOURCE_ROOTS"
	CodeInvalidConfig     = "INVALID_CONFIG"
	CodeWatchUnavailable  = "WATCH_UNAVAILABLE"
	CodeBundleFailed      = "BUNDLE_FAILED"
	CodeTranspileFailed   = "TRANSPILE_FAILED"
)

// DistError is a structured error type with context.
type DistError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *DistError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *DistError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *DistError) Is(target error) bool {
	var t *DistError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *DistError) WithContext(key string, value interface{}) *DistError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *DistError) WithLocation(filePath string, line, column int) *DistError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithFile sets the file the error refers to.
func (e *DistError) WithFile(filePath string) *DistError {
	e.FilePath = filePath

	return e
}

// Error creation functions

// NewConfigurationError reports a project-authoring mistake. It is never
// recovered locally.
func NewConfigurationError(code, message string) *DistError {
	return &DistError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewMissingDependencyError reports that an optional capability was requested
// but cannot be provided.
func NewMissingDependencyError(code, message string, cause error) *DistError {
	return &DistError{
		Type:        ErrorTypeDependency,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *DistError {
	return &DistError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *DistError {
	return &DistError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var de *DistError
	if errors.As(err, &de) {
		return de.Recoverable
	}

	return false
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsMissingDependency checks if an error reports a missing optional capability.
func IsMissingDependency(err error) bool {
	return hasType(err, ErrorTypeDependency)
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return hasType(err, ErrorTypeBuild)
}

func hasType(err error, t ErrorType) bool {
	var de *DistError
	if errors.As(err, &de) {
		return de.Type == t
	}

	return false
}
