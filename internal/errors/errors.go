package errors

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// BuildError represents a single bundler diagnostic.
type BuildError struct {
	EntryPoint string
	File       string
	Line       int
	Column     int
	Message    string
	Severity   ErrorSeverity
	Timestamp  time.Time
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (be *BuildError) Error() string {
	if be.File == "" {
		return fmt.Sprintf("%s: %s", be.Severity, be.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", be.File, be.Line, be.Column, be.Severity, be.Message)
}

// ErrorCollector collects and manages build errors and general errors
type ErrorCollector struct {
	buildErrors []BuildError
	errors      []error
	mutex       sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		buildErrors: make([]BuildError, 0),
		errors:      make([]error, 0),
	}
}

// Add adds a build error to the collector
func (ec *ErrorCollector) Add(err BuildError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	err.Timestamp = time.Now()
	ec.buildErrors = append(ec.buildErrors, err)
}

// AddError adds a general error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// GetErrors returns all collected build errors
func (ec *ErrorCollector) GetErrors() []BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]BuildError, len(ec.buildErrors))
	copy(result, ec.buildErrors)
	return result
}

// GetAllErrors returns all collected errors (build and general)
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	allErrors := make([]error, 0, len(ec.buildErrors)+len(ec.errors))
	for i := range ec.buildErrors {
		allErrors = append(allErrors, &ec.buildErrors[i])
	}
	allErrors = append(allErrors, ec.errors...)

	return allErrors
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.buildErrors) > 0 || len(ec.errors) > 0
}

// Err joins every collected general error, or returns nil.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.errors) == 0 {
		return nil
	}
	return errors.Join(ec.errors...)
}
