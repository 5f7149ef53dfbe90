package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a DistError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *DistError {
	if err == nil {
		return nil
	}

	var de *DistError
	if errors.As(err, &de) {
		return &DistError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       de,
			Context:     de.Context,
			FilePath:    de.FilePath,
			Line:        de.Line,
			Column:      de.Column,
			Recoverable: de.Recoverable,
		}
	}

	return &DistError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeBuild,
	}
}

// WrapIO wraps an error as an I/O error on path.
func WrapIO(err error, code, message, path string) *DistError {
	de := Wrap(err, ErrorTypeIO, code, message)
	if de != nil {
		de.FilePath = path
	}
	return de
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *DistError {
	return Wrap(err, ErrorTypeConfig, code, message)
}
