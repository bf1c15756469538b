package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrPackageNotFound ErrorType = iota
	ErrNotInstalled
	ErrDependency
	ErrConflict
	ErrUnsupportedFormat
	ErrInvalidRequest
	ErrIO
	ErrNetwork
	ErrParse
	ErrSignature
	ErrInvalidConfig
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrPackageNotFound:
		return "PackageNotFound"
	case ErrNotInstalled:
		return "NotInstalled"
	case ErrDependency:
		return "DependencyError"
	case ErrConflict:
		return "ConflictError"
	case ErrUnsupportedFormat:
		return "UnsupportedFormat"
	case ErrInvalidRequest:
		return "InvalidRequest"
	case ErrIO:
		return "IO"
	case ErrNetwork:
		return "Network"
	case ErrParse:
		return "Parse"
	case ErrSignature:
		return "Signature"
	case ErrInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

// PkgError is returned by every rejected operation. Packages names the
// offending package(s) so the caller can diagnose without verbose tracing.
type PkgError struct {
	Type     ErrorType
	Packages []string
	Err      error
}

// NewError builds a PkgError with a formatted message.
func NewError(t ErrorType, packages []string, format string, args ...interface{}) *PkgError {
	return &PkgError{
		Type:     t,
		Packages: packages,
		Err:      fmt.Errorf(format, args...),
	}
}

// Error implements the error interface
func (e *PkgError) Error() string {
	if len(e.Packages) > 0 {
		return fmt.Sprintf("[%s] %s: %v", e.Type, strings.Join(e.Packages, ", "), e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *PkgError) Unwrap() error {
	return e.Err
}

// IsType reports whether err wraps a PkgError of the given type.
func IsType(err error, t ErrorType) bool {
	var pe *PkgError
	return errors.As(err, &pe) && pe.Type == t
}
