package pkg

import (
	"errors"
	"fmt"

	carveerrors "github.com/tungetti/carve/internal/errors"
)

// Sentinel errors for package operations, checkable with errors.Is.
var (
	// ErrPackageNotFound indicates the requested package does not exist
	// in any configured repository.
	ErrPackageNotFound = &PackageError{
		code:    carveerrors.NotFound,
		message: "package not found",
	}

	// ErrInstallFailed indicates the package installation failed.
	ErrInstallFailed = &PackageError{
		code:    carveerrors.PackageManager,
		message: "package installation failed",
	}

	// ErrLockAcquireFailed indicates another package manager instance
	// holds the database lock.
	ErrLockAcquireFailed = &PackageError{
		code:    carveerrors.PackageManager,
		message: "failed to acquire package manager lock",
	}

	// ErrManagerUnavailable indicates no supported package manager
	// exists for this distribution family.
	ErrManagerUnavailable = &PackageError{
		code:    carveerrors.Unsupported,
		message: "no supported package manager",
	}
)

// PackageError carries an error code and optional package context.
type PackageError struct {
	code        carveerrors.Code
	message     string
	packageName string
	cause       error
}

// Error implements the error interface.
func (e *PackageError) Error() string {
	result := e.message
	if e.packageName != "" {
		result += fmt.Sprintf(" [%s]", e.packageName)
	}
	if e.cause != nil {
		result += ": " + e.cause.Error()
	}
	return result
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PackageError) Unwrap() error {
	return e.cause
}

// Is matches two PackageErrors by message, so wrapped errors still
// compare equal to their sentinel.
func (e *PackageError) Is(target error) bool {
	var t *PackageError
	if errors.As(target, &t) {
		return e.message == t.message
	}
	return false
}

// Code returns the error code associated with this error.
func (e *PackageError) Code() carveerrors.Code {
	return e.code
}

// PackageName returns the package name associated with this error, if any.
func (e *PackageError) PackageName() string {
	return e.packageName
}

// Wrap creates a new PackageError from a sentinel with a cause.
func Wrap(sentinel *PackageError, cause error) *PackageError {
	return &PackageError{
		code:    sentinel.code,
		message: sentinel.message,
		cause:   cause,
	}
}

// WrapWithPackage creates a new PackageError from a sentinel with a
// cause and package context.
func WrapWithPackage(sentinel *PackageError, pkgName string, cause error) *PackageError {
	return &PackageError{
		code:        sentinel.code,
		message:     sentinel.message,
		packageName: pkgName,
		cause:       cause,
	}
}
