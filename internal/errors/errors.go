package errors

import (
	"errors"
	"fmt"
)

// Common error types for rollcall
var (
	// Authorization errors
	ErrUnauthenticated      = errors.New("not connected to storage provider")
	ErrAuthorizationExpired = errors.New("authorization expired, please reconnect")
	ErrMissingVerifier      = errors.New("pkce verifier missing, please reconnect")
	ErrAuthorizationDenied  = errors.New("authorization denied by provider")

	// Remote store errors
	ErrRemoteNotFound  = errors.New("remote file not found")
	ErrRemoteAuth      = errors.New("remote store rejected credential")
	ErrRemoteTransient = errors.New("remote store failure")

	// Attendance errors
	ErrUnknownStudent = errors.New("unknown student")
	ErrNoActiveCourse = errors.New("no course open")
	ErrCourseNotFound = errors.New("course not found")
	ErrInvalidMode    = errors.New("invalid attendance mode")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
