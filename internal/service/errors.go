// Package service provides business logic services for Quill.
package service

import "errors"

// Common service errors. Registration failures are distinct so the route
// boundary can report which rule was violated; login failures deliberately
// are not (see domain.ErrInvalidCredentials).
var (
	// Registration errors
	ErrMissingFields    = errors.New("required fields are missing or empty")
	ErrInvalidEmail     = errors.New("email address must end in .com")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password must be at least six characters")
	ErrEmailTaken       = errors.New("email is already registered")
	ErrUsernameTaken    = errors.New("username is already taken")
	ErrFieldTooLong     = errors.New("field exceeds maximum length")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
