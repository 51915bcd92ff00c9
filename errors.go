package authgate

import "errors"

var (
	// ErrSchemeNotRegistered is returned when a middleware references an
	// authentication scheme name that was never registered. This is a
	// server configuration fault, not an authentication failure.
	ErrSchemeNotRegistered = errors.New("authentication scheme not registered")
	// ErrDuplicateScheme is returned when two schemes are registered under
	// the same name.
	ErrDuplicateScheme = errors.New("duplicate authentication scheme name")
	// ErrDuplicatePolicy is returned when two policies are registered under
	// the same name.
	ErrDuplicatePolicy = errors.New("duplicate authorization policy name")
	// ErrUserNotFound is returned by user repositories when no record
	// matches the filter.
	ErrUserNotFound = errors.New("user not found")
)
