package challenge

import "errors"

var (
	// ErrInvalidInput rejects empty user ids and empty or malformed domains
	// before any store access.
	ErrInvalidInput = errors.New("invalid input")

	// ErrResolution wraps DNS lookup failures. Transient: the challenge row
	// is untouched and the whole verify may be retried.
	ErrResolution = errors.New("dns resolution failed")

	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("storage failure")
)
