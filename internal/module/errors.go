package module

import "errors"

var (
	// ErrNotFound is returned by Load for a name that is not available.
	ErrNotFound = errors.New("module not found")

	// ErrDuplicate is returned when two descriptors share a name.
	ErrDuplicate = errors.New("module already registered")

	// ErrInvalidDescriptor is returned for descriptors without a name or factory.
	ErrInvalidDescriptor = errors.New("invalid module descriptor")

	// ErrIndexOutOfRange is returned by Info for an index past the loaded set.
	ErrIndexOutOfRange = errors.New("module index out of range")
)
