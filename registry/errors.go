package registry

import "errors"

// Sentinel errors for registry operations.
var (
	// ErrNotOpen is returned when closing a path the registry does not hold.
	ErrNotOpen = errors.New("registry: container not open")

	// ErrInvalidCapacity is returned when the capacity is not positive.
	ErrInvalidCapacity = errors.New("registry: capacity must be positive")
)
