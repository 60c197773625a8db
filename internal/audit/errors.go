package audit

import "errors"

var (
	// ErrNotValidated is returned by Audit when the configuration has not
	// passed ScanConfig.Validate.
	ErrNotValidated = errors.New("scan configuration has not been validated")

	// ErrAborted is returned when the operator chose to exit after an
	// interrupt. It is a deliberate terminal state and carries no results.
	ErrAborted = errors.New("audit aborted by operator")

	// ErrUnitPanicked wraps a panic recovered from a check unit.
	ErrUnitPanicked = errors.New("check unit panicked")

	// ErrNilUnit is returned when a nil unit is dispatched.
	ErrNilUnit = errors.New("nil check unit")

	// ErrNilCheck is returned when a unit builds a nil check.
	ErrNilCheck = errors.New("check unit returned nil check")
)
