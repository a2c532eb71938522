package catalog

import "errors"

var (
	// ErrEmptyID is returned when an id is empty.
	ErrEmptyID = errors.New("catalog: empty id")
	// ErrEmptyName is returned when a name is empty.
	ErrEmptyName = errors.New("catalog: empty name")
	// ErrInvalidAmount is returned for a non-positive or negative amount.
	ErrInvalidAmount = errors.New("catalog: invalid amount")
	// ErrInvalidDuePolicy is returned for an unknown or incomplete due-date policy.
	ErrInvalidDuePolicy = errors.New("catalog: invalid due policy")
	// ErrInvalidDiscountKind is returned for an unknown discount rule kind.
	ErrInvalidDiscountKind = errors.New("catalog: invalid discount kind")
	// ErrInvalidPercentage is returned when a percentage is outside 0..100.
	ErrInvalidPercentage = errors.New("catalog: percentage out of range")
	// ErrNotFound is returned when a catalog item is not found.
	ErrNotFound = errors.New("catalog: not found")
)
