package domain

import "errors"

var (
	// ErrDataCorruption marks a stored record that cannot be parsed into its entity
	ErrDataCorruption = errors.New("data corruption")
	// ErrStoreUnavailable marks a failure to reach the backing store
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInsufficientData marks an aggregation whose total weight is below the minimum
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidArgument marks a malformed identifier or value
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsNoVerdict reports whether err only means that no verdict exists yet.
// The detection pipeline treats such errors as non-fatal.
func IsNoVerdict(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

// IsOperational reports whether err points at a store-layer problem that
// should raise an operational alert
func IsOperational(err error) bool {
	return errors.Is(err, ErrDataCorruption) || errors.Is(err, ErrStoreUnavailable)
}
