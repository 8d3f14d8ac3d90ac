package keeper

import "errors"

var (
	// ErrStoreUnavailable aborts a run before any record is processed:
	// the store could not be opened or read at session start.
	ErrStoreUnavailable = errors.New("keeper: store unavailable")

	// ErrInvalidConfig is returned by New and LoadConfigFile.
	ErrInvalidConfig = errors.New("keeper: invalid config")

	// ErrRunActive is returned by operations that need the run lock
	// while another run holds it.
	ErrRunActive = errors.New("keeper: a run is in progress")

	// ErrNotFound is returned when an identity has no stored row.
	ErrNotFound = errors.New("keeper: profile not found")
)
