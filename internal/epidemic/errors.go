package epidemic

import "errors"

var (
	// ErrInvalidConfiguration is returned by Initialize when the geometry or
	// counts cannot produce a valid run. Errors wrap it with detail.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotInitialized is returned by Tick before Initialize succeeds.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrAlreadyInitialized is returned by a second call to Initialize.
	ErrAlreadyInitialized = errors.New("engine already initialized")
)
