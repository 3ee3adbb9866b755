package ehrconfig

import "errors"

var (
	// ErrConfigurationNotFound means the client has no settings for the
	// requested vendor.
	ErrConfigurationNotFound = errors.New("ehr configuration not found")

	// ErrConfigurationConflict means more than one row matched a
	// (client, vendor) pair. The store is inconsistent; nothing is guessed.
	ErrConfigurationConflict = errors.New("multiple ehr configurations for client and system")
)
