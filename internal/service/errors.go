package service

import "errors"

var (
	// ErrNotYetReady means a prerequisite is missing or incomplete. The unit of
	// work is resubmitted with a delay.
	ErrNotYetReady = errors.New("prerequisites not ready")
	// ErrDataIntegrity is a terminal problem with the entity's inputs.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrExhaustedRetries turns a transient condition into a terminal one.
	ErrExhaustedRetries = errors.New("exhausted retries")
	// ErrCredentialMissing means the user has no key for the provider.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrInvalidTransition is returned when an entity is in the wrong state for an operation.
	ErrInvalidTransition = errors.New("invalid state transition")
)
