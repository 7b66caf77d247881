package moderation

import "errors"

var (
	// ErrNotFound is returned by stores when a listing or trust record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict signals that an optimistic transaction lost a race and may be retried.
	ErrConflict = errors.New("transaction conflict")
	// ErrTooManyAttempts is returned once a store gives up retrying conflicts.
	ErrTooManyAttempts = errors.New("transaction retries exhausted")
	// ErrClaimsUnavailable is returned when no identity provider is configured.
	ErrClaimsUnavailable = errors.New("claims provider not configured")
	// ErrBootstrapDisabled is returned by SelfGrantAdmin outside of setup.
	ErrBootstrapDisabled = errors.New("admin bootstrap disabled")
)
