package hub

import "errors"

var (
	// ErrSessionExists is returned by CreateSession when the id is already live.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned by operations that require a live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a query arrives while another query is
	// in flight on the same session.
	ErrSessionBusy = errors.New("session busy")

	// ErrNoSavedSettings is returned by RestoreSession when nothing was
	// persisted for the id.
	ErrNoSavedSettings = errors.New("no saved settings for session")

	// ErrNothingToRestore is returned by RestoreSession when the owner has no
	// active tool servers and retrieval is disabled.
	ErrNothingToRestore = errors.New("session has no tool servers and no retrieval")

	// errCleanupTimeout marks a cleanup that outlived its deadline. The entry
	// is removed anyway and the leak is logged.
	errCleanupTimeout = errors.New("cleanup deadline exceeded")
)
