package alerts

import "errors"

// Ledger and dispatch errors.
var (
	// ErrAlertAlreadyRecorded is returned by the ledger when an entry for a
	// (subscription, offset, channel) triple already exists.
	ErrAlertAlreadyRecorded = errors.New("alert already recorded")

	// ErrRunInProgress is returned when a dispatch run is requested while
	// another run is still executing. Runs never overlap or queue.
	ErrRunInProgress = errors.New("dispatch run already in progress")

	// ErrChannelUnavailable is returned when no sender is registered for
	// the requested channel.
	ErrChannelUnavailable = errors.New("no sender registered for channel")

	// ErrNoContactAddress is returned when the user has no address for the
	// requested channel.
	ErrNoContactAddress = errors.New("user has no contact address for channel")
)
