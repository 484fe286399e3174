// Package cronerr defines the sentinel error taxonomy shared by the
// scheduler, store, delivery, and executor packages. Call sites wrap
// these with fmt.Errorf("...: %w", ...) so errors.Is keeps working
// across package boundaries.
package cronerr

import "errors"

var (
	// ErrInvalidSchedule covers a malformed cron expression, a missing or
	// non-positive interval, an "at" instant in the past, or a missing
	// required field for the declared schedule kind.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidPayload covers an agentTurn with deliver=true but missing
	// channel/to, an unknown channel id, or timeoutSeconds out of [1,600].
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrJobNotFound is returned by mutation or run of an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrStoreCorrupt is returned when the store file cannot be parsed.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrChannelNotFound is returned by non-best-effort delivery to an
	// unregistered channel id.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrDeliveryFailed is returned by non-best-effort delivery when the
	// channel reports success=false.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrAgentFailed names a model-turn callback that reported
	// success=false. The executor does not return it: such a turn is
	// reported as an Outcome with status error and the callback's error
	// text.
	ErrAgentFailed = errors.New("agent turn failed")

	// ErrAborted names a delivery cancelled via an abort signal. The
	// delivery service does not return it: an abort is reported as a
	// failed Result whose Error is "Aborted".
	ErrAborted = errors.New("delivery aborted")
)
