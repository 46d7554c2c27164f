package synchronizer

import "github.com/cockroachdb/errors"

// Errors reported through the Logger. None of them are returned to callers.
var (
	ErrSeekConflict = errors.New("restart requested while seeking")
	ErrUnknownState = errors.New("unknown restart state")
	ErrHandle       = errors.New("media handle failure")
)

// Handle is a playable media element.
//
// Implementations are only called from the goroutine that runs the
// synchronizer, and must deliver seek completions on that same goroutine:
// clear the seeking flag, take the pending callback out of its slot, then
// invoke it.
type Handle interface {
	Play() error
	Pause() error
	IsSeeking() bool
	IsPaused() bool
	// SetPosition starts an asynchronous seek to the given offset in seconds.
	SetPosition(seconds float64) error
	// OnSeekComplete replaces the pending completion callback. nil clears it.
	OnSeekComplete(fn func())
}

// Logger receives diagnostics. It must never fail.
type Logger interface {
	Warn(message string, context map[string]any)
	Error(message string, context map[string]any)
}

// identified is implemented by handles that know their element id.
type identified interface {
	ID() string
}

func handleID(h Handle) string {
	if h, ok := h.(identified); ok {
		return h.ID()
	}
	return "?"
}
