// Package synchronizer keeps an audio and a video element aligned across seeks and loop restarts.
package synchronizer

// State represents the restart state of a synchronizer.
type State int

const (
	NotRestarting     State = iota // No restart in flight
	RestartingPaused                // Restart seeks pending, stay paused afterwards
	RestartingPlaying               // Restart seeks pending, resume playback afterwards
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case NotRestarting:
		return "not_restarting"
	case RestartingPaused:
		return "restarting_paused"
	case RestartingPlaying:
		return "restarting_playing"
	default:
		return "unknown"
	}
}

// IsRestarting reports whether a restart is waiting for its seeks to settle.
func (s State) IsRestarting() bool {
	return s == RestartingPaused || s == RestartingPlaying
}
