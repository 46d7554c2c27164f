// Package media defines the media elements driven by the synchronizer.
package media

// Kind is the kind of stream an element plays.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindAudio || k == KindVideo
}

// Element is a player addressable by id. Its playback methods must be
// called from the loop that drives the element.
type Element interface {
	Play() error
	Pause() error
	IsSeeking() bool
	IsPaused() bool
	// SetPosition starts an asynchronous seek to the given offset in seconds.
	SetPosition(seconds float64) error
	// OnSeekComplete replaces the pending completion callback. nil clears it.
	OnSeekComplete(fn func())

	ID() string
	Kind() Kind
	// Snapshot must be called from the loop that drives the element.
	Snapshot() Snapshot
	// Close releases the player connection.
	Close() error
}

// Snapshot is a point-in-time view of an element.
type Snapshot struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	Backend  string  `json:"backend"`
	Paused   bool    `json:"paused"`
	Seeking  bool    `json:"seeking"`
	Position float64 `json:"position"` // seconds
}
