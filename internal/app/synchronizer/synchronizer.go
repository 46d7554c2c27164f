package synchronizer

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Synchronizer owns the restart state machine for one audio/video pair.
//
// It is not safe for concurrent use. All methods, and all seek completions
// of the handles passed to it, must run on a single goroutine (see the loop
// package).
type Synchronizer struct {
	state  State
	logger Logger
}

// New creates a synchronizer in the NotRestarting state.
func New(logger Logger) *Synchronizer {
	return &Synchronizer{
		state:  NotRestarting,
		logger: logger,
	}
}

// State returns the current restart state.
func (s *Synchronizer) State() State {
	return s.state
}

// Play starts h, or records the intent to play if a restart is in flight.
func (s *Synchronizer) Play(h Handle) {
	switch s.state {
	case NotRestarting:
		s.call(h, "play", h.Play)
	case RestartingPaused:
		s.setState(RestartingPlaying)
	case RestartingPlaying:
		// Already recorded.
	default:
		s.unknownState("Play", h)
	}
}

// Pause pauses h, or records the intent to stay paused if a restart is in flight.
func (s *Synchronizer) Pause(h Handle) {
	switch s.state {
	case NotRestarting:
		s.call(h, "pause", h.Pause)
	case RestartingPaused:
		// Already recorded.
	case RestartingPlaying:
		s.setState(RestartingPaused)
	default:
		s.unknownState("Pause", h)
	}
}

// Seek moves h to targetMs. If h is still seeking, the seek runs once the
// current one resolves, replacing any seek queued before it.
func (s *Synchronizer) Seek(h Handle, targetMs float64) {
	if h.IsSeeking() {
		h.OnSeekComplete(func() {
			s.seek(h, targetMs, nil)
		})
		return
	}
	// nil clears seeks queued earlier.
	s.seek(h, targetMs, nil)
}

// RestartLoop jumps both elements back to the loop start, keeping the
// current play/pause intent. Playback resumes only once both seeks settle.
func (s *Synchronizer) RestartLoop(audio, video Handle, audioMs, videoMs float64) {
	if audio.IsSeeking() || video.IsSeeking() {
		s.logger.Warn("Aborting RestartLoop attempt due to seeking", map[string]any{
			"error":         ErrSeekConflict,
			"audio":         handleID(audio),
			"video":         handleID(video),
			"audio_seeking": audio.IsSeeking(),
			"video_seeking": video.IsSeeking(),
		})
		return
	}

	// A pause pressed right at the loop end may land a few milliseconds
	// after it, before the restart is requested. Go back to the loop start
	// but stay paused in that case.
	bothPaused := audio.IsPaused() && video.IsPaused()
	if bothPaused {
		s.setState(RestartingPaused)
	} else {
		s.setState(RestartingPlaying)
	}

	s.call(audio, "pause", audio.Pause)
	s.call(video, "pause", video.Pause)

	settle := func() {
		if audio.IsSeeking() || video.IsSeeking() {
			return
		}
		if s.state == RestartingPlaying {
			s.call(audio, "play", audio.Play)
			s.call(video, "play", video.Play)
		}
		s.setState(NotRestarting)
	}

	audioOK := s.seek(audio, audioMs, settle)
	videoOK := s.seek(video, videoMs, settle)
	if !audioOK || !videoOK {
		// A failed seek never completes; check the gate now so the
		// restart is not left waiting on it.
		settle()
	}
}

// seek arms done and sets the position of h. It reports whether the seek
// was started.
func (s *Synchronizer) seek(h Handle, targetMs float64, done func()) bool {
	h.OnSeekComplete(done)
	if err := h.SetPosition(targetMs / 1000); err != nil {
		h.OnSeekComplete(nil)
		s.logger.Error("Failed to seek", map[string]any{
			"error":     errors.Mark(err, ErrHandle),
			"id":        handleID(h),
			"target_ms": targetMs,
		})
		return false
	}
	return true
}

func (s *Synchronizer) call(h Handle, action string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("Failed to "+action, map[string]any{
			"error": errors.Mark(err, ErrHandle),
			"id":    handleID(h),
		})
	}
}

func (s *Synchronizer) setState(next State) {
	if next != s.state {
		zlog.Debug().Msgf("synchronizer: %s -> %s", s.state, next)
	}
	s.state = next
}

func (s *Synchronizer) unknownState(op string, h Handle) {
	s.logger.Warn("Unknown restart state", map[string]any{
		"error": ErrUnknownState,
		"state": int(s.state),
		"op":    op,
		"id":    handleID(h),
	})
}
