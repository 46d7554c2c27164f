package synchronizer

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id        string
	seeking   bool
	paused    bool
	pending   func()
	positions []float64

	playCalls  int
	pauseCalls int
	armCalls   int

	playErr error
	seekErr error
}

func newFakeHandle(id string, paused bool) *fakeHandle {
	return &fakeHandle{id: id, paused: paused}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Play() error {
	f.playCalls++
	if f.playErr != nil {
		return f.playErr
	}
	f.paused = false
	return nil
}

func (f *fakeHandle) Pause() error {
	f.pauseCalls++
	f.paused = true
	return nil
}

func (f *fakeHandle) IsSeeking() bool { return f.seeking }
func (f *fakeHandle) IsPaused() bool  { return f.paused }

func (f *fakeHandle) SetPosition(seconds float64) error {
	if f.seekErr != nil {
		return f.seekErr
	}
	f.positions = append(f.positions, seconds)
	f.seeking = true
	return nil
}

func (f *fakeHandle) OnSeekComplete(fn func()) {
	f.armCalls++
	f.pending = fn
}

// completeSeek mimics the player finishing the in-flight seek.
func (f *fakeHandle) completeSeek() {
	f.seeking = false
	cb := f.pending
	f.pending = nil
	if cb != nil {
		cb()
	}
}

type logEntry struct {
	level   string
	message string
	context map[string]any
}

type recordingLogger struct {
	entries []logEntry
}

func (l *recordingLogger) Warn(message string, context map[string]any) {
	l.entries = append(l.entries, logEntry{"warn", message, context})
}

func (l *recordingLogger) Error(message string, context map[string]any) {
	l.entries = append(l.entries, logEntry{"error", message, context})
}

func TestSynchronizer_Play(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		wantState State
		wantCalls int
	}{
		{
			name:      "not restarting plays immediately",
			state:     NotRestarting,
			wantState: NotRestarting,
			wantCalls: 1,
		},
		{
			name:      "restarting paused defers play",
			state:     RestartingPaused,
			wantState: RestartingPlaying,
			wantCalls: 0,
		},
		{
			name:      "restarting playing is a no-op",
			state:     RestartingPlaying,
			wantState: RestartingPlaying,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			s := New(log)
			s.state = tt.state
			h := newFakeHandle("audio", true)

			s.Play(h)

			assert.Equal(t, tt.wantState, s.State())
			assert.Equal(t, tt.wantCalls, h.playCalls)
			assert.Zero(t, h.pauseCalls)
			assert.Empty(t, log.entries)
		})
	}
}

func TestSynchronizer_Pause(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		wantState State
		wantCalls int
	}{
		{
			name:      "not restarting pauses immediately",
			state:     NotRestarting,
			wantState: NotRestarting,
			wantCalls: 1,
		},
		{
			name:      "restarting playing defers pause",
			state:     RestartingPlaying,
			wantState: RestartingPaused,
			wantCalls: 0,
		},
		{
			name:      "restarting paused is a no-op",
			state:     RestartingPaused,
			wantState: RestartingPaused,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&recordingLogger{})
			s.state = tt.state
			h := newFakeHandle("video", false)

			s.Pause(h)

			assert.Equal(t, tt.wantState, s.State())
			assert.Equal(t, tt.wantCalls, h.pauseCalls)
			assert.Zero(t, h.playCalls)
		})
	}
}

func TestSynchronizer_PlayWhilePlaying(t *testing.T) {
	s := New(&recordingLogger{})
	h := newFakeHandle("audio", false)

	assert.NotPanics(t, func() { s.Play(h) })
	assert.Equal(t, NotRestarting, s.State())
	assert.False(t, h.IsPaused())
}

func TestSynchronizer_UnknownState(t *testing.T) {
	log := &recordingLogger{}
	s := New(log)
	s.state = State(42)
	h := newFakeHandle("audio", true)

	s.Play(h)
	s.Pause(h)

	assert.Equal(t, State(42), s.State())
	assert.Zero(t, h.playCalls)
	assert.Zero(t, h.pauseCalls)
	require.Len(t, log.entries, 2)
	for _, e := range log.entries {
		assert.True(t, errors.Is(e.context["error"].(error), ErrUnknownState))
	}
}

func TestSynchronizer_Seek(t *testing.T) {
	t.Run("idle handle seeks immediately", func(t *testing.T) {
		s := New(&recordingLogger{})
		h := newFakeHandle("video", true)
		h.pending = func() { t.Fatal("stale callback fired") }

		s.Seek(h, 1500)

		assert.Equal(t, []float64{1.5}, h.positions)
		assert.True(t, h.IsSeeking())
		assert.Nil(t, h.pending, "stale callback should be cleared")

		h.completeSeek()
		assert.Equal(t, []float64{1.5}, h.positions)
	})

	t.Run("newest request wins while seeking", func(t *testing.T) {
		s := New(&recordingLogger{})
		h := newFakeHandle("video", true)
		h.seeking = true

		s.Seek(h, 1000)
		s.Seek(h, 2000)
		assert.Empty(t, h.positions, "nothing applied while the first seek is in flight")

		h.completeSeek()
		assert.Equal(t, []float64{2.0}, h.positions)

		// The follow-up seek is in flight with no queued callback.
		assert.True(t, h.IsSeeking())
		h.completeSeek()
		assert.Equal(t, []float64{2.0}, h.positions)
	})

	t.Run("failed seek is logged", func(t *testing.T) {
		log := &recordingLogger{}
		s := New(log)
		h := newFakeHandle("audio", true)
		h.seekErr = errors.New("socket closed")

		s.Seek(h, 1000)

		assert.False(t, h.IsSeeking())
		require.Len(t, log.entries, 1)
		assert.Equal(t, "error", log.entries[0].level)
		assert.True(t, errors.Is(log.entries[0].context["error"].(error), ErrHandle))
	})
}

func TestSynchronizer_RestartLoop(t *testing.T) {
	tests := []struct {
		name        string
		audioPaused bool
		videoPaused bool
		wantState   State
		wantPlay    int
		videoFirst  bool
		pauseMidway bool
		playMidway  bool
	}{
		{
			name:        "both paused stays paused",
			audioPaused: true,
			videoPaused: true,
			wantState:   RestartingPaused,
			wantPlay:    0,
		},
		{
			name:        "both paused, video settles first",
			audioPaused: true,
			videoPaused: true,
			wantState:   RestartingPaused,
			wantPlay:    0,
			videoFirst:  true,
		},
		{
			name:        "both playing resumes",
			audioPaused: false,
			videoPaused: false,
			wantState:   RestartingPlaying,
			wantPlay:    1,
		},
		{
			name:        "both playing, video settles first",
			audioPaused: false,
			videoPaused: false,
			wantState:   RestartingPlaying,
			wantPlay:    1,
			videoFirst:  true,
		},
		{
			name:        "one playing counts as playing",
			audioPaused: true,
			videoPaused: false,
			wantState:   RestartingPlaying,
			wantPlay:    1,
		},
		{
			name:        "pause during restart wins",
			audioPaused: false,
			videoPaused: false,
			wantState:   RestartingPlaying,
			wantPlay:    0,
			pauseMidway: true,
		},
		{
			name:        "play during paused restart wins",
			audioPaused: true,
			videoPaused: true,
			wantState:   RestartingPaused,
			wantPlay:    1,
			playMidway:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			s := New(log)
			audio := newFakeHandle("audio", tt.audioPaused)
			video := newFakeHandle("video", tt.videoPaused)

			s.RestartLoop(audio, video, 4800, 4700)

			assert.Equal(t, tt.wantState, s.State())
			assert.Equal(t, 1, audio.pauseCalls)
			assert.Equal(t, 1, video.pauseCalls)
			assert.Equal(t, []float64{4.8}, audio.positions)
			assert.Equal(t, []float64{4.7}, video.positions)

			if tt.pauseMidway {
				s.Pause(audio)
				assert.Equal(t, RestartingPaused, s.State())
			}
			if tt.playMidway {
				s.Play(video)
				assert.Equal(t, RestartingPlaying, s.State())
			}
			assert.Equal(t, 1, audio.pauseCalls, "pause must not reach a seeking element")
			assert.Zero(t, audio.playCalls)
			assert.Zero(t, video.playCalls)

			first, second := audio, video
			if tt.videoFirst {
				first, second = video, audio
			}

			stateBefore := s.State()
			first.completeSeek()
			assert.Equal(t, stateBefore, s.State(), "one settled seek must not commit")
			assert.Zero(t, audio.playCalls)
			assert.Zero(t, video.playCalls)

			second.completeSeek()
			assert.Equal(t, NotRestarting, s.State())
			assert.Equal(t, tt.wantPlay, audio.playCalls)
			assert.Equal(t, tt.wantPlay, video.playCalls)
			assert.Empty(t, log.entries)
		})
	}
}

func TestSynchronizer_RestartLoop_Conflict(t *testing.T) {
	tests := []struct {
		name         string
		audioSeeking bool
		videoSeeking bool
	}{
		{name: "audio seeking", audioSeeking: true},
		{name: "video seeking", videoSeeking: true},
		{name: "both seeking", audioSeeking: true, videoSeeking: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			s := New(log)
			audio := newFakeHandle("audio", false)
			video := newFakeHandle("video", false)
			audio.seeking = tt.audioSeeking
			video.seeking = tt.videoSeeking

			s.RestartLoop(audio, video, 0, 0)

			assert.Equal(t, NotRestarting, s.State())
			for _, h := range []*fakeHandle{audio, video} {
				assert.Zero(t, h.playCalls)
				assert.Zero(t, h.pauseCalls)
				assert.Zero(t, h.armCalls)
				assert.Empty(t, h.positions)
			}
			require.Len(t, log.entries, 1)
			assert.Equal(t, "warn", log.entries[0].level)
			assert.True(t, errors.Is(log.entries[0].context["error"].(error), ErrSeekConflict))
		})
	}
}

func TestSynchronizer_RestartLoop_SimultaneousSettle(t *testing.T) {
	s := New(&recordingLogger{})
	audio := newFakeHandle("audio", false)
	video := newFakeHandle("video", false)

	s.RestartLoop(audio, video, 1000, 1000)

	// Both players finish before either completion is delivered.
	audio.seeking = false
	video.seeking = false
	audioCb, videoCb := audio.pending, video.pending
	audio.pending, video.pending = nil, nil
	audioCb()
	videoCb()

	assert.Equal(t, NotRestarting, s.State())
	assert.Equal(t, 1, audio.playCalls)
	assert.Equal(t, 1, video.playCalls)
}

func TestSynchronizer_RestartLoop_SeekFailure(t *testing.T) {
	t.Run("one seek fails", func(t *testing.T) {
		log := &recordingLogger{}
		s := New(log)
		audio := newFakeHandle("audio", false)
		video := newFakeHandle("video", false)
		audio.seekErr = errors.New("ipc timeout")

		s.RestartLoop(audio, video, 2000, 2000)
		assert.Equal(t, RestartingPlaying, s.State())
		assert.Nil(t, audio.pending)

		video.completeSeek()
		assert.Equal(t, NotRestarting, s.State())
		assert.Equal(t, 1, audio.playCalls)
		assert.Equal(t, 1, video.playCalls)
		require.Len(t, log.entries, 1)
	})

	t.Run("both seeks fail", func(t *testing.T) {
		s := New(&recordingLogger{})
		audio := newFakeHandle("audio", true)
		video := newFakeHandle("video", true)
		audio.seekErr = errors.New("ipc timeout")
		video.seekErr = errors.New("ipc timeout")

		s.RestartLoop(audio, video, 2000, 2000)

		assert.Equal(t, NotRestarting, s.State())
		assert.Zero(t, audio.playCalls)
		assert.Zero(t, video.playCalls)
	})
}

func TestSynchronizer_LoopBoundaryScenario(t *testing.T) {
	s := New(&recordingLogger{})
	audio := newFakeHandle("a", false)
	video := newFakeHandle("v", false)
	audio.positions = []float64{5.0}
	video.positions = []float64{5.0}

	s.RestartLoop(audio, video, 4800, 4800)

	assert.Equal(t, 1, audio.pauseCalls)
	assert.Equal(t, 1, video.pauseCalls)
	assert.Equal(t, 4.8, audio.positions[len(audio.positions)-1])
	assert.Equal(t, 4.8, video.positions[len(video.positions)-1])
	assert.Equal(t, RestartingPlaying, s.State())

	video.completeSeek()
	assert.Equal(t, RestartingPlaying, s.State())
	assert.Zero(t, video.playCalls)

	audio.completeSeek()
	assert.Equal(t, 1, audio.playCalls)
	assert.Equal(t, 1, video.playCalls)
	assert.Equal(t, NotRestarting, s.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not_restarting", NotRestarting.String())
	assert.Equal(t, "restarting_paused", RestartingPaused.String())
	assert.Equal(t, "restarting_playing", RestartingPlaying.String())
	assert.Equal(t, "unknown", State(9).String())
	assert.False(t, NotRestarting.IsRestarting())
	assert.True(t, RestartingPaused.IsRestarting())
}
