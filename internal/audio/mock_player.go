package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer simulates playback with timers instead of a sound device. A
// clip lasts as long as its PCM would in the configured format, or a fixed
// duration when one is set.
type MockPlayer struct {
	mu        sync.Mutex
	state     PlayerState
	format    Format
	fixed     time.Duration
	volume    float64
	callbacks MockCallbacks

	done      chan struct{}
	timer     *time.Timer
	remaining time.Duration
	startedAt time.Time
	lastAudio []byte
	failNext  error

	plays, pauses, resumes, stops, finishes atomic.Int64
}

// MockCallbacks provides hooks for testing. They run without the player's
// lock held.
type MockCallbacks struct {
	OnPlay   func(audio []byte)
	OnPause  func()
	OnResume func()
	OnStop   func()
	OnFinish func()
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount   int64
	PauseCount  int64
	ResumeCount int64
	StopCount   int64
	FinishCount int64
}

// NewMockPlayer creates a mock player for format f.
func NewMockPlayer(f Format, callbacks MockCallbacks) *MockPlayer {
	return &MockPlayer{
		format:    f,
		volume:    1.0,
		callbacks: callbacks,
	}
}

// SetFixedDuration makes every subsequent clip last d regardless of size.
// Zero restores size-based durations.
func (m *MockPlayer) SetFixedDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed = d
}

// FailNextPlay makes the next Play call return err.
func (m *MockPlayer) FailNextPlay(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Play implements ttypes.AudioPlayer.
func (m *MockPlayer) Play(pcm []byte) (<-chan struct{}, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if err := m.failNext; err != nil {
		m.failNext = nil
		m.mu.Unlock()
		return nil, err
	}
	m.stopLocked()

	d := m.fixed
	if d == 0 {
		d = m.format.Duration(len(pcm))
	}

	done := make(chan struct{})
	m.done = done
	m.lastAudio = append(m.lastAudio[:0], pcm...)
	m.remaining = d
	m.startedAt = time.Now()
	m.state = StatePlaying
	m.timer = time.AfterFunc(d, func() { m.complete(done) })
	m.plays.Add(1)
	cb := m.callbacks.OnPlay
	m.mu.Unlock()

	if cb != nil {
		cb(pcm)
	}
	return done, nil
}

func (m *MockPlayer) complete(done chan struct{}) {
	m.mu.Lock()
	if m.done != done || m.state != StatePlaying {
		m.mu.Unlock()
		return
	}
	m.done = nil
	m.state = StateStopped
	close(done)
	m.finishes.Add(1)
	cb := m.callbacks.OnFinish
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Pause freezes the remaining time of the current clip.
func (m *MockPlayer) Pause() error {
	m.mu.Lock()
	if m.state != StatePlaying {
		s := m.state
		m.mu.Unlock()
		return stateError("pause", s)
	}
	m.timer.Stop()
	m.remaining -= time.Since(m.startedAt)
	if m.remaining < 0 {
		m.remaining = 0
	}
	m.state = StatePaused
	m.pauses.Add(1)
	cb := m.callbacks.OnPause
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Resume restarts the clock on a paused clip.
func (m *MockPlayer) Resume() error {
	m.mu.Lock()
	if m.state != StatePaused {
		s := m.state
		m.mu.Unlock()
		return stateError("resume", s)
	}
	done := m.done
	m.startedAt = time.Now()
	m.state = StatePlaying
	m.timer = time.AfterFunc(m.remaining, func() { m.complete(done) })
	m.resumes.Add(1)
	cb := m.callbacks.OnResume
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Stop ends the current clip and closes its done channel.
func (m *MockPlayer) Stop() error {
	m.mu.Lock()
	stopped := m.stopLocked()
	cb := m.callbacks.OnStop
	m.mu.Unlock()

	if stopped && cb != nil {
		cb()
	}
	return nil
}

func (m *MockPlayer) stopLocked() bool {
	if m.done == nil {
		return false
	}
	m.timer.Stop()
	close(m.done)
	m.done = nil
	if m.state != StateClosed {
		m.state = StateStopped
	}
	m.stops.Add(1)
	return true
}

// IsPlaying returns whether audio is currently playing.
func (m *MockPlayer) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePlaying
}

// State returns the current player state.
func (m *MockPlayer) State() PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (m *MockPlayer) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = volume
	return nil
}

// Volume returns the last volume set.
func (m *MockPlayer) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// LastAudio returns a copy of the most recently played clip.
func (m *MockPlayer) LastAudio() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastAudio...)
}

// Close stops playback; later calls to Play fail.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.state = StateClosed
	return nil
}

// Metrics returns playback counters.
func (m *MockPlayer) Metrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount:   m.plays.Load(),
		PauseCount:  m.pauses.Load(),
		ResumeCount: m.resumes.Load(),
		StopCount:   m.stops.Load(),
		FinishCount: m.finishes.Load(),
	}
}
