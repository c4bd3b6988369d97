package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat Format
	otoErr    error
)

const readyTimeout = 5 * time.Second

func sharedContext(f Format, buffer time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   buffer,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}
		select {
		case <-ready:
			otoCtx, otoFormat = ctx, f
		case <-time.After(readyTimeout):
			otoErr = fmt.Errorf("audio device not ready after %s", readyTimeout)
		}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat != f {
		return nil, fmt.Errorf("audio context already opened at %d Hz/%d ch", otoFormat.SampleRate, otoFormat.Channels)
	}
	return otoCtx, nil
}

// Player plays PCM clips through the system audio device, one at a time.
type Player struct {
	ctx    *oto.Context
	format Format
	logger *log.Logger

	mu      sync.Mutex
	state   PlayerState
	current *stream
	volume  float64

	// how often a playing stream is checked for having drained
	pollInterval time.Duration
}

// stream owns the PCM buffer for as long as oto reads from it.
type stream struct {
	data   []byte
	player *oto.Player
	done   chan struct{}
	quit   chan struct{}
	once   sync.Once
}

func (s *stream) finish() {
	s.once.Do(func() {
		close(s.quit)
		s.player.Pause()
		_ = s.player.Close()
		s.data = nil
		close(s.done)
	})
}

// NewPlayer opens the audio device for the given format.
func NewPlayer(f Format, logger *log.Logger) (*Player, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, err := sharedContext(f, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}

	return &Player{
		ctx:          ctx,
		format:       f,
		logger:       logger.WithPrefix("audio"),
		volume:       1.0,
		pollInterval: 20 * time.Millisecond,
	}, nil
}

// Play replaces any current clip with pcm and starts it. The returned channel
// is closed once the clip has drained or has been stopped.
func (p *Player) Play(pcm []byte) (<-chan struct{}, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return nil, ErrClosed
	}
	p.stopLocked()

	data := make([]byte, len(pcm))
	copy(data, pcm)

	s := &stream{
		data: data,
		done: make(chan struct{}),
		quit: make(chan struct{}),
	}
	s.player = p.ctx.NewPlayer(bytes.NewReader(s.data))
	s.player.SetVolume(p.volume)
	s.player.Play()

	p.current = s
	p.state = StatePlaying
	p.logger.Debug("clip started", "bytes", len(data), "duration", p.format.Duration(len(data)))

	go p.watch(s)
	return s.done, nil
}

// watch finishes s once oto reports it drained while it was meant to play.
func (p *Player) watch(s *stream) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.current != s {
				p.mu.Unlock()
				return
			}
			if p.state == StatePlaying && !s.player.IsPlaying() {
				p.current = nil
				p.state = StateStopped
				p.mu.Unlock()
				s.finish()
				return
			}
			p.mu.Unlock()
		}
	}
}

// Pause silences the current clip, keeping its position.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying {
		return stateError("pause", p.state)
	}
	p.current.player.Pause()
	p.state = StatePaused
	return nil
}

// Resume continues a paused clip.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused {
		return stateError("resume", p.state)
	}
	p.current.player.Play()
	p.state = StatePlaying
	return nil
}

// Stop ends the current clip, if any, and releases its buffer.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.current != nil {
		p.current.finish()
		p.current = nil
	}
	if p.state != StateClosed {
		p.state = StateStopped
	}
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StatePlaying
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = volume
	if p.current != nil {
		p.current.player.SetVolume(volume)
	}
	return nil
}

// Close stops playback. The shared device stays open for the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.state = StateClosed
	return nil
}
