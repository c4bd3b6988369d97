package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed player.
	ErrClosed = errors.New("player is closed")

	// ErrEmptyAudio is returned when Play is given no samples.
	ErrEmptyAudio = errors.New("audio data is empty")
)

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Format describes signed 16-bit little endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat matches the raw output of piper's medium voices.
func DefaultFormat() Format {
	return Format{SampleRate: 22050, Channels: 1}
}

// Validate checks the format against what the output device accepts.
func (f Format) Validate() error {
	switch f.SampleRate {
	case 16000, 22050, 24000, 44100, 48000:
	default:
		return fmt.Errorf("unsupported sample rate %d Hz", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", f.Channels)
	}
	return nil
}

// Duration returns how long n bytes of PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	frame := 2 * f.Channels
	if frame == 0 || f.SampleRate == 0 {
		return 0
	}
	return time.Duration(n/frame) * time.Second / time.Duration(f.SampleRate)
}

// Bytes returns the PCM size of d in this format, rounded down to a whole frame.
func (f Format) Bytes(d time.Duration) int {
	frames := int(d * time.Duration(f.SampleRate) / time.Second)
	return frames * 2 * f.Channels
}

func stateError(op string, s PlayerState) error {
	return fmt.Errorf("cannot %s: player is %s", op, s)
}
