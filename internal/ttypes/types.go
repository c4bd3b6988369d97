// Package ttypes contains the value types and collaborator interfaces shared
// by the parser, queue, orchestrator, audio and engine packages. It exists to
// break import cycles between them.
package ttypes

import (
	"context"
	"errors"
	"time"
)

// ErrMalformedResponse is returned by Response.Validate.
var ErrMalformedResponse = errors.New("malformed response")

// Response is one raw message produced by the meeting simulation. Content may
// hold several speaker turns separated by a delimiter token.
type Response struct {
	ID          string    `yaml:"id" json:"id"`
	Content     string    `yaml:"content" json:"content"`
	Speaker     string    `yaml:"speaker" json:"speaker"`
	SpeakerName string    `yaml:"speaker_name" json:"speakerName"`
	SpeakerRole string    `yaml:"speaker_role" json:"speakerRole"`
	Timestamp   time.Time `yaml:"timestamp" json:"timestamp"`
}

// Validate reports whether the record carries the fields the parser needs.
func (r Response) Validate() error {
	if r.ID == "" {
		return errors.Join(ErrMalformedResponse, errors.New("missing id"))
	}
	return nil
}

// Participant is a registered identity that can speak in a meeting.
type Participant struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Role string `yaml:"role" json:"role"`

	// Voice is an opaque handle the engine uses to pick a synthesized voice.
	Voice string `yaml:"voice" json:"voice"`
}

// Utterance is one speaker's single turn, queued for playback. Utterances are
// values and are never mutated after the parser creates them.
type Utterance struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	SpeakerID   string    `json:"speakerId"`
	SpeakerName string    `json:"speakerName"`
	SpeakerRole string    `json:"speakerRole"`
	CreatedAt   time.Time `json:"createdAt"`

	// FromMultiSpeaker is set when the utterance was split out of a combined
	// response; OriginalID then names that response.
	FromMultiSpeaker bool   `json:"isFromMultiSpeaker"`
	OriginalID       string `json:"originalId,omitempty"`
}

// State is the coarse playback state of an orchestrator.
type State int

const (
	// StateIdle means no item is held.
	StateIdle State = iota

	// StatePlaying means the current item is audible or about to be.
	StatePlaying

	// StatePaused means the current item is held but silent.
	StatePaused
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PlaybackState is the snapshot an orchestrator exposes to pollers.
// IsPlaying and IsPaused are never both true, and CurrentItemID is empty
// exactly when the orchestrator is idle.
type PlaybackState struct {
	IsPlaying     bool
	IsPaused      bool
	CurrentItemID string
}

// Idle reports whether no item is in flight.
func (s PlaybackState) Idle() bool {
	return s.CurrentItemID == ""
}

// State folds the snapshot into a State.
func (s PlaybackState) State() State {
	switch {
	case s.CurrentItemID == "":
		return StateIdle
	case s.IsPaused:
		return StatePaused
	default:
		return StatePlaying
	}
}

// Cue pairs an utterance with the participant who speaks it.
type Cue struct {
	Utterance   Utterance
	Participant Participant
}

// EngineInfo describes engine capabilities and configuration.
type EngineInfo struct {
	Name       string // Engine name (e.g., "piper", "gtts")
	SampleRate int    // Audio sample rate in Hz
	Channels   int    // Number of audio channels (1=mono, 2=stereo)
	BitDepth   int    // Bits per sample (typically 16)
	MaxText    int    // Maximum text size in characters, 0 if unbounded
	IsOnline   bool   // Whether the engine requires internet
}

// TTSEngine turns text into 16-bit little endian PCM in the given voice.
type TTSEngine interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	Info() EngineInfo
	Validate() error
	Close() error
}

// AudioPlayer plays one PCM stream at a time.
type AudioPlayer interface {
	// Play starts playback and returns a channel that is closed when the
	// stream ends, either naturally or because Stop was called.
	Play(pcm []byte) (<-chan struct{}, error)

	Pause() error
	Resume() error
	Stop() error
	IsPlaying() bool
	SetVolume(volume float64) error
	Close() error
}

// AudioCache stores synthesized audio by key.
type AudioCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, audio []byte) error
}

// Orchestrator plays a single utterance at a time and exposes its state.
// Pause while idle and Resume while playing are no-ops.
type Orchestrator interface {
	Play(u Utterance, p Participant, autoStart bool) error
	Pause()
	Resume()
	Stop()
	SkipToNext()
	GetState() PlaybackState
}

// Prefetcher is implemented by orchestrators that can prepare audio for
// upcoming utterances ahead of playback.
type Prefetcher interface {
	Prefetch(ctx context.Context, cues []Cue) error
}
