// Package session owns the playback pipeline of a single meeting: the
// participant roster, the message parser, the playback queue and any sinks
// that record what was spoken. Each meeting gets its own Session, created
// and closed with the meeting.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baskills/meetingvoice/internal/parser"
	"github.com/baskills/meetingvoice/internal/queue"
	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session is closed")

// Sink receives every utterance as it begins playing. Sinks run on a
// dedicated goroutine in playback order, so a slow sink never delays audio.
type Sink func(ctx context.Context, sessionID string, u ttypes.Utterance) error

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithParser replaces the default parser.
func WithParser(p *parser.MessageParser) Option {
	return func(s *Session) { s.parser = p }
}

// WithQueueOptions passes options to the playback queue.
func WithQueueOptions(opts ...queue.Option) Option {
	return func(s *Session) { s.queueOpts = append(s.queueOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithSink adds a sink. name is used in logs.
func WithSink(name string, sink Sink) Option {
	return func(s *Session) { s.sinks = append(s.sinks, namedSink{name, sink}) }
}

type namedSink struct {
	name string
	fn   Sink
}

// Stats counts what the session has seen.
type Stats struct {
	Responses   int
	Utterances  int
	Diagnostics int
}

// Session is one meeting's playback pipeline.
type Session struct {
	id        string
	parser    *parser.MessageParser
	queue     *queue.PlaybackQueue
	queueOpts []queue.Option
	orch      ttypes.Orchestrator
	logger    *log.Logger
	sinks     []namedSink

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan ttypes.Utterance
	drained chan struct{}
	unsub   func()

	mu           sync.RWMutex
	participants []ttypes.Participant
	stats        Stats
	closed       bool
}

// New creates a session that plays through orch. The caller keeps ownership
// of orch.
func New(orch ttypes.Orchestrator, participants []ttypes.Participant, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		orch:         orch,
		participants: append([]ttypes.Participant(nil), participants...),
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan ttypes.Utterance, 64),
		drained:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.logger = s.logger.With("session", shortID(s.id))
	if s.parser == nil {
		s.parser = parser.New()
	}

	s.queue = queue.New(orch, append([]queue.Option{queue.WithLogger(s.logger)}, s.queueOpts...)...)
	s.unsub = s.queue.Subscribe(s.forward)
	go s.deliver()

	s.logger.Info("session started", "participants", len(s.participants), "sinks", len(s.sinks))
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Participants returns a copy of the roster.
func (s *Session) Participants() []ttypes.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ttypes.Participant(nil), s.participants...)
}

// SetParticipant adds p to the roster, replacing any participant with the
// same id.
func (s *Session) SetParticipant(p ttypes.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.participants {
		if s.participants[i].ID == p.ID {
			s.participants[i] = p
			return
		}
	}
	s.participants = append(s.participants, p)
}

// HandleResponse splits resp into utterances and queues them for playback.
// Dropped segments are logged as warnings; nothing is returned to the
// caller as an error. The accepted utterances are returned in playback
// order.
func (s *Session) HandleResponse(resp ttypes.Response) []ttypes.Utterance {
	roster := s.Participants()
	utterances, diags := s.parser.SplitResponse(resp, roster)
	for _, d := range diags {
		s.logger.Warn("dropped segment", d.Keyvals()...)
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.stats.Responses++
		s.stats.Utterances += len(utterances)
		s.stats.Diagnostics += len(diags)
	}
	s.mu.Unlock()
	if closed {
		s.logger.Warn("response after close", "id", resp.ID)
		return nil
	}

	s.logger.Debug("response", "id", resp.ID, "utterances", len(utterances), "dropped", len(diags))
	s.queue.EnqueueAndProcess(utterances, roster)
	return utterances
}

// Subscribe registers fn to be called when each utterance begins playing.
func (s *Session) Subscribe(fn func(ttypes.Utterance)) (unsubscribe func()) {
	return s.queue.Subscribe(fn)
}

// Pause pauses playback.
func (s *Session) Pause() { s.queue.Pause() }

// Resume resumes playback.
func (s *Session) Resume() { s.queue.Resume() }

// Stop discards everything queued or playing.
func (s *Session) Stop() { s.queue.Stop() }

// Skip ends the current utterance and moves on.
func (s *Session) Skip() { s.queue.SkipCurrent() }

// QueueLength returns the number of utterances waiting.
func (s *Session) QueueLength() int { return s.queue.Len() }

// IsProcessing reports whether the queue is working.
func (s *Session) IsProcessing() bool { return s.queue.IsProcessing() }

// Paused reports whether playback was paused.
func (s *Session) Paused() bool { return s.queue.IsPaused() }

// State returns the orchestrator's playback state.
func (s *Session) State() ttypes.PlaybackState { return s.orch.GetState() }

// Stats returns counters for the session.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Wait blocks until everything queued has played or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	return s.queue.Wait(ctx)
}

// Close stops playback, then waits up to five seconds for sinks to finish
// with utterances already delivered.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.unsub()
	err := s.queue.Close()
	close(s.events)

	select {
	case <-s.drained:
	case <-time.After(5 * time.Second):
		s.logger.Warn("sinks did not drain")
	}
	s.cancel()
	s.logger.Info("session closed", "responses", s.stats.Responses, "utterances", s.stats.Utterances)
	return err
}

// forward runs on the queue goroutine and must not block it.
func (s *Session) forward(u ttypes.Utterance) {
	if len(s.sinks) == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- u:
	default:
		s.logger.Warn("sink backlog full, dropping event", "id", u.ID)
	}
}

func (s *Session) deliver() {
	defer close(s.drained)
	for u := range s.events {
		for _, sink := range s.sinks {
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			if err := sink.fn(ctx, s.id, u); err != nil {
				s.logger.Warn("sink failed", "sink", sink.name, "id", u.ID, "err", err)
			}
			cancel()
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
