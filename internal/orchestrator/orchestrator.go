package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baskills/meetingvoice/internal/audio"
	"github.com/baskills/meetingvoice/internal/cache"
	"github.com/baskills/meetingvoice/internal/speech"
	"github.com/baskills/meetingvoice/internal/tts/engines"
	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrClosed is returned by Play after Close.
	ErrClosed = errors.New("orchestrator is closed")

	// ErrNoID is returned by Play for an utterance without an id.
	ErrNoID = errors.New("utterance has no id")
)

// Config holds synthesis and prefetch settings.
type Config struct {
	SynthesisTimeout time.Duration // Per utterance, across retries
	Retries          int           // Extra attempts for retryable engine errors
	RetryDelay       time.Duration // Pause between attempts
	PrefetchWorkers  int           // Concurrent synthesis calls during Prefetch
	StripMarkdown    bool          // Read markdown formatting as plain text
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		SynthesisTimeout: 30 * time.Second,
		Retries:          2,
		RetryDelay:       500 * time.Millisecond,
		PrefetchWorkers:  2,
		StripMarkdown:    true,
	}
}

// Option configures an AudioOrchestrator.
type Option func(*AudioOrchestrator)

// WithCache stores synthesized audio in c, keyed by text and voice.
func WithCache(c ttypes.AudioCache) Option {
	return func(o *AudioOrchestrator) { o.cache = c }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *AudioOrchestrator) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *AudioOrchestrator) { o.logger = l }
}

// item is the utterance currently held by the orchestrator.
type item struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	pcm     []byte // synthesized, waiting for Resume
	started bool   // handed to the player
}

// AudioOrchestrator plays one utterance at a time. The player it drives
// must not call back into the orchestrator.
type AudioOrchestrator struct {
	engine ttypes.TTSEngine
	player ttypes.AudioPlayer
	cache  ttypes.AudioCache
	cfg    Config
	logger *log.Logger
	flight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   ttypes.PlaybackState
	current *item
	closed  bool
}

// New creates an orchestrator over engine and player.
func New(engine ttypes.TTSEngine, player ttypes.AudioPlayer, opts ...Option) *AudioOrchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &AudioOrchestrator{
		engine: engine,
		player: player,
		cfg:    DefaultConfig(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	o.logger = o.logger.WithPrefix("orchestrator")
	if o.cfg.PrefetchWorkers <= 0 {
		o.cfg.PrefetchWorkers = 1
	}
	if o.cfg.SynthesisTimeout <= 0 {
		o.cfg.SynthesisTimeout = DefaultConfig().SynthesisTimeout
	}
	return o
}

// Play makes u the current item. The state reflects it before Play returns;
// audio is resolved in the background. With autoStart false the item is
// loaded paused and starts on Resume. Any item already held is stopped.
func (o *AudioOrchestrator) Play(u ttypes.Utterance, p ttypes.Participant, autoStart bool) error {
	if u.ID == "" {
		return ErrNoID
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if prev := o.stopLocked(); prev != "" {
		o.logger.Warn("replacing item still in flight", "id", prev)
	}

	ctx, cancel := context.WithCancel(o.ctx)
	it := &item{id: u.ID, ctx: ctx, cancel: cancel}
	o.current = it
	ev := evStart
	if !autoStart {
		ev = evLoad
	}
	o.applyLocked(ev, u.ID)
	o.logger.Debug("play", "id", u.ID, "speaker", p.Name, "voice", p.Voice, "autostart", autoStart)

	go o.run(it, o.spoken(u.Content), p.Voice)
	return nil
}

func (o *AudioOrchestrator) run(it *item, text, voice string) {
	pcm, err := o.audio(it.ctx, text, voice)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != it {
		return
	}
	if err != nil {
		o.logger.Error("synthesis failed", "id", it.id, "err", err)
		o.finishLocked(it)
		return
	}

	it.pcm = pcm
	if o.state.IsPaused {
		o.logger.Debug("audio ready, waiting for resume", "id", it.id)
		return
	}
	o.startLocked(it)
}

func (o *AudioOrchestrator) startLocked(it *item) {
	done, err := o.player.Play(it.pcm)
	it.pcm = nil
	if err != nil {
		o.logger.Error("playback failed", "id", it.id, "err", err)
		o.finishLocked(it)
		return
	}
	it.started = true
	go o.await(it, done)
}

func (o *AudioOrchestrator) await(it *item, done <-chan struct{}) {
	select {
	case <-done:
	case <-it.ctx.Done():
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == it {
		o.logger.Debug("finished", "id", it.id)
		o.finishLocked(it)
	}
}

func (o *AudioOrchestrator) finishLocked(it *item) {
	it.cancel()
	o.current = nil
	o.applyLocked(evFinish, "")
}

// applyLocked moves the state on ev and reports whether the current state
// accepted it.
func (o *AudioOrchestrator) applyLocked(ev event, id string) bool {
	from := o.state.State()
	to, ok := next(from, ev)
	if !ok {
		return false
	}
	o.state = stateFor(to, id)
	o.logger.Debug("state", "event", ev, "from", from, "to", to)
	return true
}

// stopLocked drops the current item and returns its id, or "" when idle.
func (o *AudioOrchestrator) stopLocked() string {
	it := o.current
	if it == nil {
		return ""
	}
	o.current = nil
	o.applyLocked(evFinish, "")
	it.cancel()
	it.pcm = nil
	if it.started {
		if err := o.player.Stop(); err != nil {
			o.logger.Debug("player stop", "err", err)
		}
	}
	return it.id
}

// Pause silences the current item. It is a no-op when idle or paused.
func (o *AudioOrchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || !o.applyLocked(evPause, o.current.id) {
		return
	}
	if o.current.started {
		if err := o.player.Pause(); err != nil {
			o.logger.Debug("player pause", "err", err)
		}
	}
}

// Resume continues a paused item. It is a no-op unless paused.
func (o *AudioOrchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || !o.applyLocked(evResume, o.current.id) {
		return
	}

	it := o.current
	switch {
	case it.started:
		if err := o.player.Resume(); err != nil {
			o.logger.Debug("player resume", "err", err)
		}
	case it.pcm != nil:
		o.startLocked(it)
	}
	// Otherwise synthesis is still running and run starts playback.
}

// Stop discards the current item and releases its audio.
func (o *AudioOrchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id := o.stopLocked(); id != "" {
		o.logger.Debug("stopped", "id", id)
	}
}

// SkipToNext ends the current item as if it had finished.
func (o *AudioOrchestrator) SkipToNext() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id := o.stopLocked(); id != "" {
		o.logger.Info("skipped", "id", id)
	}
}

// GetState returns a snapshot of the playback state.
func (o *AudioOrchestrator) GetState() ttypes.PlaybackState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Prefetch synthesizes audio for upcoming cues into the cache. It returns
// the first error met; other cues are still attempted.
func (o *AudioOrchestrator) Prefetch(ctx context.Context, cues []ttypes.Cue) error {
	if o.cache == nil {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.PrefetchWorkers)
	for _, c := range cues {
		g.Go(func() error {
			if _, err := o.audio(ctx, o.spoken(c.Utterance.Content), c.Participant.Voice); err != nil {
				return fmt.Errorf("prefetch %s: %w", c.Utterance.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops the current item and refuses further Play calls. The engine,
// player and cache stay open; their owner closes them.
func (o *AudioOrchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.stopLocked()
	o.mu.Unlock()

	o.cancel()
	return nil
}

// spoken is the text handed to the engine for content. Content that cleans
// down to nothing is read as written.
func (o *AudioOrchestrator) spoken(content string) string {
	if !o.cfg.StripMarkdown {
		return content
	}
	if s := speech.Clean(content); s != "" {
		return s
	}
	return content
}

// audio returns PCM for text in voice from the cache, or synthesizes it.
// Concurrent requests for the same audio share one synthesis, which keeps
// running for the cache when the caller gives up.
func (o *AudioOrchestrator) audio(ctx context.Context, text, voice string) ([]byte, error) {
	key := cache.Key(text, voice)
	if o.cache != nil {
		if pcm, ok := o.cache.Get(key); ok {
			o.logger.Debug("cache hit", "key", key)
			return pcm, nil
		}
	}

	ch := o.flight.DoChan(key, func() (any, error) {
		return o.synthesize(key, text, voice)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *AudioOrchestrator) synthesize(key, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.SynthesisTimeout)
	defer cancel()

	var (
		pcm []byte
		err error
	)
	for attempt := 0; ; attempt++ {
		pcm, err = o.engine.Synthesize(ctx, text, voice)
		if err == nil || attempt >= o.cfg.Retries || !engines.IsRetryable(err) {
			break
		}
		o.logger.Warn("synthesis failed, retrying", "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.RetryDelay):
		}
	}
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("voice %q: %w", voice, audio.ErrEmptyAudio)
	}

	if o.cache != nil {
		if err := o.cache.Put(key, pcm); err != nil {
			o.logger.Warn("cache store failed", "key", key, "err", err)
		}
	}
	return pcm, nil
}
