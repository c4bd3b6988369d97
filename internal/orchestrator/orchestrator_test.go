package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baskills/meetingvoice/internal/audio"
	"github.com/baskills/meetingvoice/internal/cache"
	"github.com/baskills/meetingvoice/internal/tts/engines"
	"github.com/baskills/meetingvoice/internal/ttypes"
)

var _ ttypes.Orchestrator = (*AudioOrchestrator)(nil)
var _ ttypes.Prefetcher = (*AudioOrchestrator)(nil)

var sarah = ttypes.Participant{ID: "1", Name: "Sarah", Role: "Product Owner", Voice: "amy"}

func utterance(id, text string) ttypes.Utterance {
	return ttypes.Utterance{ID: id, Content: text, SpeakerID: sarah.ID, SpeakerName: sarah.Name}
}

func newTestOrchestrator(t *testing.T, clip time.Duration, opts ...Option) (*AudioOrchestrator, *engines.MockEngine, *audio.MockPlayer) {
	t.Helper()
	engine := engines.NewMockEngine(engines.MockConfig{PerWord: 10 * time.Millisecond})
	player := audio.NewMockPlayer(audio.DefaultFormat(), audio.MockCallbacks{})
	player.SetFixedDuration(clip)

	o := New(engine, player, opts...)
	t.Cleanup(func() { o.Close() })
	return o, engine, player
}

func waitIdle(t *testing.T, o *AudioOrchestrator, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for !o.GetState().Idle() {
		select {
		case <-deadline:
			t.Fatalf("orchestrator still busy: %+v", o.GetState())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitFor(t *testing.T, cond func() bool, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPlay_RunsToCompletion(t *testing.T) {
	o, _, player := newTestOrchestrator(t, 50*time.Millisecond)

	if err := o.Play(utterance("r1", "Good morning everyone."), sarah, true); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	state := o.GetState()
	if !state.IsPlaying || state.IsPaused || state.CurrentItemID != "r1" {
		t.Errorf("Expected playing r1 right after Play, got %+v", state)
	}

	waitIdle(t, o, time.Second)
	if m := player.Metrics(); m.PlayCount != 1 || m.FinishCount != 1 {
		t.Errorf("Expected one natural finish, got %+v", m)
	}
	if got := o.GetState(); got != (ttypes.PlaybackState{}) {
		t.Errorf("Expected zero state when idle, got %+v", got)
	}
}

func TestPlay_RejectsMissingID(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, 10*time.Millisecond)
	if err := o.Play(utterance("", "hello"), sarah, true); !errors.Is(err, ErrNoID) {
		t.Errorf("Expected ErrNoID, got %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	o, _, player := newTestOrchestrator(t, 150*time.Millisecond)

	// Pause while idle is a no-op.
	o.Pause()
	if !o.GetState().Idle() {
		t.Fatal("Pause while idle changed state")
	}

	o.Play(utterance("r1", "hello there"), sarah, true)
	waitFor(t, func() bool { return player.Metrics().PlayCount == 1 }, time.Second)

	// Resume while playing is a no-op.
	o.Resume()
	if player.Metrics().ResumeCount != 0 {
		t.Error("Resume while playing reached the player")
	}

	o.Pause()
	state := o.GetState()
	if state.IsPlaying || !state.IsPaused || state.CurrentItemID != "r1" {
		t.Errorf("Expected paused r1, got %+v", state)
	}

	// A paused clip must not finish.
	time.Sleep(250 * time.Millisecond)
	if o.GetState().Idle() {
		t.Fatal("paused item finished")
	}

	o.Resume()
	if !o.GetState().IsPlaying {
		t.Errorf("Expected playing after Resume, got %+v", o.GetState())
	}
	waitIdle(t, o, time.Second)

	if m := player.Metrics(); m.PauseCount != 1 || m.ResumeCount != 1 {
		t.Errorf("Unexpected player metrics %+v", m)
	}
}

func TestPlay_WithoutAutoStart(t *testing.T) {
	o, _, player := newTestOrchestrator(t, 30*time.Millisecond)

	o.Play(utterance("r1", "hold on"), sarah, false)
	state := o.GetState()
	if !state.IsPaused || state.CurrentItemID != "r1" {
		t.Fatalf("Expected loaded paused, got %+v", state)
	}

	time.Sleep(100 * time.Millisecond)
	if player.Metrics().PlayCount != 0 {
		t.Fatal("audio started without Resume")
	}

	o.Resume()
	waitIdle(t, o, time.Second)
	if player.Metrics().FinishCount != 1 {
		t.Errorf("Expected the item to play after Resume, got %+v", player.Metrics())
	}
}

func TestStopAndSkip(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*AudioOrchestrator)
	}{
		{"stop", (*AudioOrchestrator).Stop},
		{"skip", (*AudioOrchestrator).SkipToNext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, player := newTestOrchestrator(t, 10*time.Second)

			o.Play(utterance("long", "a very long speech"), sarah, true)
			waitFor(t, func() bool { return player.Metrics().PlayCount == 1 }, time.Second)

			tt.fn(o)
			if !o.GetState().Idle() {
				t.Errorf("Expected idle immediately, got %+v", o.GetState())
			}
			if player.IsPlaying() {
				t.Error("player still playing")
			}
			if player.Metrics().StopCount != 1 {
				t.Errorf("Expected one player stop, got %+v", player.Metrics())
			}
		})
	}
}

func TestStop_DuringSynthesis(t *testing.T) {
	engine := engines.NewMockEngine(engines.MockConfig{Latency: 200 * time.Millisecond})
	player := audio.NewMockPlayer(audio.DefaultFormat(), audio.MockCallbacks{})
	o := New(engine, player)
	defer o.Close()

	o.Play(utterance("r1", "slow to render"), sarah, true)
	o.Stop()
	if !o.GetState().Idle() {
		t.Fatalf("Expected idle, got %+v", o.GetState())
	}

	time.Sleep(300 * time.Millisecond)
	if player.Metrics().PlayCount != 0 {
		t.Error("stopped item reached the player")
	}
}

func TestFailuresReturnToIdle(t *testing.T) {
	t.Run("synthesis", func(t *testing.T) {
		o, engine, player := newTestOrchestrator(t, 10*time.Millisecond)
		engine.FailOn("network", errors.New("provider unreachable"))

		o.Play(utterance("bad", "network trouble"), sarah, true)
		waitIdle(t, o, time.Second)
		if player.Metrics().PlayCount != 0 {
			t.Error("failed synthesis should not play")
		}
	})

	t.Run("player", func(t *testing.T) {
		o, _, player := newTestOrchestrator(t, 10*time.Millisecond)
		player.FailNextPlay(errors.New("device busy"))

		o.Play(utterance("bad", "speaker unplugged"), sarah, true)
		waitIdle(t, o, time.Second)
	})

	t.Run("closed", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t, 10*time.Millisecond)
		o.Close()
		if err := o.Play(utterance("late", "too late"), sarah, true); !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	})
}

func TestCacheAvoidsResynthesis(t *testing.T) {
	mem := cache.NewMemoryCache(1 << 20)
	o, engine, _ := newTestOrchestrator(t, 10*time.Millisecond, WithCache(mem))

	for _, id := range []string{"a", "b"} {
		o.Play(utterance(id, "same words twice"), sarah, true)
		waitIdle(t, o, time.Second)
	}
	if engine.Calls() != 1 {
		t.Errorf("Expected 1 synthesis, got %d", engine.Calls())
	}

	// A different voice is a different entry.
	bola := ttypes.Participant{ID: "2", Name: "Bola", Voice: "joe"}
	o.Play(utterance("c", "same words twice"), bola, true)
	waitIdle(t, o, time.Second)
	if engine.Calls() != 2 {
		t.Errorf("Expected 2 syntheses, got %d", engine.Calls())
	}
}

func TestPrefetch(t *testing.T) {
	mem := cache.NewMemoryCache(1 << 20)
	o, engine, _ := newTestOrchestrator(t, 10*time.Millisecond, WithCache(mem))

	cues := []ttypes.Cue{
		{Utterance: utterance("1", "first line"), Participant: sarah},
		{Utterance: utterance("2", "second line"), Participant: sarah},
		{Utterance: utterance("3", "third line"), Participant: sarah},
	}
	if err := o.Prefetch(context.Background(), cues); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}
	if engine.Calls() != 3 {
		t.Fatalf("Expected 3 syntheses, got %d", engine.Calls())
	}
	if !mem.Contains(cache.Key("second line", "amy")) {
		t.Error("prefetched audio missing from cache")
	}

	o.Play(cues[1].Utterance, sarah, true)
	waitIdle(t, o, time.Second)
	if engine.Calls() != 3 {
		t.Errorf("Play after prefetch synthesized again: %d calls", engine.Calls())
	}
}

type flakyEngine struct {
	*engines.MockEngine
	failures atomic.Int32
}

func (f *flakyEngine) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, &engines.EngineError{Engine: "flaky", Code: engines.CodeTimeout, Message: "slow upstream"}
	}
	return f.MockEngine.Synthesize(ctx, text, voice)
}

func TestRetriesRetryableErrors(t *testing.T) {
	engine := &flakyEngine{MockEngine: engines.NewMockEngine(engines.MockConfig{})}
	engine.failures.Store(2)
	player := audio.NewMockPlayer(audio.DefaultFormat(), audio.MockCallbacks{})
	player.SetFixedDuration(10 * time.Millisecond)

	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	o := New(engine, player, WithConfig(cfg))
	defer o.Close()

	o.Play(utterance("r1", "eventually fine"), sarah, true)
	waitIdle(t, o, time.Second)
	if player.Metrics().FinishCount != 1 {
		t.Errorf("Expected playback after retries, got %+v", player.Metrics())
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from ttypes.State
		ev   event
		to   ttypes.State
		ok   bool
	}{
		{ttypes.StateIdle, evStart, ttypes.StatePlaying, true},
		{ttypes.StateIdle, evLoad, ttypes.StatePaused, true},
		{ttypes.StatePlaying, evPause, ttypes.StatePaused, true},
		{ttypes.StatePaused, evResume, ttypes.StatePlaying, true},
		{ttypes.StatePlaying, evFinish, ttypes.StateIdle, true},
		{ttypes.StatePaused, evFinish, ttypes.StateIdle, true},

		{ttypes.StateIdle, evPause, 0, false},
		{ttypes.StateIdle, evResume, 0, false},
		{ttypes.StateIdle, evFinish, 0, false},
		{ttypes.StatePlaying, evResume, 0, false},
		{ttypes.StatePlaying, evStart, 0, false},
		{ttypes.StatePaused, evPause, 0, false},
		{ttypes.StatePaused, evLoad, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			to, ok := next(tt.from, tt.ev)
			if ok != tt.ok {
				t.Fatalf("next(%s, %s) ok = %v, want %v", tt.from, tt.ev, ok, tt.ok)
			}
			if ok && to != tt.to {
				t.Errorf("next(%s, %s) = %s, want %s", tt.from, tt.ev, to, tt.to)
			}
		})
	}
}

func TestPauseResume_NoOpOutsideTheirStates(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, 200*time.Millisecond)

	o.Resume()
	o.Pause()
	if s := o.GetState(); !s.Idle() || s.IsPaused {
		t.Fatalf("Pause and Resume while idle should do nothing, got %+v", s)
	}

	o.Play(utterance("r1", "hello there"), sarah, true)
	o.Resume()
	if s := o.GetState(); !s.IsPlaying || s.CurrentItemID != "r1" {
		t.Errorf("Resume while playing should do nothing, got %+v", s)
	}
	o.Pause()
	o.Pause()
	if s := o.GetState(); !s.IsPaused || s.CurrentItemID != "r1" {
		t.Errorf("Expected paused r1, got %+v", s)
	}
}

// textEngine records the text of every synthesis request.
type textEngine struct {
	*engines.MockEngine
	mu    sync.Mutex
	texts []string
}

func (e *textEngine) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()
	return e.MockEngine.Synthesize(ctx, text, voice)
}

func (e *textEngine) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

func TestPlay_SpeaksCleanedMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		text  string
		spoke string
	}{
		{"strips emphasis", DefaultConfig(), "This is **really** important.", "This is really important."},
		{"keeps arithmetic", DefaultConfig(), "Velocity is 5*3*2 points.", "Velocity is 5*3*2 points."},
		{"code only", DefaultConfig(), "```\nmake test\n```", "```\nmake test\n```"},
		{"disabled", Config{}, "This is **really** important.", "This is **really** important."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &textEngine{MockEngine: engines.NewMockEngine(engines.MockConfig{PerWord: time.Millisecond})}
			player := audio.NewMockPlayer(audio.DefaultFormat(), audio.MockCallbacks{})
			player.SetFixedDuration(5 * time.Millisecond)
			o := New(engine, player, WithConfig(tt.cfg))
			defer o.Close()

			if err := o.Play(utterance("r1", tt.text), sarah, true); err != nil {
				t.Fatalf("Play failed: %v", err)
			}
			waitIdle(t, o, time.Second)

			if got := engine.seen(); len(got) != 1 || got[0] != tt.spoke {
				t.Errorf("Expected engine to receive %q, got %q", tt.spoke, got)
			}
		})
	}
}
