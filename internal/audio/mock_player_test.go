package audio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
)

var (
	_ ttypes.AudioPlayer = (*Player)(nil)
	_ ttypes.AudioPlayer = (*MockPlayer)(nil)
)

func waitClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("channel not closed within %v", timeout)
	}
}

func TestFormat(t *testing.T) {
	f := Format{SampleRate: 22050, Channels: 1}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if d := f.Duration(44100); d != time.Second {
		t.Errorf("Expected 1s, got %v", d)
	}
	if n := f.Bytes(500 * time.Millisecond); n != 22050 {
		t.Errorf("Expected 22050 bytes, got %d", n)
	}

	bad := []Format{{SampleRate: 8000, Channels: 1}, {SampleRate: 44100, Channels: 6}}
	for _, b := range bad {
		if b.Validate() == nil {
			t.Errorf("Expected %+v to be rejected", b)
		}
	}
}

func TestMockPlayer_NaturalCompletion(t *testing.T) {
	var finished atomic.Int32
	p := NewMockPlayer(DefaultFormat(), MockCallbacks{OnFinish: func() { finished.Add(1) }})
	defer p.Close()

	// 50ms of audio.
	done, err := p.Play(make([]byte, DefaultFormat().Bytes(50*time.Millisecond)))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !p.IsPlaying() {
		t.Error("Player should be playing after Play()")
	}

	waitClosed(t, done, time.Second)

	if p.State() != StateStopped {
		t.Errorf("Expected stopped after completion, got %v", p.State())
	}
	if finished.Load() != 1 {
		t.Errorf("Expected OnFinish once, got %d", finished.Load())
	}
}

func TestMockPlayer_PauseHoldsCompletion(t *testing.T) {
	p := NewMockPlayer(DefaultFormat(), MockCallbacks{})
	p.SetFixedDuration(60 * time.Millisecond)
	defer p.Close()

	done, _ := p.Play([]byte{0, 0})
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := p.Pause(); err == nil {
		t.Error("second Pause should fail")
	}

	select {
	case <-done:
		t.Fatal("paused clip must not complete")
	case <-time.After(120 * time.Millisecond):
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	waitClosed(t, done, time.Second)

	m := p.Metrics()
	if m.PauseCount != 1 || m.ResumeCount != 1 || m.FinishCount != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestMockPlayer_StopClosesDone(t *testing.T) {
	var stopped atomic.Int32
	p := NewMockPlayer(DefaultFormat(), MockCallbacks{OnStop: func() { stopped.Add(1) }})
	p.SetFixedDuration(time.Hour)

	done, _ := p.Play([]byte{1, 2})
	p.Stop()
	waitClosed(t, done, 100*time.Millisecond)

	// A second stop has nothing to stop.
	p.Stop()
	if stopped.Load() != 1 {
		t.Errorf("Expected OnStop once, got %d", stopped.Load())
	}

	// Replacing a clip stops the previous one.
	first, _ := p.Play([]byte{1, 2})
	second, _ := p.Play([]byte{3, 4})
	waitClosed(t, first, 100*time.Millisecond)
	select {
	case <-second:
		t.Error("new clip should still be playing")
	default:
	}

	p.Close()
	waitClosed(t, second, 100*time.Millisecond)
	if _, err := p.Play([]byte{1, 2}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMockPlayer_Errors(t *testing.T) {
	p := NewMockPlayer(DefaultFormat(), MockCallbacks{})
	defer p.Close()

	if _, err := p.Play(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}

	boom := errors.New("device unplugged")
	p.FailNextPlay(boom)
	if _, err := p.Play([]byte{1, 2}); !errors.Is(err, boom) {
		t.Errorf("Expected injected error, got %v", err)
	}
	if _, err := p.Play([]byte{1, 2}); err != nil {
		t.Errorf("failure should only apply once, got %v", err)
	}

	if err := p.SetVolume(1.5); err == nil {
		t.Error("Expected volume error")
	}
	if err := p.SetVolume(0.25); err != nil || p.Volume() != 0.25 {
		t.Errorf("SetVolume(0.25) = %v, volume %v", err, p.Volume())
	}
}
