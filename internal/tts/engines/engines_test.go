package engines

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
)

var (
	_ ttypes.TTSEngine = (*PiperEngine)(nil)
	_ ttypes.TTSEngine = (*GTTSEngine)(nil)
	_ ttypes.TTSEngine = (*MockEngine)(nil)
)

func TestNew(t *testing.T) {
	tests := []struct {
		engine  string
		want    string
		wantErr bool
	}{
		{"piper", "piper", false},
		{"GTTS", "gtts", false},
		{"mock", "mock", false},
		{"festival", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			e, err := New(Config{Engine: tt.engine}, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownEngine) {
					t.Errorf("Expected ErrUnknownEngine, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if e.Info().Name != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, e.Info().Name)
			}
		})
	}
}

func TestPiperArgs(t *testing.T) {
	e, err := NewPiperEngine(PiperConfig{
		Command:      `python3 -m piper --data-dir "/opt/piper voices"`,
		ModelDir:     "/models",
		DefaultVoice: "en_US-amy-medium",
	}, nil)
	if err != nil {
		t.Fatalf("NewPiperEngine failed: %v", err)
	}

	tests := []struct {
		voice string
		want  []string
	}{
		{
			voice: "",
			want:  []string{"--model", "/models/en_US-amy-medium.onnx"},
		},
		{
			voice: "en_US-libritts-high#12",
			want:  []string{"--model", "/models/en_US-libritts-high.onnx", "--speaker", "12"},
		},
		{
			voice: "/abs/custom.onnx",
			want:  []string{"--model", "/abs/custom.onnx"},
		},
	}

	for _, tt := range tests {
		argv, err := e.args(tt.voice)
		if err != nil {
			t.Fatalf("args(%q) failed: %v", tt.voice, err)
		}
		prefix := []string{"python3", "-m", "piper", "--data-dir", "/opt/piper voices"}
		if !reflect.DeepEqual(argv[:len(prefix)], prefix) {
			t.Errorf("command prefix = %q", argv[:len(prefix)])
		}
		joined := strings.Join(argv, " ")
		if !strings.Contains(joined, strings.Join(tt.want[:2], " ")) {
			t.Errorf("args(%q) = %q, missing %q", tt.voice, joined, tt.want[:2])
		}
		if len(tt.want) > 2 && !strings.Contains(joined, "--speaker 12") {
			t.Errorf("args(%q) = %q, missing speaker", tt.voice, joined)
		}
	}

	if _, err := e.args("model#abc"); err == nil {
		t.Error("non-numeric speaker should be rejected")
	}
}

func TestPiperMissingBinary(t *testing.T) {
	e, _ := NewPiperEngine(PiperConfig{Command: "definitely-not-piper-xyz", DefaultVoice: "m"}, nil)

	_, err := e.Synthesize(context.Background(), "hello", "")
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != CodeUnavailable {
		t.Errorf("Expected unavailable error, got %v", err)
	}
	if e.Validate() == nil {
		t.Error("Validate should fail without the binary")
	}
}

func TestParseGTTSVoice(t *testing.T) {
	tests := []struct {
		voice, lang, tld string
	}{
		{"", "en", ""},
		{"fr", "fr", ""},
		{"en:co.uk", "en", "co.uk"},
		{":com.au", "en", "com.au"},
	}
	for _, tt := range tests {
		lang, tld := parseGTTSVoice(tt.voice, "en")
		if lang != tt.lang || tld != tt.tld {
			t.Errorf("parseGTTSVoice(%q) = %q,%q want %q,%q", tt.voice, lang, tld, tt.lang, tt.tld)
		}
	}

	e := NewGTTSEngine(GTTSConfig{Slow: true}, nil)
	args := e.gttsArgs("-starts with dash", "en:co.uk")
	if args[len(args)-2] != "--" || args[len(args)-1] != "-starts with dash" {
		t.Errorf("text must follow --, got %q", args)
	}
	if !strings.Contains(strings.Join(args, " "), "--tld co.uk") {
		t.Errorf("missing tld in %q", args)
	}
}

func TestMockEngine(t *testing.T) {
	e := NewMockEngine(MockConfig{SampleRate: 22050, PerWord: 100 * time.Millisecond})

	pcm, err := e.Synthesize(context.Background(), "three little words", "amy")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	// 300ms of 16-bit mono at 22050 Hz.
	if want := 6615 * 2; len(pcm) != want {
		t.Errorf("Expected %d bytes, got %d", want, len(pcm))
	}

	again, _ := e.Synthesize(context.Background(), "three little words", "amy")
	if !reflect.DeepEqual(pcm, again) {
		t.Error("mock output should be deterministic")
	}

	if _, err := e.Synthesize(context.Background(), "  ", "amy"); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}

	boom := errors.New("network down")
	e.FailOn("outage", boom)
	if _, err := e.Synthesize(context.Background(), "during the outage", "amy"); !errors.Is(err, boom) {
		t.Errorf("Expected injected error, got %v", err)
	}
	if e.Calls() != 4 {
		t.Errorf("Expected 4 calls, got %d", e.Calls())
	}
}

func TestMockEngine_LatencyHonoursContext(t *testing.T) {
	e := NewMockEngine(MockConfig{Latency: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := e.Synthesize(ctx, "slow", "v"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Synthesize should return promptly on cancellation")
	}
}

func TestEngineErrorRetryable(t *testing.T) {
	if !IsRetryable(newError("gtts", CodeTimeout, "slow", nil)) {
		t.Error("timeouts should be retryable")
	}
	if IsRetryable(newError("gtts", CodeUnavailable, "missing", nil)) {
		t.Error("missing binaries should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}
