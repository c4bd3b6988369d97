package engines

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
)

// MockConfig tunes the mock engine.
type MockConfig struct {
	SampleRate int
	// PerWord is how long each word of text plays for.
	PerWord time.Duration
	// Latency is how long each synthesis call takes.
	Latency time.Duration
}

// MockEngine renders a quiet tone per voice, sized by word count. It never
// touches the network or a subprocess.
type MockEngine struct {
	cfg   MockConfig
	calls atomic.Int64

	mu     sync.Mutex
	failOn map[string]error
	closed bool
}

// NewMockEngine creates a mock engine.
func NewMockEngine(cfg MockConfig) *MockEngine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.PerWord <= 0 {
		cfg.PerWord = 300 * time.Millisecond
	}
	return &MockEngine{cfg: cfg, failOn: make(map[string]error)}
}

// FailOn makes synthesis of any text containing substr return err.
func (e *MockEngine) FailOn(substr string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn[substr] = err
}

// Calls returns how many synthesis requests were made.
func (e *MockEngine) Calls() int64 {
	return e.calls.Load()
}

// Synthesize implements ttypes.TTSEngine.
func (e *MockEngine) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	e.calls.Add(1)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	e.mu.Lock()
	closed := e.closed
	var failure error
	for substr, err := range e.failOn {
		if strings.Contains(text, substr) {
			failure = err
			break
		}
	}
	e.mu.Unlock()

	if closed {
		return nil, newError("mock", CodeUnavailable, "engine closed", nil)
	}

	if e.cfg.Latency > 0 {
		select {
		case <-time.After(e.cfg.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, newError("mock", CodeFailure, "injected failure", failure)
	}

	words := len(strings.Fields(text))
	return tone(voiceFrequency(voice), time.Duration(words)*e.cfg.PerWord, e.cfg.SampleRate), nil
}

// voiceFrequency maps a voice handle onto a pitch between 180 and 420 Hz so
// that speakers are distinguishable in silent-engine demos.
func voiceFrequency(voice string) float64 {
	h := fnv.New32a()
	h.Write([]byte(voice))
	return 180 + float64(h.Sum32()%240)
}

func tone(freq float64, d time.Duration, sampleRate int) []byte {
	samples := int(d * time.Duration(sampleRate) / time.Second)
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := 0.1 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}

// Info returns engine capabilities and configuration.
func (e *MockEngine) Info() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:       "mock",
		SampleRate: e.cfg.SampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// Validate always succeeds.
func (e *MockEngine) Validate() error {
	return nil
}

// Close makes later synthesis calls fail.
func (e *MockEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
