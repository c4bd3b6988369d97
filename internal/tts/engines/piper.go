package engines

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
)

const maxPiperText = 5000

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Command is the piper command line, e.g. "piper" or "python3 -m piper".
	Command string

	// ModelDir is searched for "<voice>.onnx" when a voice is not a path.
	ModelDir string

	// DefaultVoice is used for participants without a voice.
	DefaultVoice string

	SampleRate  int
	LengthScale float64
	Timeout     time.Duration
}

// PiperEngine synthesizes with a fresh piper process per utterance. A voice
// handle names a model, optionally followed by "#<speaker id>" for
// multi-speaker models: "en_US-libritts-high#12".
type PiperEngine struct {
	argv   []string
	cfg    PiperConfig
	logger *log.Logger
}

// NewPiperEngine creates a new Piper TTS engine.
func NewPiperEngine(cfg PiperConfig, logger *log.Logger) (*PiperEngine, error) {
	if cfg.Command == "" {
		cfg.Command = "piper"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.LengthScale <= 0 {
		cfg.LengthScale = 1.0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	argv, err := splitCommand(cfg.Command)
	if err != nil {
		return nil, newError("piper", CodeUnavailable, "invalid command", err)
	}

	return &PiperEngine{argv: argv, cfg: cfg, logger: logger.WithPrefix("piper")}, nil
}

// Synthesize runs piper with the text on stdin and returns raw PCM.
func (e *PiperEngine) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxPiperText {
		return nil, newError("piper", CodeInvalidInput, fmt.Sprintf("text too long: %d characters (max %d)", len(text), maxPiperText), nil)
	}

	argv, err := e.args(voice)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pcm, err := run(ctx, "piper", e.cfg.Timeout, argv, strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	e.logger.Debug("synthesized", "voice", voice, "chars", len(text), "bytes", len(pcm), "took", time.Since(start))
	return pcm, nil
}

func (e *PiperEngine) args(voice string) ([]string, error) {
	if voice == "" {
		voice = e.cfg.DefaultVoice
	}
	model, speaker, _ := strings.Cut(voice, "#")
	if model == "" {
		return nil, newError("piper", CodeInvalidInput, "no voice model configured", nil)
	}

	argv := append([]string{}, e.argv...)
	argv = append(argv,
		"--model", e.modelPath(model),
		"--output-raw",
		"--length-scale", strconv.FormatFloat(e.cfg.LengthScale, 'f', 2, 64),
	)
	if speaker != "" {
		if _, err := strconv.Atoi(speaker); err != nil {
			return nil, newError("piper", CodeInvalidInput, "speaker id must be numeric: "+speaker, err)
		}
		argv = append(argv, "--speaker", speaker)
	}
	return argv, nil
}

func (e *PiperEngine) modelPath(model string) string {
	if strings.HasSuffix(model, ".onnx") || filepath.IsAbs(model) || e.cfg.ModelDir == "" {
		return model
	}
	return filepath.Join(e.cfg.ModelDir, model+".onnx")
}

// Info returns engine capabilities and configuration.
func (e *PiperEngine) Info() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:       "piper",
		SampleRate: e.cfg.SampleRate,
		Channels:   1,
		BitDepth:   16,
		MaxText:    maxPiperText,
	}
}

// Validate checks that the piper binary and the default model exist.
func (e *PiperEngine) Validate() error {
	if _, err := exec.LookPath(e.argv[0]); err != nil {
		return newError("piper", CodeUnavailable, e.argv[0]+" not found in PATH", err)
	}
	if e.cfg.DefaultVoice != "" {
		model, _, _ := strings.Cut(e.cfg.DefaultVoice, "#")
		if _, err := os.Stat(e.modelPath(model)); err != nil {
			return newError("piper", CodeUnavailable, "model file not accessible", err)
		}
	}
	return nil
}

// Close releases resources held by the engine.
func (e *PiperEngine) Close() error {
	return nil
}
