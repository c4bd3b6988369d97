package engines

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const maxGTTSText = 5000

// GTTSConfig holds configuration for the gTTS engine.
type GTTSConfig struct {
	// Language is used for participants without a voice.
	Language string

	Slow              bool
	SampleRate        int
	RequestsPerMinute int
	Timeout           time.Duration
}

// GTTSEngine fetches MP3 from Google Translate's TTS through gtts-cli and
// decodes it to PCM with ffmpeg. A voice handle is "lang" or "lang:tld",
// where the top level domain selects an accent ("en:co.uk", "en:com.au").
type GTTSEngine struct {
	cfg     GTTSConfig
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewGTTSEngine creates a new gTTS engine.
func NewGTTSEngine(cfg GTTSConfig, logger *log.Logger) *GTTSEngine {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	return &GTTSEngine{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:  logger.WithPrefix("gtts"),
	}
}

// Synthesize converts text to PCM in the given voice.
func (e *GTTSEngine) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxGTTSText {
		return nil, newError("gtts", CodeInvalidInput, fmt.Sprintf("text too long: %d characters (max %d)", len(text), maxGTTSText), nil)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, newError("gtts", CodeRateLimited, "rate limit wait cancelled", err)
	}

	mp3, err := run(ctx, "gtts", e.cfg.Timeout, e.gttsArgs(text, voice), nil)
	if err != nil {
		return nil, err
	}

	pcm, err := run(ctx, "gtts", e.cfg.Timeout/2, e.ffmpegArgs(), bytes.NewReader(mp3))
	if err != nil {
		return nil, err
	}
	e.logger.Debug("synthesized", "voice", voice, "chars", len(text), "mp3", len(mp3), "pcm", len(pcm))
	return pcm, nil
}

func (e *GTTSEngine) gttsArgs(text, voice string) []string {
	lang, tld := parseGTTSVoice(voice, e.cfg.Language)
	args := []string{"gtts-cli", "-l", lang}
	if tld != "" {
		args = append(args, "--tld", tld)
	}
	if e.cfg.Slow {
		args = append(args, "--slow")
	}
	return append(args, "-o", "-", "--", text)
}

func (e *GTTSEngine) ffmpegArgs() []string {
	return []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "mp3", "-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(e.cfg.SampleRate),
		"-ac", "1",
		"pipe:1",
	}
}

// parseGTTSVoice splits "lang:tld". An empty voice falls back to def.
func parseGTTSVoice(voice, def string) (lang, tld string) {
	if voice == "" {
		voice = def
	}
	lang, tld, _ = strings.Cut(voice, ":")
	if lang == "" {
		lang = def
	}
	return lang, tld
}

// Info returns engine capabilities and configuration.
func (e *GTTSEngine) Info() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:       "gtts",
		SampleRate: e.cfg.SampleRate,
		Channels:   1,
		BitDepth:   16,
		MaxText:    maxGTTSText,
		IsOnline:   true,
	}
}

// Validate checks that gtts-cli and ffmpeg are installed.
func (e *GTTSEngine) Validate() error {
	if _, err := exec.LookPath("gtts-cli"); err != nil {
		return newError("gtts", CodeUnavailable, "gtts-cli not found in PATH (pip install gTTS)", err)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return newError("gtts", CodeUnavailable, "ffmpeg not found in PATH", err)
	}
	return nil
}

// Close releases resources held by the engine.
func (e *GTTSEngine) Close() error {
	return nil
}
