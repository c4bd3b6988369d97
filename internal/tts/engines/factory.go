package engines

import (
	"fmt"
	"strings"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
)

// Names lists the engines New understands.
var Names = []string{"piper", "gtts", "mock"}

// Config selects and configures an engine.
type Config struct {
	Engine string
	Piper  PiperConfig
	GTTS   GTTSConfig
	Mock   MockConfig
}

// New builds the engine named by cfg.Engine.
func New(cfg Config, logger *log.Logger) (ttypes.TTSEngine, error) {
	switch strings.ToLower(cfg.Engine) {
	case "piper":
		return NewPiperEngine(cfg.Piper, logger)
	case "gtts", "google":
		return NewGTTSEngine(cfg.GTTS, logger), nil
	case "mock", "silent":
		return NewMockEngine(cfg.Mock), nil
	default:
		return nil, fmt.Errorf("%w %q (choose one of %s)", ErrUnknownEngine, cfg.Engine, strings.Join(Names, ", "))
	}
}
