// Package config turns viper settings into the typed configuration of the
// meetingvoice pipeline.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/baskills/meetingvoice/internal/audio"
	"github.com/baskills/meetingvoice/internal/bus"
	"github.com/baskills/meetingvoice/internal/cache"
	"github.com/baskills/meetingvoice/internal/orchestrator"
	"github.com/baskills/meetingvoice/internal/tts/engines"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName names the config file, env prefix and data directories.
const AppName = "meetingvoice"

// Config is the full configuration.
type Config struct {
	Engine     string  `mapstructure:"engine"`
	Silent     bool    `mapstructure:"silent"`
	SampleRate int     `mapstructure:"sample_rate"`
	Volume     float64 `mapstructure:"volume"`
	Debug      bool    `mapstructure:"debug"`
	LogFile    string  `mapstructure:"log_file"`

	Piper      PiperConfig      `mapstructure:"piper"`
	GTTS       GTTSConfig       `mapstructure:"gtts"`
	Mock       MockConfig       `mapstructure:"mock"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Playback   PlaybackConfig   `mapstructure:"playback"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Bus        BusConfig        `mapstructure:"bus"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type PiperConfig struct {
	Command      string        `mapstructure:"command"`
	ModelDir     string        `mapstructure:"model_dir"`
	DefaultVoice string        `mapstructure:"default_voice"`
	LengthScale  float64       `mapstructure:"length_scale"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type GTTSConfig struct {
	Language          string        `mapstructure:"language"`
	Slow              bool          `mapstructure:"slow"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type MockConfig struct {
	PerWord time.Duration `mapstructure:"per_word"`
	Latency time.Duration `mapstructure:"latency"`
}

// CacheConfig sizes are in megabytes.
type CacheConfig struct {
	Dir         string        `mapstructure:"dir"`
	MemoryMB    int           `mapstructure:"memory_mb"`
	DiskMB      int           `mapstructure:"disk_mb"`
	Compression int           `mapstructure:"compression"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type PlaybackConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	Lookahead        int           `mapstructure:"lookahead"`
	SynthesisTimeout time.Duration `mapstructure:"synthesis_timeout"`
	Retries          int           `mapstructure:"retries"`
}

type TranscriptConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type BusConfig struct {
	Servers  []string `mapstructure:"servers"`
	Prefix   string   `mapstructure:"prefix"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Token    string   `mapstructure:"token"`

	// Embedded starts an in-process NATS server on EmbeddedPort and
	// connects to it when no servers are listed.
	Embedded     bool `mapstructure:"embedded"`
	EmbeddedPort int  `mapstructure:"embedded_port"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	scope := gap.NewScope(gap.User, AppName)
	cacheDir, _ := scope.CacheDir()
	history, _ := scope.DataPath("history.db")

	v.SetDefault("engine", "piper")
	v.SetDefault("silent", false)
	v.SetDefault("sample_rate", audio.DefaultFormat().SampleRate)
	v.SetDefault("volume", 1.0)
	v.SetDefault("debug", false)
	v.SetDefault("log_file", "")

	v.SetDefault("piper.command", "piper")
	v.SetDefault("piper.model_dir", "")
	v.SetDefault("piper.default_voice", "en_US-lessac-medium")
	v.SetDefault("piper.length_scale", 1.0)
	v.SetDefault("piper.timeout", "30s")

	v.SetDefault("gtts.language", "en")
	v.SetDefault("gtts.slow", false)
	v.SetDefault("gtts.requests_per_minute", 30)
	v.SetDefault("gtts.timeout", "15s")

	v.SetDefault("mock.per_word", "250ms")
	v.SetDefault("mock.latency", "50ms")

	v.SetDefault("cache.dir", cacheDir)
	v.SetDefault("cache.memory_mb", 64)
	v.SetDefault("cache.disk_mb", 512)
	v.SetDefault("cache.compression", 3)
	v.SetDefault("cache.ttl", "168h")

	v.SetDefault("playback.poll_interval", "100ms")
	v.SetDefault("playback.lookahead", 3)
	v.SetDefault("playback.synthesis_timeout", "30s")
	v.SetDefault("playback.retries", 2)

	v.SetDefault("transcript.enabled", true)
	v.SetDefault("transcript.path", history)

	v.SetDefault("bus.servers", []string{})
	v.SetDefault("bus.prefix", AppName)
	v.SetDefault("bus.embedded", false)
	v.SetDefault("bus.embedded_port", 4222)

	v.SetDefault("metrics.addr", "")
}

// Load decodes v into a Config, expands "~" in paths and validates the
// result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	for _, p := range []*string{&cfg.LogFile, &cfg.Piper.ModelDir, &cfg.Cache.Dir, &cfg.Transcript.Path} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return cfg, fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	cfg.Engine = strings.ToLower(strings.TrimSpace(cfg.Engine))

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(engines.Names, c.Engine) {
		errs = append(errs, fmt.Errorf("engine must be one of %s, got %q", strings.Join(engines.Names, ", "), c.Engine))
	}
	if err := c.Format().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Volume < 0 || c.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", c.Volume))
	}
	if c.Piper.LengthScale < 0.1 || c.Piper.LengthScale > 3.0 {
		errs = append(errs, fmt.Errorf("piper.length_scale must be between 0.1 and 3.0, got %.2f", c.Piper.LengthScale))
	}
	if l := len(c.GTTS.Language); l < 2 || l > 5 {
		errs = append(errs, fmt.Errorf("gtts.language must be 2-5 characters, got %q", c.GTTS.Language))
	}
	if c.GTTS.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("gtts.requests_per_minute must be positive, got %d", c.GTTS.RequestsPerMinute))
	}
	if c.Cache.MemoryMB < 1 || c.Cache.MemoryMB > 10000 {
		errs = append(errs, fmt.Errorf("cache.memory_mb must be between 1 and 10000, got %d", c.Cache.MemoryMB))
	}
	if c.Cache.DiskMB < 0 || c.Cache.DiskMB > 100000 {
		errs = append(errs, fmt.Errorf("cache.disk_mb must be between 0 and 100000, got %d", c.Cache.DiskMB))
	}
	if c.Cache.Compression < 0 || c.Cache.Compression > 22 {
		errs = append(errs, fmt.Errorf("cache.compression must be between 0 and 22, got %d", c.Cache.Compression))
	}
	if c.Playback.PollInterval < 10*time.Millisecond || c.Playback.PollInterval > 5*time.Second {
		errs = append(errs, fmt.Errorf("playback.poll_interval must be between 10ms and 5s, got %s", c.Playback.PollInterval))
	}
	if c.Playback.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("playback.lookahead cannot be negative, got %d", c.Playback.Lookahead))
	}
	if c.Playback.Retries < 0 {
		errs = append(errs, fmt.Errorf("playback.retries cannot be negative, got %d", c.Playback.Retries))
	}
	if c.Transcript.Enabled && c.Transcript.Path == "" {
		errs = append(errs, errors.New("transcript.path is required when the transcript is enabled"))
	}
	if c.Bus.Embedded && (c.Bus.EmbeddedPort < -1 || c.Bus.EmbeddedPort > 65535) {
		errs = append(errs, fmt.Errorf("bus.embedded_port out of range: %d", c.Bus.EmbeddedPort))
	}
	return errors.Join(errs...)
}

// Format is the PCM format every engine renders and the player expects.
func (c Config) Format() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, Channels: 1}
}

// EngineConfig builds the engine factory input.
func (c Config) EngineConfig() engines.Config {
	return engines.Config{
		Engine: c.Engine,
		Piper: engines.PiperConfig{
			Command:      c.Piper.Command,
			ModelDir:     c.Piper.ModelDir,
			DefaultVoice: c.Piper.DefaultVoice,
			SampleRate:   c.SampleRate,
			LengthScale:  c.Piper.LengthScale,
			Timeout:      c.Piper.Timeout,
		},
		GTTS: engines.GTTSConfig{
			Language:          c.GTTS.Language,
			Slow:              c.GTTS.Slow,
			SampleRate:        c.SampleRate,
			RequestsPerMinute: c.GTTS.RequestsPerMinute,
			Timeout:           c.GTTS.Timeout,
		},
		Mock: engines.MockConfig{
			SampleRate: c.SampleRate,
			PerWord:    c.Mock.PerWord,
			Latency:    c.Mock.Latency,
		},
	}
}

// CacheConfig builds the audio cache configuration. A zero disk size keeps
// the cache in memory only.
func (c Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.MemoryCapacity = int64(c.Cache.MemoryMB) << 20
	cfg.DiskCapacity = int64(c.Cache.DiskMB) << 20
	cfg.CompressionLevel = c.Cache.Compression
	cfg.TTL = c.Cache.TTL
	if c.Cache.DiskMB > 0 {
		cfg.DiskPath = c.Cache.Dir
	}
	return cfg
}

// OrchestratorConfig builds the orchestrator configuration.
func (c Config) OrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.SynthesisTimeout = c.Playback.SynthesisTimeout
	cfg.Retries = c.Playback.Retries
	return cfg
}

// BusConfig builds the NATS client configuration.
func (c Config) BusConfig() bus.Config {
	return bus.Config{
		Servers:  c.Bus.Servers,
		Name:     AppName,
		Prefix:   c.Bus.Prefix,
		Username: c.Bus.Username,
		Password: c.Bus.Password,
		Token:    c.Bus.Token,
	}
}
