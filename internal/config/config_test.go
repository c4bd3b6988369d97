package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
			t.Fatalf("ReadConfig failed: %v", err)
		}
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine != "piper" {
		t.Errorf("Expected engine piper, got %q", cfg.Engine)
	}
	if cfg.Playback.PollInterval != 100*time.Millisecond {
		t.Errorf("Expected 100ms poll interval, got %s", cfg.Playback.PollInterval)
	}
	if cfg.Playback.Lookahead != 3 {
		t.Errorf("Expected lookahead 3, got %d", cfg.Playback.Lookahead)
	}
	if cfg.Cache.TTL != 168*time.Hour {
		t.Errorf("Expected a week TTL, got %s", cfg.Cache.TTL)
	}
	if !cfg.Transcript.Enabled || cfg.Transcript.Path == "" {
		t.Errorf("Expected the transcript enabled with a path, got %+v", cfg.Transcript)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	v := newViper(t, `
engine: MOCK
sample_rate: 24000
cache:
  dir: ~/audio-cache
  memory_mb: 8
  disk_mb: 0
playback:
  poll_interval: 50ms
  lookahead: 0
bus:
  servers: [nats://127.0.0.1:4222]
  token: s3cret
`)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine != "mock" {
		t.Errorf("Expected engine normalised to mock, got %q", cfg.Engine)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "audio-cache"); cfg.Cache.Dir != want {
		t.Errorf("Expected %q, got %q", want, cfg.Cache.Dir)
	}

	ec := cfg.EngineConfig()
	if ec.Engine != "mock" || ec.Mock.SampleRate != 24000 || ec.Piper.SampleRate != 24000 {
		t.Errorf("Unexpected engine config %+v", ec)
	}

	cc := cfg.CacheConfig()
	if cc.MemoryCapacity != 8<<20 {
		t.Errorf("Expected 8 MiB memory cache, got %d", cc.MemoryCapacity)
	}
	if cc.DiskPath != "" {
		t.Errorf("Expected no disk tier when disk_mb is 0, got %q", cc.DiskPath)
	}

	bc := cfg.BusConfig()
	if len(bc.Servers) != 1 || bc.Token != "s3cret" || bc.Prefix != AppName {
		t.Errorf("Unexpected bus config %+v", bc)
	}
	if cfg.Playback.PollInterval != 50*time.Millisecond {
		t.Errorf("Expected 50ms, got %s", cfg.Playback.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown engine", "engine: espeak", "engine must be one of"},
		{"sample rate", "sample_rate: 8000", "unsupported sample rate"},
		{"volume", "volume: 2", "volume"},
		{"length scale", "piper:\n  length_scale: 9", "piper.length_scale"},
		{"language", "gtts:\n  language: e", "gtts.language"},
		{"memory", "cache:\n  memory_mb: 0", "cache.memory_mb"},
		{"poll", "playback:\n  poll_interval: 1ms", "playback.poll_interval"},
		{"transcript", "transcript:\n  path: \"\"", "transcript.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	_, err := Load(newViper(t, "engine: nope\nvolume: -1\n"))
	if err == nil {
		t.Fatal("Expected an error")
	}
	for _, want := range []string{"engine", "volume"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}
