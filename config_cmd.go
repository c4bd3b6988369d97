package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech engine: piper, gtts or mock
engine: "piper"
# play nothing, only time utterances as if they were spoken
silent: false
# output volume (0.0 to 1.0)
volume: 1.0
# sample rate every engine renders at
sample_rate: 22050
# log to this file instead of stderr
# log_file: "~/meetingvoice.log"

piper:
  command: "piper"
  # directory holding <voice>.onnx models
  # model_dir: "~/.local/share/piper"
  default_voice: "en_US-lessac-medium"
  length_scale: 1.0
  timeout: "30s"

gtts:
  language: "en"
  slow: false
  requests_per_minute: 30
  timeout: "15s"

mock:
  per_word: "250ms"
  latency: "50ms"

cache:
  # dir: "~/.cache/meetingvoice"
  memory_mb: 64
  # 0 keeps synthesized audio in memory only
  disk_mb: 512
  compression: 3
  ttl: "168h"

playback:
  poll_interval: "100ms"
  # utterances synthesized ahead of playback
  lookahead: 3
  synthesis_timeout: "30s"
  retries: 2

transcript:
  enabled: true
  # path: "~/.local/share/meetingvoice/history.db"

bus:
  # NATS servers to publish "now speaking" events to
  servers: []
  prefix: "meetingvoice"
  # start an in-process NATS server when no servers are listed
  embedded: false
  embedded_port: 4222

metrics:
  # serve Prometheus metrics, e.g. "127.0.0.1:9464"
  addr: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the meetingvoice config file",
	Long:    paragraph(fmt.Sprintf("\n%s the meetingvoice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("meetingvoice config\nmeetingvoice config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("meetingvoice", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no config file location; pass --config")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
