// Package main provides the entry point for the meetingvoice CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/baskills/meetingvoice/internal/config"
	"github.com/baskills/meetingvoice/internal/script"
	"github.com/baskills/meetingvoice/ui"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	followMode bool
	plain      bool
	sessionID  string

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "meetingvoice [SCRIPT|-]",
		Short: "Play a meeting script aloud, one voice per participant",
		Long: paragraph(
			fmt.Sprintf("\nPlay a meeting script %s, one voice per participant, one speaker at a time.", keyword("aloud")),
		),
		Example:          paragraph("meetingvoice planning.yaml\nmeetingvoice --engine mock --silent --plain planning.yaml\ncat planning.yaml | meetingvoice -"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// envKeyReplacer maps nested keys to env names: bus.servers is
// MEETINGVOICE_BUS_SERVERS.
var envKeyReplacer = strings.NewReplacer(".", "_")

// skipConfig marks commands that must work with a broken config file.
const skipConfig = "skip-config"

func validateOptions(cmd *cobra.Command) error {
	if _, ok := cmd.Annotations[skipConfig]; ok {
		return nil
	}

	if f := cmd.Flag("config"); f != nil && f.Changed {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	return err
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	src := "-"
	if len(args) == 1 {
		src = args[0]
	} else if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if !yes {
		return cmd.Help()
	}
	if followMode && src == "-" {
		return errors.New("--follow needs a script file, not stdin")
	}

	s, err := script.Load(src)
	if err != nil {
		return err
	}

	useTUI := !plain && term.IsTerminal(int(os.Stdout.Fd()))
	closer, err := setupLog(useTUI, cfg.LogFile, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = closer() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, s, sessionID)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Info("meeting started", "title", s.Title, "session", p.session.ID(), "engine", cfg.Engine, "responses", len(s.Responses))
	if useTUI {
		return runTUI(ctx, p, s, src)
	}
	return runPlain(ctx, p, s, src)
}

func runPlain(ctx context.Context, p *pipeline, s *script.Script, path string) error {
	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = min(w, 120)
		}
	}
	printer := newPlainPrinter(os.Stdout, s.Participants, width)
	unsubscribe := p.session.Subscribe(printer.print)
	defer unsubscribe()

	err := feed(ctx, p.session, s.Responses)
	if err == nil && followMode {
		err = follow(ctx, p.session, path, len(s.Responses))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runTUI(ctx context.Context, p *pipeline, s *script.Script, path string) error {
	// Read environment to get UI knobs
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Title = s.Title
	for _, part := range s.Participants {
		uiCfg.Speakers = append(uiCfg.Speakers, part.Name)
	}

	prog := ui.NewProgram(uiCfg, p.session)
	unsubscribe := p.session.Subscribe(ui.Subscriber(prog))
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		err := feed(ctx, p.session, s.Responses)
		if err == nil && followMode {
			err = follow(ctx, p.session, path, len(s.Responses))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			prog.Send(ui.ErrorMsg{Err: err})
			return
		}
		if err == nil {
			prog.Send(ui.ScriptDoneMsg{})
		}
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "log debug messages")
	rootCmd.Flags().StringP("engine", "e", "", "speech engine (piper, gtts or mock)")
	rootCmd.Flags().Bool("silent", false, "time utterances without playing audio")
	rootCmd.Flags().Float64("volume", 1.0, "output volume (0.0 to 1.0)")
	rootCmd.Flags().BoolVarP(&followMode, "follow", "f", false, "keep playing responses appended to the script")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "print the transcript instead of starting the TUI")
	rootCmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a new UUID)")
	rootCmd.Flags().Bool("transcript", true, "record the transcript to the history database")
	rootCmd.Flags().StringSlice("nats", nil, "NATS servers to publish and take commands on")
	rootCmd.Flags().Bool("embedded-nats", false, "start an in-process NATS server")
	rootCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("silent", rootCmd.Flags().Lookup("silent"))
	_ = viper.BindPFlag("volume", rootCmd.Flags().Lookup("volume"))
	_ = viper.BindPFlag("transcript.enabled", rootCmd.Flags().Lookup("transcript"))
	_ = viper.BindPFlag("bus.servers", rootCmd.Flags().Lookup("nats"))
	_ = viper.BindPFlag("bus.embedded", rootCmd.Flags().Lookup("embedded-nats"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.Flags().Lookup("metrics-addr"))

	config.SetDefaults(viper.GetViper())

	configCmd.Annotations = map[string]string{skipConfig: "true"}
	manCmd.Annotations = map[string]string{skipConfig: "true"}
	rootCmd.AddCommand(configCmd, manCmd, historyCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("MEETINGVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}
	configFile = filepath.Join(dirs[0], config.AppName+".yml")
}
