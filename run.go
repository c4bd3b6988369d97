package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baskills/meetingvoice/internal/audio"
	"github.com/baskills/meetingvoice/internal/bus"
	"github.com/baskills/meetingvoice/internal/cache"
	"github.com/baskills/meetingvoice/internal/config"
	"github.com/baskills/meetingvoice/internal/orchestrator"
	"github.com/baskills/meetingvoice/internal/queue"
	"github.com/baskills/meetingvoice/internal/script"
	"github.com/baskills/meetingvoice/internal/session"
	"github.com/baskills/meetingvoice/internal/telemetry"
	"github.com/baskills/meetingvoice/internal/transcript"
	"github.com/baskills/meetingvoice/internal/tts/engines"
	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
)

// pipeline owns every component of one meetingvoice run.
type pipeline struct {
	cfg    config.Config
	logger *log.Logger

	telemetry *telemetry.Telemetry
	engine    ttypes.TTSEngine
	cache     *cache.Manager
	player    ttypes.AudioPlayer
	orch      *orchestrator.AudioOrchestrator
	store     *transcript.Store
	nats      *bus.EmbeddedServer
	bus       *bus.Client
	session   *session.Session
}

// newPipeline builds the pipeline bottom up. Anything already built is torn
// down if a later step fails.
func newPipeline(ctx context.Context, cfg config.Config, s *script.Script, sessionID string) (p *pipeline, err error) {
	p = &pipeline{cfg: cfg, logger: log.Default()}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	if p.telemetry, err = telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    config.AppName,
		ServiceVersion: Version,
		Addr:           cfg.Metrics.Addr,
	}, p.logger); err != nil {
		return p, err
	}

	if p.engine, err = engines.New(cfg.EngineConfig(), p.logger); err != nil {
		return p, err
	}
	if err = p.engine.Validate(); err != nil {
		return p, fmt.Errorf("%s engine is not usable: %w", cfg.Engine, err)
	}

	if p.cache, err = cache.NewManager(cfg.CacheConfig(), p.logger); err != nil {
		return p, err
	}

	if cfg.Silent {
		p.player = audio.NewMockPlayer(cfg.Format(), audio.MockCallbacks{})
	} else {
		out, err := audio.NewPlayer(cfg.Format(), p.logger)
		if err != nil {
			return p, fmt.Errorf("unable to open audio output (try --silent): %w", err)
		}
		p.player = out
	}
	if err = p.player.SetVolume(cfg.Volume); err != nil {
		return p, err
	}

	p.orch = orchestrator.New(p.engine, p.player,
		orchestrator.WithCache(p.cache),
		orchestrator.WithConfig(cfg.OrchestratorConfig()),
		orchestrator.WithLogger(p.logger),
	)

	opts := []session.Option{
		session.WithLogger(p.logger),
		session.WithQueueOptions(
			queue.WithPollInterval(cfg.Playback.PollInterval),
			queue.WithLookahead(cfg.Playback.Lookahead),
			queue.WithMeterProvider(p.telemetry.MeterProvider()),
		),
	}
	if sessionID != "" {
		opts = append(opts, session.WithID(sessionID))
	}

	if cfg.Transcript.Enabled {
		if p.store, err = transcript.Open(ctx, cfg.Transcript.Path); err != nil {
			return p, err
		}
		opts = append(opts, session.WithSink("transcript", p.store.Record))
	}

	if err = p.connectBus(ctx); err != nil {
		return p, err
	}
	if p.bus != nil {
		opts = append(opts, session.WithSink("nats", p.bus.Publish))
	}

	p.session = session.New(p.orch, s.Participants, opts...)

	if p.store != nil {
		if err = p.store.Begin(ctx, p.session.ID(), s.Title); err != nil {
			return p, fmt.Errorf("unable to start transcript: %w", err)
		}
	}
	if p.bus != nil {
		if err = p.listen(); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (p *pipeline) connectBus(ctx context.Context) error {
	cfg := p.cfg.BusConfig()
	if len(cfg.Servers) == 0 && p.cfg.Bus.Embedded {
		srv, err := bus.StartEmbedded("127.0.0.1", p.cfg.Bus.EmbeddedPort, p.logger)
		if err != nil {
			return err
		}
		p.nats = srv
		cfg.Servers = []string{srv.ClientURL()}
	}
	if len(cfg.Servers) == 0 {
		return nil
	}

	client, err := bus.Connect(ctx, cfg, p.logger)
	if err != nil {
		return err
	}
	p.bus = client
	return nil
}

// listen accepts responses and playback commands for this session over NATS.
func (p *pipeline) listen() error {
	id := p.session.ID()
	if err := p.bus.Responses(id, func(r ttypes.Response) {
		p.session.HandleResponse(r)
	}); err != nil {
		return err
	}
	if err := p.bus.Controls(id, p.apply); err != nil {
		return err
	}
	p.logger.Info("listening on NATS",
		"responses", p.bus.Subject(id, "responses"),
		"control", p.bus.Subject(id, "control"))
	return nil
}

func (p *pipeline) apply(cmd bus.Command) {
	switch cmd {
	case bus.CommandPause:
		p.session.Pause()
	case bus.CommandResume:
		p.session.Resume()
	case bus.CommandSkip:
		p.session.Skip()
	case bus.CommandStop:
		p.session.Stop()
	}
}

// feed delivers the script's responses to the session, honouring each
// entry's delay, then waits for playback to drain.
func feed(ctx context.Context, sess *session.Session, entries []script.Entry) error {
	for _, e := range entries {
		if e.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.Delay):
			}
		}
		sess.HandleResponse(e.Response)
	}
	return sess.Wait(ctx)
}

// follow feeds responses appended to the script file until ctx is done.
// Participants added to the file join the session.
func follow(ctx context.Context, sess *session.Session, path string, seen int) error {
	return script.Follow(ctx, path, seen, func(s *script.Script, fresh []script.Entry) {
		for _, p := range s.Participants {
			sess.SetParticipant(p)
		}
		for _, e := range fresh {
			if e.Delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.Delay):
				}
			}
			sess.HandleResponse(e.Response)
		}
	})
}

// Close releases everything in reverse order of construction.
func (p *pipeline) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if p.session != nil {
		if err := p.session.Close(); err != nil && !errors.Is(err, session.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.bus != nil {
		p.bus.Close()
	}
	if p.nats != nil {
		p.nats.Shutdown()
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	if p.orch != nil {
		errs = append(errs, p.orch.Close())
	}
	if p.player != nil {
		errs = append(errs, p.player.Close())
	}
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	if p.engine != nil {
		errs = append(errs, p.engine.Close())
	}
	if p.telemetry != nil {
		errs = append(errs, p.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Warn("shutdown", "err", err)
	}
}
