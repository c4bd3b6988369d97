// Package bus connects a meeting session to NATS. It publishes one event per
// utterance as it begins playing and accepts responses and playback
// commands from other processes.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// ErrNoServers is returned by Connect when no servers are configured.
var ErrNoServers = errors.New("no NATS servers configured")

// Config holds connection settings.
type Config struct {
	Servers        []string
	Name           string
	Prefix         string
	ConnectTimeout time.Duration
	Username       string
	Password       string
	Token          string
}

// Event is published when an utterance begins playing.
type Event struct {
	SessionID string           `json:"sessionId"`
	Utterance ttypes.Utterance `json:"utterance"`
	At        time.Time        `json:"at"`
}

// Client wraps a NATS connection scoped to a subject prefix.
type Client struct {
	conn   *nats.Conn
	prefix string
	logger *log.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials the configured servers.
func Connect(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "meetingvoice"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "meetingvoice"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}

	options := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if err := ctx.Err(); err != nil {
		conn.Close()
		return nil, err
	}

	logger = logger.WithPrefix("bus")
	logger.Info("connected to NATS", "servers", url)
	return &Client{conn: conn, prefix: cfg.Prefix, logger: logger}, nil
}

// Subject returns the subject for kind within a session, e.g.
// "meetingvoice.<session>.speaking".
func (c *Client) Subject(sessionID, kind string) string {
	return c.prefix + "." + sessionID + "." + kind
}

// Publish announces that u began playing in the session.
func (c *Client) Publish(ctx context.Context, sessionID string, u ttypes.Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Event{SessionID: sessionID, Utterance: u, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return c.conn.Publish(c.Subject(sessionID, "speaking"), data)
}

// Responses calls fn for every response published to the session's
// "responses" subject. Undecodable messages are logged and dropped.
func (c *Client) Responses(sessionID string, fn func(ttypes.Response)) error {
	return c.subscribe(c.Subject(sessionID, "responses"), func(msg *nats.Msg) {
		var resp ttypes.Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			c.logger.Warn("failed to decode response", "subject", msg.Subject, "err", err)
			return
		}
		fn(resp)
	})
}

// Controls calls fn for every playback command sent to the session's
// "control" subject. Requests with a reply subject get "ok" or an error.
func (c *Client) Controls(sessionID string, fn func(Command)) error {
	return c.subscribe(c.Subject(sessionID, "control"), func(msg *nats.Msg) {
		cmd, err := ParseCommand(string(msg.Data))
		if err != nil {
			c.logger.Warn("ignoring control message", "err", err)
		} else {
			fn(cmd)
		}
		if msg.Reply != "" {
			reply := "ok"
			if err != nil {
				reply = err.Error()
			}
			_ = msg.Respond([]byte(reply))
		}
	})
}

func (c *Client) subscribe(subject string, handler nats.MsgHandler) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.logger.Debug("subscribed", "subject", subject)
	return nil
}

// Flush waits until the server has processed everything sent so far.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Healthy reports whether the connection is up.
func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	c.logger.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}
