// Package realtime implements transport.Transport over an OpenAI
// Realtime-style websocket.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/transport"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultEventBuffer  = 64
)

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. wss://api.openai.com/v1/realtime.
	URL string
	// Model is appended as the model query parameter when set.
	Model  string
	APIKey string
	// Header carries additional handshake headers.
	Header       http.Header
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
	EventBuffer  int
	Codec        Codec
	Logger       logging.Logger
}

// Client is a websocket Transport. Writes are serialized; inbound messages
// are decoded by a single read loop which closes the events channel when the
// connection ends.
type Client struct {
	conn   *websocket.Conn
	opts   Options
	events chan core.Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func defaultOptions() Options {
	return Options{
		Dialer:       websocket.DefaultDialer,
		WriteTimeout: defaultWriteTimeout,
		EventBuffer:  defaultEventBuffer,
		Codec: Codec{
			TranscriptionModel: defaultTranscriptionModel,
			TurnDetection:      defaultTurnDetection,
		},
		Logger: logging.NoOpLogger{},
	}
}

// Dial opens the websocket and starts the read loop.
func Dial(ctx context.Context, optFns ...func(o *Options)) (*Client, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.URL == "" {
		return nil, errors.New("realtime url is required")
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	if opts.Model != "" {
		q := u.Query()
		q.Set("model", opts.Model)
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if opts.APIKey != "" {
		header.Set("Authorization", "Bearer "+opts.APIKey)
		header.Set("OpenAI-Beta", "realtime=v1")
	}

	conn, _, err := opts.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime websocket: %w", err)
	}
	return newClient(conn, opts), nil
}

// NewClient wraps an established connection and starts the read loop.
func NewClient(conn *websocket.Conn, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newClient(conn, opts)
}

func newClient(conn *websocket.Conn, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	c := &Client{
		conn:   conn,
		opts:   opts,
		events: make(chan core.Event, opts.EventBuffer),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events implements transport.Transport.
func (c *Client) Events() <-chan core.Event { return c.events }

// Send implements transport.Transport.
func (c *Client) Send(ctx context.Context, cmd core.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	payload, err := c.opts.Codec.Encode(cmd)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s: %w", cmd.Type(), err)
	}
	c.opts.Logger.Debug("realtime.command.sent", "type", string(cmd.Type()))
	return nil
}

// Close implements transport.Transport.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			reason := err.Error()
			select {
			case <-c.closed:
				reason = "closed by client"
			default:
				c.opts.Logger.Info("realtime.connection.ended", "error", reason)
			}
			c.deliver(core.Disconnected{Reason: reason})
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := c.opts.Codec.Decode(raw)
		if err != nil {
			c.opts.Logger.Warn("realtime.event.decode_failed", "error", err.Error())
			continue
		}
		if ev == nil {
			continue
		}
		if !c.deliver(ev) {
			return
		}
	}
}

func (c *Client) deliver(ev core.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closed:
		return false
	}
}
