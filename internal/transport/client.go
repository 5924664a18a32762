package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echopilot/internal/domain"
)

// Config controls the duplex channel to the backend.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
}

// Client owns the one websocket to the backend: it frames outbound events,
// decodes inbound frames into the closed event set, and reconnects after
// any non-intentional close.
//
// Reconnection is a fixed-delay loop with no attempt cap: this is a
// single-session, user-attended tool, and retrying forever until the user
// disconnects is the behavior they expect. Exactly one retry timer exists
// at a time, so duplicate close signals cannot stack attempts.
//
// Events() has a single consumer which must keep draining; inbound frames
// are delivered strictly in arrival order.
type Client struct {
	cfg      Config
	logger   *zap.Logger
	dialer   *websocket.Dialer
	clientID string

	mu          sync.Mutex
	conn        *websocket.Conn
	state       domain.ConnectionState
	intentional bool
	retryTimer  *time.Timer

	writeMu sync.Mutex

	events chan domain.InboundEvent
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		clientID: uuid.NewString(),
		state:    domain.ConnectionDisconnected,
		events:   make(chan domain.InboundEvent, 64),
	}
}

// Connect opens the channel. No-op if already open or opening. A user
// connect supersedes any pending retry attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.ConnectionConnected || c.state == domain.ConnectionConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.intentional = false
	c.state = domain.ConnectionConnecting
	c.mu.Unlock()
	c.emitState(domain.ConnectionConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = domain.ConnectionErrored
		c.mu.Unlock()
		c.emitState(domain.ConnectionErrored)
		return fmt.Errorf("failed to connect to backend: %w", err)
	}

	c.attach(conn)
	return nil
}

// Disconnect closes the channel intentionally and cancels any pending
// reconnect attempt. Intentional closes never trigger auto-reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	changed := c.state != domain.ConnectionDisconnected
	c.state = domain.ConnectionDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if changed {
		c.emitState(domain.ConnectionDisconnected)
	}
}

// Send serializes {type, ...payload} and transmits it. Returns false when
// not connected; a disconnected transport is a normal condition, not an
// error.
func (c *Client) Send(msgType string, payload map[string]any) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == domain.ConnectionConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	frame := make(map[string]any, len(payload)+3)
	for key, value := range payload {
		frame[key] = value
	}
	frame["type"] = msgType
	frame["message_id"] = uuid.NewString()
	frame["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	c.writeMu.Lock()
	err := conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("failed to send frame", zap.String("type", msgType), zap.Error(err))
		return false
	}
	return true
}

// Events returns the ordered inbound event stream. Single consumer.
func (c *Client) Events() <-chan domain.InboundEvent {
	return c.events
}

func (c *Client) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("X-Client-ID", c.clientID)

	conn, resp, err := c.dialer.DialContext(ctx, normalizeURL(c.cfg.URL), header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	return conn, err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.intentional {
		// Disconnect won the race against a dial already in flight.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	if c.conn != nil {
		// Never hold two live connections; the newest dial wins.
		_ = c.conn.Close()
	}
	c.conn = conn
	c.state = domain.ConnectionConnected
	c.mu.Unlock()
	c.emitState(domain.ConnectionConnected)

	go c.readLoop(conn)
	c.logger.Info("connected to backend", zap.String("url", c.cfg.URL))
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		event, decodeErr := decodeInbound(payload)
		if decodeErr != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(decodeErr))
			continue
		}
		c.events <- event
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	intentional := c.intentional
	if intentional {
		c.state = domain.ConnectionDisconnected
	} else {
		c.state = domain.ConnectionErrored
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	if intentional {
		return
	}
	c.logger.Warn("connection lost, will retry",
		zap.Duration("delay", c.cfg.ReconnectDelay),
		zap.Error(err),
	)
	c.emitState(domain.ConnectionErrored)
}

// scheduleReconnectLocked arms the single retry timer. Callers hold c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.retryTimer != nil {
		return
	}
	c.retryTimer = time.AfterFunc(c.cfg.ReconnectDelay, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.retryTimer = nil
	// A connecting state means another dial (a user Connect) is already in
	// flight; it owns the connection attempt now.
	if c.intentional || c.state == domain.ConnectionConnected || c.state == domain.ConnectionConnecting {
		c.mu.Unlock()
		return
	}
	c.state = domain.ConnectionConnecting
	c.mu.Unlock()
	c.emitState(domain.ConnectionConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	conn, err := c.dial(ctx)
	cancel()

	if err != nil {
		c.mu.Lock()
		c.state = domain.ConnectionErrored
		if !c.intentional {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		c.emitState(domain.ConnectionErrored)
		c.logger.Warn("reconnect attempt failed", zap.Error(err))
		return
	}

	c.attach(conn)
}

func (c *Client) emitState(state domain.ConnectionState) {
	c.events <- domain.ConnectionChange{State: state}
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
