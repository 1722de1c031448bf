package push

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the push channel's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	// ErrAuthRejected marks a refused channel handshake. It is terminal:
	// the session has expired and reconnection is not attempted.
	ErrAuthRejected = errors.New("push: channel authentication rejected")

	errMissingURL         = errors.New("channel url is required")
	errMissingTokenSource = errors.New("token source is required")
)

// TokenSource supplies the bearer credential for the channel handshake.
type TokenSource interface {
	Token() (string, error)
}

// RoomSource reports the rooms currently open in the client. The channel
// re-emits join intents for each of them on every (re)connect, because
// room-scoped subscriptions do not survive a transport drop.
type RoomSource interface {
	ActiveRooms() []string
}

// Settings tunes channel timeouts and buffers.
type Settings struct {
	HandshakeTimeout time.Duration
	AuthTimeout      time.Duration
	ReconnectTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	EventBuffer      int
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		AuthTimeout:      5 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		PingInterval:     20 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		EventBuffer:      64,
	}
}

// ChannelConfig bundles the push channel's collaborators.
type ChannelConfig struct {
	URL      string
	Tokens   TokenSource
	Rooms    RoomSource
	Settings *Settings
	Dialer   *websocket.Dialer
	Logger   *zap.Logger
}

// Channel maintains the persistent push connection:
// disconnected -> connecting -> connected -> (disconnected on drop) -> ...
// Transport drops reconnect silently after the reconnect timeout; an auth
// rejection is surfaced once and never retried.
type Channel struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	tokens   TokenSource
	rooms    RoomSource
	settings *Settings
	dialer   *websocket.Dialer
	logger   *zap.Logger

	events   chan Event
	states   chan State
	outgoing chan wireFrame

	mu          sync.Mutex
	state       State
	terminalErr error
	started     bool
}

// NewChannel constructs a Channel in the disconnected state. Nothing is
// dialed until Connect is called with an authenticated session.
func NewChannel(cfg ChannelConfig) (*Channel, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errMissingURL
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenSource
	}

	settings := cfg.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		ctx:      ctx,
		cancel:   cancel,
		url:      cfg.URL,
		tokens:   cfg.Tokens,
		rooms:    cfg.Rooms,
		settings: settings,
		dialer:   dialer,
		logger:   logger,
		events:   make(chan Event, settings.EventBuffer),
		states:   make(chan State, 8),
		outgoing: make(chan wireFrame, 16),
		state:    StateDisconnected,
	}, nil
}

// Connect starts the connection loop. Safe to call once per channel.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.run()
}

// Close tears the channel down permanently.
func (c *Channel) Close() {
	c.cancel()
}

// Events delivers decoded push events to the single reducer.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// States delivers connection-state transitions, best effort: slow
// observers miss intermediate states rather than stall the channel.
func (c *Channel) States() <-chan State {
	return c.states
}

// State reports the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports the terminal error, if any. Only auth rejection is terminal.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalErr
}

// Join emits a best-effort join intent for the room. No acknowledgment is
// awaited; membership is authoritative on the server.
func (c *Channel) Join(roomID string) {
	c.enqueue(wireFrame{Type: frameJoin, RoomID: roomID})
}

// Leave emits a best-effort leave intent for the room.
func (c *Channel) Leave(roomID string) {
	c.enqueue(wireFrame{Type: frameLeave, RoomID: roomID})
}

// SendTyping emits a best-effort typing state intent for the room,
// typically driven by a debouncer folding keystroke bursts.
func (c *Channel) SendTyping(roomID string, isTyping bool) {
	c.enqueue(wireFrame{Type: string(EventTyping), RoomID: roomID, IsTyping: isTyping})
}

func (c *Channel) enqueue(frame wireFrame) {
	select {
	case c.outgoing <- frame:
	default:
		c.logger.Debug("outgoing intent dropped, buffer full",
			zap.String("type", frame.Type), zap.String("room_id", frame.RoomID))
	}
}

func (c *Channel) run() {
	defer close(c.events)

	for {
		c.setState(StateConnecting)
		conn, err := c.handshake()
		if err != nil {
			c.setState(StateDisconnected)
			if errors.Is(err, ErrAuthRejected) {
				c.setTerminal(err)
				c.logger.Warn("push channel auth rejected, not retrying", zap.Error(err))
				return
			}
			c.logger.Debug("push channel connect failed, retrying", zap.Error(err))
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.settings.ReconnectTimeout):
				continue
			}
		}

		c.setState(StateConnected)
		c.rejoinActiveRooms(conn)
		c.serve(conn)
		c.setState(StateDisconnected)

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.settings.ReconnectTimeout):
		}
	}
}

// handshake dials the endpoint, presents the bearer token, and waits for
// the channel-level acknowledgment.
func (c *Channel) handshake() (*websocket.Conn, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, errors.Join(ErrAuthRejected, err)
	}

	conn, response, err := c.dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		if response != nil && isAuthHTTPStatus(response.StatusCode) {
			return nil, errors.Join(ErrAuthRejected, err)
		}
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			conn.Close()
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(c.settings.AuthTimeout))
	if err := conn.WriteJSON(wireFrame{Type: frameAuth, Token: token}); err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(c.settings.AuthTimeout))
	var ack wireFrame
	if err := conn.ReadJSON(&ack); err != nil {
		return nil, err
	}
	switch ack.Type {
	case frameAck:
	case frameError:
		return nil, errors.Join(ErrAuthRejected, errors.New(ack.Error))
	default:
		return nil, errors.New("unexpected handshake response: " + ack.Type)
	}

	success = true
	return conn, nil
}

func (c *Channel) rejoinActiveRooms(conn *websocket.Conn) {
	if c.rooms == nil {
		return
	}
	for _, roomID := range c.rooms.ActiveRooms() {
		conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
		if err := conn.WriteJSON(wireFrame{Type: frameJoin, RoomID: roomID}); err != nil {
			c.logger.Debug("rejoin intent failed", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		c.logger.Debug("rejoined room after (re)connect", zap.String("room_id", roomID))
	}
}

// serve pumps frames in both directions until the transport drops.
func (c *Channel) serve(conn *websocket.Conn) {
	defer conn.Close()

	serveCtx, serveCancel := context.WithCancel(c.ctx)
	defer serveCancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	})

	go func() {
		defer serveCancel()
		ping := time.NewTicker(c.settings.PingInterval)
		defer ping.Stop()
		for {
			select {
			case <-serveCtx.Done():
				return
			case frame := <-c.outgoing:
				conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := conn.WriteJSON(frame); err != nil {
					c.logger.Debug("intent write failed", zap.Error(err))
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-serveCtx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("push channel read ended", zap.Error(err))
			return
		}

		event, err := decodeEvent(raw)
		if err != nil {
			// Malformed or unknown frames are dropped, never surfaced.
			c.logger.Debug("dropping push frame", zap.Error(err))
			continue
		}

		select {
		case <-serveCtx.Done():
			return
		case c.events <- event:
		}
	}
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	select {
	case c.states <- state:
	default:
	}
}

func (c *Channel) setTerminal(err error) {
	c.mu.Lock()
	c.terminalErr = err
	c.mu.Unlock()
}

func isAuthHTTPStatus(status int) bool {
	return status == 401 || status == 403
}
