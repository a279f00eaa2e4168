package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
)

var (
	ErrWSClosed       = errors.New("ws: client closed")
	ErrWSNotConnected = errors.New("ws: not connected")
)

type WSConfig struct {
	URL         string
	DialTimeout time.Duration
	// ReconnectMin/Max bound the backoff between redial attempts. The client
	// reconnects forever; resubscription on the connect hook is what heals
	// task interest after a drop.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Logger       *logger.Logger
}

// WSClient is the persistent duplex channel to the job runner. Messages are
// framed as {event, data} envelopes. Handlers run on the read goroutine, so
// events for a given task are applied in delivery order.
type WSClient struct {
	cfg WSConfig
	log *logger.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	handlers   map[string][]func(data json.RawMessage)
	connectFns []func()
	started    bool

	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

func NewWSClient(cfg WSConfig) *WSClient {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &WSClient{
		cfg:      cfg,
		log:      log,
		handlers: make(map[string][]func(data json.RawMessage)),
		closed:   make(chan struct{}),
	}
}

// OnEvent registers a handler for an inbound event name. Must be called
// before Start.
func (c *WSClient) OnEvent(event string, fn func(data json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

// OnConnect registers a hook that fires after every successful dial,
// including reconnects. Must be called before Start.
func (c *WSClient) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectFns = append(c.connectFns, fn)
}

// Start launches the dial/read/reconnect loop and returns immediately. The
// first dial happens in the background like every redial, so the owner comes
// up even while the backend is unreachable; Send reports ErrWSNotConnected
// until the handshake succeeds. Calling Start on an already started client is
// a no-op, so the owner can call it idempotently on mount.
func (c *WSClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

func (c *WSClient) run(ctx context.Context) {
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			return
		}
		c.setConn(conn)

		c.fireConnect()
		c.readAll()

		if c.isClosed() || ctx.Err() != nil {
			return
		}
		c.log.Warnw("ws_disconnected", "url", c.cfg.URL)
	}
}

// dial keeps attempting the handshake with doubling backoff until it succeeds
// or the client is closed.
func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}

	backoff := c.cfg.ReconnectMin
	for attempt := 1; ; attempt++ {
		conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
		if err == nil {
			c.log.Infow("ws_connected", "url", c.cfg.URL, "attempt", attempt)
			return conn, nil
		}

		c.log.Warnw("ws_dial_failed", "url", c.cfg.URL, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, ErrWSClosed
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// readAll pumps frames from the current connection until it breaks.
func (c *WSClient) readAll() {
	conn := c.currentConn()
	if conn == nil {
		return
	}
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.log.Warnw("ws_frame_malformed", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *WSClient) dispatch(env domain.Envelope) {
	c.mu.Lock()
	fns := c.handlers[env.Event]
	c.mu.Unlock()

	if len(fns) == 0 {
		c.log.Debugw("ws_event_unhandled", "event", env.Event)
		return
	}
	for _, fn := range fns {
		fn(env.Data)
	}
}

// Send writes an enveloped event. Writes are serialized so commands from the
// intent consumer and resubscription never interleave mid-frame.
func (c *WSClient) Send(event string, payload interface{}) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrWSNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(domain.Envelope{Event: event, Data: data})
}

func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	if conn := c.currentConn(); conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *WSClient) fireConnect() {
	c.mu.Lock()
	fns := make([]func(), len(c.connectFns))
	copy(fns, c.connectFns)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *WSClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *WSClient) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *WSClient) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
