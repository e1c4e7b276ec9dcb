package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"supportchat/pkg/logger"
)

const (
	initialReconnectDelay = 3000 * time.Millisecond
	maxReconnectDelay     = 30000 * time.Millisecond
	maxReconnectAttempts  = 5

	defaultRequestTimeout = 15 * time.Second
)

// nextReconnectDelay grows the backoff by 1.5x up to the cap.
func nextReconnectDelay(current time.Duration) time.Duration {
	next := current * 3 / 2
	if next > maxReconnectDelay {
		next = maxReconnectDelay
	}
	return next
}

// Client maintains one logical connection to the remote realtime service and
// exposes request/acknowledgement and fire-and-forget primitives over it.
// Requests never queue: without a live connection they fail immediately.
type Client struct {
	serverURL      string
	apiKey         string
	domain         string
	requestTimeout time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected bool
	closed    bool
	seq       uint64
	pending   map[uint64]chan Result

	handlers     map[string]Handler
	onConnect    func()
	onDisconnect func()
	onExhausted  func()

	reconnectAttempts int
	reconnectDelay    time.Duration
}

func NewClient(serverURL, apiKey, domain string, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		serverURL:      serverURL,
		apiKey:         apiKey,
		domain:         domain,
		requestTimeout: requestTimeout,
		pending:        make(map[uint64]chan Result),
		handlers:       make(map[string]Handler),
		reconnectDelay: initialReconnectDelay,
	}
}

func (c *Client) OnConnect(fn func())    { c.mu.Lock(); c.onConnect = fn; c.mu.Unlock() }
func (c *Client) OnDisconnect(fn func()) { c.mu.Lock(); c.onDisconnect = fn; c.mu.Unlock() }

// OnReconnectExhausted fires after the reconnect budget is spent; the session
// surfaces it as the fatal "reload required" notification.
func (c *Client) OnReconnectExhausted(fn func()) { c.mu.Lock(); c.onExhausted = fn; c.mu.Unlock() }

func (c *Client) Handle(event string, fn Handler) {
	c.mu.Lock()
	c.handlers[event] = fn
	c.mu.Unlock()
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the realtime endpoint. A failed dial is treated like an
// unexpected disconnect and enters the reconnect schedule.
func (c *Client) Connect() {
	if err := c.dial(); err != nil {
		logger.Error("Transport dial failed: %v", err)
		c.scheduleReconnect()
	}
}

func (c *Client) dial() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.reconnectAttempts = 0
	c.reconnectDelay = initialReconnectDelay
	onConnect := c.onConnect
	c.mu.Unlock()

	logger.Info("Transport connected to %s", c.serverURL)
	go c.readLoop(conn)

	if onConnect != nil {
		onConnect()
	}
	return nil
}

func (c *Client) wsURL() string {
	base := c.serverURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	query := url.Values{}
	query.Set("api_key", c.apiKey)
	query.Set("domain", c.domain)
	return strings.TrimSuffix(base, "/") + "/ws?" + query.Encode()
}

// Close tears the connection down locally. It never triggers a reconnect.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Request sends an event expecting an acknowledgement and blocks until the
// reply, the configured timeout, or context cancellation.
func (c *Client) Request(ctx context.Context, event string, payload interface{}) Result {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: "failed to encode " + event, Code: "OPERATION_FAILED"}
	}

	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return Result{Err: "no connection to the server", Code: "NOT_CONNECTED"}
	}
	c.seq++
	seq := c.seq
	ch := make(chan Result, 1)
	c.pending[seq] = ch
	conn := c.conn
	c.mu.Unlock()

	if err := c.writeFrame(conn, Frame{Event: event, Seq: seq, Data: data}); err != nil {
		c.removePending(seq)
		logger.Error("Transport write failed for %s: %v", event, err)
		return Result{Err: "no connection to the server", Code: "NOT_CONNECTED"}
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res
	case <-timer.C:
		c.removePending(seq)
		logger.Warn("Request %s timed out after %s", event, c.requestTimeout)
		return Result{Err: "no reply to " + event, Code: "NO_RESPONSE"}
	case <-ctx.Done():
		c.removePending(seq)
		return Result{Err: ctx.Err().Error(), Code: "NO_RESPONSE"}
	}
}

// Notify sends an event with no reply expected.
func (c *Client) Notify(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "not connected"}
	}
	conn := c.conn
	c.mu.Unlock()

	return c.writeFrame(conn, Frame{Event: event, Data: data})
}

func (c *Client) writeFrame(conn *websocket.Conn, frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn("Transport received malformed frame: %v", err)
			continue
		}

		if frame.Event == eventAck {
			c.resolve(frame.Seq, decodeResult(frame.Data))
			continue
		}

		c.mu.Lock()
		handler := c.handlers[frame.Event]
		c.mu.Unlock()

		if handler != nil {
			handler(frame.Data)
		} else {
			logger.Debug("Unhandled push event %s", frame.Event)
		}
	}
}

func (c *Client) resolve(seq uint64, res Result) {
	c.mu.Lock()
	ch, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.mu.Unlock()

	if ok {
		ch <- res
	}
}

func (c *Client) removePending(seq uint64) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop from a replaced connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closed := c.closed
	pending := c.pending
	c.pending = make(map[uint64]chan Result)
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- Result{Err: "no connection to the server", Code: "NOT_CONNECTED"}
	}

	if closed {
		return
	}

	logger.Warn("Transport connection lost: %v", err)
	if onDisconnect != nil {
		onDisconnect()
	}
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.reconnectAttempts >= maxReconnectAttempts {
		onExhausted := c.onExhausted
		c.mu.Unlock()
		logger.Error("Transport gave up after %d reconnect attempts", maxReconnectAttempts)
		if onExhausted != nil {
			onExhausted()
		}
		return
	}
	c.reconnectAttempts++
	delay := c.reconnectDelay
	c.reconnectDelay = nextReconnectDelay(c.reconnectDelay)
	attempt := c.reconnectAttempts
	c.mu.Unlock()

	logger.Info("Transport reconnect attempt %d in %s", attempt, delay)
	time.AfterFunc(delay, func() {
		if c.Connected() {
			return
		}
		c.Connect()
	})
}
