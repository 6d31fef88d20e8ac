// Package session maintains the WebSocket session between the panel and the
// node agent for one server.
//
// A session authenticates with a capability token, multiplexes inbound
// events to typed handlers, refreshes its token in band when the daemon
// announces expiry, and reconnects after a fixed delay when the socket
// drops. Exactly one socket is live per session at any time.
//
//	c := session.New(serverUUID, source,
//	    session.WithHandlers(session.Handlers{
//	        ConsoleOutput: func(line string) { fmt.Println(line) },
//	    }),
//	)
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"evalgo.org/nodelink/models"
)

var (
	// ErrNotConnected is returned by sends while the session is not authenticated
	ErrNotConnected = errors.New("session is not connected")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("session is closed")
)

// Defaults mirror the daemon's keepalive expectations.
const (
	DefaultReconnectDelay   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultPongWait         = 60 * time.Second
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// TokenSource supplies a fresh session token and the URL to present it to.
type TokenSource interface {
	Token(ctx context.Context) (*models.TokenData, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (*models.TokenData, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (*models.TokenData, error) {
	return f(ctx)
}

// Observer receives session lifecycle events, e.g. for metrics.
type Observer interface {
	SessionEvent(event string)
}

// Client is one WebSocket session.
type Client struct {
	server string
	source TokenSource

	reconnectDelay   time.Duration
	handshakeTimeout time.Duration
	writeWait        time.Duration
	pongWait         time.Duration
	origin           string
	dialer           *websocket.Dialer
	logger           *slog.Logger
	observer         Observer

	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	wg     sync.WaitGroup

	// writeMu serializes frames on the live socket.
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	epoch       uint64
	started     bool
	cleanedUp   bool
	timer       *time.Timer
	handlers    Handlers
	statsSentAt time.Time
	latency     time.Duration
	hasLatency  bool
	stats       *models.Stats
}

// Option configures a Client.
type Option func(*Client)

// WithReconnectDelay sets the fixed delay before reconnecting.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithHandshakeTimeout bounds the WebSocket upgrade.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithKeepalive sets the write deadline and the pong wait; pings are sent
// at 9/10 of pongWait.
func WithKeepalive(writeWait, pongWait time.Duration) Option {
	return func(c *Client) {
		if writeWait > 0 {
			c.writeWait = writeWait
		}
		if pongWait > 0 {
			c.pongWait = pongWait
		}
	}
}

// WithOrigin sets the Origin header sent during the upgrade.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithHandlers sets the initial handler table.
func WithHandlers(h Handlers) Option {
	return func(c *Client) { c.handlers = h }
}

// New creates a session for server. Nothing is dialed until Connect.
func New(server string, source TokenSource, opts ...Option) *Client {
	c := &Client{
		server:           server,
		source:           source,
		reconnectDelay:   DefaultReconnectDelay,
		handshakeTimeout: DefaultHandshakeTimeout,
		writeWait:        DefaultWriteWait,
		pongWait:         DefaultPongWait,
		kick:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("server", server)
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.handshakeTimeout,
		}
	}
	return c
}

// Connect starts the session. The first connection attempt runs in the
// background; observe progress through State or the StateChange handler.
// ctx bounds the whole session lifetime, not only the first attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cleanedUp {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	c.kick <- struct{}{}
	return nil
}

// Close tears the session down: no reconnect happens afterwards. It blocks
// until every session goroutine has exited and is safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cleanedUp {
		c.mu.Unlock()
		c.wg.Wait()
		return nil
	}
	c.cleanedUp = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.conn = nil
	c.epoch++
	prev := c.setStateLocked(StateDisconnected)
	h := c.handlers
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.notifyState(h, prev, StateDisconnected)
	c.observe("closed")

	c.wg.Wait()
	return nil
}

// Reconnect drops the live socket; the normal reconnect path follows.
func (c *Client) Reconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// SetHandlers replaces the handler table.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latency returns the last measured stats round trip.
func (c *Client) Latency() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency, c.hasLatency
}

// Stats returns the last stats snapshot, nil before the first one or after
// a disconnect.
func (c *Client) Stats() *models.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SendCommand writes a line to the server console.
func (c *Client) SendCommand(command string) error {
	return c.sendConnected(models.EventSendCommand, command)
}

// SendPowerAction changes the server power state.
func (c *Client) SendPowerAction(signal models.PowerSignal) error {
	if !signal.Valid() {
		return fmt.Errorf("unknown power signal %q", signal)
	}
	return c.sendConnected(models.EventSetState, string(signal))
}

// RequestStats asks for a stats snapshot and starts the round-trip timer.
func (c *Client) RequestStats() error {
	c.mu.Lock()
	conn, epoch, err := c.liveLocked(models.EventSendStats)
	if err == nil {
		c.statsSentAt = time.Now()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.write(conn, epoch, models.EventSendStats)
}

// RequestLogs asks the daemon to replay recent console output.
func (c *Client) RequestLogs() error {
	return c.sendConnected(models.EventSendLogs)
}

func (c *Client) sendConnected(event models.Event, args ...any) error {
	c.mu.Lock()
	conn, epoch, err := c.liveLocked(event)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.write(conn, epoch, event, args...)
}

// liveLocked returns the authenticated socket or the reason there is none.
func (c *Client) liveLocked(event models.Event) (*websocket.Conn, uint64, error) {
	if c.cleanedUp {
		return nil, 0, ErrClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.logger.Warn("dropping outbound message, session not connected",
			"event", string(event), "state", c.state.String())
		return nil, 0, ErrNotConnected
	}
	return c.conn, c.epoch, nil
}

// write sends one frame on conn.
func (c *Client) write(conn *websocket.Conn, epoch uint64, event models.Event, args ...any) error {
	msg, err := models.NewMessage(event, args...)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		c.logger.Debug("write failed", "event", string(event), "epoch", epoch, "error", err)
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// run owns connection attempts; attempts never overlap.
func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.kick:
			c.connect()
		}
	}
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.cleanedUp {
		c.mu.Unlock()
		return
	}
	c.epoch++
	epoch := c.epoch
	prior := c.conn
	c.conn = nil
	c.statsSentAt = time.Time{}
	c.hasLatency = false
	c.stats = nil
	prev := c.setStateLocked(StateConnecting)
	h := c.handlers
	c.mu.Unlock()

	if prior != nil {
		_ = prior.Close()
	}
	c.notifyState(h, prev, StateConnecting)

	creds, err := c.source.Token(c.ctx)
	if err != nil {
		c.logger.Warn("failed to obtain session token", "epoch", epoch, "error", err)
		c.fail(epoch)
		return
	}

	header := http.Header{}
	if c.origin != "" {
		header.Set("Origin", c.origin)
	}
	dialCtx, cancel := context.WithTimeout(c.ctx, c.handshakeTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, creds.ConnectionString, header)
	cancel()
	if err != nil {
		c.logger.Warn("failed to open session socket", "epoch", epoch, "url", creds.ConnectionString, "error", err)
		c.fail(epoch)
		return
	}

	c.mu.Lock()
	if c.cleanedUp || c.epoch != epoch {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	done := make(chan struct{})
	c.wg.Add(2)
	go c.readLoop(conn, epoch, done)
	go c.pingLoop(conn, epoch, done)

	if err := c.write(conn, epoch, models.EventAuth, creds.Token); err != nil {
		_ = conn.Close()
	}
}

// fail records a failed attempt and schedules the next one.
func (c *Client) fail(epoch uint64) {
	c.mu.Lock()
	if c.cleanedUp || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	prev := c.setStateLocked(StateError)
	h := c.handlers
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.notifyState(h, prev, StateError)
}

// scheduleReconnectLocked arms the single reconnect timer.
func (c *Client) scheduleReconnectLocked() {
	if c.cleanedUp || c.timer != nil {
		return
	}
	c.logger.Debug("reconnect scheduled", "delay", c.reconnectDelay.String())
	c.observe("reconnect_scheduled")
	c.timer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.timer = nil
		closed := c.cleanedUp
		c.mu.Unlock()
		if closed {
			return
		}
		select {
		case c.kick <- struct{}{}:
		default:
		}
	})
}

func (c *Client) readLoop(conn *websocket.Conn, epoch uint64, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("session socket closed", "epoch", epoch, "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))

		msg, err := decode(data)
		if err != nil {
			c.logger.Warn("ignoring malformed frame", "epoch", epoch, "error", err)
			continue
		}
		c.dispatch(conn, epoch, msg)
	}

	c.closed(conn, epoch)
}

func (c *Client) pingLoop(conn *websocket.Conn, epoch uint64, done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "epoch", epoch, "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// closed handles the end of conn. Sockets superseded by a newer attempt or
// by Close are ignored.
func (c *Client) closed(conn *websocket.Conn, epoch uint64) {
	_ = conn.Close()

	c.mu.Lock()
	if !c.currentLocked(conn, epoch) {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.statsSentAt = time.Time{}
	c.stats = nil
	prev := c.state
	next := prev
	if prev != StateError {
		next = StateDisconnected
		c.setStateLocked(next)
	}
	h := c.handlers
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.observe("disconnected")
	c.notifyState(h, prev, next)
}

func (c *Client) dispatch(conn *websocket.Conn, epoch uint64, msg inbound) {
	c.mu.Lock()
	current := c.currentLocked(conn, epoch)
	h := c.handlers
	c.mu.Unlock()
	if !current {
		return
	}

	switch m := msg.(type) {
	case authSuccess:
		prev, ok := c.transition(conn, epoch, StateConnected)
		if !ok {
			return
		}
		c.observe("connected")
		c.logger.Info("session authenticated", "epoch", epoch)
		c.notifyState(h, prev, StateConnected)

	case authFailed:
		prev, ok := c.transition(conn, epoch, StateError)
		_ = conn.Close()
		if !ok {
			return
		}
		c.observe("auth_error")
		c.logger.Warn("session authentication rejected", "epoch", epoch)
		c.notifyState(h, prev, StateError)

	case tokenExpiring:
		c.observe("token_expiring")
		if h.TokenExpiring != nil {
			c.safe("token expiring", h.TokenExpiring)
		}
		c.wg.Add(1)
		go c.refresh(conn, epoch)

	case tokenExpired:
		c.observe("token_expired")
		c.logger.Info("session token expired, reconnecting", "epoch", epoch)
		_ = conn.Close()

	case consoleOutput:
		if h.ConsoleOutput != nil {
			c.safe("console output", func() { h.ConsoleOutput(m.line) })
		}

	case statsUpdate:
		c.mu.Lock()
		var rtt time.Duration
		measured := false
		if !c.statsSentAt.IsZero() {
			rtt = time.Since(c.statsSentAt)
			c.statsSentAt = time.Time{}
			c.latency, c.hasLatency = rtt, true
			measured = true
		}
		if m.stats != nil {
			c.stats = m.stats
		}
		c.mu.Unlock()

		if m.stats == nil {
			c.logger.Debug("stats payload could not be parsed", "epoch", epoch)
		}
		if h.Stats != nil {
			c.safe("stats", func() { h.Stats(m.stats) })
		}
		if measured && h.Latency != nil {
			c.safe("latency", func() { h.Latency(rtt) })
		}

	case statusUpdate:
		if h.Status != nil {
			c.safe("status", func() { h.Status(m.status) })
		}

	case installStarted:
		if h.InstallStarted != nil {
			c.safe("install started", h.InstallStarted)
		}

	case installOutput:
		if h.InstallOutput != nil {
			c.safe("install output", func() { h.InstallOutput(m.line) })
		}

	case installCompleted:
		if h.InstallCompleted != nil {
			c.safe("install completed", h.InstallCompleted)
		}

	case backupComplete:
		if h.BackupComplete != nil {
			c.safe("backup complete", func() { h.BackupComplete(m.payload) })
		}

	case transferLogs:
		if h.TransferLogs != nil {
			c.safe("transfer logs", func() { h.TransferLogs(m.line) })
		}

	case transferStatus:
		if h.TransferStatus != nil {
			c.safe("transfer status", func() { h.TransferStatus(m.status) })
		}

	case daemonError:
		c.logger.Warn("daemon reported an error", "epoch", epoch, "message", m.message)
		if h.DaemonError != nil {
			c.safe("daemon error", func() { h.DaemonError(m.message) })
		}

	case unrecognized:
		if h.Message != nil {
			c.safe("message", func() { h.Message(m.msg) })
		}
	}
}

// refresh fetches a new token and re-authenticates on conn without closing
// it. The result is discarded if conn is no longer the live socket.
func (c *Client) refresh(conn *websocket.Conn, epoch uint64) {
	defer c.wg.Done()

	creds, err := c.source.Token(c.ctx)
	if err != nil {
		c.logger.Warn("token refresh failed", "epoch", epoch, "error", err)
		return
	}

	c.mu.Lock()
	current := c.currentLocked(conn, epoch)
	c.mu.Unlock()
	if !current {
		c.logger.Debug("discarding refreshed token for stale socket", "epoch", epoch)
		return
	}

	if err := c.write(conn, epoch, models.EventAuth, creds.Token); err == nil {
		c.observe("token_refreshed")
	}
}

// currentLocked reports whether conn is still the socket of the current
// attempt. c.mu must be held.
func (c *Client) currentLocked(conn *websocket.Conn, epoch uint64) bool {
	return !c.cleanedUp && c.epoch == epoch && c.conn == conn
}

// transition moves to s only while conn is still live, so a late auth
// reply cannot overwrite the state set by Close or a newer attempt.
func (c *Client) transition(conn *websocket.Conn, epoch uint64, s State) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(conn, epoch) {
		return c.state, false
	}
	return c.setStateLocked(s), true
}

func (c *Client) setStateLocked(s State) State {
	prev := c.state
	c.state = s
	return prev
}

func (c *Client) notifyState(h Handlers, prev, next State) {
	if prev == next || h.StateChange == nil {
		return
	}
	c.safe("state change", func() { h.StateChange(next) })
}

func (c *Client) observe(event string) {
	if c.observer != nil {
		c.observer.SessionEvent(event)
	}
}

// safe runs a handler, containing panics so one bad handler cannot kill the
// read loop.
func (c *Client) safe(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session handler panicked", "handler", name, "panic", r)
		}
	}()
	fn()
}
