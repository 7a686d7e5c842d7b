package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrforge/corenostr/logutil"
	"github.com/nostrforge/corenostr/nostr"
)

// PublishResult is the outcome of an acknowledged publish.
type PublishResult struct {
	Accepted bool
	Message  string
}

// publishOutcome is the internal waiter payload: err is set when the
// connection dropped before an OK frame arrived.
type publishOutcome struct {
	result PublishResult
	err    error
}

// Connection is a single relay's WebSocket actor. All state is owned by
// its exported methods and the single read-loop goroutine spawned by
// Connect; callers never touch the socket directly.
type Connection struct {
	url    string
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu                sync.Mutex
	state             State
	conn              *websocket.Conn
	subIDs            map[string]struct{}
	waiters           map[string]chan publishOutcome
	currentDelay      time.Duration
	reconnectAttempts int
	disconnected      bool   // set by Disconnect; suppresses further reconnects
	generation        uint64 // bumped on every Disconnect/new Connect to void stale callbacks

	writeMu sync.Mutex

	stateSubsMu sync.Mutex
	stateSubs   map[int]chan State
	stateSubSeq int

	msgSubsMu sync.Mutex
	msgSubs   map[int]chan ServerMessage
	msgSubSeq int
}

// NewConnection builds a Connection in the Disconnected state. logger may
// be nil, in which case slog.Default() is used.
func NewConnection(url string, cfg Config, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		url:          url,
		cfg:          cfg,
		dialer:       &websocket.Dialer{HandshakeTimeout: cfg.ConnectionTimeout},
		logger:       logger.With("relay", url),
		state:        Disconnected,
		subIDs:       make(map[string]struct{}),
		waiters:      make(map[string]chan publishOutcome),
		currentDelay: cfg.InitialReconnectDelay,
		stateSubs:    make(map[int]chan State),
		msgSubs:      make(map[int]chan ServerMessage),
	}
}

// URL returns the relay's configured address.
func (c *Connection) URL() string { return c.url }

// State returns the current machine state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the relay and, within ConnectionTimeout, confirms
// liveness via a WS ping/pong. It is a no-op if already Connected.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	c.disconnected = false
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectionTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		c.onConnectFailure(gen)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	// The websocket package allows exactly one reader goroutine, and pong
	// handlers only run while that reader is blocked in a read. Start the
	// read loop before pinging; the handler clears the liveness deadline
	// from inside the reader goroutine, where deadline calls are safe.
	deadline := time.Now().Add(c.cfg.ConnectionTimeout)
	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Time{})
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})
	conn.SetReadDeadline(deadline)
	go c.readLoop(conn, gen)

	if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.failHandshake(gen, conn)
		return fmt.Errorf("%w: ping failed: %v", ErrConnectionFailed, err)
	}

	select {
	case <-pongCh:
	case <-time.After(time.Until(deadline)):
		c.failHandshake(gen, conn)
		return fmt.Errorf("%w: pong not received", ErrConnectionFailed)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.currentDelay = c.cfg.InitialReconnectDelay
	c.reconnectAttempts = 0
	c.mu.Unlock()

	c.setState(Connected)
	return nil
}

// failHandshake tears down a socket whose liveness check failed after
// the read loop was already started.
func (c *Connection) failHandshake(gen uint64, conn *websocket.Conn) {
	conn.Close()
	c.onConnectFailure(gen)
}

// onConnectFailure handles the death of generation gen exactly once:
// the first caller bumps the generation, so every other goroutine that
// observed the same gen becomes a no-op.
func (c *Connection) onConnectFailure(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	newGen := c.generation
	c.mu.Unlock()

	c.setState(Failed)
	c.failAllWaiters()
	c.scheduleReconnect(newGen)
}

// Disconnect cancels any pending reconnect, wakes every publish waiter
// with ErrNotConnected, and closes the socket.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.generation++
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.setState(Disconnecting)
	c.failAllWaiters()
	if conn != nil {
		conn.Close()
	}
	c.setState(Disconnected)
}

// Send serializes msg and writes it within OperationTimeout, connecting
// first if necessary.
func (c *Connection) Send(ctx context.Context, msg ClientMessage) error {
	if c.State() != Connected {
		if err := c.Connect(ctx); err != nil {
			return ErrNotConnected
		}
	}

	data, err := msg.MarshalClientMessage()
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	gen := c.generation
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.OperationTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	conn.SetWriteDeadline(time.Time{})
	c.writeMu.Unlock()

	if err != nil {
		c.onConnectFailure(gen)
		return ErrNotConnected
	}
	return nil
}

// Publish sends ev and awaits the relay's OK frame, keyed by event id.
func (c *Connection) Publish(ctx context.Context, ev *nostr.Event) (PublishResult, error) {
	waiter := make(chan publishOutcome, 1)
	c.mu.Lock()
	c.waiters[ev.ID] = waiter
	c.mu.Unlock()

	if err := c.Send(ctx, EventMessage{Event: ev}); err != nil {
		c.mu.Lock()
		delete(c.waiters, ev.ID)
		c.mu.Unlock()
		return PublishResult{}, err
	}

	select {
	case out := <-waiter:
		if out.err != nil {
			return out.result, out.err
		}
		if !out.result.Accepted {
			return out.result, &RelayError{Message: out.result.Message}
		}
		return out.result, nil
	case <-time.After(c.cfg.OperationTimeout):
		c.mu.Lock()
		delete(c.waiters, ev.ID)
		c.mu.Unlock()
		return PublishResult{}, ErrTimeout
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, ev.ID)
		c.mu.Unlock()
		return PublishResult{}, ctx.Err()
	}
}

// Subscribe opens sub_id with filters and tracks it locally for
// resubscription bookkeeping by a pool.
func (c *Connection) Subscribe(ctx context.Context, subID string, filters []nostr.Filter) error {
	if err := c.Send(ctx, ReqMessage{SubID: subID, Filters: filters}); err != nil {
		return err
	}
	c.mu.Lock()
	c.subIDs[subID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Unsubscribe closes sub_id.
func (c *Connection) Unsubscribe(ctx context.Context, subID string) error {
	c.mu.Lock()
	delete(c.subIDs, subID)
	c.mu.Unlock()
	return c.Send(ctx, CloseMessage{SubID: subID})
}

// ActiveSubscriptions returns the set of sub_ids currently tracked (used
// by a pool to resubscribe after a reconnect).
func (c *Connection) ActiveSubscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subIDs))
	for id := range c.subIDs {
		ids = append(ids, id)
	}
	return ids
}

// Messages registers a new consumer of inbound frames and returns a
// cancel func. Multiple concurrent consumers are supported; cancelling
// one never closes the socket or affects the others.
func (c *Connection) Messages() (<-chan ServerMessage, func()) {
	ch := make(chan ServerMessage, 256)
	c.msgSubsMu.Lock()
	id := c.msgSubSeq
	c.msgSubSeq++
	c.msgSubs[id] = ch
	c.msgSubsMu.Unlock()

	cancel := func() {
		c.msgSubsMu.Lock()
		if sub, ok := c.msgSubs[id]; ok {
			delete(c.msgSubs, id)
			close(sub)
		}
		c.msgSubsMu.Unlock()
	}
	return ch, cancel
}

// StateChanges registers a new consumer of state transitions, yielding
// the current state immediately.
func (c *Connection) StateChanges() (<-chan State, func()) {
	ch := make(chan State, 16)
	c.stateSubsMu.Lock()
	id := c.stateSubSeq
	c.stateSubSeq++
	c.stateSubs[id] = ch
	c.stateSubsMu.Unlock()

	ch <- c.State()

	cancel := func() {
		c.stateSubsMu.Lock()
		if sub, ok := c.stateSubs[id]; ok {
			delete(c.stateSubs, id)
			close(sub)
		}
		c.stateSubsMu.Unlock()
	}
	return ch, cancel
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	c.stateSubsMu.Lock()
	defer c.stateSubsMu.Unlock()
	for _, ch := range c.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (c *Connection) broadcastMessage(msg ServerMessage) {
	c.msgSubsMu.Lock()
	defer c.msgSubsMu.Unlock()
	for _, ch := range c.msgSubs {
		select {
		case ch <- msg:
		default:
			c.logger.Warn("dropping inbound message, consumer channel full")
		}
	}
}

func (c *Connection) failAllWaiters() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]chan publishOutcome)
	c.mu.Unlock()
	for _, ch := range waiters {
		select {
		case ch <- publishOutcome{err: ErrNotConnected}:
		default:
		}
	}
}

// readLoop owns the socket until it errors or gen is superseded by a new
// Connect/Disconnect.
func (c *Connection) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.generation
			explicit := c.disconnected
			c.mu.Unlock()
			if !stale && !explicit {
				c.logger.Warn("relay read error", "error", err)
				c.onConnectFailure(gen)
			}
			return
		}

		// Nostr is text-only; binary frames are ignored.
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := ParseServerMessage(data)
		if err != nil {
			c.logger.Debug("dropping malformed relay frame", "error", err)
			continue
		}

		if ok, isOK := msg.(OkFrame); isOK {
			c.resolveWaiter(ok)
		}
		c.broadcastMessage(msg)
	}
}

func (c *Connection) resolveWaiter(ok OkFrame) {
	c.mu.Lock()
	ch, exists := c.waiters[ok.EventID]
	if exists {
		delete(c.waiters, ok.EventID)
	}
	c.mu.Unlock()
	if !exists {
		return
	}
	c.logger.Debug("publish acknowledged",
		"event_id", logutil.ShortID(ok.EventID), "accepted", ok.Accepted)
	select {
	case ch <- publishOutcome{result: PublishResult{Accepted: ok.Accepted, Message: ok.Message}}:
	default:
	}
}

// scheduleReconnect arms the exponential-backoff reconnect timer. It is
// a no-op when AutoReconnect is false or the attempt limit is exhausted.
func (c *Connection) scheduleReconnect(gen uint64) {
	if !c.cfg.AutoReconnect {
		return
	}

	c.mu.Lock()
	if c.disconnected || gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.cfg.MaxReconnectAttempts > 0 && c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		return
	}
	delay := c.currentDelay
	c.reconnectAttempts++
	next := time.Duration(float64(c.currentDelay) * c.cfg.ReconnectBackoffMultiplier)
	if next > c.cfg.MaxReconnectDelay {
		next = c.cfg.MaxReconnectDelay
	}
	c.currentDelay = next
	c.mu.Unlock()

	go func() {
		time.Sleep(delay)
		c.mu.Lock()
		stale := c.disconnected || gen != c.generation
		c.mu.Unlock()
		if stale {
			return
		}
		if err := c.Connect(context.Background()); err != nil {
			c.logger.Debug("reconnect attempt failed", "error", err)
		}
	}()
}
