// Package relaypool implements the multi-relay fan-out pool: one
// relay.Connection per URL, a dedup cache guarding at-most-once delivery,
// and automatic resubscription when a connection comes back from a
// non-Connected state.
package relaypool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nostrforge/corenostr/logutil"
	"github.com/nostrforge/corenostr/nostr"
	"github.com/nostrforge/corenostr/relay"
)

const resubscribeSettleDelay = 10 * time.Millisecond

// subscription is the pool's bookkeeping record for an active sub_id,
// fanned out to every connection.
type subscription struct {
	filters []nostr.Filter
	onEvent func(*nostr.Event)
	onEOSE  func()
}

// Pool holds a URL -> Connection map, the shared dedup cache, and the
// per-connection state-change watchers that trigger resubscription.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]*relay.Connection

	subMu sync.Mutex
	subs  map[string]*subscription

	dedup *dedupCache
}

// New builds an empty pool.
func New(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:         cfg,
		logger:      logger,
		connections: make(map[string]*relay.Connection),
		subs:        make(map[string]*subscription),
		dedup:       newDedupCache(cfg.DeduplicationCacheTTL, cfg.MaxDeduplicationCacheSize),
	}
}

// Add idempotently registers url, returning its existing connection if
// one is already present.
func (p *Pool) Add(url string, relayCfg *relay.Config) (*relay.Connection, error) {
	if !isRelayURLSafe(url) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafeRelayURL, url)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[url]; ok {
		return conn, nil
	}

	cfg := p.cfg.DefaultRelayConfig
	if relayCfg != nil {
		cfg = *relayCfg
	}
	conn := relay.NewConnection(url, cfg, p.logger)
	p.connections[url] = conn

	go p.drainConnection(conn)
	go p.watchReconnect(conn)

	return conn, nil
}

// Remove disconnects and forgets url.
func (p *Pool) Remove(url string) {
	p.mu.Lock()
	conn, ok := p.connections[url]
	if ok {
		delete(p.connections, url)
	}
	p.mu.Unlock()
	if ok {
		conn.Disconnect()
	}
}

func (p *Pool) snapshot() []*relay.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conns := make([]*relay.Connection, 0, len(p.connections))
	for _, c := range p.connections {
		conns = append(conns, c)
	}
	return conns
}

// ConnectAll dials every registered relay in parallel, returning the
// count of successes. It raises ErrAllRelaysFailed only if the pool is
// non-empty and every attempt failed.
func (p *Pool) ConnectAll(ctx context.Context) (int, error) {
	conns := p.snapshot()
	if len(conns) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	var mu sync.Mutex
	successes := 0
	var lastErr error

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if err := conn.Connect(ctx); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			successes++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if successes == 0 {
		if lastErr == nil {
			lastErr = ErrAllRelaysFailed
		}
		return 0, fmt.Errorf("%w: %v", ErrAllRelaysFailed, lastErr)
	}
	return successes, nil
}

// Publish fans ev to every connection in parallel, succeeding if at
// least one accepts it.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) (int, error) {
	conns := p.snapshot()

	var g errgroup.Group
	var mu sync.Mutex
	successes := 0
	var lastErr error

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if _, err := conn.Publish(ctx, ev); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			successes++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if successes == 0 && len(conns) > 0 {
		return 0, lastErr
	}
	return successes, nil
}

// Subscribe records (filters, handlers) under subID before sending any
// REQ frame so inbound events are never dropped, waits a brief settling
// delay, then sends REQ to every relay in parallel.
func (p *Pool) Subscribe(ctx context.Context, subID string, filters []nostr.Filter, onEvent func(*nostr.Event), onEOSE func()) (int, error) {
	p.subMu.Lock()
	p.subs[subID] = &subscription{filters: filters, onEvent: onEvent, onEOSE: onEOSE}
	p.subMu.Unlock()

	time.Sleep(resubscribeSettleDelay)

	accepted, err := p.sendReq(ctx, subID, filters)
	if accepted == 0 {
		if err == nil {
			err = ErrNoRelaysAccepted
		}
		return 0, err
	}
	return accepted, nil
}

func (p *Pool) sendReq(ctx context.Context, subID string, filters []nostr.Filter) (int, error) {
	conns := p.snapshot()

	var g errgroup.Group
	var mu sync.Mutex
	accepted := 0
	var lastErr error

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if err := conn.Subscribe(ctx, subID, filters); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			accepted++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return accepted, lastErr
}

// Unsubscribe removes subID's bookkeeping then best-effort sends CLOSE
// to every relay; per-relay errors are ignored.
func (p *Pool) Unsubscribe(ctx context.Context, subID string) {
	p.subMu.Lock()
	delete(p.subs, subID)
	p.subMu.Unlock()

	var g errgroup.Group
	for _, conn := range p.snapshot() {
		conn := conn
		g.Go(func() error {
			_ = conn.Unsubscribe(ctx, subID)
			return nil
		})
	}
	g.Wait()
}

// drainConnection reads one connection's inbound frames for the pool's
// lifetime, dispatching EVENT/EOSE frames to the matching subscription
// after the dedup cache has had a chance to reject repeats.
func (p *Pool) drainConnection(conn *relay.Connection) {
	msgs, _ := conn.Messages()
	for msg := range msgs {
		switch frame := msg.(type) {
		case relay.EventFrame:
			p.subMu.Lock()
			sub := p.subs[frame.SubID]
			p.subMu.Unlock()
			if sub == nil || sub.onEvent == nil {
				continue
			}
			if !p.dedup.Admit(frame.Event.ID) {
				p.logger.Debug("dropping duplicate event",
					"relay", conn.URL(), "event_id", logutil.ShortID(frame.Event.ID))
				continue
			}
			sub.onEvent(frame.Event)
		case relay.EoseFrame:
			p.subMu.Lock()
			sub := p.subs[frame.SubID]
			p.subMu.Unlock()
			if sub != nil && sub.onEOSE != nil {
				sub.onEOSE()
			}
		case relay.NoticeFrame:
			p.logger.Debug("relay notice", "relay", conn.URL(), "message", frame.Message)
		}
	}
}

// watchReconnect resubscribes every active subscription to conn whenever
// it transitions back to Connected after having dropped out of it.
func (p *Pool) watchReconnect(conn *relay.Connection) {
	states, _ := conn.StateChanges()
	wasConnected := false
	pendingResubscribe := false

	for s := range states {
		switch {
		case s == relay.Connected && wasConnected && pendingResubscribe:
			p.resubscribeAll(conn)
			pendingResubscribe = false
		case s == relay.Connected:
			wasConnected = true
		case wasConnected && s != relay.Connected:
			pendingResubscribe = true
		}
	}
}

func (p *Pool) resubscribeAll(conn *relay.Connection) {
	p.subMu.Lock()
	subs := make(map[string][]nostr.Filter, len(p.subs))
	for id, sub := range p.subs {
		subs[id] = sub.filters
	}
	p.subMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for subID, filters := range subs {
		if err := conn.Subscribe(ctx, subID, filters); err != nil {
			p.logger.Warn("resubscribe failed", "relay", conn.URL(), "sub_id", subID, "error", err)
		}
	}
}
