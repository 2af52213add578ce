package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Subscription is one logical push channel. It owns at most one live
// connection at a time and reconnects after a fixed delay until closed.
type Subscription struct {
	id      uuid.UUID
	topic   Topic
	cfg     ManagerConfig
	clock   clockwork.Clock
	factory ClientFactory
	logger  *slog.Logger
	onFrame FrameHandler
	onError ErrorHandler
	release func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	closed    bool
	client    Client
	timer     clockwork.Timer // Pending reconnect
	attempts  int             // Consecutive reconnects without a successful connect
	exhausted bool

	// Stats
	framesReceived int64
	framesDropped  int64
	connects       int64
	reconnects     int64
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Open requests a connection. It is a no-op when already connecting or
// connected, and after Close. A pending reconnect is replaced by an
// immediate attempt.
func (s *Subscription) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StateDisconnected {
		return
	}
	s.startLocked()
}

// Close tears down the subscription: cancels any pending reconnect and
// closes the live connection. No frames are delivered after Close returns.
// Safe to call from inside a FrameHandler, and idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateDisconnected
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	client := s.client
	s.client = nil
	s.mu.Unlock()

	close(s.done)
	s.cancel()
	if client != nil {
		client.Close()
	}
	if s.release != nil {
		s.release()
	}

	s.logger.Info("subscription closed")
}

// Wait blocks until the subscription's goroutines have exited. Call after Close.
func (s *Subscription) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connection state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether a live connection is established.
func (s *Subscription) IsConnected() bool {
	return s.State() == StateConnected
}

// Send writes raw bytes on the live connection.
func (s *Subscription) Send(data []byte) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}
	return client.Send(data)
}

// Stats returns a snapshot of the subscription's counters.
func (s *Subscription) Stats() SubscriptionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SubscriptionStats{
		Topic:          s.topic.Name,
		State:          s.state,
		FramesReceived: s.framesReceived,
		FramesDropped:  s.framesDropped,
		Connects:       s.connects,
		Reconnects:     s.reconnects,
		Exhausted:      s.exhausted,
	}
}

// reconnectPending reports whether a reconnect timer is armed.
func (s *Subscription) reconnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// startLocked moves to Connecting and dials on a new goroutine.
// Caller holds s.mu.
func (s *Subscription) startLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = StateConnecting
	s.wg.Add(1)
	go s.run()
}

// run performs one connection attempt and, on success, consumes the
// connection until it ends.
func (s *Subscription) run() {
	defer s.wg.Done()

	client := s.factory(s.cfg.clientConfig(s.topic, s.clock), s.logger)

	ctx := s.ctx
	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}

	err := client.Connect(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		client.Close()
		return
	}
	if err != nil {
		s.state = StateDisconnected
		s.mu.Unlock()

		s.logger.Warn("connect failed", "error", err)
		s.reportError(&TransportError{Topic: s.topic.Name, Op: "dial", Err: err})
		s.scheduleReconnect()
		return
	}
	s.client = client
	s.state = StateConnected
	s.attempts = 0
	s.connects++
	s.mu.Unlock()

	s.logger.Info("subscription connected")

	s.consume(client)

	// Messages is closed; the terminal error, if any, is buffered.
	var cause error
	select {
	case cause = <-client.Errors():
	default:
	}
	client.Close()

	s.mu.Lock()
	if s.client == client {
		s.client = nil
	}
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	if cause == nil {
		cause = ErrConnectionClosed
	}
	s.logger.Warn("connection lost", "error", cause)
	s.reportError(&TransportError{Topic: s.topic.Name, Op: "read", Err: cause})
	s.scheduleReconnect()
}

// consume parses and delivers frames until the connection's message
// channel closes or the subscription is closed.
func (s *Subscription) consume(client Client) {
	for msg := range client.Messages() {
		select {
		case <-s.done:
			return
		default:
		}

		var f Frame
		if err := json.Unmarshal(msg.Data, &f); err != nil || f.Event == "" {
			s.mu.Lock()
			s.framesDropped++
			s.mu.Unlock()
			s.logger.Warn("dropping malformed frame", "error", err, "size", len(msg.Data))
			continue
		}
		f.ReceivedAt = msg.ReceivedAt

		s.mu.Lock()
		s.framesReceived++
		s.mu.Unlock()

		if s.onFrame != nil {
			s.onFrame(f)
		}
	}
}

// scheduleReconnect arms a single reconnect timer, unless one is already
// pending, a new attempt is underway, or the subscription is closed.
func (s *Subscription) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || s.state != StateDisconnected || s.timer != nil {
		s.mu.Unlock()
		return
	}
	if limit := s.cfg.MaxReconnectAttempts; limit > 0 && s.attempts >= limit {
		s.exhausted = true
		attempts := s.attempts
		s.mu.Unlock()

		s.logger.Error("giving up on reconnect", "attempts", attempts)
		s.reportError(&TransportError{Topic: s.topic.Name, Op: "reconnect", Err: ErrReconnectExhausted})
		return
	}
	s.attempts++
	s.reconnects++
	attempt := s.attempts
	s.timer = s.clock.AfterFunc(s.cfg.ReconnectDelay, s.fireReconnect)
	s.mu.Unlock()

	s.logger.Info("reconnect scheduled", "delay", s.cfg.ReconnectDelay, "attempt", attempt)
}

func (s *Subscription) fireReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timer = nil
	if s.closed || s.state != StateDisconnected {
		return
	}
	s.startLocked()
}

func (s *Subscription) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
