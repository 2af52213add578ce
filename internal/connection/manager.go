package connection

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ClientFactory builds the client for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// FrameHandler receives parsed frames, in arrival order, one at a time.
type FrameHandler func(Frame)

// ErrorHandler receives transport errors. They are non-fatal.
type ErrorHandler func(error)

// Manager opens push subscriptions against the game server.
type Manager struct {
	cfg     ManagerConfig
	clock   clockwork.Clock
	factory ClientFactory
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the clock used for reconnect timers and keepalive.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithClientFactory overrides how per-attempt clients are built.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		factory: NewClient,
		logger:  slog.Default(),
		subs:    make(map[uuid.UUID]*Subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a subscription to topic. onFrame is called for every
// well-formed frame and onError for every transport failure; both run on
// the subscription's own goroutine. Either may be nil.
func (m *Manager) Open(topic Topic, onFrame FrameHandler, onError ErrorHandler) *Subscription {
	s := &Subscription{
		id:      uuid.New(),
		topic:   topic,
		cfg:     m.cfg,
		clock:   m.clock,
		factory: m.factory,
		onFrame: onFrame,
		onError: onError,
		done:    make(chan struct{}),
	}
	s.logger = m.logger.With("topic", topic.Name, "subscription_id", s.id.String())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.release = func() { m.forget(s.id) }

	m.mu.Lock()
	m.subs[s.id] = s
	m.mu.Unlock()

	s.Open()
	return s
}

func (m *Manager) forget(id uuid.UUID) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}

// Stop closes every open subscription and waits for their goroutines.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	m.logger.Info("stopping connection manager", "subscriptions", len(subs))

	for _, s := range subs {
		s.Close()
	}

	var firstErr error
	for _, s := range subs {
		if err := s.Wait(ctx); err != nil && firstErr == nil {
			m.logger.Warn("shutdown timeout, abandoning subscription goroutines")
			firstErr = err
		}
	}

	m.logger.Info("connection manager stopped")
	return firstErr
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	stats := ManagerStats{Subscriptions: len(subs)}
	for _, s := range subs {
		st := s.Stats()
		if st.State == StateConnected {
			stats.ConnectedCount++
		}
		stats.Topics = append(stats.Topics, st)
	}
	sort.Slice(stats.Topics, func(i, j int) bool {
		return stats.Topics[i].Topic < stats.Topics[j].Topic
	})
	return stats
}
