package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/notify"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// MsgIDHeader carries a unique id per published message.
const MsgIDHeader = "Nats-Msg-Id"

// Publisher sends a message. *nats.Conn implements it.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Config holds relay configuration.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int // -1 = unbounded
	ReconnectWait time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "tictactoe",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Connect opens a NATS connection that reconnects in the background.
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("tictactoe-sync"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("relay disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("relay reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("relay error", "error", err)
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// StateEvent is the payload published for an accepted transition.
type StateEvent struct {
	Game       model.Game       `json:"game"`
	PrevStatus model.Status     `json:"prev_status,omitempty"`
	Source     reconcile.Source `json:"source"`
	At         time.Time        `json:"at"`
}

// Stats holds relay counters.
type Stats struct {
	Published int64
	Errors    int64
}

// Relay publishes transitions (as a reconcile.Observer) and notices (as a
// notify.Sink). Publishing is fire-and-forget; failures are logged and
// counted, never returned to the reconciler.
type Relay struct {
	prefix string
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a Relay publishing under cfg.SubjectPrefix.
func New(cfg Config, pub Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		prefix: cfg.SubjectPrefix,
		pub:    pub,
		logger: logger,
		now:    time.Now,
	}
}

// Observe publishes tr to the game's state subject.
func (r *Relay) Observe(tr reconcile.Transition) {
	ev := StateEvent{
		Game:   tr.Next,
		Source: tr.Source,
		At:     r.now(),
	}
	if tr.HasPrev {
		ev.PrevStatus = tr.Prev.Status
	}
	r.publish(StateSubject(r.prefix, tr.Next.ID), ev)
}

// Notify publishes n to the game's notice subject.
func (r *Relay) Notify(n notify.Notice) {
	r.publish(NoticeSubject(r.prefix, n.GameID), n)
}

// Stats returns current counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Relay) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.fail(subject, fmt.Errorf("marshal: %w", err))
		return
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(MsgIDHeader, uuid.NewString())

	if err := r.pub.PublishMsg(msg); err != nil {
		r.fail(subject, err)
		return
	}

	r.mu.Lock()
	r.stats.Published++
	r.mu.Unlock()
}

func (r *Relay) fail(subject string, err error) {
	r.logger.Warn("relay publish failed", "subject", subject, "error", err)
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

// StateSubject returns the subject transitions of gameID are published on.
func StateSubject(prefix, gameID string) string {
	return gameSubject(prefix, gameID) + ".state"
}

// NoticeSubject returns the subject notices for gameID are published on.
func NoticeSubject(prefix, gameID string) string {
	return gameSubject(prefix, gameID) + ".notice"
}

func gameSubject(prefix, gameID string) string {
	if gameID == "" {
		gameID = "_"
	}
	return prefix + ".games." + subjectToken(gameID)
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
