package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rickgao/tictactoe-sync/internal/auth"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no inbound traffic)")
	ErrConnectionClosed   = errors.New("connection closed by peer")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// TransportError wraps a dial or read failure on a topic's channel.
// It never stops the subscription; a reconnect is scheduled instead.
type TransportError struct {
	Topic string
	Op    string // "dial", "read", "reconnect"
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Topic, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// State is the connection state of a subscription.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Frame is an inbound push frame: {"event", "game_id", "data"}.
type Frame struct {
	Event      string          `json:"event"`
	GameID     string          `json:"game_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// pingFrame is the outbound keepalive.
var pingFrame = []byte(`{"event":"ping"}`)

// Topic names a push channel on the server.
type Topic struct {
	Name string // Used in logs and errors
	Path string // Appended to the WebSocket base URL
}

// GameTopic is the channel for a single game.
func GameTopic(gameID string) Topic {
	return Topic{
		Name: "game:" + gameID,
		Path: "/games/" + url.PathEscape(gameID) + "/ws",
	}
}

// WaitingGamesTopic is the shared waiting-games list channel.
func WaitingGamesTopic() Topic {
	return Topic{
		Name: "waiting-games",
		Path: "/games/waiting-games/ws",
	}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string           // Full WebSocket URL of the topic
	Tokens           auth.TokenSource // Bearer token source (nil = no auth)
	UserAgent        string           // User-Agent header on the handshake
	PingInterval     time.Duration    // Interval between {"event":"ping"} frames
	ReadTimeout      time.Duration    // Max time without inbound traffic before the connection is stale (0 = off)
	WriteTimeout     time.Duration    // Write deadline for sends
	HandshakeTimeout time.Duration    // WebSocket handshake timeout
	BufferSize       int              // Message channel buffer size
	Clock            clockwork.Clock  // nil = real clock
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      75 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	BaseURL              string           // WebSocket base URL (e.g., ws://localhost:8000/api/v1)
	Tokens               auth.TokenSource // Bearer token source
	UserAgent            string
	ReconnectDelay       time.Duration // Fixed delay before each reconnect
	MaxReconnectAttempts int           // Consecutive failed attempts before giving up (0 = unbounded)
	PingInterval         time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	HandshakeTimeout     time.Duration
	BufferSize           int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	cc := DefaultClientConfig()
	return ManagerConfig{
		ReconnectDelay:   3 * time.Second,
		PingInterval:     cc.PingInterval,
		ReadTimeout:      cc.ReadTimeout,
		WriteTimeout:     cc.WriteTimeout,
		HandshakeTimeout: cc.HandshakeTimeout,
		BufferSize:       cc.BufferSize,
	}
}

// clientConfig derives the per-connection config for a topic.
func (c ManagerConfig) clientConfig(topic Topic, clock clockwork.Clock) ClientConfig {
	return ClientConfig{
		URL:              c.BaseURL + topic.Path,
		Tokens:           c.Tokens,
		UserAgent:        c.UserAgent,
		PingInterval:     c.PingInterval,
		ReadTimeout:      c.ReadTimeout,
		WriteTimeout:     c.WriteTimeout,
		HandshakeTimeout: c.HandshakeTimeout,
		BufferSize:       c.BufferSize,
		Clock:            clock,
	}
}

// SubscriptionStats provides statistics about one subscription.
type SubscriptionStats struct {
	Topic          string
	State          State
	FramesReceived int64
	FramesDropped  int64 // Malformed envelopes
	Connects       int64
	Reconnects     int64 // Reconnects scheduled
	Exhausted      bool
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Subscriptions  int
	ConnectedCount int
	Topics         []SubscriptionStats
}
