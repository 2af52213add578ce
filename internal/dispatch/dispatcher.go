package dispatch

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/tictactoe-sync/internal/connection"
)

// Handler processes one decoded event.
type Handler interface {
	Handle(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev Event) {
	f(ev)
}

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived int64
	EventsRouted   int64
	DecodeErrors   int64
	UnknownEvents  int64
	Unrouted       int64 // Decoded, but no handler for the kind
}

// Dispatcher decodes frames and routes each event to the handler for its kind.
// Dispatch is synchronous: callers invoke it from a single goroutine per
// topic, so events for a topic are handled one at a time in arrival order.
type Dispatcher struct {
	logger *slog.Logger
	routes map[Kind]Handler

	mu       sync.RWMutex
	received int64
	routed   int64
	decode   int64
	unknown  int64
	unrouted int64
}

// New creates a Dispatcher with no routes.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		routes: make(map[Kind]Handler),
	}
}

// Handle registers h for kind, replacing any previous handler.
// Register routes before the first Dispatch.
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.routes[kind] = h
}

// HandleFunc registers f for kind.
func (d *Dispatcher) HandleFunc(kind Kind, f func(ev Event)) {
	d.Handle(kind, HandlerFunc(f))
}

// Dispatch decodes f and routes the event. Decode failures are logged and
// dropped. Its signature matches connection.FrameHandler.
func (d *Dispatcher) Dispatch(f connection.Frame) {
	d.mu.Lock()
	d.received++
	d.mu.Unlock()

	ev, err := Decode(f)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			d.logger.Warn("failed to decode event", "event", de.Event, "game_id", f.GameID, "error", de.Err)
		}
		d.mu.Lock()
		d.decode++
		d.mu.Unlock()
		return
	}

	kind := ev.Kind()
	if kind == KindUnknown {
		d.logger.Debug("unknown event", "event", f.Event, "game_id", f.GameID)
		d.mu.Lock()
		d.unknown++
		d.mu.Unlock()
	}

	h, ok := d.routes[kind]
	if !ok {
		d.mu.Lock()
		d.unrouted++
		d.mu.Unlock()
		return
	}

	h.Handle(ev)

	d.mu.Lock()
	d.routed++
	d.mu.Unlock()
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{
		FramesReceived: d.received,
		EventsRouted:   d.routed,
		DecodeErrors:   d.decode,
		UnknownEvents:  d.unknown,
		Unrouted:       d.unrouted,
	}
}
