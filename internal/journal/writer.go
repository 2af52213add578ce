package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/rickgao/tictactoe-sync/internal/notify"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// Table is the journal table name.
const Table = "game_versions"

var columns = []string{
	"id", "game_id", "source", "status", "prev_status",
	"current_turn", "winner_id", "board", "updated_at", "received_at",
}

// Copier bulk-loads rows. *pgxpool.Pool and pgx.Conn implement it.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Config holds writer configuration.
type Config struct {
	BatchSize     int           // Rows per COPY (default: 100)
	FlushInterval time.Duration // Max time a row waits (default: 1s)
	BufferSize    int           // Initial input queue capacity (default: 1000)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Stats holds writer counters.
type Stats struct {
	Received int64
	Inserts  int64
	Flushes  int64
	Errors   int64
}

// entry is a transition waiting to be written.
type entry struct {
	tr         reconcile.Transition
	receivedAt time.Time
}

// row is one game_versions row.
type row struct {
	ID          uuid.UUID
	GameID      string
	Source      string
	Status      string
	PrevStatus  *string
	CurrentTurn *string
	WinnerID    *string
	Board       []byte
	UpdatedAt   time.Time
	ReceivedAt  time.Time
}

func (r row) values() []any {
	return []any{
		r.ID, r.GameID, r.Source, r.Status, r.PrevStatus,
		r.CurrentTurn, r.WinnerID, r.Board, r.UpdatedAt, r.ReceivedAt,
	}
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock sets the clock for the flush ticker and receive timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(w *Writer) {
		w.clock = clock
	}
}

// Writer is a reconcile.Observer that journals accepted transitions.
// Observe never blocks on the database.
type Writer struct {
	cfg    Config
	db     Copier
	clock  clockwork.Clock
	logger *slog.Logger

	input   *notify.Queue[entry]
	drained chan struct{} // closed when consumeLoop has emptied a closed input

	batch   []row
	batchMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a journal writer.
func NewWriter(cfg Config, db Copier, logger *slog.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		cfg:     cfg,
		db:      db,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		input:   notify.NewQueue[entry](cfg.BufferSize),
		drained: make(chan struct{}),
		batch:   make([]row, 0, cfg.BatchSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Observe queues a transition for writing.
func (w *Writer) Observe(tr reconcile.Transition) {
	if !w.input.Push(entry{tr: tr, receivedAt: w.clock.Now()}) {
		w.logger.Debug("journal closed, dropping transition", "game_id", tr.Next.ID)
	}
}

// Start begins consuming transitions and writing batches.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued transitions, writes the final batch and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	// Closing the input lets consumeLoop drain what is queued and exit,
	// which in turn ends flushLoop.
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		err = ctx.Err()
	}

	if w.cancel != nil {
		w.cancel()
	}

	// Final flush on a fresh context; the writer's own is cancelled.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flush(flushCtx)

	return err
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()
	defer close(w.drained)

	for {
		e, ok := w.input.Pop()
		if !ok {
			return
		}
		w.handle(e)
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.drained:
			return
		case <-ticker.Chan():
			w.flush(w.ctx)
		}
	}
}

// handle transforms an entry and adds it to the batch.
func (w *Writer) handle(e entry) {
	r, err := transform(e)
	if err != nil {
		w.logger.Error("journal transform failed", "error", err, "game_id", e.tr.Next.ID)
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Received++
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

func transform(e entry) (row, error) {
	next := e.tr.Next

	board, err := json.Marshal(next.Board)
	if err != nil {
		return row{}, fmt.Errorf("marshal board: %w", err)
	}

	r := row{
		ID:          uuid.New(),
		GameID:      next.ID,
		Source:      string(e.tr.Source),
		Status:      string(next.Status),
		CurrentTurn: nullable(string(next.CurrentTurn)),
		WinnerID:    nullable(next.WinnerID),
		Board:       board,
		UpdatedAt:   next.UpdatedAt,
		ReceivedAt:  e.receivedAt,
	}
	if e.tr.HasPrev {
		r.PrevStatus = nullable(string(e.tr.Prev.Status))
	}
	return r, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// flush writes the current batch.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	n, err := w.copy(ctx, batch)
	if err != nil {
		w.logger.Error("journal copy failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += n
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed game versions",
		"count", n,
		"duration", time.Since(start),
	)
}

func (w *Writer) copy(ctx context.Context, rows []row) (int64, error) {
	if w.db == nil {
		return 0, fmt.Errorf("journal has no database")
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.values()
	}

	return w.db.CopyFrom(ctx, pgx.Identifier{Table}, columns, pgx.CopyFromRows(values))
}
