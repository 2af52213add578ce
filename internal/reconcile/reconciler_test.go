package reconcile

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/tictactoe-sync/internal/model"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// at returns game g1 at version t0+sec.
func at(sec int, status model.Status) model.Game {
	return model.Game{
		ID:        "g1",
		PlayerX:   "u1",
		Status:    status,
		CreatedAt: t0,
		UpdatedAt: t0.Add(time.Duration(sec) * time.Second),
	}
}

// collector records transitions.
type collector struct {
	mu          sync.Mutex
	transitions []Transition
}

func (c *collector) Observe(t Transition) {
	c.mu.Lock()
	c.transitions = append(c.transitions, t)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transitions)
}

func TestMerge_EmptyViewAcceptsAnything(t *testing.T) {
	r := New("", nil)

	if _, ok := r.View(); ok {
		t.Fatal("new reconciler should have no view")
	}

	res, err := r.Merge(at(0, model.StatusWaiting), SourcePull)
	if err != nil || res != Applied {
		t.Fatalf("Merge = %v, %v, want applied", res, err)
	}

	view, ok := r.View()
	if !ok || view.ID != "g1" {
		t.Errorf("View = %+v, %v", view, ok)
	}

	// The adopted id now governs.
	other := at(5, model.StatusWaiting)
	other.ID = "g2"
	res, err = r.Merge(other, SourcePush)
	if res != Rejected || !errors.Is(err, model.ErrGameMismatch) {
		t.Errorf("Merge(other game) = %v, %v, want rejected ErrGameMismatch", res, err)
	}
}

func TestMerge_VersionMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		r := New("g1", nil)
		var maxSeen time.Time
		var last time.Time

		for i := 0; i < 30; i++ {
			g := at(rng.Intn(20), model.StatusActive)
			r.Merge(g, SourcePush)

			if g.UpdatedAt.After(maxSeen) {
				maxSeen = g.UpdatedAt
			}

			view, _ := r.View()
			if view.UpdatedAt.Before(last) {
				t.Fatalf("round %d step %d: version went backward %v -> %v", round, i, last, view.UpdatedAt)
			}
			if !view.UpdatedAt.Equal(maxSeen) {
				t.Fatalf("round %d step %d: version = %v, want max %v", round, i, view.UpdatedAt, maxSeen)
			}
			last = view.UpdatedAt
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	c := &collector{}
	r := New("g1", nil, WithObserver(c))

	g := at(1, model.StatusActive)
	g.Board[1][1] = model.SymbolX

	if res, _ := r.Merge(g, SourcePush); res != Applied {
		t.Fatalf("first Merge = %v, want applied", res)
	}
	once, _ := r.View()

	if res, _ := r.Merge(g, SourcePush); res != Stale {
		t.Errorf("second Merge = %v, want stale", res)
	}
	twice, _ := r.View()

	if once != twice {
		t.Errorf("view changed on duplicate merge: %+v -> %+v", once, twice)
	}
	if c.count() != 1 {
		t.Errorf("transitions = %d, want 1", c.count())
	}

	stats := r.Stats()
	if stats.Applied != 1 || stats.Stale != 1 {
		t.Errorf("Stats = %+v, want 1 applied and 1 stale", stats)
	}
}

func TestMerge_OutOfOrderDelivery(t *testing.T) {
	r := New("g1", nil)

	older := at(2, model.StatusActive)
	older.Board[0][0] = model.SymbolX

	newer := at(3, model.StatusActive)
	newer.Board[0][0] = model.SymbolX
	newer.Board[1][1] = model.SymbolO

	r.Merge(at(1, model.StatusActive), SourceSnapshot)
	r.Merge(newer, SourcePush)

	res, err := r.Merge(older, SourcePush)
	if res != Stale || err != nil {
		t.Errorf("stale Merge = %v, %v, want stale", res, err)
	}

	view, _ := r.View()
	if view != newer {
		t.Errorf("view = %+v, want %+v", view, newer)
	}
}

func TestMerge_RejectsIllegalSuccessor(t *testing.T) {
	tests := []struct {
		name string
		prev model.Game
		next model.Game
	}{
		{
			name: "status backward",
			prev: at(1, model.StatusActive),
			next: at(2, model.StatusWaiting),
		},
		{
			name: "cell cleared",
			prev: func() model.Game {
				g := at(1, model.StatusActive)
				g.Board[2][2] = model.SymbolO
				return g
			}(),
			next: at(2, model.StatusActive),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("g1", nil)
			r.Merge(tt.prev, SourcePull)

			res, err := r.Merge(tt.next, SourcePush)
			if res != Rejected {
				t.Errorf("Merge = %v, want rejected", res)
			}
			var te *model.TransitionError
			if !errors.As(err, &te) {
				t.Errorf("error = %v, want *model.TransitionError", err)
			}

			view, _ := r.View()
			if view != tt.prev {
				t.Errorf("view changed on rejected merge")
			}

			// A snapshot re-baselines past the successor checks.
			if res, err := r.Reset(tt.next, SourceSnapshot); res != Applied || err != nil {
				t.Errorf("Reset = %v, %v, want applied", res, err)
			}
		})
	}
}

func TestMerge_MissingID(t *testing.T) {
	r := New("g1", nil)
	g := at(1, model.StatusActive)
	g.ID = ""
	if res, err := r.Merge(g, SourcePush); res != Rejected || !errors.Is(err, ErrMissingID) {
		t.Errorf("Merge = %v, %v, want rejected ErrMissingID", res, err)
	}
}

func TestReset_NeverRegresses(t *testing.T) {
	r := New("g1", nil)
	r.Merge(at(5, model.StatusActive), SourcePush)

	if res, _ := r.Reset(at(3, model.StatusWaiting), SourceSnapshot); res != Stale {
		t.Errorf("Reset(older) = %v, want stale", res)
	}
	if res, _ := r.Reset(at(5, model.StatusWaiting), SourceSnapshot); res != Stale {
		t.Errorf("Reset(same version) = %v, want stale", res)
	}

	view, _ := r.View()
	if view.Status != model.StatusActive {
		t.Errorf("Status = %s, want active", view.Status)
	}
}

func TestObservers_ReceiveTransitionsInOrder(t *testing.T) {
	c := &collector{}
	r := New("g1", nil, WithObserver(c))

	r.Merge(at(1, model.StatusWaiting), SourcePull)
	r.Merge(at(2, model.StatusActive), SourcePush)
	r.Merge(at(1, model.StatusWaiting), SourcePoll) // stale
	r.Merge(at(3, model.StatusActive), SourcePoll)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.transitions) != 3 {
		t.Fatalf("transitions = %d, want 3", len(c.transitions))
	}

	first := c.transitions[0]
	if first.HasPrev || !first.StatusChanged() || first.Source != SourcePull {
		t.Errorf("first transition = %+v", first)
	}

	second := c.transitions[1]
	if !second.HasPrev || second.Prev.Status != model.StatusWaiting || second.Next.Status != model.StatusActive {
		t.Errorf("second transition = %s -> %s", second.Prev.Status, second.Next.Status)
	}
	if !second.StatusChanged() {
		t.Error("second transition should report a status change")
	}

	third := c.transitions[2]
	if third.StatusChanged() || third.Source != SourcePoll {
		t.Errorf("third transition = %+v", third)
	}
}

func TestObservers_MayReadView(t *testing.T) {
	var r *Reconciler
	var seen model.Game
	r = New("g1", nil, WithObserver(ObserverFunc(func(t Transition) {
		seen, _ = r.View()
	})))

	g := at(1, model.StatusActive)
	r.Merge(g, SourcePush)

	if seen != g {
		t.Errorf("observer saw %+v, want %+v", seen, g)
	}
}

func TestTerminalHook_FiresOncePerEntry(t *testing.T) {
	var fired []model.Game
	var order []string

	r := New("g1", nil,
		WithObserver(ObserverFunc(func(t Transition) { order = append(order, "observer") })),
		OnTerminal(func(g model.Game) {
			fired = append(fired, g)
			order = append(order, "terminal")
		}),
	)

	r.Merge(at(1, model.StatusActive), SourcePush)

	finished := at(2, model.StatusFinished)
	finished.WinnerID = "u1"
	r.Merge(finished, SourcePush)
	r.Merge(finished, SourcePush) // duplicate

	again := at(3, model.StatusFinished)
	again.WinnerID = "u1"
	r.Merge(again, SourcePull) // newer, still finished

	if len(fired) != 1 {
		t.Fatalf("terminal hook fired %d times, want 1", len(fired))
	}
	if fired[0].WinnerID != "u1" {
		t.Errorf("WinnerID = %s, want u1", fired[0].WinnerID)
	}

	wantOrder := []string{"observer", "observer", "terminal", "observer"}
	if len(order) != len(wantOrder) {
		t.Fatalf("order = %v, want %v", order, wantOrder)
	}
	for i := range wantOrder {
		if order[i] != wantOrder[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], wantOrder[i])
		}
	}

	// A snapshot that reopens the game re-arms the hook.
	r.Reset(at(4, model.StatusActive), SourceSnapshot)
	r.Merge(at(5, model.StatusCancelled), SourcePush)
	if len(fired) != 2 {
		t.Errorf("terminal hook fired %d times after re-entry, want 2", len(fired))
	}
}

func TestMerge_ConcurrentPathsConverge(t *testing.T) {
	c := &collector{}
	r := New("g1", nil, WithObserver(c))

	var wg sync.WaitGroup
	for _, src := range []Source{SourcePush, SourcePull, SourcePoll} {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			for i := 0; i <= 100; i++ {
				r.Merge(at(i, model.StatusActive), src)
			}
		}(src)
	}
	wg.Wait()

	view, _ := r.View()
	if !view.UpdatedAt.Equal(t0.Add(100 * time.Second)) {
		t.Errorf("version = %v, want t0+100s", view.UpdatedAt)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 1; i < len(c.transitions); i++ {
		if !c.transitions[i].Next.UpdatedAt.After(c.transitions[i-1].Next.UpdatedAt) {
			t.Fatalf("transition %d not after %d", i, i-1)
		}
	}
}

func TestResultString(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{Applied, "applied"},
		{Stale, "stale"},
		{Rejected, "rejected"},
		{Result(7), "result(7)"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}
