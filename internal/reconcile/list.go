package reconcile

import (
	"sync"

	"github.com/rickgao/tictactoe-sync/internal/model"
)

// List is the reconciled waiting-games collection, kept in arrival order
// with at most one entry per game id.
type List struct {
	mu       sync.RWMutex
	items    []model.Game
	index    map[string]int // game id → position in items
	onChange func([]model.Game)
}

// NewList creates an empty List. onChange, if set, receives a copy of the
// items after every change.
func NewList(onChange func([]model.Game)) *List {
	return &List{
		index:    make(map[string]int),
		onChange: onChange,
	}
}

// Replace installs a full snapshot. Duplicate ids keep the newest version.
func (l *List) Replace(games []model.Game) {
	l.mu.Lock()
	l.items = l.items[:0]
	l.index = make(map[string]int, len(games))
	for _, g := range games {
		l.upsertLocked(g)
	}
	snapshot := l.copyLocked()
	l.mu.Unlock()

	l.changed(snapshot)
}

// Add appends g unless a game with the same id is present, in which case the
// entry is refreshed only if g is newer. Reports whether g was appended.
func (l *List) Add(g model.Game) bool {
	if g.ID == "" {
		return false
	}

	l.mu.Lock()
	i, exists := l.index[g.ID]
	if exists && !g.NewerThan(l.items[i]) {
		l.mu.Unlock()
		return false
	}
	l.upsertLocked(g)
	snapshot := l.copyLocked()
	l.mu.Unlock()

	l.changed(snapshot)
	return !exists
}

// Remove drops the game with id. Reports whether it was present.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	i, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	delete(l.index, id)
	for j := i; j < len(l.items); j++ {
		l.index[l.items[j].ID] = j
	}
	snapshot := l.copyLocked()
	l.mu.Unlock()

	l.changed(snapshot)
	return true
}

// Get returns the game with id.
func (l *List) Get(id string) (model.Game, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return model.Game{}, false
	}
	return l.items[i], true
}

// Items returns a copy of the games in order.
func (l *List) Items() []model.Game {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Len returns the number of games.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// upsertLocked inserts or refreshes g. Caller holds l.mu.
func (l *List) upsertLocked(g model.Game) {
	if g.ID == "" {
		return
	}
	if i, ok := l.index[g.ID]; ok {
		if g.NewerThan(l.items[i]) {
			l.items[i] = g
		}
		return
	}
	l.index[g.ID] = len(l.items)
	l.items = append(l.items, g)
}

func (l *List) copyLocked() []model.Game {
	out := make([]model.Game, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List) changed(items []model.Game) {
	if l.onChange != nil {
		l.onChange(items)
	}
}
