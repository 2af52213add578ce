package notify

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPopInOrder(t *testing.T) {
	q := NewQueue[int](4)

	// Enough items to force several resizes
	for i := 0; i < 100; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	stats := q.Stats()
	if stats.Len != 100 {
		t.Errorf("Len = %d, want 100", stats.Len)
	}
	if stats.Resizes < 3 {
		t.Errorf("Resizes = %d, expected at least 3", stats.Resizes)
	}

	for i := 0; i < 100; i++ {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue should return false")
	}
}

func TestQueue_WrapAroundThenGrow(t *testing.T) {
	q := NewQueue[int](5)

	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.TryPop()
	q.TryPop()

	// Wraps, then grows with head > tail
	for i := 4; i <= 8; i++ {
		q.Push(i)
	}

	for _, want := range []int{3, 4, 5, 6, 7, 8} {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestQueue_BlockingPop(t *testing.T) {
	q := NewQueue[Notice](8)
	got := make(chan Notice, 1)

	go func() {
		if n, ok := q.Pop(); ok {
			got <- n
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(Notice{Kind: KindWin, Message: MsgWin})

	select {
	case n := <-got:
		if n.Kind != KindWin {
			t.Errorf("Kind = %s, want win", n.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked Pop")
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue[int](10)
	q.Push(1)
	q.Push(2)
	q.Close()

	if q.Push(3) {
		t.Error("Push should return false after Close")
	}

	// Queued items survive Close
	if v, ok := q.Pop(); !ok || v != 1 {
		t.Errorf("Pop() = %d, %v; want 1, true", v, ok)
	}
	if v, ok := q.Pop(); !ok || v != 2 {
		t.Errorf("Pop() = %d, %v; want 2, true", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop should return false when closed and empty")
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := NewQueue[int](10)
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Pop")
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue[int](10)
	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	items := q.Drain(4)
	if len(items) != 4 || items[0] != 0 || items[3] != 3 {
		t.Errorf("Drain(4) = %v", items)
	}

	items = q.Drain(0)
	if len(items) != 6 || items[0] != 4 {
		t.Errorf("Drain(0) = %v", items)
	}

	if items := q.Drain(0); items != nil {
		t.Errorf("Drain on empty queue = %v, want nil", items)
	}

	stats := q.Stats()
	if stats.Pushed != 10 || stats.Popped != 10 || stats.Len != 0 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue[int](2)
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}

	seen := make(map[int]bool)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(seen) < producers*perProducer {
			v, ok := q.Pop()
			if !ok {
				return
			}
			seen[v] = true
		}
	}()

	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not receive every item")
	}

	if len(seen) != producers*perProducer {
		t.Errorf("received %d distinct items, want %d", len(seen), producers*perProducer)
	}
}

func TestNewQueue_MinCapacity(t *testing.T) {
	for _, c := range []int{0, -5} {
		q := NewQueue[int](c)
		if got := q.Stats().Capacity; got != 1 {
			t.Errorf("Capacity = %d, want 1 for initial capacity %d", got, c)
		}
	}
}
