package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/notify"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// fakePublisher records published messages.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func TestSubjects(t *testing.T) {
	tests := []struct {
		gameID     string
		wantState  string
		wantNotice string
	}{
		{"g1", "ttt.games.g1.state", "ttt.games.g1.notice"},
		{"a.b*c>d e", "ttt.games.a_b_c_d_e.state", "ttt.games.a_b_c_d_e.notice"},
		{"", "ttt.games._.state", "ttt.games._.notice"},
	}

	for _, tt := range tests {
		if got := StateSubject("ttt", tt.gameID); got != tt.wantState {
			t.Errorf("StateSubject(%q) = %s, want %s", tt.gameID, got, tt.wantState)
		}
		if got := NoticeSubject("ttt", tt.gameID); got != tt.wantNotice {
			t.Errorf("NoticeSubject(%q) = %s, want %s", tt.gameID, got, tt.wantNotice)
		}
	}
}

func TestRelay_PublishesTransitions(t *testing.T) {
	pub := &fakePublisher{}
	r := New(Config{SubjectPrefix: "ttt"}, pub, nil)
	r.now = func() time.Time { return t0 }

	rec := reconcile.New("g1", nil, reconcile.WithObserver(r))
	rec.Merge(model.Game{ID: "g1", Status: model.StatusWaiting, UpdatedAt: t0}, reconcile.SourcePull)
	rec.Merge(model.Game{ID: "g1", Status: model.StatusActive, PlayerO: "u2", UpdatedAt: t0.Add(time.Second)}, reconcile.SourcePush)

	if len(pub.msgs) != 2 {
		t.Fatalf("published = %d, want 2", len(pub.msgs))
	}

	msg := pub.msgs[1]
	if msg.Subject != "ttt.games.g1.state" {
		t.Errorf("Subject = %s", msg.Subject)
	}
	if msg.Header.Get(MsgIDHeader) == "" {
		t.Error("missing message id header")
	}
	if pub.msgs[0].Header.Get(MsgIDHeader) == msg.Header.Get(MsgIDHeader) {
		t.Error("message ids should be unique")
	}

	var ev StateEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Game.Status != model.StatusActive || ev.Game.PlayerO != "u2" {
		t.Errorf("Game = %+v", ev.Game)
	}
	if ev.PrevStatus != model.StatusWaiting || ev.Source != reconcile.SourcePush || !ev.At.Equal(t0) {
		t.Errorf("event = %+v", ev)
	}

	var first map[string]any
	json.Unmarshal(pub.msgs[0].Data, &first)
	if _, ok := first["prev_status"]; ok {
		t.Error("first version should omit prev_status")
	}

	if got := r.Stats().Published; got != 2 {
		t.Errorf("Published = %d, want 2", got)
	}
}

func TestRelay_PublishesNotices(t *testing.T) {
	pub := &fakePublisher{}
	r := New(Config{SubjectPrefix: "ttt"}, pub, nil)

	gate := notify.NewGate("u1", r, nil)
	gate.PeerJoined("g1", "u2")

	if len(pub.msgs) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.msgs))
	}
	if pub.msgs[0].Subject != "ttt.games.g1.notice" {
		t.Errorf("Subject = %s", pub.msgs[0].Subject)
	}

	var n notify.Notice
	if err := json.Unmarshal(pub.msgs[0].Data, &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Kind != notify.KindPeerJoined || n.Message != notify.MsgPeerJoined {
		t.Errorf("notice = %+v", n)
	}
}

func TestRelay_PublishErrorIsCounted(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrConnectionClosed}
	r := New(DefaultConfig(), pub, nil)

	r.Notify(notify.Notice{Kind: notify.KindDraw, GameID: "g1", Message: notify.MsgDraw})

	stats := r.Stats()
	if stats.Errors != 1 || stats.Published != 0 {
		t.Errorf("Stats = %+v, want 1 error", stats)
	}
}

func TestConnect_NoServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"

	if _, err := Connect(cfg, nil); err == nil {
		t.Fatal("Connect should fail without a server")
	}
}
