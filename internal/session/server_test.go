package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tictactoe-sync/internal/api"
	"github.com/rickgao/tictactoe-sync/internal/connection"
	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/notify"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

// gameServer is a fake game server: REST for one game and the lobby, and a
// WebSocket endpoint per topic that the test pushes frames through.
type gameServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	game    model.Game
	waiting []model.Game
	conns   map[string][]*websocket.Conn // by path
	moves   []api.MoveRequest
	moveErr string // non-empty: reject moves with this message

	dials  atomic.Int32
	closed chan string // path of every connection the client closed
}

func newGameServer(t *testing.T, game model.Game) *gameServer {
	t.Helper()
	s := &gameServer{
		t:      t,
		game:   game,
		conns:  make(map[string][]*websocket.Conn),
		closed: make(chan string, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *gameServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ws"):
		s.serveWS(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/games":
		s.mu.Lock()
		page := model.Page[model.Game]{Items: s.waiting, Pagination: model.Pagination{Limit: 20, Total: len(s.waiting)}}
		s.mu.Unlock()
		writeData(w, http.StatusOK, page)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/move"):
		var req api.MoveRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.moves = append(s.moves, req)
		reject := s.moveErr
		game := s.game
		s.mu.Unlock()
		if reject != "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"errors": []map[string]string{{"message": reject, "type": "validation"}},
			})
			return
		}
		writeData(w, http.StatusOK, game)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/games/"):
		s.mu.Lock()
		game := s.game
		s.mu.Unlock()
		writeData(w, http.StatusOK, game)
	default:
		http.NotFound(w, r)
	}
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func (s *gameServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.dials.Add(1)

	path := r.URL.Path
	s.mu.Lock()
	s.conns[path] = append(s.conns[path], conn)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		live := s.conns[path][:0]
		for _, c := range s.conns[path] {
			if c != conn {
				live = append(live, c)
			}
		}
		s.conns[path] = live
		s.mu.Unlock()
		conn.Close()
		s.closed <- path
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// setGame changes what GET /games/{id} and POST .../move return.
func (s *gameServer) setGame(g model.Game) {
	s.mu.Lock()
	s.game = g
	s.mu.Unlock()
}

func (s *gameServer) connCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[path])
}

func (s *gameServer) moveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.moves)
}

// push sends a frame to every live connection on path.
func (s *gameServer) push(path, event, gameID string, data any) {
	s.t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "game_id": gameID, "data": data})
	if err != nil {
		s.t.Fatalf("marshal frame: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns[path] {
		if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
			s.t.Errorf("push %s: %v", event, err)
		}
	}
}

// dropConnections closes every live connection on path from the server side.
func (s *gameServer) dropConnections(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns[path] {
		c.Close()
	}
}

func (s *gameServer) restClient() *api.Client {
	return api.NewClient(s.srv.URL, nil, api.WithRetries(0, 0), api.WithTimeout(5*time.Second))
}

func (s *gameServer) manager() *connection.Manager {
	cfg := connection.DefaultManagerConfig()
	cfg.BaseURL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	cfg.ReconnectDelay = 50 * time.Millisecond
	cfg.BufferSize = 16
	return connection.NewManager(cfg)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, what string, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// noticeLog collects notices for assertions.
type noticeLog struct {
	q *notify.Queue[notify.Notice]
}

func newNoticeLog() *noticeLog {
	return &noticeLog{q: notify.NewQueue[notify.Notice](8)}
}

func (l *noticeLog) Notify(n notify.Notice) { l.q.Push(n) }

func (l *noticeLog) kinds() []notify.Kind {
	var kinds []notify.Kind
	for _, n := range l.q.Drain(0) {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}
