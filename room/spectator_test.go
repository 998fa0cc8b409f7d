package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"trainarena/protocol"
)

func serveSpectators(t *testing.T, r *Room) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		_ = NewSpectator(ws, req.URL.Query().Get("format") == "msgpack").Serve(r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func runRoom(t *testing.T, capacity int) *Room {
	t.Helper()
	r := New("watch", Options{Config: testRoomConfig(capacity), Out: make(chan Outbound, 1024)})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	if err := r.Join(member(aliceAddr, "alice", "123456")); err != nil {
		t.Fatalf("join: %v", err)
	}
	return r
}

func TestSpectatorReceivesWaitingRoomThenClose(t *testing.T) {
	r := runRoom(t, 2)
	url := serveSpectators(t, r)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if msg["type"] != protocol.TypeWaitingRoom {
		t.Fatalf("first frame type = %v", msg["type"])
	}

	r.Close()
	for {
		if _, _, err = ws.ReadMessage(); err != nil {
			break
		}
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read after close err = %v", err)
	}
}

func TestSpectatorMsgpackFrames(t *testing.T) {
	r := runRoom(t, 2)
	url := serveSpectators(t, r)

	ws, _, err := websocket.DefaultDialer.Dial(url+"?format=msgpack", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	kind, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("frame kind = %d, want binary", kind)
	}
	var msg map[string]any
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode msgpack: %v", err)
	}
	if msg["type"] != protocol.TypeWaitingRoom {
		t.Fatalf("type = %v", msg["type"])
	}
}

func TestSpectatorEnqueueAfterClose(t *testing.T) {
	s := &Spectator{send: make(chan []byte, 1), done: make(chan struct{})}
	if !s.Enqueue([]byte("a")) {
		t.Fatalf("enqueue on open spectator failed")
	}
	if s.Enqueue([]byte("b")) {
		t.Fatalf("enqueue on full queue succeeded")
	}
	s.Close()
	s.Close()
	if s.Enqueue([]byte("c")) {
		t.Fatalf("enqueue after close succeeded")
	}
}
