package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"trainarena/config"
)

func testConfig() config.Config {
	c := config.Default()
	c.Host = "127.0.0.1"
	c.Port = 0
	c.AdminAddr = ""
	c.TickRate = 10
	c.BroadcastRate = 10
	c.ClientTimeout = 2 * time.Second
	c.GameLifetime = time.Minute
	c.ScoresFile = ""
	c.ScoresFlushInterval = time.Second
	return c
}

// startServer 启动服务并返回停止函数，停止后 Run 的返回值写入 errc
func startServer(t *testing.T) (*Server, context.CancelFunc, chan error) {
	t.Helper()
	s, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errc:
		case <-time.After(10 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return s, cancel, errc
}

type testClient struct {
	t    *testing.T
	conn *net.UDPConn
}

func dial(t *testing.T, s *Server) *testClient {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(s.LocalAddr()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(v map[string]any) {
	c.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	if _, err := c.conn.Write(append(b, '\n')); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// expect 读取直到出现指定类型的消息，其它消息跳过
func (c *testClient) expect(typ string) map[string]any {
	c.t.Helper()
	buf := make([]byte, 64*1024)
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", typ, err)
		}
		for _, line := range bytes.Split(buf[:n], []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var msg map[string]any
			if err := json.Unmarshal(line, &msg); err != nil {
				c.t.Fatalf("decode %q: %v", line, err)
			}
			if msg["type"] == typ {
				return msg
			}
		}
	}
}

func agentIDs(nickname, sciper, mode string) map[string]any {
	return map[string]any{"type": "agent_ids", "nickname": nickname, "agent_sciper": sciper, "game_mode": mode}
}

func TestHandshakeJoinsRoom(t *testing.T) {
	s, _, _ := startServer(t)
	c := dial(t, s)
	c.send(agentIDs("alice", "123456", "agent"))

	if msg := c.expect("name_check"); msg["available"] != true {
		t.Fatalf("name_check = %v", msg)
	}
	if msg := c.expect("sciper_check"); msg["available"] != true {
		t.Fatalf("sciper_check = %v", msg)
	}
	if msg := c.expect("join_success"); msg["expected_version"] != "2.0.0" {
		t.Fatalf("join_success = %v", msg)
	}
	data := c.expect("waiting_room")["data"].(map[string]any)
	if players := data["players"].([]any); len(players) != 1 || players[0] != "alice" {
		t.Fatalf("players = %v", players)
	}
	if len(s.rooms.List()) != 1 {
		t.Fatalf("rooms = %v", s.rooms.List())
	}
}

func TestHandshakeRejections(t *testing.T) {
	s, _, _ := startServer(t)

	staff := dial(t, s)
	staff.send(agentIDs("staffbot", "123456", "agent"))
	if msg := staff.expect("name_check"); msg["available"] != false || msg["reason"] != "name starts with 'staff'" {
		t.Fatalf("name_check = %v", msg)
	}

	badSciper := dial(t, s)
	badSciper.send(agentIDs("carol", "12ab56", "agent"))
	if msg := badSciper.expect("sciper_check"); msg["available"] != false {
		t.Fatalf("sciper_check = %v", msg)
	}

	alice := dial(t, s)
	alice.send(agentIDs("alice", "111111", "agent"))
	alice.expect("join_success")
	dup := dial(t, s)
	dup.send(agentIDs("alice", "222222", "agent"))
	if msg := dup.expect("name_check"); msg["available"] != false || msg["reason"] != "name already taken" {
		t.Fatalf("duplicate name_check = %v", msg)
	}
	if s.sessions.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", s.sessions.Len())
	}
}

func TestCheckNameAndSciperActions(t *testing.T) {
	s, _, _ := startServer(t)
	c := dial(t, s)
	c.send(map[string]any{"action": "check_name", "agent_name": "a-very-long-nickname"})
	if msg := c.expect("name_check"); msg["reason"] != "name too long" {
		t.Fatalf("name_check = %v", msg)
	}
	c.send(map[string]any{"action": "check_sciper", "agent_sciper": "654321"})
	if msg := c.expect("sciper_check"); msg["available"] != true {
		t.Fatalf("sciper_check = %v", msg)
	}
}

func TestUnknownClient(t *testing.T) {
	s, _, _ := startServer(t)
	c := dial(t, s)

	c.send(map[string]any{"type": "ping"})
	c.expect("pong")

	c.send(map[string]any{"action": "respawn"})
	if msg := c.expect("disconnect"); msg["reason"] != "Unknown client" {
		t.Fatalf("disconnect = %v", msg)
	}
}

func TestObserverGetsGeneratedIdentity(t *testing.T) {
	s, _, _ := startServer(t)
	c := dial(t, s)
	c.send(agentIDs("", "", "observer"))
	c.expect("join_success")

	// join_success 由房间发出，可能早于会话登记
	addr := c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	var (
		sess Session
		ok   bool
	)
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		if sess, ok = s.sessions.Lookup(addr); ok {
			break
		}
	}
	if !ok {
		t.Fatalf("observer session missing")
	}
	if len(sess.Nickname) != len("Observer_1234") || !validSciper(sess.Sciper) {
		t.Fatalf("observer identity = %q/%q", sess.Nickname, sess.Sciper)
	}
}

func TestShutdownNotifiesClients(t *testing.T) {
	s, cancel, errc := startServer(t)
	c := dial(t, s)
	c.send(agentIDs("alice", "123456", "agent"))
	c.expect("join_success")

	cancel()
	if msg := c.expect("disconnect"); msg["reason"] != "Server shutting down" {
		t.Fatalf("disconnect = %v", msg)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		errc <- nil
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return")
	}
}

func TestSweepDisconnectsOnce(t *testing.T) {
	s, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { s.conn.Close() })

	t0 := time.Now()
	s.sessions.Register(Session{Addr: addrA, Nickname: "alice", Sciper: "123456", LastActivity: t0})

	s.sweep(t0.Add(time.Second), time.Second)
	if _, ok := s.sessions.Lookup(addrA); !ok {
		t.Fatalf("disconnected before timeout")
	}
	s.sessions.Touch(addrA, t0.Add(1500*time.Millisecond))
	s.sweep(t0.Add(2100*time.Millisecond), time.Second)
	if _, ok := s.sessions.Lookup(addrA); ok {
		t.Fatalf("unanswered ping did not disconnect")
	}
	s.disconnect(addrA, "again")
	if got := s.metrics.Snapshot()["disconnects"].(int64); got != 1 {
		t.Fatalf("disconnects = %d, want 1", got)
	}
}
