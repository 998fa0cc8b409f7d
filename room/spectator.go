package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	spectatorWriteWait = 5 * time.Second
	spectatorPongWait  = 60 * time.Second
	spectatorPingEvery = spectatorPongWait * 9 / 10
)

// Spectator 浏览器观战连接：只接收房间广播，不控制列车
type Spectator struct {
	ID     string
	ws     *websocket.Conn
	send   chan []byte
	binary bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewSpectator binary 为 true 时以 msgpack 二进制帧发送
func NewSpectator(ws *websocket.Conn, binary bool) *Spectator {
	return &Spectator{
		ID:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, 64),
		binary: binary,
		done:   make(chan struct{}),
	}
}

// Enqueue 将要发送的帧压入队列（非阻塞，满则丢弃）
func (s *Spectator) Enqueue(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

// Close 结束写协程；可重复调用
func (s *Spectator) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Serve 注册到房间并阻塞到连接结束
func (s *Spectator) Serve(r *Room) error {
	if err := r.AddSpectator(s); err != nil {
		_ = s.ws.Close()
		return err
	}
	defer r.RemoveSpectator(s)

	var g errgroup.Group
	g.Go(s.writePump)
	g.Go(func() error {
		// 读泵退出（客户端断开）时结束写泵
		defer s.Close()
		return s.readPump()
	})
	return g.Wait()
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (s *Spectator) writePump() error {
	ping := time.NewTicker(spectatorPingEvery)
	defer ping.Stop()
	defer s.ws.Close()

	msgType := websocket.TextMessage
	if s.binary {
		msgType = websocket.BinaryMessage
	}
	for {
		select {
		case <-s.done:
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
				time.Now().Add(spectatorWriteWait))
			return nil
		case msg := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
			if err := s.ws.WriteMessage(msgType, msg); err != nil {
				return err
			}
		case <-ping.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// readPump 观战者不发送有效数据，只用来感知断开与处理 pong
func (s *Spectator) readPump() error {
	s.ws.SetReadLimit(1 << 10)
	_ = s.ws.SetReadDeadline(time.Now().Add(spectatorPongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(spectatorPongWait))
	})
	for {
		if _, _, err := s.ws.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			return err
		}
	}
}
