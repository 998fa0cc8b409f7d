// Package server UDP 传输层：握手与身份、消息分发、心跳检测以及管理接口
package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trainarena/agent"
	"trainarena/config"
	"trainarena/logging"
	"trainarena/protocol"
	"trainarena/room"
	"trainarena/scores"
)

const (
	maxPacketSize   = 64 * 1024
	outboundBuffer  = 4096
	shutdownTimeout = 5 * time.Second
	reasonShutdown  = "Server shutting down"
	reasonUnknown   = "Unknown client"
	reasonReplaced  = "replaced by new connection"
)

// Server 持有 UDP 套接字、会话表与房间管理器
type Server struct {
	cfg      config.Config
	conn     *net.UDPConn
	sessions *Registry
	rooms    *room.Manager
	scores   *scores.Table
	agents   agent.Factory
	out      chan room.Outbound
	metrics  *Metrics
	rng      *rand.Rand // 只在接收协程中使用
	admin    *http.Server
	log      *zap.SugaredLogger
}

// New 绑定 UDP 端口并加载分数表；调用 Run 开始服务
func New(cfg config.Config, agents agent.Factory) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Addr(), err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	if agents == nil {
		agents = agent.DefaultFactory
	}
	s := &Server{
		cfg:      cfg,
		conn:     conn,
		sessions: NewRegistry(),
		scores:   scores.Open(cfg.ScoresFile),
		agents:   agents,
		out:      make(chan room.Outbound, outboundBuffer),
		metrics:  &Metrics{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logging.Named("server"),
	}
	if cfg.AdminAddr != "" {
		s.admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           s.adminRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

// LocalAddr 实际绑定的 UDP 地址
func (s *Server) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Run 阻塞直到 ctx 取消；退出前通知所有客户端并关闭房间
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	s.rooms = room.NewManager(gctx, room.Options{
		Config: s.cfg.RoomConfig(),
		Agents: s.agents,
		Scores: s.scores,
		Out:    s.out,
	}, s.roomClosed)

	s.log.Infow("server listening", "addr", s.LocalAddr(), "admin", s.cfg.AdminAddr)

	g.Go(func() error { return s.receiveLoop(gctx) })
	g.Go(func() error { return s.sendLoop(gctx) })
	g.Go(func() error { return s.pingLoop(gctx) })
	g.Go(func() error { return s.scores.Run(gctx, s.cfg.ScoresFlushInterval) })
	if s.admin != nil {
		g.Go(func() error {
			if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin http: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

func (s *Server) shutdown() {
	s.log.Infow("shutting down", "sessions", s.sessions.Len())
	for _, addr := range s.sessions.Addrs() {
		s.send(addr, protocol.NewDisconnect(reasonShutdown))
	}
	if err := s.rooms.Shutdown(shutdownTimeout); err != nil {
		s.log.Warnw("rooms shutdown", "err", err)
	}
	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.admin.Shutdown(ctx); err != nil {
			s.log.Warnw("admin shutdown", "err", err)
		}
	}
	// 关闭套接字让接收协程退出
	_ = s.conn.Close()
}

func (s *Server) receiveLoop(ctx context.Context) error {
	buf := make([]byte, maxPacketSize)
	for {
		n, addr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warnw("read packet", "err", err)
			continue
		}
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
		s.metrics.IncPackets()
		for _, line := range protocol.SplitPacket(buf[:n]) {
			msg, err := protocol.Decode(line)
			if err != nil {
				s.metrics.IncProtocolErrors()
				s.log.Debugw("drop message", "addr", addr, "err", err)
				continue
			}
			s.metrics.IncDecoded()
			s.dispatch(addr, msg, time.Now())
		}
	}
}

// dispatch 在接收协程中处理一条消息
func (s *Server) dispatch(addr netip.AddrPort, msg protocol.Message, now time.Time) {
	switch m := msg.(type) {
	case *protocol.AgentIDs:
		// 已握手的地址重复发送时忽略
		if _, known := s.sessions.Lookup(addr); !known {
			s.handleAgentIDs(addr, m, now)
		}
	case *protocol.Ping:
		s.send(addr, protocol.PongMessage())
	case *protocol.Pong:
		s.sessions.Pong(addr, now)
	case *protocol.CheckName:
		problem := s.nicknameProblem(m.Name)
		s.send(addr, protocol.NewNameCheck(problem == "", problem))
	case *protocol.CheckSciper:
		s.send(addr, protocol.NewSciperCheck(validSciper(m.Sciper)))
	default:
		sess, ok := s.sessions.Lookup(addr)
		if !ok {
			s.metrics.IncUnknownClients()
			s.log.Debugw("action from unknown client", "addr", addr, "kind", protocol.Kind(msg))
			s.send(addr, protocol.NewDisconnect(reasonUnknown))
			return
		}
		s.sessions.Touch(addr, now)
		if !sess.Room.Handle(addr, msg) {
			s.log.Debugw("room inbox full, action dropped", "room", sess.Room.ID, "nickname", sess.Nickname)
		}
	}
}

func (s *Server) handleAgentIDs(addr netip.AddrPort, m *protocol.AgentIDs, now time.Time) {
	nickname, sciper := m.Nickname, m.Sciper
	observer := m.GameMode == protocol.ModeObserver
	if observer {
		nickname, sciper = s.observerIdentity()
	} else {
		if problem := s.nicknameProblem(nickname); problem != "" {
			s.metrics.IncRejected()
			s.send(addr, protocol.NewNameCheck(false, problem))
			return
		}
		s.send(addr, protocol.NewNameCheck(true, ""))
		if !validSciper(sciper) {
			s.metrics.IncRejected()
			s.send(addr, protocol.NewSciperCheck(false))
			return
		}
		s.send(addr, protocol.NewSciperCheck(true))
	}

	// 同一学号换了地址：旧地址先离开房间
	if old, ok := s.sessions.AddrForSciper(sciper); ok && old != addr {
		s.disconnect(old, reasonReplaced)
	}

	r, err := s.rooms.Assign(room.Member{Addr: addr, Nickname: nickname, Sciper: sciper, Observer: observer})
	if err != nil {
		s.log.Errorw("assign room", "nickname", nickname, "err", err)
		return
	}
	s.sessions.Register(Session{
		Addr:         addr,
		Nickname:     nickname,
		Sciper:       sciper,
		Mode:         m.GameMode,
		Room:         r,
		LastActivity: now,
	})
	s.metrics.IncJoins()
	s.log.Infow("client joined", "nickname", nickname, "sciper", sciper, "mode", m.GameMode, "room", r.ID, "addr", addr)
}

func (s *Server) observerIdentity() (string, string) {
	for {
		nickname, sciper := observerIdentity(s.rng)
		if _, taken := s.sessions.AddrForSciper(sciper); taken || s.sessions.NameTaken(nickname) {
			continue
		}
		return nickname, sciper
	}
}

// disconnect 统一的断线路径；同一地址只处理一次
func (s *Server) disconnect(addr netip.AddrPort, reason string) {
	sess, first := s.sessions.Remove(addr)
	if !first {
		return
	}
	s.metrics.IncDisconnects()
	s.log.Infow("client disconnected", "nickname", sess.Nickname, "reason", reason, "addr", addr)
	if sess.Room != nil {
		sess.Room.Leave(addr)
	}
}

// roomClosed 房间关闭后解除其会话绑定
func (s *Server) roomClosed(id string) {
	if dropped := s.sessions.DropRoom(id); len(dropped) > 0 {
		s.log.Infow("sessions released", "room", id, "count", len(dropped))
	}
}

// pingLoop 每半个超时周期检查超时并发送 ping
func (s *Server) pingLoop(ctx context.Context) error {
	interval := s.cfg.ClientTimeout / 2
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.sweep(now, interval)
		}
	}
}

func (s *Server) sweep(now time.Time, interval time.Duration) {
	for _, e := range s.sessions.Expired(now, s.cfg.ClientTimeout, interval) {
		s.disconnect(e.Addr, e.Reason)
	}
	for _, addr := range s.sessions.MarkPinged(now) {
		s.send(addr, protocol.PingMessage())
	}
}

// sendLoop 把房间产生的消息写到套接字；单个地址失败不影响其它地址
func (s *Server) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-s.out:
			for _, to := range o.To {
				s.write(to, o.Payload)
			}
		}
	}
}

func (s *Server) send(addr netip.AddrPort, msg any) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		s.log.Errorw("encode message", "err", err)
		return
	}
	s.write(addr, payload)
}

func (s *Server) write(addr netip.AddrPort, payload []byte) {
	if _, err := s.conn.WriteToUDPAddrPort(payload, addr); err != nil {
		s.metrics.IncSendErrors()
		s.log.Debugw("send failed", "addr", addr, "err", err)
	}
}
