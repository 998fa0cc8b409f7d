// Package room 房间会话：等待 → 对局 → 结束 → 关闭，单协程 Tick 推进
package room

import (
	"context"
	"errors"
	"math/rand"
	"net/netip"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"trainarena/agent"
	"trainarena/game"
	"trainarena/logging"
	"trainarena/protocol"
	"trainarena/scores"
)

var (
	ErrNotJoinable    = errors.New("room is not accepting players")
	ErrClosed         = errors.New("room closed")
	ErrBudgetExceeded = errors.New("agent decision exceeded time budget")
)

// State 房间生命周期
type State int

const (
	Waiting State = iota
	Active
	Over
	Closed
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Active:
		return "active"
	case Over:
		return "over"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Outbound 交给传输层发送的一条消息
type Outbound struct {
	To      []netip.AddrPort
	Payload []byte
}

// Member 通过 UDP 接入的人类玩家或观察者
type Member struct {
	Addr     netip.AddrPort
	Nickname string
	Sciper   string
	Observer bool
}

// Config 房间节奏与规模
type Config struct {
	Capacity       int
	TickRate       int
	BroadcastRate  int
	WaitBeforeBots time.Duration
	Lifetime       time.Duration
	CloseGrace     time.Duration
	Game           game.Config
}

// Options 房间依赖；Out 必须有缓冲
type Options struct {
	Config
	Agents  agent.Factory
	Scores  *scores.Table
	Out     chan<- Outbound
	OnClose func(id string)
	Rand    *rand.Rand
}

// Info 房间概况，由 Tick 协程发布，供管理器与管理接口读取
type Info struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Players    []string  `json:"players"`
	Humans     int       `json:"humans"`
	Bots       int       `json:"bots"`
	Observers  int       `json:"observers"`
	Spectators int       `json:"spectators"`
	Capacity   int       `json:"capacity"`
	Tick       int64     `json:"tick"`
	CreatedAt  time.Time `json:"created_at"`
}

type joinCmd struct {
	member Member
	reply  chan error
}

type leaveCmd struct {
	addr netip.AddrPort
}

type actionCmd struct {
	addr netip.AddrPort
	msg  protocol.Message
}

type spectatorCmd struct {
	s   *Spectator
	add bool
}

// Room 房间世界：权威状态在 Game 中，成员与 AI 只在 Run 协程内读写
type Room struct {
	ID string

	cfg            Config
	broadcastEvery int64
	game           *game.Game
	agents         agent.Factory
	scores         *scores.Table
	out            chan<- Outbound
	onClose        func(id string)
	log            *zap.SugaredLogger
	metrics        *Metrics

	inbox     chan any
	decisions chan decision
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// 以下字段只在 Run 协程中访问
	state       State
	members     map[netip.AddrPort]*Member
	scipers     map[string]string // nickname -> sciper，掉线后仍用于合并分数
	bots        map[string]*controller
	botSeq      int
	decisionSeq uint64
	spectators  map[*Spectator]struct{}
	ticks       int64
	createdAt   time.Time
	firstJoinAt time.Time
	startedAt   time.Time
	overAt      time.Time
	lastWaiting time.Time

	mu   sync.RWMutex
	info Info
}

// New 创建房间；调用方负责启动 Run
func New(id string, opts Options) *Room {
	cfg := opts.Config
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	if cfg.BroadcastRate <= 0 || cfg.BroadcastRate > cfg.TickRate {
		cfg.BroadcastRate = cfg.TickRate
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.Game.TickRate <= 0 {
		cfg.Game = game.DefaultConfig(cfg.TickRate)
	}
	cfg.Game.MaxTrains = cfg.Capacity
	if opts.Agents == nil {
		opts.Agents = agent.DefaultFactory
	}
	if opts.Scores == nil {
		opts.Scores = scores.Open("")
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	r := &Room{
		ID:             id,
		cfg:            cfg,
		broadcastEvery: int64(cfg.TickRate / cfg.BroadcastRate),
		game:           game.New(cfg.Game, cfg.Capacity, opts.Rand),
		agents:         opts.Agents,
		scores:         opts.Scores,
		out:            opts.Out,
		onClose:        opts.OnClose,
		log:            logging.Named("room").With("room", id),
		metrics:        &Metrics{},
		inbox:          make(chan any, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		decisions:      make(chan decision, 64),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		members:        make(map[netip.AddrPort]*Member),
		scipers:        make(map[string]string),
		bots:           make(map[string]*controller),
		spectators:     make(map[*Spectator]struct{}),
		createdAt:      now,
	}
	if r.broadcastEvery <= 0 {
		r.broadcastEvery = 1
	}
	r.publish()
	r.log.Infow("room created", "capacity", cfg.Capacity, "tick_rate", cfg.TickRate)
	return r
}

// Run 房间主循环：处理入站命令与 AI 决策，按 Tick 推进；返回后房间已关闭
func (r *Room) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.TickRate))
	defer ticker.Stop()
	defer func() {
		close(r.done)
		if r.onClose != nil {
			r.onClose(r.ID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.close("server shutdown")
			return
		case <-r.ctx.Done():
			r.close("closed")
			return
		case cmd := <-r.inbox:
			r.handleCommand(cmd, time.Now())
			if r.state == Closed {
				return
			}
		case d := <-r.decisions:
			r.applyDecision(d, time.Now())
		case now := <-ticker.C:
			start := time.Now()
			alive := r.step(now)
			r.metrics.AddTick(time.Since(start).Nanoseconds())
			if !alive {
				return
			}
		}
	}
}

// Join 阻塞直到 Tick 协程受理；成功后房间已向该成员发送 join_success 与 waiting_room
func (r *Room) Join(m Member) error {
	reply := make(chan error, 1)
	select {
	case r.inbox <- joinCmd{member: m, reply: reply}:
	case <-r.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrClosed
	}
}

// Leave 请求在 Tick 协程中移除成员
func (r *Room) Leave(addr netip.AddrPort) {
	select {
	case r.inbox <- leaveCmd{addr: addr}:
	case <-r.done:
	}
}

// Handle 投递一个客户端动作；队列满时丢弃并返回 false
func (r *Room) Handle(addr netip.AddrPort, msg protocol.Message) bool {
	select {
	case r.inbox <- actionCmd{addr: addr, msg: msg}:
		return true
	default:
		r.metrics.IncInboxDiscarded()
		return false
	}
}

// AddSpectator 注册观战连接，随后会收到完整快照
func (r *Room) AddSpectator(s *Spectator) error {
	select {
	case r.inbox <- spectatorCmd{s: s, add: true}:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// RemoveSpectator 注销观战连接
func (r *Room) RemoveSpectator(s *Spectator) {
	select {
	case r.inbox <- spectatorCmd{s: s}:
	case <-r.done:
	}
}

// Close 停止房间并在有限时间内等待 Run 退出
func (r *Room) Close() {
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		r.log.Warnw("room did not stop in time")
	}
}

// Done Run 退出后关闭
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Info 最近一次发布的概况
func (r *Room) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := r.info
	info.Players = append([]string(nil), r.info.Players...)
	return info
}

// Available 房间是否还能接收新成员；观察者不占名额
func (r *Room) Available(observer bool) bool {
	info := r.Info()
	if info.State != Waiting.String() {
		return false
	}
	return observer || info.Humans+info.Bots < info.Capacity
}

// MetricsSnapshot 房间指标与对局统计
func (r *Room) MetricsSnapshot() map[string]any {
	snap := r.metrics.Snapshot()
	snap["game"] = r.game.Stats()
	snap["started"] = r.game.Started()
	snap["live_trains"] = r.game.LiveTrainCount()
	snap["passengers"] = r.game.PassengerCount()
	return snap
}

// Leaderboard 当前排行榜
func (r *Room) Leaderboard() []game.ScoreEntry {
	return r.game.Leaderboard()
}

func (r *Room) handleCommand(cmd any, now time.Time) {
	switch c := cmd.(type) {
	case joinCmd:
		err := r.join(c.member, now)
		// 先发布概况再回复，调用方返回后即可看到新成员
		r.publish()
		c.reply <- err
		return
	case leaveCmd:
		r.leave(c.addr)
	case actionCmd:
		r.handleAction(c.addr, c.msg)
	case spectatorCmd:
		if c.add {
			r.addSpectator(c.s)
		} else {
			delete(r.spectators, c.s)
		}
	}
	r.publish()
}

func (r *Room) join(m Member, now time.Time) error {
	if r.state != Waiting {
		return ErrNotJoinable
	}
	if !m.Observer && r.playerCount() >= r.cfg.Capacity {
		return game.ErrRoomFull
	}
	member := m
	r.members[m.Addr] = &member
	if !m.Observer {
		r.scipers[m.Nickname] = m.Sciper
		if r.firstJoinAt.IsZero() {
			r.firstJoinAt = now
		}
	}
	r.log.Infow("member joined", "nickname", m.Nickname, "sciper", m.Sciper, "observer", m.Observer, "addr", m.Addr)
	r.sendTo(m.Addr, protocol.NewJoinSuccess())
	r.sendTo(m.Addr, r.waitingRoomMessage(now))
	return nil
}

func (r *Room) leave(addr netip.AddrPort) {
	m, ok := r.members[addr]
	if !ok {
		return
	}
	delete(r.members, addr)
	r.log.Infow("member left", "nickname", m.Nickname, "observer", m.Observer)
	if m.Observer {
		// 等待中的房间没人了就关闭
		if r.state == Waiting && len(r.members) == 0 {
			r.close("room empty")
		}
		return
	}
	if r.humanCount() == 0 {
		r.close("last human left")
		return
	}
	if r.state == Active {
		// 其他玩家还在：列车保留，改由 AI 接管
		r.bots[m.Nickname] = r.newController(m.Nickname, true)
		r.log.Infow("player replaced by ai", "nickname", m.Nickname)
	}
}

func (r *Room) addSpectator(s *Spectator) {
	if r.state == Closed {
		s.Close()
		return
	}
	r.spectators[s] = struct{}{}
	if r.state == Waiting {
		r.sendSpectator(s, r.waitingRoomMessage(time.Now()))
		return
	}
	r.sendSpectator(s, protocol.NewState(r.game.Snapshot()))
}

func (r *Room) humanCount() int {
	n := 0
	for _, m := range r.members {
		if !m.Observer {
			n++
		}
	}
	return n
}

// playerCount 占用名额的人数：人类 + 非接管的 AI
func (r *Room) playerCount() int {
	n := r.humanCount()
	for _, c := range r.bots {
		if !c.hotSwap {
			n++
		}
	}
	return n
}

func (r *Room) playerNames() []string {
	names := make([]string, 0, len(r.members)+len(r.bots))
	for _, m := range r.members {
		if !m.Observer {
			names = append(names, m.Nickname)
		}
	}
	for name, c := range r.bots {
		if !c.hotSwap {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Room) memberByNickname(nickname string) *Member {
	for _, m := range r.members {
		if m.Nickname == nickname {
			return m
		}
	}
	return nil
}

func (r *Room) publish() {
	observers := 0
	for _, m := range r.members {
		if m.Observer {
			observers++
		}
	}
	info := Info{
		ID:         r.ID,
		State:      r.state.String(),
		Players:    r.playerNames(),
		Humans:     r.humanCount(),
		Bots:       len(r.bots),
		Observers:  observers,
		Spectators: len(r.spectators),
		Capacity:   r.cfg.Capacity,
		Tick:       r.ticks,
		CreatedAt:  r.createdAt,
	}
	r.mu.Lock()
	r.info = info
	r.mu.Unlock()
}
