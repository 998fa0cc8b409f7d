package game

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"trainarena/logging"
)

const (
	OriginalGameWidth  = 400
	OriginalGameHeight = 400
	OriginalGridNb     = 20
	CellSize           = OriginalGameWidth / OriginalGridNb

	// GameSizeIncrementRatio 每名玩家世界边长的增长比例
	GameSizeIncrementRatio = 0.05
	GameSizeIncrement      = int((OriginalGameWidth + OriginalGameHeight) / 2 * GameSizeIncrementRatio)

	// SpawnSafeZone 出生点与边界、列车之间至少间隔的格数
	SpawnSafeZone = 3
	// SafePadding 送客区域距边界的格数
	SafePadding = 3
	// MaxSpawnAttempts 随机采样出生点的次数上限，超过后退回到世界中心
	MaxSpawnAttempts = 100

	// TrainsPassengerRatio 每多少辆活着的列车维持一名乘客
	TrainsPassengerRatio = 1.0
)

// Config 模拟参数；所有冷却都以 tick 计，保证不同 tick 频率下行为一致
type Config struct {
	TickRate              int
	RespawnCooldownTicks  int64
	DeliveryCooldownTicks int64
	BoostDurationTicks    int64
	DropCooldownTicks     int64
	TrainsPassengerRatio  float64
	MaxTrains             int // 0 表示不限制
}

// DefaultConfig 按 tickRate 换算默认冷却
func DefaultConfig(tickRate int) Config {
	return Config{
		TickRate:              tickRate,
		RespawnCooldownTicks:  DurationToTicks(5*time.Second, tickRate),
		DeliveryCooldownTicks: DurationToTicks(100*time.Millisecond, tickRate),
		BoostDurationTicks:    DurationToTicks(250*time.Millisecond, tickRate),
		DropCooldownTicks:     DurationToTicks(10*time.Second, tickRate),
		TrainsPassengerRatio:  TrainsPassengerRatio,
	}
}

// DurationToTicks 向上取整换算成 tick 数
func DurationToTicks(d time.Duration, tickRate int) int64 {
	if d <= 0 || tickRate <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds() * float64(tickRate)))
}

// TicksToSeconds 供协议消息使用
func (c Config) TicksToSeconds(ticks int64) float64 {
	if c.TickRate <= 0 {
		return 0
	}
	return float64(ticks) / float64(c.TickRate)
}

type gameDirty struct {
	size       bool
	cellSize   bool
	passengers bool
	zone       bool
}

// Game 单个房间的权威模拟：持有全部实体，所有读写都经过 mu
type Game struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand
	log *zap.SugaredLogger

	width    int
	height   int
	cellSize int
	tick     int64
	started  bool

	trains       map[string]*Train
	passengers   []*Passenger
	zone         DeliveryZone
	deadAt       map[string]int64 // nickname -> 死亡 tick
	lastDelivery map[string]int64 // nickname -> 上次送客 tick
	colors       map[string]Color
	bestScores   map[string]int
	stats        Stats

	dirty gameDirty
}

// Stats 本局累计的事件计数
type Stats struct {
	Pickups    int64 `json:"pickups"`
	Deliveries int64 `json:"deliveries"`
	Deaths     int64 `json:"deaths"`
}

// New 创建初始尺寸的游戏；rng 为 nil 时使用时间种子
func New(cfg Config, nbPlayers int, rng *rand.Rand) *Game {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 1
	}
	if cfg.TrainsPassengerRatio <= 0 {
		cfg.TrainsPassengerRatio = TrainsPassengerRatio
	}
	g := &Game{
		cfg:          cfg,
		rng:          rng,
		log:          logging.Named("game"),
		width:        OriginalGameWidth,
		height:       OriginalGameHeight,
		cellSize:     CellSize,
		trains:       make(map[string]*Train),
		deadAt:       make(map[string]int64),
		lastDelivery: make(map[string]int64),
		colors:       make(map[string]Color),
		bestScores:   make(map[string]int),
		dirty:        gameDirty{size: true, cellSize: true, passengers: true, zone: true},
	}
	g.zone = NewDeliveryZone(rng, g.width, g.height, g.cellSize, nbPlayers)
	g.log.Infow("game initialized", "tick_rate", cfg.TickRate)
	return g
}

// Config 返回模拟参数
func (g *Game) Config() Config {
	return g.cfg
}

// InitializeGameSize 开局时按玩家数确定世界尺寸并重建送客区域，只生效一次
func (g *Game) InitializeGameSize(numPlayers int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return
	}
	g.width = OriginalGameWidth + numPlayers*GameSizeIncrement
	g.height = OriginalGameHeight + numPlayers*GameSizeIncrement
	g.zone = NewDeliveryZone(g.rng, g.width, g.height, g.cellSize, numPlayers)
	g.dirty.size = true
	g.dirty.cellSize = true
	g.dirty.zone = true
	g.started = true
}

// Started 是否已经开局
func (g *Game) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// Tick 当前 tick
func (g *Game) Tick() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

// Size 当前世界尺寸
func (g *Game) Size() Size {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Size{Width: g.width, Height: g.height}
}

// Update 推进一个 tick：移动与碰撞 → 拾取乘客 → 送客得分 → 补充乘客
func (g *Game) Update() []DeathEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tick++
	if len(g.trains) == 0 {
		return nil
	}
	names := g.sortedNames()

	var deaths []DeathEvent
	for _, name := range names {
		t := g.trains[name]
		if !t.Alive || !t.Tick() {
			continue
		}
		if ev := t.Update(g.trains, g.width, g.height, g.cellSize); ev != nil {
			for _, n := range ev.Nicknames {
				g.recordDeath(n)
			}
			g.log.Debugw("train died", "trains", ev.Nicknames, "reason", ev.Reason, "tick", g.tick)
			deaths = append(deaths, *ev)
		}
	}

	for _, name := range names {
		if t := g.trains[name]; t.Alive {
			g.pickUpPassengers(t)
		}
	}

	for _, name := range names {
		if t := g.trains[name]; t.Alive && g.zone.Contains(t.Head) {
			g.deliver(t)
		}
	}

	g.updatePassengersCount()
	return deaths
}

func (g *Game) pickUpPassengers(t *Train) {
	for i := 0; i < len(g.passengers); {
		p := g.passengers[i]
		if p.Position != t.Head {
			i++
			continue
		}
		t.AddWagons(p.Value)
		g.stats.Pickups++
		g.dirty.passengers = true
		if len(g.passengers)-1 < g.targetPassengers() {
			p.Position = g.safeSpawnPosition(p)
			p.Value = g.randomPassengerValue()
			i++
			continue
		}
		g.passengers = append(g.passengers[:i], g.passengers[i+1:]...)
	}
}

func (g *Game) deliver(t *Train) {
	if last, ok := g.lastDelivery[t.Nickname]; ok && g.tick-last < g.cfg.DeliveryCooldownTicks {
		return
	}
	if _, ok := t.PopWagon(); !ok {
		return
	}
	t.SetScore(t.Score + 1)
	if t.Score > g.bestScores[t.Nickname] {
		g.bestScores[t.Nickname] = t.Score
	}
	g.lastDelivery[t.Nickname] = g.tick
	g.stats.Deliveries++
}

func (g *Game) recordDeath(nickname string) {
	g.deadAt[nickname] = g.tick
	delete(g.lastDelivery, nickname)
	g.stats.Deaths++
}

// targetPassengers floor(活着的列车数 / ratio)
func (g *Game) targetPassengers() int {
	return int(math.Floor(float64(g.liveCount()) / g.cfg.TrainsPassengerRatio))
}

// updatePassengersCount 只补充不删除；删除只发生在拾取时
func (g *Game) updatePassengersCount() {
	target := g.targetPassengers()
	for len(g.passengers) < target {
		p := &Passenger{Value: g.randomPassengerValue()}
		p.Position = g.safeSpawnPosition(nil)
		g.passengers = append(g.passengers, p)
		g.dirty.passengers = true
	}
}

func (g *Game) randomPassengerValue() int {
	return 1 + g.rng.Intn(PassengerMaxValue)
}

func (g *Game) liveCount() int {
	n := 0
	for _, t := range g.trains {
		if t.Alive {
			n++
		}
	}
	return n
}

func (g *Game) sortedNames() []string {
	names := make([]string, 0, len(g.trains))
	for name := range g.trains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isPositionSafe 候选格是否远离边界、列车、送客区域且不与其他乘客重合
func (g *Game) isPositionSafe(p Point, except *Passenger) bool {
	safe := g.cellSize * SpawnSafeZone
	if p.X < safe || p.Y < safe || p.X > g.width-safe || p.Y > g.height-safe {
		return false
	}
	for _, t := range g.trains {
		if !t.Alive {
			continue
		}
		if abs(t.Head.X-p.X) < safe && abs(t.Head.Y-p.Y) < safe {
			return false
		}
		for _, w := range t.Wagons {
			if abs(w.X-p.X) < safe && abs(w.Y-p.Y) < safe {
				return false
			}
		}
	}
	if g.zone.Contains(p) {
		return false
	}
	for _, q := range g.passengers {
		if q != except && q.Position == p {
			return false
		}
	}
	return true
}

// safeSpawnPosition 先有界随机采样，失败后固定退回到世界中心
func (g *Game) safeSpawnPosition(except *Passenger) Point {
	lo := SpawnSafeZone
	hiX := g.width/g.cellSize - SpawnSafeZone
	hiY := g.height/g.cellSize - SpawnSafeZone
	if hiX >= lo && hiY >= lo {
		for i := 0; i < MaxSpawnAttempts; i++ {
			p := Point{
				X: (lo + g.rng.Intn(hiX-lo+1)) * g.cellSize,
				Y: (lo + g.rng.Intn(hiY-lo+1)) * g.cellSize,
			}
			if g.isPositionSafe(p, except) {
				return p
			}
		}
	}
	center := g.center()
	g.log.Warnw("no safe spawn position found, using center", "x", center.X, "y", center.Y)
	return center
}

func (g *Game) center() Point {
	return Point{
		X: (g.width / 2) / g.cellSize * g.cellSize,
		Y: (g.height / 2) / g.cellSize * g.cellSize,
	}
}

// AddTrain 复活/新建列车；冷却未结束、已存活或容量已满时失败且不改变状态
func (g *Game) AddTrain(nickname string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.trains[nickname]; ok && t.Alive {
		return ErrTrainAlive
	}
	if remaining := g.respawnRemaining(nickname); remaining > 0 {
		g.log.Debugw("train still in cooldown", "nickname", nickname, "remaining_ticks", remaining)
		return &CooldownError{Action: "respawn", Remaining: remaining}
	}
	if g.cfg.MaxTrains > 0 && g.liveCount() >= g.cfg.MaxTrains {
		return ErrRoomFull
	}
	delete(g.deadAt, nickname)

	color, ok := g.colors[nickname]
	if !ok {
		color = randomNonBlueColor(g.rng)
		g.colors[nickname] = color
	}
	if _, ok := g.bestScores[nickname]; !ok {
		g.bestScores[nickname] = 0
	}
	pos := g.safeSpawnPosition(nil)
	g.trains[nickname] = NewTrain(nickname, pos, color, TrainParams{
		CellSize:           g.cellSize,
		TickRate:           g.cfg.TickRate,
		BoostDurationTicks: g.cfg.BoostDurationTicks,
		DropCooldownTicks:  g.cfg.DropCooldownTicks,
	})
	g.updatePassengersCount()
	g.log.Debugw("train added", "nickname", nickname, "x", pos.X, "y", pos.Y)
	return nil
}

func (g *Game) respawnRemaining(nickname string) int64 {
	at, ok := g.deadAt[nickname]
	if !ok {
		return 0
	}
	if remaining := g.cfg.RespawnCooldownTicks - (g.tick - at); remaining > 0 {
		return remaining
	}
	return 0
}

// RespawnCooldown 剩余复活冷却 tick，0 表示可以复活
func (g *Game) RespawnCooldown(nickname string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.respawnRemaining(nickname)
}

// ChangeDirection 转向请求；在下一次移动时生效
func (g *Game) ChangeDirection(nickname string, d Direction) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trains[nickname]
	if !ok {
		return false
	}
	return t.ChangeDirection(d, g.tick)
}

// DropWagon 丢弃车尾车厢，原地留下一名价值 1 的乘客
func (g *Game) DropWagon(nickname string) (Point, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trains[nickname]
	if !ok {
		return Point{}, ErrTrainNotFound
	}
	pos, err := t.DropWagon()
	if err != nil {
		return Point{}, err
	}
	g.passengers = append(g.passengers, &Passenger{Position: pos, Value: 1})
	g.dirty.passengers = true
	return pos, nil
}

// KillTrain 强制移除一辆列车（例如 AI 超时），客户端看到的是一次死亡
func (g *Game) KillTrain(nickname, reason string) *DeathEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trains[nickname]
	if !ok || !t.Alive {
		return nil
	}
	t.kill()
	g.recordDeath(nickname)
	g.updatePassengersCount()
	return &DeathEvent{Nicknames: []string{nickname}, Reason: reason}
}

// IsAlive 列车是否存在且存活
func (g *Game) IsAlive(nickname string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trains[nickname]
	return ok && t.Alive
}

// LiveTrainCount 活着的列车数
func (g *Game) LiveTrainCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.liveCount()
}

// PassengerCount 当前乘客数
func (g *Game) PassengerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.passengers)
}

// BestScores 本局每辆列车的最高分副本
func (g *Game) BestScores() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.bestScores))
	for k, v := range g.bestScores {
		out[k] = v
	}
	return out
}

// Stats 返回累计计数
func (g *Game) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
