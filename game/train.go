package game

import (
	"math"
	"sort"
)

const (
	// InitialSpeed 初始速度（格/秒）
	InitialSpeed = 10.0
	// SpeedDecrementCoefficient 每节车厢的减速系数
	SpeedDecrementCoefficient = 0.95
	// BoostIntensity 丢车厢加速倍率
	BoostIntensity = 1.5
)

const (
	ReasonWall = "collision with wall"
	ReasonSelf = "collision with self"
)

// DeathEvent 一次移动导致的死亡；相撞时 Nicknames 同时包含双方
type DeathEvent struct {
	Nicknames []string
	Reason    string
}

// ReasonFor 返回指定列车视角的死亡原因（相撞时被撞方看到的是撞击方的名字）
func (e DeathEvent) ReasonFor(nickname string) string {
	if len(e.Nicknames) == 2 && e.Nicknames[1] == nickname {
		return collisionWith(e.Nicknames[0])
	}
	return e.Reason
}

func collisionWith(nickname string) string {
	return "collision with " + nickname
}

// TrainParams 列车的节奏参数，由 Game 根据配置注入
type TrainParams struct {
	CellSize           int
	TickRate           int
	BoostDurationTicks int64
	DropCooldownTicks  int64
}

type trainDirty struct {
	position  bool
	wagons    bool
	direction bool
	score     bool
	color     bool
	alive     bool
	speed     bool
}

func (d *trainDirty) setAll() {
	*d = trainDirty{true, true, true, true, true, true, true}
}

// Train 列车实体：车头 + 按车头到车尾排列的车厢
type Train struct {
	Nickname  string
	Head      Point
	Direction Direction
	Wagons    []Point
	Color     Color
	Score     int
	Alive     bool
	Speed     float64

	params        TrainParams
	nextDirection Direction
	lastTurnTick  int64
	moveTimer     int
	boostTicks    int64 // 剩余加速 tick
	dropCooldown  int64 // 剩余丢车厢冷却 tick

	dirty trainDirty
}

// NewTrain 在 head 处创建一辆朝右的列车
func NewTrain(nickname string, head Point, color Color, params TrainParams) *Train {
	if params.TickRate <= 0 {
		params.TickRate = 1
	}
	t := &Train{
		Nickname:      nickname,
		Head:          head,
		Direction:     Right,
		nextDirection: Right,
		Color:         color,
		Alive:         true,
		Speed:         InitialSpeed,
		params:        params,
		lastTurnTick:  -1,
	}
	t.dirty.setAll()
	return t
}

// ChangeDirection 记录下一 tick 生效的方向；反向（掉头撞脖子）与非法向量被静默拒绝
func (t *Train) ChangeDirection(d Direction, tick int64) bool {
	if !t.Alive || !d.Valid() {
		return false
	}
	if d == t.Direction.Opposite() {
		return false
	}
	t.nextDirection = d
	t.lastTurnTick = tick
	return true
}

// LastTurnTick 最近一次被接受的转向所在 tick，-1 表示从未转向
func (t *Train) LastTurnTick() int64 {
	return t.lastTurnTick
}

// Tick 推进加速/冷却计时器与移动计时器；返回本 tick 是否应当移动
func (t *Train) Tick() bool {
	if !t.Alive {
		return false
	}
	if t.boostTicks > 0 {
		t.boostTicks--
		if t.boostTicks == 0 {
			t.updateSpeed()
		}
	}
	if t.dropCooldown > 0 {
		t.dropCooldown--
	}
	t.moveTimer++
	if float64(t.moveTimer) >= float64(t.params.TickRate)/t.Speed {
		t.moveTimer = 0
		return true
	}
	return false
}

// Update 车头前进一格，车厢跟随；按 撞墙 → 撞自己 → 撞他车 的顺序判定死亡
func (t *Train) Update(trains map[string]*Train, width, height, cellSize int) *DeathEvent {
	if !t.Alive {
		return nil
	}
	t.setDirection(t.nextDirection)
	next := t.Head.Add(t.Direction, cellSize)

	if next.X < 0 || next.X >= width || next.Y < 0 || next.Y >= height {
		t.kill()
		return &DeathEvent{Nicknames: []string{t.Nickname}, Reason: ReasonWall}
	}

	// 车尾格子会在本次移动中腾出，不算碰撞
	if len(t.Wagons) > 1 {
		for _, w := range t.Wagons[:len(t.Wagons)-1] {
			if w == next {
				t.kill()
				return &DeathEvent{Nicknames: []string{t.Nickname}, Reason: ReasonSelf}
			}
		}
	}

	names := make([]string, 0, len(trains))
	for name := range trains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		other := trains[name]
		if other == nil || other == t || !other.Alive {
			continue
		}
		// 车头相撞两车同亡；撞上对方车厢只有移动方死亡
		if other.Head == next {
			t.kill()
			other.kill()
			return &DeathEvent{Nicknames: []string{t.Nickname, other.Nickname}, Reason: collisionWith(other.Nickname)}
		}
		if other.Occupies(next) {
			t.kill()
			return &DeathEvent{Nicknames: []string{t.Nickname}, Reason: collisionWith(other.Nickname)}
		}
	}

	if len(t.Wagons) > 0 {
		copy(t.Wagons[1:], t.Wagons[:len(t.Wagons)-1])
		t.Wagons[0] = t.Head
		t.dirty.wagons = true
	}
	t.setHead(next)
	return nil
}

// AddWagons 在车尾后方追加 n 节车厢，沿 前一节 → 车尾 的方向依次延伸
func (t *Train) AddWagons(n int) {
	if n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		tail, prior := t.Head, t.Head.Add(t.Direction, t.params.CellSize)
		if k := len(t.Wagons); k > 0 {
			tail = t.Wagons[k-1]
			prior = t.Head
			if k > 1 {
				prior = t.Wagons[k-2]
			}
		}
		step := Point{X: tail.X - prior.X, Y: tail.Y - prior.Y}
		if step.X == 0 && step.Y == 0 {
			step = Point{X: -t.Direction.DX * t.params.CellSize, Y: -t.Direction.DY * t.params.CellSize}
		}
		t.Wagons = append(t.Wagons, Point{X: tail.X + step.X, Y: tail.Y + step.Y})
	}
	t.dirty.wagons = true
	t.updateSpeed()
}

// PopWagon 移除并返回车尾车厢
func (t *Train) PopWagon() (Point, bool) {
	k := len(t.Wagons)
	if k == 0 {
		return Point{}, false
	}
	last := t.Wagons[k-1]
	t.Wagons = t.Wagons[:k-1]
	t.dirty.wagons = true
	t.updateSpeed()
	return last, true
}

// DropWagon 玩家主动丢弃车尾车厢换取短暂加速，受 tick 冷却限制
func (t *Train) DropWagon() (Point, error) {
	if !t.Alive {
		return Point{}, ErrTrainDead
	}
	if t.dropCooldown > 0 {
		return Point{}, &CooldownError{Action: "drop_wagon", Remaining: t.dropCooldown}
	}
	if len(t.Wagons) == 0 {
		return Point{}, ErrNoWagons
	}
	t.boostTicks = t.params.BoostDurationTicks
	t.dropCooldown = t.params.DropCooldownTicks
	pos, _ := t.PopWagon()
	return pos, nil
}

// DropCooldown 剩余丢车厢冷却 tick
func (t *Train) DropCooldown() int64 {
	return t.dropCooldown
}

// Boosting 是否处于加速中
func (t *Train) Boosting() bool {
	return t.boostTicks > 0
}

// SetScore 更新分数
func (t *Train) SetScore(score int) {
	if t.Score != score {
		t.Score = score
		t.dirty.score = true
	}
}

// Occupies 车头或任一车厢是否位于 p
func (t *Train) Occupies(p Point) bool {
	if t.Head == p {
		return true
	}
	for _, w := range t.Wagons {
		if w == p {
			return true
		}
	}
	return false
}

func (t *Train) updateSpeed() {
	speed := InitialSpeed * math.Pow(SpeedDecrementCoefficient, float64(len(t.Wagons)))
	if t.boostTicks > 0 {
		speed *= BoostIntensity
	}
	if speed != t.Speed {
		t.Speed = speed
		t.dirty.speed = true
	}
}

func (t *Train) setHead(p Point) {
	if t.Head != p {
		t.Head = p
		t.dirty.position = true
	}
}

func (t *Train) setDirection(d Direction) {
	if t.Direction != d {
		t.Direction = d
		t.dirty.direction = true
	}
}

func (t *Train) kill() {
	if !t.Alive {
		return
	}
	t.Alive = false
	t.dirty.alive = true
	if len(t.Wagons) > 0 {
		t.Wagons = nil
		t.dirty.wagons = true
	}
	t.boostTicks = 0
	t.moveTimer = 0
}
