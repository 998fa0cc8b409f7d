package game

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		TickRate:              1,
		RespawnCooldownTicks:  3,
		DeliveryCooldownTicks: 2,
		BoostDurationTicks:    1,
		DropCooldownTicks:     5,
		TrainsPassengerRatio:  1,
	}
}

func newTestGame(cfg Config) *Game {
	g := New(cfg, 1, rand.New(rand.NewSource(42)))
	// 送客区域放在左上角，避免干扰移动类用例
	g.zone = DeliveryZone{X: 0, Y: 0, Width: 40, Height: 40}
	return g
}

func placeTrain(g *Game, name string, head Point, dir Direction, wagons ...Point) *Train {
	t := NewTrain(name, head, Color{R: 180, G: 180, B: 20}, TrainParams{
		CellSize:           g.cellSize,
		TickRate:           g.cfg.TickRate,
		BoostDurationTicks: g.cfg.BoostDurationTicks,
		DropCooldownTicks:  g.cfg.DropCooldownTicks,
	})
	t.Direction, t.nextDirection = dir, dir
	t.Wagons = append([]Point(nil), wagons...)
	t.updateSpeed()
	g.trains[name] = t
	return t
}

func TestDurationToTicks(t *testing.T) {
	cases := []struct {
		d    time.Duration
		rate int
		want int64
	}{
		{100 * time.Millisecond, 60, 6},
		{250 * time.Millisecond, 60, 15},
		{5 * time.Second, 60, 300},
		{10 * time.Millisecond, 60, 1},
		{0, 60, 0},
		{time.Second, 0, 0},
	}
	for _, c := range cases {
		if got := DurationToTicks(c.d, c.rate); got != c.want {
			t.Fatalf("DurationToTicks(%v, %d) = %d, want %d", c.d, c.rate, got, c.want)
		}
	}
}

func TestHeadOnCollisionKillsBoth(t *testing.T) {
	cases := []struct {
		name   string
		a, b   Point
		killer string
	}{
		// a 先走到中间格，b 再撞上 a 的车头
		{"meet in middle", Point{100, 100}, Point{140, 100}, "b"},
		// 相邻对开：a 直接撞上 b 的车头
		{"adjacent swap", Point{100, 100}, Point{120, 100}, "a"},
	}
	for _, c := range cases {
		g := newTestGame(testConfig())
		placeTrain(g, "a", c.a, Right)
		placeTrain(g, "b", c.b, Left)

		deaths := g.Update()
		if len(deaths) != 1 {
			t.Fatalf("%s: deaths = %+v", c.name, deaths)
		}
		ev := deaths[0]
		if len(ev.Nicknames) != 2 || ev.Nicknames[0] != c.killer {
			t.Fatalf("%s: event = %+v", c.name, ev)
		}
		if g.IsAlive("a") || g.IsAlive("b") {
			t.Fatalf("%s: both trains should be dead", c.name)
		}
		if ev.ReasonFor("a") != "collision with b" || ev.ReasonFor("b") != "collision with a" {
			t.Fatalf("%s: reasons a=%q b=%q", c.name, ev.ReasonFor("a"), ev.ReasonFor("b"))
		}
	}
}

func TestPickupRelocatesPassengerWhenBelowTarget(t *testing.T) {
	g := newTestGame(testConfig())
	tr := placeTrain(g, "a", Point{200, 200}, Right)
	g.passengers = []*Passenger{{Position: Point{220, 200}, Value: 3}}

	g.Update()

	if len(tr.Wagons) != 3 {
		t.Fatalf("wagons = %d, want 3", len(tr.Wagons))
	}
	if len(g.passengers) != 1 {
		t.Fatalf("passengers = %d, want 1", len(g.passengers))
	}
	if g.passengers[0].Position == (Point{220, 200}) {
		t.Fatalf("passenger was not relocated")
	}
}

func TestPickupRemovesSurplusPassenger(t *testing.T) {
	g := newTestGame(testConfig())
	tr := placeTrain(g, "a", Point{200, 200}, Right)
	g.passengers = []*Passenger{
		{Position: Point{220, 200}, Value: 3},
		{Position: Point{300, 300}, Value: 1},
	}

	g.Update()

	if len(tr.Wagons) != 3 {
		t.Fatalf("wagons = %d, want 3", len(tr.Wagons))
	}
	if len(g.passengers) != 1 || g.passengers[0].Position != (Point{300, 300}) {
		t.Fatalf("passengers = %+v", g.passengers)
	}
}

func TestDeliveryRespectsCooldown(t *testing.T) {
	g := newTestGame(testConfig())
	g.zone = DeliveryZone{X: 0, Y: 0, Width: 400, Height: 400}
	tr := placeTrain(g, "a", Point{100, 100}, Right,
		Point{80, 100}, Point{60, 100}, Point{40, 100}, Point{20, 100}, Point{0, 100})

	wantScores := []int{1, 1, 2}
	wantWagons := []int{4, 4, 3}
	for i := range wantScores {
		g.Update()
		if tr.Score != wantScores[i] || len(tr.Wagons) != wantWagons[i] {
			t.Fatalf("tick %d: score=%d wagons=%d, want %d/%d",
				i+1, tr.Score, len(tr.Wagons), wantScores[i], wantWagons[i])
		}
	}
	if g.BestScores()["a"] != 2 {
		t.Fatalf("best score = %d", g.BestScores()["a"])
	}
	if st := g.Stats(); st.Deliveries != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRespawnCooldownAndCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTrains = 1
	g := newTestGame(cfg)

	if err := g.AddTrain("a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := g.AddTrain("a"); !errors.Is(err, ErrTrainAlive) {
		t.Fatalf("second add err = %v", err)
	}
	if err := g.AddTrain("b"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("add over capacity err = %v", err)
	}

	if ev := g.KillTrain("a", "test"); ev == nil {
		t.Fatalf("kill returned nil")
	}
	if ev := g.KillTrain("a", "test"); ev != nil {
		t.Fatalf("killing a dead train should be a no-op")
	}

	var cd *CooldownError
	if err := g.AddTrain("a"); !errors.As(err, &cd) || cd.Remaining != 3 {
		t.Fatalf("respawn during cooldown err = %v", err)
	}
	g.Update()
	g.Update()
	if got := g.RespawnCooldown("a"); got != 1 {
		t.Fatalf("remaining cooldown = %d, want 1", got)
	}
	g.Update()
	if err := g.AddTrain("a"); err != nil {
		t.Fatalf("respawn after cooldown: %v", err)
	}
	if !g.IsAlive("a") {
		t.Fatalf("train not alive after respawn")
	}
}

func TestSpawnFallsBackToCenter(t *testing.T) {
	g := newTestGame(testConfig())
	// 整个世界都在送客区域内，采样必然失败
	g.zone = DeliveryZone{X: 0, Y: 0, Width: 400, Height: 400}
	if err := g.AddTrain("a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := g.trains["a"].Head; got != (Point{200, 200}) {
		t.Fatalf("head = %+v, want center", got)
	}
}

func TestPassengerCountFollowsLiveTrains(t *testing.T) {
	cfg := testConfig()
	cfg.TrainsPassengerRatio = 2
	g := newTestGame(cfg)
	placeTrain(g, "a", Point{100, 100}, Right)
	placeTrain(g, "b", Point{100, 300}, Right)
	placeTrain(g, "c", Point{300, 300}, Left)

	g.updatePassengersCount()
	if len(g.passengers) != 1 {
		t.Fatalf("passengers = %d, want floor(3/2)=1", len(g.passengers))
	}

	g.cfg.TrainsPassengerRatio = 1
	g.updatePassengersCount()
	if len(g.passengers) != 3 {
		t.Fatalf("passengers = %d, want 3", len(g.passengers))
	}
	for _, p := range g.passengers {
		if p.Value < 1 || p.Value > PassengerMaxValue {
			t.Fatalf("passenger value %d out of range", p.Value)
		}
	}
}

func TestGetStateReturnsOnlyChanges(t *testing.T) {
	g := newTestGame(testConfig())
	if err := g.AddTrain("a"); err != nil {
		t.Fatalf("add: %v", err)
	}

	s := g.GetState()
	if s.Size == nil || s.CellSize == nil || s.Passengers == nil || s.DeliveryZone == nil || s.Trains["a"] == nil {
		t.Fatalf("first state incomplete: %+v", s)
	}
	if s2 := g.GetState(); !s2.Empty() {
		t.Fatalf("second state = %+v, want empty", s2)
	}

	if full := g.Snapshot(); full.Trains["a"] == nil || full.Size == nil {
		t.Fatalf("snapshot incomplete: %+v", full)
	}
	if s3 := g.GetState(); !s3.Empty() {
		t.Fatalf("snapshot must not reset dirty flags")
	}

	g.Update()
	s4 := g.GetState()
	d := s4.Trains["a"]
	if d == nil || d.Position == nil {
		t.Fatalf("moved train missing from delta: %+v", s4)
	}
	if d.Color != nil {
		t.Fatalf("unchanged color included in delta")
	}
}

func TestDropWagonLeavesPassenger(t *testing.T) {
	g := newTestGame(testConfig())
	placeTrain(g, "a", Point{200, 200}, Right, Point{180, 200}, Point{160, 200})

	pos, err := g.DropWagon("a")
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if pos != (Point{160, 200}) {
		t.Fatalf("dropped at %+v", pos)
	}
	found := false
	for _, p := range g.passengers {
		if p.Position == pos && p.Value == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no passenger left at %+v", pos)
	}
	if _, err := g.DropWagon("ghost"); !errors.Is(err, ErrTrainNotFound) {
		t.Fatalf("drop unknown err = %v", err)
	}
}

func TestInitializeGameSizeOnce(t *testing.T) {
	g := newTestGame(testConfig())
	g.InitializeGameSize(2)
	want := Size{Width: 440, Height: 440}
	if got := g.Size(); got != want {
		t.Fatalf("size = %+v, want %+v", got, want)
	}
	g.InitializeGameSize(5)
	if got := g.Size(); got != want {
		t.Fatalf("size changed on second call: %+v", got)
	}
	if !g.Started() {
		t.Fatalf("game not marked started")
	}
}

func TestObserveIsIsolatedCopy(t *testing.T) {
	g := newTestGame(testConfig())
	placeTrain(g, "a", Point{200, 200}, Right, Point{180, 200})

	obs := g.Observe("a")
	self, ok := obs.Self()
	if !ok || self.Head != (Point{200, 200}) {
		t.Fatalf("self = %+v, %v", self, ok)
	}
	self.Wagons[0] = Point{0, 0}
	if g.trains["a"].Wagons[0] != (Point{180, 200}) {
		t.Fatalf("observation shares wagon memory with game")
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	g := newTestGame(testConfig())
	placeTrain(g, "a", Point{100, 100}, Right).SetScore(1)
	placeTrain(g, "b", Point{100, 300}, Right).SetScore(4)
	placeTrain(g, "c", Point{300, 300}, Left).SetScore(4)
	g.bestScores = map[string]int{"a": 9, "b": 4, "c": 4}

	board := g.Leaderboard()
	order := []string{"a", "b", "c"}
	for i, name := range order {
		if board[i].Name != name {
			t.Fatalf("leaderboard = %+v", board)
		}
	}
}
