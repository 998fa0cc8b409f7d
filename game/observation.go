package game

import "sort"

// TrainView 列车的只读副本
type TrainView struct {
	Nickname  string    `json:"name"`
	Head      Point     `json:"position"`
	Direction Direction `json:"direction"`
	Wagons    []Point   `json:"wagons"`
	Score     int       `json:"score"`
	Alive     bool      `json:"alive"`
	Speed     float64   `json:"speed"`
}

// Observation 交给 AI 决策的世界快照，与 Game 内部状态不共享内存
type Observation struct {
	Nickname   string
	Tick       int64
	Width      int
	Height     int
	CellSize   int
	Trains     map[string]TrainView
	Passengers []Passenger
	Zone       DeliveryZone
}

// Self 观察者自己的列车
func (o Observation) Self() (TrainView, bool) {
	t, ok := o.Trains[o.Nickname]
	return t, ok
}

func (t *Train) view() TrainView {
	return TrainView{
		Nickname:  t.Nickname,
		Head:      t.Head,
		Direction: t.Direction,
		Wagons:    append([]Point(nil), t.Wagons...),
		Score:     t.Score,
		Alive:     t.Alive,
		Speed:     t.Speed,
	}
}

// Observe 为 nickname 构建一份观察快照
func (g *Game) Observe(nickname string) Observation {
	g.mu.Lock()
	defer g.mu.Unlock()

	obs := Observation{
		Nickname:   nickname,
		Tick:       g.tick,
		Width:      g.width,
		Height:     g.height,
		CellSize:   g.cellSize,
		Trains:     make(map[string]TrainView, len(g.trains)),
		Passengers: make([]Passenger, 0, len(g.passengers)),
		Zone:       g.zone,
	}
	for name, t := range g.trains {
		obs.Trains[name] = t.view()
	}
	for _, p := range g.passengers {
		obs.Passengers = append(obs.Passengers, *p)
	}
	return obs
}

// Train 返回指定列车的副本
func (g *Game) Train(nickname string) (TrainView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trains[nickname]
	if !ok {
		return TrainView{}, false
	}
	return t.view(), true
}

// ScoreEntry 排行榜的一行
type ScoreEntry struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	BestScore int    `json:"best_score"`
	Alive     bool   `json:"alive"`
}

// Leaderboard 按最高分、当前分、名字排序
func (g *Game) Leaderboard() []ScoreEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]ScoreEntry, 0, len(g.trains))
	for name, t := range g.trains {
		out = append(out, ScoreEntry{Name: name, Score: t.Score, BestScore: g.bestScores[name], Alive: t.Alive})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BestScore != out[j].BestScore {
			return out[i].BestScore > out[j].BestScore
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}
