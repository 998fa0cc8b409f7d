package game

// TrainDelta 一辆列车自上次序列化以来变化的字段
type TrainDelta struct {
	Position  *Point     `json:"position,omitempty"`
	Wagons    *[]Point   `json:"wagons,omitempty"`
	Direction *Direction `json:"direction,omitempty"`
	Score     *int       `json:"score,omitempty"`
	Color     *Color     `json:"color,omitempty"`
	Alive     *bool      `json:"alive,omitempty"`
	Speed     *float64   `json:"speed,omitempty"`
}

// State 广播给客户端的增量状态；nil 字段表示该类别未变化
type State struct {
	Trains       map[string]*TrainDelta `json:"trains,omitempty"`
	Passengers   *[]Passenger           `json:"passengers,omitempty"`
	DeliveryZone *ZoneView              `json:"delivery_zone,omitempty"`
	Size         *Size                  `json:"size,omitempty"`
	CellSize     *int                   `json:"cell_size,omitempty"`
}

// Empty 没有任何类别变化
func (s State) Empty() bool {
	return len(s.Trains) == 0 && s.Passengers == nil && s.DeliveryZone == nil && s.Size == nil && s.CellSize == nil
}

// Delta 返回变化的字段并清除脏标记；无变化时返回 nil
func (t *Train) Delta() *TrainDelta {
	d := t.collect(t.dirty)
	t.dirty = trainDirty{}
	return d
}

func (t *Train) collect(dirty trainDirty) *TrainDelta {
	if dirty == (trainDirty{}) {
		return nil
	}
	d := &TrainDelta{}
	if dirty.position {
		p := t.Head
		d.Position = &p
	}
	if dirty.wagons {
		w := append(make([]Point, 0, len(t.Wagons)), t.Wagons...)
		d.Wagons = &w
	}
	if dirty.direction {
		dir := t.Direction
		d.Direction = &dir
	}
	if dirty.score {
		s := t.Score
		d.Score = &s
	}
	if dirty.color {
		c := t.Color
		d.Color = &c
	}
	if dirty.alive {
		a := t.Alive
		d.Alive = &a
	}
	if dirty.speed {
		s := t.Speed
		d.Speed = &s
	}
	return d
}

// GetState 只返回脏类别并清除它们的标记；连续两次调用之间没有修改时第二次为空
func (g *Game) GetState() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	var s State
	if g.dirty.size {
		s.Size = &Size{Width: g.width, Height: g.height}
		g.dirty.size = false
	}
	if g.dirty.cellSize {
		c := g.cellSize
		s.CellSize = &c
		g.dirty.cellSize = false
	}
	if g.dirty.passengers {
		s.Passengers = g.passengerList()
		g.dirty.passengers = false
	}
	if g.dirty.zone {
		z := g.zone.view()
		s.DeliveryZone = &z
		g.dirty.zone = false
	}
	for name, t := range g.trains {
		if d := t.Delta(); d != nil {
			if s.Trains == nil {
				s.Trains = make(map[string]*TrainDelta)
			}
			s.Trains[name] = d
		}
	}
	return s
}

// Snapshot 完整状态，不影响脏标记（用于新加入的观战者）
func (g *Game) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.cellSize
	z := g.zone.view()
	s := State{
		Trains:       make(map[string]*TrainDelta, len(g.trains)),
		Passengers:   g.passengerList(),
		DeliveryZone: &z,
		Size:         &Size{Width: g.width, Height: g.height},
		CellSize:     &c,
	}
	var all trainDirty
	all.setAll()
	for name, t := range g.trains {
		s.Trains[name] = t.collect(all)
	}
	return s
}

func (g *Game) passengerList() *[]Passenger {
	list := make([]Passenger, 0, len(g.passengers))
	for _, p := range g.passengers {
		list = append(list, *p)
	}
	return &list
}
