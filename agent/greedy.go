package agent

import (
	"context"

	"trainarena/game"
)

const (
	// 目标权重：车厢越多越倾向回送客区，乘客价值越高越值得绕路
	zoneWeightPerWagon   = 2
	passengerValueWeight = 3
)

// Greedy 每步在安全方向里选离目标最近的一个
// 目标是价值/距离最优的乘客，车厢足够多时改为送客区域
type Greedy struct{}

func (Greedy) Decide(ctx context.Context, obs game.Observation) game.Direction {
	self, ok := obs.Self()
	if !ok || !self.Alive {
		return self.Direction
	}
	target, hasTarget := chooseTarget(obs, self)

	best := self.Direction
	bestDist, found := 0, false
	for _, d := range game.Directions {
		if ctx.Err() != nil {
			break
		}
		if d == self.Direction.Opposite() {
			continue
		}
		next := self.Head.Add(d, obs.CellSize)
		if !isSafe(obs, self, next) {
			continue
		}
		dist := 0
		if hasTarget {
			dist = manhattan(next, target)
		} else if d != self.Direction {
			dist = 1
		}
		if !found || dist < bestDist || (dist == bestDist && d == self.Direction) {
			best, bestDist, found = d, dist, true
		}
	}
	return best
}

func chooseTarget(obs game.Observation, self game.TrainView) (game.Point, bool) {
	var (
		target game.Point
		score  int
		ok     bool
	)
	for _, p := range obs.Passengers {
		s := p.Value*passengerValueWeight*obs.CellSize - manhattan(self.Head, p.Position)
		if !ok || s > score {
			target, score, ok = p.Position, s, true
		}
	}
	if len(self.Wagons) > 0 {
		zone := zoneTarget(obs.Zone, obs.CellSize)
		s := len(self.Wagons)*zoneWeightPerWagon*obs.CellSize - manhattan(self.Head, zone)
		if !ok || s >= score {
			target, ok = zone, true
		}
	}
	return target, ok
}

// zoneTarget 送客区域内左上角偏中心的格子
func zoneTarget(z game.DeliveryZone, cellSize int) game.Point {
	x := z.X + (z.Width/2)/cellSize*cellSize
	y := z.Y + (z.Height/2)/cellSize*cellSize
	return game.Point{X: x, Y: y}
}

func isSafe(obs game.Observation, self game.TrainView, p game.Point) bool {
	if p.X < 0 || p.Y < 0 || p.X >= obs.Width || p.Y >= obs.Height {
		return false
	}
	for name, t := range obs.Trains {
		if !t.Alive {
			continue
		}
		if name != self.Nickname && t.Head == p {
			return false
		}
		wagons := t.Wagons
		// 自己的车尾会在移动时腾出
		if name == self.Nickname && len(wagons) > 0 {
			wagons = wagons[:len(wagons)-1]
		}
		for _, w := range wagons {
			if w == p {
				return false
			}
		}
	}
	return true
}

func manhattan(a, b game.Point) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
