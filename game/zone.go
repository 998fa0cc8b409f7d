package game

import "math/rand"

// DeliveryZone 送客区域：列车车头进入后逐节卸下车厢得分
type DeliveryZone struct {
	X      int
	Y      int
	Width  int
	Height int
}

// ZoneView 送客区域的线上格式
type ZoneView struct {
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	Position Point `json:"position"`
}

// NewDeliveryZone 尺寸随玩家数增长（随机沿宽或高方向），位置避开 SafePadding 边距
func NewDeliveryZone(rng *rand.Rand, width, height, cellSize, nbPlayers int) DeliveryZone {
	const initialCells = 2
	w, h := initialCells*cellSize, initialCells*cellSize
	if rng.Intn(2) == 0 {
		w = (initialCells + nbPlayers) * cellSize
	} else {
		h = (initialCells + nbPlayers) * cellSize
	}
	return DeliveryZone{
		X:      cellSize * placeWithin(rng, width/cellSize, w/cellSize),
		Y:      cellSize * placeWithin(rng, height/cellSize, h/cellSize),
		Width:  w,
		Height: h,
	}
}

// placeWithin 在 [SafePadding, cells-SafePadding-span] 内随机取格；空间不足时退化到 [0, cells-span]
func placeWithin(rng *rand.Rand, cells, span int) int {
	lo, hi := SafePadding, cells-SafePadding-span
	if hi < lo {
		lo, hi = 0, cells-span
	}
	if hi < lo {
		return 0
	}
	return lo + rng.Intn(hi-lo+1)
}

// Contains 左闭右开
func (z DeliveryZone) Contains(p Point) bool {
	return p.X >= z.X && p.X < z.X+z.Width && p.Y >= z.Y && p.Y < z.Y+z.Height
}

func (z DeliveryZone) view() ZoneView {
	return ZoneView{Width: z.Width, Height: z.Height, Position: Point{X: z.X, Y: z.Y}}
}
