package game

import (
	"encoding/json"
	"fmt"
)

// Point 网格坐标（像素，始终是 cellSize 的整数倍）
type Point struct {
	X int
	Y int
}

// Add 返回 p 沿 d 方向移动 n 个像素后的位置
func (p Point) Add(d Direction, n int) Point {
	return Point{X: p.X + d.DX*n, Y: p.Y + d.DY*n}
}

// MarshalJSON 以 [x, y] 形式编码，与客户端协议保持一致
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON 解析 [x, y]
func (p *Point) UnmarshalJSON(b []byte) error {
	var v [2]int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	p.X, p.Y = v[0], v[1]
	return nil
}

// Direction 单位方向向量，只允许四个基本方向
type Direction struct {
	DX int
	DY int
}

var (
	Up    = Direction{DX: 0, DY: -1}
	Down  = Direction{DX: 0, DY: 1}
	Left  = Direction{DX: -1, DY: 0}
	Right = Direction{DX: 1, DY: 0}
)

// Directions 固定顺序的四个方向（上、右、下、左），保证遍历确定性
var Directions = [4]Direction{Up, Right, Down, Left}

// Valid 是否为四个单位方向之一（零向量和斜向都无效）
func (d Direction) Valid() bool {
	return (d.DX == 0 && (d.DY == 1 || d.DY == -1)) || (d.DY == 0 && (d.DX == 1 || d.DX == -1))
}

// Opposite 反方向
func (d Direction) Opposite() Direction {
	return Direction{DX: -d.DX, DY: -d.DY}
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("(%d,%d)", d.DX, d.DY)
}

// MarshalJSON 以 [dx, dy] 形式编码
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{d.DX, d.DY})
}

// UnmarshalJSON 解析 [dx, dy]；合法性由调用方通过 Valid 判断
func (d *Direction) UnmarshalJSON(b []byte) error {
	var v [2]int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode direction: %w", err)
	}
	d.DX, d.DY = v[0], v[1]
	return nil
}

// Size 世界尺寸
type Size struct {
	Width  int `json:"game_width"`
	Height int `json:"game_height"`
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
