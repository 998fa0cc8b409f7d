package game

import (
	"encoding/json"
	"math/rand"
)

// Color RGB 颜色
type Color struct {
	R, G, B int
}

// MarshalJSON 以 [r, g, b] 编码
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{c.R, c.G, c.B})
}

// randomNonBlueColor 生成偏亮且避开蓝色系的颜色（蓝色留给界面元素）
func randomNonBlueColor(rng *rand.Rand) Color {
	for {
		r := 100 + rng.Intn(131)
		g := 100 + rng.Intn(131)
		b := rng.Intn(151)
		if r > b+50 || g > b+50 {
			return Color{R: r, G: g, B: b}
		}
	}
}
