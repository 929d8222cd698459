package domain

import "math"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance 计算两点之间的欧氏距离
func (p Point) Distance(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Seat: 平面图上的一个座位，在一次求解中不可变
type Seat struct {
	ID string  `json:"id" validate:"required"`
	X  float64 `json:"x" validate:"min=0"`
	Y  float64 `json:"y" validate:"min=0"`
}

func (s Seat) Point() Point {
	return Point{X: s.X, Y: s.Y}
}
