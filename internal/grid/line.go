package grid

import "math"

type cell struct {
	x, y int
}

// bresenhamLine 返回从 (x0, y0) 到 (x1, y1) 经过的所有整数格点（包含两个端点）
// 坐标先四舍五入到整数，保证循环一定终止
func bresenhamLine(fx0, fy0, fx1, fy1 float64) []cell {
	x0, y0 := int(math.Round(fx0)), int(math.Round(fy0))
	x1, y1 := int(math.Round(fx1)), int(math.Round(fy1))

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	line := make([]cell, 0, max(dx, -dy)+1)
	err := dx + dy
	for {
		line = append(line, cell{x0, y0})
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}

	return line
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
