// Package grid 根据座位坐标预先计算座位之间的相邻关系
//
// 两个座位相邻当且仅当它们的距离不超过 MaxDistance，并且两者之间的连线
// 没有穿过其他座位的占地矩形。相邻关系在一次求解中是静态且对称的。
package grid

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

type Options struct {
	MaxDistance float64 // 相邻搜索半径
	SeatWidth   float64 // 座位占地宽度，用于遮挡判断
	SeatHeight  float64 // 座位占地高度，用于遮挡判断
}

func DefaultOptions() Options {
	return Options{
		MaxDistance: 60,
		SeatWidth:   12,
		SeatHeight:  14,
	}
}

type Index struct {
	seats     []domain.Seat
	adjacency []*bitset.BitSet
}

func New(seats []domain.Seat, opts Options) (*Index, error) {
	if len(seats) == 0 {
		return nil, errors.New("座位列表为空")
	}
	if opts.MaxDistance <= 0 {
		return nil, fmt.Errorf("相邻搜索半径必须大于 0，当前为 %v", opts.MaxDistance)
	}

	bounds := rect{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	for _, seat := range seats {
		bounds.minX = min(bounds.minX, seat.X)
		bounds.minY = min(bounds.minY, seat.Y)
		bounds.maxX = max(bounds.maxX, seat.X)
		bounds.maxY = max(bounds.maxY, seat.Y)
	}

	tree := newQuadTree(bounds)
	for i, seat := range seats {
		tree.insert(quadPoint{x: seat.X, y: seat.Y, index: i})
	}

	g := &Index{
		seats:     seats,
		adjacency: make([]*bitset.BitSet, len(seats)),
	}
	for i := range seats {
		g.adjacency[i] = bitset.New(uint(len(seats)))
	}

	// 单方向的视线检测结果并不保证对称，这里取并集使关系对称
	for i := range seats {
		for _, j := range g.findVisible(tree, i, opts) {
			g.adjacency[i].Set(uint(j))
			g.adjacency[j].Set(uint(i))
		}
	}

	return g, nil
}

// findVisible 返回半径内、视线没有被其他座位遮挡的座位
func (g *Index) findVisible(tree *quadTree, from int, opts Options) []int {
	origin := g.seats[from]
	query := rect{
		minX: origin.X - opts.MaxDistance,
		minY: origin.Y - opts.MaxDistance,
		maxX: origin.X + opts.MaxDistance,
		maxY: origin.Y + opts.MaxDistance,
	}

	var candidates []int
	tree.searchWithin(query, func(index int) {
		if index == from {
			return
		}
		if origin.Point().Distance(g.seats[index].Point()) > opts.MaxDistance {
			return
		}
		candidates = append(candidates, index)
	})
	slices.Sort(candidates)

	visible := make([]int, 0, len(candidates))
	for _, to := range candidates {
		if !g.isOccluded(from, to, candidates, opts) {
			visible = append(visible, to)
		}
	}
	return visible
}

func (g *Index) isOccluded(from, to int, candidates []int, opts Options) bool {
	a, b := g.seats[from], g.seats[to]
	line := bresenhamLine(a.X, a.Y, b.X, b.Y)

	lineBounds := rect{
		minX: min(a.X, b.X) - 1, minY: min(a.Y, b.Y) - 1,
		maxX: max(a.X, b.X) + 1, maxY: max(a.Y, b.Y) + 1,
	}

	halfW, halfH := opts.SeatWidth/2, opts.SeatHeight/2
	for _, other := range candidates {
		if other == to {
			continue
		}
		seat := g.seats[other]
		footprint := rect{seat.X - halfW, seat.Y - halfH, seat.X + halfW, seat.Y + halfH}
		if !footprint.intersects(lineBounds) {
			continue
		}

		for _, p := range line {
			x, y := float64(p.x), float64(p.y)
			// 严格位于矩形内部才算遮挡
			if x > footprint.minX && y > footprint.minY && x < footprint.maxX && y < footprint.maxY {
				return true
			}
		}
	}

	return false
}

func (g *Index) Len() int {
	return len(g.seats)
}

func (g *Index) Seats() []domain.Seat {
	return g.seats
}

func (g *Index) Seat(i int) domain.Seat {
	return g.seats[i]
}

// Adjacent 返回座位 i 的相邻座位集合，调用方不得修改返回值
func (g *Index) Adjacent(i int) *bitset.BitSet {
	return g.adjacency[i]
}

func (g *Index) IsAdjacent(a, b int) bool {
	return g.adjacency[a].Test(uint(b))
}

func (g *Index) AdjacentCount(i int) int {
	return int(g.adjacency[i].Count())
}

func (g *Index) Distance(a, b int) float64 {
	return g.seats[a].Point().Distance(g.seats[b].Point())
}

// SeatsByAdjacencyCount 返回按相邻座位数量升序排列的座位下标，墙角和边缘的座位排在前面
func (g *Index) SeatsByAdjacencyCount() []int {
	order := make([]int, len(g.seats))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return g.AdjacentCount(a) - g.AdjacentCount(b)
	})
	return order
}
