package solver

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/grid"
)

type validator struct {
	teamCount int
	numSeats  int
	index     *grid.Index
}

func newValidator(p *problem) *validator {
	return &validator{
		teamCount: len(p.teams),
		numSeats:  len(p.seats),
		index:     p.index,
	}
}

// Validate 依次检查块大小、座位划分和块内连通性，任何一项不满足立即返回 false
func (v *validator) Validate(g *Genotype) bool {
	if len(g.Blocks) != v.teamCount+1 {
		return false
	}

	for _, block := range g.TeamBlocks() {
		if block.IsOverflow() || block.Len() != block.Team.NumMembers {
			return false
		}
	}

	if v.CheckPartition(g) != nil {
		return false
	}

	for _, block := range g.TeamBlocks() {
		if block.Len() > 1 && !v.connected(block.Seats) {
			return false
		}
	}

	return true
}

// CheckPartition 检查所有块（包括空座位块）恰好把每个座位覆盖一次
func (v *validator) CheckPartition(g *Genotype) error {
	if len(g.Blocks) == 0 || !g.Overflow().IsOverflow() {
		return errors.New("候选解缺少空座位块")
	}

	seen := bitset.New(uint(v.numSeats))
	total := 0
	for i, block := range g.Blocks {
		if block.Seats == nil {
			return fmt.Errorf("第 %d 个座位块为空指针", i)
		}
		if c := seen.IntersectionCardinality(block.Seats); c > 0 {
			return fmt.Errorf("第 %d 个座位块与其他块有 %d 个重复座位", i, c)
		}
		seen.InPlaceUnion(block.Seats)
		total += block.Len()
	}

	if total != v.numSeats || int(seen.Count()) != v.numSeats {
		return fmt.Errorf("座位块大小之和为 %d，座位总数为 %d", total, v.numSeats)
	}
	return nil
}

// connected 从块中任意一个座位出发做洪水填充，检查是否能到达块内所有座位
func (v *validator) connected(seats *bitset.BitSet) bool {
	start, ok := seats.NextSet(0)
	if !ok {
		return true
	}

	visited := bitset.New(uint(v.numSeats))
	visited.Set(start)
	queue := []int{int(start)}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next := v.index.Adjacent(current).Intersection(seats)
		next.InPlaceDifference(visited)
		for s, ok := next.NextSet(0); ok; s, ok = next.NextSet(s + 1) {
			visited.Set(s)
			queue = append(queue, int(s))
		}
	}

	return visited.Count() == seats.Count()
}
