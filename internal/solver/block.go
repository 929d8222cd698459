package solver

import (
	"math"
	"math/rand/v2"

	"github.com/bits-and-blooms/bitset"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/grid"
)

// blockSelector 在可用座位中生长出连通的座位块
type blockSelector struct {
	index            *grid.Index
	maxSeatAttempts  int
	maxBlockAttempts int
	maxFillAttempts  int
}

func newBlockSelector(index *grid.Index, params Parameters) *blockSelector {
	return &blockSelector{
		index:            index,
		maxSeatAttempts:  params.MaxSeatAttempts,
		maxBlockAttempts: params.MaxBlockAttempts,
		maxFillAttempts:  params.MaxFillAttempts,
	}
}

// SelectAdjacent 在 selected 的邻居中（限定在 available 内且不在 selected 内）
// 选出与 selected 中最远座位距离最小的座位，距离相同时取下标最小者
func (s *blockSelector) SelectAdjacent(selected, available *bitset.BitSet) (int, bool) {
	frontier := bitset.New(uint(s.index.Len()))
	chosen := members(selected)
	for _, seat := range chosen {
		frontier.InPlaceUnion(s.index.Adjacent(seat))
	}
	frontier.InPlaceIntersection(available)
	frontier.InPlaceDifference(selected)

	best, bestDistance := -1, math.Inf(1)
	for c, ok := frontier.NextSet(0); ok; c, ok = frontier.NextSet(c + 1) {
		furthest := 0.0
		for _, seat := range chosen {
			furthest = max(furthest, s.index.Distance(int(c), seat))
		}
		if furthest < bestDistance {
			best, bestDistance = int(c), furthest
		}
	}

	return best, best >= 0
}

// SelectBlock 从 start 开始在 available 中生长出最多 size 个座位的连通块
func (s *blockSelector) SelectBlock(start int, available *bitset.BitSet, size int) *bitset.BitSet {
	selected := bitset.New(uint(s.index.Len()))
	if size <= 0 {
		return selected
	}
	selected.Set(uint(start))

	// 每一步要么加入一个座位要么结束，步数上限至少要能容纳整个团队
	steps := max(s.maxSeatAttempts, size)
	for step := 0; step < steps && int(selected.Count()) < size; step++ {
		next, ok := s.SelectAdjacent(selected, available)
		if !ok {
			break
		}
		selected.Set(uint(next))
	}

	return selected
}

// SelectSeatBlock 从随机起点多次尝试生长完整的座位块
//
// 所有尝试都失败时，取最大的部分块并用随机可用座位补足 size 个，
// 这样得到的块结构完整但不连通，会被校验器判为不合法，属于正常的中间状态。
// 返回的座位数为 min(size, available 中的座位数)。
func (s *blockSelector) SelectSeatBlock(rng *rand.Rand, available *bitset.BitSet, size int) *bitset.BitSet {
	size = min(size, int(available.Count()))

	best := bitset.New(uint(s.index.Len()))
	if size <= 0 {
		return best
	}

	for attempt := 0; attempt < s.maxBlockAttempts; attempt++ {
		start, _ := randomMember(rng, available)
		selected := s.SelectBlock(start, available, size)
		if int(selected.Count()) == size {
			return selected
		}
		if selected.Count() > best.Count() {
			best = selected
		}
	}

	s.fill(rng, best, available, size)
	return best
}

// fill 用随机可用座位把 selected 补足到 size 个
func (s *blockSelector) fill(rng *rand.Rand, selected, available *bitset.BitSet, size int) {
	remaining := available.Difference(selected)

	for attempt := 0; attempt < s.maxFillAttempts && int(selected.Count()) < size; attempt++ {
		seat, ok := randomMember(rng, remaining)
		if !ok {
			return
		}
		selected.Set(uint(seat))
		remaining.Clear(uint(seat))
	}

	// 随机次数用完后按下标顺序补足
	for seat, ok := remaining.NextSet(0); ok && int(selected.Count()) < size; seat, ok = remaining.NextSet(seat + 1) {
		selected.Set(seat)
	}
}
