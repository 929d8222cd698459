package solver

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// Operator: 变异或交叉算子
//
// Apply 从不修改传入的父代；无法完成时原样返回父代。
type Operator interface {
	Name() string
	Arity() int
	Probability() float64
	Apply(rng *rand.Rand, parents []*Genotype) []*Genotype
	Counts() (changed, noop int64)
}

func newOperator(spec OperatorSpec, p *problem, selector *blockSelector) (Operator, error) {
	base := &operatorBase{
		kind:        spec.Kind,
		probability: spec.Probability,
		maxRetries:  max(spec.MaxRetries, 1),
		p:           p,
		selector:    selector,
	}

	switch spec.Kind {
	case OperatorBlockSwap:
		return &BlockSwap{base}, nil
	case OperatorBlockSwapCrossover:
		return &BlockSwapCrossover{base}, nil
	case OperatorBoundarySeatSwap:
		return &BoundarySeatSwap{base}, nil
	case OperatorThreeWayRebalance:
		return &ThreeWayRebalance{base}, nil
	case OperatorOverflowSwap:
		return &OverflowSwap{base}, nil
	case OperatorNearestSeatRelocate:
		return &NearestSeatRelocate{base}, nil
	default:
		return nil, fmt.Errorf("%w: 未知的算子 %q", ErrInvalidParameter, spec.Kind)
	}
}

type operatorBase struct {
	kind        OperatorKind
	probability float64
	maxRetries  int
	p           *problem
	selector    *blockSelector

	changed atomic.Int64
	noop    atomic.Int64
}

func (o *operatorBase) Name() string {
	return string(o.kind)
}

func (o *operatorBase) Arity() int {
	return 1
}

func (o *operatorBase) Probability() float64 {
	return o.probability
}

func (o *operatorBase) Counts() (int64, int64) {
	return o.changed.Load(), o.noop.Load()
}

func (o *operatorBase) done(child *Genotype, parents []*Genotype) []*Genotype {
	if child == nil {
		o.noop.Add(1)
		return parents
	}
	o.changed.Add(1)
	return []*Genotype{child}
}

// frontier 返回与 seats 相邻但不属于 seats 的座位
func (p *problem) frontier(seats *bitset.BitSet) *bitset.BitSet {
	result := p.newSet()
	for s, ok := seats.NextSet(0); ok; s, ok = seats.NextSet(s + 1) {
		result.InPlaceUnion(p.index.Adjacent(int(s)))
	}
	result.InPlaceDifference(seats)
	return result
}

// neighborTeams 返回与团队块 a 相邻的其他团队块下标（升序）
func (p *problem) neighborTeams(g *Genotype, a int) []int {
	owner := g.owners(len(p.seats))
	frontier := p.frontier(g.Blocks[a].Seats)

	seen := make([]bool, len(g.Blocks))
	for s, ok := frontier.NextSet(0); ok; s, ok = frontier.NextSet(s + 1) {
		if k := owner[s]; k >= 0 && k != a && k != g.overflowIndex() {
			seen[k] = true
		}
	}

	var result []int
	for k, ok := range seen {
		if ok {
			result = append(result, k)
		}
	}
	return result
}

// BlockSwap: 交换两个人数相同的团队的整个座位块
type BlockSwap struct {
	*operatorBase
}

func (o *BlockSwap) Apply(rng *rand.Rand, parents []*Genotype) []*Genotype {
	g := parents[0]
	teams := len(g.TeamBlocks())

	for try := 0; try < o.maxRetries; try++ {
		a, b := rng.IntN(teams), rng.IntN(teams)
		if a == b || g.Blocks[a].Len() != g.Blocks[b].Len() {
			continue
		}

		child := g.clone()
		child.Blocks[a].Seats, child.Blocks[b].Seats = g.Blocks[b].Seats, g.Blocks[a].Seats
		return o.done(child, parents)
	}

	return o.done(nil, parents)
}

// BlockSwapCrossover: 两个父代互换同一个团队的座位块
//
// 子代中被移植进来的座位原本的主人，按距离从近到远换到该团队腾出的座位上，
// 因此子代仍然是座位的一个划分。
type BlockSwapCrossover struct {
	*operatorBase
}

func (o *BlockSwapCrossover) Arity() int {
	return 2
}

func (o *BlockSwapCrossover) Apply(rng *rand.Rand, parents []*Genotype) []*Genotype {
	a, b := parents[0], parents[1]
	teams := len(a.TeamBlocks())

	for try := 0; try < o.maxRetries; try++ {
		t := rng.IntN(teams)
		if a.Blocks[t].Seats.Equal(b.Blocks[t].Seats) {
			continue
		}

		childA := o.transplant(a, t, b.Blocks[t].Seats)
		childB := o.transplant(b, t, a.Blocks[t].Seats)
		if childA == nil || childB == nil {
			continue
		}

		o.changed.Add(1)
		return []*Genotype{childA, childB}
	}

	o.noop.Add(1)
	return parents
}

func (o *BlockSwapCrossover) transplant(g *Genotype, t int, target *bitset.BitSet) *Genotype {
	old := g.Blocks[t].Seats
	if old.Count() != target.Count() {
		return nil
	}

	taken := target.Difference(old)
	freed := members(old.Difference(target))
	used := make([]bool, len(freed))
	owner := g.owners(len(o.p.seats))

	child := g.clone()
	child.Blocks[t].Seats = target

	rebuilt := make(map[int]*bitset.BitSet)
	for s, ok := taken.NextSet(0); ok; s, ok = taken.NextSet(s + 1) {
		k := owner[s]
		if k < 0 {
			return nil
		}
		seats, exists := rebuilt[k]
		if !exists {
			seats = g.Blocks[k].Seats.Clone()
			rebuilt[k] = seats
		}

		nearest := -1
		for j, f := range freed {
			if used[j] {
				continue
			}
			if nearest < 0 || o.p.index.Distance(int(s), f) < o.p.index.Distance(int(s), freed[nearest]) {
				nearest = j
			}
		}
		used[nearest] = true

		seats.Clear(s)
		seats.Set(uint(freed[nearest]))
	}

	for k, seats := range rebuilt {
		child.Blocks[k].Seats = seats
	}
	return child
}

// BoundarySeatSwap: 与相邻团队在边界上各交换一个座位
type BoundarySeatSwap struct {
	*operatorBase
}

func (o *BoundarySeatSwap) Apply(rng *rand.Rand, parents []*Genotype) []*Genotype {
	g := parents[0]
	teams := len(g.TeamBlocks())

	for try := 0; try < o.maxRetries; try++ {
		a := rng.IntN(teams)
		neighbors := o.p.neighborTeams(g, a)
		if len(neighbors) == 0 {
			continue
		}
		b := neighbors[rng.IntN(len(neighbors))]

		seatsA, seatsB := g.Blocks[a].Seats, g.Blocks[b].Seats
		// toA: B 中与 A 相邻的座位；toB: A 中与 B 相邻的座位
		toA := o.p.frontier(seatsA).Intersection(seatsB)
		toB := o.p.frontier(seatsB).Intersection(seatsA)

		x, okX := randomMember(rng, toA)
		y, okY := randomMember(rng, toB)
		if !okX || !okY {
			continue
		}

		newA := seatsA.Clone().Clear(uint(y)).Set(uint(x))
		newB := seatsB.Clone().Clear(uint(x)).Set(uint(y))

		child := g.clone()
		child.Blocks[a].Seats = newA
		child.Blocks[b].Seats = newB
		return o.done(child, parents)
	}

	return o.done(nil, parents)
}

// ThreeWayRebalance: 团队 A 和相邻团队 B 合起来与人数等于两者之和的团队 C 交换位置
//
// A 在 C 原来的座位中重新生长，B 取 C 剩下的座位，C 搬到 A 和 B 原来的座位上。
type ThreeWayRebalance struct {
	*operatorBase
}

func (o *ThreeWayRebalance) Apply(rng *rand.Rand, parents []*Genotype) []*Genotype {
	g := parents[0]
	teams := len(g.TeamBlocks())

	for try := 0; try < o.maxRetries; try++ {
		a := rng.IntN(teams)
		neighbors := o.p.neighborTeams(g, a)
		if len(neighbors) == 0 {
			continue
		}
		b := neighbors[rng.IntN(len(neighbors))]

		total := g.Blocks[a].Len() + g.Blocks[b].Len()
		var donors []int
		for c := 0; c < teams; c++ {
			if c != a && c != b && g.Blocks[c].Len() == total {
				donors = append(donors, c)
			}
		}
		if len(donors) == 0 {
			continue
		}
		c := donors[rng.IntN(len(donors))]

		pool := g.Blocks[c].Seats
		newA := o.selector.SelectSeatBlock(rng, pool, g.Blocks[a].Len())
		newB := pool.Difference(newA)
		newC := g.Blocks[a].Seats.Union(g.Blocks[b].Seats)

		child := g.clone()
		child.Blocks[a].Seats = newA
		child.Blocks[b].Seats = newB
		child.Blocks[c].Seats = newC
		return o.done(child, parents)
	}

	return o.done(nil, parents)
}

// OverflowSwap: 团队搬到空座位中重新生长，原来的座位归还给空座位块
type OverflowSwap struct {
	*operatorBase
}

func (o *OverflowSwap) Apply(rng *rand.Rand, parents []*Genotype) []*Genotype {
	g := parents[0]
	a := rng.IntN(len(g.TeamBlocks()))
	overflow := g.Overflow().Seats
	size := g.Blocks[a].Len()

	if size == 0 || int(overflow.Count()) < size {
		return o.done(nil, parents)
	}

	newA := o.selector.SelectSeatBlock(rng, overflow, size)
	if newA.Count() != uint(size) {
		return o.done(nil, parents)
	}
	newOverflow := overflow.Union(g.Blocks[a].Seats)
	newOverflow.InPlaceDifference(newA)

	child := g.clone()
	child.Blocks[a].Seats = newA
	child.Blocks[g.overflowIndex()].Seats = newOverflow
	return o.done(child, parents)
}

// NearestSeatRelocate: 把团队中离其他成员最远的座位，
// 与紧挨着团队的、属于另一个团队的最近座位交换
type NearestSeatRelocate struct {
	*operatorBase
}

func (o *NearestSeatRelocate) Apply(rng *rand.Rand, parents []*Genotype) []*Genotype {
	g := parents[0]
	teams := len(g.TeamBlocks())
	all := o.p.allSeats()

	for try := 0; try < o.maxRetries; try++ {
		a := rng.IntN(teams)
		seatsA := g.Blocks[a].Seats

		candidate, ok := o.selector.SelectAdjacent(seatsA, all)
		if !ok {
			continue
		}

		b := -1
		for k, block := range g.TeamBlocks() {
			if k != a && block.Seats.Test(uint(candidate)) {
				b = k
				break
			}
		}
		if b < 0 {
			continue
		}

		furthest := computeBlockStats(o.p, seatsA).furthestSeat
		if furthest < 0 {
			continue
		}

		newA := seatsA.Clone().Clear(uint(furthest)).Set(uint(candidate))
		newB := g.Blocks[b].Seats.Clone().Clear(uint(candidate)).Set(uint(furthest))

		child := g.clone()
		child.Blocks[a].Seats = newA
		child.Blocks[b].Seats = newB
		return o.done(child, parents)
	}

	return o.done(nil, parents)
}
