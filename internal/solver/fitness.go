package solver

import (
	"math"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

// blockStats: 只依赖座位集合本身的派生量，与属于哪个团队无关
type blockStats struct {
	meanDistance float64      // 块内两两座位距离的平均值
	centroid     domain.Point // 块的重心
	furthestSeat int          // 到块内其他座位距离之和最大的座位
}

func computeBlockStats(p *problem, seats *bitset.BitSet) *blockStats {
	chosen := members(seats)
	stats := &blockStats{furthestSeat: -1}
	if len(chosen) == 0 {
		return stats
	}

	var sumX, sumY float64
	for _, s := range chosen {
		sumX += p.seats[s].X
		sumY += p.seats[s].Y
	}
	stats.centroid = domain.Point{X: sumX / float64(len(chosen)), Y: sumY / float64(len(chosen))}

	sums := make([]float64, len(chosen))
	total, pairs := 0.0, 0
	for i := 0; i < len(chosen); i++ {
		for j := i + 1; j < len(chosen); j++ {
			d := p.index.Distance(chosen[i], chosen[j])
			total += d
			sums[i] += d
			sums[j] += d
			pairs++
		}
	}
	if pairs > 0 {
		stats.meanDistance = total / float64(pairs)
	}

	stats.furthestSeat = chosen[0]
	worst := sums[0]
	for i := 1; i < len(chosen); i++ {
		if sums[i] > worst {
			worst = sums[i]
			stats.furthestSeat = chosen[i]
		}
	}

	return stats
}

type FitnessBreakdown struct {
	Intra     float64 `json:"intra"`
	Adjacency float64 `json:"adjacency"`
	Proximity float64 `json:"proximity"`
	Total     float64 `json:"total"`
}

// Evaluator 计算候选解的适应度（越小越好）
//
// 块的派生量按 bitset 指针缓存。块一旦放入 Genotype 就不再修改，
// 所以指针相同即内容相同。缓存只保留当前代和上一代。
type Evaluator struct {
	p *problem

	mu       sync.RWMutex
	current  map[*bitset.BitSet]*blockStats
	previous map[*bitset.BitSet]*blockStats
}

func newEvaluator(p *problem) *Evaluator {
	return &Evaluator{
		p:        p,
		current:  make(map[*bitset.BitSet]*blockStats),
		previous: make(map[*bitset.BitSet]*blockStats),
	}
}

func (e *Evaluator) stats(seats *bitset.BitSet) *blockStats {
	e.mu.RLock()
	s, ok := e.current[seats]
	fromPrevious := false
	if !ok {
		s, ok = e.previous[seats]
		fromPrevious = ok
	}
	e.mu.RUnlock()

	if ok && !fromPrevious {
		return s
	}
	if !ok {
		s = computeBlockStats(e.p, seats)
	}

	e.mu.Lock()
	e.current[seats] = s
	e.mu.Unlock()
	return s
}

// nextGeneration 丢弃两代以前的缓存，只由主 goroutine 在两代之间调用
func (e *Evaluator) nextGeneration() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.previous = e.current
	e.current = make(map[*bitset.BitSet]*blockStats, len(e.previous))
}

func (e *Evaluator) Score(g *Genotype) float64 {
	return e.Breakdown(g).Total
}

/**
 * 计算适应度的各个组成部分
 * total = IntraWeight * f(intra) + g(adjacency) + ProximityWeight * proximity
 * 其中:
 * 		1. intra 为每个团队块内平均两两距离（可取 IntraPower 次方）
 * 		2. adjacency 为每条相邻需求两个团队重心的距离乘以有效权重，缺失的目标团队不计入
 * 		3. proximity 为希望靠近某点的团队到该点最远座位距离的 1.5 次方乘以 10
 * 		4. f 和 g 由 IntraAggregation 和 AdjAggregation 决定
 */
func (e *Evaluator) Breakdown(g *Genotype) FitnessBreakdown {
	params := e.p.params
	teamBlocks := g.TeamBlocks()

	intra := make([]float64, 0, len(teamBlocks))
	var adjacency []float64
	proximity := 0.0

	for _, block := range teamBlocks {
		st := e.stats(block.Seats)

		cost := st.meanDistance
		if params.IntraPower != 1 {
			cost = math.Pow(cost, params.IntraPower)
		}
		intra = append(intra, cost)

		for _, adj := range block.Team.WantsAdjacent {
			q, ok := e.p.teamByID[adj.ID]
			if !ok || q >= len(teamBlocks) {
				continue
			}
			other := e.stats(g.Blocks[q].Seats)
			d := math.Abs(st.centroid.Distance(other.centroid)) * adj.EffectiveWeight()
			if d > 0 {
				adjacency = append(adjacency, d)
			}
		}

		if block.Team.WantsProximity != nil {
			proximity += pinnedCost(e.p, block.Seats, *block.Team.WantsProximity)
		}
	}

	var b FitnessBreakdown
	b.Intra = params.IntraWeight * aggregate(intra, params.IntraAggregation, params.IntraPercentile)
	b.Adjacency = aggregate(adjacency, params.AdjAggregation, params.AdjPercentile)
	b.Proximity = params.ProximityWeight * proximity
	b.Total = b.Intra + b.Adjacency + b.Proximity
	return b
}

func pinnedCost(p *problem, seats *bitset.BitSet, target domain.Point) float64 {
	furthest := 0.0
	for s, ok := seats.NextSet(0); ok; s, ok = seats.NextSet(s + 1) {
		furthest = max(furthest, p.seats[s].Point().Distance(target))
	}
	return math.Pow(furthest, 1.5) * 10
}

func aggregate(values []float64, mode Aggregation, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}

	switch mode {
	case AggregationSum:
		return sum(values)
	case AggregationMean:
		return sum(values) / float64(len(values))
	case AggregationPercentile:
		return nearestRank(values, percentile)
	default:
		return sum(values) * stddev(values)
	}
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// stddev 计算总体标准差
func stddev(values []float64) float64 {
	mean := sum(values) / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func nearestRank(values []float64, percentile float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	rank := int(math.Ceil(percentile*float64(len(sorted)))) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}
