package solver

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

const (
	greedyMaxTeamTries     = 10 // 放置种子团队的最大尝试次数
	greedyCornerCandidates = 10 // 种子团队的起点从相邻座位最少的前若干个可用座位中随机选择
	greedyMaxPartners      = 4  // 每个种子团队最多紧挨着放置的相邻需求团队数
)

// GenotypeFactory 生成初始种群中的个体
type GenotypeFactory interface {
	NewGenotype(rng *rand.Rand) *Genotype
}

func newGenotypeFactory(p *problem, selector *blockSelector) GenotypeFactory {
	if p.params.Strategy == StrategyNaive {
		return newNaiveFactory(p, selector)
	}
	return newGreedyFactory(p, selector)
}

// teamsBySize 返回按人数降序排列的团队下标，人数相同时保持输入顺序
func teamsBySize(p *problem) []int {
	order := make([]int, len(p.teams))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(p.teams[b].NumMembers, p.teams[a].NumMembers)
	})
	return order
}

type naiveFactory struct {
	p        *problem
	selector *blockSelector
	order    []int
}

func newNaiveFactory(p *problem, selector *blockSelector) *naiveFactory {
	return &naiveFactory{
		p:        p,
		selector: selector,
		order:    teamsBySize(p),
	}
}

// NewGenotype 按人数从大到小依次在剩余座位中为每个团队选座
func (f *naiveFactory) NewGenotype(rng *rand.Rand) *Genotype {
	available := f.p.allSeats()
	blocks := make([]Block, len(f.p.teams)+1)

	for _, t := range f.order {
		seats := f.selector.SelectSeatBlock(rng, available, f.p.teams[t].NumMembers)
		available.InPlaceDifference(seats)
		blocks[t] = Block{Team: &f.p.teams[t], Seats: seats}
	}
	blocks[len(f.p.teams)] = Block{Seats: available}

	return &Genotype{Blocks: blocks}
}

// greedyFactory 先把大团队放到边角等难以利用的位置，再把它们希望相邻的团队紧挨着放下
type greedyFactory struct {
	p                *problem
	selector         *blockSelector
	bySize           []int
	seatsByAdjacency []int
	partners         [][]int // {团队下标: 按有效权重降序排列的相邻需求团队下标}
}

func newGreedyFactory(p *problem, selector *blockSelector) *greedyFactory {
	f := &greedyFactory{
		p:                p,
		selector:         selector,
		bySize:           teamsBySize(p),
		seatsByAdjacency: p.index.SeatsByAdjacencyCount(),
		partners:         make([][]int, len(p.teams)),
	}

	for t := range p.teams {
		weights := p.teams[t].EffectiveWeightsByTeamID()
		partners := make([]int, 0, len(weights))
		for id := range weights {
			q, ok := p.teamByID[id]
			if !ok || q == t {
				continue
			}
			partners = append(partners, q)
		}
		slices.SortFunc(partners, func(a, b int) int {
			wa, wb := weights[p.teams[a].ID], weights[p.teams[b].ID]
			if c := cmp.Compare(wb, wa); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		f.partners[t] = partners
	}

	return f
}

func (f *greedyFactory) NewGenotype(rng *rand.Rand) *Genotype {
	available := f.p.allSeats()
	blocks := make([]Block, len(f.p.teams)+1)
	placed := make([]bool, len(f.p.teams))

	seeds := slices.Clone(f.bySize[:min(f.p.params.GreedySeedTeams, len(f.bySize))])
	rng.Shuffle(len(seeds), func(i, j int) {
		seeds[i], seeds[j] = seeds[j], seeds[i]
	})

	for _, t := range seeds {
		if placed[t] {
			continue
		}
		f.placeSeedTeam(rng, t, available, blocks, placed)
	}

	// 剩余的团队按人数从大到小普通放置
	for _, t := range f.bySize {
		if placed[t] {
			continue
		}
		seats := f.selector.SelectSeatBlock(rng, available, f.p.teams[t].NumMembers)
		available.InPlaceDifference(seats)
		blocks[t] = Block{Team: &f.p.teams[t], Seats: seats}
		placed[t] = true
	}
	blocks[len(f.p.teams)] = Block{Seats: available}

	return &Genotype{Blocks: blocks}
}

// placeSeedTeam 从相邻座位最少的可用座位出发放置团队 t，成功后紧接着放置它的相邻需求团队
func (f *greedyFactory) placeSeedTeam(rng *rand.Rand, t int, available *bitset.BitSet, blocks []Block, placed []bool) {
	size := f.p.teams[t].NumMembers

	for try := 0; try < greedyMaxTeamTries; try++ {
		candidates := make([]int, 0, greedyCornerCandidates)
		for _, seat := range f.seatsByAdjacency {
			if available.Test(uint(seat)) {
				candidates = append(candidates, seat)
				if len(candidates) == greedyCornerCandidates {
					break
				}
			}
		}
		if len(candidates) == 0 {
			return
		}

		start := candidates[rng.IntN(len(candidates))]
		seed := f.selector.SelectBlock(start, available, size)
		if int(seed.Count()) != size {
			continue
		}
		available.InPlaceDifference(seed)
		blocks[t] = Block{Team: &f.p.teams[t], Seats: seed}
		placed[t] = true

		n := 0
		for _, q := range f.partners[t] {
			if n == greedyMaxPartners {
				break
			}
			if placed[q] {
				continue
			}
			n++

			// 失败的相邻团队留给后面的普通放置
			start, ok := f.selector.SelectAdjacent(seed, available)
			if !ok {
				continue
			}
			block := f.selector.SelectBlock(start, available, f.p.teams[q].NumMembers)
			if int(block.Count()) != f.p.teams[q].NumMembers {
				continue
			}
			available.InPlaceDifference(block)
			blocks[q] = Block{Team: &f.p.teams[q], Seats: block}
			placed[q] = true
		}
		return
	}
}
