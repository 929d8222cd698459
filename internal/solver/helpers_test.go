package solver

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

func lineSeats(n int) []domain.Seat {
	seats := make([]domain.Seat, n)
	for i := range seats {
		seats[i] = domain.Seat{ID: fmt.Sprintf("s%d", i), X: float64(i), Y: 0}
	}
	return seats
}

// gridSeats 生成 rows × cols 的座位，间距 10，配合 gridParams 时只有上下左右和对角相邻
func gridSeats(rows, cols int) []domain.Seat {
	seats := make([]domain.Seat, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			seats = append(seats, domain.Seat{ID: fmt.Sprintf("r%dc%d", r, c), X: float64(c) * 10, Y: float64(r) * 10})
		}
	}
	return seats
}

func lineParams() Parameters {
	return Parameters{
		AdjacencyRadius: 1.5,
		SeatWidth:       0.5,
		SeatHeight:      0.5,
		PopulationSize:  20,
		SurvivorCount:   5,
		Parallelism:     2,
		Seed:            1,
	}
}

func gridParams() Parameters {
	return Parameters{
		AdjacencyRadius: 15,
		SeatWidth:       4,
		SeatHeight:      4,
		PopulationSize:  30,
		SurvivorCount:   6,
		MaxGenerations:  20,
		Parallelism:     2,
		Seed:            42,
	}
}

func newTestSolver(t *testing.T, seats []domain.Seat, teams []domain.Team, params Parameters) *Solver {
	t.Helper()
	s, err := New(seats, teams, params)
	require.NoError(t, err)
	return s
}

func seatSet(n int, seats ...int) *bitset.BitSet {
	set := bitset.New(uint(n))
	for _, s := range seats {
		set.Set(uint(s))
	}
	return set
}

// genotype 按团队顺序构造候选解，最后一组座位是空座位块
func genotype(p *problem, blocks ...[]int) *Genotype {
	g := &Genotype{}
	for i, seats := range blocks {
		block := Block{Seats: seatSet(len(p.seats), seats...)}
		if i < len(p.teams) {
			block.Team = &p.teams[i]
		}
		g.Blocks = append(g.Blocks, block)
	}
	return g
}

func testRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// connectedInGrid 独立于校验器的连通性检查
func connectedInGrid(p *problem, seats []int) bool {
	if len(seats) <= 1 {
		return true
	}
	in := make(map[int]bool, len(seats))
	for _, s := range seats {
		in[s] = true
	}

	visited := map[int]bool{seats[0]: true}
	stack := []int{seats[0]}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range seats {
			if !visited[s] && p.index.IsAdjacent(cur, s) {
				visited[s] = true
				stack = append(stack, s)
			}
		}
	}
	return len(visited) == len(seats)
}

func assertPartition(t *testing.T, p *problem, g *Genotype) {
	t.Helper()
	counts := make([]int, len(p.seats))
	for _, block := range g.Blocks {
		for _, s := range members(block.Seats) {
			counts[s]++
		}
	}
	for s, c := range counts {
		require.Equal(t, 1, c, "座位 %d 出现了 %d 次", s, c)
	}
}
