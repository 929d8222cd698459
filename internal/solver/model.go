package solver

import (
	"hash/fnv"
	"math/rand/v2"

	"github.com/bits-and-blooms/bitset"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/grid"
)

// problem: 一次求解中所有 goroutine 只读共享的输入
type problem struct {
	seats    []domain.Seat
	teams    []domain.Team
	index    *grid.Index
	teamByID map[string]int // {teamID: 团队下标}
	params   Parameters
}

func (p *problem) newSet() *bitset.BitSet {
	return bitset.New(uint(len(p.seats)))
}

func (p *problem) allSeats() *bitset.BitSet {
	return p.newSet().FlipRange(0, uint(len(p.seats)))
}

// Block: 一个团队的座位块，Team 为 nil 时表示空座位块
//
// Seats 一旦放进 Genotype 就不再修改，变异时总是创建新的 bitset。
type Block struct {
	Team  *domain.Team
	Seats *bitset.BitSet
}

func (b Block) IsOverflow() bool {
	return b.Team == nil
}

func (b Block) Len() int {
	return int(b.Seats.Count())
}

// Genotype: 一个完整的候选解
//
// Blocks[i] 对应输入中的第 i 个团队，最后一个块是空座位块。
type Genotype struct {
	Blocks []Block
}

func (g *Genotype) TeamBlocks() []Block {
	return g.Blocks[:len(g.Blocks)-1]
}

func (g *Genotype) Overflow() Block {
	return g.Blocks[len(g.Blocks)-1]
}

func (g *Genotype) overflowIndex() int {
	return len(g.Blocks) - 1
}

// clone 只复制块切片，座位集合在副本之间共享
func (g *Genotype) clone() *Genotype {
	blocks := make([]Block, len(g.Blocks))
	copy(blocks, g.Blocks)
	return &Genotype{Blocks: blocks}
}

// owners 返回 {座位下标: 块下标}
func (g *Genotype) owners(numSeats int) []int {
	owner := make([]int, numSeats)
	for i := range owner {
		owner[i] = -1
	}
	for b, block := range g.Blocks {
		for s, ok := block.Seats.NextSet(0); ok; s, ok = block.Seats.NextSet(s + 1) {
			if int(s) < numSeats {
				owner[s] = b
			}
		}
	}
	return owner
}

type Individual struct {
	Genotype *Genotype
	Fitness  float64
	Valid    bool
	Age      int
}

// better 报告 a 是否优于 b：合法解总是优于不合法解，其次比较适应度
func better(a, b *Individual) bool {
	if a.Valid != b.Valid {
		return a.Valid
	}
	return a.Fitness < b.Fitness
}

func members(set *bitset.BitSet) []int {
	result := make([]int, 0, set.Count())
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		result = append(result, int(i))
	}
	return result
}

// nthMember 返回集合中第 k 个（从 0 开始）座位
func nthMember(set *bitset.BitSet, k int) int {
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		if k == 0 {
			return int(i)
		}
		k--
	}
	return -1
}

func randomMember(rng *rand.Rand, set *bitset.BitSet) (int, bool) {
	count := int(set.Count())
	if count == 0 {
		return 0, false
	}
	return nthMember(set, rng.IntN(count)), true
}

func (p *problem) assignments(g *Genotype) []domain.TeamAssignment {
	result := make([]domain.TeamAssignment, 0, len(g.Blocks))
	for _, block := range g.Blocks {
		ids := make([]string, 0, block.Len())
		for _, s := range members(block.Seats) {
			ids = append(ids, p.seats[s].ID)
		}

		assignment := domain.TeamAssignment{Seats: ids}
		if !block.IsOverflow() {
			teamID := block.Team.ID
			assignment.TeamID = &teamID
		}
		result = append(result, assignment)
	}
	return result
}

func (p *problem) assignmentResult(ind *Individual) domain.AssignmentResult {
	return domain.AssignmentResult{
		TeamAssignments: p.assignments(ind.Genotype),
		Fitness:         ind.Fitness,
		Valid:           ind.Valid,
	}
}

type SeatPosition struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// BlockLayout: 供可视化使用的座位块信息
type BlockLayout struct {
	TeamID   string         `json:"teamID,omitempty"`
	Overflow bool           `json:"overflow"`
	ColorKey uint32         `json:"colorKey"`
	Seats    []SeatPosition `json:"seats"`
}

// ColorKey 根据团队 ID 生成稳定的分组颜色键
func ColorKey(teamID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(teamID))
	return h.Sum32()
}

func (p *problem) layouts(g *Genotype) []BlockLayout {
	result := make([]BlockLayout, 0, len(g.Blocks))
	for _, block := range g.Blocks {
		layout := BlockLayout{Overflow: block.IsOverflow()}
		if !block.IsOverflow() {
			layout.TeamID = block.Team.ID
			layout.ColorKey = ColorKey(block.Team.ID)
		}
		for _, s := range members(block.Seats) {
			seat := p.seats[s]
			layout.Seats = append(layout.Seats, SeatPosition{ID: seat.ID, X: seat.X, Y: seat.Y})
		}
		result = append(result, layout)
	}
	return result
}
