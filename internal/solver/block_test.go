package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

func TestSelectBlock_LineFromFirstSeat(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, lineParams())

	block := s.selector.SelectBlock(0, s.p.allSeats(), 2)
	assert.Equal(t, []int{0, 1}, members(block))

	g := &Genotype{Blocks: []Block{
		{Team: &s.p.teams[0], Seats: block},
		{Seats: s.p.allSeats().Difference(block)},
	}}
	assert.True(t, s.validator.Validate(g))
}

func TestSelectBlock_StopsWhenFrontierIsEmpty(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 3}}, lineParams())

	available := seatSet(4, 0, 1, 3)
	block := s.selector.SelectBlock(0, available, 3)
	assert.Equal(t, []int{0, 1}, members(block))
}

func TestSelectAdjacent_TightestPack(t *testing.T) {
	// 0 1 2 排成一行，3 在 1 的正上方
	seats := []domain.Seat{
		{ID: "a", X: 0, Y: 0},
		{ID: "b", X: 1, Y: 0},
		{ID: "c", X: 2, Y: 0},
		{ID: "d", X: 1, Y: 1},
	}
	s := newTestSolver(t, seats, []domain.Team{{ID: "a", NumMembers: 3}}, lineParams())

	// 已选 {0, 1}：2 到最远已选座位的距离为 2，3 为 sqrt(2)
	next, ok := s.selector.SelectAdjacent(seatSet(4, 0, 1), s.p.allSeats())
	require.True(t, ok)
	assert.Equal(t, 3, next)

	_, ok = s.selector.SelectAdjacent(seatSet(4, 0, 1), seatSet(4, 0, 1))
	assert.False(t, ok)
}

func TestSelectSeatBlock_PadsDisconnectedBlock(t *testing.T) {
	s := newTestSolver(t, lineSeats(6), []domain.Team{{ID: "a", NumMembers: 3}}, lineParams())

	available := seatSet(6, 0, 2, 4)
	block := s.selector.SelectSeatBlock(testRNG(1), available, 3)
	assert.Equal(t, []int{0, 2, 4}, members(block))
}

func TestSelectSeatBlock_CappedByAvailable(t *testing.T) {
	s := newTestSolver(t, lineSeats(6), []domain.Team{{ID: "a", NumMembers: 3}}, lineParams())

	block := s.selector.SelectSeatBlock(testRNG(1), seatSet(6, 4, 5), 3)
	assert.Equal(t, []int{4, 5}, members(block))

	block = s.selector.SelectSeatBlock(testRNG(1), seatSet(6), 3)
	assert.Zero(t, block.Count())
}

func TestSelectSeatBlock_Deterministic(t *testing.T) {
	s := newTestSolver(t, gridSeats(5, 5), []domain.Team{{ID: "a", NumMembers: 6}}, gridParams())

	first := s.selector.SelectSeatBlock(testRNG(7), s.p.allSeats(), 6)
	second := s.selector.SelectSeatBlock(testRNG(7), s.p.allSeats(), 6)
	assert.True(t, first.Equal(second))
	assert.EqualValues(t, 6, first.Count())
	assert.True(t, connectedInGrid(s.p, members(first)))
}

func TestSelectSeatBlock_LineGivesContiguousPair(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, lineParams())

	for seed := uint64(1); seed <= 5; seed++ {
		block := members(s.selector.SelectSeatBlock(testRNG(seed), s.p.allSeats(), 2))
		require.Len(t, block, 2)
		assert.Equal(t, block[0]+1, block[1], "种子 %d", seed)

		again := members(s.selector.SelectSeatBlock(testRNG(seed), s.p.allSeats(), 2))
		assert.Equal(t, block, again, "种子 %d", seed)
	}
}
