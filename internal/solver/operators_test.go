package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

func allOperators(t *testing.T, s *Solver) []Operator {
	t.Helper()
	var ops []Operator
	for _, spec := range DefaultOperators() {
		op, err := newOperator(spec, s.p, s.selector)
		require.NoError(t, err)
		ops = append(ops, op)
	}
	return ops
}

func applyOperator(op Operator, seed uint64, g, other *Genotype) []*Genotype {
	if op.Arity() == 2 {
		return op.Apply(testRNG(seed), []*Genotype{g, other})
	}
	return op.Apply(testRNG(seed), []*Genotype{g})
}

func TestOperators_NoopOnSingleSeat(t *testing.T) {
	s := newTestSolver(t, lineSeats(1), []domain.Team{{ID: "a", NumMembers: 1}}, lineParams())
	g := genotype(s.p, []int{0}, []int{})

	for _, op := range allOperators(t, s) {
		t.Run(op.Name(), func(t *testing.T) {
			out := applyOperator(op, 1, g, g)
			for _, child := range out {
				assert.Same(t, g, child)
			}
			assertPartition(t, s.p, out[0])

			changed, noop := op.Counts()
			assert.Zero(t, changed)
			assert.EqualValues(t, 1, noop)
		})
	}
}

func TestOperators_PreservePartitionAndSizes(t *testing.T) {
	teams := []domain.Team{
		{ID: "a", NumMembers: 3, WantsAdjacent: []domain.Adjacency{{ID: "b", Weight: 1}}},
		{ID: "b", NumMembers: 3},
		{ID: "c", NumMembers: 6},
		{ID: "d", NumMembers: 2},
		{ID: "e", NumMembers: 2},
	}
	s := newTestSolver(t, gridSeats(6, 6), teams, gridParams())
	ops := allOperators(t, s)

	for seed := uint64(1); seed <= 30; seed++ {
		g := s.factory.NewGenotype(testRNG(seed))
		other := s.factory.NewGenotype(testRNG(seed + 1000))
		gBefore, otherBefore := g.clone(), other.clone()

		for _, op := range ops {
			for _, child := range applyOperator(op, seed, g, other) {
				require.NoError(t, s.validator.CheckPartition(child), "%s seed %d", op.Name(), seed)
				for i, block := range child.TeamBlocks() {
					assert.Equal(t, teams[i].NumMembers, block.Len(), "%s seed %d", op.Name(), seed)
				}
			}
		}

		// 父代不被修改
		for i := range g.Blocks {
			assert.True(t, g.Blocks[i].Seats.Equal(gBefore.Blocks[i].Seats))
			assert.True(t, other.Blocks[i].Seats.Equal(otherBefore.Blocks[i].Seats))
		}
	}
}

func TestBlockSwap_ExchangesEqualSizedBlocks(t *testing.T) {
	teams := []domain.Team{{ID: "a", NumMembers: 2}, {ID: "b", NumMembers: 2}}
	s := newTestSolver(t, lineSeats(4), teams, lineParams())
	op, err := newOperator(OperatorSpec{Kind: OperatorBlockSwap, Probability: 1, MaxRetries: 50}, s.p, s.selector)
	require.NoError(t, err)

	g := genotype(s.p, []int{0, 1}, []int{2, 3}, []int{})
	out := op.Apply(testRNG(1), []*Genotype{g})

	require.Len(t, out, 1)
	assert.Equal(t, []int{2, 3}, members(out[0].Blocks[0].Seats))
	assert.Equal(t, []int{0, 1}, members(out[0].Blocks[1].Seats))
}

func TestOverflowSwap_MovesIntoFreeSeats(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, lineParams())
	op, err := newOperator(OperatorSpec{Kind: OperatorOverflowSwap, Probability: 1}, s.p, s.selector)
	require.NoError(t, err)

	g := genotype(s.p, []int{0, 1}, []int{2, 3})
	out := op.Apply(testRNG(1), []*Genotype{g})

	assert.Equal(t, []int{2, 3}, members(out[0].Blocks[0].Seats))
	assert.Equal(t, []int{0, 1}, members(out[0].Overflow().Seats))
}

func TestOverflowSwap_AbortsWhenOverflowTooSmall(t *testing.T) {
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 3}}, lineParams())
	op, err := newOperator(OperatorSpec{Kind: OperatorOverflowSwap, Probability: 1}, s.p, s.selector)
	require.NoError(t, err)

	g := genotype(s.p, []int{0, 1, 2}, []int{3})
	assert.Same(t, g, op.Apply(testRNG(1), []*Genotype{g})[0])
}

func TestBoundarySeatSwap_KeepsSizes(t *testing.T) {
	teams := []domain.Team{{ID: "a", NumMembers: 2}, {ID: "b", NumMembers: 2}}
	s := newTestSolver(t, lineSeats(4), teams, lineParams())
	op, err := newOperator(OperatorSpec{Kind: OperatorBoundarySeatSwap, Probability: 1, MaxRetries: 10}, s.p, s.selector)
	require.NoError(t, err)

	g := genotype(s.p, []int{0, 1}, []int{2, 3}, []int{})
	out := op.Apply(testRNG(1), []*Genotype{g})

	// 唯一的边界对是 1 和 2
	assert.Equal(t, []int{0, 2}, members(out[0].Blocks[0].Seats))
	assert.Equal(t, []int{1, 3}, members(out[0].Blocks[1].Seats))
}

func TestNearestSeatRelocate_SwapsFurthestSeat(t *testing.T) {
	teams := []domain.Team{{ID: "a", NumMembers: 3}, {ID: "b", NumMembers: 3}}
	s := newTestSolver(t, lineSeats(6), teams, lineParams())
	op, err := newOperator(OperatorSpec{Kind: OperatorNearestSeatRelocate, Probability: 1, MaxRetries: 20}, s.p, s.selector)
	require.NoError(t, err)

	// a 占 {0, 1, 3}，b 占 {2, 4, 5}
	g := genotype(s.p, []int{0, 1, 3}, []int{2, 4, 5}, []int{})
	out := op.Apply(testRNG(1), []*Genotype{g})
	require.NotSame(t, g, out[0])

	for _, child := range out {
		assert.NoError(t, s.validator.CheckPartition(child))
		assert.Equal(t, 3, child.Blocks[0].Len())
		assert.Equal(t, 3, child.Blocks[1].Len())
	}
}

func TestThreeWayRebalance(t *testing.T) {
	teams := []domain.Team{
		{ID: "a", NumMembers: 1},
		{ID: "b", NumMembers: 1},
		{ID: "c", NumMembers: 2},
	}
	s := newTestSolver(t, lineSeats(4), teams, lineParams())
	op, err := newOperator(OperatorSpec{Kind: OperatorThreeWayRebalance, Probability: 1, MaxRetries: 50}, s.p, s.selector)
	require.NoError(t, err)

	g := genotype(s.p, []int{0}, []int{1}, []int{2, 3}, []int{})
	out := op.Apply(testRNG(1), []*Genotype{g})[0]

	require.NoError(t, s.validator.CheckPartition(out))
	assert.Equal(t, []int{0, 1}, members(out.Blocks[2].Seats))
	assert.ElementsMatch(t, []int{2, 3}, append(members(out.Blocks[0].Seats), members(out.Blocks[1].Seats)...))
}

func TestBlockSwapCrossover_ChildrenArePartitions(t *testing.T) {
	teams := []domain.Team{{ID: "a", NumMembers: 2}, {ID: "b", NumMembers: 2}}
	s := newTestSolver(t, lineSeats(6), teams, lineParams())
	op, err := newOperator(OperatorSpec{Kind: OperatorBlockSwapCrossover, Probability: 1, MaxRetries: 50}, s.p, s.selector)
	require.NoError(t, err)

	x := genotype(s.p, []int{0, 1}, []int{2, 3}, []int{4, 5})
	y := genotype(s.p, []int{4, 5}, []int{0, 1}, []int{2, 3})
	out := op.Apply(testRNG(1), []*Genotype{x, y})

	require.Len(t, out, 2)
	for _, child := range out {
		assert.NoError(t, s.validator.CheckPartition(child))
		assert.Equal(t, 2, child.Blocks[0].Len())
		assert.Equal(t, 2, child.Blocks[1].Len())
	}
}

func TestNewOperator_UnknownKind(t *testing.T) {
	s := newTestSolver(t, lineSeats(2), []domain.Team{{ID: "a", NumMembers: 1}}, lineParams())

	_, err := newOperator(OperatorSpec{Kind: "teleport", Probability: 1}, s.p, s.selector)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
