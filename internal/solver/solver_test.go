package solver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

type recordingSink struct {
	mu          sync.Mutex
	generations []int
	results     []*Result
	failWith    error
}

func (r *recordingSink) Checkpoint(ctx context.Context, snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations = append(r.generations, snap.Generation)
	return r.failWith
}

func (r *recordingSink) Complete(ctx context.Context, result *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func officeTeams() []domain.Team {
	return []domain.Team{
		{ID: "sales", NumMembers: 6, WantsAdjacent: []domain.Adjacency{{ID: "support", Weight: 2}}},
		{ID: "support", NumMembers: 4},
		{ID: "eng", NumMembers: 5, WantsAdjacent: []domain.Adjacency{{ID: "design", Weight: 1, Category: "levenshtein"}}},
		{ID: "design", NumMembers: 3},
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	params := lineParams()

	tests := []struct {
		name   string
		seats  []domain.Seat
		teams  []domain.Team
		params Parameters
		err    error
	}{
		{name: "团队人数超过座位数", seats: lineSeats(4), teams: []domain.Team{{ID: "a", NumMembers: 5}}, params: params, err: ErrTeamTooLarge},
		{name: "没有座位", seats: nil, teams: []domain.Team{{ID: "a", NumMembers: 1}}, params: params, err: ErrNoSeats},
		{name: "没有团队", seats: lineSeats(4), teams: nil, params: params, err: ErrNoTeams},
		{name: "团队总人数超过座位数", seats: lineSeats(4), teams: []domain.Team{{ID: "a", NumMembers: 3}, {ID: "b", NumMembers: 2}}, params: params, err: ErrTeamsExceedSeats},
		{name: "团队人数为 0", seats: lineSeats(4), teams: []domain.Team{{ID: "a"}}, params: params, err: ErrInvalidTeamSize},
		{name: "座位 ID 重复", seats: []domain.Seat{{ID: "x"}, {ID: "x", X: 1}}, teams: []domain.Team{{ID: "a", NumMembers: 1}}, params: params, err: ErrDuplicateSeat},
		{name: "团队 ID 重复", seats: lineSeats(4), teams: []domain.Team{{ID: "a", NumMembers: 1}, {ID: "a", NumMembers: 1}}, params: params, err: ErrDuplicateTeam},
		{name: "没有算子", seats: lineSeats(4), teams: []domain.Team{{ID: "a", NumMembers: 1}}, params: func() Parameters {
			p := params
			p.Operators = []OperatorSpec{}
			return p
		}(), err: ErrNoOperators},
		{name: "算子概率全为 0", seats: lineSeats(4), teams: []domain.Team{{ID: "a", NumMembers: 1}}, params: func() Parameters {
			p := params
			p.Operators = []OperatorSpec{{Kind: OperatorBlockSwap}}
			return p
		}(), err: ErrNoOperators},
		{name: "存活数量不小于种群大小", seats: lineSeats(4), teams: []domain.Team{{ID: "a", NumMembers: 1}}, params: func() Parameters {
			p := params
			p.SurvivorCount = p.PopulationSize
			return p
		}(), err: ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.seats, tt.teams, tt.params)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParameters_WithDefaults(t *testing.T) {
	p := Parameters{ConvergenceWindow: -1, PopulationSize: 10}.WithDefaults()

	assert.Equal(t, 10, p.PopulationSize)
	assert.Equal(t, DefaultSurvivorCount, p.SurvivorCount)
	assert.Equal(t, -1, p.ConvergenceWindow)
	assert.Equal(t, DefaultMaxDuration, p.MaxDuration)
	assert.Equal(t, AggregationSumStddev, p.IntraAggregation)
	assert.Equal(t, StrategyGreedy, p.Strategy)
	assert.Len(t, p.Operators, len(DefaultOperators()))
	assert.Positive(t, p.Parallelism)
	assert.Equal(t, DefaultProximityWeight, p.ProximityWeight)
	assert.Equal(t, DefaultAdjPercentile, p.AdjPercentile)

	// 负数表示显式取 0
	p = Parameters{ProximityWeight: -1, IntraWeight: -1, ConvergenceEpsilon: -1}.WithDefaults()
	assert.Zero(t, p.ProximityWeight)
	assert.Zero(t, p.IntraWeight)
	assert.Zero(t, p.ConvergenceEpsilon)
}

func TestSolve_RunsToGenerationCap(t *testing.T) {
	sink := &recordingSink{}
	params := gridParams()
	params.CheckpointFrequency = 5

	s, err := New(gridSeats(6, 6), officeTeams(), params, WithSink(sink), WithRunID("run-1"))
	require.NoError(t, err)

	var progress []int
	WithProgress(func(stats GenerationStats) { progress = append(progress, stats.Generation) })(s)

	result, err := s.Solve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxGenerations, result.Reason)
	assert.Equal(t, 20, result.Generations)
	assert.Equal(t, "run-1", result.RunID)
	assert.True(t, result.Best.Valid)
	assert.Equal(t, []int{1, 5, 10, 15, 20}, sink.generations)
	assert.Len(t, sink.results, 1)
	assert.Len(t, progress, 20)
	assert.Equal(t, 20, s.Best().Generation)
	assert.LessOrEqual(t, len(s.Best().Population.TopTen), 10)

	// 每个座位恰好出现一次，空座位块没有团队
	require.Len(t, result.Best.TeamAssignments, 5)
	assert.Nil(t, result.Best.TeamAssignments[4].TeamID)
	seen := map[string]int{}
	for _, assignment := range result.Best.TeamAssignments {
		for _, id := range assignment.Seats {
			seen[id]++
		}
	}
	assert.Len(t, seen, 36)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
	for i, team := range officeTeams() {
		assert.Equal(t, team.ID, *result.Best.TeamAssignments[i].TeamID)
		assert.Len(t, result.Best.TeamAssignments[i].Seats, team.NumMembers)
	}

	assert.Len(t, result.Layout, 5)
	assert.Equal(t, ColorKey("sales"), result.Layout[0].ColorKey)
	assert.Len(t, result.Operators, len(DefaultOperators()))
}

func TestSolve_Deterministic(t *testing.T) {
	run := func() *Result {
		params := gridParams()
		params.Parallelism = 3
		s := newTestSolver(t, gridSeats(6, 6), officeTeams(), params)
		result, err := s.Solve(context.Background())
		require.NoError(t, err)
		return result
	}

	first, second := run(), run()
	assert.Equal(t, first.Best, second.Best)
	assert.Equal(t, uint64(42), first.Seed)
}

func TestSolve_Cancelled(t *testing.T) {
	sink := &recordingSink{}
	s, err := New(gridSeats(6, 6), officeTeams(), gridParams(), WithSink(sink))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, result.Reason)
	assert.Zero(t, result.Generations)
	assert.Len(t, sink.results, 1)
}

func TestSolve_CheckpointFailureDoesNotAbort(t *testing.T) {
	sink := &recordingSink{failWith: errors.New("磁盘已满")}
	params := gridParams()
	params.CheckpointFrequency = 5

	s, err := New(gridSeats(6, 6), officeTeams(), params, WithSink(sink))
	require.NoError(t, err)

	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, result.Generations)
	assert.Equal(t, 5, result.CheckpointErrors)
}

func TestSolve_Converged(t *testing.T) {
	params := gridParams()
	params.MaxGenerations = 1000
	params.ConvergenceWindow = 3
	params.ConvergenceEpsilon = 1e300
	params.SteadyWindow = -1

	s := newTestSolver(t, gridSeats(6, 6), officeTeams(), params)
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonConverged, result.Reason)
	// 初始最优不合法时，要等合法之后再过一个完整窗口
	assert.GreaterOrEqual(t, result.Generations, 3)
}

func TestShouldStop_Convergence(t *testing.T) {
	params := lineParams()
	params.MaxGenerations = 100
	params.ConvergenceWindow = 1
	params.SteadyWindow = -1
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, params)
	ctx, now := context.Background(), time.Now()

	tests := []struct {
		name    string
		history []bestRecord
		want    TerminationReason
	}{
		{"首次出现合法解", []bestRecord{{Fitness: 100}, {Fitness: 500, Valid: true}}, ""},
		{"合法解没有改进", []bestRecord{{Fitness: 500, Valid: true}, {Fitness: 500, Valid: true}}, ReasonConverged},
		{"不合法解没有改进", []bestRecord{{Fitness: 100}, {Fitness: 100}}, ReasonConverged},
		{"合法解有改进", []bestRecord{{Fitness: 500, Valid: true}, {Fitness: 400, Valid: true}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.shouldStop(ctx, 1, now, tt.history, 1))
		})
	}
}

func TestShouldStop_ZeroEpsilon(t *testing.T) {
	params := lineParams()
	params.MaxGenerations = 100
	params.ConvergenceWindow = 1
	params.ConvergenceEpsilon = -1
	params.SteadyWindow = -1
	s := newTestSolver(t, lineSeats(4), []domain.Team{{ID: "a", NumMembers: 2}}, params)
	require.Zero(t, s.Parameters().ConvergenceEpsilon)
	ctx, now := context.Background(), time.Now()

	same := []bestRecord{{Fitness: 500, Valid: true}, {Fitness: 500, Valid: true}}
	assert.Equal(t, ReasonConverged, s.shouldStop(ctx, 1, now, same, 0))

	tiny := []bestRecord{{Fitness: 500, Valid: true}, {Fitness: 499.999, Valid: true}}
	assert.Empty(t, s.shouldStop(ctx, 1, now, tiny, 1))
}

func TestSolve_Steady(t *testing.T) {
	params := gridParams()
	params.MaxGenerations = 100000
	params.ConvergenceWindow = -1
	params.SteadyWindow = 2

	s := newTestSolver(t, gridSeats(6, 6), officeTeams(), params)
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonSteady, result.Reason)
}

func TestFlush(t *testing.T) {
	sink := &recordingSink{}
	params := gridParams()
	params.MaxGenerations = 3

	s, err := New(gridSeats(6, 6), officeTeams(), params, WithSink(sink))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()), "求解前没有快照")

	_, err = s.Solve(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []int{1, 3}, sink.generations)
}
