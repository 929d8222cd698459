package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.StartRun(ctx, "r1", 42, solver.DefaultParameters(), 10, 3))

	run, err := db.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "running", run.Status)
	assert.Equal(t, int64(42), run.Seed)
	assert.Nil(t, run.BestFitness)
	assert.Nil(t, run.FinishedAt)

	for _, gen := range []int{1, 5, 5} {
		require.NoError(t, db.Checkpoint(ctx, &solver.Snapshot{
			RunID:      "r1",
			Generation: gen,
			Stats:      solver.GenerationStats{BestEver: 10 - float64(gen), Worst: 20, Valid: true},
			Population: domain.PopulationResult{Best: domain.AssignmentResult{Fitness: 10 - float64(gen)}},
		}))
	}

	rows, err := db.ListCheckpoints(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Generation)
	assert.Equal(t, 5, rows[1].Generation)
	assert.InDelta(t, 5.0, rows[1].Best, 1e-12)

	require.NoError(t, db.Complete(ctx, &solver.Result{
		RunID:       "r1",
		Best:        domain.AssignmentResult{Fitness: 4.5, Valid: true},
		Generations: 6,
		Reason:      solver.ReasonMaxGenerations,
		Operators:   []solver.OperatorCount{{Name: "block_swap", Changed: 3, Noop: 1}},
	}))

	run, err = db.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "max_generations", run.Reason)
	assert.Equal(t, 6, run.Generations)
	require.NotNil(t, run.BestFitness)
	assert.InDelta(t, 4.5, *run.BestFitness, 1e-12)
	assert.True(t, run.Valid)
	assert.NotNil(t, run.FinishedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun(context.Background(), "missing")
	assert.Error(t, err)
}
