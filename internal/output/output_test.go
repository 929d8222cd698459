package output

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

func sampleLayout() []solver.BlockLayout {
	return []solver.BlockLayout{
		{
			TeamID:   "sales",
			ColorKey: solver.ColorKey("sales"),
			Seats:    []solver.SeatPosition{{ID: "a", X: 0, Y: 0}, {ID: "b", X: 10, Y: 0}},
		},
		{
			Overflow: true,
			Seats:    []solver.SeatPosition{{ID: "c", X: 20, Y: 0}},
		},
	}
}

func TestWriteDot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDot(&buf, Graph{Name: "demo", Blocks: sampleLayout()}))

	dot := buf.String()
	assert.True(t, strings.HasPrefix(dot, "graph \"demo\" {\n"))
	assert.True(t, strings.HasSuffix(dot, "}\n"))
	assert.Contains(t, dot, `"team:sales" [shape=none`)
	assert.Contains(t, dot, `pos="5,0"`)
	assert.Contains(t, dot, `"c" [label="", shape=rectangle, width=0.05, height=0.1, color=black, pos="20,0"]`)
	assert.NotContains(t, dot, "team:\"")
}

func TestColor_Stable(t *testing.T) {
	layout := sampleLayout()[0]
	assert.Equal(t, Color(layout), Color(layout))
	assert.Contains(t, palette, Color(layout))
	assert.Equal(t, "black", Color(solver.BlockLayout{Overflow: true}))
}

func TestWriteAssignments(t *testing.T) {
	team := "sales"
	result := domain.AssignmentResult{
		TeamAssignments: []domain.TeamAssignment{
			{TeamID: &team, Seats: []string{"a", "b"}},
			{Seats: []string{"c"}},
		},
		Fitness: 1.5,
		Valid:   true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAssignments(&buf, result))

	var decoded domain.AssignmentResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, result, decoded)
	assert.NotContains(t, buf.String(), `"team": null`)
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Checkpoint(ctx, &solver.Snapshot{RunID: "r1", Generation: 7, Layout: sampleLayout()}))
	require.NoError(t, sink.Complete(ctx, &solver.Result{RunID: "r1", Layout: sampleLayout()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"run-r1-gen-000007.json",
		"run-r1-gen-000007.dot",
		"solution-r1.json",
		"solution-r1.dot",
	}, names)
}

func TestFileSink_CheckpointMatchesSolutionShape(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	team := "sales"
	best := domain.AssignmentResult{
		TeamAssignments: []domain.TeamAssignment{
			{TeamID: &team, Seats: []string{"a", "b"}},
			{Seats: []string{"c"}},
		},
		Fitness: 3.25,
		Valid:   true,
	}
	snap := &solver.Snapshot{
		RunID:      "r2",
		Generation: 100,
		Population: domain.PopulationResult{Best: best, TopTen: []domain.AssignmentResult{best, best}},
		Layout:     sampleLayout(),
	}

	ctx := context.Background()
	require.NoError(t, sink.Checkpoint(ctx, snap))
	require.NoError(t, sink.Complete(ctx, &solver.Result{RunID: "r2", Best: best, Layout: sampleLayout()}))

	checkpoint, err := os.ReadFile(filepath.Join(dir, "run-r2-gen-000100.json"))
	require.NoError(t, err)
	solution, err := os.ReadFile(filepath.Join(dir, "solution-r2.json"))
	require.NoError(t, err)

	var decoded domain.AssignmentResult
	require.NoError(t, json.Unmarshal(checkpoint, &decoded))
	assert.Equal(t, best, decoded)
	assert.NotContains(t, string(checkpoint), "topTen")
	assert.JSONEq(t, string(solution), string(checkpoint))
}

func TestFileSink_CancelledContext(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Checkpoint(ctx, &solver.Snapshot{RunID: "r"}), context.Canceled)
}
