package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/queue"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

type fakeStore struct {
	markErr  error
	teamsErr error
	fp       *domain.FloorPlan
	teams    []domain.Team

	failed map[string]string
}

func (s *fakeStore) MarkRunRunning(ctx context.Context, id string) error {
	return s.markErr
}

func (s *fakeStore) GetFloorPlanByID(ctx context.Context, id int64) (*domain.FloorPlan, error) {
	if s.fp == nil || s.fp.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.fp, nil
}

func (s *fakeStore) GetTeamsByFloorPlanID(ctx context.Context, floorPlanID int64) ([]domain.Team, error) {
	return s.teams, s.teamsErr
}

func (s *fakeStore) FailRun(ctx context.Context, id string, reason string) error {
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[id] = reason
	return nil
}

type fakeSink struct {
	mu          sync.Mutex
	checkpoints int
	results     []*solver.Result
}

func (s *fakeSink) Checkpoint(ctx context.Context, snap *solver.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints++
	return nil
}

func (s *fakeSink) Complete(ctx context.Context, result *solver.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

type fakePublisher struct {
	messages []domain.MailMessage
}

func (p *fakePublisher) Publish(ctx context.Context, q string, v any) error {
	if q != queue.EmailQueue {
		return fmt.Errorf("unexpected queue %s", q)
	}
	p.messages = append(p.messages, v.(domain.MailMessage))
	return nil
}

func testFloorPlan() *domain.FloorPlan {
	fp := &domain.FloorPlan{ID: 1, Name: "三楼"}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			fp.Seats = append(fp.Seats, domain.Seat{ID: fmt.Sprintf("r%dc%d", r, c), X: float64(c) * 10, Y: float64(r) * 10})
		}
	}
	return fp
}

func testTeams() []domain.Team {
	return []domain.Team{
		{ID: "a", NumMembers: 4, WantsAdjacent: []domain.Adjacency{{ID: "b", Weight: 1}}},
		{ID: "b", NumMembers: 3},
		{ID: "c", NumMembers: 2},
	}
}

const testParameters = `{"adjacencyRadius":15,"seatWidth":4,"seatHeight":4,"populationSize":20,"survivorCount":5,"maxGenerations":5,"parallelism":2,"seed":7}`

func newTestWorker(store Store) (*Worker, *fakeSink, *fakePublisher) {
	sink := &fakeSink{}
	publisher := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(store, sink, publisher, nil, logger), sink, publisher
}

func testJob() domain.SolveJob {
	return domain.SolveJob{
		RunID:       "run-1",
		FloorPlanID: 1,
		Parameters:  []byte(testParameters),
		NotifyEmail: "planner@example.com",
		NotifyName:  "张三",
	}
}

func TestProcess_Completes(t *testing.T) {
	store := &fakeStore{fp: testFloorPlan(), teams: testTeams()}
	w, sink, publisher := newTestWorker(store)

	require.NoError(t, w.Process(context.Background(), testJob()))

	require.Len(t, sink.results, 1)
	result := sink.results[0]
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 5, result.Generations)
	assert.Equal(t, uint64(7), result.Seed)
	assert.Positive(t, sink.checkpoints)
	assert.Empty(t, store.failed)

	require.Len(t, publisher.messages, 1)
	msg := publisher.messages[0]
	assert.Equal(t, MailTypeSolveFinished, msg.Type)
	assert.Equal(t, "planner@example.com", msg.To)

	data := msg.Data.(domain.SolveFinishedMailData)
	assert.Equal(t, "三楼", data.FloorPlanName)
	assert.Equal(t, string(domain.RunStatusCompleted), data.Status)
	assert.Equal(t, result.Best.Fitness, data.Fitness)
}

func TestProcess_SkipsFinishedRun(t *testing.T) {
	store := &fakeStore{markErr: sql.ErrNoRows, fp: testFloorPlan(), teams: testTeams()}
	w, sink, publisher := newTestWorker(store)

	require.NoError(t, w.Process(context.Background(), testJob()))
	assert.Empty(t, sink.results)
	assert.Empty(t, publisher.messages)
}

func TestProcess_InvalidInputFailsRun(t *testing.T) {
	teams := testTeams()
	teams[0].NumMembers = 40
	store := &fakeStore{fp: testFloorPlan(), teams: teams}
	w, sink, publisher := newTestWorker(store)

	require.NoError(t, w.Process(context.Background(), testJob()))

	assert.Contains(t, store.failed, "run-1")
	assert.Empty(t, sink.results)
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, string(domain.RunStatusFailed), publisher.messages[0].Data.(domain.SolveFinishedMailData).Status)
}

func TestProcess_MissingFloorPlanFailsRun(t *testing.T) {
	store := &fakeStore{teams: testTeams()}
	w, _, _ := newTestWorker(store)

	require.NoError(t, w.Process(context.Background(), testJob()))
	assert.Equal(t, "平面图不存在", store.failed["run-1"])
}

func TestProcess_TransientErrorRequeues(t *testing.T) {
	store := &fakeStore{fp: testFloorPlan(), teamsErr: errors.New("connection reset")}
	w, _, publisher := newTestWorker(store)

	err := w.Process(context.Background(), testJob())
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, store.failed)
	assert.Empty(t, publisher.messages)
}

func TestProcess_NoNotifyEmail(t *testing.T) {
	store := &fakeStore{fp: testFloorPlan(), teams: testTeams()}
	w, sink, publisher := newTestWorker(store)

	job := testJob()
	job.NotifyEmail = ""
	require.NoError(t, w.Process(context.Background(), job))
	assert.Len(t, sink.results, 1)
	assert.Empty(t, publisher.messages)
}
