package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

const runColumns = `id, floor_plan_id, status, parameters, generation, best_fitness, valid, reason, error, requested_by, created_at, finished_at, version`

func scanRun(row interface{ Scan(...any) error }) (*domain.SolveRun, error) {
	run := &domain.SolveRun{}
	var (
		params      []byte
		bestFitness sql.NullFloat64
		finishedAt  sql.NullTime
	)

	dst := []any{&run.ID, &run.FloorPlanID, &run.Status, &params, &run.Generation, &bestFitness, &run.Valid, &run.Reason, &run.Error, &run.RequestedBy, &run.CreatedAt, &finishedAt, &run.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}

	run.Parameters = json.RawMessage(params)
	if bestFitness.Valid {
		run.BestFitness = &bestFitness.Float64
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func (r *Repository) CreateRun(ctx context.Context, run *domain.SolveRun) error {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO solve_runs (id, floor_plan_id, status, parameters, requested_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, version
	`

	params := []byte(run.Parameters)
	if len(params) == 0 {
		params = []byte("{}")
	}

	args := []any{run.ID, run.FloorPlanID, run.Status, params, run.RequestedBy}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&run.CreatedAt, &run.Version)
}

func (r *Repository) GetRunByID(ctx context.Context, id string) (*domain.SolveRun, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM solve_runs WHERE id = $1`
	return scanRun(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetRunsByFloorPlanID(ctx context.Context, floorPlanID int64) ([]*domain.SolveRun, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM solve_runs WHERE floor_plan_id = $1 ORDER BY created_at DESC`

	rows, err := r.dbpool.QueryContext(ctx, query, floorPlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*domain.SolveRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// MarkRunRunning 只有处于 pending 或 running（被重新投递）状态的任务才能开始，否则返回 sql.ErrNoRows
func (r *Repository) MarkRunRunning(ctx context.Context, id string) error {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `
		UPDATE solve_runs
		SET status = $1, version = version + 1
		WHERE id = $2 AND status IN ($3, $1)
		RETURNING version
	`

	var version int32
	return r.dbpool.QueryRowContext(ctx, query, domain.RunStatusRunning, id, domain.RunStatusPending).Scan(&version)
}

func (r *Repository) FailRun(ctx context.Context, id string, reason string) error {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `
		UPDATE solve_runs
		SET status = $1, error = $2, finished_at = NOW(), version = version + 1
		WHERE id = $3
	`

	_, err := r.dbpool.ExecContext(ctx, query, domain.RunStatusFailed, reason, id)
	return err
}

func (r *Repository) CompleteRun(ctx context.Context, result *solver.Result) error {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	query := `
		UPDATE solve_runs
		SET
			status = $1,
			generation = $2,
			best_fitness = $3,
			valid = $4,
			reason = $5,
			result = $6,
			finished_at = NOW(),
			version = version + 1
		WHERE id = $7
	`

	args := []any{domain.RunStatusCompleted, result.Generations, result.Best.Fitness, result.Best.Valid, string(result.Reason), data, result.RunID}
	_, err = r.dbpool.ExecContext(ctx, query, args...)
	return err
}

// GetRunResult 返回已完成任务的最终结果，任务未完成时返回 sql.ErrNoRows
func (r *Repository) GetRunResult(ctx context.Context, id string) (*solver.Result, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var data []byte
	if err := r.dbpool.QueryRowContext(ctx, `SELECT result FROM solve_runs WHERE id = $1 AND result IS NOT NULL`, id).Scan(&data); err != nil {
		return nil, err
	}

	result := &solver.Result{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveCheckpoint 同一代的检查点重复写入时覆盖
func (r *Repository) SaveCheckpoint(ctx context.Context, snap *solver.Snapshot) error {
	ctx, cancel := r.withTransactionTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO checkpoints (run_id, generation, snapshot)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, generation) DO UPDATE SET snapshot = EXCLUDED.snapshot, created_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, query, snap.RunID, snap.Generation, data); err != nil {
		return err
	}

	query = `
		UPDATE solve_runs
		SET generation = $1, best_fitness = $2, valid = $3
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, query, snap.Generation, snap.Stats.BestEver, snap.Stats.Valid, snap.RunID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetLatestCheckpoint(ctx context.Context, runID string) (*solver.Snapshot, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT snapshot FROM checkpoints
		WHERE run_id = $1
		ORDER BY generation DESC
		LIMIT 1
	`

	var data []byte
	if err := r.dbpool.QueryRowContext(ctx, query, runID).Scan(&data); err != nil {
		return nil, err
	}

	snap := &solver.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// CheckpointSink 把求解过程写入 solve_runs 和 checkpoints 表
type CheckpointSink struct {
	repo *Repository
}

func (r *Repository) CheckpointSink() *CheckpointSink {
	return &CheckpointSink{repo: r}
}

func (s *CheckpointSink) Checkpoint(ctx context.Context, snap *solver.Snapshot) error {
	return s.repo.SaveCheckpoint(ctx, snap)
}

func (s *CheckpointSink) Complete(ctx context.Context, result *solver.Result) error {
	return s.repo.CompleteRun(ctx, result)
}
