// Package persistence 把本地命令行求解的运行记录和检查点保存到 SQLite
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

type DB struct {
	conn *sqlx.DB
}

type Run struct {
	ID          string     `db:"id"`
	Seed        int64      `db:"seed"`
	Parameters  string     `db:"parameters"`
	Seats       int        `db:"seats"`
	Teams       int        `db:"teams"`
	Status      string     `db:"status"`
	Reason      string     `db:"reason"`
	Generations int        `db:"generations"`
	BestFitness *float64   `db:"best_fitness"`
	Valid       bool       `db:"valid"`
	StartedAt   time.Time  `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
}

type CheckpointRow struct {
	RunID      string  `db:"run_id"`
	Generation int     `db:"generation"`
	Best       float64 `db:"best"`
	Worst      float64 `db:"worst"`
	Valid      bool    `db:"valid"`
	Invalid    int     `db:"invalid"`
	Population string  `db:"population"`
}

func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		parameters TEXT NOT NULL,
		seats INTEGER NOT NULL,
		teams INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		generations INTEGER NOT NULL DEFAULT 0,
		best_fitness REAL,
		valid INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		generation INTEGER NOT NULL,
		best REAL NOT NULL,
		worst REAL NOT NULL,
		valid INTEGER NOT NULL,
		invalid INTEGER NOT NULL,
		population TEXT NOT NULL,
		PRIMARY KEY (run_id, generation)
	);

	CREATE TABLE IF NOT EXISTS operator_counts (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		changed INTEGER NOT NULL,
		noop INTEGER NOT NULL,
		PRIMARY KEY (run_id, name)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartRun 在求解开始前登记一次运行
func (db *DB) StartRun(ctx context.Context, runID string, seed uint64, params solver.Parameters, seats, teams int) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO runs (id, seed, parameters, seats, teams, status, started_at)
		VALUES (?, ?, ?, ?, ?, 'running', ?)
	`, runID, int64(seed), string(paramsJSON), seats, teams, time.Now().UTC())
	return err
}

func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{}
	if err := db.conn.GetContext(ctx, run, `SELECT * FROM runs WHERE id = ?`, runID); err != nil {
		return nil, err
	}
	return run, nil
}

func (db *DB) ListCheckpoints(ctx context.Context, runID string) ([]CheckpointRow, error) {
	rows := make([]CheckpointRow, 0)
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT * FROM checkpoints WHERE run_id = ? ORDER BY generation
	`, runID)
	return rows, err
}

// Checkpoint 实现 solver.CheckpointSink；同一代重复写入时覆盖
func (db *DB) Checkpoint(ctx context.Context, snap *solver.Snapshot) error {
	population, err := json.Marshal(snap.Population)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (run_id, generation, best, worst, valid, invalid, population)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.RunID, snap.Generation, snap.Stats.BestEver, snap.Stats.Worst, snap.Stats.Valid, snap.Stats.Invalid, string(population)); err != nil {
		return fmt.Errorf("写入第 %d 代检查点失败: %w", snap.Generation, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE runs SET generations = ?, best_fitness = ?, valid = ? WHERE id = ?
	`, snap.Generation, snap.Stats.BestEver, snap.Stats.Valid, snap.RunID); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *DB) Complete(ctx context.Context, result *solver.Result) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET status = 'completed', reason = ?, generations = ?, best_fitness = ?, valid = ?, finished_at = ?
		WHERE id = ?
	`, string(result.Reason), result.Generations, result.Best.Fitness, result.Best.Valid, time.Now().UTC(), result.RunID); err != nil {
		return err
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO operator_counts (run_id, name, changed, noop) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, op := range result.Operators {
		if _, err := stmt.ExecContext(ctx, result.RunID, op.Name, op.Changed, op.Noop); err != nil {
			return fmt.Errorf("写入算子 %s 的统计失败: %w", op.Name, err)
		}
	}

	return tx.Commit()
}
