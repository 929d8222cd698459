package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

// ReplaceTeams 用新的团队列表整体替换平面图的团队
func (r *Repository) ReplaceTeams(ctx context.Context, floorPlanID int64, teams []domain.Team) error {
	ctx, cancel := r.withTransactionTimeout(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE floor_plan_id = $1`, floorPlanID); err != nil {
		return err
	}

	for i, team := range teams {
		adjacency, err := json.Marshal(team.WantsAdjacent)
		if err != nil {
			return err
		}

		var px, py sql.NullFloat64
		if team.WantsProximity != nil {
			px = sql.NullFloat64{Float64: team.WantsProximity.X, Valid: true}
			py = sql.NullFloat64{Float64: team.WantsProximity.Y, Valid: true}
		}

		query := `
			INSERT INTO teams (floor_plan_id, position, team_id, num_members, wants_adjacent, proximity_x, proximity_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		args := []any{floorPlanID, i, team.ID, team.NumMembers, adjacency, px, py}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetTeamsByFloorPlanID(ctx context.Context, floorPlanID int64) ([]domain.Team, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT team_id, num_members, wants_adjacent, proximity_x, proximity_y
		FROM teams
		WHERE floor_plan_id = $1
		ORDER BY position
	`

	rows, err := r.dbpool.QueryContext(ctx, query, floorPlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var (
			team      domain.Team
			adjacency []byte
			px, py    sql.NullFloat64
		)
		if err := rows.Scan(&team.ID, &team.NumMembers, &adjacency, &px, &py); err != nil {
			return nil, err
		}

		if err := json.Unmarshal(adjacency, &team.WantsAdjacent); err != nil {
			return nil, err
		}
		if px.Valid && py.Valid {
			team.WantsProximity = &domain.Point{X: px.Float64, Y: py.Float64}
		}

		teams = append(teams, team)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return teams, nil
}
