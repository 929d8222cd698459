package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

func (r *Repository) CreateFloorPlan(ctx context.Context, fp *domain.FloorPlan) error {
	ctx, cancel := r.withTransactionTimeout(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO floor_plans (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at, version
	`
	if err := tx.QueryRowContext(ctx, query, fp.Name, fp.Description).Scan(&fp.ID, &fp.CreatedAt, &fp.Version); err != nil {
		return err
	}

	// position 记录座位在输入中的顺序，求解时座位下标即为该顺序
	for i, seat := range fp.Seats {
		query := `
			INSERT INTO seats (floor_plan_id, position, seat_id, x, y)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.ExecContext(ctx, query, fp.ID, i, seat.ID, seat.X, seat.Y); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetFloorPlanByID(ctx context.Context, id int64) (*domain.FloorPlan, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT fp.name, fp.description, fp.created_at, fp.version, s.seat_id, s.x, s.y
		FROM floor_plans fp
		LEFT JOIN seats s ON fp.id = s.floor_plan_id
		WHERE fp.id = $1
		ORDER BY s.position
	`

	rows, err := r.dbpool.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fp *domain.FloorPlan
	for rows.Next() {
		var row struct {
			Name        string
			Description string
			CreatedAt   time.Time
			Version     int32
			SeatID      sql.NullString
			X           sql.NullFloat64
			Y           sql.NullFloat64
		}

		dst := []any{&row.Name, &row.Description, &row.CreatedAt, &row.Version, &row.SeatID, &row.X, &row.Y}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		if fp == nil {
			fp = &domain.FloorPlan{
				ID:          id,
				Name:        row.Name,
				Description: row.Description,
				CreatedAt:   row.CreatedAt,
				Version:     row.Version,
				Seats:       make([]domain.Seat, 0),
			}
		}

		// 没有座位的平面图只会查到一行，座位列为空
		if !row.SeatID.Valid {
			continue
		}
		fp.Seats = append(fp.Seats, domain.Seat{ID: row.SeatID.String, X: row.X.Float64, Y: row.Y.Float64})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if fp == nil {
		return nil, sql.ErrNoRows
	}

	return fp, nil
}

// GetAllFloorPlans 只返回平面图的基本信息，不包含座位
func (r *Repository) GetAllFloorPlans(ctx context.Context) ([]*domain.FloorPlan, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := `SELECT id, name, description, created_at, version FROM floor_plans ORDER BY id`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fps := make([]*domain.FloorPlan, 0)
	for rows.Next() {
		fp := &domain.FloorPlan{}
		if err := rows.Scan(&fp.ID, &fp.Name, &fp.Description, &fp.CreatedAt, &fp.Version); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fps, nil
}

func (r *Repository) DeleteFloorPlan(ctx context.Context, id int64) error {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, `DELETE FROM floor_plans WHERE id = $1`, id)
	return err
}
