package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/loader"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/utils"
)

type Store interface {
	CreateUser(ctx context.Context, user *domain.User) error
	CreateFloorPlan(ctx context.Context, fp *domain.FloorPlan) error
	ReplaceTeams(ctx context.Context, floorPlanID int64, teams []domain.Team) error
}

// SeedUsers 插入 n 个随机规划员，返回成功插入的数量
func SeedUsers(ctx context.Context, s Store, rng *rand.Rand, n int, password string, emailDomain string) int {
	cnt := 0
	for range n {
		user, err := utils.GenerateRandomUser(rng, password, emailDomain)
		if err != nil {
			slog.Error("无法生成随机用户", "error", err)
			continue
		}
		if err := s.CreateUser(ctx, user); err != nil {
			slog.Error("无法插入用户", "username", user.Username, "error", err)
			continue
		}
		cnt++
	}
	return cnt
}

// SeedRandomFloorPlan 生成一张带过道的网格平面图和随机团队
func SeedRandomFloorPlan(ctx context.Context, s Store, rng *rand.Rand, name string, opts utils.FloorPlanOptions, numTeams int) (*domain.FloorPlan, []domain.Team, error) {
	seats := utils.GenerateFloorPlanSeats(opts)
	teams := utils.GenerateRandomTeams(rng, seats, numTeams)

	fp := &domain.FloorPlan{
		Name:        name,
		Description: fmt.Sprintf("%d 行 %d 列，随机种子 %d", opts.Rows, opts.Cols, opts.Seed),
		Seats:       seats,
	}
	if err := store(ctx, s, fp, teams); err != nil {
		return nil, nil, err
	}
	return fp, teams, nil
}

// ImportFloorDocument 导入真实的楼层文档（floor_data / team_data / adjacency）
func ImportFloorDocument(ctx context.Context, s Store, path string, name string, opts loader.FloorDocumentOptions) (*domain.FloorPlan, []domain.Team, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("读取楼层文档失败: %w", err)
	}

	seats, teams, err := loader.LoadFloorDocument(data, opts)
	if err != nil {
		return nil, nil, err
	}

	fp := &domain.FloorPlan{
		Name:        name,
		Description: "导入自 " + path,
		Seats:       seats,
	}
	if err := store(ctx, s, fp, teams); err != nil {
		return nil, nil, err
	}
	return fp, teams, nil
}

func store(ctx context.Context, s Store, fp *domain.FloorPlan, teams []domain.Team) error {
	if err := utils.ValidateSeats(fp.Seats); err != nil {
		return err
	}
	if err := utils.ValidateTeams(teams, len(fp.Seats)); err != nil {
		return err
	}

	if err := s.CreateFloorPlan(ctx, fp); err != nil {
		return fmt.Errorf("插入平面图失败: %w", err)
	}
	if err := s.ReplaceTeams(ctx, fp.ID, teams); err != nil {
		return fmt.Errorf("插入团队失败: %w", err)
	}

	slog.Info("插入平面图成功", "id", fp.ID, "name", fp.Name, "seats", len(fp.Seats), "teams", len(teams))
	return nil
}
