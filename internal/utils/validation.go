package utils

import (
	"errors"
	"fmt"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
)

// ValidateSeats 检查座位 ID 不重复
func ValidateSeats(seats []domain.Seat) error {
	if len(seats) == 0 {
		return errors.New("平面图中至少要有一个座位")
	}

	seen := make(map[string]int, len(seats))
	for i, seat := range seats {
		if j, exists := seen[seat.ID]; exists {
			return fmt.Errorf("座位 %d 和座位 %d 的 ID 重复: %s", j, i, seat.ID)
		}
		seen[seat.ID] = i
	}
	return nil
}

// ValidateTeams 检查团队 ID 不重复、没有团队要求与自己相邻、总人数不超过座位数
//
// 相邻需求的目标团队不存在时不报错，求解时忽略该需求
func ValidateTeams(teams []domain.Team, numSeats int) error {
	seen := make(map[string]struct{}, len(teams))
	total := 0

	for _, team := range teams {
		if _, exists := seen[team.ID]; exists {
			return fmt.Errorf("团队 ID 重复: %s", team.ID)
		}
		seen[team.ID] = struct{}{}

		for _, adj := range team.WantsAdjacent {
			if adj.ID == team.ID {
				return fmt.Errorf("团队 %s 不能要求与自己相邻", team.ID)
			}
		}

		if team.NumMembers > numSeats {
			return fmt.Errorf("团队 %s 有 %d 人，超过了座位总数 %d", team.ID, team.NumMembers, numSeats)
		}
		total += team.NumMembers
	}

	if total > numSeats {
		return fmt.Errorf("团队总人数 %d 超过了座位总数 %d", total, numSeats)
	}
	return nil
}
