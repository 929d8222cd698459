package solver

import "errors"

// 配置错误，在任何一代开始之前由 New 返回
var (
	ErrNoSeats          = errors.New("没有提供座位")
	ErrNoTeams          = errors.New("没有提供团队")
	ErrNoOperators      = errors.New("没有配置任何变异或交叉算子")
	ErrTeamTooLarge     = errors.New("团队人数超过座位总数")
	ErrInvalidTeamSize  = errors.New("团队人数必须大于 0")
	ErrTeamsExceedSeats = errors.New("所有团队人数之和超过座位总数")
	ErrDuplicateSeat    = errors.New("座位 ID 重复")
	ErrDuplicateTeam    = errors.New("团队 ID 重复")
	ErrInvalidParameter = errors.New("求解参数不合法")
)
