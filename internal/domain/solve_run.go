package domain

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// TeamAssignment: 输出中的一个座位块，TeamID 为 nil 表示空座位块
type TeamAssignment struct {
	TeamID *string  `json:"team,omitempty"`
	Seats  []string `json:"seats"`
}

type AssignmentResult struct {
	TeamAssignments []TeamAssignment `json:"teamAssignments"`
	Fitness         float64          `json:"fitness"`
	Valid           bool             `json:"valid"`
}

// PopulationResult: 检查点时的种群快照，包含最优解和前十名
type PopulationResult struct {
	Best   AssignmentResult   `json:"best"`
	TopTen []AssignmentResult `json:"topTen"`
}

type SolveRun struct {
	ID          string          `json:"id"`
	FloorPlanID int64           `json:"floorPlanID"`
	Status      RunStatus       `json:"status"`
	Parameters  json.RawMessage `json:"parameters"`
	Generation  int             `json:"generation"`
	BestFitness *float64        `json:"bestFitness"`
	Valid       bool            `json:"valid"`
	Reason      string          `json:"reason"`
	Error       string          `json:"error"`
	RequestedBy int64           `json:"requestedBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	FinishedAt  *time.Time      `json:"finishedAt"`
	Version     int32           `json:"-"`
}

type Checkpoint struct {
	RunID      string           `json:"runID"`
	Generation int              `json:"generation"`
	Result     PopulationResult `json:"result"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// SolveJob: 投递到 solve_queue 的求解任务
type SolveJob struct {
	RunID       string          `json:"runID"`
	FloorPlanID int64           `json:"floorPlanID"`
	Parameters  json.RawMessage `json:"parameters"`
	NotifyEmail string          `json:"notifyEmail"`
	NotifyName  string          `json:"notifyName"`
}

// RunProgress: 求解过程中写入 redis 的实时进度
type RunProgress struct {
	RunID       string  `json:"runID"`
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"bestFitness"`
	Worst       float64 `json:"worstFitness"`
	Invalid     int     `json:"invalid"`
	Killed      int     `json:"killed"`
	Valid       bool    `json:"valid"`
	ElapsedMs   int64   `json:"elapsedMs"`
}
