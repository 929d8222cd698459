//go:build lambda

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

const (
	// Function URL 的调用最长 15 分钟
	maxDuration = 10 * time.Minute
	// 留给序列化结果的时间
	deadlineMargin = 5 * time.Second
)

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

type solveRequest struct {
	Seats      []domain.Seat   `json:"seats"`
	Teams      []domain.Team   `json:"teams"`
	Parameters json.RawMessage `json:"parameters"`
}

type solveResponse struct {
	RunID       string                   `json:"runID"`
	Assignments []domain.TeamAssignment  `json:"assignments"`
	Fitness     float64                  `json:"fitness"`
	Valid       bool                     `json:"valid"`
	Generations int                      `json:"generations"`
	Reason      solver.TerminationReason `json:"reason"`
	Breakdown   solver.FitnessBreakdown  `json:"breakdown"`
	TimeMs      int64                    `json:"timeMs"`
}

func handler(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return errResp(400, "请求体不是合法的 base64")
		}
		body = string(decoded)
	}

	var req solveRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return errResp(400, "请求体不是合法的 JSON: "+err.Error())
	}

	var params solver.Parameters
	if len(req.Parameters) > 0 {
		if err := json.Unmarshal(req.Parameters, &params); err != nil {
			return errResp(400, "求解参数格式错误: "+err.Error())
		}
	}
	if params.MaxDuration <= 0 || params.MaxDuration > maxDuration {
		params.MaxDuration = maxDuration
	}

	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline.Add(-deadlineMargin))
		defer cancel()
	}

	s, err := solver.New(req.Seats, req.Teams, params, solver.WithRunID(uuid.NewString()))
	if err != nil {
		if errors.Is(err, solver.ErrInvalidParameter) || errors.Is(err, solver.ErrNoOperators) {
			return errResp(400, err.Error())
		}
		return errResp(422, err.Error())
	}

	result, err := s.Solve(ctx)
	if err != nil {
		slog.Error("求解失败", "error", err)
		return errResp(500, "求解失败")
	}

	respJSON, err := json.Marshal(solveResponse{
		RunID:       result.RunID,
		Assignments: result.Best.TeamAssignments,
		Fitness:     result.Best.Fitness,
		Valid:       result.Best.Valid,
		Generations: result.Generations,
		Reason:      result.Reason,
		Breakdown:   result.Breakdown,
		TimeMs:      result.Elapsed.Milliseconds(),
	})
	if err != nil {
		return errResp(500, "序列化结果失败")
	}
	return events.LambdaFunctionURLResponse{StatusCode: 200, Headers: jsonHeader, Body: string(respJSON)}, nil
}

func errResp(code int, msg string) (events.LambdaFunctionURLResponse, error) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.LambdaFunctionURLResponse{StatusCode: code, Headers: jsonHeader, Body: string(body)}, nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	lambda.Start(handler)
}
