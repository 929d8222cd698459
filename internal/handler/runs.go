package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/output"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/progress"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/queue"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

// mergeParameters 以配置中的默认参数为底，覆盖请求中出现的字段
func (h *Handler) mergeParameters(raw json.RawMessage) (solver.Parameters, error) {
	params := h.config.SolverParameters()
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return params, fmt.Errorf("求解参数格式错误: %w", err)
		}
	}
	if err := h.validate.Struct(params); err != nil {
		return params, err
	}
	params = params.WithDefaults()
	return params, params.Validate()
}

func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	fp := r.Context().Value(FloorPlanCtx).(*domain.FloorPlan)
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	var req struct {
		Parameters json.RawMessage `json:"parameters"`
	}

	// 请求体为空时全部使用默认参数
	if err := h.readJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, r, err)
		return
	}

	params, err := h.mergeParameters(req.Parameters)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	teams, err := h.repository.GetTeamsByFloorPlanID(r.Context(), fp.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if len(teams) == 0 {
		h.errorResponse(w, r, "该平面图尚未配置团队")
		return
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	run := &domain.SolveRun{
		ID:          uuid.NewString(),
		FloorPlanID: fp.ID,
		Status:      domain.RunStatusPending,
		Parameters:  rawParams,
		RequestedBy: myInfo.ID,
	}
	if err := h.repository.CreateRun(r.Context(), run); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	job := domain.SolveJob{
		RunID:       run.ID,
		FloorPlanID: fp.ID,
		Parameters:  rawParams,
		NotifyEmail: myInfo.Email,
		NotifyName:  myInfo.FullName,
	}
	if err := h.publisher.Publish(r.Context(), queue.SolveQueue, job); err != nil {
		if failErr := h.repository.FailRun(r.Context(), run.ID, "投递求解任务失败"); failErr != nil {
			slog.Error("标记求解任务失败时出错", "runID", run.ID, "error", failErr)
		}
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "已提交求解任务", run)
}

func (h *Handler) GetFloorPlanRuns(w http.ResponseWriter, r *http.Request) {
	fp := r.Context().Value(FloorPlanCtx).(*domain.FloorPlan)

	runs, err := h.repository.GetRunsByFloorPlanID(r.Context(), fp.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取求解任务列表成功", runs)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.SolveRun)

	var p *domain.RunProgress
	if run.Status == domain.RunStatusRunning || run.Status == domain.RunStatusPending {
		var err error
		p, err = h.progress.Get(r.Context(), run.ID)
		if err != nil && !errors.Is(err, progress.ErrNotFound) {
			h.internalServerError(w, r, err)
			return
		}
	}

	h.successResponse(w, r, "获取求解任务成功", map[string]any{
		"run":      run,
		"progress": p,
	})
}

// latestLayout 返回已完成任务的最终结果，或者运行中任务最近一次检查点
func (h *Handler) latestLayout(r *http.Request, run *domain.SolveRun) (any, []solver.BlockLayout, error) {
	if run.Status == domain.RunStatusCompleted {
		result, err := h.repository.GetRunResult(r.Context(), run.ID)
		if err != nil {
			return nil, nil, err
		}
		return result, result.Layout, nil
	}

	snap, err := h.repository.GetLatestCheckpoint(r.Context(), run.ID)
	if err != nil {
		return nil, nil, err
	}
	return snap.Population.Best, snap.Layout, nil
}

func (h *Handler) GetRunResult(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.SolveRun)

	result, _, err := h.latestLayout(r, run)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "暂无结果")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "获取求解结果成功", result)
}

func (h *Handler) GetRunGraph(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.SolveRun)

	_, layout, err := h.latestLayout(r, run)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "暂无结果")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	var buf bytes.Buffer
	if err := output.WriteDot(&buf, output.Graph{Name: run.ID, Blocks: layout}); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("写入响应失败", "error", err)
	}
}
