package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/utils"
)

func (h *Handler) CreateFloorPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string        `json:"name" validate:"required,max=100"`
		Description string        `json:"description"`
		Seats       []domain.Seat `json:"seats" validate:"required,min=1,dive"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateSeats(req.Seats); err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	fp := &domain.FloorPlan{
		Name:        req.Name,
		Description: req.Description,
		Seats:       req.Seats,
	}

	if err := h.repository.CreateFloorPlan(r.Context(), fp); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.ConstraintName == "floor_plans_name_key":
			h.errorResponse(w, r, "平面图名称已存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "创建平面图成功", fp)
}

func (h *Handler) GetAllFloorPlans(w http.ResponseWriter, r *http.Request) {
	fps, err := h.repository.GetAllFloorPlans(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取平面图列表成功", fps)
}

func (h *Handler) GetFloorPlan(w http.ResponseWriter, r *http.Request) {
	fp := r.Context().Value(FloorPlanCtx).(*domain.FloorPlan)
	h.successResponse(w, r, "获取平面图成功", fp)
}

func (h *Handler) DeleteFloorPlan(w http.ResponseWriter, r *http.Request) {
	fp := r.Context().Value(FloorPlanCtx).(*domain.FloorPlan)

	if err := h.repository.DeleteFloorPlan(r.Context(), fp.ID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "平面图不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "删除平面图成功", nil)
}

func (h *Handler) ReplaceTeams(w http.ResponseWriter, r *http.Request) {
	fp := r.Context().Value(FloorPlanCtx).(*domain.FloorPlan)

	var req struct {
		Teams []domain.Team `json:"teams" validate:"required,dive"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateTeams(req.Teams, len(fp.Seats)); err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	if err := h.repository.ReplaceTeams(r.Context(), fp.ID, req.Teams); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "更新团队成功", req.Teams)
}

func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	fp := r.Context().Value(FloorPlanCtx).(*domain.FloorPlan)

	teams, err := h.repository.GetTeamsByFloorPlanID(r.Context(), fp.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取团队成功", teams)
}
