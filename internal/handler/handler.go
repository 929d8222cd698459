package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/config"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/progress"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/repository"
)

type Publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	repository *repository.Repository
	translator ut.Translator
	publisher  Publisher
	progress   *progress.Tracker

	Mux *chi.Mux
}

func NewValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, err
	}
	return validate, trans, nil
}

func NewHandler(cfg *config.Config, repo *repository.Repository, publisher Publisher, tracker *progress.Tracker) (*Handler, error) {
	validate, trans, err := NewValidator()
	if err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		repository: repo,
		translator: trans,
		publisher:  publisher,
		progress:   tracker,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Use(h.myInfo)

		r.Route("/my-info", func(r chi.Router) {
			r.Get("/", h.GetMyInfo)
			r.Patch("/password", h.UpdateMyPassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(h.RequiredRole([]domain.Role{domain.RoleAdmin}))
			r.Post("/", h.CreateUser)
			r.Get("/", h.GetAllUsers)
			r.With(h.userInfo).Delete("/{id}", h.DeleteUser)
		})

		r.Route("/floor-plans", func(r chi.Router) {
			r.Post("/", h.CreateFloorPlan)
			r.Get("/", h.GetAllFloorPlans)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.floorPlan)
				r.Get("/", h.GetFloorPlan)
				r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Delete("/", h.DeleteFloorPlan)
				r.Put("/teams", h.ReplaceTeams)
				r.Get("/teams", h.GetTeams)
				r.Post("/runs", h.CreateRun)
				r.Get("/runs", h.GetFloorPlanRuns)
			})
		})

		r.Route("/runs/{id}", func(r chi.Router) {
			r.Use(h.run)
			r.Get("/", h.GetRun)
			r.Get("/result", h.GetRunResult)
			r.Get("/graph", h.GetRunGraph)
		})
	})
}
