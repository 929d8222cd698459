package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/config"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	validate, trans, err := NewValidator()
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Expiration = 3600
	cfg.Solver.PopulationSize = 200
	cfg.Solver.SurvivorCount = 20
	cfg.Solver.Strategy = "greedy"

	return &Handler{validate: validate, config: cfg, translator: trans}
}

func contextWithRole(r *http.Request, role domain.Role) context.Context {
	return context.WithValue(r.Context(), RoleCtxKey, string(role))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestToken_RoundTrip(t *testing.T) {
	h := newTestHandler(t)
	now := time.Now()

	ss, expiration, err := h.signToken(&domain.User{ID: 7, Role: domain.RoleAdmin}, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expiration, time.Second)

	claims, err := h.parseToken(ss)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, string(domain.RoleAdmin), claims.Role)

	other := newTestHandler(t)
	other.config.JWT.Secret = "another-secret"
	_, err = other.parseToken(ss)
	assert.Error(t, err)
}

func TestAuth(t *testing.T) {
	h := newTestHandler(t)

	var gotRole, gotSub string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = r.Context().Value(RoleCtxKey).(string)
		gotSub = r.Context().Value(SubCtxKey).(string)
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("未登录", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.auth(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		resp := decodeResponse(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, "用户未登录", resp.Message)
	})

	t.Run("无效令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: "garbage"})
		rec := httptest.NewRecorder()
		h.auth(next).ServeHTTP(rec, req)
		assert.Equal(t, "无效的令牌", decodeResponse(t, rec).Message)
	})

	t.Run("有效令牌", func(t *testing.T) {
		ss, _, err := h.signToken(&domain.User{ID: 3, Role: domain.RolePlanner}, time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: ss})
		rec := httptest.NewRecorder()
		h.auth(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, string(domain.RolePlanner), gotRole)
		assert.Equal(t, "3", gotSub)
	})
}

func TestRequiredRole(t *testing.T) {
	h := newTestHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mw := h.RequiredRole([]domain.Role{domain.RoleAdmin})

	for role, allowed := range map[domain.Role]bool{domain.RoleAdmin: true, domain.RolePlanner: false} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(contextWithRole(req, role))
		rec := httptest.NewRecorder()
		mw(next).ServeHTTP(rec, req)

		if allowed {
			assert.Equal(t, http.StatusNoContent, rec.Code, role)
		} else {
			assert.Equal(t, "权限不足", decodeResponse(t, rec).Message, role)
		}
	}
}

func TestRecoverer(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "服务器内部错误", decodeResponse(t, rec).Message)
}

func TestReadJSON(t *testing.T) {
	h := newTestHandler(t)
	var v struct {
		Name string `json:"name"`
	}

	rec := httptest.NewRecorder()
	err := h.readJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`)), &v)
	require.NoError(t, err)
	assert.Equal(t, "a", v.Name)

	err = h.readJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &v)
	assert.ErrorIs(t, err, io.EOF)

	err = h.readJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown":1}`)), &v)
	assert.ErrorContains(t, err, "请求体不是合法的 JSON")

	big := `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	err = h.readJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)), &v)
	assert.EqualError(t, err, "请求体过大")
}

func TestBadRequest_TranslatesValidationErrors(t *testing.T) {
	h := newTestHandler(t)
	req := struct {
		Username string `validate:"required"`
	}{}

	rec := httptest.NewRecorder()
	h.badRequest(rec, httptest.NewRequest(http.MethodPost, "/", nil), h.validate.Struct(req))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "必填字段")
}

func TestMergeParameters(t *testing.T) {
	h := newTestHandler(t)

	params, err := h.mergeParameters(nil)
	require.NoError(t, err)
	assert.Equal(t, 200, params.PopulationSize)
	assert.Equal(t, solver.StrategyGreedy, params.Strategy)

	params, err = h.mergeParameters(json.RawMessage(`{"populationSize": 50, "strategy": "naive"}`))
	require.NoError(t, err)
	assert.Equal(t, 50, params.PopulationSize)
	assert.Equal(t, 20, params.SurvivorCount)
	assert.Equal(t, solver.StrategyNaive, params.Strategy)

	_, err = h.mergeParameters(json.RawMessage(`{"strategy": "random"}`))
	assert.Error(t, err)

	_, err = h.mergeParameters(json.RawMessage(`{"populationSize": 10, "survivorCount": 10}`))
	assert.ErrorIs(t, err, solver.ErrInvalidParameter)

	_, err = h.mergeParameters(json.RawMessage(`{"populationSize": "many"}`))
	assert.ErrorContains(t, err, "求解参数格式错误")
}
