package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/progress"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/queue"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

const (
	MailTypeSolveFinished = "solve_finished"

	progressInterval = 2 * time.Second
	progressTimeout  = 3 * time.Second
	cleanupTimeout   = 30 * time.Second
)

type Store interface {
	MarkRunRunning(ctx context.Context, id string) error
	GetFloorPlanByID(ctx context.Context, id int64) (*domain.FloorPlan, error)
	GetTeamsByFloorPlanID(ctx context.Context, floorPlanID int64) ([]domain.Team, error)
	FailRun(ctx context.Context, id string, reason string) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// Worker 消费 solve_queue 中的任务并运行求解器
type Worker struct {
	store     Store
	sink      solver.CheckpointSink
	publisher Publisher
	tracker   *progress.Tracker
	logger    *slog.Logger
}

// NewWorker 中 tracker 可以为 nil，此时不上报实时进度
func NewWorker(store Store, sink solver.CheckpointSink, publisher Publisher, tracker *progress.Tracker, logger *slog.Logger) *Worker {
	return &Worker{
		store:     store,
		sink:      sink,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
	}
}

// Process 处理一条求解任务
//
// 返回 error 表示任务需要重新入队；参数错误之类无法重试的失败会记录在任务上并返回 nil。
func (w *Worker) Process(ctx context.Context, job domain.SolveJob) error {
	logger := w.logger.With("runID", job.RunID)

	if err := w.store.MarkRunRunning(ctx, job.RunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Info("任务已经结束，跳过")
			return nil
		}
		return fmt.Errorf("无法更新任务状态: %w", err)
	}

	fp, err := w.store.GetFloorPlanByID(ctx, job.FloorPlanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return w.fail(ctx, job, nil, "平面图不存在")
		}
		return fmt.Errorf("无法获取平面图: %w", err)
	}

	teams, err := w.store.GetTeamsByFloorPlanID(ctx, job.FloorPlanID)
	if err != nil {
		return fmt.Errorf("无法获取团队: %w", err)
	}

	var params solver.Parameters
	if len(job.Parameters) > 0 {
		if err := json.Unmarshal(job.Parameters, &params); err != nil {
			return w.fail(ctx, job, fp, fmt.Sprintf("求解参数格式错误: %v", err))
		}
	}

	opts := []solver.Option{
		solver.WithLogger(logger),
		solver.WithSink(w.sink),
		solver.WithRunID(job.RunID),
	}
	if w.tracker != nil {
		opts = append(opts, solver.WithProgress(w.tracker.Reporter(ctx, job.RunID, progressInterval, progressTimeout)))
	}

	s, err := solver.New(fp.Seats, teams, params, opts...)
	if err != nil {
		return w.fail(ctx, job, fp, err.Error())
	}

	result, err := s.Solve(ctx)
	if err != nil {
		logger.Error("写入最终结果失败", "error", err)
		return w.fail(ctx, job, fp, fmt.Sprintf("写入最终结果失败: %v", err))
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if w.tracker != nil {
		if err := w.tracker.Clear(cleanupCtx, job.RunID); err != nil {
			logger.Warn("清除求解进度失败", "error", err)
		}
	}

	w.notify(cleanupCtx, job, domain.SolveFinishedMailData{
		FullName:      job.NotifyName,
		FloorPlanName: fp.Name,
		RunID:         job.RunID,
		Status:        string(domain.RunStatusCompleted),
		Fitness:       result.Best.Fitness,
		Valid:         result.Best.Valid,
		Generations:   result.Generations,
	})
	return nil
}

func (w *Worker) fail(ctx context.Context, job domain.SolveJob, fp *domain.FloorPlan, reason string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	w.logger.Error("求解任务失败", "runID", job.RunID, "reason", reason)
	if err := w.store.FailRun(ctx, job.RunID, reason); err != nil {
		return fmt.Errorf("无法标记任务失败: %w", err)
	}

	data := domain.SolveFinishedMailData{
		FullName: job.NotifyName,
		RunID:    job.RunID,
		Status:   string(domain.RunStatusFailed),
	}
	if fp != nil {
		data.FloorPlanName = fp.Name
	}
	w.notify(ctx, job, data)
	return nil
}

// notify 投递邮件失败不影响任务本身
func (w *Worker) notify(ctx context.Context, job domain.SolveJob, data domain.SolveFinishedMailData) {
	if job.NotifyEmail == "" {
		return
	}

	msg := domain.MailMessage{
		Type: MailTypeSolveFinished,
		To:   job.NotifyEmail,
		Data: data,
	}
	if err := w.publisher.Publish(ctx, queue.EmailQueue, msg); err != nil {
		w.logger.Warn("投递通知邮件失败", "runID", job.RunID, "error", err)
	}
}
