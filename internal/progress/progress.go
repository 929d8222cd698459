package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

var ErrNotFound = errors.New("没有该任务的进度")

type store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Tracker 在 redis 中保存求解任务的实时进度
type Tracker struct {
	rdb        store
	expiration time.Duration
}

func NewTracker(rdb store, expiration time.Duration) *Tracker {
	return &Tracker{rdb: rdb, expiration: expiration}
}

func key(runID string) string {
	return fmt.Sprintf("run_progress_%s", runID)
}

func (t *Tracker) Set(ctx context.Context, p domain.RunProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return t.rdb.Set(ctx, key(p.RunID), data, t.expiration).Err()
}

func (t *Tracker) Get(ctx context.Context, runID string) (*domain.RunProgress, error) {
	data, err := t.rdb.Get(ctx, key(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p := &domain.RunProgress{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Tracker) Clear(ctx context.Context, runID string) error {
	return t.rdb.Del(ctx, key(runID)).Err()
}

// Reporter 返回可传给 solver.WithProgress 的回调，两次写入之间至少间隔 interval，第一代总会写入
func (t *Tracker) Reporter(ctx context.Context, runID string, interval time.Duration, timeout time.Duration) func(solver.GenerationStats) {
	var last time.Time

	return func(stats solver.GenerationStats) {
		now := time.Now()
		if stats.Generation != 1 && now.Sub(last) < interval {
			return
		}
		last = now

		setCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := t.Set(setCtx, domain.RunProgress{
			RunID:       runID,
			Generation:  stats.Generation,
			BestFitness: stats.BestEver,
			Worst:       stats.Worst,
			Invalid:     stats.Invalid,
			Killed:      stats.Killed,
			Valid:       stats.Valid,
			ElapsedMs:   stats.Elapsed.Milliseconds(),
		})
		if err != nil {
			slog.Warn("写入求解进度失败", "runID", runID, "generation", stats.Generation, "error", err)
		}
	}
}
