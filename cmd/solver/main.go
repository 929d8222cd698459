package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/config"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/infra"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/progress"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/queue"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/repository"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/worker"
)

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 读取配置文件
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", "error", err)
		return
	}

	/**********************************************
	 * 连接数据库、rabbitmq 和 redis
	 **********************************************/
	dbpool, err := infra.OpenDB(cfg)
	if err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}
	defer dbpool.Close()
	repo := repository.NewRepository(cfg, dbpool)

	conn, ch, err := infra.DialRabbitMQ(cfg, queue.SolveQueue, queue.EmailQueue)
	if err != nil {
		logger.Error("无法连接到 rabbitmq", "error", err)
		return
	}
	defer conn.Close()
	defer ch.Close()

	rdb, err := infra.NewRedis(cfg)
	if err != nil {
		logger.Error("无法连接到 redis", "error", err)
		return
	}
	defer rdb.Close()

	// 每个 worker 同时最多持有 MaxConcurrentRuns 条未确认的任务
	concurrency := max(cfg.Solver.MaxConcurrentRuns, 1)
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Error("无法设置预取数量", "error", err)
		return
	}

	msgs, err := ch.Consume(
		queue.SolveQueue, // 队列
		"",               // 消费者标识，由 RabbitMQ 自动分配
		false,            // 手动确认
		false,            // 是否独占队列
		false,            // no-local，RabbitMQ 不支持
		false,            // 是否不等待
		nil,              // 额外参数
	)
	if err != nil {
		logger.Error("无法消费消息", "error", err)
		return
	}

	publisher := queue.NewPublisher(ch, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)
	tracker := progress.NewTracker(rdb, time.Duration(cfg.Redis.ProgressExpiration)*time.Second)
	w := worker.NewWorker(repo, repo.CheckpointSink(), publisher, tracker, logger)

	/**********************************************
	 * 处理任务
	 **********************************************/
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := errgroup.Group{}
	g.SetLimit(concurrency)

	logger.Info("等待求解任务...（按 CTRL+C 退出）", "concurrency", concurrency)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn("消息通道已关闭")
				break loop
			}

			job := domain.SolveJob{}
			if err := json.Unmarshal(msg.Body, &job); err != nil {
				logger.Error("求解任务反序列化失败", "error", err)
				_ = msg.Nack(false, false)
				continue
			}

			g.Go(func() error {
				logger.Info("收到求解任务", "runID", job.RunID, "floorPlanID", job.FloorPlanID)
				if err := w.Process(ctx, job); err != nil {
					logger.Error("求解任务处理失败，重新入队", "runID", job.RunID, "error", err)
					_ = msg.Nack(false, true)
					return nil
				}
				_ = msg.Ack(false)
				return nil
			})
		}
	}

	// 取消 ctx 后求解器会在当前这一代结束时写入最后的检查点
	logger.Info("正在关闭 solver worker...")
	_ = g.Wait()
	logger.Info("solver worker 已成功关闭")
}
