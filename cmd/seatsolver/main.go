package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/loader"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/output"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/persistence"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

type options struct {
	seats       string
	teams       string
	floor       string
	floorStride float64
	out         string
	db          string
	verbose     bool

	params solver.Parameters
}

func parseFlags() options {
	var (
		opts     options
		duration time.Duration
		strategy string
	)

	flag.StringVar(&opts.seats, "seats", "", "座位 CSV 文件（id,x,y）")
	flag.StringVar(&opts.teams, "teams", "", "团队 JSON 文件")
	flag.StringVar(&opts.floor, "floor", "", "楼层文档 JSON 文件，指定后忽略 -seats 和 -teams")
	flag.Float64Var(&opts.floorStride, "floor-stride", loader.DefaultFloorStride, "楼层文档中相邻楼层的坐标偏移")
	flag.StringVar(&opts.out, "out", "output", "检查点和结果的输出目录")
	flag.StringVar(&opts.db, "db", "", "记录求解过程的 sqlite 文件，为空时不记录")
	flag.BoolVar(&opts.verbose, "v", false, "输出每一代的日志")

	flag.Uint64Var(&opts.params.Seed, "seed", 0, "随机种子，0 表示根据当前时间生成")
	flag.IntVar(&opts.params.MaxGenerations, "generations", 0, "最大迭代代数")
	flag.DurationVar(&duration, "duration", 0, "最长求解时间")
	flag.IntVar(&opts.params.PopulationSize, "population", 0, "种群大小")
	flag.IntVar(&opts.params.SurvivorCount, "survivors", 0, "每代保留的个体数量")
	flag.IntVar(&opts.params.CheckpointFrequency, "checkpoint-every", 0, "每隔多少代写一次检查点")
	flag.IntVar(&opts.params.Parallelism, "parallelism", 0, "并行度，0 表示使用 GOMAXPROCS")
	flag.Float64Var(&opts.params.AdjacencyRadius, "radius", 0, "座位相邻半径")
	flag.StringVar(&strategy, "strategy", "", "初始种群策略 (naive, greedy)")
	flag.Parse()

	opts.params.MaxDuration = duration
	opts.params.Strategy = solver.Strategy(strategy)
	return opts
}

func loadInput(opts options) ([]domain.Seat, []domain.Team, error) {
	if opts.floor != "" {
		data, err := os.ReadFile(opts.floor)
		if err != nil {
			return nil, nil, err
		}
		return loader.LoadFloorDocument(data, loader.FloorDocumentOptions{FloorStride: opts.floorStride})
	}

	if opts.seats == "" || opts.teams == "" {
		return nil, nil, errors.New("需要指定 -floor，或者同时指定 -seats 和 -teams")
	}

	seatsFile, err := os.Open(opts.seats)
	if err != nil {
		return nil, nil, err
	}
	defer seatsFile.Close()
	seats, err := loader.LoadSeatsCSV(seatsFile)
	if err != nil {
		return nil, nil, err
	}

	teamsFile, err := os.Open(opts.teams)
	if err != nil {
		return nil, nil, err
	}
	defer teamsFile.Close()
	teams, err := loader.LoadTeamsJSON(teamsFile)
	if err != nil {
		return nil, nil, err
	}

	return seats, teams, nil
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	seats, teams, err := loadInput(opts)
	if err != nil {
		return fmt.Errorf("读取输入失败: %w", err)
	}

	fileSink, err := output.NewFileSink(opts.out)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	solverOpts := []solver.Option{
		solver.WithLogger(logger),
		solver.WithRunID(runID),
		solver.WithSink(fileSink),
	}

	var db *persistence.DB
	if opts.db != "" {
		db, err = persistence.Open(opts.db)
		if err != nil {
			return err
		}
		defer db.Close()
		solverOpts = append(solverOpts, solver.WithSink(db))
	}

	s, err := solver.New(seats, teams, opts.params, solverOpts...)
	if err != nil {
		return err
	}

	if db != nil {
		if err := db.StartRun(ctx, runID, s.Seed(), s.Parameters(), len(seats), len(teams)); err != nil {
			return err
		}
	}

	result, err := s.Solve(ctx)
	if result != nil {
		printSummary(result, len(seats), len(teams), opts.out)
	}
	return err
}

func printSummary(result *solver.Result, numSeats, numTeams int, out string) {
	fmt.Printf("任务 ID:    %s\n", result.RunID)
	fmt.Printf("随机种子:   %d\n", result.Seed)
	fmt.Printf("座位/团队:  %s / %s\n", humanize.Comma(int64(numSeats)), humanize.Comma(int64(numTeams)))
	fmt.Printf("迭代代数:   %s (%s)\n", humanize.Comma(int64(result.Generations)), result.Reason)
	fmt.Printf("耗时:       %s\n", result.Elapsed.Round(time.Millisecond))
	fmt.Printf("适应度:     %s\n", humanize.FtoaWithDigits(result.Best.Fitness, 4))
	fmt.Printf("方案有效:   %t\n", result.Best.Valid)
	for _, op := range result.Operators {
		fmt.Printf("  %-24s 生效 %s 次，无效 %s 次\n", op.Name, humanize.Comma(op.Changed), humanize.Comma(op.Noop))
	}
	if result.CheckpointErrors > 0 {
		fmt.Printf("检查点写入失败 %d 次\n", result.CheckpointErrors)
	}
	fmt.Printf("结果已写入 %s\n", out)
}

func main() {
	opts := parseFlags()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// CTRL+C 时在当前这一代结束后写入最后的检查点再退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("求解失败", "error", err)
		stop()
		os.Exit(1)
	}
}
