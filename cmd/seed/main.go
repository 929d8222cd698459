package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/config"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/infra"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/loader"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/repository"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/seed"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/utils"
)

func main() {
	var (
		op     int
		n      int
		file   string
		name   string
		stride float64
	)

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机用户, 2: 插入随机平面图和团队, 3: 导入楼层文档)")
	flag.IntVar(&n, "n", 5, "要插入的用户数量")
	flag.StringVar(&file, "file", "", "要导入的楼层文档路径")
	flag.StringVar(&name, "name", "", "平面图名称")
	flag.Float64Var(&stride, "floor-stride", loader.DefaultFloorStride, "楼层文档中相邻楼层的坐标偏移")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", "error", err)
		os.Exit(1)
	}

	dbpool, err := infra.OpenDB(cfg)
	if err != nil {
		logger.Error("无法连接到数据库", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	repo := repository.NewRepository(cfg, dbpool)
	ctx := context.Background()
	fpCfg := cfg.Seed.FloorPlan
	rng := rand.New(rand.NewPCG(uint64(fpCfg.Seed), uint64(time.Now().UnixNano())))

	switch op {
	case 0:
		logger.Error("未指定操作")
	case 1:
		if n <= 0 {
			logger.Error("请输入合法的用户数量")
			return
		}
		cnt := seed.SeedUsers(ctx, repo, rng, n, cfg.Seed.User.Password, cfg.Email.UserDomain)
		logger.Info("插入用户成功", "count", cnt)
	case 2:
		if name == "" {
			name = "随机平面图-" + time.Now().Format("20060102150405")
		}
		opts := utils.FloorPlanOptions{
			Rows:      fpCfg.Rows,
			Cols:      fpCfg.Cols,
			PitchX:    fpCfg.PitchX,
			PitchY:    fpCfg.PitchY,
			AisleRate: fpCfg.AisleRate,
			Seed:      fpCfg.Seed,
		}
		if _, _, err := seed.SeedRandomFloorPlan(ctx, repo, rng, name, opts, fpCfg.Teams); err != nil {
			logger.Error("无法插入随机平面图", "error", err)
			os.Exit(1)
		}
	case 3:
		if file == "" || name == "" {
			logger.Error("请指定楼层文档路径和平面图名称")
			return
		}
		if _, _, err := seed.ImportFloorDocument(ctx, repo, file, name, loader.FloorDocumentOptions{FloorStride: stride}); err != nil {
			logger.Error("无法导入楼层文档", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("不支持的操作", "op", op)
	}
}
