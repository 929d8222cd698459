package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN                string `env:"DSN,required"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	InitialAdmin struct {
		Username string `env:"USERNAME" envDefault:"admin"`
		Password string `env:"PASSWORD,required"`
		FullName string `env:"FULL_NAME" envDefault:"管理员"`
		Email    string `env:"EMAIL,required"`
	} `envPrefix:"INITIAL_ADMIN_"`
	JWT struct {
		Expiration int    `env:"EXPIRATION" envDefault:"1209600"` // 14 天
		Secret     string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	Seed struct {
		User struct {
			Password string `env:"PASSWORD,required"`
		} `envPrefix:"USER_"`
		FloorPlan struct {
			Rows      int     `env:"ROWS" envDefault:"20"`
			Cols      int     `env:"COLS" envDefault:"24"`
			PitchX    float64 `env:"PITCH_X" envDefault:"14"`
			PitchY    float64 `env:"PITCH_Y" envDefault:"16"`
			AisleRate float64 `env:"AISLE_RATE" envDefault:"0.15"` // 被噪声挖成过道的座位比例
			Teams     int     `env:"TEAMS" envDefault:"30"`
			Seed      int64   `env:"SEED" envDefault:"1"`
		} `envPrefix:"FLOOR_PLAN_"`
	} `envPrefix:"SEED_"`
	Email struct {
		UserDomain string `env:"USER_DOMAIN,required"`
		SMTP       struct {
			Username    string `env:"USERNAME,required"`
			Password    string `env:"PASSWORD,required"`
			Host        string `env:"HOST,required"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD,required"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
		ProgressExpiration  int    `env:"PROGRESS_EXPIRATION" envDefault:"86400"` // 1 天
	} `envPrefix:"REDIS_"`
	Solver struct {
		PopulationSize      int     `env:"POPULATION_SIZE" envDefault:"1500"`
		SurvivorCount       int     `env:"SURVIVOR_COUNT" envDefault:"100"`
		MaxAge              int     `env:"MAX_AGE" envDefault:"100"`
		CheckpointFrequency int     `env:"CHECKPOINT_FREQUENCY" envDefault:"100"`
		MaxDuration         int     `env:"MAX_DURATION" envDefault:"28800"` // 8 小时
		MaxGenerations      int     `env:"MAX_GENERATIONS" envDefault:"100000"`
		ConvergenceWindow   int     `env:"CONVERGENCE_WINDOW" envDefault:"500"`
		ConvergenceEpsilon  float64 `env:"CONVERGENCE_EPSILON" envDefault:"1e-9"`
		SteadyWindow        int     `env:"STEADY_WINDOW" envDefault:"2000"`
		IntraAggregation    string  `env:"INTRA_AGGREGATION" envDefault:"sum_stddev"`
		IntraPercentile     float64 `env:"INTRA_PERCENTILE" envDefault:"0.9"`
		AdjAggregation      string  `env:"ADJ_AGGREGATION" envDefault:"sum_stddev"`
		AdjPercentile       float64 `env:"ADJ_PERCENTILE" envDefault:"0.9"`
		AdjacencyRadius     float64 `env:"ADJACENCY_RADIUS" envDefault:"60"`
		MaxBlockAttempts    int     `env:"MAX_BLOCK_ATTEMPTS" envDefault:"100"`
		Strategy            string  `env:"STRATEGY" envDefault:"greedy"`
		Parallelism         int     `env:"PARALLELISM" envDefault:"0"` // 0 表示使用 GOMAXPROCS
		MaxConcurrentRuns   int     `env:"MAX_CONCURRENT_RUNS" envDefault:"1"`
	} `envPrefix:"SOLVER_"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	return cfg, nil
}

// SolverParameters 返回由环境变量决定的默认求解参数
func (cfg *Config) SolverParameters() solver.Parameters {
	s := cfg.Solver
	return solver.Parameters{
		PopulationSize:      s.PopulationSize,
		SurvivorCount:       s.SurvivorCount,
		MaxAge:              s.MaxAge,
		CheckpointFrequency: s.CheckpointFrequency,
		MaxDuration:         time.Duration(s.MaxDuration) * time.Second,
		MaxGenerations:      s.MaxGenerations,
		ConvergenceWindow:   s.ConvergenceWindow,
		ConvergenceEpsilon:  s.ConvergenceEpsilon,
		SteadyWindow:        s.SteadyWindow,
		IntraAggregation:    solver.Aggregation(s.IntraAggregation),
		IntraPercentile:     s.IntraPercentile,
		AdjAggregation:      solver.Aggregation(s.AdjAggregation),
		AdjPercentile:       s.AdjPercentile,
		AdjacencyRadius:     s.AdjacencyRadius,
		MaxBlockAttempts:    s.MaxBlockAttempts,
		Strategy:            solver.Strategy(s.Strategy),
		Parallelism:         s.Parallelism,
	}.WithDefaults()
}
