package solver

import (
	"fmt"
	"runtime"
	"time"
)

type Strategy string

const (
	StrategyNaive  Strategy = "naive"
	StrategyGreedy Strategy = "greedy"
)

// Aggregation: 把每个团队（或每条相邻需求）的代价合并成一个标量的方式
type Aggregation string

const (
	AggregationSumStddev  Aggregation = "sum_stddev" // sum × stddev
	AggregationSum        Aggregation = "sum"
	AggregationMean       Aggregation = "mean"
	AggregationPercentile Aggregation = "percentile"
)

type OperatorKind string

const (
	OperatorBlockSwap           OperatorKind = "block_swap"
	OperatorBlockSwapCrossover  OperatorKind = "block_swap_crossover"
	OperatorBoundarySeatSwap    OperatorKind = "boundary_seat_swap"
	OperatorThreeWayRebalance   OperatorKind = "three_way_rebalance"
	OperatorOverflowSwap        OperatorKind = "overflow_swap"
	OperatorNearestSeatRelocate OperatorKind = "nearest_seat_relocate"
)

type OperatorSpec struct {
	Kind        OperatorKind `json:"kind" validate:"required,oneof=block_swap block_swap_crossover boundary_seat_swap three_way_rebalance overflow_swap nearest_seat_relocate"`
	Probability float64      `json:"probability" validate:"min=0,max=1"`
	MaxRetries  int          `json:"maxRetries" validate:"min=0"`
}

const (
	DefaultPopulationSize      = 1500
	DefaultSurvivorCount       = 100
	DefaultMaxAge              = 100
	DefaultCheckpointFrequency = 100
	DefaultMaxDuration         = 8 * time.Hour
	DefaultMaxGenerations      = 100000
	DefaultConvergenceWindow   = 500
	DefaultConvergenceEpsilon  = 1e-9
	DefaultSteadyWindow        = 2000
	DefaultIntraPercentile     = 0.9
	DefaultAdjPercentile       = 0.9
	DefaultIntraPower          = 1.0
	DefaultIntraWeight         = 0.5
	DefaultProximityWeight     = 1.0
	DefaultAdjacencyRadius     = 60
	DefaultSeatWidth           = 12
	DefaultSeatHeight          = 14
	DefaultMaxSeatAttempts     = 100
	DefaultMaxBlockAttempts    = 100
	DefaultMaxFillAttempts     = 250
	DefaultOffspringRetries    = 5
	DefaultTournamentSize      = 3
	DefaultGreedySeedTeams     = 30
	DefaultOperatorRetries     = 50
)

// Parameters: 一次求解的全部可调参数
//
// 零值字段在 WithDefaults 中回退到默认值；窗口类参数为负数时表示关闭该终止条件，
// 权重和收敛阈值为负数时表示取 0。
// 收敛窗口不超过稳定窗口时，稳定窗口只作为关闭收敛判断后的兜底条件。
type Parameters struct {
	PopulationSize      int           `json:"populationSize" validate:"min=0,max=100000"`
	SurvivorCount       int           `json:"survivorCount" validate:"min=0"`
	MaxAge              int           `json:"maxAge" validate:"min=0"`
	CheckpointFrequency int           `json:"checkpointFrequency" validate:"min=0"`
	MaxDuration         time.Duration `json:"maxDuration" validate:"min=0"`
	MaxGenerations      int           `json:"maxGenerations" validate:"min=0"`

	ConvergenceWindow  int     `json:"convergenceWindow"`
	ConvergenceEpsilon float64 `json:"convergenceEpsilon"`
	SteadyWindow       int     `json:"steadyWindow"`

	IntraAggregation Aggregation `json:"intraAggregation" validate:"omitempty,oneof=sum_stddev sum mean percentile"`
	IntraPercentile  float64     `json:"intraPercentile" validate:"min=0,max=1"`
	IntraPower       float64     `json:"intraPower" validate:"min=0"`
	IntraWeight      float64     `json:"intraWeight"`
	AdjAggregation   Aggregation `json:"adjAggregation" validate:"omitempty,oneof=sum_stddev sum mean percentile"`
	AdjPercentile    float64     `json:"adjPercentile" validate:"min=0,max=1"`
	ProximityWeight  float64     `json:"proximityWeight"`

	AdjacencyRadius float64 `json:"adjacencyRadius" validate:"min=0"`
	SeatWidth       float64 `json:"seatWidth" validate:"min=0"`
	SeatHeight      float64 `json:"seatHeight" validate:"min=0"`

	MaxSeatAttempts  int `json:"maxSeatAttempts" validate:"min=0"`
	MaxBlockAttempts int `json:"maxBlockAttempts" validate:"min=0"`
	MaxFillAttempts  int `json:"maxFillAttempts" validate:"min=0"`
	OffspringRetries int `json:"offspringRetries" validate:"min=0"`

	TournamentSize  int      `json:"tournamentSize" validate:"min=0"`
	Strategy        Strategy `json:"strategy" validate:"omitempty,oneof=naive greedy"`
	GreedySeedTeams int      `json:"greedySeedTeams" validate:"min=0"`
	Parallelism     int      `json:"parallelism" validate:"min=0"`
	Seed            uint64   `json:"seed"`

	// nil 表示使用默认算子组合，空切片表示没有配置任何算子（配置错误）
	Operators []OperatorSpec `json:"operators,omitempty" validate:"omitempty,dive"`
}

func DefaultOperators() []OperatorSpec {
	return []OperatorSpec{
		{Kind: OperatorBlockSwap, Probability: 0.1, MaxRetries: DefaultOperatorRetries},
		{Kind: OperatorBlockSwapCrossover, Probability: 0.1, MaxRetries: DefaultOperatorRetries},
		{Kind: OperatorBoundarySeatSwap, Probability: 0.2, MaxRetries: 20},
		{Kind: OperatorThreeWayRebalance, Probability: 0.05, MaxRetries: DefaultOperatorRetries},
		{Kind: OperatorOverflowSwap, Probability: 0.05},
		{Kind: OperatorNearestSeatRelocate, Probability: 0.2, MaxRetries: 20},
	}
}

func DefaultParameters() Parameters {
	return Parameters{}.WithDefaults()
}

// WithDefaults 返回一份把所有零值字段替换为默认值的参数副本
func (p Parameters) WithDefaults() Parameters {
	setInt(&p.PopulationSize, DefaultPopulationSize)
	setInt(&p.SurvivorCount, DefaultSurvivorCount)
	setInt(&p.MaxAge, DefaultMaxAge)
	setInt(&p.CheckpointFrequency, DefaultCheckpointFrequency)
	setInt(&p.MaxGenerations, DefaultMaxGenerations)
	setInt(&p.ConvergenceWindow, DefaultConvergenceWindow)
	setInt(&p.SteadyWindow, DefaultSteadyWindow)
	setInt(&p.MaxSeatAttempts, DefaultMaxSeatAttempts)
	setInt(&p.MaxBlockAttempts, DefaultMaxBlockAttempts)
	setInt(&p.MaxFillAttempts, DefaultMaxFillAttempts)
	setInt(&p.OffspringRetries, DefaultOffspringRetries)
	setInt(&p.TournamentSize, DefaultTournamentSize)
	setInt(&p.GreedySeedTeams, DefaultGreedySeedTeams)
	setInt(&p.Parallelism, runtime.GOMAXPROCS(0))

	setFloatOrZero(&p.ConvergenceEpsilon, DefaultConvergenceEpsilon)
	setFloat(&p.IntraPercentile, DefaultIntraPercentile)
	setFloat(&p.AdjPercentile, DefaultAdjPercentile)
	setFloat(&p.IntraPower, DefaultIntraPower)
	setFloatOrZero(&p.IntraWeight, DefaultIntraWeight)
	setFloatOrZero(&p.ProximityWeight, DefaultProximityWeight)
	setFloat(&p.AdjacencyRadius, DefaultAdjacencyRadius)
	setFloat(&p.SeatWidth, DefaultSeatWidth)
	setFloat(&p.SeatHeight, DefaultSeatHeight)

	if p.MaxDuration == 0 {
		p.MaxDuration = DefaultMaxDuration
	}
	if p.IntraAggregation == "" {
		p.IntraAggregation = AggregationSumStddev
	}
	if p.AdjAggregation == "" {
		p.AdjAggregation = AggregationSumStddev
	}
	if p.Strategy == "" {
		p.Strategy = StrategyGreedy
	}
	if p.Operators == nil {
		p.Operators = DefaultOperators()
	} else {
		ops := make([]OperatorSpec, len(p.Operators))
		for i, op := range p.Operators {
			if op.MaxRetries == 0 {
				op.MaxRetries = DefaultOperatorRetries
			}
			ops[i] = op
		}
		p.Operators = ops
	}

	return p
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

// setFloatOrZero 与 setFloat 相同，但负数表示显式取 0
func setFloatOrZero(v *float64, def float64) {
	switch {
	case *v == 0:
		*v = def
	case *v < 0:
		*v = 0
	}
}

// Validate 检查参数之间的约束，应当在 WithDefaults 之后调用
func (p Parameters) Validate() error {
	if p.SurvivorCount >= p.PopulationSize {
		return fmt.Errorf("%w: 存活数量 %d 必须小于种群大小 %d", ErrInvalidParameter, p.SurvivorCount, p.PopulationSize)
	}
	switch p.Strategy {
	case StrategyNaive, StrategyGreedy:
	default:
		return fmt.Errorf("%w: 未知的初始化策略 %q", ErrInvalidParameter, p.Strategy)
	}
	for _, mode := range []Aggregation{p.IntraAggregation, p.AdjAggregation} {
		switch mode {
		case AggregationSumStddev, AggregationSum, AggregationMean, AggregationPercentile:
		default:
			return fmt.Errorf("%w: 未知的聚合方式 %q", ErrInvalidParameter, mode)
		}
	}

	enabled := 0
	for _, op := range p.Operators {
		switch op.Kind {
		case OperatorBlockSwap, OperatorBlockSwapCrossover, OperatorBoundarySeatSwap,
			OperatorThreeWayRebalance, OperatorOverflowSwap, OperatorNearestSeatRelocate:
		default:
			return fmt.Errorf("%w: 未知的算子 %q", ErrInvalidParameter, op.Kind)
		}
		if op.Probability > 0 {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoOperators
	}

	return nil
}
