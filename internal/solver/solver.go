package solver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/domain"
	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/grid"
)

const flushTimeout = 30 * time.Second

// CheckpointSink 接收求解过程中的检查点和最终结果
type CheckpointSink interface {
	Checkpoint(ctx context.Context, snap *Snapshot) error
	Complete(ctx context.Context, result *Result) error
}

type TerminationReason string

const (
	ReasonMaxDuration    TerminationReason = "max_duration"
	ReasonMaxGenerations TerminationReason = "max_generations"
	ReasonConverged      TerminationReason = "converged"
	ReasonSteady         TerminationReason = "steady"
	ReasonCancelled      TerminationReason = "cancelled"
)

type GenerationStats struct {
	Generation int           `json:"generation"`
	Best       float64       `json:"best"`
	Worst      float64       `json:"worst"`
	BestEver   float64       `json:"bestEver"`
	Valid      bool          `json:"valid"`
	Invalid    int           `json:"invalid"`
	Discarded  int           `json:"discarded"`
	Killed     int           `json:"killed"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Snapshot: 某一代结束时的最优解快照
type Snapshot struct {
	RunID      string                  `json:"runID"`
	Generation int                     `json:"generation"`
	Stats      GenerationStats         `json:"stats"`
	Population domain.PopulationResult `json:"population"`
	Breakdown  FitnessBreakdown        `json:"breakdown"`
	Layout     []BlockLayout           `json:"layout"`
}

type OperatorCount struct {
	Name    string `json:"name"`
	Changed int64  `json:"changed"`
	Noop    int64  `json:"noop"`
}

type Result struct {
	RunID            string                  `json:"runID"`
	Seed             uint64                  `json:"seed"`
	Best             domain.AssignmentResult `json:"best"`
	Breakdown        FitnessBreakdown        `json:"breakdown"`
	Layout           []BlockLayout           `json:"layout"`
	Generations      int                     `json:"generations"`
	Reason           TerminationReason       `json:"reason"`
	Elapsed          time.Duration           `json:"elapsed"`
	CheckpointErrors int                     `json:"checkpointErrors"`
	Operators        []OperatorCount         `json:"operators"`
}

type Option func(*Solver)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}

func WithSink(sink CheckpointSink) Option {
	return func(s *Solver) {
		s.sinks = append(s.sinks, sink)
	}
}

func WithRunID(runID string) Option {
	return func(s *Solver) {
		s.runID = runID
	}
}

// WithProgress 注册每一代结束时的回调，回调在主 goroutine 中同步执行
func WithProgress(fn func(GenerationStats)) Option {
	return func(s *Solver) {
		s.progress = fn
	}
}

type Solver struct {
	p         *problem
	selector  *blockSelector
	validator *validator
	evaluator *Evaluator
	factory   GenotypeFactory
	operators []Operator

	logger   *slog.Logger
	sinks    []CheckpointSink
	progress func(GenerationStats)
	runID    string
	seed     uint64

	best             atomic.Pointer[Snapshot]
	checkpointErrors int
}

func New(seats []domain.Seat, teams []domain.Team, params Parameters, opts ...Option) (*Solver, error) {
	params = params.WithDefaults()

	if err := validateInput(seats, teams, params); err != nil {
		return nil, err
	}

	index, err := grid.New(seats, grid.Options{
		MaxDistance: params.AdjacencyRadius,
		SeatWidth:   params.SeatWidth,
		SeatHeight:  params.SeatHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("构建座位相邻关系失败: %w", err)
	}

	p := &problem{
		seats:    seats,
		teams:    teams,
		index:    index,
		teamByID: make(map[string]int, len(teams)),
		params:   params,
	}
	for i, team := range teams {
		p.teamByID[team.ID] = i
	}

	s := &Solver{
		p:         p,
		selector:  newBlockSelector(index, params),
		validator: newValidator(p),
		evaluator: newEvaluator(p),
		logger:    slog.Default(),
		seed:      params.Seed,
	}
	s.factory = newGenotypeFactory(p, s.selector)

	for _, spec := range params.Operators {
		if spec.Probability <= 0 {
			continue
		}
		op, err := newOperator(spec, p, s.selector)
		if err != nil {
			return nil, err
		}
		s.operators = append(s.operators, op)
	}
	if len(s.operators) == 0 {
		return nil, ErrNoOperators
	}

	if s.seed == 0 {
		s.seed = uint64(time.Now().UnixNano())
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func validateInput(seats []domain.Seat, teams []domain.Team, params Parameters) error {
	if len(seats) == 0 {
		return ErrNoSeats
	}
	if len(teams) == 0 {
		return ErrNoTeams
	}

	seatIDs := make(map[string]struct{}, len(seats))
	for _, seat := range seats {
		if _, exists := seatIDs[seat.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateSeat, seat.ID)
		}
		seatIDs[seat.ID] = struct{}{}
	}

	teamIDs := make(map[string]struct{}, len(teams))
	total := 0
	for _, team := range teams {
		if _, exists := teamIDs[team.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTeam, team.ID)
		}
		teamIDs[team.ID] = struct{}{}

		if team.NumMembers <= 0 {
			return fmt.Errorf("%w: 团队 %s 的人数为 %d", ErrInvalidTeamSize, team.ID, team.NumMembers)
		}
		if team.NumMembers > len(seats) {
			return fmt.Errorf("%w: 团队 %s 需要 %d 个座位，但只有 %d 个座位", ErrTeamTooLarge, team.ID, team.NumMembers, len(seats))
		}
		total += team.NumMembers
	}
	if total > len(seats) {
		return fmt.Errorf("%w: 需要 %d 个座位，但只有 %d 个座位", ErrTeamsExceedSeats, total, len(seats))
	}

	return params.Validate()
}

func (s *Solver) Parameters() Parameters {
	return s.p.params
}

func (s *Solver) Seed() uint64 {
	return s.seed
}

// Best 返回最近一代的最优解快照，求解开始前为 nil
func (s *Solver) Best() *Snapshot {
	return s.best.Load()
}

// Flush 把最近一次的快照写入所有 sink
func (s *Solver) Flush(ctx context.Context) error {
	snap := s.Best()
	if snap == nil {
		return nil
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Checkpoint(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Solve 运行遗传算法直到满足任一终止条件
//
// 取消 ctx 时在当前这一代结束后停止，并把最后的快照写入 sink。
// 只有写入最终结果失败时才会同时返回非 nil 的 result 和 error。
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	params := s.p.params
	start := time.Now()
	master := rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))

	s.logger.Info("开始求解",
		"runID", s.runID,
		"seats", len(s.p.seats),
		"teams", len(s.p.teams),
		"populationSize", params.PopulationSize,
		"strategy", params.Strategy,
		"seed", s.seed,
	)

	pop := s.initialPopulation(master)
	slices.SortStableFunc(pop, compareIndividuals)
	bestEver := *pop[0]

	history := []bestRecord{{Fitness: bestEver.Fitness, Valid: bestEver.Valid}}
	lastImprovement := 0
	generation := 0
	var reason TerminationReason

	for {
		if reason = s.shouldStop(ctx, generation, start, history, lastImprovement); reason != "" {
			break
		}
		generation++

		s.evaluator.nextGeneration()
		var stats GenerationStats
		pop, stats = s.step(master, pop)

		if better(pop[0], &bestEver) {
			bestEver = *pop[0]
			lastImprovement = generation
		}
		history = append(history, bestRecord{Fitness: bestEver.Fitness, Valid: bestEver.Valid})

		stats.Generation = generation
		stats.BestEver = bestEver.Fitness
		stats.Valid = bestEver.Valid
		stats.Elapsed = time.Since(start)

		snap := s.snapshot(generation, stats, &bestEver, pop)
		s.best.Store(snap)
		if s.progress != nil {
			s.progress(stats)
		}

		if generation == 1 || generation%params.CheckpointFrequency == 0 {
			s.logGeneration(slog.LevelInfo, stats)
			s.checkpoint(ctx, snap)
		} else {
			s.logGeneration(slog.LevelDebug, stats)
		}
	}

	if reason == ReasonCancelled {
		s.logger.Warn("求解被取消，写入最后的检查点", "runID", s.runID, "generation", generation)
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		if snap := s.Best(); snap != nil {
			s.checkpoint(flushCtx, snap)
		}
		cancel()
	}

	result := &Result{
		RunID:            s.runID,
		Seed:             s.seed,
		Best:             s.p.assignmentResult(&bestEver),
		Breakdown:        s.evaluator.Breakdown(bestEver.Genotype),
		Layout:           s.p.layouts(bestEver.Genotype),
		Generations:      generation,
		Reason:           reason,
		Elapsed:          time.Since(start),
		CheckpointErrors: s.checkpointErrors,
	}
	for _, op := range s.operators {
		changed, noop := op.Counts()
		result.Operators = append(result.Operators, OperatorCount{Name: op.Name(), Changed: changed, Noop: noop})
	}

	s.logger.Info("求解结束",
		"runID", s.runID,
		"reason", reason,
		"generations", generation,
		"fitness", result.Best.Fitness,
		"valid", result.Best.Valid,
		"elapsed", result.Elapsed,
	)

	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Complete(completeCtx, result); err != nil {
			s.logger.Error("写入最终结果失败", "runID", s.runID, "error", err)
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

// bestRecord 是某一代结束时的历史最优个体
type bestRecord struct {
	Fitness float64
	Valid   bool
}

func (s *Solver) shouldStop(ctx context.Context, generation int, start time.Time, history []bestRecord, lastImprovement int) TerminationReason {
	params := s.p.params

	if ctx.Err() != nil {
		return ReasonCancelled
	}
	if time.Since(start) >= params.MaxDuration {
		return ReasonMaxDuration
	}
	if generation >= params.MaxGenerations {
		return ReasonMaxGenerations
	}
	if w := params.ConvergenceWindow; w > 0 && generation >= w {
		// 窗口内从不合法变为合法本身就是改进，此时适应度可能反而变大
		then, now := history[generation-w], history[generation]
		if then.Valid == now.Valid && then.Fitness-now.Fitness <= params.ConvergenceEpsilon {
			return ReasonConverged
		}
	}
	if w := params.SteadyWindow; w > 0 && generation-lastImprovement >= w {
		return ReasonSteady
	}
	return ""
}

func compareIndividuals(a, b *Individual) int {
	if a.Valid != b.Valid {
		if a.Valid {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Fitness, b.Fitness)
}

// workerRNGs 从主随机数生成器为每个 worker 派生独立的生成器
func workerRNGs(master *rand.Rand, n int) []*rand.Rand {
	rngs := make([]*rand.Rand, n)
	for i := range rngs {
		rngs[i] = rand.New(rand.NewPCG(master.Uint64(), master.Uint64()))
	}
	return rngs
}

// parallel 把 [0, n) 按 worker 数量交错分片并发执行，每个 worker 使用自己的随机数生成器
//
// 分片方式固定，所以在种子相同时结果与调度顺序无关。
func (s *Solver) parallel(master *rand.Rand, n int, fn func(rng *rand.Rand, i int)) {
	if n == 0 {
		return
	}
	workers := max(1, min(s.p.params.Parallelism, n))
	rngs := workerRNGs(master, workers)

	var g errgroup.Group
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		rng := rngs[w]
		g.Go(func() error {
			for i := w; i < n; i += workers {
				fn(rng, i)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Solver) fresh(rng *rand.Rand) *Individual {
	g := s.factory.NewGenotype(rng)
	return &Individual{
		Genotype: g,
		Fitness:  s.evaluator.Score(g),
		Valid:    s.validator.Validate(g),
	}
}

func (s *Solver) initialPopulation(master *rand.Rand) []*Individual {
	pop := make([]*Individual, s.p.params.PopulationSize)
	s.parallel(master, len(pop), func(rng *rand.Rand, i int) {
		pop[i] = s.fresh(rng)
	})
	return pop
}

// step 由上一代（已排序）产生下一代，返回排好序的新种群
func (s *Solver) step(master *rand.Rand, pop []*Individual) ([]*Individual, GenerationStats) {
	params := s.p.params
	var stats GenerationStats

	survivors := pop[:params.SurvivorCount]

	parents := make([]*Individual, 0, len(survivors))
	for _, ind := range survivors {
		if ind.Valid {
			parents = append(parents, ind)
		}
	}
	if len(parents) == 0 {
		parents = survivors
	}

	next := make([]*Individual, 0, params.PopulationSize)
	for _, ind := range survivors {
		aged := *ind
		aged.Age++
		if aged.Age > params.MaxAge {
			stats.Killed++
			continue
		}
		next = append(next, &aged)
	}

	// 前 Killed 个名额用新生成的个体补上，其余由繁殖产生
	newcomers := make([]*Individual, params.PopulationSize-len(next))
	discarded := make([]int, len(newcomers))
	s.parallel(master, len(newcomers), func(rng *rand.Rand, i int) {
		if i < stats.Killed {
			newcomers[i] = s.fresh(rng)
			return
		}
		newcomers[i], discarded[i] = s.breed(rng, parents)
	})

	next = append(next, newcomers...)
	slices.SortStableFunc(next, compareIndividuals)

	for _, d := range discarded {
		stats.Discarded += d
	}
	for _, ind := range next {
		if !ind.Valid {
			stats.Invalid++
		}
	}
	stats.Best = next[0].Fitness
	stats.Worst = next[len(next)-1].Fitness

	return next, stats
}

func (s *Solver) tournament(rng *rand.Rand, pool []*Individual) *Individual {
	best := pool[rng.IntN(len(pool))]
	for i := 1; i < s.p.params.TournamentSize; i++ {
		if candidate := pool[rng.IntN(len(pool))]; better(candidate, best) {
			best = candidate
		}
	}
	return best
}

// breed 产生一个子代；不合法的子代会被丢弃并重新产生，
// 重试次数用完后接受最后一个子代以保证进度。返回被丢弃的子代数量。
func (s *Solver) breed(rng *rand.Rand, parents []*Individual) (*Individual, int) {
	discarded := 0

	for attempt := 0; ; attempt++ {
		children := []*Genotype{
			s.tournament(rng, parents).Genotype,
			s.tournament(rng, parents).Genotype,
		}

		for _, op := range s.operators {
			if rng.Float64() >= op.Probability() {
				continue
			}
			if op.Arity() == 2 {
				children = op.Apply(rng, children)
				continue
			}
			for i := range children {
				children[i] = op.Apply(rng, children[i:i+1])[0]
			}
		}

		child := children[0]
		if err := s.validator.CheckPartition(child); err != nil {
			panic(fmt.Sprintf("算子破坏了座位划分: %v", err))
		}

		valid := s.validator.Validate(child)
		if valid || attempt >= s.p.params.OffspringRetries {
			return &Individual{
				Genotype: child,
				Fitness:  s.evaluator.Score(child),
				Valid:    valid,
			}, discarded
		}
		discarded++
	}
}

func (s *Solver) snapshot(generation int, stats GenerationStats, best *Individual, pop []*Individual) *Snapshot {
	topTen := make([]domain.AssignmentResult, 0, 10)
	for _, ind := range pop[:min(10, len(pop))] {
		topTen = append(topTen, s.p.assignmentResult(ind))
	}

	return &Snapshot{
		RunID:      s.runID,
		Generation: generation,
		Stats:      stats,
		Population: domain.PopulationResult{
			Best:   s.p.assignmentResult(best),
			TopTen: topTen,
		},
		Breakdown: s.evaluator.Breakdown(best.Genotype),
		Layout:    s.p.layouts(best.Genotype),
	}
}

// checkpoint 写入失败只记录日志，下一个检查点会再次尝试
func (s *Solver) checkpoint(ctx context.Context, snap *Snapshot) {
	for _, sink := range s.sinks {
		if err := sink.Checkpoint(ctx, snap); err != nil {
			s.checkpointErrors++
			s.logger.Error("写入检查点失败", "runID", s.runID, "generation", snap.Generation, "error", err)
		}
	}
}

func (s *Solver) logGeneration(level slog.Level, stats GenerationStats) {
	s.logger.Log(context.Background(), level, "完成一代",
		"runID", s.runID,
		"generation", stats.Generation,
		"best", stats.Best,
		"worst", stats.Worst,
		"bestEver", stats.BestEver,
		"valid", stats.Valid,
		"invalid", stats.Invalid,
		"discarded", stats.Discarded,
		"killed", stats.Killed,
		"elapsed", stats.Elapsed,
	)
}
