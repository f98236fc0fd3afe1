package cluster

import (
	"context"
	"fmt"
	"iter"
	"math/rand"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of a run
type State int

const (
	StateSeeding State = iota
	StateIterating
	StateConverged
	StateBudgetExhausted
)

func (s State) String() string {
	switch s {
	case StateSeeding:
		return "seeding"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateBudgetExhausted:
		return "budget_exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further steps follow this state
func (s State) Terminal() bool {
	return s == StateConverged || s == StateBudgetExhausted
}

// Step is the observable outcome of one completed iteration
type Step struct {
	Iteration int // 1-based
	Partition Partition
	Loss      []float64 // loss trace so far, one entry per iteration
	Movement  float64   // largest centroid movement in this iteration
	State     State     // state after this iteration
}

// Run is a single seeded clustering run over a private copy of its items.
// Advance it with Next; it is not safe for concurrent use.
type Run[T any] struct {
	cfg    Config
	solver *solver[T]
	logger zerolog.Logger

	state     State
	iteration int
	loss      []float64
	current   Step
	err       error
	started   time.Time
}

// NewRun validates cfg against items, computes the fuzzifier vector and seeds
// the centroids. Configuration problems are reported here, before any step.
func NewRun[T any](ctx context.Context, items []T, s Strategy[T], cfg Config) (*Run[T], error) {
	if cfg.DistanceFloor == 0 {
		cfg.DistanceFloor = DefaultDistanceFloor
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := len(items)
	if n == 0 {
		return nil, configErrorf("items", "dataset is empty")
	}
	if cfg.Clusters > n {
		return nil, configErrorf("clusters", "%d exceeds item count %d", cfg.Clusters, n)
	}
	if cfg.Clusters*cfg.Capacity < n {
		return nil, &AssignmentOverflowError{Capacity: cfg.Capacity, Clusters: cfg.Clusters, Items: n}
	}

	logger := log.With().Str("component", "cluster").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	items = slices.Clone(items)

	var (
		fuzzifiers []float64
		err        error
	)
	switch cfg.Fuzzifier.Mode {
	case FuzzifierAdaptive:
		fuzzifiers, err = Calibrate(ctx, items, s, cfg.Clusters, cfg.Fuzzifier.Calibration)
	case FuzzifierFixed:
		fuzzifiers, err = FixedFuzzifier(n, cfg.Fuzzifier.M)
	case FuzzifierPrecomputed:
		if len(cfg.Fuzzifier.Values) != n {
			err = configErrorf("fuzzifier", "has %d values for %d items", len(cfg.Fuzzifier.Values), n)
		}
		fuzzifiers = slices.Clone(cfg.Fuzzifier.Values)
	}
	if err != nil {
		return nil, err
	}

	seeds, err := Seed(items, s, cfg.Clusters, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return nil, err
	}
	centroids := make([]T, len(seeds))
	for k, idx := range seeds {
		centroids[k] = items[idx]
	}

	logger.Debug().
		Int("items", n).
		Int("clusters", cfg.Clusters).
		Int("capacity", cfg.Capacity).
		Ints("seeds", seeds).
		Str("loss", cfg.Loss.String()).
		Msg("Clustering run initialized")

	return &Run[T]{
		cfg:     cfg,
		solver:  newSolver(items, s, fuzzifiers, centroids, cfg.DistanceFloor, cfg.Loss),
		logger:  logger,
		state:   StateSeeding,
		started: time.Now(),
	}, nil
}

// Next runs one iteration and makes its result available through Step.
// It returns false once the run reached a terminal state, after ctx is
// cancelled (reported by Err), or after an error.
func (r *Run[T]) Next(ctx context.Context) bool {
	if r.err != nil || r.state.Terminal() {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		r.logger.Debug().Int("iteration", r.iteration).Err(err).Msg("Clustering run cancelled")
		return false
	}

	r.state = StateIterating
	movement, loss := r.solver.step()
	r.iteration++
	r.loss = append(r.loss, loss)

	switch {
	case movement <= r.cfg.ConvergenceEpsilon:
		r.state = StateConverged
	case r.iteration >= r.cfg.MaxIterations:
		r.state = StateBudgetExhausted
	}

	partition, err := Assign(r.solver.membership, r.cfg.Clusters, r.cfg.Capacity)
	if err != nil {
		r.err = err
		return false
	}

	r.current = Step{
		Iteration: r.iteration,
		Partition: partition,
		Loss:      slices.Clone(r.loss),
		Movement:  movement,
		State:     r.state,
	}

	r.logger.Debug().
		Int("iteration", r.iteration).
		Float64("loss", loss).
		Float64("movement", movement).
		Msg("Clustering step completed")

	if r.state.Terminal() {
		r.logger.Info().
			Str("state", r.state.String()).
			Int("iterations", r.iteration).
			Float64("loss", loss).
			Dur("duration", time.Since(r.started)).
			Msg("Clustering run finished")
	}
	return true
}

// Step returns the result of the last successful Next
func (r *Run[T]) Step() Step {
	return r.current
}

// State returns the current state of the run
func (r *Run[T]) State() State {
	return r.state
}

// Err returns the error that stopped the run, if any
func (r *Run[T]) Err() error {
	return r.err
}

// Iterations returns the number of completed iterations
func (r *Run[T]) Iterations() int {
	return r.iteration
}

// Fuzzifiers returns the per-item fuzzifier vector of the run
func (r *Run[T]) Fuzzifiers() []float64 {
	return slices.Clone(r.solver.fuzzifiers)
}

// Membership returns a copy of the current membership matrix
func (r *Run[T]) Membership() [][]float64 {
	return r.solver.membershipCopy()
}

// Centroids returns the current centroids
func (r *Run[T]) Centroids() []T {
	return slices.Clone(r.solver.centroids)
}

// All yields every step until the run stops. Check Err and State afterwards.
func (r *Run[T]) All(ctx context.Context) iter.Seq[Step] {
	return func(yield func(Step) bool) {
		for r.Next(ctx) {
			if !yield(r.Step()) {
				return
			}
		}
	}
}

// Execute runs a full clustering and hands every step to emit before the next
// step starts. An error from emit stops the run and is returned as is.
func Execute[T any](ctx context.Context, items []T, s Strategy[T], cfg Config, emit func(Step) error) (State, error) {
	run, err := NewRun(ctx, items, s, cfg)
	if err != nil {
		return StateSeeding, err
	}
	for run.Next(ctx) {
		if err := emit(run.Step()); err != nil {
			return run.State(), err
		}
	}
	return run.State(), run.Err()
}
