package cluster

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(k, capacity int) Config {
	cfg := DefaultConfig()
	cfg.Clusters = k
	cfg.Capacity = capacity
	cfg.Seed = 1
	nop := zerolog.Nop()
	cfg.Logger = &nop
	return cfg
}

func TestRunTwoTriples(t *testing.T) {
	ctx := context.Background()
	items := twoTriples()

	for seed := int64(0); seed < 5; seed++ {
		cfg := testConfig(2, 3)
		cfg.Seed = seed

		run, err := NewRun(ctx, items, &pointStrategy{}, cfg)
		require.NoError(t, err)
		assert.Equal(t, StateSeeding, run.State())

		var steps []Step
		for step := range run.All(ctx) {
			steps = append(steps, step)
		}
		require.NoError(t, run.Err())
		require.NotEmpty(t, steps)
		assert.True(t, run.State().Terminal())

		for i, step := range steps {
			assert.Equal(t, i+1, step.Iteration)
			assert.Len(t, step.Loss, i+1)
			for _, g := range step.Partition.Groups {
				assert.LessOrEqual(t, len(g), 3)
			}
			assert.LessOrEqual(t, step.Partition.Assigned(), len(items))
		}

		last := steps[len(steps)-1]
		assert.Equal(t, run.State(), last.State)
		// the loss drops after the first step and never rises afterwards
		require.GreaterOrEqual(t, len(last.Loss), 2, "seed %d", seed)
		assert.Less(t, last.Loss[1], last.Loss[0], "seed %d", seed)
		for i := 1; i < len(last.Loss); i++ {
			assert.LessOrEqual(t, last.Loss[i], last.Loss[i-1]+1e-9, "seed %d step %d", seed, i+1)
		}

		sets := groupSets(last.Partition)
		first := map[int]bool{0: true, 1: true, 2: true}
		second := map[int]bool{3: true, 4: true, 5: true}
		assert.ElementsMatch(t, []map[int]bool{first, second}, sets, "seed %d", seed)
	}
}

func TestRunWithFuncs(t *testing.T) {
	ctx := context.Background()
	s := Funcs[float64]{
		DistanceFunc: func(a, b float64) float64 { return math.Abs(a - b) },
		CentroidFunc: func(weights []float64, items []float64) float64 {
			var sum, total float64
			for i, x := range items {
				sum += weights[i] * x
				total += weights[i]
			}
			return sum / total
		},
	}

	items := []float64{0, 0.5, 1, 20, 20.5, 21}
	var last Step
	state, err := Execute(ctx, items, s, testConfig(2, 3), func(step Step) error {
		last = step
		return nil
	})
	require.NoError(t, err)
	assert.True(t, state.Terminal())

	first := map[int]bool{0: true, 1: true, 2: true}
	second := map[int]bool{3: true, 4: true, 5: true}
	assert.ElementsMatch(t, []map[int]bool{first, second}, groupSets(last.Partition))
}

func TestRunFixedFuzzifierConverges(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(2, 3)
	cfg.Fuzzifier = Fixed(2)
	cfg.Loss = LossLinear
	cfg.MaxIterations = 100

	run, err := NewRun(ctx, twoTriples(), &pointStrategy{}, cfg)
	require.NoError(t, err)

	for run.Next(ctx) {
		for _, row := range run.Membership() {
			var sum float64
			for _, u := range row {
				assert.Greater(t, u, 0.0)
				assert.False(t, math.IsInf(u, 0) || math.IsNaN(u))
				sum += u
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		}
	}
	require.NoError(t, run.Err())
	assert.Equal(t, StateConverged, run.State())
	assert.Equal(t, []float64{2, 2, 2, 2, 2, 2}, run.Fuzzifiers())
	assert.Len(t, run.Centroids(), 2)
}

func TestRunInfiniteEpsilonConvergesAfterOneStep(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(2, 3)
	cfg.ConvergenceEpsilon = math.Inf(1)

	run, err := NewRun(ctx, twoTriples(), &pointStrategy{}, cfg)
	require.NoError(t, err)

	require.True(t, run.Next(ctx))
	assert.Equal(t, StateConverged, run.Step().State)
	assert.False(t, run.Next(ctx))
	assert.Equal(t, 1, run.Iterations())
	assert.Len(t, run.Step().Loss, 1)
	assert.NoError(t, run.Err())
}

func TestRunBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(2, 3)
	cfg.ConvergenceEpsilon = 0
	cfg.MaxIterations = 1

	state, err := Execute(ctx, twoTriples(), &pointStrategy{}, cfg, func(Step) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateBudgetExhausted, state)
}

func TestRunIdenticalItems(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(2, 3)

	run, err := NewRun(ctx, identical(6), &pointStrategy{}, cfg)
	require.NoError(t, err)
	for _, m := range run.Fuzzifiers() {
		assert.Equal(t, cfg.Fuzzifier.Calibration.Lower, m)
	}

	require.True(t, run.Next(ctx))
	assert.Equal(t, 6, run.Step().Partition.Assigned())
	assert.Equal(t, StateConverged, run.State())
}

func TestRunConfigurationErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("More_Clusters_Than_Items", func(t *testing.T) {
		run, err := NewRun(ctx, twoTriples(), &pointStrategy{}, testConfig(7, 3))
		assert.Nil(t, run)
		assert.True(t, IsConfiguration(err))
	})

	t.Run("Empty_Dataset", func(t *testing.T) {
		_, err := NewRun(ctx, [][]float64{}, &pointStrategy{}, testConfig(1, 3))
		assert.True(t, IsConfiguration(err))
	})

	t.Run("Precomputed_Length_Mismatch", func(t *testing.T) {
		cfg := testConfig(2, 3)
		cfg.Fuzzifier = Precomputed([]float64{2, 2})
		_, err := NewRun(ctx, twoTriples(), &pointStrategy{}, cfg)
		assert.True(t, IsConfiguration(err))
	})

	t.Run("Zero_Iterations", func(t *testing.T) {
		cfg := testConfig(2, 3)
		cfg.MaxIterations = 0
		_, err := NewRun(ctx, twoTriples(), &pointStrategy{}, cfg)
		assert.True(t, IsConfiguration(err))
	})

	t.Run("Capacity_Overflow", func(t *testing.T) {
		emitted := 0
		_, err := Execute(ctx, twoTriples(), &pointStrategy{}, testConfig(2, 2), func(Step) error {
			emitted++
			return nil
		})
		require.Error(t, err)
		assert.True(t, IsAssignmentOverflow(err))
		assert.Zero(t, emitted)
	})
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(2, 3)
	cfg.ConvergenceEpsilon = 0
	cfg.MaxIterations = 10

	emitted := 0
	state, err := Execute(ctx, twoTriples(), &pointStrategy{}, cfg, func(Step) error {
		emitted++
		cancel()
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, emitted)
	assert.False(t, state.Terminal())
}

func TestExecuteStopsOnEmitError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(2, 3)
	cfg.ConvergenceEpsilon = 0

	boom := errors.New("persist failed")
	calls := 0
	_, err := Execute(ctx, twoTriples(), &pointStrategy{}, cfg, func(Step) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRunDeterministicForSeed(t *testing.T) {
	ctx := context.Background()
	collect := func() []Step {
		var out []Step
		_, err := Execute(ctx, twoTriples(), &pointStrategy{}, testConfig(2, 3), func(s Step) error {
			out = append(out, s)
			return nil
		})
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, collect(), collect())
}
