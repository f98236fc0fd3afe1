package cluster

import (
	"math"
	"runtime"

	"github.com/rs/zerolog"
)

const (
	defaultClusters           = 3
	defaultCapacity           = 10
	defaultUpperFuzzifier     = 9.1
	defaultLowerFuzzifier     = 1.1
	defaultAlpha              = 2.0
	defaultConvergenceEpsilon = 0.001
	defaultMaxIterations      = 50

	// DefaultDistanceFloor replaces zero distances in the membership update
	DefaultDistanceFloor = 1e-9
)

// LossForm selects how the per-iteration objective is computed
type LossForm int

const (
	// LossSquared weighs squared item-centroid distances (density-calibrated runs)
	LossSquared LossForm = iota
	// LossLinear weighs plain item-centroid distances
	LossLinear
)

func (l LossForm) String() string {
	switch l {
	case LossSquared:
		return "squared"
	case LossLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// ParseLossForm maps "squared" or "linear" to a LossForm
func ParseLossForm(s string) (LossForm, bool) {
	switch s {
	case "squared", "":
		return LossSquared, true
	case "linear":
		return LossLinear, true
	default:
		return LossSquared, false
	}
}

// CalibrationParams bound and shape the density-calibrated fuzzifiers
type CalibrationParams struct {
	Lower float64 // fuzzifier for the densest item, must be > 1
	Upper float64 // fuzzifier for the sparsest item
	Alpha float64 // curvature of the density-to-fuzzifier mapping

	// Parallelism bounds the goroutines computing the pairwise matrix; <= 0 uses NumCPU
	Parallelism int
}

// DefaultCalibration returns the bounds used by the reference application
func DefaultCalibration() CalibrationParams {
	return CalibrationParams{
		Lower:       defaultLowerFuzzifier,
		Upper:       defaultUpperFuzzifier,
		Alpha:       defaultAlpha,
		Parallelism: runtime.NumCPU(),
	}
}

// FuzzifierMode tells a run where its fuzzifier vector comes from
type FuzzifierMode int

const (
	FuzzifierAdaptive FuzzifierMode = iota
	FuzzifierFixed
	FuzzifierPrecomputed
)

// Fuzzifier is the fuzzifier configuration of a run
type Fuzzifier struct {
	Mode        FuzzifierMode
	Calibration CalibrationParams
	M           float64
	Values      []float64
}

// Adaptive calibrates one fuzzifier per item from local density
func Adaptive(p CalibrationParams) Fuzzifier {
	return Fuzzifier{Mode: FuzzifierAdaptive, Calibration: p}
}

// Fixed uses the same fuzzifier m for every item
func Fixed(m float64) Fuzzifier {
	return Fuzzifier{Mode: FuzzifierFixed, M: m}
}

// Precomputed uses a vector previously returned by Calibrate
func Precomputed(values []float64) Fuzzifier {
	return Fuzzifier{Mode: FuzzifierPrecomputed, Values: values}
}

// Config holds the parameters of a clustering run
type Config struct {
	Clusters      int // number of groups K
	Capacity      int // maximum items per group
	MaxIterations int

	// ConvergenceEpsilon is the centroid movement at or below which the run converges
	ConvergenceEpsilon float64
	DistanceFloor      float64

	Fuzzifier Fuzzifier
	Loss      LossForm

	// Seed drives centroid seeding; runs with equal seeds and inputs are identical
	Seed int64

	Logger *zerolog.Logger
}

// DefaultConfig returns the configuration of the reference application
func DefaultConfig() Config {
	return Config{
		Clusters:           defaultClusters,
		Capacity:           defaultCapacity,
		MaxIterations:      defaultMaxIterations,
		ConvergenceEpsilon: defaultConvergenceEpsilon,
		DistanceFloor:      DefaultDistanceFloor,
		Fuzzifier:          Adaptive(DefaultCalibration()),
		Loss:               LossSquared,
	}
}

// Validate checks the parameters that do not depend on the dataset
func (c Config) Validate() error {
	if c.Clusters <= 0 {
		return configErrorf("clusters", "must be positive, got %d", c.Clusters)
	}
	if c.Capacity <= 0 {
		return configErrorf("capacity", "must be positive, got %d", c.Capacity)
	}
	if c.MaxIterations <= 0 {
		return configErrorf("max_iterations", "must be positive, got %d", c.MaxIterations)
	}
	if math.IsNaN(c.ConvergenceEpsilon) || c.ConvergenceEpsilon < 0 {
		return configErrorf("convergence_epsilon", "must be non-negative, got %v", c.ConvergenceEpsilon)
	}
	if c.DistanceFloor < 0 || math.IsNaN(c.DistanceFloor) || math.IsInf(c.DistanceFloor, 0) {
		return configErrorf("distance_floor", "must be finite and non-negative, got %v", c.DistanceFloor)
	}
	if c.Loss != LossSquared && c.Loss != LossLinear {
		return configErrorf("loss", "unknown form %d", c.Loss)
	}

	switch c.Fuzzifier.Mode {
	case FuzzifierAdaptive:
		return c.Fuzzifier.Calibration.validate()
	case FuzzifierFixed:
		return validateFuzzifier("fuzzifier", c.Fuzzifier.M)
	case FuzzifierPrecomputed:
		for _, m := range c.Fuzzifier.Values {
			if err := validateFuzzifier("fuzzifier", m); err != nil {
				return err
			}
		}
		return nil
	default:
		return configErrorf("fuzzifier", "unknown mode %d", c.Fuzzifier.Mode)
	}
}

func (p CalibrationParams) validate() error {
	if p.Lower <= 0 || p.Upper <= 0 {
		return configErrorf("fuzzifier_bounds", "must be positive, got [%v, %v]", p.Lower, p.Upper)
	}
	if p.Lower > p.Upper {
		return configErrorf("fuzzifier_bounds", "lower %v exceeds upper %v", p.Lower, p.Upper)
	}
	if err := validateFuzzifier("fuzzifier_lower", p.Lower); err != nil {
		return err
	}
	if math.IsInf(p.Upper, 0) {
		return configErrorf("fuzzifier_upper", "must be finite")
	}
	// alpha 0 puts every item on the upper bound
	if p.Alpha < 0 || math.IsNaN(p.Alpha) || math.IsInf(p.Alpha, 0) {
		return configErrorf("alpha", "must be non-negative and finite, got %v", p.Alpha)
	}
	return nil
}

// a fuzzifier of 1 makes the membership exponent 2/(m-1) undefined
func validateFuzzifier(field string, m float64) error {
	if math.IsNaN(m) || math.IsInf(m, 0) || m <= 1 {
		return configErrorf(field, "must be finite and greater than 1, got %v", m)
	}
	return nil
}
