package fields

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/objones25/fuzzgroup/internal/cluster"
)

// Field indexes the semantic fields of a thesis record
type Field int

const (
	FieldTitle Field = iota
	FieldCategory
	FieldExpectedResult
	FieldProblemSolve

	// NumFields is the number of fields of a thesis record
	NumFields = 4
)

var fieldNames = [NumFields]string{"title", "category", "expected_result", "problem_solve"}

func (f Field) String() string {
	if f >= 0 && int(f) < NumFields {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// DefaultOrder ranks the fields title, category, expected result, problem solve
var DefaultOrder = []int{0, 1, 2, 3}

var (
	// ErrEmptyDataset is returned when no items are given
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrFieldMismatch is returned when items disagree on field count or dimension
	ErrFieldMismatch = errors.New("field shape mismatch")

	// ErrInvalidOrder is returned when a field order is not a permutation
	ErrInvalidOrder = errors.New("invalid field order")
)

// Item is a record reduced to one embedding vector per field
type Item struct {
	Vectors [][]float64
}

// Strategy measures dissimilarity as a weighted sum of per-field Euclidean
// distances. Multipliers rescale fields with different natural spreads so each
// contributes comparably before Weights express their importance.
type Strategy struct {
	Weights     []float64
	Multipliers []float64
}

var _ cluster.Strategy[Item] = (*Strategy)(nil)

// New builds a Strategy for items, deriving weights from the field order and
// balance multipliers from the items themselves
func New(ctx context.Context, items []Item, order []int, parallelism int) (*Strategy, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}
	numFields := len(items[0].Vectors)

	weights, err := WeightsFromOrder(order, numFields)
	if err != nil {
		return nil, err
	}
	multipliers, err := BalanceMultipliers(ctx, items, parallelism)
	if err != nil {
		return nil, err
	}
	return &Strategy{Weights: weights, Multipliers: multipliers}, nil
}

// Distance implements cluster.Strategy
func (s *Strategy) Distance(a, b Item) float64 {
	var total float64
	for f := range a.Vectors {
		total += floats.Distance(a.Vectors[f], b.Vectors[f], 2) * s.Weights[f] * s.Multipliers[f]
	}
	return total
}

// Centroid implements cluster.Strategy. Every field is the weighted mean of
// the item vectors; when the weights carry no mass the plain mean is used.
func (s *Strategy) Centroid(weights []float64, items []Item) Item {
	var total float64
	for _, w := range weights {
		total += w
	}
	uniform := total <= 0 || math.IsNaN(total) || math.IsInf(total, 0)
	if uniform {
		total = float64(len(items))
	}

	out := Item{Vectors: make([][]float64, len(items[0].Vectors))}
	for f := range out.Vectors {
		acc := make([]float64, len(items[0].Vectors[f]))
		for i, item := range items {
			w := 1.0
			if !uniform {
				w = weights[i]
			}
			floats.AddScaled(acc, w, item.Vectors[f])
		}
		floats.Scale(1/total, acc)
		out.Vectors[f] = acc
	}
	return out
}

// WeightsFromOrder turns a priority ranking into importance weights. order[r]
// is the field at rank r; rank r of n weighs (n-r)/(1+2+...+n), so weights sum
// to one and decrease with rank.
func WeightsFromOrder(order []int, numFields int) ([]float64, error) {
	if len(order) != numFields {
		return nil, fmt.Errorf("%w: %d entries for %d fields", ErrInvalidOrder, len(order), numFields)
	}

	weights := make([]float64, numFields)
	seen := make([]bool, numFields)
	norm := float64(numFields*(numFields+1)) / 2
	for rank, f := range order {
		if f < 0 || f >= numFields {
			return nil, fmt.Errorf("%w: field %d out of range", ErrInvalidOrder, f)
		}
		if seen[f] {
			return nil, fmt.Errorf("%w: field %d listed twice", ErrInvalidOrder, f)
		}
		seen[f] = true
		weights[f] = float64(numFields-rank) / norm
	}
	return weights, nil
}

// BalanceMultipliers returns, per field, the inverse of the largest pairwise
// distance over items. A field that is constant over the dataset keeps 1.
func BalanceMultipliers(ctx context.Context, items []Item, parallelism int) ([]float64, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}
	n, numFields := len(items), len(items[0].Vectors)

	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	rowMax := make([][]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local := make([]float64, numFields)
			for j := i + 1; j < n; j++ {
				for f := 0; f < numFields; f++ {
					if d := floats.Distance(items[i].Vectors[f], items[j].Vectors[f], 2); d > local[f] {
						local[f] = d
					}
				}
			}
			rowMax[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	multipliers := make([]float64, numFields)
	for f := range multipliers {
		var widest float64
		for _, row := range rowMax {
			widest = math.Max(widest, row[f])
		}
		multipliers[f] = 1
		if widest > 0 {
			multipliers[f] = 1 / widest
		}
	}
	return multipliers, nil
}

// Validate checks that every item has the same fields with the same dimensions
func Validate(items []Item) error {
	if len(items) == 0 {
		return ErrEmptyDataset
	}
	ref := items[0].Vectors
	if len(ref) == 0 {
		return fmt.Errorf("%w: item 0 has no fields", ErrFieldMismatch)
	}
	for i, item := range items {
		if len(item.Vectors) != len(ref) {
			return fmt.Errorf("%w: item %d has %d fields, want %d", ErrFieldMismatch, i, len(item.Vectors), len(ref))
		}
		for f, v := range item.Vectors {
			if len(v) != len(ref[f]) {
				return fmt.Errorf("%w: item %d field %s has dimension %d, want %d",
					ErrFieldMismatch, i, Field(f), len(v), len(ref[f]))
			}
		}
	}
	return nil
}

// FromFloat32 widens per-field float32 embeddings into an Item
func FromFloat32(vectors [][]float32) Item {
	out := Item{Vectors: make([][]float64, len(vectors))}
	for f, v := range vectors {
		w := make([]float64, len(v))
		for i, x := range v {
			w[i] = float64(x)
		}
		out.Vectors[f] = w
	}
	return out
}
