// Package tsne implements t-distributed stochastic neighbor embedding,
// a dimensionality reduction technique for visualizing high-dimensional
// point sets in 2 or 3 dimensions.
//
// The optimization minimizes the KL divergence between a perplexity
// calibrated affinity distribution over the input points and a Student-t
// distribution over the embedding, with the repulsive gradient term
// approximated either by a Barnes-Hut space-partitioning tree or by
// polynomial interpolation on an FFT-accelerated grid.
//
// Basic usage:
//
//	model := tsne.New(tsne.DefaultConfig())
//	embedding, err := model.Fit(data)
//
// Embeddings can be optimized incrementally and extended with
// out-of-sample points:
//
//	embedding, _ := model.PrepareInitial(data)
//	embedding, _ = embedding.Optimize(tsne.OptimizeParams{NIter: 100, Exaggeration: 12, Inplace: true})
//	partial, _ := embedding.Transform(newData)
package tsne

import (
	"fmt"

	"github.com/nozzle/tsne/affinity"
	"github.com/nozzle/tsne/gradient"
	"github.com/nozzle/tsne/grid"
	tsneinit "github.com/nozzle/tsne/init"
	"github.com/nozzle/tsne/internal/rand"
	"github.com/nozzle/tsne/layout"
	"github.com/nozzle/tsne/nn"
)

// Callback is invoked on a schedule during optimization with the
// iteration number, the current KL divergence and a coordinate
// snapshot. Returning false cancels the optimization at the next
// iteration boundary; cancellation is a normal early exit, not an
// error.
type Callback = layout.Callback

// Config configures the t-SNE algorithm.
type Config struct {
	// NComponents is the dimensionality of the embedding (2 or 3).
	// Default: 2
	NComponents int

	// Perplexity is the effective number of neighbors each point
	// considers when affinities are computed.
	// Default: 30
	Perplexity float64

	// Initialization is the initial coordinate generator.
	// Options: "pca" or "random".
	// Default: "pca"
	Initialization string

	// NegativeGradientMethod selects the repulsive-force backend.
	// Options: "bh" (Barnes-Hut tree), "fft" (interpolation grid, 2D
	// only), "exact" (brute force) or "auto" (fft for large 2D
	// embeddings, bh otherwise).
	// Default: "auto"
	NegativeGradientMethod string

	// Theta is the Barnes-Hut opening angle. Smaller is more exact and
	// slower; 0 degenerates to the exact computation.
	// Default: 0.5
	Theta float64

	// NInterpolationPoints is the interpolation order of the fft
	// backend's grid.
	// Default: 3
	NInterpolationPoints int

	// MinNumIntervals is the minimum fft grid resolution per dimension.
	// Default: 50
	MinNumIntervals int

	// MaxNumIntervals caps the fft grid resolution.
	// Default: 1000
	MaxNumIntervals int

	// IntsInInterval is the target fft grid interval width; resolution
	// grows with the embedding's bounding box.
	// Default: 1
	IntsInInterval float64

	// LearningRate is the gradient step scale.
	// Default: 200
	LearningRate float64

	// EarlyExaggerationIter is the length of the early exaggeration
	// phase.
	// Default: 250
	EarlyExaggerationIter int

	// EarlyExaggeration is the attractive-term multiplier during the
	// early phase.
	// Default: 12
	EarlyExaggeration float64

	// InitialMomentum is the momentum during early exaggeration.
	// Default: 0.5
	InitialMomentum float64

	// NIter is the length of the main optimization phase.
	// Default: 750
	NIter int

	// FinalMomentum is the momentum during the main phase.
	// Default: 0.8
	FinalMomentum float64

	// LateExaggerationIter is the length of the optional late
	// exaggeration phase appended after the main phase.
	// Default: 0
	LateExaggerationIter int

	// LateExaggeration is the attractive-term multiplier of the late
	// phase. 0 disables the phase.
	// Default: 0
	LateExaggeration float64

	// Callbacks are invoked every CallbacksEveryIters iterations.
	Callbacks []Callback

	// CallbacksEveryIters is the callback cadence.
	// Default: 50
	CallbacksEveryIters int

	// Seed for random number generation. Identical configuration and
	// seed reproduce bit-identical embeddings.
	// Default: 42
	Seed int64

	// NumWorkers for the parallel regions inside an iteration.
	// 0 = auto-detect from CPU count.
	NumWorkers int
}

// DefaultConfig returns the default t-SNE configuration.
func DefaultConfig() Config {
	return Config{
		NComponents:            2,
		Perplexity:             30,
		Initialization:         "pca",
		NegativeGradientMethod: "auto",
		Theta:                  0.5,
		NInterpolationPoints:   3,
		MinNumIntervals:        50,
		MaxNumIntervals:        1000,
		IntsInInterval:         1,
		LearningRate:           200,
		EarlyExaggerationIter:  250,
		EarlyExaggeration:      12,
		InitialMomentum:        0.5,
		NIter:                  750,
		FinalMomentum:          0.8,
		CallbacksEveryIters:    50,
		Seed:                   42,
	}
}

// TSNE is the main t-SNE model.
type TSNE struct {
	Config Config
}

// New creates a new t-SNE model with the given configuration.
func New(config Config) *TSNE {
	return &TSNE{Config: config}
}

// Fit prepares an initial embedding for data and runs the full
// three-phase optimization schedule: early exaggeration, the main
// phase, and an optional late exaggeration phase.
func (t *TSNE) Fit(data [][]float64) (*Embedding, error) {
	embedding, err := t.PrepareInitial(data)
	if err != nil {
		return nil, err
	}

	embedding, err = embedding.Optimize(OptimizeParams{
		NIter:        t.Config.EarlyExaggerationIter,
		Exaggeration: t.Config.EarlyExaggeration,
		Momentum:     t.Config.InitialMomentum,
		Inplace:      true,
	})
	if err != nil {
		return nil, err
	}

	embedding, err = embedding.Optimize(OptimizeParams{
		NIter:    t.Config.NIter,
		Momentum: t.Config.FinalMomentum,
		Inplace:  true,
	})
	if err != nil {
		return nil, err
	}

	if t.Config.LateExaggeration > 0 && t.Config.LateExaggerationIter > 0 {
		embedding, err = embedding.Optimize(OptimizeParams{
			NIter:        t.Config.LateExaggerationIter,
			Exaggeration: t.Config.LateExaggeration,
			Momentum:     t.Config.FinalMomentum,
			Inplace:      true,
		})
		if err != nil {
			return nil, err
		}
	}

	return embedding, nil
}

// PrepareInitial builds the affinity matrix and initial coordinates for
// data and returns an unoptimized embedding. Configuration problems are
// reported here, before any optimization runs.
func (t *TSNE) PrepareInitial(data [][]float64) (*Embedding, error) {
	if err := t.validate(len(data)); err != nil {
		return nil, err
	}

	n := len(data)
	perplexity := clampPerplexity(t.Config.Perplexity, n)

	k := int(3 * perplexity)
	if k > n-1 {
		k = n - 1
	}
	knn := nn.BruteForce(data, k, t.Config.NumWorkers)

	acfg := affinity.Config{Perplexity: perplexity, NumWorkers: t.Config.NumWorkers}
	p := affinity.PerplexityBased(knn.Indices, knn.Distances, acfg)

	mt := rand.NewMT19937(uint32(t.Config.Seed))
	var coords [][]float64
	switch t.Config.Initialization {
	case "random":
		coords = tsneinit.Random(n, t.Config.NComponents, mt)
	case "pca":
		coords = tsneinit.PCA(data, t.Config.NComponents, mt)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedInitialization, t.Config.Initialization)
	}

	return newEmbedding(t, coords, p, data), nil
}

// PrepareWithAffinities builds an embedding from a precomputed affinity
// matrix and externally generated initial coordinates. The matrix must
// be square with one row per coordinate.
func (t *TSNE) PrepareWithAffinities(p *affinity.CSR, initial [][]float64) (*Embedding, error) {
	if err := t.validate(len(initial)); err != nil {
		return nil, err
	}
	if p.NRows != len(initial) || p.NCols != len(initial) {
		return nil, fmt.Errorf("%w: %dx%d matrix for %d points",
			ErrPointCountMismatch, p.NRows, p.NCols, len(initial))
	}

	coords := make([][]float64, len(initial))
	for i, y := range initial {
		coords[i] = append([]float64(nil), y...)
	}
	return newEmbedding(t, coords, p, nil), nil
}

// validate reports configuration errors before any iteration runs.
func (t *TSNE) validate(n int) error {
	if n == 0 {
		return ErrEmptyInput
	}
	if t.Config.NComponents != 2 && t.Config.NComponents != 3 {
		return fmt.Errorf("%w: got %d", ErrInvalidDimension, t.Config.NComponents)
	}
	if _, err := t.resolveMethod(t.Config.NegativeGradientMethod, n); err != nil {
		return err
	}
	switch t.Config.Initialization {
	case "random", "pca":
	default:
		return fmt.Errorf("%w: %q", ErrUnrecognizedInitialization, t.Config.Initialization)
	}
	return nil
}

// resolveMethod maps a configured method name to a gradient backend,
// surfacing capability mismatches as configuration errors.
func (t *TSNE) resolveMethod(name string, n int) (gradient.Method, error) {
	if name == "" {
		name = t.Config.NegativeGradientMethod
	}
	switch name {
	case "auto":
		if t.Config.NComponents == 2 && n >= 10000 {
			return gradient.FFT, nil
		}
		return gradient.BarnesHut, nil
	case "bh":
		return gradient.BarnesHut, nil
	case "fft":
		if t.Config.NComponents != 2 {
			return 0, fmt.Errorf("%w: embedding is %dD", ErrMethodDimension, t.Config.NComponents)
		}
		return gradient.FFT, nil
	case "exact":
		return gradient.Exact, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnrecognizedMethod, name)
	}
}

// gridConfig assembles the fft backend configuration.
func (t *TSNE) gridConfig() grid.Config {
	cfg := grid.DefaultConfig()
	if t.Config.NInterpolationPoints > 0 {
		cfg.NInterpolationPoints = t.Config.NInterpolationPoints
	}
	if t.Config.MinNumIntervals > 0 {
		cfg.MinNumIntervals = t.Config.MinNumIntervals
	}
	if t.Config.MaxNumIntervals > 0 {
		cfg.MaxNumIntervals = t.Config.MaxNumIntervals
	}
	if t.Config.IntsInInterval > 0 {
		cfg.IntsInInterval = t.Config.IntsInInterval
	}
	return cfg
}

// clampPerplexity lowers the perplexity when the dataset is too small
// to support it; three neighbors per unit of perplexity must exist.
func clampPerplexity(perplexity float64, n int) float64 {
	max := float64(n-1) / 3
	if perplexity > max {
		return max
	}
	return perplexity
}
