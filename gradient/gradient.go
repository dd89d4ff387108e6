// Package gradient evaluates the KL-divergence objective and its
// gradient for a t-SNE embedding. The attractive term is computed
// exactly over the stored affinity pairs; the repulsive term and the
// global normalizer Z come from one of three interchangeable backends:
// brute force, a Barnes-Hut space-partitioning tree, or an
// interpolation grid with FFT-accelerated convolution. Both outputs of
// a backend are produced by the same approximation so they stay
// mutually consistent.
package gradient

import (
	"fmt"
	"math"

	"github.com/nozzle/tsne/affinity"
	"github.com/nozzle/tsne/grid"
	"github.com/nozzle/tsne/internal/parallel"
	"github.com/nozzle/tsne/tree"
)

// Method selects the repulsive-force backend.
type Method int

const (
	// Exact computes all pairwise interactions by brute force. O(n²);
	// reference and testing only.
	Exact Method = iota
	// BarnesHut approximates distant interactions through a
	// space-partitioning tree. O(n log n).
	BarnesHut
	// FFT approximates interactions by polynomial interpolation on a
	// grid with FFT convolution. O(n); 2D embeddings only.
	FFT
)

func (m Method) String() string {
	switch m {
	case Exact:
		return "exact"
	case BarnesHut:
		return "bh"
	case FFT:
		return "fft"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// eps floors denominators and log arguments against degenerate
// embeddings.
const eps = 1e-12

// Options configures a gradient evaluation.
type Options struct {
	Method Method
	// Theta is the Barnes-Hut opening angle. 0 degenerates to exact.
	Theta float64
	// Grid configures the FFT backend.
	Grid grid.Config
	// Exaggeration multiplies the attractive term. 1 means none. The
	// affinity matrix itself is never scaled, so phase transitions
	// revert exactly.
	Exaggeration float64
	// NumWorkers for the parallel regions (0 = auto).
	NumWorkers int
	// ComputeError requests the KL divergence value; when false the
	// returned divergence is NaN and the log evaluations are skipped.
	ComputeError bool
}

// Compute returns the KL divergence and the gradient of the embedding
// coords under affinities p. For a full embedding ref is nil and
// repulsion acts within coords; for a partial embedding ref holds the
// fixed base coordinates, p maps query rows to base columns, and no
// gradient flows into the base. coords is not mutated.
func Compute(p *affinity.CSR, coords, ref [][]float64, opts Options) (float64, [][]float64, error) {
	n := len(coords)
	if n == 0 {
		return 0, nil, nil
	}
	dim := len(coords[0])

	if p.NRows != n {
		return 0, nil, fmt.Errorf("gradient: affinity matrix has %d rows for %d points", p.NRows, n)
	}

	sameSet := ref == nil
	if sameSet {
		ref = coords
	}
	if p.NCols != len(ref) {
		return 0, nil, fmt.Errorf("gradient: affinity matrix has %d columns for %d reference points", p.NCols, len(ref))
	}

	numWorkers := opts.NumWorkers
	if numWorkers <= 0 {
		numWorkers = parallel.NumWorkers()
	}
	exaggeration := opts.Exaggeration
	if exaggeration == 0 {
		exaggeration = 1
	}

	negF, z, err := repulsive(coords, ref, sameSet, dim, numWorkers, opts)
	if err != nil {
		return 0, nil, err
	}
	if z < eps {
		z = eps
	}

	grad := make([][]float64, n)
	klParts := make([]float64, n)

	parallel.For(0, n, numWorkers, func(i int) {
		grad[i] = make([]float64, dim)
		yi := coords[i]

		cols, vals := p.Row(i)
		var kl float64
		for k, c := range cols {
			yj := ref[c]

			var distSq float64
			for d := 0; d < dim; d++ {
				diff := yi[d] - yj[d]
				distSq += diff * diff
			}
			q := 1 / (1 + distSq)
			pij := exaggeration * vals[k]

			for d := 0; d < dim; d++ {
				grad[i][d] += pij * q * (yi[d] - yj[d])
			}
			if opts.ComputeError {
				kl += pij * math.Log((pij+eps)/(q/z+eps))
			}
		}
		klParts[i] = kl

		for d := 0; d < dim; d++ {
			grad[i][d] = 4 * (grad[i][d] - negF[i][d]/z)
		}
	})

	kl := math.NaN()
	if opts.ComputeError {
		kl = 0
		for _, v := range klParts {
			kl += v
		}
	}
	return kl, grad, nil
}

// repulsive dispatches to the configured backend and returns per-point
// negative forces plus the normalizer Z.
func repulsive(coords, ref [][]float64, sameSet bool, dim, numWorkers int, opts Options) ([][]float64, float64, error) {
	switch opts.Method {
	case Exact:
		negF, z := exactRepulsive(coords, ref, sameSet, dim, numWorkers)
		return negF, z, nil

	case BarnesHut:
		t := tree.New(ref)
		n := len(coords)
		negF := make([][]float64, n)
		zParts := make([]float64, n)
		parallel.For(0, n, numWorkers, func(i int) {
			negF[i] = make([]float64, dim)
			zParts[i] = t.NegativeGradient(coords[i], sameSet, opts.Theta, negF[i])
		})
		var z float64
		for _, v := range zParts {
			z += v
		}
		return negF, z, nil

	case FFT:
		if dim != 2 {
			return nil, 0, fmt.Errorf("gradient: fft backend supports 2D embeddings, got %dD", dim)
		}
		gcfg := opts.Grid
		if gcfg.NInterpolationPoints == 0 {
			gcfg = grid.DefaultConfig()
		}
		gcfg.NumWorkers = numWorkers
		negF, z := grid.NegativeGradient(coords, ref, sameSet, gcfg)
		return negF, z, nil

	default:
		return nil, 0, fmt.Errorf("gradient: unrecognized method %q", opts.Method)
	}
}

func exactRepulsive(coords, ref [][]float64, sameSet bool, dim, numWorkers int) ([][]float64, float64) {
	n := len(coords)
	negF := make([][]float64, n)
	zParts := make([]float64, n)

	parallel.For(0, n, numWorkers, func(i int) {
		negF[i] = make([]float64, dim)
		yi := coords[i]

		var z float64
		for j, yj := range ref {
			if sameSet && j == i {
				continue
			}
			var distSq float64
			for d := 0; d < dim; d++ {
				diff := yi[d] - yj[d]
				distSq += diff * diff
			}
			q := 1 / (1 + distSq)
			z += q
			for d := 0; d < dim; d++ {
				negF[i][d] += q * q * (yi[d] - yj[d])
			}
		}
		zParts[i] = z
	})

	var z float64
	for _, v := range zParts {
		z += v
	}
	return negF, z
}
