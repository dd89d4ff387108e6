package affinity

import (
	"math"

	"github.com/nozzle/tsne/internal/parallel"
)

// Config configures affinity construction.
type Config struct {
	// Perplexity is the effective number of neighbors each point
	// considers. The Gaussian bandwidth of every point is tuned so the
	// entropy of its conditional distribution matches log(perplexity).
	Perplexity float64
	// NumWorkers for the per-point bandwidth searches (0 = auto).
	NumWorkers int
}

// DefaultConfig returns the default affinity configuration.
func DefaultConfig() Config {
	return Config{
		Perplexity: 30,
		NumWorkers: 0,
	}
}

const (
	searchIters = 64
	searchTol   = 1e-8
)

// PerplexityBased builds the symmetric affinity matrix P for a full
// embedding from each point's nearest neighbors. The result is
// symmetrized as (P + Pᵀ)/2 and normalized so all entries sum to 1.
// It is immutable once built and shared read-only across iterations.
func PerplexityBased(knnIndices [][]int32, knnDistances [][]float64, cfg Config) *CSR {
	n := len(knnIndices)
	if n == 0 {
		return &CSR{}
	}

	conditional := conditionalRows(knnIndices, knnDistances, cfg)

	// Symmetrize by inserting each entry and its transpose at half
	// weight; duplicates are summed when the CSR is assembled.
	k := len(knnIndices[0])
	rows := make([]int32, 0, 2*n*k)
	cols := make([]int32, 0, 2*n*k)
	data := make([]float64, 0, 2*n*k)

	for i := 0; i < n; i++ {
		for j, col := range knnIndices[i] {
			v := conditional[i][j] / 2
			if v <= 0 {
				continue
			}
			rows = append(rows, int32(i))
			cols = append(cols, col)
			data = append(data, v)
			rows = append(rows, col)
			cols = append(cols, int32(i))
			data = append(data, v)
		}
	}

	p := fromCOO(rows, cols, data, n, n)
	if s := p.Sum(); s > 0 {
		p.Scale(1 / s)
	}
	return p
}

// PerplexityBasedPartial builds the asymmetric query-to-reference
// affinity matrix used by partial embeddings. Rows correspond to query
// points, columns to the nCols points of the base embedding. Entries
// sum to 1 across the whole matrix.
func PerplexityBasedPartial(knnIndices [][]int32, knnDistances [][]float64, nCols int, cfg Config) *CSR {
	n := len(knnIndices)
	if n == 0 {
		return &CSR{}
	}

	conditional := conditionalRows(knnIndices, knnDistances, cfg)

	rows := make([]int32, 0, n*len(knnIndices[0]))
	cols := make([]int32, 0, n*len(knnIndices[0]))
	data := make([]float64, 0, n*len(knnIndices[0]))

	for i := 0; i < n; i++ {
		for j, col := range knnIndices[i] {
			v := conditional[i][j]
			if v <= 0 {
				continue
			}
			rows = append(rows, int32(i))
			cols = append(cols, col)
			data = append(data, v)
		}
	}

	p := fromCOO(rows, cols, data, n, nCols)
	if s := p.Sum(); s > 0 {
		p.Scale(1 / s)
	}
	return p
}

// conditionalRows computes the row-stochastic conditional probabilities
// p(j|i) over each point's neighbors, tuning the Gaussian bandwidth per
// point to hit the target perplexity.
func conditionalRows(knnIndices [][]int32, knnDistances [][]float64, cfg Config) [][]float64 {
	n := len(knnIndices)
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = parallel.NumWorkers()
	}

	target := math.Log(cfg.Perplexity)
	out := make([][]float64, n)

	parallel.For(0, n, numWorkers, func(i int) {
		out[i] = bandwidthSearch(knnDistances[i], target)
	})

	return out
}

// bandwidthSearch binary-searches the Gaussian precision beta so the
// entropy of exp(-beta d²)/Z over the neighbor distances matches
// target, and returns the normalized probabilities. Rows whose
// probability mass underflows fall back to uniform weight over the
// stored neighbors.
func bandwidthSearch(distances []float64, target float64) []float64 {
	k := len(distances)
	p := make([]float64, k)

	beta := 1.0
	lo := math.Inf(-1)
	hi := math.Inf(1)

	for iter := 0; iter < searchIters; iter++ {
		var sum float64
		for j, d := range distances {
			p[j] = math.Exp(-beta * d * d)
			sum += p[j]
		}

		// H = log(Z) + beta * <d²>
		var entropy float64
		if sum > 0 {
			var weighted float64
			for j, d := range distances {
				weighted += p[j] * d * d
			}
			entropy = math.Log(sum) + beta*weighted/sum
		}

		diff := entropy - target
		if math.Abs(diff) < searchTol {
			break
		}

		if diff > 0 {
			lo = beta
			if math.IsInf(hi, 1) {
				beta *= 2
			} else {
				beta = (beta + hi) / 2
			}
		} else {
			hi = beta
			if math.IsInf(lo, -1) {
				beta /= 2
			} else {
				beta = (beta + lo) / 2
			}
		}
	}

	var sum float64
	for _, v := range p {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) {
		// Degenerate row: all mass underflowed. Fall back to uniform
		// weight rather than propagating an error.
		for j := range p {
			p[j] = 1 / float64(k)
		}
		return p
	}

	for j := range p {
		p[j] /= sum
	}
	return p
}
