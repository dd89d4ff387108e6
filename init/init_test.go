package init

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nozzle/tsne/affinity"
	"github.com/nozzle/tsne/internal/rand"
	"github.com/nozzle/tsne/nn"
)

func variancePerDim(coords [][]float64) []float64 {
	n := float64(len(coords))
	dim := len(coords[0])

	mean := make([]float64, dim)
	for _, y := range coords {
		for d := 0; d < dim; d++ {
			mean[d] += y[d]
		}
	}
	for d := 0; d < dim; d++ {
		mean[d] /= n
	}

	variance := make([]float64, dim)
	for _, y := range coords {
		for d := 0; d < dim; d++ {
			diff := y[d] - mean[d]
			variance[d] += diff * diff
		}
	}
	for d := 0; d < dim; d++ {
		variance[d] /= n
	}
	return variance
}

func wildData(n, features int, seed uint32) [][]float64 {
	mt := rand.NewMT19937(seed)
	data := make([][]float64, n)
	for i := range data {
		data[i] = make([]float64, features)
		for d := range data[i] {
			// Large offset and spread: initializers must not care.
			data[i][d] = mt.Normal(100, 50)
		}
	}
	return data
}

func TestRandomLowVariance(t *testing.T) {
	coords := Random(500, 2, rand.NewMT19937(42))

	for d, v := range variancePerDim(coords) {
		require.Less(t, v, 1e-3, "dimension %d", d)
	}
}

func TestPCALowVarianceRegardlessOfScale(t *testing.T) {
	data := wildData(25, 4, 42)
	coords := PCA(data, 2, rand.NewMT19937(42))

	require.Len(t, coords, 25)
	for d, v := range variancePerDim(coords) {
		require.Less(t, v, 1e-3, "dimension %d", d)
	}
}

func TestRandomDeterministic(t *testing.T) {
	a := Random(50, 3, rand.NewMT19937(7))
	b := Random(50, 3, rand.NewMT19937(7))
	require.Equal(t, a, b)
}

func TestPCADeterministic(t *testing.T) {
	data := wildData(30, 5, 3)
	a := PCA(data, 2, rand.NewMT19937(1))
	b := PCA(data, 2, rand.NewMT19937(1))
	require.Equal(t, a, b)
}

func TestPCAFallsBackWhenTooFewFeatures(t *testing.T) {
	data := wildData(20, 1, 5)
	coords := PCA(data, 2, rand.NewMT19937(5))

	require.Len(t, coords, 20)
	require.Len(t, coords[0], 2)
}

func TestWeightedMeanStaysInsideBaseRange(t *testing.T) {
	base := [][]float64{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
	baseData := [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	query := [][]float64{{0.5, 0.5}, {0.1, 0.9}}

	g := nn.BruteForceQuery(query, baseData, 3, 1)
	cfg := affinity.DefaultConfig()
	cfg.Perplexity = 2
	cfg.NumWorkers = 1
	p := affinity.PerplexityBasedPartial(g.Indices, g.Distances, len(base), cfg)

	coords := WeightedMean(p, base)
	require.Len(t, coords, 2)

	for i, y := range coords {
		for d := 0; d < 2; d++ {
			require.GreaterOrEqual(t, y[d], 0.0, "point %d dim %d", i, d)
			require.LessOrEqual(t, y[d], 10.0, "point %d dim %d", i, d)
		}
	}
}
