package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nozzle/tsne/affinity"
	"github.com/nozzle/tsne/gradient"
	"github.com/nozzle/tsne/internal/rand"
	"github.com/nozzle/tsne/nn"
)

func setup(t *testing.T, n int, seed uint32) ([][]float64, [][]float64, [][]float64, *affinity.CSR) {
	t.Helper()

	mt := rand.NewMT19937(seed)
	data := make([][]float64, n)
	for i := range data {
		data[i] = make([]float64, 4)
		for d := range data[i] {
			data[i][d] = mt.NormFloat64()
			if i >= n/2 {
				data[i][d] += 10
			}
		}
	}

	g := nn.BruteForce(data, 15, 1)
	acfg := affinity.DefaultConfig()
	acfg.Perplexity = 5
	acfg.NumWorkers = 1
	p := affinity.PerplexityBased(g.Indices, g.Distances, acfg)

	coords := make([][]float64, n)
	gains := make([][]float64, n)
	velocity := make([][]float64, n)
	for i := range coords {
		coords[i] = []float64{mt.Normal(0, 1e-4), mt.Normal(0, 1e-4)}
		gains[i] = []float64{1, 1}
		velocity[i] = []float64{0, 0}
	}
	return coords, gains, velocity, p
}

func testParams() Params {
	p := DefaultParams()
	p.NIter = 40
	p.LearningRate = 100
	p.Gradient = gradient.Options{Method: gradient.Exact, NumWorkers: 1}
	return p
}

func TestKLDecreases(t *testing.T) {
	coords, gains, velocity, p := setup(t, 40, 42)

	cfg := testParams()
	cfg.CallbacksEveryIters = 10

	var kls []float64
	cfg.Callbacks = []Callback{func(iter int, kl float64, _ [][]float64) bool {
		kls = append(kls, kl)
		return true
	}}

	final, err := GradientDescent(coords, nil, gains, velocity, p, cfg)
	require.NoError(t, err)
	require.False(t, math.IsNaN(final))
	require.Len(t, kls, 4)
	require.Less(t, kls[len(kls)-1], kls[0], "KL should improve over the phase")
}

func TestCallbackIterationNumbers(t *testing.T) {
	coords, gains, velocity, p := setup(t, 30, 7)

	cfg := testParams()
	cfg.NIter = 30
	cfg.CallbacksEveryIters = 10
	cfg.IterOffset = 100

	var iters []int
	cfg.Callbacks = []Callback{func(iter int, _ float64, _ [][]float64) bool {
		iters = append(iters, iter)
		return true
	}}

	_, err := GradientDescent(coords, nil, gains, velocity, p, cfg)
	require.NoError(t, err)
	require.Equal(t, []int{110, 120, 130}, iters)
}

func TestCancellationAtIterationBoundary(t *testing.T) {
	coords, gains, velocity, p := setup(t, 30, 11)

	cfg := testParams()
	cfg.NIter = 1000
	cfg.CallbacksEveryIters = 5

	calls := 0
	cfg.Callbacks = []Callback{func(iter int, _ float64, _ [][]float64) bool {
		calls++
		return false
	}}

	_, err := GradientDescent(coords, nil, gains, velocity, p, cfg)
	require.NoError(t, err, "cancellation is not an error")
	require.Equal(t, 1, calls, "loop must stop after the first cancelling callback")
}

func TestGainsStayClamped(t *testing.T) {
	coords, gains, velocity, p := setup(t, 30, 13)

	cfg := testParams()
	cfg.NIter = 60

	_, err := GradientDescent(coords, nil, gains, velocity, p, cfg)
	require.NoError(t, err)

	for i := range gains {
		for d := range gains[i] {
			require.GreaterOrEqual(t, gains[i][d], minGain)
		}
	}
}

func TestRecenterKeepsMeanAtOrigin(t *testing.T) {
	coords, gains, velocity, p := setup(t, 30, 17)

	cfg := testParams()
	cfg.NIter = 25

	_, err := GradientDescent(coords, nil, gains, velocity, p, cfg)
	require.NoError(t, err)

	var mx, my float64
	for _, y := range coords {
		mx += y[0]
		my += y[1]
	}
	require.InDelta(t, 0.0, mx/float64(len(coords)), 1e-9)
	require.InDelta(t, 0.0, my/float64(len(coords)), 1e-9)
}

func TestBuffersPersistAcrossPhases(t *testing.T) {
	coords, gains, velocity, p := setup(t, 30, 19)

	cfg := testParams()
	cfg.NIter = 20

	_, err := GradientDescent(coords, nil, gains, velocity, p, cfg)
	require.NoError(t, err)

	changed := false
	for i := range gains {
		for d := range gains[i] {
			if gains[i][d] != 1 {
				changed = true
			}
		}
	}
	require.True(t, changed, "gains should adapt during optimization and persist for the next call")
}
