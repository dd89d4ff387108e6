package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nozzle/tsne/internal/rand"
)

func randomCoords(n int, seed uint32, scale float64) [][]float64 {
	mt := rand.NewMT19937(seed)
	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = []float64{mt.Uniform(-scale, scale), mt.Uniform(-scale, scale)}
	}
	return coords
}

func exactForces(coords [][]float64) ([][]float64, float64) {
	n := len(coords)
	negF := make([][]float64, n)
	var z float64
	for i := range coords {
		negF[i] = make([]float64, 2)
		for j := range coords {
			if i == j {
				continue
			}
			dx := coords[i][0] - coords[j][0]
			dy := coords[i][1] - coords[j][1]
			q := 1 / (1 + dx*dx + dy*dy)
			z += q
			negF[i][0] += q * q * dx
			negF[i][1] += q * q * dy
		}
	}
	return negF, z
}

func TestInterpolationWeightsSumToOne(t *testing.T) {
	g := build(randomCoords(30, 42, 3), randomCoords(30, 42, 3), DefaultConfig())

	var node0 int
	for _, v := range []float64{-2.9, -1.0, 0.0, 0.37, 2.99} {
		w := g.dimWeights(v, &node0)
		var sum float64
		for _, x := range w {
			sum += x
		}
		require.InDelta(t, 1.0, sum, 1e-10, "weights at %v", v)
		require.GreaterOrEqual(t, node0, 0)
		require.LessOrEqual(t, node0+len(w), g.nNodes)
	}
}

func TestNegativeGradientMatchesExact(t *testing.T) {
	coords := randomCoords(150, 7, 5)
	wantF, wantZ := exactForces(coords)

	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	negF, z := NegativeGradient(coords, coords, true, cfg)

	require.InDelta(t, wantZ, z, wantZ*0.01, "Z within one percent of exact")
	for i := range coords {
		require.InDelta(t, wantF[i][0], negF[i][0], 1e-3, "point %d fx", i)
		require.InDelta(t, wantF[i][1], negF[i][1], 1e-3, "point %d fy", i)
	}
}

func TestAccuracyImprovesWithResolution(t *testing.T) {
	coords := randomCoords(100, 3, 4)
	_, wantZ := exactForces(coords)

	var errs []float64
	for _, intervals := range []int{20, 50, 100} {
		cfg := DefaultConfig()
		cfg.MinNumIntervals = intervals
		cfg.NumWorkers = 1
		_, z := NegativeGradient(coords, coords, true, cfg)
		errs = append(errs, math.Abs(z-wantZ))
	}

	require.Less(t, errs[2], errs[0]+1e-9, "finer grid should not be worse")
}

func TestDegenerateBoundingBox(t *testing.T) {
	coords := [][]float64{{1, 1}, {1, 1}, {1, 1}}

	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	negF, z := NegativeGradient(coords, coords, true, cfg)

	// All pairwise similarities are ~1: Z ≈ n(n-1), forces ≈ 0.
	require.InDelta(t, 6.0, z, 1e-3)
	for i := range negF {
		require.InDelta(t, 0.0, negF[i][0], 1e-6)
		require.InDelta(t, 0.0, negF[i][1], 1e-6)
	}
}

func TestQueryAgainstReferenceSet(t *testing.T) {
	ref := randomCoords(80, 11, 3)
	query := randomCoords(10, 13, 2)

	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	negF, z := NegativeGradient(query, ref, false, cfg)

	var wantZ float64
	for i := range query {
		var fx, fy float64
		for j := range ref {
			dx := query[i][0] - ref[j][0]
			dy := query[i][1] - ref[j][1]
			q := 1 / (1 + dx*dx + dy*dy)
			wantZ += q
			fx += q * q * dx
			fy += q * q * dy
		}
		require.InDelta(t, fx, negF[i][0], 1e-3, "point %d fx", i)
		require.InDelta(t, fy, negF[i][1], 1e-3, "point %d fy", i)
	}
	require.InDelta(t, wantZ, z, wantZ*0.01+1e-6)
}

func TestScatterGatherRoundTrip(t *testing.T) {
	// A single unit charge scattered and gathered at the same location
	// reproduces the kernel's value at distance zero against itself.
	coords := [][]float64{{0.5, 0.5}}

	cfg := DefaultConfig()
	cfg.MinNumIntervals = 10
	cfg.NumWorkers = 1
	_, z := NegativeGradient(coords, coords, true, cfg)

	// One point: the only interaction is the removed self-interaction.
	require.InDelta(t, 0.0, z, 1e-6)
}
