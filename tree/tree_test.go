package tree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nozzle/tsne/internal/rand"
)

func randomCoords(n, dim int, seed uint32) [][]float64 {
	mt := rand.NewMT19937(seed)
	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = make([]float64, dim)
		for d := range coords[i] {
			coords[i][d] = mt.Uniform(-5, 5)
		}
	}
	return coords
}

// exactForces computes the brute-force repulsive force and normalizer
// for point i against all other points.
func exactForces(coords [][]float64, i int) ([]float64, float64) {
	dim := len(coords[0])
	negF := make([]float64, dim)
	var z float64
	for j, other := range coords {
		if j == i {
			continue
		}
		var distSq float64
		for d := 0; d < dim; d++ {
			diff := coords[i][d] - other[d]
			distSq += diff * diff
		}
		q := 1 / (1 + distSq)
		z += q
		for d := 0; d < dim; d++ {
			negF[d] += q * q * (coords[i][d] - other[d])
		}
	}
	return negF, z
}

func TestCenterOfMass(t *testing.T) {
	coords := [][]float64{{0, 0}, {2, 0}, {0, 2}, {2, 2}}
	tr := New(coords)

	require.Equal(t, 4, tr.Count())
	com := tr.CenterOfMass()
	require.InDelta(t, 1.0, com[0], 1e-12)
	require.InDelta(t, 1.0, com[1], 1e-12)
}

func TestThetaZeroIsExact(t *testing.T) {
	for _, dim := range []int{2, 3} {
		coords := randomCoords(80, dim, 42)
		tr := New(coords)

		for i := range coords {
			negF := make([]float64, dim)
			z := tr.NegativeGradient(coords[i], true, 0, negF)

			wantF, wantZ := exactForces(coords, i)
			require.InDelta(t, wantZ, z, 1e-10, "dim %d point %d Z", dim, i)
			for d := 0; d < dim; d++ {
				require.InDelta(t, wantF[d], negF[d], 1e-10, "dim %d point %d force[%d]", dim, i, d)
			}
		}
	}
}

func TestApproximationImprovesWithSmallerTheta(t *testing.T) {
	coords := randomCoords(200, 2, 7)
	tr := New(coords)

	thetas := []float64{0.8, 0.4, 0.1}
	prevErr := math.Inf(1)

	for _, theta := range thetas {
		var totalErr float64
		for i := range coords {
			negF := make([]float64, 2)
			z := tr.NegativeGradient(coords[i], true, theta, negF)
			_, wantZ := exactForces(coords, i)
			totalErr += math.Abs(z - wantZ)
		}
		require.Less(t, totalErr, prevErr+1e-9, "theta %v should not be worse than a larger theta", theta)
		require.Less(t, totalErr/float64(len(coords)), 0.5, "theta %v mean Z error", theta)
		prevErr = totalErr
	}
}

func TestDuplicateCoordinates(t *testing.T) {
	coords := [][]float64{{1, 1}, {1, 1}, {1, 1}, {4, 4}}
	tr := New(coords)

	require.Equal(t, 4, tr.Count())

	// Querying one of the duplicates: the other two copies contribute
	// at distance zero (q = 1), the distinct point at distance 18.
	negF := make([]float64, 2)
	z := tr.NegativeGradient(coords[0], true, 0, negF)
	require.InDelta(t, 2+1.0/19.0, z, 1e-12)
}

func TestAllCoincidentPoints(t *testing.T) {
	coords := [][]float64{{3, 3}, {3, 3}, {3, 3}}
	tr := New(coords)

	negF := make([]float64, 2)
	z := tr.NegativeGradient(coords[0], true, 0.5, negF)

	require.InDelta(t, 2.0, z, 1e-12)
	require.Equal(t, []float64{0, 0}, negF)
	require.Equal(t, 1, tr.Depth(), "coincident points must not split")
}

func TestQueryAgainstForeignTree(t *testing.T) {
	base := randomCoords(50, 2, 3)
	tr := New(base)

	query := []float64{0.5, -0.5}
	negF := make([]float64, 2)
	z := tr.NegativeGradient(query, false, 0, negF)

	var wantZ float64
	wantF := make([]float64, 2)
	for _, other := range base {
		dx := query[0] - other[0]
		dy := query[1] - other[1]
		q := 1 / (1 + dx*dx + dy*dy)
		wantZ += q
		wantF[0] += q * q * dx
		wantF[1] += q * q * dy
	}

	require.InDelta(t, wantZ, z, 1e-10)
	require.InDelta(t, wantF[0], negF[0], 1e-10)
	require.InDelta(t, wantF[1], negF[1], 1e-10)
}
