package nn

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func naiveNeighbors(data [][]float64, i, k int) []int32 {
	type pair struct {
		idx  int32
		dist float64
	}
	pairs := make([]pair, 0, len(data)-1)
	for j := range data {
		if j == i {
			continue
		}
		var sum float64
		for d := range data[i] {
			diff := data[i][d] - data[j][d]
			sum += diff * diff
		}
		pairs = append(pairs, pair{int32(j), math.Sqrt(sum)})
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].dist < pairs[b].dist })

	out := make([]int32, k)
	for j := 0; j < k; j++ {
		out[j] = pairs[j].idx
	}
	return out
}

func TestBruteForceMatchesNaive(t *testing.T) {
	data := [][]float64{
		{0, 0}, {1, 0}, {0, 1}, {5, 5}, {5, 6}, {6, 5}, {2, 2}, {-1, -1},
	}
	k := 3

	g := BruteForce(data, k, 1)
	require.Equal(t, len(data), g.N)
	require.Equal(t, k, g.K)

	for i := range data {
		require.Equal(t, naiveNeighbors(data, i, k), g.Indices[i], "point %d", i)
		require.True(t, sort.Float64sAreSorted(g.Distances[i]), "point %d distances", i)
	}
}

func TestBruteForceParallelMatchesSerial(t *testing.T) {
	data := make([][]float64, 50)
	for i := range data {
		data[i] = []float64{float64(i % 7), float64((i * 3) % 11), float64(i)}
	}

	serial := BruteForce(data, 5, 1)
	par := BruteForce(data, 5, 4)

	require.Equal(t, serial.Indices, par.Indices)
	require.Equal(t, serial.Distances, par.Distances)
}

func TestBruteForceQuery(t *testing.T) {
	reference := [][]float64{{0, 0}, {10, 0}, {0, 10}}
	query := [][]float64{{1, 0}, {9, 1}}

	g := BruteForceQuery(query, reference, 2, 1)

	require.Equal(t, []int32{0, 1}, g.Indices[0])
	require.Equal(t, []int32{1, 0}, g.Indices[1])
	require.InDelta(t, 1.0, g.Distances[0][0], 1e-12)
}
