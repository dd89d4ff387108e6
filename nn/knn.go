// Package nn provides exact nearest-neighbor search used to build the
// sparse affinity matrices. Only the Euclidean metric is supported; the
// neighbor index is a collaborator of the optimization core, not part
// of it, so no approximate search is implemented here.
package nn

import (
	"math"

	"github.com/nozzle/tsne/internal/heap"
	"github.com/nozzle/tsne/internal/parallel"
)

// KNNGraph holds the k nearest neighbors of each query point.
type KNNGraph struct {
	Indices   [][]int32   // [n][k] neighbor indices, ascending by distance
	Distances [][]float64 // [n][k] Euclidean distances
	N         int
	K         int
}

// BruteForce computes the exact k nearest neighbors of every point in
// data against data itself, excluding self-matches.
func BruteForce(data [][]float64, k, numWorkers int) *KNNGraph {
	n := len(data)
	if k >= n {
		k = n - 1
	}
	if numWorkers <= 0 {
		numWorkers = parallel.NumWorkers()
	}

	indices := make([][]int32, n)
	distances := make([][]float64, n)

	parallel.For(0, n, numWorkers, func(i int) {
		indices[i] = make([]int32, k)
		distances[i] = make([]float64, k)
		heap.Init(indices[i], distances[i])

		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			heap.Push(indices[i], distances[i], k, int32(j), euclidean(data[i], data[j]))
		}

		heap.Sort(indices[i], distances[i], k)
	})

	return &KNNGraph{Indices: indices, Distances: distances, N: n, K: k}
}

// BruteForceQuery computes the exact k nearest neighbors of every query
// point against a fixed reference set.
func BruteForceQuery(query, reference [][]float64, k, numWorkers int) *KNNGraph {
	n := len(query)
	if k > len(reference) {
		k = len(reference)
	}
	if numWorkers <= 0 {
		numWorkers = parallel.NumWorkers()
	}

	indices := make([][]int32, n)
	distances := make([][]float64, n)

	parallel.For(0, n, numWorkers, func(i int) {
		indices[i] = make([]int32, k)
		distances[i] = make([]float64, k)
		heap.Init(indices[i], distances[i])

		for j := range reference {
			heap.Push(indices[i], distances[i], k, int32(j), euclidean(query[i], reference[j]))
		}

		heap.Sort(indices[i], distances[i], k)
	})

	return &KNNGraph{Indices: indices, Distances: distances, N: n, K: k}
}

func euclidean(x, y []float64) float64 {
	var sum float64
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
