// Package init provides initial coordinate generators for embeddings.
// Initial coordinates must have low variance regardless of input data
// scale: optimization starts from a tight cloud and lets the attractive
// and repulsive forces expand it.
package init

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/tsne/affinity"
	"github.com/nozzle/tsne/internal/rand"
)

// targetStd is the standard deviation the generators scale their first
// coordinate column to.
const targetStd = 1e-4

// Random generates Gaussian initial coordinates with standard
// deviation 1e-4 per dimension, drawn from the supplied generator.
func Random(n, dim int, mt *rand.MT19937) [][]float64 {
	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			coords[i][d] = mt.Normal(0, targetStd)
		}
	}
	return coords
}

// PCA projects the input data onto its first dim principal components
// and rescales the projection to the usual low-variance start. Falls
// back to random coordinates when the decomposition fails (e.g. fewer
// input features than embedding dimensions).
func PCA(data [][]float64, dim int, mt *rand.MT19937) [][]float64 {
	n := len(data)
	if n == 0 {
		return nil
	}
	features := len(data[0])
	if features < dim {
		return Random(n, dim, mt)
	}

	flat := make([]float64, n*features)
	for i, row := range data {
		copy(flat[i*features:], row)
	}
	x := mat.NewDense(n, features, flat)

	// Center columns.
	for j := 0; j < features; j++ {
		var mean float64
		for i := 0; i < n; i++ {
			mean += x.At(i, j)
		}
		mean /= float64(n)
		for i := 0; i < n; i++ {
			x.Set(i, j, x.At(i, j)-mean)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return Random(n, dim, mt)
	}

	var v mat.Dense
	svd.VTo(&v)
	if _, c := v.Dims(); c < dim {
		return Random(n, dim, mt)
	}

	components := mat.NewDense(features, dim, nil)
	for i := 0; i < features; i++ {
		for d := 0; d < dim; d++ {
			components.Set(i, d, v.At(i, d))
		}
	}

	var projected mat.Dense
	projected.Mul(x, components)

	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			coords[i][d] = projected.At(i, d)
		}
	}

	rescale(coords)
	return coords
}

// WeightedMean places each partial-embedding point at the
// affinity-weighted average of its base neighbors' coordinates, which
// keeps new points inside the region their neighbors occupy.
func WeightedMean(p *affinity.CSR, base [][]float64) [][]float64 {
	dim := len(base[0])
	coords := make([][]float64, p.NRows)

	for i := range coords {
		coords[i] = make([]float64, dim)

		cols, vals := p.Row(i)
		var total float64
		for k, c := range cols {
			w := vals[k]
			total += w
			for d := 0; d < dim; d++ {
				coords[i][d] += w * base[c][d]
			}
		}
		if total > 0 {
			for d := 0; d < dim; d++ {
				coords[i][d] /= total
			}
		}
	}

	return coords
}

// rescale centers coordinates and scales them so the first column's
// standard deviation is targetStd. A single scale factor preserves the
// relative spread of the remaining columns, which for a PCA projection
// is decreasing by construction.
func rescale(coords [][]float64) {
	n := len(coords)
	if n == 0 {
		return
	}
	dim := len(coords[0])

	mean := make([]float64, dim)
	for _, y := range coords {
		for d := 0; d < dim; d++ {
			mean[d] += y[d]
		}
	}
	for d := 0; d < dim; d++ {
		mean[d] /= float64(n)
	}
	for _, y := range coords {
		for d := 0; d < dim; d++ {
			y[d] -= mean[d]
		}
	}

	var variance float64
	for _, y := range coords {
		variance += y[0] * y[0]
	}
	variance /= float64(n)

	if variance <= 0 {
		return
	}
	scale := targetStd / math.Sqrt(variance)
	for _, y := range coords {
		for d := 0; d < dim; d++ {
			y[d] *= scale
		}
	}
}
