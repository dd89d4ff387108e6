// Package grid approximates the repulsive t-SNE forces with polynomial
// interpolation on a uniform grid. Point masses are scattered onto the
// grid through Lagrange interpolation weights, all pairwise grid-node
// interactions are applied with an FFT-accelerated circulant
// convolution, and the results are gathered back through the same
// weights. Complexity is O(n + g log g) in the number of points n and
// grid nodes g.
//
// The kernel approach only works for low embedding dimensionality; this
// implementation supports 2D embeddings.
package grid

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/nozzle/tsne/internal/parallel"
)

// Config controls grid resolution and interpolation order.
type Config struct {
	// NInterpolationPoints is the number of interpolation nodes per
	// grid interval (the polynomial order of the interpolation).
	NInterpolationPoints int
	// MinNumIntervals is the minimum number of grid intervals per
	// dimension, regardless of bounding-box size.
	MinNumIntervals int
	// MaxNumIntervals caps the grid resolution so the FFT stays
	// tractable no matter how far the embedding has spread. 0 uses the
	// default.
	MaxNumIntervals int
	// IntsInInterval is the target interval width in embedding-space
	// units; the interval count grows with the bounding box so that
	// interpolation error stays bounded as points spread out.
	IntsInInterval float64
	// NumWorkers for the scatter/gather regions (0 = auto).
	NumWorkers int
}

// DefaultConfig returns the default grid configuration.
func DefaultConfig() Config {
	return Config{
		NInterpolationPoints: 3,
		MinNumIntervals:      50,
		MaxNumIntervals:      maxIntervals,
		IntsInInterval:       1,
		NumWorkers:           0,
	}
}

// maxIntervals is the default resolution cap; it keeps the FFT tractable no
// matter how far the embedding has spread.
const maxIntervals = 1000

// chargeTerms is the number of charge columns needed to reconstruct
// both the force sums and the normalizer from squared-kernel
// potentials: [1, x, y, x²+y²].
const chargeTerms = 4

// NegativeGradient computes the approximate repulsive force on every
// point of coords, generated by the points of ref, plus the total
// contribution to the normalizer Z. For a full embedding pass coords as
// ref and sameSet true so self-interactions are removed; for a partial
// embedding pass the base coordinates as ref and sameSet false.
//
// The grid and the kernel transform are built from scratch on every
// call: the bounding box moves every iteration, and the kernel spectrum
// depends on it.
func NegativeGradient(coords, ref [][]float64, sameSet bool, cfg Config) ([][]float64, float64) {
	n := len(coords)
	negF := make([][]float64, n)
	for i := range negF {
		negF[i] = make([]float64, 2)
	}
	if n == 0 {
		return negF, 0
	}

	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = parallel.NumWorkers()
	}

	g := build(coords, ref, cfg)

	// Scatter the four charge terms of the reference points onto the
	// grid. Serial over points: neighboring points write to shared
	// grid cells, and a fixed order keeps the sums bit-stable.
	w := make([][][]float64, chargeTerms)
	for t := range w {
		w[t] = newMatrix(g.nNodes, g.nNodes)
	}
	refW := g.weights(ref)
	for i, y := range ref {
		charges := [chargeTerms]float64{1, y[0], y[1], y[0]*y[0] + y[1]*y[1]}
		g.scatter(refW[i], &charges, w)
	}

	// Convolve every charge grid with the squared Cauchy kernel.
	pot := g.convolve(w)

	// Gather potentials back to the query points and combine them into
	// per-point forces and Z contributions.
	zParts := make([]float64, n)
	coordW := g.weights(coords)
	parallel.For(0, n, numWorkers, func(i int) {
		var phi [chargeTerms]float64
		g.gather(coordW[i], pot, &phi)

		x, y := coords[i][0], coords[i][1]
		zParts[i] = (1+x*x+y*y)*phi[0] - 2*(x*phi[1]+y*phi[2]) + phi[3]
		negF[i][0] = x*phi[0] - phi[1]
		negF[i][1] = y*phi[0] - phi[2]
	})

	var z float64
	for _, v := range zParts {
		z += v
	}
	if sameSet {
		// Every point interacted with itself at distance zero.
		z -= float64(n)
	}
	return negF, z
}

// layout holds one iteration's grid geometry and per-point weights.
type layout struct {
	p       int     // interpolation points per interval
	nBoxes  int     // intervals per dimension
	nNodes  int     // p * nBoxes
	min     float64 // grid origin (shared by both dimensions)
	boxW    float64 // interval width
	spacing float64 // node spacing boxW / p
	denom   []float64
}

// pointWeights is one point's interpolation footprint: the first node
// index and the p Lagrange weights in each dimension.
type pointWeights struct {
	node0 [2]int
	wx    []float64
	wy    []float64
}

func build(coords, ref [][]float64, cfg Config) *layout {
	min := math.Inf(1)
	max := math.Inf(-1)
	for _, set := range [][][]float64{coords, ref} {
		for _, y := range set {
			for d := 0; d < 2; d++ {
				if y[d] < min {
					min = y[d]
				}
				if y[d] > max {
					max = y[d]
				}
			}
		}
	}

	extent := max - min
	if extent < 1e-6 {
		// Degenerate bounding box (all points coincident): keep a tiny
		// but nonzero domain so node spacing stays positive.
		extent = 1e-6
	}

	nBoxes := int(math.Max(float64(cfg.MinNumIntervals), extent/cfg.IntsInInterval))
	limit := cfg.MaxNumIntervals
	if limit <= 0 {
		limit = maxIntervals
	}
	if nBoxes > limit {
		nBoxes = limit
	}

	p := cfg.NInterpolationPoints
	boxW := extent / float64(nBoxes)

	g := &layout{
		p:       p,
		nBoxes:  nBoxes,
		nNodes:  p * nBoxes,
		min:     min,
		boxW:    boxW,
		spacing: boxW / float64(p),
	}

	// Lagrange denominators over the in-box node positions
	// t_j = spacing/2 + j*spacing, shared by both dimensions.
	g.denom = make([]float64, p)
	for j := 0; j < p; j++ {
		g.denom[j] = 1
		tj := g.spacing/2 + float64(j)*g.spacing
		for k := 0; k < p; k++ {
			if k == j {
				continue
			}
			tk := g.spacing/2 + float64(k)*g.spacing
			g.denom[j] *= tj - tk
		}
	}

	return g
}

// weights evaluates the separable interpolation weights of every point.
func (g *layout) weights(points [][]float64) []pointWeights {
	out := make([]pointWeights, len(points))
	for i, y := range points {
		out[i].wx = g.dimWeights(y[0], &out[i].node0[0])
		out[i].wy = g.dimWeights(y[1], &out[i].node0[1])
	}
	return out
}

// dimWeights computes the p Lagrange weights of coordinate v against
// the nodes of its interval, storing the first node index in node0.
func (g *layout) dimWeights(v float64, node0 *int) []float64 {
	box := int((v - g.min) / g.boxW)
	if box < 0 {
		box = 0
	}
	if box >= g.nBoxes {
		box = g.nBoxes - 1
	}
	*node0 = box * g.p

	rel := v - g.min - float64(box)*g.boxW
	w := make([]float64, g.p)
	for j := 0; j < g.p; j++ {
		w[j] = 1
		for k := 0; k < g.p; k++ {
			if k == j {
				continue
			}
			tk := g.spacing/2 + float64(k)*g.spacing
			w[j] *= rel - tk
		}
		w[j] /= g.denom[j]
	}
	return w
}

func (g *layout) scatter(pw pointWeights, charges *[chargeTerms]float64, w [][][]float64) {
	for a, wa := range pw.wx {
		row := pw.node0[0] + a
		for b, wb := range pw.wy {
			col := pw.node0[1] + b
			weight := wa * wb
			for t := 0; t < chargeTerms; t++ {
				w[t][row][col] += weight * charges[t]
			}
		}
	}
}

func (g *layout) gather(pw pointWeights, pot [][][]float64, phi *[chargeTerms]float64) {
	for a, wa := range pw.wx {
		row := pw.node0[0] + a
		for b, wb := range pw.wy {
			col := pw.node0[1] + b
			weight := wa * wb
			for t := 0; t < chargeTerms; t++ {
				phi[t] += weight * pot[t][row][col]
			}
		}
	}
}

// convolve applies the squared Cauchy kernel between all grid nodes via
// a circulant embedding of size 2·nNodes per dimension.
func (g *layout) convolve(w [][][]float64) [][][]float64 {
	m := g.nNodes
	size := 2 * m

	// Kernel values on node-distance offsets, embedded symmetrically
	// around (m, m) so circular convolution realizes linear
	// convolution on the top-left quadrant.
	kernel := make([][]complex128, size)
	for i := range kernel {
		kernel[i] = make([]complex128, size)
	}
	for i := 0; i < m; i++ {
		dx := float64(i) * g.spacing
		for j := 0; j < m; j++ {
			dy := float64(j) * g.spacing
			r2 := dx*dx + dy*dy
			v := 1 / ((1 + r2) * (1 + r2))
			c := complex(v, 0)
			kernel[m+i][m+j] = c
			kernel[m-i][m+j] = c
			kernel[m+i][m-j] = c
			kernel[m-i][m-j] = c
		}
	}

	fft := fourier.NewCmplxFFT(size)
	fft2(kernel, fft, false)

	pot := make([][][]float64, chargeTerms)
	norm := 1 / float64(size*size)

	fns := make([]func(), chargeTerms)
	for t := 0; t < chargeTerms; t++ {
		t := t
		fns[t] = func() {
			// Each term needs its own FFT plan: the plan carries
			// scratch state and is not safe for concurrent use.
			tfft := fourier.NewCmplxFFT(size)

			buf := make([][]complex128, size)
			for i := range buf {
				buf[i] = make([]complex128, size)
			}
			for i := 0; i < m; i++ {
				for j := 0; j < m; j++ {
					buf[i][j] = complex(w[t][i][j], 0)
				}
			}

			fft2(buf, tfft, false)
			for i := range buf {
				for j := range buf[i] {
					buf[i][j] *= kernel[i][j]
				}
			}
			fft2(buf, tfft, true)

			pot[t] = newMatrix(m, m)
			for i := 0; i < m; i++ {
				for j := 0; j < m; j++ {
					pot[t][i][j] = real(buf[m+i][m+j]) * norm
				}
			}
		}
	}
	parallel.Do(fns...)

	return pot
}

// fft2 applies an in-place 2D transform: rows then columns. The inverse
// path leaves the 1/N² normalization to the caller.
func fft2(data [][]complex128, fft *fourier.CmplxFFT, inverse bool) {
	n := len(data)

	transform := func(dst, src []complex128) {
		if inverse {
			fft.Sequence(dst, src)
		} else {
			fft.Coefficients(dst, src)
		}
	}

	row := make([]complex128, n)
	for i := 0; i < n; i++ {
		transform(row, data[i])
		copy(data[i], row)
	}

	col := make([]complex128, n)
	out := make([]complex128, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			col[i] = data[i][j]
		}
		transform(out, col)
		for i := 0; i < n; i++ {
			data[i][j] = out[i]
		}
	}
}

func newMatrix(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}
