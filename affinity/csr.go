// Package affinity builds the sparse high-dimensional affinity matrix P
// consumed by the gradient computation. Affinities are Gaussian
// conditional probabilities whose bandwidth is chosen per point to match
// a target perplexity.
package affinity

import "sort"

// CSR is a sparse matrix in compressed sparse row format.
type CSR struct {
	Indptr  []int32
	Indices []int32
	Data    []float64
	NRows   int
	NCols   int
}

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int {
	return len(m.Data)
}

// Row returns the column indices and values stored for a row.
func (m *CSR) Row(i int) ([]int32, []float64) {
	start, end := m.Indptr[i], m.Indptr[i+1]
	return m.Indices[start:end], m.Data[start:end]
}

// Sum returns the sum of all stored values.
func (m *CSR) Sum() float64 {
	var s float64
	for _, v := range m.Data {
		s += v
	}
	return s
}

// Scale multiplies every stored value by c.
func (m *CSR) Scale(c float64) {
	for i := range m.Data {
		m.Data[i] *= c
	}
}

// At returns the stored value at (i, j), or 0 if none is stored.
func (m *CSR) At(i, j int) float64 {
	cols, vals := m.Row(i)
	for k, c := range cols {
		if int(c) == j {
			return vals[k]
		}
	}
	return 0
}

// fromCOO builds a CSR matrix from coordinate triplets, summing
// duplicate entries.
func fromCOO(rows, cols []int32, data []float64, nrows, ncols int) *CSR {
	type entry struct {
		row, col int32
		val      float64
	}
	entries := make([]entry, len(rows))
	for i := range entries {
		entries[i] = entry{rows[i], cols[i], data[i]}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].row != entries[j].row {
			return entries[i].row < entries[j].row
		}
		return entries[i].col < entries[j].col
	})

	indptr := make([]int32, nrows+1)
	indices := make([]int32, 0, len(entries))
	vals := make([]float64, 0, len(entries))

	for idx := 0; idx < len(entries); {
		e := entries[idx]
		v := e.val
		idx++
		for idx < len(entries) && entries[idx].row == e.row && entries[idx].col == e.col {
			v += entries[idx].val
			idx++
		}
		indices = append(indices, e.col)
		vals = append(vals, v)
		indptr[e.row+1]++
	}

	for i := 1; i <= nrows; i++ {
		indptr[i] += indptr[i-1]
	}

	return &CSR{
		Indptr:  indptr,
		Indices: indices,
		Data:    vals,
		NRows:   nrows,
		NCols:   ncols,
	}
}
