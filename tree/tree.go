// Package tree implements a space-partitioning tree (quadtree in 2D,
// octree in 3D) over embedding coordinates, with Barnes-Hut style
// approximate repulsive-force queries. The tree is rebuilt from scratch
// every optimization iteration; it holds no state across iterations.
package tree

// minExtent is the box half-width below which a node stops splitting
// and aggregates points instead. Guards against infinite recursion on
// near-coincident coordinates.
const minExtent = 1e-12

// Tree is a fixed fan-out spatial index over a set of points.
type Tree struct {
	dim  int
	root *node
}

type node struct {
	center    []float64 // box center
	halfWidth []float64 // box half-extent per dimension
	com       []float64 // center of mass of the subtree
	count     int       // points in the subtree
	children  []*node   // nil for leaves
	// width is the largest box side, cached for the opening criterion.
	width float64
}

// New builds a tree over the given coordinates. All points must share
// the same dimensionality (2 or 3).
func New(coords [][]float64) *Tree {
	dim := len(coords[0])

	mins := make([]float64, dim)
	maxs := make([]float64, dim)
	copy(mins, coords[0])
	copy(maxs, coords[0])
	for _, y := range coords[1:] {
		for d := 0; d < dim; d++ {
			if y[d] < mins[d] {
				mins[d] = y[d]
			}
			if y[d] > maxs[d] {
				maxs[d] = y[d]
			}
		}
	}

	center := make([]float64, dim)
	halfWidth := make([]float64, dim)
	for d := 0; d < dim; d++ {
		center[d] = (mins[d] + maxs[d]) / 2
		// Pad so boundary points fall strictly inside.
		halfWidth[d] = (maxs[d]-mins[d])/2 + 1e-9
	}

	t := &Tree{dim: dim, root: newNode(center, halfWidth)}
	for _, y := range coords {
		t.root.insert(y, 1, t.dim)
	}
	return t
}

func newNode(center, halfWidth []float64) *node {
	width := 0.0
	for _, h := range halfWidth {
		if 2*h > width {
			width = 2 * h
		}
	}
	return &node{
		center:    center,
		halfWidth: halfWidth,
		com:       make([]float64, len(center)),
		width:     width,
	}
}

// insert adds count points at coordinate y to the subtree.
func (nd *node) insert(y []float64, count, dim int) {
	if nd.count == 0 {
		copy(nd.com, y)
		nd.count = count
		return
	}

	if nd.children == nil {
		if sameCoords(nd.com, y) || nd.width/2 < minExtent {
			// Duplicate coordinates (or a box too small to split)
			// accumulate in one leaf with count > 1.
			mergeCOM(nd, y, count)
			return
		}

		// Leaf with a distinct point: split and push the resident
		// point one level down.
		nd.children = make([]*node, 1<<dim)
		resident := make([]float64, dim)
		copy(resident, nd.com)
		residentCount := nd.count

		nd.childFor(resident, dim).insert(resident, residentCount, dim)
		mergeCOM(nd, y, count)
		nd.childFor(y, dim).insert(y, count, dim)
		return
	}

	mergeCOM(nd, y, count)
	nd.childFor(y, dim).insert(y, count, dim)
}

// childFor returns the child octant containing y, creating it lazily.
func (nd *node) childFor(y []float64, dim int) *node {
	idx := 0
	for d := 0; d < dim; d++ {
		if y[d] >= nd.center[d] {
			idx |= 1 << d
		}
	}
	if nd.children[idx] == nil {
		center := make([]float64, dim)
		halfWidth := make([]float64, dim)
		for d := 0; d < dim; d++ {
			halfWidth[d] = nd.halfWidth[d] / 2
			if idx&(1<<d) != 0 {
				center[d] = nd.center[d] + halfWidth[d]
			} else {
				center[d] = nd.center[d] - halfWidth[d]
			}
		}
		nd.children[idx] = newNode(center, halfWidth)
	}
	return nd.children[idx]
}

// mergeCOM folds count points at y into the node's center of mass.
func mergeCOM(nd *node, y []float64, count int) {
	total := float64(nd.count + count)
	for d := range nd.com {
		nd.com[d] = (nd.com[d]*float64(nd.count) + y[d]*float64(count)) / total
	}
	nd.count += count
}

func sameCoords(a, b []float64) bool {
	for d := range a {
		if a[d] != b[d] {
			return false
		}
	}
	return true
}

// NegativeGradient accumulates the approximate repulsive force on the
// point at y into negF and returns the point's contribution to the
// global normalizer Z. When selfExclude is true, one point with exactly
// y's coordinates is treated as the query itself and skipped; pass
// false when querying a tree built over a different point set.
//
// A subtree whose box size over distance falls below theta contributes
// as a single pseudo-point at its center of mass. theta = 0 forces full
// descent to the leaves, which is the exact computation.
func (t *Tree) NegativeGradient(y []float64, selfExclude bool, theta float64, negF []float64) float64 {
	return t.root.nonEdgeForces(y, selfExclude, theta, negF)
}

func (nd *node) nonEdgeForces(y []float64, selfExclude bool, theta float64, negF []float64) float64 {
	if nd == nil || nd.count == 0 {
		return 0
	}

	var distSq float64
	for d := range y {
		diff := y[d] - nd.com[d]
		distSq += diff * diff
	}

	// Open the node unless it is a leaf or passes the opening-angle
	// criterion width/dist < theta.
	if nd.children != nil && nd.width*nd.width >= theta*theta*distSq {
		var z float64
		for _, child := range nd.children {
			z += child.nonEdgeForces(y, selfExclude, theta, negF)
		}
		return z
	}

	count := float64(nd.count)
	if selfExclude && nd.children == nil && sameCoords(nd.com, y) {
		// The query point sits in this leaf; its self-interaction does
		// not contribute.
		count--
		if count == 0 {
			return 0
		}
	}

	q := 1 / (1 + distSq)
	for d := range y {
		negF[d] += count * q * q * (y[d] - nd.com[d])
	}
	return count * q
}

// Count returns the number of points the tree was built over.
func (t *Tree) Count() int {
	return t.root.count
}

// Depth returns the maximum depth of the tree. Used in tests.
func (t *Tree) Depth() int {
	return depth(t.root)
}

func depth(nd *node) int {
	if nd == nil || nd.children == nil {
		return 1
	}
	max := 0
	for _, c := range nd.children {
		if d := depth(c); d > max {
			max = d
		}
	}
	return max + 1
}

// CenterOfMass returns the center of mass of all points. Used in tests.
func (t *Tree) CenterOfMass() []float64 {
	out := make([]float64, t.dim)
	copy(out, t.root.com)
	return out
}
