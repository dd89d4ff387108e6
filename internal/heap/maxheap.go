// Package heap provides a bounded max-heap over parallel index/distance
// arrays, used to track the k nearest neighbors of a point.
package heap

// Sentinel distance for unfilled heap slots.
const Unfilled = 1e308

// Init fills the heap arrays with sentinel values.
func Init(indices []int32, distances []float64) {
	for i := range indices {
		indices[i] = -1
		distances[i] = Unfilled
	}
}

// Push attempts to add a neighbor to an array-based max-heap of size k.
// The arrays always hold the k smallest distances seen so far, with the
// largest of them at the root. Returns true if the neighbor was added.
func Push(indices []int32, distances []float64, k int, idx int32, dist float64) bool {
	if dist >= distances[0] {
		return false
	}

	for i := 0; i < k; i++ {
		if indices[i] == idx {
			return false
		}
	}

	distances[0] = dist
	indices[0] = idx
	siftDown(indices, distances, 0, k)
	return true
}

// Sort converts the heap arrays into ascending distance order in place.
// The heap property no longer holds afterwards.
func Sort(indices []int32, distances []float64, k int) {
	for i := k - 1; i > 0; i-- {
		distances[0], distances[i] = distances[i], distances[0]
		indices[0], indices[i] = indices[i], indices[0]
		siftDown(indices, distances, 0, i)
	}
}

func siftDown(indices []int32, distances []float64, i, n int) {
	for {
		left := 2*i + 1
		right := 2*i + 2

		if left >= n {
			break
		}

		swap := i
		if distances[left] > distances[swap] {
			swap = left
		}
		if right < n && distances[right] > distances[swap] {
			swap = right
		}

		if swap == i {
			break
		}

		distances[i], distances[swap] = distances[swap], distances[i]
		indices[i], indices[swap] = indices[swap], indices[i]
		i = swap
	}
}
