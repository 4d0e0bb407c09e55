package searcher

import "github.com/vexsearch/vex/model"

// Candidate is a tagged pair ordered by distance.
type Candidate struct {
	ID       model.VectorID
	Distance float32
}

// PriorityQueue implements a binary heap of Candidates. It is value-based and
// does NOT implement container/heap, avoiding interface overhead on the hot
// path.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Candidate
}

// NewPriorityQueue creates a new priority queue. A max-heap keeps the worst
// candidate on top (result frontier); a min-heap keeps the best on top
// (exploration set).
func NewPriorityQueue(isMaxHeap bool) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: isMaxHeap,
		items:     make([]Candidate, 0, 16),
	}
}

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// Len returns the number of elements in the heap.
func (pq *PriorityQueue) Len() int {
	return len(pq.items)
}

// Top returns the top element of the heap.
func (pq *PriorityQueue) Top() (Candidate, bool) {
	if len(pq.items) == 0 {
		return Candidate{}, false
	}
	return pq.items[0], true
}

// Min returns the item with the smallest distance. O(n) for a max-heap, but n
// is bounded by ef.
func (pq *PriorityQueue) Min() (Candidate, bool) {
	if len(pq.items) == 0 {
		return Candidate{}, false
	}
	if !pq.isMaxHeap {
		return pq.items[0], true
	}
	minItem := pq.items[0]
	for _, item := range pq.items[1:] {
		if item.Distance < minItem.Distance {
			minItem = item
		}
	}
	return minItem, true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) Push(item Candidate) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PushBounded inserts into a heap capped at capacity items. When full, the
// new item replaces the top only if it is better.
func (pq *PriorityQueue) PushBounded(item Candidate, capacity int) {
	if len(pq.items) < capacity {
		pq.Push(item)
		return
	}

	top, _ := pq.Top()
	if pq.isMaxHeap {
		if item.Distance < top.Distance {
			pq.items[0] = item
			pq.siftDown(0)
		}
	} else {
		if item.Distance > top.Distance {
			pq.items[0] = item
			pq.siftDown(0)
		}
	}
}

// Pop removes and returns the top element.
func (pq *PriorityQueue) Pop() (Candidate, bool) {
	n := len(pq.items)
	if n == 0 {
		return Candidate{}, false
	}

	item := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]
	if len(pq.items) > 0 {
		pq.siftDown(0)
	}
	return item, true
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.items[i], pq.items[parent] = pq.items[parent], pq.items[i]
		i = parent
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && pq.less(right, left) {
			child = right
		}
		if !pq.less(child, i) {
			break
		}
		pq.items[i], pq.items[child] = pq.items[child], pq.items[i]
		i = child
	}
}
