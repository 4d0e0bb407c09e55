package searcher

import "sync"

// Searcher is a reusable execution context for graph traversal. It owns all
// scratch memory required for a search or insert, eliminating heap
// allocations in the steady state.
//
// Searcher is NOT thread-safe. It is intended to be owned by a single
// goroutine for the duration of an operation.
type Searcher struct {
	// Visited tracks visited nodes during layer traversal.
	Visited *VisitedSet

	// Results is a max-heap bounding the current top-ef frontier.
	Results *PriorityQueue

	// Candidates is a min-heap of unexpanded candidates.
	Candidates *PriorityQueue

	// Sorted is a scratch buffer for candidates ordered by ascending distance.
	Sorted []Candidate

	// Selected is a scratch buffer for heuristic neighbor selection.
	Selected []Candidate
}

var pool = sync.Pool{
	New: func() any {
		return &Searcher{
			Visited:    NewVisitedSet(1024),
			Results:    NewPriorityQueue(true),
			Candidates: NewPriorityQueue(false),
			Sorted:     make([]Candidate, 0, 128),
			Selected:   make([]Candidate, 0, 64),
		}
	},
}

// Get returns a reset Searcher from the pool.
func Get() *Searcher {
	s := pool.Get().(*Searcher)
	s.Reset()
	return s
}

// Put returns a Searcher to the pool.
func Put(s *Searcher) {
	pool.Put(s)
}

// Reset clears the searcher state for reuse.
func (s *Searcher) Reset() {
	s.Visited.Reset()
	s.Results.Reset()
	s.Candidates.Reset()
	s.Sorted = s.Sorted[:0]
	s.Selected = s.Selected[:0]
}
