package graph

import (
	"sync/atomic"

	"github.com/vexsearch/vex/internal/searcher"
	"github.com/vexsearch/vex/model"
)

// KNNSearch returns the k nearest neighbors of query ordered by ascending
// distance. efSearch bounds the layer-0 frontier; values below k are raised
// to k.
func (g *Graph) KNNSearch(query []float32, k, efSearch int) ([]model.SearchResult, error) {
	out := make([]model.SearchResult, 0, k)
	if err := g.KNNSearchInto(query, k, efSearch, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// KNNSearchInto appends results to buf, avoiding an allocation per query.
func (g *Graph) KNNSearchInto(query []float32, k, efSearch int, buf *[]model.SearchResult) error {
	if len(query) != g.dim {
		return &ErrDimensionMismatch{Expected: g.dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil
	}

	p := g.rec.Pin()
	defer p.Unpin()

	maxLevel := int(g.maxLevel.Load())
	if maxLevel < 0 {
		return nil
	}

	curr := model.VectorID(g.entryPoint.Load())
	currDist := g.dist(query, curr)

	for l := maxLevel; l >= 1; l-- {
		curr, currDist = g.greedyStep(query, curr, currDist, l)
	}

	s := searcher.Get()
	defer searcher.Put(s)

	ef := max(k, efSearch)
	g.searchLayer(s, query, curr, currDist, 0, ef)

	sorted := extractAscending(s)
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	for _, c := range sorted {
		*buf = append(*buf, model.SearchResult{ID: c.ID, Distance: c.Distance})
	}
	return nil
}

// greedyStep walks to the strictly-closer neighbor at the given layer until
// no improvement remains.
func (g *Graph) greedyStep(query []float32, curr model.VectorID, currDist float32, level int) (model.VectorID, float32) {
	for changed := true; changed; {
		changed = false

		list := g.neighbors(curr, level)
		if list == nil {
			break
		}
		n := list.snapshotLen()
		for i := 0; i < n; i++ {
			cand := model.VectorID(atomic.LoadUint32(&list.ids[i]))
			if d := g.dist(query, cand); d < currDist {
				curr = cand
				currDist = d
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer runs the greedy frontier search at one layer: a min-heap of
// unexpanded candidates against a max-heap bounding the best ef found so far.
func (g *Graph) searchLayer(s *searcher.Searcher, query []float32, entry model.VectorID, entryDist float32, level, ef int) {
	s.Visited.Reset()
	s.Candidates.Reset()
	s.Results.Reset()

	s.Visited.Visit(entry)
	s.Candidates.Push(searcher.Candidate{ID: entry, Distance: entryDist})
	s.Results.Push(searcher.Candidate{ID: entry, Distance: entryDist})

	for s.Candidates.Len() > 0 {
		curr, _ := s.Candidates.Pop()

		if worst, ok := s.Results.Top(); ok && curr.Distance > worst.Distance && s.Results.Len() >= ef {
			break
		}

		list := g.neighbors(curr.ID, level)
		if list == nil {
			continue
		}
		n := list.snapshotLen()
		for i := 0; i < n; i++ {
			next := model.VectorID(atomic.LoadUint32(&list.ids[i]))
			if s.Visited.Visited(next) {
				continue
			}
			s.Visited.Visit(next)

			d := g.dist(query, next)
			if worst, ok := s.Results.Top(); !ok || s.Results.Len() < ef || d < worst.Distance {
				s.Candidates.Push(searcher.Candidate{ID: next, Distance: d})
				s.Results.PushBounded(searcher.Candidate{ID: next, Distance: d}, ef)
			}
		}
	}
}

// extractAscending drains the result heap into s.Sorted, nearest first.
func extractAscending(s *searcher.Searcher) []searcher.Candidate {
	s.Sorted = s.Sorted[:0]
	for s.Results.Len() > 0 {
		c, _ := s.Results.Pop()
		s.Sorted = append(s.Sorted, c)
	}
	for i, j := 0, len(s.Sorted)-1; i < j; i, j = i+1, j-1 {
		s.Sorted[i], s.Sorted[j] = s.Sorted[j], s.Sorted[i]
	}
	return s.Sorted
}
