package graph

import (
	"sort"
	"sync/atomic"

	"github.com/vexsearch/vex/internal/ebr"
	"github.com/vexsearch/vex/internal/math32"
	"github.com/vexsearch/vex/internal/searcher"
	"github.com/vexsearch/vex/model"
)

// Insert adds (vec, id) concurrently with searches. Neighbor lists are
// replaced copy-on-write and superseded lists are retired to the epoch
// manager; readers never block.
func (g *Graph) Insert(vec []float32, id model.VectorID) error {
	if err := g.validate(vec, id); err != nil {
		return err
	}
	p := g.rec.Pin()
	defer p.Unpin()

	g.insert(vec, id, p)
	return nil
}

// InsertBulk adds (vec, id) during the cold bulk-load phase. Readers are
// absent, so neighbor lists are grown in place under per-node spin locks and
// nothing is retired.
func (g *Graph) InsertBulk(vec []float32, id model.VectorID) error {
	if err := g.validate(vec, id); err != nil {
		return err
	}
	g.insert(vec, id, nil)
	return nil
}

func (g *Graph) insert(vec []float32, id model.VectorID, p *ebr.Participant) {
	level := g.randomLevel()
	g.initNode(id, vec, level)
	vec = g.vectorAt(id)

	maxLevel := int(g.maxLevel.Load())
	if maxLevel == -1 {
		g.epMu.Lock()
		if g.maxLevel.Load() == -1 {
			g.entryPoint.Store(uint32(id))
			g.maxLevel.Store(int32(level))
			g.epMu.Unlock()
			g.count.Add(1)
			return
		}
		maxLevel = int(g.maxLevel.Load())
		g.epMu.Unlock()
	}

	curr := model.VectorID(g.entryPoint.Load())
	currDist := g.dist(vec, curr)

	// Vertical descent to the first layer the new node participates in.
	for l := maxLevel; l > level; l-- {
		curr, currDist = g.greedyStep(vec, curr, currDist, l)
	}

	s := searcher.Get()
	defer searcher.Put(s)

	for l := min(maxLevel, level); l >= 0; l-- {
		g.searchLayer(s, vec, curr, currDist, l, g.efConstruction)
		sorted := extractAscending(s)
		if len(sorted) == 0 {
			continue
		}

		maxM := g.m
		if l == 0 {
			maxM = g.m0
		}

		limit := min(len(sorted), maxM)
		for _, cand := range sorted[:limit] {
			if cand.ID == id {
				continue
			}
			if p != nil {
				g.addNeighborRCU(p, id, l, cand.ID, maxM)
				g.addNeighborRCU(p, cand.ID, l, id, maxM)
			} else {
				g.addNeighborInPlace(id, l, cand.ID, maxM)
				g.addNeighborInPlace(cand.ID, l, id, maxM)
			}
		}

		curr, currDist = sorted[0].ID, sorted[0].Distance
	}

	if level > int(g.maxLevel.Load()) {
		g.epMu.Lock()
		if level > int(g.maxLevel.Load()) {
			g.entryPoint.Store(uint32(id))
			g.maxLevel.Store(int32(level))
		}
		g.epMu.Unlock()
	}

	g.count.Add(1)
}

// addNeighborRCU appends target to src's layer-level list by publishing a
// fresh list via CAS. A list that would exceed twice the degree target is
// rebuilt with heuristic pruning instead, bounding streaming degree at
// 2·maxM. Duplicate targets are skipped.
func (g *Graph) addNeighborRCU(p *ebr.Participant, src model.VectorID, level int, target model.VectorID, maxM int) {
	nd := &g.nodes[src]

	for {
		old := nd.lists[level].Load()

		var fresh *NeighborList
		if old == nil {
			fresh = newNeighborList(1)
			fresh.ids[0] = uint32(target)
			fresh.count.Store(1)
		} else {
			n := old.snapshotLen()
			dup := false
			for i := 0; i < n; i++ {
				if atomic.LoadUint32(&old.ids[i]) == uint32(target) {
					dup = true
					break
				}
			}
			if dup {
				return
			}

			if n+1 > 2*maxM {
				fresh = g.pruneRebuild(src, old, n, target, maxM)
			} else {
				fresh = newNeighborList(n + 1)
				for i := 0; i < n; i++ {
					fresh.ids[i] = atomic.LoadUint32(&old.ids[i])
				}
				fresh.ids[n] = uint32(target)
				fresh.count.Store(uint32(n + 1))
			}
		}

		if nd.lists[level].CompareAndSwap(old, fresh) {
			if old != nil {
				p.Retire(func() {
					old.count.Store(0)
					old.ids = nil
				})
			}
			return
		}
		// Lost the race: drop the speculative list and retry against the
		// republished pointer.
	}
}

// addNeighborInPlace appends target to src's layer-level list under src's
// spin lock, pruning heuristically once the degree target is exceeded. Lists
// carry one overflow slot so the append never reallocates.
func (g *Graph) addNeighborInPlace(src model.VectorID, level int, target model.VectorID, maxM int) {
	nd := &g.nodes[src]
	nd.lock.lock()
	defer nd.lock.unlock()

	list := nd.lists[level].Load()
	if list == nil {
		list = newNeighborList(maxM + 1)
		nd.lists[level].Store(list)
	}

	n := int(list.count.Load())
	for i := 0; i < n; i++ {
		if atomic.LoadUint32(&list.ids[i]) == uint32(target) {
			return
		}
	}

	atomic.StoreUint32(&list.ids[n], uint32(target))
	list.count.Store(uint32(n + 1))

	if n+1 > maxM {
		g.pruneInPlace(src, list, n+1, maxM)
	}
}

// pruneRebuild builds the pruned replacement list for a streaming update.
func (g *Graph) pruneRebuild(src model.VectorID, old *NeighborList, n int, target model.VectorID, maxM int) *NeighborList {
	srcVec := g.vectorAt(src)

	cands := make([]searcher.Candidate, 0, n+1)
	for i := 0; i < n; i++ {
		cid := model.VectorID(atomic.LoadUint32(&old.ids[i]))
		cands = append(cands, searcher.Candidate{ID: cid, Distance: g.dist(srcVec, cid)})
	}
	cands = append(cands, searcher.Candidate{ID: target, Distance: g.dist(srcVec, target)})

	selected := g.selectNeighbors(cands, maxM)

	fresh := newNeighborList(len(selected))
	for i, c := range selected {
		fresh.ids[i] = uint32(c.ID)
	}
	fresh.count.Store(uint32(len(selected)))
	return fresh
}

// pruneInPlace rewrites list to the heuristic selection. Entries are stored
// atomically so concurrent bulk readers never observe out-of-range ids.
func (g *Graph) pruneInPlace(src model.VectorID, list *NeighborList, n, maxM int) {
	srcVec := g.vectorAt(src)

	cands := make([]searcher.Candidate, 0, n)
	for i := 0; i < n; i++ {
		cid := model.VectorID(atomic.LoadUint32(&list.ids[i]))
		cands = append(cands, searcher.Candidate{ID: cid, Distance: g.dist(srcVec, cid)})
	}

	selected := g.selectNeighbors(cands, maxM)

	for i, c := range selected {
		atomic.StoreUint32(&list.ids[i], uint32(c.ID))
	}
	list.count.Store(uint32(len(selected)))
}

// selectNeighbors sorts candidates by distance and applies the diversity
// heuristic: a candidate is kept only if it is at least as close to the node
// as to every already-selected neighbor. Remaining slots are filled from the
// sorted order.
func (g *Graph) selectNeighbors(cands []searcher.Candidate, maxM int) []searcher.Candidate {
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].Distance < cands[j].Distance
	})

	selected := make([]searcher.Candidate, 0, maxM)
	for _, c := range cands {
		if len(selected) >= maxM {
			break
		}
		keep := true
		for _, s := range selected {
			if math32.SquaredL2(g.vectorAt(c.ID), g.vectorAt(s.ID)) < c.Distance {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		}
	}

	// Fill up from the sorted list when the heuristic kept too few.
	for _, c := range cands {
		if len(selected) >= maxM {
			break
		}
		exists := false
		for _, s := range selected {
			if s.ID == c.ID {
				exists = true
				break
			}
		}
		if !exists {
			selected = append(selected, c)
		}
	}

	return selected
}
