// Package ebr implements epoch-based reclamation for the lock-free readers of
// the graph. Readers pin the current global epoch for the duration of a read
// section; writers retire superseded memory with a deleter that runs once the
// global epoch has advanced two steps past the retirement epoch, at which
// point no pinned reader can still observe the pointer.
//
// Participants take the place of C-style thread-local slots: they are pooled,
// so a goroutine acquires one on the outermost Pin and releases it on the
// matching Unpin. A participant must not be used after its outermost Unpin.
package ebr

import (
	"sync"
	"sync/atomic"
)

const (
	epochBuckets        = 3
	localBatchThreshold = 64
)

type retiredEntry struct {
	free  func()
	epoch uint64
}

// Participant holds the per-reader pin state. All methods must be called from
// the goroutine that obtained the participant via Manager.Pin.
type Participant struct {
	localEpoch atomic.Uint64
	active     atomic.Bool

	// pinCount and localRetired are owned by the pinning goroutine; the pool
	// handoff orders access across owners.
	pinCount     uint32
	localRetired []retiredEntry

	mgr *Manager
}

// Manager is the process-wide reclamation service.
type Manager struct {
	globalEpoch atomic.Uint64

	participantsMu sync.Mutex
	participants   []*Participant

	retireMu      sync.Mutex
	globalRetired [epochBuckets][]retiredEntry

	pool sync.Pool
}

// NewManager creates a reclamation manager with the global epoch at 1.
func NewManager() *Manager {
	m := &Manager{}
	m.globalEpoch.Store(1)
	m.pool.New = func() any {
		p := &Participant{
			mgr:          m,
			localRetired: make([]retiredEntry, 0, localBatchThreshold),
		}
		m.participantsMu.Lock()
		m.participants = append(m.participants, p)
		m.participantsMu.Unlock()
		return p
	}
	return m
}

// Default is the process-wide manager. Its lifetime spans every engine in the
// process; Drain is called on engine shutdown for best-effort cleanup.
var Default = NewManager()

// Pin acquires a participant from the pool and enters a read section.
// The caller must eventually call Unpin on the returned participant.
func (m *Manager) Pin() *Participant {
	p := m.pool.Get().(*Participant)
	p.Pin()
	return p
}

// CurrentEpoch returns the global epoch.
func (m *Manager) CurrentEpoch() uint64 {
	return m.globalEpoch.Load()
}

// Pin enters a (possibly nested) read section. Only the outermost Pin
// publishes the global epoch into the participant slot.
func (p *Participant) Pin() {
	if p.pinCount == 0 {
		epoch := p.mgr.globalEpoch.Load()
		p.localEpoch.Store(epoch)
		p.active.Store(true)
	}
	p.pinCount++
}

// Unpin leaves a read section. The outermost Unpin clears the active flag,
// flushes a half-full local batch and returns the participant to the pool;
// the participant must not be touched afterwards.
func (p *Participant) Unpin() {
	if p.pinCount <= 1 {
		p.pinCount = 0
		p.active.Store(false)
		if len(p.localRetired) >= localBatchThreshold/2 {
			p.mgr.flushLocal(p)
		}
		p.mgr.pool.Put(p)
		return
	}
	p.pinCount--
}

// Retire enqueues a deleter stamped with the current global epoch. The
// deleter runs once the global epoch has advanced to the retirement epoch
// plus two or beyond.
func (p *Participant) Retire(free func()) {
	if free == nil {
		return
	}
	epoch := p.mgr.globalEpoch.Load()
	p.localRetired = append(p.localRetired, retiredEntry{free: free, epoch: epoch})

	if len(p.localRetired) >= localBatchThreshold {
		p.mgr.flushLocal(p)
		p.mgr.Collect()
	}
}

// Flush pushes the local retirement batch to the global buckets and attempts
// a collection round.
func (p *Participant) Flush() {
	p.mgr.flushLocal(p)
	p.mgr.Collect()
}

func (m *Manager) flushLocal(p *Participant) {
	if len(p.localRetired) == 0 {
		return
	}
	m.retireMu.Lock()
	for _, e := range p.localRetired {
		idx := e.epoch % epochBuckets
		m.globalRetired[idx] = append(m.globalRetired[idx], e)
	}
	m.retireMu.Unlock()
	p.localRetired = p.localRetired[:0]
}

// Collect attempts to advance the global epoch, then reclaims the bucket of
// the epoch two behind the (possibly advanced) epoch. Entries in the other
// buckets are left for a later round that lands on their bucket.
func (m *Manager) Collect() {
	observed := m.globalEpoch.Load()
	if m.canAdvance(observed) {
		m.globalEpoch.CompareAndSwap(observed, observed+1)
	}

	current := m.globalEpoch.Load()
	if current < 2 {
		return
	}
	m.reclaim(current - 2)
}

// canAdvance reports whether every currently-active participant has observed
// the given epoch.
func (m *Manager) canAdvance(observed uint64) bool {
	m.participantsMu.Lock()
	defer m.participantsMu.Unlock()

	for _, p := range m.participants {
		if !p.active.Load() {
			continue
		}
		if p.localEpoch.Load() != observed {
			return false
		}
	}
	return true
}

// reclaim frees every entry in the safe epoch's bucket whose retirement epoch
// is at or before safeEpoch. Deleters run outside the retirement lock.
func (m *Manager) reclaim(safeEpoch uint64) {
	var ready []retiredEntry

	m.retireMu.Lock()
	bucket := m.globalRetired[safeEpoch%epochBuckets]
	write := 0
	for _, e := range bucket {
		if e.epoch <= safeEpoch {
			ready = append(ready, e)
		} else {
			bucket[write] = e
			write++
		}
	}
	m.globalRetired[safeEpoch%epochBuckets] = bucket[:write]
	m.retireMu.Unlock()

	for _, e := range ready {
		e.free()
	}
}

// Drain runs every outstanding deleter regardless of epoch. Only safe once
// all readers have stopped; used at engine shutdown.
func (m *Manager) Drain() {
	m.retireMu.Lock()
	var all []retiredEntry
	for i := range m.globalRetired {
		all = append(all, m.globalRetired[i]...)
		m.globalRetired[i] = nil
	}
	m.retireMu.Unlock()

	for _, e := range all {
		e.free()
	}
}
