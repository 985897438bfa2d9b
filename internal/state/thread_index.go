package state

import (
	"fmt"
	"sync"

	"github.com/USC-NSL/DDB/internal/ids"
)

// LocalThreadID names a backend-local thread: which session it belongs to
// and its session-scoped tid.
type LocalThreadID struct {
	SID uint64
	TID uint64
}

// LocalThreadGroupID names a backend-local thread group.
type LocalThreadGroupID struct {
	SID  uint64
	TGID string
}

// ThreadIndex holds the bidirectional global<->local id mappings for
// threads and thread groups (spec.md §4.1). Global ids are the only
// surface ever exposed to the user; local ids are an internal detail of
// (session, backend-assigned id).
type ThreadIndex struct {
	mu sync.RWMutex

	tidToGtid map[LocalThreadID]uint64
	gtidToTid map[uint64]LocalThreadID

	tgidToGtgid map[LocalThreadGroupID]uint64
	gtgidToTgid map[uint64]LocalThreadGroupID

	gens *ids.Generators
}

// NewThreadIndex constructs an empty index backed by the given id
// generators.
func NewThreadIndex(gens *ids.Generators) *ThreadIndex {
	return &ThreadIndex{
		tidToGtid:   make(map[LocalThreadID]uint64),
		gtidToTid:   make(map[uint64]LocalThreadID),
		tgidToGtgid: make(map[LocalThreadGroupID]uint64),
		gtgidToTgid: make(map[uint64]LocalThreadGroupID),
		gens:        gens,
	}
}

// AllocateGTID assigns (or returns the existing) global thread id for a
// local thread.
func (idx *ThreadIndex) AllocateGTID(local LocalThreadID) uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if g, ok := idx.tidToGtid[local]; ok {
		return g
	}
	g := idx.gens.GlobalTID.Next()
	idx.tidToGtid[local] = g
	idx.gtidToTid[g] = local
	return g
}

// AllocateGTGID assigns (or returns the existing) global thread-group id
// for a local thread group.
func (idx *ThreadIndex) AllocateGTGID(local LocalThreadGroupID) uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if g, ok := idx.tgidToGtgid[local]; ok {
		return g
	}
	g := idx.gens.GlobalTGID.Next()
	idx.tgidToGtgid[local] = g
	idx.gtgidToTgid[g] = local
	return g
}

// GTID returns the global thread id for a local thread, if allocated.
func (idx *ThreadIndex) GTID(local LocalThreadID) (uint64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	g, ok := idx.tidToGtid[local]
	return g, ok
}

// LocalByGTID resolves a global thread id back to its local (sid, tid).
func (idx *ThreadIndex) LocalByGTID(gtid uint64) (LocalThreadID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	l, ok := idx.gtidToTid[gtid]
	return l, ok
}

// GTGID returns the global thread-group id for a local group, if allocated.
func (idx *ThreadIndex) GTGID(local LocalThreadGroupID) (uint64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	g, ok := idx.tgidToGtgid[local]
	return g, ok
}

// LocalByGTGID resolves a global thread-group id back to its local form.
func (idx *ThreadIndex) LocalByGTGID(gtgid uint64) (LocalThreadGroupID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	l, ok := idx.gtgidToTgid[gtgid]
	return l, ok
}

// RemoveThread purges a local thread's mapping (the `thread-exited` path).
func (idx *ThreadIndex) RemoveThread(local LocalThreadID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if g, ok := idx.tidToGtid[local]; ok {
		delete(idx.gtidToTid, g)
		delete(idx.tidToGtid, local)
	}
}

// RemoveThreadGroup purges a local group's mapping along with every thread
// transitively owned by it (removeThreadGroup purges transitively, per
// spec.md §4.1).
func (idx *ThreadIndex) RemoveThreadGroup(local LocalThreadGroupID, ownedTIDs []uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if g, ok := idx.tgidToGtgid[local]; ok {
		delete(idx.gtgidToTgid, g)
		delete(idx.tgidToGtgid, local)
	}
	for _, tid := range ownedTIDs {
		lt := LocalThreadID{SID: local.SID, TID: tid}
		if g, ok := idx.tidToGtid[lt]; ok {
			delete(idx.gtidToTid, g)
			delete(idx.tidToGtid, lt)
		}
	}
}

// GTIDsBySession returns every global thread id currently mapped to the
// given session (a full scan, matching the original's get_gtids_by_sid).
func (idx *ThreadIndex) GTIDsBySession(sid uint64) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []uint64
	for local, g := range idx.tidToGtid {
		if local.SID == sid {
			out = append(out, g)
		}
	}
	return out
}

// RemoveSession purges every thread/group mapping belonging to sid.
func (idx *ThreadIndex) RemoveSession(sid uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for local, g := range idx.tidToGtid {
		if local.SID == sid {
			delete(idx.gtidToTid, g)
			delete(idx.tidToGtid, local)
		}
	}
	for local, g := range idx.tgidToGtgid {
		if local.SID == sid {
			delete(idx.gtgidToTgid, g)
			delete(idx.tgidToGtgid, local)
		}
	}
}

// FormatGroupID renders a global thread-group id in the backend's "iN"
// local-id style, used when emitting notifies that mirror the original
// wire shape (e.g. "group-id=\"i5\"").
func FormatGroupID(gtgid uint64) string {
	return fmt.Sprintf("i%d", gtgid)
}
