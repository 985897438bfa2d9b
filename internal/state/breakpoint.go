package state

import "sync"

// BkptMeta records one breakpoint command verbatim, deduplicated by its
// exact text (spec.md §4.4).
type BkptMeta struct {
	OrigCmd string
}

// BreakpointMgr owns the per-group replay set: a breakpoint inserted on
// any session of a group is recorded here and replayed on every
// subsequent session that joins the group.
//
// Per spec.md §5 ("closures MUST NOT await"), Modify's callback must never
// block — it only mutates the in-memory set under the manager's mutex.
type BreakpointMgr struct {
	mu     sync.Mutex
	bkpts  map[GroupID]map[string]struct{} // group -> set of orig_cmd
}

// NewBreakpointMgr constructs an empty BreakpointMgr.
func NewBreakpointMgr() *BreakpointMgr {
	return &BreakpointMgr{bkpts: make(map[GroupID]map[string]struct{})}
}

// Record adds origCmd to the group's replay set; it is a no-op if already
// present (dedup by exact text).
func (b *BreakpointMgr) Record(gid GroupID, origCmd string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.bkpts[gid]
	if !ok {
		set = make(map[string]struct{})
		b.bkpts[gid] = set
	}
	set[origCmd] = struct{}{}
}

// ForGroup returns a snapshot of every recorded breakpoint command for a
// group, in no particular order.
func (b *BreakpointMgr) ForGroup(gid GroupID) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.bkpts[gid]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for cmd := range set {
		out = append(out, cmd)
	}
	return out
}
