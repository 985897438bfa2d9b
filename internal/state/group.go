package state

import "sync"

// GroupID is the stable content hash identifying a semantic group of
// sessions running the same binary (spec.md §3 "Group").
type GroupID = string

// GroupMeta carries a group's display alias and current membership.
type GroupMeta struct {
	Alias string
	SIDs  map[uint64]struct{}
}

// GroupMgr tracks group membership and the ownership invariant that a
// session belongs to at most one group (I2).
type GroupMgr struct {
	mu        sync.RWMutex
	groups    map[GroupID]*GroupMeta
	sidToGrp  map[uint64]GroupID
}

// NewGroupMgr constructs an empty GroupMgr.
func NewGroupMgr() *GroupMgr {
	return &GroupMgr{
		groups:   make(map[GroupID]*GroupMeta),
		sidToGrp: make(map[uint64]GroupID),
	}
}

// Join adds sid to the group identified by gid (creating it with the given
// alias if new), first leaving whatever group sid previously belonged to.
func (g *GroupMgr) Join(gid GroupID, alias string, sid uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.sidToGrp[sid]; ok && old != gid {
		g.leaveLocked(old, sid)
	}
	meta, ok := g.groups[gid]
	if !ok {
		meta = &GroupMeta{Alias: alias, SIDs: make(map[uint64]struct{})}
		g.groups[gid] = meta
	}
	meta.SIDs[sid] = struct{}{}
	g.sidToGrp[sid] = gid
}

// Leave removes sid from whatever group it belongs to.
func (g *GroupMgr) Leave(sid uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gid, ok := g.sidToGrp[sid]; ok {
		g.leaveLocked(gid, sid)
	}
}

func (g *GroupMgr) leaveLocked(gid GroupID, sid uint64) {
	if meta, ok := g.groups[gid]; ok {
		delete(meta.SIDs, sid)
		if len(meta.SIDs) == 0 {
			delete(g.groups, gid)
		}
	}
	delete(g.sidToGrp, sid)
}

// GroupIDOf returns the group a session currently belongs to, if any.
func (g *GroupMgr) GroupIDOf(sid uint64) (GroupID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gid, ok := g.sidToGrp[sid]
	return gid, ok
}

// Members returns the set of session ids currently in the group.
func (g *GroupMgr) Members(gid GroupID) map[uint64]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	meta, ok := g.groups[gid]
	if !ok {
		return nil
	}
	out := make(map[uint64]struct{}, len(meta.SIDs))
	for sid := range meta.SIDs {
		out[sid] = struct{}{}
	}
	return out
}

// AllGroups returns a snapshot copy of every group matching pred (pred may
// be nil to mean "all").
func (g *GroupMgr) AllGroups(pred func(GroupID, *GroupMeta) bool) map[GroupID]GroupMeta {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[GroupID]GroupMeta, len(g.groups))
	for gid, meta := range g.groups {
		if pred != nil && !pred(gid, meta) {
			continue
		}
		sids := make(map[uint64]struct{}, len(meta.SIDs))
		for sid := range meta.SIDs {
			sids[sid] = struct{}{}
		}
		out[gid] = GroupMeta{Alias: meta.Alias, SIDs: sids}
	}
	return out
}
