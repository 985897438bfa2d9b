package state

import "sync"

// ProcletHeapMeta records one restored heap region, so it can be cleaned
// up when the borrowing session resumes (spec.md §4.8 step 5 / "On
// resume").
type ProcletHeapMeta struct {
	ProcletID uint64
	StartAddr uint64
	Len       uint64
}

// ProcletRegistry maps a Caladan node address to the session that owns it
// locally, and tracks per-session heap restorations pending cleanup.
// Grounded on original_source/state/proclet_mgr.rs.
type ProcletRegistry struct {
	mu            sync.Mutex
	nodeToSession map[string]uint64
	pending       map[uint64][]ProcletHeapMeta // sid -> restorations to clean up
}

// NewProcletRegistry constructs an empty registry.
func NewProcletRegistry() *ProcletRegistry {
	return &ProcletRegistry{
		nodeToSession: make(map[string]uint64),
		pending:       make(map[uint64][]ProcletHeapMeta),
	}
}

// RegisterNode records that the given Caladan node address is served
// locally by sid.
func (r *ProcletRegistry) RegisterNode(addr string, sid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeToSession[addr] = sid
}

// SessionForNode resolves a Caladan node address to its owning session.
func (r *ProcletRegistry) SessionForNode(addr string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.nodeToSession[addr]
	return sid, ok
}

// RecordRestoration appends a pending cleanup entry for sid.
func (r *ProcletRegistry) RecordRestoration(sid uint64, meta ProcletHeapMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[sid] = append(r.pending[sid], meta)
}

// TakePending returns and clears every pending restoration recorded for
// sid (consumed by the resume-time cleanup pass).
func (r *ProcletRegistry) TakePending(sid uint64) []ProcletHeapMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	metas := r.pending[sid]
	delete(r.pending, sid)
	return metas
}
