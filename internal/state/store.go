package state

import (
	"sync"

	"github.com/USC-NSL/DDB/internal/ids"
)

// Store is the coordinator's global state facade: the session container
// plus the group/breakpoint/source/thread-id/proclet sub-registries, and
// the single coordinator-wide "current session"/"current thread" pointers
// consulted by the input parser's default-target fallback (spec.md §4.2).
//
// Sessions are stored in a plain mutex-guarded map (the "container lock").
// The container lock is only ever held for the map operation itself, never
// across a *Session's own lock or any blocking call — see DESIGN.md for
// why this reproduces the Rust source's documented
// DashMap-await-deadlock avoidance without needing an off-the-shelf
// sharded concurrent map.
type Store struct {
	IDs     *ids.Generators
	Threads *ThreadIndex
	Groups  *GroupMgr
	Bkpts   *BreakpointMgr
	Sources *SourceMgr
	Proclet *ProcletRegistry

	mu       sync.RWMutex
	sessions map[uint64]*Session

	selMu          sync.Mutex
	currSession    *uint64
	currThreadGTID *uint64
}

// NewStore constructs an empty Store wired to a fresh id-generator set.
func NewStore() *Store {
	gens := ids.NewGenerators()
	return &Store{
		IDs:      gens,
		Threads:  NewThreadIndex(gens),
		Groups:   NewGroupMgr(),
		Bkpts:    NewBreakpointMgr(),
		Sources:  NewSourceMgr(),
		Proclet:  NewProcletRegistry(),
		sessions: make(map[uint64]*Session),
	}
}

// RegisterSession creates and stores a new Session, OFF until the backend
// handshake completes. This is the 3-arg form (with ServiceMeta); see
// DESIGN.md open question (h).
func (s *Store) RegisterSession(sid uint64, tag string, meta *ServiceMeta) *Session {
	sess := NewSession(sid, tag, meta)
	s.mu.Lock()
	s.sessions[sid] = sess
	s.mu.Unlock()
	return sess
}

// GetSession looks up a session by id.
func (s *Store) GetSession(sid uint64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sid]
	return sess, ok
}

// GetSessionByTag finds the session whose display tag matches (the
// distributed-backtrace parent-resolution lookup, spec.md §4.6 step 3).
func (s *Store) GetSessionByTag(tag string) (*Session, bool) {
	for _, sess := range s.AllSessions() {
		sess.RLock()
		match := sess.Tag == tag
		sess.RUnlock()
		if match {
			return sess, true
		}
	}
	return nil, false
}

// AllSessions returns a snapshot slice of every live session.
func (s *Store) AllSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// LowestSessionID returns the smallest live SessionId, used by the
// file-list-lines placeholder policy (spec.md §9(b), DESIGN.md (b)).
func (s *Store) LowestSessionID() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		lowest uint64
		found  bool
	)
	for sid := range s.sessions {
		if !found || sid < lowest {
			lowest = sid
			found = true
		}
	}
	return lowest, found
}

// RemoveSession drops a session and purges every sub-registry's reference
// to it (group membership, thread-id mappings, proclet node registrations
// are left as-is since they key by node address, not session).
func (s *Store) RemoveSession(sid uint64) {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()

	s.Groups.Leave(sid)
	s.Threads.RemoveSession(sid)

	s.selMu.Lock()
	if s.currSession != nil && *s.currSession == sid {
		s.currSession = nil
	}
	s.selMu.Unlock()
}

// SetCurrentSession updates the coordinator-wide "current session"
// pointer (spec.md §4.1, updated on every routed command targeting a
// specific session).
func (s *Store) SetCurrentSession(sid uint64) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	v := sid
	s.currSession = &v
}

// CurrentSession returns the coordinator-wide current session, if any.
func (s *Store) CurrentSession() (uint64, bool) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	if s.currSession == nil {
		return 0, false
	}
	return *s.currSession, true
}

// SetCurrentThread updates the coordinator-wide "current thread" pointer
// (a global thread id).
func (s *Store) SetCurrentThread(gtid uint64) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	v := gtid
	s.currThreadGTID = &v
}

// CurrentThread returns the coordinator-wide current thread, if any.
func (s *Store) CurrentThread() (uint64, bool) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	if s.currThreadGTID == nil {
		return 0, false
	}
	return *s.currThreadGTID, true
}

// SessionCount reports the number of live sessions, used by the
// supervisor to decide whether the last session's removal should trigger
// shutdown.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
