package state

import "sync"

// ThreadStatus is the run state of a single backend thread.
type ThreadStatus int

const (
	ThreadInit ThreadStatus = iota
	ThreadRunning
	ThreadStopped
)

// ThreadGroupStatus is the run state of a backend thread group (inferior).
type ThreadGroupStatus int

const (
	GroupInit ThreadGroupStatus = iota
	GroupRunning
	GroupStopped
	GroupExited
)

// SessionStatus reflects whether the backend handshake has completed and
// the session is actively connected.
type SessionStatus int

const (
	SessionOn SessionStatus = iota
	SessionOff
)

func (s SessionStatus) String() string {
	if s == SessionOn {
		return "ON"
	}
	return "OFF"
}

// ThreadContext is a register snapshot, either a thread's own native
// context or one borrowed from a caller during a distributed backtrace.
type ThreadContext struct {
	TID uint64
	Ctx map[string]uint64
}

// Clone returns a deep copy of the context.
func (c *ThreadContext) Clone() *ThreadContext {
	if c == nil {
		return nil
	}
	cp := &ThreadContext{TID: c.TID, Ctx: make(map[string]uint64, len(c.Ctx))}
	for k, v := range c.Ctx {
		cp.Ctx[k] = v
	}
	return cp
}

// ServiceMeta is the discovery-supplied metadata about the process behind
// a session.
type ServiceMeta struct {
	IP       string
	Tag      string
	PID      uint64
	Hash     string
	Alias    string
	UserData map[string]string
}

// threadGroup tracks one backend-local thread group's membership and state.
type threadGroup struct {
	Status  ThreadGroupStatus
	PID     uint64
	Threads map[uint64]struct{} // local tids
}

// Session is the coordinator's per-remote-process handle: display tag,
// thread/group membership, per-thread status, and the borrowed-context
// bookkeeping used by distributed backtrace (spec.md §3 "Session").
//
// A Session's own RWMutex ("per-entry lock") is distinct from the
// container-level lock held by Store while looking sessions up — the
// container lock is never held across a Session-level lock acquisition,
// which is what makes it safe for handler code to await while holding a
// Session's write lock (spec.md §5).
type Session struct {
	mu sync.RWMutex

	SID         uint64
	Tag         string
	Status      SessionStatus
	ServiceMeta *ServiceMeta

	currTID *uint64 // session-local current thread (local tid)
	tStatus map[uint64]ThreadStatus
	groups  map[string]*threadGroup
	tToGrp  map[uint64]string // local tid -> local tgid

	currCtx     *ThreadContext
	inCustomCtx bool
}

// NewSession constructs a Session in the ON-pending / freshly-registered
// state (status OFF until the backend handshake completes).
func NewSession(sid uint64, tag string, meta *ServiceMeta) *Session {
	return &Session{
		SID:         sid,
		Tag:         tag,
		Status:      SessionOff,
		ServiceMeta: meta,
		tStatus:     make(map[uint64]ThreadStatus),
		groups:      make(map[string]*threadGroup),
		tToGrp:      make(map[uint64]string),
	}
}

func (s *Session) Lock()    { s.mu.Lock() }
func (s *Session) Unlock()  { s.mu.Unlock() }
func (s *Session) RLock()   { s.mu.RLock() }
func (s *Session) RUnlock() { s.mu.RUnlock() }

// SetStatus updates the connection status under the session's own lock.
func (s *Session) SetStatus(status SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

// InCustomCtx reports whether the session currently holds a borrowed
// caller context (I3). Caller must not hold the session lock.
func (s *Session) InCustomCtx() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inCustomCtx
}

// CurrCtx returns a copy of the saved caller context, if any.
func (s *Session) CurrCtx() *ThreadContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currCtx.Clone()
}

// SetCustomCtx installs oldCtx as the saved caller context and marks the
// session as being in a borrowed context. Caller must hold the write lock
// (see cmdflow's context-switch choreography, spec.md §4.5/§4.6).
func (s *Session) SetCustomCtx(oldCtx *ThreadContext) {
	s.currCtx = oldCtx
	s.inCustomCtx = true
}

// ClearCustomCtx restores native-context bookkeeping. Caller must hold the
// write lock.
func (s *Session) ClearCustomCtx() {
	s.currCtx = nil
	s.inCustomCtx = false
}

// CreateThread registers a newly-seen local thread under a thread group,
// creating the group record if needed (INIT state).
func (s *Session) CreateThread(tid uint64, tgid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.ensureGroup(tgid)
	g.Threads[tid] = struct{}{}
	s.tToGrp[tid] = tgid
	s.tStatus[tid] = ThreadInit
}

func (s *Session) ensureGroup(tgid string) *threadGroup {
	g, ok := s.groups[tgid]
	if !ok {
		g = &threadGroup{Status: GroupInit, Threads: make(map[uint64]struct{})}
		s.groups[tgid] = g
	}
	return g
}

// AddThreadGroup ensures a thread group exists (INIT state) without any
// member threads yet (the `thread-group-added` notify).
func (s *Session) AddThreadGroup(tgid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureGroup(tgid)
}

// StartThreadGroup transitions a group to RUNNING and records its pid.
func (s *Session) StartThreadGroup(tgid string, pid uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.ensureGroup(tgid)
	g.Status = GroupRunning
	g.PID = pid
}

// ExitThreadGroup marks a group EXITED and drops its child-thread links
// (but not the group record itself — removal is a separate step, driven
// by `thread-group-removed`).
func (s *Session) ExitThreadGroup(tgid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[tgid]
	if !ok {
		return
	}
	g.Status = GroupExited
	for tid := range g.Threads {
		delete(s.tToGrp, tid)
		delete(s.tStatus, tid)
	}
	g.Threads = make(map[uint64]struct{})
}

// RemoveThreadGroup drops the group record entirely and returns the set of
// local tids it owned, for the caller to purge from the global id index.
func (s *Session) RemoveThreadGroup(tgid string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[tgid]
	if !ok {
		return nil
	}
	tids := make([]uint64, 0, len(g.Threads))
	for tid := range g.Threads {
		tids = append(tids, tid)
		delete(s.tToGrp, tid)
		delete(s.tStatus, tid)
	}
	delete(s.groups, tgid)
	return tids
}

// RemoveThread drops a single thread (the `thread-exited` notify) and
// returns its owning local tgid, if known.
func (s *Session) RemoveThread(tid uint64) (tgid string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tgid, ok = s.tToGrp[tid]
	if ok {
		if g := s.groups[tgid]; g != nil {
			delete(g.Threads, tid)
		}
		delete(s.tToGrp, tid)
	}
	delete(s.tStatus, tid)
	return tgid, ok
}

// UpdateThreadStatus sets one thread's status.
func (s *Session) UpdateThreadStatus(tid uint64, status ThreadStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tStatus[tid]; ok {
		s.tStatus[tid] = status
	}
}

// UpdateAllThreadStatus sets every known thread's status (the "all"
// variant of `running`/`stopped` notifies).
func (s *Session) UpdateAllThreadStatus(status ThreadStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tid := range s.tStatus {
		s.tStatus[tid] = status
	}
}

// AllThreadsStopped reports whether every known thread in the session is
// STOPPED — used by the distributed-backtrace interrupt-wait (spec.md
// §4.6 step 4).
func (s *Session) AllThreadsStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.tStatus {
		if st != ThreadStopped {
			return false
		}
	}
	return true
}

// SetCurrTID sets the session-local current thread pointer.
func (s *Session) SetCurrTID(tid uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := tid
	s.currTID = &t
}

// CurrTID returns the session-local current thread pointer, if set.
func (s *Session) CurrTID() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currTID == nil {
		return 0, false
	}
	return *s.currTID, true
}

// FirstThread returns an arbitrary local tid known to the session, for
// callers (e.g. distributed backtrace context-switch) that need "the
// parent's first thread" without a specific selection.
func (s *Session) FirstThread() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for tid := range s.tStatus {
		return tid, true
	}
	return 0, false
}

// ThreadGroupIDs returns the session's current set of local thread-group
// ids.
func (s *Session) ThreadGroupIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.groups))
	for tgid := range s.groups {
		out = append(out, tgid)
	}
	return out
}

// LocalThreadIDs returns every local tid currently tracked by the session.
func (s *Session) LocalThreadIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.tStatus))
	for tid := range s.tStatus {
		out = append(out, tid)
	}
	return out
}
