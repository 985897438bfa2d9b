package cmdflow

import (
	"fmt"
	"sync"

	"github.com/USC-NSL/DDB/internal/state"
)

// SessionWriter is the minimum a session's backend transport must support
// for the router to drive it: writing one already-tokened command line.
// internal/transport's tunnel implementation satisfies this.
type SessionWriter interface {
	WriteLine(line string) error
}

// EmitFunc delivers a formatted line to whatever is consuming the
// coordinator's own output stream (the stdout sink).
type EmitFunc func(line string)

// Router fans a command out to the session(s) a Target resolves to,
// registers the expected reply count with the Tracker before writing so
// that a reply racing the registration can never be dropped, and returns
// control immediately — completion is observed asynchronously through the
// command's Sink (spec.md §4.3).
type Router struct {
	store   *state.Store
	tracker *Tracker
	emit    EmitFunc

	mu       sync.RWMutex
	writers  map[uint64]SessionWriter
}

// NewRouter constructs a Router bound to a Store, a Tracker, and an
// EmitFunc for the stdout sink.
func NewRouter(store *state.Store, tracker *Tracker, emit EmitFunc) *Router {
	return &Router{
		store:   store,
		tracker: tracker,
		emit:    emit,
		writers: make(map[uint64]SessionWriter),
	}
}

// Attach registers the transport a session uses for outbound writes.
func (r *Router) Attach(sid uint64, w SessionWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[sid] = w
}

// Detach drops a session's transport (the backend disconnected).
func (r *Router) Detach(sid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.writers, sid)
}

func (r *Router) writer(sid uint64) (SessionWriter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.writers[sid]
	return w, ok
}

// resolve turns a Target into the concrete set of session ids a command
// should be sent to, per spec.md §4.3's target-resolution rules.
func (r *Router) resolve(t Target) ([]uint64, error) {
	switch t.Kind {
	case TargetSession:
		return []uint64{t.SID}, nil

	case TargetThread:
		local, ok := r.store.Threads.LocalByGTID(t.GTID)
		if !ok {
			return nil, fmt.Errorf("cmdflow: unknown global thread id %d", t.GTID)
		}
		return []uint64{local.SID}, nil

	case TargetGroup:
		sids := r.store.Groups.Members(t.GID)
		out := make([]uint64, 0, len(sids))
		for sid := range sids {
			out = append(out, sid)
		}
		return out, nil

	case TargetCurrSession:
		sid, ok := r.store.CurrentSession()
		if !ok {
			return nil, fmt.Errorf("cmdflow: no current session selected")
		}
		return []uint64{sid}, nil

	case TargetCurrThread:
		gtid, ok := r.store.CurrentThread()
		if !ok {
			return nil, fmt.Errorf("cmdflow: no current thread selected")
		}
		local, ok := r.store.Threads.LocalByGTID(gtid)
		if !ok {
			return nil, fmt.Errorf("cmdflow: current thread %d has no live mapping", gtid)
		}
		return []uint64{local.SID}, nil

	case TargetSessionSet:
		return append([]uint64(nil), t.Set...), nil

	case TargetBroadcast:
		all := r.store.AllSessions()
		out := make([]uint64, 0, len(all))
		for _, s := range all {
			out = append(out, s.SID)
		}
		return out, nil

	case TargetFirst:
		all := r.store.AllSessions()
		if len(all) == 0 {
			return nil, fmt.Errorf("cmdflow: no live session to target")
		}
		return []uint64{all[0].SID}, nil

	default:
		return nil, fmt.Errorf("cmdflow: unknown target kind %d", t.Kind)
	}
}

// threadSelectPrelude returns the "-thread-select <local tid>" line that
// must precede the actual command text whenever t names a specific thread,
// matching the original router's send_to_thread/send_to_thread_ret
// (router.rs:213,230): the coordinator, not the caller, is responsible for
// selecting the thread on the backend before the command itself runs.
func (r *Router) threadSelectPrelude(t Target) (string, bool) {
	var gtid uint64
	switch t.Kind {
	case TargetThread:
		gtid = t.GTID
	case TargetCurrThread:
		g, ok := r.store.CurrentThread()
		if !ok {
			return "", false
		}
		gtid = g
	default:
		return "", false
	}
	local, ok := r.store.Threads.LocalByGTID(gtid)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("-thread-select %d", local.TID), true
}

// Send fans cmdText out to the sessions t resolves to, registering the
// expected-response count with the Tracker before any write is issued.
// A zero-session resolution (e.g. an empty SessionSet) force-completes the
// command immediately with no responses.
func (r *Router) Send(cmdText string, t Target, extToken *uint64, sink Sink) error {
	sids, err := r.resolve(t)
	if err != nil {
		return err
	}

	internalToken := r.store.IDs.Token.Next()

	if len(sids) == 0 {
		r.tracker.completeEmpty(internalToken, extToken, sink)
		return nil
	}

	r.tracker.AddCmd(internalToken, extToken, len(sids), sink)

	prelude, hasPrelude := r.threadSelectPrelude(t)

	for _, sid := range sids {
		w, ok := r.writer(sid)
		if !ok {
			r.tracker.noteOrphan(internalToken, sid)
			continue
		}
		line := fmt.Sprintf("%d%s", internalToken, cmdText)
		if hasPrelude {
			line = prelude + "\n" + line
		}
		if err := w.WriteLine(line); err != nil {
			r.tracker.noteOrphan(internalToken, sid)
		}
	}

	if t.Kind == TargetSession || t.Kind == TargetThread || t.Kind == TargetCurrSession || t.Kind == TargetCurrThread {
		if len(sids) == 1 {
			r.store.SetCurrentSession(sids[0])
		}
	}

	return nil
}

// Emit delivers a fully-formatted line through the router's EmitFunc, used
// by the Tracker when a command's Sink is SinkStdout.
func (r *Router) Emit(line string) {
	if r.emit != nil && line != "" {
		r.emit(line)
	}
}
