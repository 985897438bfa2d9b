package cmdflow

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/USC-NSL/DDB/internal/metrics"
	"github.com/USC-NSL/DDB/internal/mi"
	"github.com/USC-NSL/DDB/internal/state"
)

// inflightCmd is one outstanding fanned-out command: how many Result
// records are still owed, what's arrived so far, and where to deliver the
// aggregate once the count reaches zero.
type inflightCmd struct {
	extToken *uint64
	expected int
	got      []ParsedSessionResponse
	sink     Sink
}

// notifyRule maps a notify record's keyword to the formatter that renders
// it and the state-transition it drives against the originating session
// (spec.md §4.9's notify-driven state-machine table).
type notifyRule struct {
	formatter Formatter
	apply     func(sess *state.Session, idx *state.ThreadIndex, sid uint64, payload *mi.Dict)
}

// Tracker reassembles backend replies into FinishedCmds. Incoming byte
// streams are processed on one of W worker goroutines, sharded by session
// id — NOT by command token, so that two replies from the same session
// are always handled in arrival order while independent sessions process
// concurrently (spec.md §4.4).
type Tracker struct {
	store *state.Store
	router *Router

	mu       sync.Mutex
	inflight map[uint64]*inflightCmd

	shards []chan shardJob

	rules map[string]notifyRule

	metrics *metrics.Metrics
}

type shardJob struct {
	sid   uint64
	bytes []byte
}

const defaultShardCount = 8

// NewTracker constructs a Tracker with the given number of backend-stream
// worker shards (0 selects the default).
func NewTracker(store *state.Store, shardCount int) *Tracker {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	t := &Tracker{
		store:    store,
		inflight: make(map[uint64]*inflightCmd),
		shards:   make([]chan shardJob, shardCount),
	}
	t.rules = t.buildNotifyRules()
	for i := range t.shards {
		t.shards[i] = make(chan shardJob, 256)
		go t.runShard(t.shards[i])
	}
	return t
}

// Bind attaches the Router the tracker should hand finished stdout-sink
// commands off to for emission. Routers and Trackers reference each other,
// so this is set post-construction by the supervisor's wiring step.
func (t *Tracker) Bind(r *Router) { t.router = r }

// BindMetrics attaches the Prometheus instrumentation. Metrics are a
// pure observability concern, so a nil *metrics.Metrics (the default
// until BindMetrics is called) silently disables recording instead of
// requiring every call site to branch on it twice.
func (t *Tracker) BindMetrics(m *metrics.Metrics) { t.metrics = m }

func (t *Tracker) incInFlight() {
	if t.metrics != nil {
		t.metrics.InFlightCommands.Add(context.Background(), 1)
	}
}

func (t *Tracker) decInFlight() {
	if t.metrics != nil {
		t.metrics.InFlightCommands.Add(context.Background(), -1)
	}
}

// AddCmd registers a fanned-out command's expected reply count before the
// router issues any write, so a reply racing the registration is never
// lost. A zero expected count completes the command immediately with no
// responses (DESIGN.md open question (f)).
func (t *Tracker) AddCmd(internalToken uint64, extToken *uint64, expected int, sink Sink) {
	if expected <= 0 {
		t.completeEmpty(internalToken, extToken, sink)
		return
	}
	t.mu.Lock()
	t.inflight[internalToken] = &inflightCmd{extToken: extToken, expected: expected, sink: sink}
	t.mu.Unlock()
	t.incInFlight()
}

func (t *Tracker) completeEmpty(internalToken uint64, extToken *uint64, sink Sink) {
	t.deliver(&FinishedCmd{InternalToken: internalToken, ExtToken: extToken}, sink)
}

// noteOrphan decrements an inflight command's expected count when a
// session the command targeted could not be written to (transport gone),
// so the command still completes once its remaining replies land.
func (t *Tracker) noteOrphan(internalToken uint64, sid uint64) {
	t.mu.Lock()
	cmd, ok := t.inflight[internalToken]
	if !ok {
		t.mu.Unlock()
		return
	}
	cmd.expected--
	done := cmd.expected <= 0
	var fin *FinishedCmd
	var sink Sink
	if done {
		fin = &FinishedCmd{InternalToken: internalToken, ExtToken: cmd.extToken, Responses: cmd.got}
		sink = cmd.sink
		delete(t.inflight, internalToken)
	}
	t.mu.Unlock()
	if done {
		t.decInFlight()
		t.deliver(fin, sink)
	}
}

// HandleBytes queues a chunk of backend output for processing on the
// shard owning sid.
func (t *Tracker) HandleBytes(sid uint64, data []byte) {
	idx := int(sid % uint64(len(t.shards)))
	if t.metrics != nil {
		t.metrics.TrackerQueueDepth.Add(context.Background(), 1)
	}
	t.shards[idx] <- shardJob{sid: sid, bytes: data}
}

func (t *Tracker) runShard(jobs chan shardJob) {
	for job := range jobs {
		if t.metrics != nil {
			t.metrics.TrackerQueueDepth.Add(context.Background(), -1)
		}
		out := string(job.bytes)
		msgs := mi.ParseMultiple(out, func(line string, err error) {
			// malformed line from a single session must never wedge the
			// whole shard; drop and continue (spec.md §7).
			_ = line
			_ = err
		})
		for _, m := range msgs {
			t.handleMessage(job.sid, m)
		}
	}
}

func (t *Tracker) handleMessage(sid uint64, m mi.Message) {
	switch m.Class {
	case mi.RecordResult:
		t.handleResult(sid, m)
	case mi.RecordNotify:
		t.handleNotify(sid, m)
	case mi.RecordExec:
		t.handleExec(sid, m)
	default:
		// stream records carry no structured state change; dropped.
	}
}

func (t *Tracker) handleResult(sid uint64, m mi.Message) {
	if m.Token == nil {
		return
	}
	token := *m.Token

	t.mu.Lock()
	cmd, ok := t.inflight[token]
	if !ok {
		t.mu.Unlock()
		return
	}
	cmd.got = append(cmd.got, ParsedSessionResponse{SID: sid, Message: m.Text, Payload: m.Payload})
	cmd.expected--
	var fin *FinishedCmd
	var sink Sink
	done := cmd.expected <= 0
	if done {
		fin = &FinishedCmd{InternalToken: token, ExtToken: cmd.extToken, Responses: cmd.got}
		sink = cmd.sink
		delete(t.inflight, token)
	}
	t.mu.Unlock()

	if done {
		t.decInFlight()
		t.deliver(fin, sink)
	}
}

func (t *Tracker) handleExec(sid uint64, m mi.Message) {
	sess, ok := t.store.GetSession(sid)
	if !ok {
		return
	}
	rule, ok := t.rules[m.Text]
	if !ok {
		t.emitNotifyLike(sid, mi.RecordExec, m.Text, m.Payload, PlainFormatter{})
		return
	}
	if rule.apply != nil {
		rule.apply(sess, t.store.Threads, sid, m.Payload)
	}

	f := rule.formatter
	if m.Text == "stopped" {
		f = GenericStopAsyncRecordFormatter{}
		if m.Payload != nil {
			if reason, ok := m.Payload.GetString("reason"); ok && reason == "breakpoint-hit" {
				f = StopAsyncRecordFormatter{}
			}
		}
	}
	t.emitNotifyLike(sid, mi.RecordExec, m.Text, m.Payload, f)
}

func (t *Tracker) handleNotify(sid uint64, m mi.Message) {
	sess, ok := t.store.GetSession(sid)
	if !ok {
		return
	}
	rule, ok := t.rules[m.Text]
	if !ok {
		t.emitNotifyLike(sid, mi.RecordNotify, m.Text, m.Payload, PlainFormatter{})
		return
	}
	if rule.apply != nil {
		rule.apply(sess, t.store.Threads, sid, m.Payload)
	}
	t.emitNotifyLike(sid, mi.RecordNotify, m.Text, m.Payload, rule.formatter)
}

// emitNotifyLike formats and emits a notify/exec record directly through
// the stdout sink, bypassing the inflight table entirely — these records
// are never correlated to a caller-issued command.
func (t *Tracker) emitNotifyLike(sid uint64, class mi.RecordClass, keyword string, payload *mi.Dict, f Formatter) {
	if t.router == nil {
		return
	}
	fc := &FinishedCmd{Responses: []ParsedSessionResponse{{SID: sid, Message: keyword, Payload: payload}}}
	ctx := &FormatContext{Store: t.store, Class: class, Keyword: keyword}
	t.router.Emit(f.Format(fc, ctx))
}

func (t *Tracker) deliver(fc *FinishedCmd, sink Sink) {
	switch sink.Kind {
	case SinkReturn:
		select {
		case sink.Ret <- fc:
		default:
		}
	case SinkStdout:
		if t.router == nil {
			return
		}
		f := PlainFormatter{}
		ctx := &FormatContext{Store: t.store, Class: mi.RecordResult, Keyword: "done"}
		t.router.Emit(f.Format(fc, ctx))
	case SinkDiscard:
		// nothing to do.
	}
}

// buildNotifyRules constructs the keyword -> {formatter, state transition}
// table driving every notify record the tracker understands (spec.md
// §4.9).
func (t *Tracker) buildNotifyRules() map[string]notifyRule {
	parseTID := func(d *mi.Dict, key string) (uint64, bool) {
		if d == nil {
			return 0, false
		}
		s, ok := d.GetString(key)
		if !ok {
			return 0, false
		}
		n, err := strconv.ParseUint(s, 10, 64)
		return n, err == nil
	}

	return map[string]notifyRule{
		"thread-group-added": {
			formatter: ThreadGroupNotifFormatter{},
			apply: func(sess *state.Session, idx *state.ThreadIndex, sid uint64, d *mi.Dict) {
				tgid, ok := d.GetString("id")
				if !ok {
					return
				}
				sess.AddThreadGroup(tgid)
				idx.AllocateGTGID(state.LocalThreadGroupID{SID: sid, TGID: tgid})
			},
		},
		"thread-group-started": {
			formatter: ThreadGroupNotifFormatter{},
			apply: func(sess *state.Session, _ *state.ThreadIndex, sid uint64, d *mi.Dict) {
				tgid, ok := d.GetString("id")
				if !ok {
					return
				}
				pid, _ := parseTID(d, "pid")
				sess.StartThreadGroup(tgid, pid)
			},
		},
		"thread-group-exited": {
			formatter: ThreadGroupNotifFormatter{},
			apply: func(sess *state.Session, _ *state.ThreadIndex, sid uint64, d *mi.Dict) {
				tgid, ok := d.GetString("id")
				if !ok {
					return
				}
				sess.ExitThreadGroup(tgid)
			},
		},
		"thread-group-removed": {
			formatter: ThreadGroupNotifFormatter{},
			apply: func(sess *state.Session, idx *state.ThreadIndex, sid uint64, d *mi.Dict) {
				tgid, ok := d.GetString("id")
				if !ok {
					return
				}
				tids := sess.RemoveThreadGroup(tgid)
				idx.RemoveThreadGroup(state.LocalThreadGroupID{SID: sid, TGID: tgid}, tids)
			},
		},
		"thread-created": {
			formatter: ThreadCreatedNotifFormatter{},
			apply: func(sess *state.Session, idx *state.ThreadIndex, sid uint64, d *mi.Dict) {
				tid, ok := parseTID(d, "id")
				if !ok {
					return
				}
				tgid, _ := d.GetString("group-id")
				sess.CreateThread(tid, tgid)
				idx.AllocateGTID(state.LocalThreadID{SID: sid, TID: tid})
				if tgid != "" {
					idx.AllocateGTGID(state.LocalThreadGroupID{SID: sid, TGID: tgid})
				}
			},
		},
		"thread-exited": {
			formatter: ThreadExitedNotifFormatter{},
			apply: func(sess *state.Session, idx *state.ThreadIndex, sid uint64, d *mi.Dict) {
				tid, ok := parseTID(d, "id")
				if !ok {
					return
				}
				sess.RemoveThread(tid)
				idx.RemoveThread(state.LocalThreadID{SID: sid, TID: tid})
			},
		},
		"running": {
			formatter: RunningAsyncRecordFormatter{},
			apply: func(sess *state.Session, _ *state.ThreadIndex, sid uint64, d *mi.Dict) {
				if tid, ok := parseTID(d, "thread-id"); ok {
					sess.UpdateThreadStatus(tid, state.ThreadRunning)
					return
				}
				sess.UpdateAllThreadStatus(state.ThreadRunning)
			},
		},
		"stopped": {
			formatter: StopAsyncRecordFormatter{},
			apply: func(sess *state.Session, idx *state.ThreadIndex, sid uint64, d *mi.Dict) {
				var tid uint64
				var hasTID bool
				if tid, hasTID = parseTID(d, "thread-id"); hasTID {
					sess.UpdateThreadStatus(tid, state.ThreadStopped)
				} else {
					sess.UpdateAllThreadStatus(state.ThreadStopped)
				}

				reason, _ := d.GetString("reason")
				switch {
				case strings.Contains(reason, "exit"):
					t.store.RemoveSession(sid)
				case reason == "breakpoint-hit" && hasTID:
					if gtid, ok := idx.GTID(state.LocalThreadID{SID: sid, TID: tid}); ok {
						t.store.SetCurrentThread(gtid)
					}
				}
			},
		},
	}
}
