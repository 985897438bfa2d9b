package cmdflow

import (
	"fmt"
	"strconv"
	"time"

	"github.com/USC-NSL/DDB/internal/mi"
	"github.com/USC-NSL/DDB/internal/state"
)

// remoteBacktraceMeta is one hop's answer to "who called into this
// thread", extracted from the framework adapter's backtrace-metadata
// command reply (spec.md §4.6 step 2).
type remoteBacktraceMeta struct {
	Message   string
	CallerTag string
	CallerCtx map[string]uint64
	ProcletID string
}

// HandleBacktraceRemote implements the distributed, causal backtrace walk:
// fetch the target thread's local frames, ask the backend who called into
// it, resolve that caller's own session, borrow its registers for one
// more hop, and recurse into its own caller — aggregating every hop's
// frames into a single result and preserving whatever partial chain was
// already collected if any step fails or times out (spec.md §4.6).
func HandleBacktraceRemote(hc *HandlerContext, in ParsedInput) string {
	if in.Target.Kind != TargetThread {
		hc.Router.Emit(errorResult("distributed backtrace requires a thread target", in.ExtToken))
		return ""
	}
	if hc.RestoreMgr != nil {
		hc.RestoreMgr.ResetWalk()
	}

	var allFrames []mi.Value

	frames, meta, ok := hc.fetchFrameAndCallerMeta(in.Target.GTID)
	if !ok {
		hc.Router.Emit(errorResult("failed to fetch backtrace", in.ExtToken))
		return ""
	}
	allFrames = append(allFrames, frames...)

	for meta != nil && meta.Message == "success" {
		parent, ok := hc.Store.GetSessionByTag(meta.CallerTag)
		if !ok {
			break
		}

		inspectGTID, ok := firstGTID(hc.Store.Threads, parent.SID)
		if !ok {
			break
		}

		if !parent.InCustomCtx() {
			if !hc.switchParentContext(parent, inspectGTID, meta) {
				break
			}
		}

		frames, nextMeta, ok := hc.fetchFrameAndCallerMeta(inspectGTID)
		if !ok {
			break
		}
		allFrames = append(allFrames, frames...)
		meta = nextMeta
	}

	out := mi.NewDict()
	out.Set("stack", mi.List(allFrames))
	hc.Router.Emit(mi.Format(mi.RecordResult, "done", out, in.ExtToken))
	return ""
}

// firstGTID returns the lowest global thread id registered for sid, the
// Go-side equivalent of get_gtids_by_sid(sid).first().
func firstGTID(idx *state.ThreadIndex, sid uint64) (uint64, bool) {
	gtids := idx.GTIDsBySession(sid)
	if len(gtids) == 0 {
		return 0, false
	}
	best := gtids[0]
	for _, g := range gtids[1:] {
		if g < best {
			best = g
		}
	}
	return best, true
}

// fetchFrameAndCallerMeta performs one hop of the walk: fetch gtid's local
// stack frames (decorated with session/thread for provenance) and, in the
// same step, ask the backend for this thread's own caller metadata
// (spec.md §4.6 steps 1-2).
func (hc *HandlerContext) fetchFrameAndCallerMeta(gtid uint64) ([]mi.Value, *remoteBacktraceMeta, bool) {
	local, ok := hc.Store.Threads.LocalByGTID(gtid)
	if !ok {
		return nil, nil, false
	}

	btSink, btCh := ReturnSink()
	btCmd := fmt.Sprintf("-stack-list-frames --thread %d", local.TID)
	if err := hc.Router.Send(btCmd, Thread(gtid), nil, btSink); err != nil {
		return nil, nil, false
	}
	bt, ok := awaitWithDeadline(btCh, hc.InterruptDeadline)
	if !ok || len(bt.Responses) == 0 || bt.Responses[0].Payload == nil {
		return nil, nil, false
	}
	frames, _ := bt.Responses[0].Payload.GetList("stack")
	for _, f := range frames {
		if f.Kind == mi.KindDict && f.Dict != nil {
			f.Dict.Set("session", mi.String(strconv.FormatUint(local.SID, 10)))
			f.Dict.Set("thread", mi.String(strconv.FormatUint(gtid, 10)))
		}
	}

	adapter := AdapterFor(hc.Framework)
	metaSink, metaCh := ReturnSink()
	if err := hc.Router.Send(adapter.RemoteBacktraceCommand(), Thread(gtid), nil, metaSink); err != nil {
		return frames, nil, true
	}
	metaFin, ok := awaitWithDeadline(metaCh, hc.InterruptDeadline)
	if !ok || len(metaFin.Responses) == 0 || metaFin.Responses[0].Payload == nil {
		return frames, nil, true
	}
	return frames, extractRemoteMeta(adapter, metaFin.Responses[0].Payload), true
}

// extractRemoteMeta pulls message/caller_meta/caller_ctx out of a
// backtrace-metadata reply and reconstructs the caller's session tag via
// the framework adapter (spec.md §4.6 step 2).
func extractRemoteMeta(adapter FrameworkCommandAdapter, payload *mi.Dict) *remoteBacktraceMeta {
	msg, ok := payload.GetString("message")
	if !ok {
		return nil
	}
	meta := &remoteBacktraceMeta{Message: msg}
	if msg != "success" {
		return meta
	}
	metaDict, ok := payload.GetDict("metadata")
	if !ok {
		return meta
	}
	callerMeta, ok := metaDict.GetDict("caller_meta")
	if !ok {
		return meta
	}
	if callerCtxDict, ok := metaDict.GetDict("caller_ctx"); ok {
		meta.CallerCtx = dictToUint64Map(callerCtxDict)
	}
	ip, _ := callerMeta.GetString("ip")
	pidStr, _ := callerMeta.GetString("pid")
	pid, _ := strconv.ParseUint(pidStr, 10, 64)
	meta.CallerTag = adapter.CallerID(ip, pid)
	meta.ProcletID, _ = callerMeta.GetString("proclet_id")
	return meta
}

func dictToUint64Map(d *mi.Dict) map[string]uint64 {
	out := make(map[string]uint64, d.Len())
	for _, k := range d.Keys() {
		s, ok := d.GetString(k)
		if !ok {
			continue
		}
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			out[k] = v
		}
	}
	return out
}

// switchParentContext interrupts parent, waits for it to fully stop, and
// switches its inspected thread's registers to meta's caller_ctx,
// persisting the reply's old_ctx as the session's borrowed-context
// snapshot (never clearing it here — that's exec-continue's job, per I3
// and spec.md §4.6 step 5).
func (hc *HandlerContext) switchParentContext(parent *state.Session, inspectGTID uint64, meta *remoteBacktraceMeta) bool {
	if !hc.waitParentStopped(parent) {
		return false
	}

	switchSink, switchCh := ReturnSink()
	switchCmd := "-switch-context-custom " + mi.FormatContext(meta.CallerCtx)
	if err := hc.Router.Send(switchCmd, Thread(inspectGTID), nil, switchSink); err != nil {
		return false
	}
	switchFin, ok := awaitWithDeadline(switchCh, hc.InterruptDeadline)
	if !ok || len(switchFin.Responses) == 0 || switchFin.Responses[0].Payload == nil {
		return false
	}
	payload := switchFin.Responses[0].Payload
	if msg, _ := payload.GetString("message"); msg != "success" {
		hc.Router.Emit(errorResult(fmt.Sprintf("context switch failed for session %d, call stack may be corrupted", parent.SID), nil))
		return false
	}

	oldCtxDict, _ := payload.GetDict("old_ctx")
	oldCtx := &state.ThreadContext{TID: inspectGTID}
	if oldCtxDict != nil {
		oldCtx.Ctx = dictToUint64Map(oldCtxDict)
	}

	parent.Lock()
	parent.SetCustomCtx(oldCtx)
	parent.Unlock()

	hc.restoreProcletIfNeeded(meta.ProcletID, parent)
	return true
}

// restoreProcletIfNeeded asks the RestorationMgr to make procletID
// resident on parent's node before the caller dereferences the frame
// (spec.md §4.8, triggered by a proclet_id in the same hop's caller
// metadata). Restoration failures are logged via the stdout sink rather
// than aborting the walk.
func (hc *HandlerContext) restoreProcletIfNeeded(procletID string, parent *state.Session) {
	if hc.RestoreMgr == nil || procletID == "" {
		return
	}
	id, err := strconv.ParseUint(procletID, 10, 64)
	if err != nil {
		return
	}
	node := ""
	if parent.ServiceMeta != nil {
		node = parent.ServiceMeta.IP
	}
	if err := hc.RestoreMgr.Restore(id, node); err != nil {
		hc.Router.Emit(errorResult("proclet restoration failed: "+err.Error(), nil))
	}
}

// waitParentStopped busy-polls the parent session's thread table at
// hc.InterruptPoll granularity until every thread reports STOPPED or the
// configured interrupt deadline elapses (spec.md §4.6 step 4, §9 open
// question (d) makes the deadline configurable).
func (hc *HandlerContext) waitParentStopped(parent *state.Session) bool {
	_ = hc.Router.Send("-exec-interrupt", Session(parent.SID), nil, DiscardSink())

	deadline := time.Now().Add(hc.InterruptDeadline)
	poll := hc.InterruptPoll
	if poll <= 0 {
		poll = time.Millisecond
	}
	for {
		if parent.AllThreadsStopped() {
			return true
		}
		if time.Now().After(deadline) {
			return parent.AllThreadsStopped()
		}
		time.Sleep(poll)
	}
}

func awaitWithDeadline(ch chan *FinishedCmd, deadline time.Duration) (*FinishedCmd, bool) {
	if deadline <= 0 {
		deadline = time.Second
	}
	select {
	case fc := <-ch:
		return fc, fc != nil
	case <-time.After(deadline):
		return nil, false
	}
}

func errorResult(msg string, token *uint64) string {
	d := mi.NewDict()
	d.Set("msg", mi.String(msg))
	return mi.Format(mi.RecordResult, "error", d, token)
}
