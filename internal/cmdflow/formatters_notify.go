package cmdflow

import (
	"fmt"
	"strconv"

	"github.com/USC-NSL/DDB/internal/mi"
	"github.com/USC-NSL/DDB/internal/state"
)

// notifyResponse pulls the single response a notify-driven formatter
// expects a finished command to carry; notify records are never fanned
// out to more than one session, so the tracker always builds these
// FinishedCmds with exactly one ParsedSessionResponse.
func notifyResponse(fc *FinishedCmd) (ParsedSessionResponse, bool) {
	if fc == nil || len(fc.Responses) == 0 {
		return ParsedSessionResponse{}, false
	}
	return fc.Responses[0], true
}

// ThreadGroupNotifFormatter renders thread-group-added/started/exited/
// removed notifications, rewriting the backend's local group-id into the
// coordinator's "iN" global group id.
type ThreadGroupNotifFormatter struct{}

func (ThreadGroupNotifFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	r, ok := notifyResponse(fc)
	if !ok {
		return ""
	}
	d := mi.NewDict()
	if r.Payload != nil {
		if gid, ok := r.Payload.GetString("id"); ok {
			if gtgid, ok := ctx.Store.Threads.GTGID(state.LocalThreadGroupID{SID: r.SID, TGID: gid}); ok {
				d.Set("id", mi.String(state.FormatGroupID(gtgid)))
			}
		}
		if pid, ok := r.Payload.GetString("pid"); ok {
			d.Set("pid", mi.String(pid))
		}
		if code, ok := r.Payload.GetString("exit-code"); ok {
			d.Set("exit-code", mi.String(code))
		}
	}
	return mi.Format(mi.RecordNotify, ctx.Keyword, d, fc.extToken())
}

// ThreadCreatedNotifFormatter renders thread-created notifications with
// the thread id and group id translated to their global forms (group-id
// as "iN"), plus the originating session-id; see DESIGN.md (i).
type ThreadCreatedNotifFormatter struct{}

func (ThreadCreatedNotifFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	r, ok := notifyResponse(fc)
	if !ok {
		return ""
	}
	d := mi.NewDict()
	if r.Payload != nil {
		if tid, ok := r.Payload.GetString("id"); ok {
			if n, err := strconv.ParseUint(tid, 10, 64); err == nil {
				if gtid, ok := ctx.Store.Threads.GTID(state.LocalThreadID{SID: r.SID, TID: n}); ok {
					d.Set("id", mi.String(strconv.FormatUint(gtid, 10)))
				}
			}
		}
		if gid, ok := r.Payload.GetString("group-id"); ok {
			if gtgid, ok := ctx.Store.Threads.GTGID(state.LocalThreadGroupID{SID: r.SID, TGID: gid}); ok {
				d.Set("group-id", mi.String(state.FormatGroupID(gtgid)))
			}
		}
	}
	d.Set("session-id", mi.String(strconv.FormatUint(r.SID, 10)))
	return mi.Format(mi.RecordNotify, ctx.Keyword, d, fc.extToken())
}

// ThreadExitedNotifFormatter renders thread-exited notifications with the
// exiting thread's id translated to its global form.
type ThreadExitedNotifFormatter struct{}

func (ThreadExitedNotifFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	r, ok := notifyResponse(fc)
	if !ok {
		return ""
	}
	d := mi.NewDict()
	if r.Payload != nil {
		if tid, ok := r.Payload.GetString("id"); ok {
			if n, err := strconv.ParseUint(tid, 10, 64); err == nil {
				if gtid, ok := ctx.Store.Threads.GTID(state.LocalThreadID{SID: r.SID, TID: n}); ok {
					d.Set("id", mi.String(strconv.FormatUint(gtid, 10)))
				}
			}
		}
		if gid, ok := r.Payload.GetString("group-id"); ok {
			if gtgid, ok := ctx.Store.Threads.GTGID(state.LocalThreadGroupID{SID: r.SID, TGID: gid}); ok {
				d.Set("group-id", mi.String(state.FormatGroupID(gtgid)))
			}
		}
	}
	return mi.Format(mi.RecordNotify, ctx.Keyword, d, fc.extToken())
}

// RunningAsyncRecordFormatter renders "*running" exec-async records,
// substituting the translated global thread id.
type RunningAsyncRecordFormatter struct{}

func (RunningAsyncRecordFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	r, ok := notifyResponse(fc)
	if !ok {
		return ""
	}
	d := mi.NewDict()
	gtidStr := "all"
	if r.Payload != nil {
		if tid, ok := r.Payload.GetString("thread-id"); ok && tid != "all" {
			if n, err := strconv.ParseUint(tid, 10, 64); err == nil {
				if gtid, ok := ctx.Store.Threads.GTID(state.LocalThreadID{SID: r.SID, TID: n}); ok {
					gtidStr = strconv.FormatUint(gtid, 10)
				}
			}
		}
	}
	d.Set("thread-id", mi.String(gtidStr))
	return mi.Format(mi.RecordExec, ctx.Keyword, d, fc.extToken())
}

// StopAsyncRecordFormatter renders "*stopped" records for the common
// breakpoint-hit reason, translating thread-id into its global id and
// copying every other field (stopped-threads, frame, registers) unchanged.
type StopAsyncRecordFormatter struct{}

func (StopAsyncRecordFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	r, ok := notifyResponse(fc)
	if !ok {
		return ""
	}
	d := translateStopPayload(r, ctx)
	return mi.Format(mi.RecordExec, ctx.Keyword, d, fc.extToken())
}

// GenericStopAsyncRecordFormatter handles every other stop reason
// (exited-normally, signal-received, exited, ...), which carry no
// per-thread breakpoint fields but still need thread-id translation.
type GenericStopAsyncRecordFormatter struct{}

func (GenericStopAsyncRecordFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	r, ok := notifyResponse(fc)
	if !ok {
		return ""
	}
	d := translateStopPayload(r, ctx)
	return mi.Format(mi.RecordExec, ctx.Keyword, d, fc.extToken())
}

func translateStopPayload(r ParsedSessionResponse, ctx *FormatContext) *mi.Dict {
	d := mi.NewDict()
	if r.Payload == nil {
		return d
	}
	var gtid uint64
	translate := false
	if tid, ok := r.Payload.GetString("thread-id"); ok {
		if n, err := strconv.ParseUint(tid, 10, 64); err == nil {
			if g, ok := ctx.Store.Threads.GTID(state.LocalThreadID{SID: r.SID, TID: n}); ok {
				gtid, translate = g, true
			}
		}
	}
	for _, k := range r.Payload.Keys() {
		if k == "thread-id" && translate {
			d.Set(k, mi.String(fmt.Sprintf("%d", gtid)))
			continue
		}
		d.SetRaw(k, r.Payload.Raw(k))
	}
	return d
}
