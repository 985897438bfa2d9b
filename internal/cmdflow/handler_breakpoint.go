package cmdflow

import "github.com/USC-NSL/DDB/internal/mi"

// HandleBreakInsert fans the breakpoint command out and, for every
// session whose individual reply reports success (message == "done"),
// records the command against that session's group (the binary's
// content-hash group in Store.Groups) so a
// later instance of the same program joining the group can replay it via
// ":sync-breakpoints" (spec.md §4.4). A failed per-session response is
// not recorded and not replayed to future joiners, but does not roll
// back the other sessions' successes.
func HandleBreakInsert(hc *HandlerContext, in ParsedInput) string {
	sids, err := hc.Router.resolve(in.Target)
	if err != nil {
		_ = hc.Router.Send(in.CmdText, in.Target, in.ExtToken, StdoutSink())
		return ""
	}

	sink, ch := ReturnSink()
	if err := hc.Router.Send(in.CmdText, SessionSet(sids), in.ExtToken, sink); err != nil {
		hc.Router.Emit(errorResult("break-insert: "+err.Error(), in.ExtToken))
		return ""
	}
	fin, ok := awaitWithDeadline(ch, hc.InterruptDeadline)
	if !ok {
		hc.Router.Emit(errorResult("break-insert: no reply from backend", in.ExtToken))
		return ""
	}

	for _, r := range fin.Responses {
		if r.Message != "done" {
			continue
		}
		if gid, ok := hc.Store.Groups.GroupIDOf(r.SID); ok {
			hc.Store.Bkpts.Record(gid, in.CmdText)
		}
	}

	ctx := &FormatContext{Store: hc.Store, Class: mi.RecordResult, Keyword: "done"}
	hc.Router.Emit(PlainFormatter{}.Format(fin, ctx))
	return ""
}

// HandleSyncBreakpoints replays every breakpoint recorded for a newly
// joined session's group, in no particular order, against
// that session alone — an internal (":"-prefixed) command issued by the
// supervisor's session-lifecycle logic rather than a user.
func HandleSyncBreakpoints(hc *HandlerContext, in ParsedInput) string {
	if in.Target.Kind != TargetSession {
		return ""
	}
	sid := in.Target.SID
	gid, ok := hc.Store.Groups.GroupIDOf(sid)
	if !ok {
		return ""
	}
	for _, cmd := range hc.Store.Bkpts.ForGroup(gid) {
		_ = hc.Router.Send(cmd, Session(sid), nil, DiscardSink())
	}
	return ""
}
