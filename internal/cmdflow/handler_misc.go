package cmdflow

import (
	"strconv"
	"strings"
)

// HandleThreadInfo broadcasts "-thread-info" to every live session and
// merges the per-backend thread lists into one globally-numbered listing
// via ThreadInfoFormatter.
func HandleThreadInfo(hc *HandlerContext, in ParsedInput) string {
	in.Target = Broadcast()
	return routeWithFormatter(hc, "-thread-info", in, ThreadInfoFormatter{})
}

// HandleListThreadGroups broadcasts "-list-thread-groups" and merges the
// results via ProcessInfoFormatter.
func HandleListThreadGroups(hc *HandlerContext, in ParsedInput) string {
	in.Target = Broadcast()
	return routeWithFormatter(hc, "-list-thread-groups", in, ProcessInfoFormatter{})
}

// HandleThreadSelect resolves the global thread id to its owning session
// and local tid, updates the coordinator-wide current thread/session
// pointers, and sends "-thread-select <local tid>" to that session alone,
// using the plain stdout path — there is no dedicated ThreadSelectFormatter;
// the backend's own "^done" reply is sufficient (DESIGN.md open question
// (j)). An id that does not resolve is forwarded unchanged to the parsed
// target.
func HandleThreadSelect(hc *HandlerContext, in ParsedInput) string {
	fields := strings.Fields(in.CmdText)
	if len(fields) >= 2 {
		if gtid, ok := parseUintSafe(fields[1]); ok {
			if local, ok := hc.Store.Threads.LocalByGTID(gtid); ok {
				hc.Store.SetCurrentThread(gtid)
				hc.Store.SetCurrentSession(local.SID)
				cmd := "-thread-select " + strconv.FormatUint(local.TID, 10)
				_ = hc.Router.Send(cmd, Session(local.SID), in.ExtToken, StdoutSink())
				return ""
			}
		}
	}
	_ = hc.Router.Send(in.CmdText, in.Target, in.ExtToken, StdoutSink())
	return ""
}

// HandleExecStep covers -exec-next/-exec-step/-exec-finish: only the verb
// is forwarded; every suffix argument (count, reverse flag, "--thread
// <tid>") is discarded rather than rejected (spec.md §9 open question
// resolutions). For a thread target the router's "-thread-select" prelude
// picks the thread.
func HandleExecStep(hc *HandlerContext, in ParsedInput) string {
	verb := in.CmdText
	if i := strings.IndexByte(verb, ' '); i >= 0 {
		verb = verb[:i]
	}
	_ = hc.Router.Send(verb, in.Target, in.ExtToken, StdoutSink())
	return ""
}

// HandleFileListLines answers "-file-list-lines" using a fixed
// placeholder session — historically session 1, but now the lowest live
// session id, preserved verbatim per DESIGN.md open question (b) — since
// source line contents are identical across every instance of the same
// binary.
func HandleFileListLines(hc *HandlerContext, in ParsedInput) string {
	sid, ok := hc.Store.LowestSessionID()
	if !ok {
		hc.Router.Emit(errorResult("no live session to answer -file-list-lines", in.ExtToken))
		return ""
	}
	_ = hc.Router.Send(in.CmdText, Session(sid), in.ExtToken, StdoutSink())
	return ""
}

// HandleExecJump forwards "-exec-jump" to its resolved target; jumping
// execution has no distributed semantics beyond ordinary fan-out.
func HandleExecJump(hc *HandlerContext, in ParsedInput) string {
	_ = hc.Router.Send(in.CmdText, in.Target, in.ExtToken, StdoutSink())
	return ""
}

func routeWithFormatter(hc *HandlerContext, cmdText string, in ParsedInput, f Formatter) string {
	sink, ch := ReturnSink()
	if err := hc.Router.Send(cmdText, in.Target, in.ExtToken, sink); err != nil {
		hc.Router.Emit(errorResult(err.Error(), in.ExtToken))
		return ""
	}
	fin := <-ch
	ctx := &FormatContext{Store: hc.Store, Keyword: cmdText}
	hc.Router.Emit(f.Format(fin, ctx))
	return ""
}

func parseUintSafe(s string) (uint64, bool) {
	var n uint64
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	return n, true
}
