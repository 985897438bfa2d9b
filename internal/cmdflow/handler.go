package cmdflow

import (
	"strings"
	"time"

	"github.com/USC-NSL/DDB/internal/proclet"
	"github.com/USC-NSL/DDB/internal/state"
)

// HandlerContext bundles everything a per-command Handler needs: the
// shared Store, the Router to fan commands back out through, the Tracker
// to correlate replies, the active Framework (selects the remote-backtrace
// adapter), the configurable interrupt-wait deadline used by the
// distributed backtrace algorithm (spec.md §9 open question (d)), and the
// proclet restoration manager a backtrace hop consults when a frame
// names a migrated object (spec.md §4.8). RestoreMgr may be nil when no
// proclet controller is configured, in which case restoration is
// silently skipped.
type HandlerContext struct {
	Store             *state.Store
	Router            *Router
	Tracker           *Tracker
	Framework         Framework
	InterruptDeadline time.Duration
	InterruptPoll     time.Duration
	RestoreMgr        *proclet.RestorationMgr
}

// Handler processes one parsed input line, issuing whatever Router.Send
// calls are needed and returning the line (if any) to report back to the
// caller synchronously — most handlers return "" and let the Tracker's
// stdout sink deliver the result asynchronously instead.
type Handler func(hc *HandlerContext, in ParsedInput) string

// Dispatch is the verb -> Handler routing table (spec.md §4.7's handler
// registry). Verbs not present fall back to DefaultHandler.
type Dispatch struct {
	handlers map[string]Handler
}

// NewDispatch constructs the registry with every handler this coordinator
// understands wired in.
func NewDispatch() *Dispatch {
	d := &Dispatch{handlers: make(map[string]Handler)}
	d.handlers["-break-insert"] = HandleBreakInsert
	d.handlers[":sync-breakpoints"] = HandleSyncBreakpoints
	d.handlers["-exec-continue"] = HandleExecContinue
	d.handlers["-exec-interrupt"] = HandleExecInterrupt
	d.handlers["-thread-info"] = HandleThreadInfo
	d.handlers["-list-thread-groups"] = HandleListThreadGroups
	d.handlers["-thread-select"] = HandleThreadSelect
	d.handlers["-exec-next"] = HandleExecStep
	d.handlers["-exec-step"] = HandleExecStep
	d.handlers["-exec-finish"] = HandleExecStep
	d.handlers["-file-list-lines"] = HandleFileListLines
	d.handlers["-exec-jump"] = HandleExecJump
	d.handlers["-bt-remote"] = HandleBacktraceRemote
	return d
}

// Route extracts the leading verb from cmdText and returns its Handler,
// or DefaultHandler if the verb is unregistered.
func (d *Dispatch) Route(cmdText string) Handler {
	verb := cmdText
	if i := strings.IndexByte(cmdText, ' '); i >= 0 {
		verb = cmdText[:i]
	}
	if h, ok := d.handlers[verb]; ok {
		return h
	}
	return DefaultHandler
}

// DefaultHandler fans the command out verbatim to its resolved target and
// lets the result print via the stdout sink — the behavior for every verb
// the coordinator has no special-cased semantics for.
func DefaultHandler(hc *HandlerContext, in ParsedInput) string {
	_ = hc.Router.Send(in.CmdText, in.Target, in.ExtToken, StdoutSink())
	return ""
}
