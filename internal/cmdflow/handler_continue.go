package cmdflow

import (
	"fmt"
	"sync"

	"github.com/USC-NSL/DDB/internal/mi"
)

// HandleExecContinue restores any caller context a session is currently
// borrowing (from a prior distributed backtrace hop) before issuing
// "-exec-continue", matching the original's rule that a session must
// never resume execution while still standing in on behalf of a caller's
// saved registers (spec.md §4.5). Each resolved session is handled
// independently and concurrently; a restore failure on one session only
// reports an error for that session and leaves its borrowed context in
// place rather than blocking the others.
func HandleExecContinue(hc *HandlerContext, in ParsedInput) string {
	sids, err := hc.Router.resolve(in.Target)
	if err != nil {
		_ = hc.Router.Send(in.CmdText, in.Target, in.ExtToken, StdoutSink())
		return ""
	}

	var wg sync.WaitGroup
	for _, sid := range sids {
		wg.Add(1)
		go func(sid uint64) {
			defer wg.Done()
			hc.continueSession(sid, in.CmdText, in.ExtToken)
		}(sid)
	}
	wg.Wait()
	return ""
}

// continueSession restores sid's borrowed context, if any, and only on a
// successful restore (message == "success") clears it and issues the
// continue command — the "no continue is written until the preceding
// context-restore has completed" ordering guarantee (spec.md §4.5 step 3).
func (hc *HandlerContext) continueSession(sid uint64, cmdText string, extToken *uint64) {
	sess, ok := hc.Store.GetSession(sid)
	if !ok {
		return
	}

	if sess.InCustomCtx() {
		ctx := sess.CurrCtx()
		if ctx == nil {
			return
		}

		switchSink, switchCh := ReturnSink()
		switchCmd := "-switch-context-custom " + mi.FormatContext(ctx.Ctx)
		if err := hc.Router.Send(switchCmd, Thread(ctx.TID), nil, switchSink); err != nil {
			hc.Router.Emit(errorResult(fmt.Sprintf("failed to restore context for session %d", sid), extToken))
			return
		}
		fin, ok := awaitWithDeadline(switchCh, hc.InterruptDeadline)
		if !ok || len(fin.Responses) == 0 || fin.Responses[0].Payload == nil {
			hc.Router.Emit(errorResult(fmt.Sprintf("failed to restore context for session %d", sid), extToken))
			return
		}
		if msg, _ := fin.Responses[0].Payload.GetString("message"); msg != "success" {
			// context still borrowed; don't continue, surface the error
			// and leave in_custom_ctx set so a later attempt can retry.
			hc.Router.Emit(errorResult(fmt.Sprintf("failed to restore context for session %d", sid), extToken))
			return
		}

		sess.Lock()
		sess.ClearCustomCtx()
		sess.Unlock()
	}

	_ = hc.Router.Send(cmdText, Session(sid), extToken, StdoutSink())
}

// HandleExecInterrupt issues "-exec-interrupt" against the resolved
// target. It changes no thread status itself; the Tracker's "stopped"
// notify rule updates status once the backend confirms the stop.
func HandleExecInterrupt(hc *HandlerContext, in ParsedInput) string {
	_ = hc.Router.Send(in.CmdText, in.Target, in.ExtToken, StdoutSink())
	return ""
}
