package cmdflow

import (
	"github.com/USC-NSL/DDB/internal/mi"
	"github.com/USC-NSL/DDB/internal/state"
)

// FormatContext supplies a formatter with the id-translation facilities
// and the record metadata needed to render a FinishedCmd. spec.md §9
// allows either a closed set of tagged variants or a two-method
// transform/format object; this implementation uses a single-method
// interface (the Go equivalent of emit_static's static dispatch) since Go
// closures already give each concrete Formatter static, allocation-free
// dispatch without an associated-type dance.
type FormatContext struct {
	Store   *state.Store
	Class   mi.RecordClass
	Keyword string
}

// Formatter renders a FinishedCmd into the backend's wire text.
type Formatter interface {
	Format(fc *FinishedCmd, ctx *FormatContext) string
}

// NullFormatter discards the result entirely, for a handler that only
// needs router-level side effects.
type NullFormatter struct{}

func (NullFormatter) Format(*FinishedCmd, *FormatContext) string { return "" }

// PlainFormatter emits only the first response verbatim (multi-response
// commands collapse to their first session's outcome), matching the
// original's PlainFormatter.
type PlainFormatter struct{}

func (PlainFormatter) Format(fc *FinishedCmd, ctx *FormatContext) string {
	if fc == nil || len(fc.Responses) == 0 {
		return mi.Format(ctx.Class, ctx.Keyword, nil, fc.extToken())
	}
	r := fc.Responses[0]
	return mi.Format(ctx.Class, r.Message, r.Payload, fc.extToken())
}

func (fc *FinishedCmd) extToken() *uint64 {
	if fc == nil {
		return nil
	}
	return fc.ExtToken
}
