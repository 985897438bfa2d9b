package cmdflow

import "github.com/USC-NSL/DDB/internal/mi"

// ParsedSessionResponse is one backend session's contribution to an
// aggregated command result.
type ParsedSessionResponse struct {
	SID     uint64
	Message string
	Payload *mi.Dict
}

// FinishedCmd is the aggregated result of a fanned-out command once every
// expected response has landed (or the command was force-completed, e.g.
// a zero-target SessionSet or an orphaned command whose targets all
// disconnected).
type FinishedCmd struct {
	InternalToken uint64
	ExtToken      *uint64
	Responses     []ParsedSessionResponse
}

// SinkKind selects how a finished command's result is delivered.
type SinkKind int

const (
	// SinkStdout formats and emits the result asynchronously via the
	// router's configured EmitFunc.
	SinkStdout SinkKind = iota
	// SinkReturn resolves a channel with the finished command, for
	// callers awaiting completion (the "_ret" API family).
	SinkReturn
	// SinkDiscard drops the result after the tracker finishes counting.
	SinkDiscard
)

// Sink is the output destination for a finished command.
type Sink struct {
	Kind SinkKind
	Ret  chan *FinishedCmd // non-nil iff Kind == SinkReturn, buffered size 1
}

func StdoutSink() Sink { return Sink{Kind: SinkStdout} }

func ReturnSink() (Sink, chan *FinishedCmd) {
	ch := make(chan *FinishedCmd, 1)
	return Sink{Kind: SinkReturn, Ret: ch}, ch
}

func DiscardSink() Sink { return Sink{Kind: SinkDiscard} }
