package cmdflow

import (
	"strings"
	"testing"

	"github.com/USC-NSL/DDB/internal/mi"
	"github.com/USC-NSL/DDB/internal/state"
)

func TestPlainFormatterEmitsFirstResponse(t *testing.T) {
	store := state.NewStore()
	ctx := &FormatContext{Store: store, Class: mi.RecordResult, Keyword: "done"}
	d := mi.NewDict()
	d.Set("value", mi.String("42"))
	fc := &FinishedCmd{Responses: []ParsedSessionResponse{{SID: 1, Message: "done", Payload: d}}}

	got := PlainFormatter{}.Format(fc, ctx)
	if !strings.Contains(got, "^done") || !strings.Contains(got, `value="42"`) {
		t.Fatalf("got %q", got)
	}
}

func TestNullFormatterAlwaysEmpty(t *testing.T) {
	if got := (NullFormatter{}).Format(nil, nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestThreadGroupNotifFormatterTranslatesGroupID(t *testing.T) {
	store := state.NewStore()
	gtgid := store.Threads.AllocateGTGID(state.LocalThreadGroupID{SID: 1, TGID: "i1"})

	d := mi.NewDict()
	d.Set("id", mi.String("i1"))
	d.Set("pid", mi.String("1234"))
	fc := &FinishedCmd{Responses: []ParsedSessionResponse{{SID: 1, Message: "thread-group-started", Payload: d}}}
	ctx := &FormatContext{Store: store, Class: mi.RecordNotify, Keyword: "thread-group-started"}

	got := ThreadGroupNotifFormatter{}.Format(fc, ctx)
	want := state.FormatGroupID(gtgid)
	if !strings.Contains(got, want) {
		t.Fatalf("got %q, want it to contain global group id %q", got, want)
	}
}
