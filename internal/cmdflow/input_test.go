package cmdflow

import (
	"testing"

	"github.com/USC-NSL/DDB/internal/state"
)

func TestInputCmdParserQualifiers(t *testing.T) {
	store := state.NewStore()
	p := NewInputCmdParser(store)

	cases := []struct {
		line     string
		wantKind TargetKind
		wantCmd  string
	}{
		{"5-break-insert main", TargetBroadcast, "-break-insert main"},
		{"-break-insert main --all", TargetBroadcast, "-break-insert main"},
		{"-exec-next --thread 7", TargetThread, "-exec-next --thread 7"},
		{"42-exec-interrupt --session 1", TargetSession, "-exec-interrupt"},
	}
	for _, c := range cases {
		got := p.Parse(c.line)
		if got.Target.Kind != c.wantKind {
			t.Errorf("Parse(%q).Target.Kind = %v, want %v", c.line, got.Target.Kind, c.wantKind)
		}
		if got.CmdText != c.wantCmd {
			t.Errorf("Parse(%q).CmdText = %q, want %q", c.line, got.CmdText, c.wantCmd)
		}
	}
}

func TestInputCmdParserExternalToken(t *testing.T) {
	store := state.NewStore()
	p := NewInputCmdParser(store)
	got := p.Parse("42-break-insert main")
	if got.ExtToken == nil || *got.ExtToken != 42 {
		t.Fatalf("ExtToken = %v, want 42", got.ExtToken)
	}
}

func TestInputCmdParserInternalCommand(t *testing.T) {
	store := state.NewStore()
	p := NewInputCmdParser(store)
	got := p.Parse(":sync-breakpoints")
	if !got.Internal || got.CmdText != "sync-breakpoints" {
		t.Fatalf("got %+v, want internal sync-breakpoints", got)
	}
}

func TestInputCmdParserDefaultsToCurrentThread(t *testing.T) {
	store := state.NewStore()
	store.SetCurrentThread(9)
	p := NewInputCmdParser(store)
	got := p.Parse("-exec-continue")
	if got.Target.Kind != TargetThread || got.Target.GTID != 9 {
		t.Fatalf("Target = %+v, want Thread(9)", got.Target)
	}
}
