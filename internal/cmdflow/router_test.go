package cmdflow

import (
	"strings"
	"testing"
	"time"

	"github.com/USC-NSL/DDB/internal/state"
)

type fakeWriter struct {
	lines []string
}

func (f *fakeWriter) WriteLine(line string) error {
	f.lines = append(f.lines, line)
	return nil
}

func leadingToken(t *testing.T, line string) uint64 {
	t.Helper()
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 {
		t.Fatalf("line %q has no leading token", line)
	}
	var n uint64
	for _, c := range line[:i] {
		n = n*10 + uint64(c-'0')
	}
	return n
}

func TestRouterSendSingleSessionReturnSink(t *testing.T) {
	store := state.NewStore()
	store.RegisterSession(1, "proc-a", nil)

	tracker := NewTracker(store, 2)
	router := NewRouter(store, tracker, func(string) {})
	tracker.Bind(router)

	w := &fakeWriter{}
	router.Attach(1, w)

	sink, ch := ReturnSink()
	if err := router.Send("-thread-info", Session(1), nil, sink); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(w.lines) != 1 {
		t.Fatalf("expected 1 write, got %d", len(w.lines))
	}
	token := leadingToken(t, w.lines[0])
	if !strings.Contains(w.lines[0], "-thread-info") {
		t.Fatalf("line %q missing command text", w.lines[0])
	}

	tracker.HandleBytes(1, []byte(leadingTokenStr(token)+"^done,threads=[]\n"))

	select {
	case fin := <-ch:
		if fin == nil || len(fin.Responses) != 1 {
			t.Fatalf("finished cmd = %+v", fin)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for finished cmd")
	}
}

func leadingTokenStr(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestRouterSendThreadTargetPrependsThreadSelect(t *testing.T) {
	store := state.NewStore()
	store.RegisterSession(1, "proc-a", nil)
	gtid := store.Threads.AllocateGTID(state.LocalThreadID{SID: 1, TID: 7})

	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, func(string) {})
	tracker.Bind(router)

	w := &fakeWriter{}
	router.Attach(1, w)

	if err := router.Send("-exec-next", Thread(gtid), nil, DiscardSink()); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(w.lines) != 1 {
		t.Fatalf("expected 1 write, got %d", len(w.lines))
	}
	lines := strings.Split(w.lines[0], "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a thread-select prelude line, got %q", w.lines[0])
	}
	if lines[0] != "-thread-select 7" {
		t.Fatalf("prelude = %q, want \"-thread-select 7\"", lines[0])
	}
	if !strings.Contains(lines[1], "-exec-next") {
		t.Fatalf("second line %q missing command text", lines[1])
	}
}

func TestRouterSendUnknownTargetErrors(t *testing.T) {
	store := state.NewStore()
	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, nil)
	tracker.Bind(router)

	if err := router.Send("-thread-info", CurrSession(), nil, DiscardSink()); err == nil {
		t.Fatal("expected error for unset current session")
	}
}

func TestRouterBroadcastZeroSessionsCompletesImmediately(t *testing.T) {
	store := state.NewStore()
	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, nil)
	tracker.Bind(router)

	sink, ch := ReturnSink()
	if err := router.Send("-thread-info", Broadcast(), nil, sink); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	select {
	case fin := <-ch:
		if fin == nil || len(fin.Responses) != 0 {
			t.Fatalf("expected empty finished cmd, got %+v", fin)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for immediate completion")
	}
}
