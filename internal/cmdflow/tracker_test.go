package cmdflow

import (
	"sync"
	"testing"
	"time"

	"github.com/USC-NSL/DDB/internal/state"
)

func TestTrackerThreadCreatedUpdatesStateAndEmits(t *testing.T) {
	store := state.NewStore()
	sess := store.RegisterSession(1, "proc-a", nil)
	sess.AddThreadGroup("i1")

	tracker := NewTracker(store, 1)
	var mu sync.Mutex
	var emitted []string
	router := NewRouter(store, tracker, func(line string) {
		mu.Lock()
		emitted = append(emitted, line)
		mu.Unlock()
	})
	tracker.Bind(router)

	tracker.HandleBytes(1, []byte(`=thread-created,id="5",group-id="i1"`+"\n"))
	time.Sleep(50 * time.Millisecond)

	if _, ok := store.Threads.GTID(state.LocalThreadID{SID: 1, TID: 5}); !ok {
		t.Fatal("expected thread 5 allocated a global id")
	}
	if _, ok := store.Threads.GTGID(state.LocalThreadGroupID{SID: 1, TGID: "i1"}); !ok {
		t.Fatal("expected thread-created to also allocate the group a global id")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(emitted) != 1 {
		t.Fatalf("expected 1 emitted line, got %d: %v", len(emitted), emitted)
	}
}

func TestTrackerThreadGroupAddedAllocatesGTGID(t *testing.T) {
	store := state.NewStore()
	store.RegisterSession(1, "proc-a", nil)

	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, func(string) {})
	tracker.Bind(router)

	tracker.HandleBytes(1, []byte(`=thread-group-added,id="i1"`+"\n"))
	time.Sleep(50 * time.Millisecond)

	if _, ok := store.Threads.GTGID(state.LocalThreadGroupID{SID: 1, TGID: "i1"}); !ok {
		t.Fatal("expected thread-group-added to allocate the group a global id")
	}
}

func TestTrackerStoppedExitRemovesSession(t *testing.T) {
	store := state.NewStore()
	store.RegisterSession(1, "proc-a", nil)

	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, func(string) {})
	tracker.Bind(router)

	tracker.HandleBytes(1, []byte(`*stopped,reason="exited-normally"`+"\n"))
	time.Sleep(50 * time.Millisecond)

	if _, ok := store.GetSession(1); ok {
		t.Fatal("expected session 1 to be removed on an exit-reasoned stop")
	}
}

func TestTrackerStoppedBreakpointHitSetsCurrentThread(t *testing.T) {
	store := state.NewStore()
	sess := store.RegisterSession(1, "proc-a", nil)
	sess.CreateThread(3, "i1")
	gtid := store.Threads.AllocateGTID(state.LocalThreadID{SID: 1, TID: 3})

	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, func(string) {})
	tracker.Bind(router)

	tracker.HandleBytes(1, []byte(`*stopped,reason="breakpoint-hit",thread-id="3"`+"\n"))
	time.Sleep(50 * time.Millisecond)

	got, ok := store.CurrentThread()
	if !ok || got != gtid {
		t.Fatalf("CurrentThread() = %v, %v, want %d, true", got, ok, gtid)
	}
}

func TestTrackerStoppedBreakpointHitUpdatesStatus(t *testing.T) {
	store := state.NewStore()
	sess := store.RegisterSession(1, "proc-a", nil)
	sess.CreateThread(3, "i1")

	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, func(string) {})
	tracker.Bind(router)

	tracker.HandleBytes(1, []byte(`*stopped,reason="breakpoint-hit",thread-id="3"`+"\n"))
	time.Sleep(50 * time.Millisecond)

	sess.RLock()
	defer sess.RUnlock()
	if sess.AllThreadsStopped() == false {
		t.Fatal("expected thread 3 to be marked STOPPED")
	}
}

func TestTrackerOrphanDecrementCompletesCommand(t *testing.T) {
	store := state.NewStore()
	store.RegisterSession(1, "proc-a", nil)

	tracker := NewTracker(store, 1)
	router := NewRouter(store, tracker, func(string) {})
	tracker.Bind(router)

	sink, ch := ReturnSink()
	tracker.AddCmd(99, nil, 1, sink)
	tracker.noteOrphan(99, 1)

	select {
	case fin := <-ch:
		if fin == nil || len(fin.Responses) != 0 {
			t.Fatalf("expected empty finished cmd, got %+v", fin)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for orphan-driven completion")
	}
}
