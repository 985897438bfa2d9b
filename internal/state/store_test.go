package state

import "testing"

func TestRegisterAndRemoveSession(t *testing.T) {
	s := NewStore()
	sess := s.RegisterSession(1, "proc-a", nil)
	if sess.Status != SessionOff {
		t.Fatalf("new session status = %v, want OFF", sess.Status)
	}
	if _, ok := s.GetSession(1); !ok {
		t.Fatal("expected session 1 present")
	}

	s.RemoveSession(1)
	if _, ok := s.GetSession(1); ok {
		t.Fatal("expected session 1 gone after RemoveSession")
	}
}

func TestThreadIndexRoundTrip(t *testing.T) {
	s := NewStore()
	local := LocalThreadID{SID: 3, TID: 7}
	gtid := s.Threads.AllocateGTID(local)

	got, ok := s.Threads.LocalByGTID(gtid)
	if !ok || got != local {
		t.Fatalf("LocalByGTID(%d) = %+v, %v, want %+v, true", gtid, got, ok, local)
	}

	// I1: get_gtid(get_ltid_by_gtid(g)) == g
	again, ok := s.Threads.GTID(got)
	if !ok || again != gtid {
		t.Fatalf("round trip failed: got %d, want %d", again, gtid)
	}
}

func TestRemoveThreadGroupPurgesTransitively(t *testing.T) {
	s := NewStore()
	sess := s.RegisterSession(1, "proc-a", nil)
	sess.CreateThread(10, "i1")
	sess.CreateThread(11, "i1")

	local10 := LocalThreadID{SID: 1, TID: 10}
	local11 := LocalThreadID{SID: 1, TID: 11}
	g10 := s.Threads.AllocateGTID(local10)
	g11 := s.Threads.AllocateGTID(local11)

	tids := sess.RemoveThreadGroup("i1")
	s.Threads.RemoveThreadGroup(LocalThreadGroupID{SID: 1, TGID: "i1"}, tids)

	if _, ok := s.Threads.LocalByGTID(g10); ok {
		t.Fatal("expected gtid for tid 10 purged")
	}
	if _, ok := s.Threads.LocalByGTID(g11); ok {
		t.Fatal("expected gtid for tid 11 purged")
	}
}

func TestGroupMgrSessionInAtMostOneGroup(t *testing.T) {
	g := NewGroupMgr()
	g.Join("hashA", "app", 1)
	g.Join("hashB", "app2", 1) // I2: moving sid between groups

	if gid, ok := g.GroupIDOf(1); !ok || gid != "hashB" {
		t.Fatalf("GroupIDOf(1) = %q, %v, want hashB", gid, ok)
	}
	membersA := g.Members("hashA")
	if len(membersA) != 0 {
		t.Fatalf("expected hashA emptied out, got %v", membersA)
	}
}

func TestBreakpointReplaySet(t *testing.T) {
	b := NewBreakpointMgr()
	b.Record("hashA", "-break-insert main")
	b.Record("hashA", "-break-insert main") // dedup

	cmds := b.ForGroup("hashA")
	if len(cmds) != 1 || cmds[0] != "-break-insert main" {
		t.Fatalf("got %v, want exactly one entry", cmds)
	}
}

func TestCurrentSessionClearedOnRemoval(t *testing.T) {
	s := NewStore()
	s.RegisterSession(1, "a", nil)
	s.SetCurrentSession(1)

	s.RemoveSession(1)
	if _, ok := s.CurrentSession(); ok {
		t.Fatal("expected current session cleared after removal")
	}
}
