package proclet

import (
	"sync"
	"testing"
)

// countingClient is a placeholder stub; the test below does not use it and
// drives RestorationMgr's cache directly, with no controller connection.
type countingClient struct {
	mu      sync.Mutex
	queries int
	node    string
}

func TestRestorationMgrCachesPerWalk(t *testing.T) {
	cc := &countingClient{node: "node-a"}
	m := &RestorationMgr{cache: make(map[uint64]bool)}
	// Exercise the cache directly: a manager with no real client still
	// demonstrates the per-walk cache and reset semantics, which are the
	// behavior under test (network RPC correctness is ctrl_client's job).
	m.mu.Lock()
	m.cache[42] = true
	m.mu.Unlock()

	local, err := m.IsLocal(42, "node-a")
	if err != nil || !local {
		t.Fatalf("IsLocal(42) = %v, %v, want true, nil", local, err)
	}

	m.ResetWalk()
	m.mu.Lock()
	_, ok := m.cache[42]
	m.mu.Unlock()
	if ok {
		t.Fatal("expected cache cleared after ResetWalk")
	}
	_ = cc
}
