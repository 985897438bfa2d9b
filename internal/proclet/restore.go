package proclet

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// RestorationMgr throttles duplicate controller RPCs: concurrent requests
// asking about the same proclet id collapse into a single in-flight
// query (spec.md §8 — "two identical -check-proclet calls... issue
// exactly one RPC"), and the "is this proclet already local" answer is
// cached per walk so a single distributed backtrace never re-asks the
// controller about a proclet it already resolved.
type RestorationMgr struct {
	client *Client
	group  singleflight.Group

	mu    sync.Mutex
	cache map[uint64]bool // proclet id -> is-local, reset at the start of each walk
}

// NewRestorationMgr constructs a manager bound to a controller client.
func NewRestorationMgr(client *Client) *RestorationMgr {
	return &RestorationMgr{client: client, cache: make(map[uint64]bool)}
}

// ResetWalk clears the per-walk "is local" cache. Called once at the
// start of each distributed backtrace (DESIGN.md open question (e)) so a
// stale answer from an earlier walk never leaks into a new one.
func (m *RestorationMgr) ResetWalk() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[uint64]bool)
}

// IsLocal reports whether procletID is resident on localNode, querying
// the controller at most once per proclet id per walk and collapsing
// concurrent identical queries via singleflight.
func (m *RestorationMgr) IsLocal(procletID uint64, localNode string) (bool, error) {
	m.mu.Lock()
	if local, ok := m.cache[procletID]; ok {
		m.mu.Unlock()
		return local, nil
	}
	m.mu.Unlock()

	key := fmt.Sprintf("query:%d", procletID)
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		node, err := m.client.Query(procletID)
		if err != nil {
			return nil, err
		}
		return node, nil
	})
	if err != nil {
		return false, err
	}
	node := v.(string)
	local := node == localNode

	m.mu.Lock()
	m.cache[procletID] = local
	m.mu.Unlock()

	return local, nil
}

// Restore migrates procletID back to localNode if it is not already
// resident there, deduplicating concurrent restore requests for the same
// proclet id via singleflight.
func (m *RestorationMgr) Restore(procletID uint64, localNode string) error {
	local, err := m.IsLocal(procletID, localNode)
	if err != nil {
		return err
	}
	if local {
		return nil
	}

	key := fmt.Sprintf("restore:%d", procletID)
	_, err, _ = m.group.Do(key, func() (interface{}, error) {
		if rerr := m.client.Restore(procletID, localNode); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.cache[procletID] = true
	m.mu.Unlock()
	return nil
}
