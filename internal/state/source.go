package state

import "sync"

// SourceMgr maintains the many-to-many source-path <-> group mapping, plus
// a per-path "already checked" set to avoid redundant resolution work
// (spec.md §3 "Source map").
type SourceMgr struct {
	mu           sync.Mutex
	pathToGroups map[string]map[GroupID]struct{}
	checked      map[string]struct{}
	knownGroups  map[GroupID]struct{}
}

// NewSourceMgr constructs an empty SourceMgr.
func NewSourceMgr() *SourceMgr {
	return &SourceMgr{
		pathToGroups: make(map[string]map[GroupID]struct{}),
		checked:      make(map[string]struct{}),
		knownGroups:  make(map[GroupID]struct{}),
	}
}

// NewGroup registers gid as known to the source resolver (a group can
// only be a target of resolution once it is known).
func (s *SourceMgr) NewGroup(gid GroupID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knownGroups[gid] = struct{}{}
}

// GroupExists reports whether gid has been registered via NewGroup.
func (s *SourceMgr) GroupExists(gid GroupID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.knownGroups[gid]
	return ok
}

// AddSource records that path resolves for gid.
func (s *SourceMgr) AddSource(path string, gid GroupID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.pathToGroups[path]
	if !ok {
		set = make(map[GroupID]struct{})
		s.pathToGroups[path] = set
	}
	set[gid] = struct{}{}
	s.checked[path] = struct{}{}
}

// IsChecked reports whether path has already been resolved once (so a
// caller can skip redundant resolution RPCs).
func (s *SourceMgr) IsChecked(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.checked[path]
	return ok
}

// ResolveGroupIDs returns every group id known to contain path.
func (s *SourceMgr) ResolveGroupIDs(path string) []GroupID {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.pathToGroups[path]
	if !ok {
		return nil
	}
	out := make([]GroupID, 0, len(set))
	for gid := range set {
		out = append(out, gid)
	}
	return out
}

// GroupsNeedingResolution returns every known group id that has not yet
// resolved the given path, used by the `:p-resolve-src` fan-out.
func (s *SourceMgr) GroupsNeedingResolution(path string) []GroupID {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := s.pathToGroups[path]
	out := make([]GroupID, 0, len(s.knownGroups))
	for gid := range s.knownGroups {
		if resolved != nil {
			if _, done := resolved[gid]; done {
				continue
			}
		}
		out = append(out, gid)
	}
	return out
}
