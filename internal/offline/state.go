package offline

import "sync"

// ConnectivityState tracks whether the primary is currently reachable and
// whether the mirror holds a primed snapshot. Mutated only by the
// persistence gateway and the reconnect loop.
type ConnectivityState struct {
	mu           sync.RWMutex
	online       bool
	mirrorPrimed bool
}

// NewConnectivityState returns state that starts online and unprimed.
func NewConnectivityState() *ConnectivityState {
	return &ConnectivityState{online: true}
}

// Online reports whether the primary is considered reachable.
func (s *ConnectivityState) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetOnline flips the reachability flag and reports whether the value
// changed.
func (s *ConnectivityState) SetOnline(online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == online {
		return false
	}
	s.online = online
	return true
}

// MirrorPrimed reports whether the mirror holds a snapshot of the primary.
func (s *ConnectivityState) MirrorPrimed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirrorPrimed
}

// SetMirrorPrimed records whether the mirror has been primed.
func (s *ConnectivityState) SetMirrorPrimed(primed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrorPrimed = primed
}
