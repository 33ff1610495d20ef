package session

import (
	"sync"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/core/event"
)

// State holds the terminal's active branch and connectivity flag and
// publishes transitions on the bus. Setting an unchanged value is silent.
type State struct {
	mu       sync.RWMutex
	branchID string
	online   bool
	bus      *event.Bus
}

func NewState(bus *event.Bus, branchID string, online bool) *State {
	return &State{
		branchID: domain.NormalizeBranchID(branchID),
		online:   online,
		bus:      bus,
	}
}

func (s *State) ActiveBranchID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.branchID
}

func (s *State) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetOnline records a connectivity transition. It reports whether the value
// changed; the online/offline event is published after the lock is released
// so handlers may read the state.
func (s *State) SetOnline(online bool) bool {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return false
	}
	s.online = online
	s.mu.Unlock()

	if online {
		s.bus.Emit(event.TopicOnline, nil)
	} else {
		s.bus.Emit(event.TopicOffline, nil)
	}
	return true
}

func (s *State) SetActiveBranch(branchID string) bool {
	branchID = domain.NormalizeBranchID(branchID)

	s.mu.Lock()
	if s.branchID == branchID {
		s.mu.Unlock()
		return false
	}
	s.branchID = branchID
	s.mu.Unlock()

	s.bus.Emit(event.TopicBranchChanged, branchID)
	return true
}

// Static is a fixed client context.
type Static struct {
	Branch string
	Online bool
}

func (s Static) ActiveBranchID() string { return s.Branch }
func (s Static) IsOnline() bool         { return s.Online }
