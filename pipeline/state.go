package pipeline

import (
	"fmt"
	"sync"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCommitted State = "COMMITTED"
	StateFailed    State = "FAILED"
)

// allowedTransitions is the controller state machine.
var allowedTransitions = map[State][]State{
	StateIdle:      {StateRunning},
	StateRunning:   {StateCommitted, StateFailed},
	StateCommitted: {StateIdle},
	StateFailed:    {StateIdle},
}

// stateMachine records the current state and the last terminal state a run reached.
type stateMachine struct {
	mu      sync.RWMutex
	current State
	last    State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateIdle}
}

func (s *stateMachine) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range allowedTransitions[s.current] {
		if allowed == to {
			s.current = to
			if to == StateCommitted || to == StateFailed {
				s.last = to
			}
			return nil
		}
	}
	return fmt.Errorf("illegal state transition from %v to %v", s.current, to)
}

func (s *stateMachine) get() (current, last State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.last
}
