package server

import (
	"errors"
	"fmt"
	"sync"
)

// --------------------------------------------------------------------------
// States
// --------------------------------------------------------------------------

// State is the lifecycle state of an extension server
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateInitialized
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
// Every state may move to StateFailed.
func (s State) CanTransitionTo(next State) bool {
	if next == StateFailed {
		return true
	}
	switch s {
	case StateCreated:
		return next == StateInitializing
	case StateInitializing:
		return next == StateInitialized
	case StateInitialized:
		return next == StateRunning || next == StateStopping
	case StateRunning:
		return next == StateStopping
	case StateStopping:
		return next == StateStopped
	default:
		return false
	}
}

// IsTerminal reports whether no further transition (except to failed) is expected
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// --------------------------------------------------------------------------
// Listeners
// --------------------------------------------------------------------------

// IStateListener is notified after every successful transition
type IStateListener interface {
	OnStateChange(from, to State)
}

// StateListenerFunc adapts a function to IStateListener
type StateListenerFunc func(from, to State)

func (f StateListenerFunc) OnStateChange(from, to State) { f(from, to) }

// LoggingStateListener logs every transition to the server logger
type LoggingStateListener struct{}

func (LoggingStateListener) OnStateChange(from, to State) {
	if to == StateFailed {
		Logger.Errorf("Extension state changed from %s to %s", from, to)
		return
	}
	Logger.Infof("Extension state changed from %s to %s", from, to)
}

// --------------------------------------------------------------------------
// Lifecycle Manager
// --------------------------------------------------------------------------

// ErrInvalidTransition is wrapped by TransitionTo for illegal transitions
var ErrInvalidTransition = errors.New("invalid state transition")

// LifecycleManager holds the current state and notifies listeners on change
type LifecycleManager struct {
	mu        sync.RWMutex
	state     State
	listeners []IStateListener
}

// NewLifecycleManager returns a manager in StateCreated
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{state: StateCreated}
}

// State returns the current state
func (m *LifecycleManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AddListener registers a listener for all future transitions
func (m *LifecycleManager) AddListener(l IStateListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// TransitionTo moves to next if allowed. Listeners are called after the
// state changed, outside of the lock.
func (m *LifecycleManager) TransitionTo(next State) error {
	m.mu.Lock()
	old := m.state
	if !old.CanTransitionTo(next) {
		m.mu.Unlock()
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, old, next)
	}
	m.state = next
	listeners := make([]IStateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnStateChange(old, next)
	}
	return nil
}

// IsRunning reports whether the state is StateRunning
func (m *LifecycleManager) IsRunning() bool {
	return m.State() == StateRunning
}
