package server

import (
	"errors"
	"reflect"
	"testing"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateCreated, StateInitializing, true},
		{StateInitializing, StateInitialized, true},
		{StateInitialized, StateRunning, true},
		{StateInitialized, StateStopping, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateCreated, StateFailed, true},
		{StateStopped, StateFailed, true},
		{StateCreated, StateRunning, false},
		{StateStopped, StateRunning, false},
		{StateRunning, StateInitializing, false},
		{StateFailed, StateStopped, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLifecycleManager(t *testing.T) {
	m := NewLifecycleManager()
	if m.State() != StateCreated {
		t.Fatalf("initial state = %s", m.State())
	}

	var seen []State
	m.AddListener(StateListenerFunc(func(from, to State) {
		seen = append(seen, to)
	}))

	for _, next := range []State{StateInitializing, StateInitialized, StateRunning} {
		if err := m.TransitionTo(next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}
	if !m.IsRunning() {
		t.Error("manager not running")
	}

	err := m.TransitionTo(StateCreated)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}
	if m.State() != StateRunning {
		t.Errorf("state changed by invalid transition: %s", m.State())
	}

	want := []State{StateInitializing, StateInitialized, StateRunning}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("listener saw %v, want %v", seen, want)
	}
}
