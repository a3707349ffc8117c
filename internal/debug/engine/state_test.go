package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMachine_Transitions(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, StateIdle, m.State())

	assert.False(t, m.Begin(CommandContinue))
	assert.True(t, m.Begin(CommandStart))
	assert.Equal(t, StateRunning, m.State())

	assert.True(t, m.Begin(CommandPause))
	assert.True(t, m.PausePending())
	assert.Equal(t, StateRunning, m.State(), "pause waits for the stopped event")

	assert.True(t, m.Stopped())
	assert.Equal(t, StatePaused, m.State())
	assert.False(t, m.PausePending())

	assert.True(t, m.Begin(CommandStepOver))
	assert.Equal(t, StateRunning, m.State())

	assert.True(t, m.Stopped())
	assert.True(t, m.Resumed())
	assert.Equal(t, StateRunning, m.State())

	assert.True(t, m.Begin(CommandStop))
	assert.Equal(t, StateStopped, m.State())
	assert.False(t, m.Terminate(), "already stopped")
	assert.False(t, m.Stopped(), "no pause outside a live session")

	assert.True(t, m.Begin(CommandRestart))
	assert.Equal(t, StateRunning, m.State())
	assert.True(t, m.Terminate())
	assert.Equal(t, StateStopped, m.State())
}

func TestStateMachine_Allows(t *testing.T) {
	tests := []struct {
		kind  CommandKind
		allow []SessionState
	}{
		{CommandStart, []SessionState{StateIdle, StateStopped}},
		{CommandRestart, []SessionState{StateIdle, StateStopped}},
		{CommandPause, []SessionState{StateRunning, StatePaused}},
		{CommandContinue, []SessionState{StatePaused}},
		{CommandStepOut, []SessionState{StatePaused}},
		{CommandStop, []SessionState{StateRunning, StatePaused}},
		{CommandSelectFrame, []SessionState{StatePaused}},
		{CommandExpandVariable, []SessionState{StatePaused}},
		{CommandAddBreakpoint, []SessionState{StateIdle, StateRunning, StatePaused, StateStopped}},
		{CommandAddWatch, []SessionState{StateIdle, StateRunning, StatePaused, StateStopped}},
		{CommandKind(99), nil},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			for _, state := range []SessionState{StateIdle, StateRunning, StatePaused, StateStopped} {
				m := &StateMachine{state: state}
				assert.Equal(t, contains(tt.allow, state), m.Allows(tt.kind), "state %s", state)
			}
		})
	}
}

func TestStateMachine_CancelPause(t *testing.T) {
	m := &StateMachine{state: StateRunning}
	m.Begin(CommandPause)
	m.CancelPause()
	assert.False(t, m.PausePending())
	assert.Equal(t, StateRunning, m.State())
}

func contains(states []SessionState, s SessionState) bool {
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}
