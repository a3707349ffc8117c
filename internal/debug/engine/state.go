package engine

// SessionState represents the state of a debug session.
type SessionState int

const (
	// StateIdle is the state before the first start.
	StateIdle SessionState = iota
	// StateRunning is when the debuggee is executing.
	StateRunning
	// StatePaused is when the debuggee is suspended at a pause point.
	StatePaused
	// StateStopped is when the session has ended.
	StateStopped
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Live reports whether the state has an adapter session behind it.
func (s SessionState) Live() bool {
	return s == StateRunning || s == StatePaused
}

// StateMachine owns the session state and validates commands against it.
// It is only touched from the engine loop.
type StateMachine struct {
	state        SessionState
	pausePending bool
}

// NewStateMachine returns a state machine in the idle state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle}
}

// State returns the current state.
func (m *StateMachine) State() SessionState {
	return m.state
}

// PausePending reports whether a pause request awaits its stopped event.
func (m *StateMachine) PausePending() bool {
	return m.pausePending
}

// Allows reports whether the command kind is legal in the current state.
// Commands that only touch breakpoints or watches are legal everywhere.
func (m *StateMachine) Allows(kind CommandKind) bool {
	switch kind {
	case CommandStart, CommandRestart:
		return m.state == StateIdle || m.state == StateStopped
	case CommandPause:
		return m.state == StateRunning || m.state == StatePaused
	case CommandContinue, CommandStepOver, CommandStepInto, CommandStepOut:
		return m.state == StatePaused
	case CommandStop:
		return m.state.Live()
	case CommandSelectFrame, CommandExpandVariable, CommandCollapseVariable:
		return m.state == StatePaused
	case CommandAddBreakpoint, CommandRemoveBreakpoint, CommandToggleBreakpoint,
		CommandAddWatch, CommandRemoveWatch, CommandRefreshWatches:
		return true
	default:
		return false
	}
}

// Begin applies the transition for an accepted command. It returns false
// and leaves the state untouched when the command is not allowed.
func (m *StateMachine) Begin(kind CommandKind) bool {
	if !m.Allows(kind) {
		return false
	}
	switch kind {
	case CommandStart, CommandRestart, CommandContinue,
		CommandStepOver, CommandStepInto, CommandStepOut:
		m.state = StateRunning
		m.pausePending = false
	case CommandPause:
		if m.state == StateRunning {
			m.pausePending = true
		}
	case CommandStop:
		m.state = StateStopped
		m.pausePending = false
	}
	return true
}

// Stopped moves a running session to paused. It reports whether a
// transition happened.
func (m *StateMachine) Stopped() bool {
	if !m.state.Live() {
		return false
	}
	m.state = StatePaused
	m.pausePending = false
	return true
}

// Resumed moves a paused session back to running (adapter-initiated).
func (m *StateMachine) Resumed() bool {
	if m.state != StatePaused {
		return false
	}
	m.state = StateRunning
	return true
}

// Terminate forces the stopped state. It reports whether the state changed.
func (m *StateMachine) Terminate() bool {
	if !m.state.Live() {
		return false
	}
	m.state = StateStopped
	m.pausePending = false
	return true
}

// CancelPause clears a pending pause after its request failed.
func (m *StateMachine) CancelPause() {
	m.pausePending = false
}
