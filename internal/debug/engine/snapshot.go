package engine

// OutputLine is one chunk of program or adapter output.
type OutputLine struct {
	Category string `json:"category,omitempty"`
	Text     string `json:"text"`
}

// CommandFailure is published when an accepted command fails.
type CommandFailure struct {
	Command CommandKind `json:"command"`
	Error   string      `json:"error"`
}

// Snapshot is an immutable view of the engine state for the presentation
// layer. A new value is produced after every change.
type Snapshot struct {
	SessionID     string                   `json:"sessionId"`
	State         SessionState             `json:"state"`
	Generation    uint64                   `json:"generation"`
	PausePending  bool                     `json:"pausePending"`
	Breakpoints   []Breakpoint             `json:"breakpoints"`
	Stack         []StackFrame             `json:"stack"`
	SelectedFrame int                      `json:"selectedFrame"`
	HasSelection  bool                     `json:"hasSelection"`
	Variables     map[Scope][]VariableView `json:"variables"`
	Watches       []WatchExpression        `json:"watches"`
	Output        []OutputLine             `json:"output"`
	Pending       int                      `json:"pending"`
	LastError     string                   `json:"lastError,omitempty"`
}

// Selected returns the selected frame, if any.
func (s *Snapshot) Selected() (StackFrame, bool) {
	if !s.HasSelection {
		return StackFrame{}, false
	}
	for _, f := range s.Stack {
		if f.ID == s.SelectedFrame {
			return f, true
		}
	}
	return StackFrame{}, false
}

// Breakpoint returns a breakpoint by id.
func (s *Snapshot) Breakpoint(id int) (Breakpoint, bool) {
	for _, bp := range s.Breakpoints {
		if bp.ID == id {
			return bp, true
		}
	}
	return Breakpoint{}, false
}

// Watch returns a watch by id.
func (s *Snapshot) Watch(id int) (WatchExpression, bool) {
	for _, w := range s.Watches {
		if w.ID == id {
			return w, true
		}
	}
	return WatchExpression{}, false
}

// FindVariable searches the visible tree of a scope by path of names.
func (s *Snapshot) FindVariable(scope Scope, path ...string) (VariableView, bool) {
	level := s.Variables[scope]
	var found VariableView
	for _, name := range path {
		ok := false
		for _, v := range level {
			if v.Name == name {
				found, ok = v, true
				break
			}
		}
		if !ok {
			return VariableView{}, false
		}
		level = found.Children
	}
	return found, len(path) > 0
}
