package engine

import (
	"path/filepath"
	"slices"
	"sort"
)

// Breakpoint is a user-defined line breakpoint.
type Breakpoint struct {
	// ID is stable for the lifetime of the breakpoint.
	ID int `json:"id"`

	// File is the cleaned source path.
	File string `json:"file"`

	// Line is the 1-based line number.
	Line int `json:"line"`

	// Enabled indicates whether the breakpoint may pause execution.
	Enabled bool `json:"enabled"`

	// Condition is an optional expression evaluated by the target.
	Condition string `json:"condition,omitempty"`

	// Verified indicates the adapter confirmed the breakpoint.
	Verified bool `json:"verified"`

	// Message contains any message from the adapter.
	Message string `json:"message,omitempty"`

	adapterID int
}

// BreakpointRegistry owns breakpoint definitions. Identity is (file, line).
type BreakpointRegistry struct {
	breakpoints map[int]*Breakpoint
	byFile      map[string][]*Breakpoint
	nextID      int
}

// NewBreakpointRegistry creates an empty registry.
func NewBreakpointRegistry() *BreakpointRegistry {
	return &BreakpointRegistry{
		breakpoints: make(map[int]*Breakpoint),
		byFile:      make(map[string][]*Breakpoint),
		nextID:      1,
	}
}

// NormalizePath returns the canonical form used for breakpoint identity.
func NormalizePath(file string) string {
	return filepath.Clean(file)
}

// Add creates an unverified, enabled breakpoint.
func (r *BreakpointRegistry) Add(file string, line int, condition string) (Breakpoint, error) {
	file = NormalizePath(file)
	if _, ok := r.ByLocation(file, line); ok {
		return Breakpoint{}, ErrDuplicateBreakpoint
	}

	bp := &Breakpoint{
		ID:        r.nextID,
		File:      file,
		Line:      line,
		Enabled:   true,
		Condition: condition,
	}
	r.nextID++

	r.breakpoints[bp.ID] = bp
	r.byFile[file] = append(r.byFile[file], bp)
	return *bp, nil
}

// Remove deletes a breakpoint and returns it.
func (r *BreakpointRegistry) Remove(id int) (Breakpoint, error) {
	bp, ok := r.breakpoints[id]
	if !ok {
		return Breakpoint{}, ErrUnknownBreakpoint
	}

	delete(r.breakpoints, id)
	r.byFile[bp.File] = slices.DeleteFunc(r.byFile[bp.File], func(b *Breakpoint) bool {
		return b.ID == id
	})
	if len(r.byFile[bp.File]) == 0 {
		delete(r.byFile, bp.File)
	}
	return *bp, nil
}

// ToggleEnabled flips the enabled flag and returns the updated breakpoint.
func (r *BreakpointRegistry) ToggleEnabled(id int) (Breakpoint, error) {
	bp, ok := r.breakpoints[id]
	if !ok {
		return Breakpoint{}, ErrUnknownBreakpoint
	}
	bp.Enabled = !bp.Enabled
	return *bp, nil
}

// MarkVerified records the adapter's verification result.
func (r *BreakpointRegistry) MarkVerified(id int, status BreakpointStatus) bool {
	bp, ok := r.breakpoints[id]
	if !ok {
		return false
	}
	bp.Verified = status.Verified
	bp.Message = status.Message
	if status.AdapterID != 0 {
		bp.adapterID = status.AdapterID
	}
	return true
}

// ResetVerification marks every breakpoint unverified. Used when a session
// ends since verification is per adapter session.
func (r *BreakpointRegistry) ResetVerification() {
	for _, bp := range r.breakpoints {
		bp.Verified = false
		bp.Message = ""
		bp.adapterID = 0
	}
}

// Get returns a breakpoint by ID.
func (r *BreakpointRegistry) Get(id int) (Breakpoint, bool) {
	bp, ok := r.breakpoints[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// ByLocation returns the breakpoint at a file and line, if any.
func (r *BreakpointRegistry) ByLocation(file string, line int) (Breakpoint, bool) {
	for _, bp := range r.byFile[NormalizePath(file)] {
		if bp.Line == line {
			return *bp, true
		}
	}
	return Breakpoint{}, false
}

// ByAdapterID resolves an adapter-side breakpoint id.
func (r *BreakpointRegistry) ByAdapterID(adapterID int) (Breakpoint, bool) {
	if adapterID == 0 {
		return Breakpoint{}, false
	}
	for _, bp := range r.breakpoints {
		if bp.adapterID == adapterID {
			return *bp, true
		}
	}
	return Breakpoint{}, false
}

// ForFile returns the breakpoints of a file in insertion order.
func (r *BreakpointRegistry) ForFile(file string) []Breakpoint {
	bps := r.byFile[NormalizePath(file)]
	result := make([]Breakpoint, len(bps))
	for i, bp := range bps {
		result[i] = *bp
	}
	return result
}

// Files returns every file that has breakpoints, sorted.
func (r *BreakpointRegistry) Files() []string {
	files := make([]string, 0, len(r.byFile))
	for file := range r.byFile {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// All returns every breakpoint ordered by ID.
func (r *BreakpointRegistry) All() []Breakpoint {
	result := make([]Breakpoint, 0, len(r.breakpoints))
	for _, bp := range r.breakpoints {
		result = append(result, *bp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of breakpoints.
func (r *BreakpointRegistry) Len() int {
	return len(r.breakpoints)
}

// request builds the full replacement set for a file together with the
// breakpoint IDs in the same order.
func (r *BreakpointRegistry) request(file string) ([]int, []SourceBreakpoint) {
	bps := r.byFile[NormalizePath(file)]
	ids := make([]int, len(bps))
	set := make([]SourceBreakpoint, len(bps))
	for i, bp := range bps {
		ids[i] = bp.ID
		set[i] = SourceBreakpoint{
			Line:      bp.Line,
			Condition: bp.Condition,
			Enabled:   bp.Enabled,
		}
	}
	return ids, set
}
