package engine

import "fmt"

// StackFrame is one frame of the paused thread.
type StackFrame struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// FormatLocation returns a location string like "main.go:42".
func (f StackFrame) FormatLocation() string {
	if f.File == "" {
		return fmt.Sprintf("<unknown>:%d", f.Line)
	}
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

// CallStack owns the ordered frame list and the selected frame.
// Index 0 is the innermost frame.
type CallStack struct {
	frames   []StackFrame
	selected int // index into frames, -1 when empty
}

// NewCallStack creates an empty call stack.
func NewCallStack() *CallStack {
	return &CallStack{selected: -1}
}

// Replace swaps the whole frame list. The frame with id preferred is
// selected when preferred is positive and present, otherwise frame 0.
func (c *CallStack) Replace(frames []StackFrame, preferred int) {
	c.frames = append([]StackFrame(nil), frames...)
	c.selected = -1
	if len(c.frames) == 0 {
		return
	}
	c.selected = 0
	if preferred > 0 {
		if i := c.indexOf(preferred); i >= 0 {
			c.selected = i
		}
	}
}

// Select changes the active frame. On error the selection is unchanged.
func (c *CallStack) Select(id int) (StackFrame, error) {
	i := c.indexOf(id)
	if i < 0 {
		return StackFrame{}, ErrUnknownFrame
	}
	c.selected = i
	return c.frames[i], nil
}

// Selected returns the active frame.
func (c *CallStack) Selected() (StackFrame, bool) {
	if c.selected < 0 || c.selected >= len(c.frames) {
		return StackFrame{}, false
	}
	return c.frames[c.selected], true
}

// Top returns the innermost frame.
func (c *CallStack) Top() (StackFrame, bool) {
	if len(c.frames) == 0 {
		return StackFrame{}, false
	}
	return c.frames[0], true
}

// Frames returns a copy of the frame list.
func (c *CallStack) Frames() []StackFrame {
	return append([]StackFrame(nil), c.frames...)
}

// Len returns the number of frames.
func (c *CallStack) Len() int {
	return len(c.frames)
}

// Clear drops every frame.
func (c *CallStack) Clear() {
	c.frames = nil
	c.selected = -1
}

func (c *CallStack) indexOf(id int) int {
	for i, f := range c.frames {
		if f.ID == id {
			return i
		}
	}
	return -1
}
