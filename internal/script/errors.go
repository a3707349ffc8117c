package script

import "errors"

var (
	// ErrWaitTimeout is raised when dbg.wait gives up.
	ErrWaitTimeout = errors.New("timed out waiting for session state")

	// ErrSessionStopped is raised when dbg.wait sees the session end while
	// waiting for another state.
	ErrSessionStopped = errors.New("session stopped")
)
