// Package engine implements the debug session engine: the state machine,
// breakpoint registry, call stack, lazy variable tree and watch list of one
// interactive debugging session, kept consistent with an asynchronous
// debug target behind the Adapter interface.
//
// All state is owned by a single event loop. Commands are validated on the
// loop and either rejected without side effects or accepted with a Ticket.
// Adapter requests run on helper goroutines; their results are applied on
// the loop only if they still belong to the current generation, which
// advances every time the debuggee resumes or the pause point is lost.
//
// Consumers read immutable Snapshots, either by polling Engine.Snapshot or
// by subscribing to the session topics on an event.Bus.
package engine
