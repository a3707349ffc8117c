// Package topic provides hierarchical topic names and wildcard matching for
// the event bus.
//
// Topics use dot notation:
//
//	debug.session.changed
//	debug.output.received
//
// Patterns may contain two wildcards:
//
//   - "*" matches exactly one segment
//   - "**" matches zero or more segments
//
// Examples:
//
//	debug.session.*   matches debug.session.paused (not debug.output.received)
//	debug.**          matches every debug topic
//	*.*.stopped       matches debug.session.stopped
//	**                matches everything
package topic
