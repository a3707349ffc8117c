// Package script runs Lua scripts against a debug session.
//
// A script sees a single global table, dbg, whose functions drive the
// engine and read its snapshots:
//
//	dbg.set_break("main.go", 42)
//	dbg.start()
//	dbg.wait("paused")
//	print(dbg.eval("len(queue)"))
//	for _, f in ipairs(dbg.stack()) do print(f.name, f.line) end
//	dbg.stop()
//
// Engine failures are raised as Lua errors so scripts can use pcall.
// Only the base, table, string and math libraries are opened.
package script
