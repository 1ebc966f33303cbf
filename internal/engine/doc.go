// Package engine implements the stepc per-step scheduler.
//
// A Scheduler runs registered step items (compiled code objects and Go
// functions) once per discrete simulation step, in a caller-specified
// order, against one VariableTable.
//
// STEP STATE MACHINE:
//
//	Idle -> Refreshing -> Executing(0) -> ... -> Executing(n-1) -> Idle
//
// Refreshing takes one AddressMap snapshot from the table. Every item in the
// step receives that snapshot. If an item mutates the table (a FuncStep that
// appends elements, binds a variable or grows a buffer), the snapshot is
// stale and the scheduler re-enters Refreshing before the next item. A
// snapshot never crosses a step boundary.
//
// CRITICAL PATTERNS:
//
// Logical clock:
// Every step is stamped with a monotonic seq from Clock.Next(). Simulated
// time, when a clock variable is configured, derives from seq only.
// NEVER use wall-clock time for simulation state.
//
// Single-threaded step loop:
// RunStep and Run must be called from one goroutine. Parallelism lives
// inside a single CodeObject.Execute call and never spans items.
package engine
