// Package scriptexec defines the script executor contract consumed by the
// interactive session; the consolidation engine does not use it.
// Implementations live with whatever owns the scripting runtime; this
// package only fixes the seam the session codes against, matching
// QuantumFlow's habit of keeping
// cross-package contracts as small interfaces rather than concrete structs.
package scriptexec

import "context"

// DebugContext is attached to an Executor to route subsequent executions
// through a debug coordinator (breakpoints, step control). A nil context
// detaches it.
type DebugContext interface {
	// Opaque beyond the contract: the debug coordinator's shape is owned by
	// the kernel runtime, not this package.
}

// Executor is the opaque handle exposed by the kernel runtime. Beyond these
// two methods, callers treat it as a black box.
type Executor interface {
	// ExecuteDirect runs code synchronously and returns its textual result.
	ExecuteDirect(ctx context.Context, code string) (string, error)

	// SetDebugContext attaches or detaches (via nil) a debug coordinator.
	SetDebugContext(ctx DebugContext)
}

// Provider returns the script executor handle for the current kernel
// runtime. Implementations are expected to be cheap and idempotent: the
// handle itself owns no per-call state.
type Provider interface {
	GetScriptExecutor() Executor
}
