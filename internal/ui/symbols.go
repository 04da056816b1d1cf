package ui

// Unicode symbols for status indicators.
const (
	SymbolOK      = "✓" // Result OK, host known
	SymbolProblem = "✗" // Result in problem state, failure
	SymbolCreated = "+" // Host created this cycle
	SymbolPending = "○" // Host create already attempted
)
