package vm

import "fmt"

// ---------------------------------------------------------------------------
// Fault classification
// ---------------------------------------------------------------------------

// FaultKind classifies an execution failure.
type FaultKind int

const (
	// Catchable faults. These are surfaced to the script as exceptions and
	// can be intercepted by a TRY region.
	FaultDivisionByZero FaultKind = iota
	FaultInvalidOperand
	FaultStackUnderflow
	FaultTypeMismatch
	FaultInvalidJumpTarget
	FaultInvalidOpcode
	FaultInvalidToken
	FaultItemNotFound
	FaultItemTooLarge
	FaultThrow

	// Fatal faults. Resource exhaustion and explicit aborts drive the
	// engine straight to FAULT and never reach a catch handler.
	FaultAbort
	FaultReferenceCountExceeded
	FaultInvocationDepthExceeded
	FaultStackSizeExceeded
	FaultTryNestingExceeded
)

var faultKindNames = map[FaultKind]string{
	FaultDivisionByZero:          "division by zero",
	FaultInvalidOperand:          "invalid operand",
	FaultStackUnderflow:          "stack underflow",
	FaultTypeMismatch:            "type mismatch",
	FaultInvalidJumpTarget:       "invalid jump target",
	FaultInvalidOpcode:           "invalid opcode",
	FaultInvalidToken:            "invalid call token",
	FaultItemNotFound:            "item not found",
	FaultItemTooLarge:            "item too large",
	FaultThrow:                   "exception",
	FaultAbort:                   "abort",
	FaultReferenceCountExceeded:  "reference count exceeded",
	FaultInvocationDepthExceeded: "invocation depth exceeded",
	FaultStackSizeExceeded:       "evaluation stack size exceeded",
	FaultTryNestingExceeded:      "try nesting exceeded",
}

// String returns the human-readable name of the fault kind.
func (k FaultKind) String() string {
	if name, ok := faultKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", int(k))
}

// Fatal reports whether the fault bypasses the exception machinery.
func (k FaultKind) Fatal() bool {
	return k >= FaultAbort
}

// ---------------------------------------------------------------------------
// VMError
// ---------------------------------------------------------------------------

// VMError is the failure value raised by instruction handlers. Handlers panic
// with a *VMError; the engine recovers it at a single point in the step loop
// and either routes it through the exception machinery (catchable kinds) or
// transitions to FAULT (fatal kinds).
type VMError struct {
	Kind FaultKind
	Msg  string
}

// Error implements the error interface.
func (e *VMError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Fatal reports whether the error cannot be caught by a script.
func (e *VMError) Fatal() bool {
	return e.Kind.Fatal()
}

// throwf panics with a catchable or fatal VM error, depending on kind.
func throwf(kind FaultKind, format string, args ...any) {
	panic(&VMError{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}
