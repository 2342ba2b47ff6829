package vm

// ---------------------------------------------------------------------------
// Execution limits
// ---------------------------------------------------------------------------

// Limits bounds the resources a single execution may consume. Exceeding a
// limit is a fatal fault: the engine transitions to FAULT without giving the
// script a chance to catch it.
type Limits struct {
	// MaxShift is the largest operand accepted by SHL and SHR.
	MaxShift int

	// MaxStackSize caps the total number of live references recorded in
	// the reference ledger across all evaluation stacks and slots.
	MaxStackSize int

	// MaxReferenceCount caps the number of distinct compound items the
	// reference ledger tracks at once.
	MaxReferenceCount int

	// MaxItemSize caps the byte length of a ByteString or Buffer.
	MaxItemSize int

	// MaxIntegerSize caps the two's-complement wire width of an Integer.
	MaxIntegerSize int

	// MaxComparableSize caps the byte length examined by EQUAL and
	// NOTEQUAL on primitive items.
	MaxComparableSize int

	// MaxInvocationStackSize caps the depth of the context stack.
	MaxInvocationStackSize int

	// MaxTryNestingDepth caps the number of open try regions per context.
	MaxTryNestingDepth int
}

// DefaultLimits returns the standard production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxShift:               256,
		MaxStackSize:           2048,
		MaxReferenceCount:      2048,
		MaxItemSize:            1 << 20,
		MaxIntegerSize:         32,
		MaxComparableSize:      65536,
		MaxInvocationStackSize: 1024,
		MaxTryNestingDepth:     16,
	}
}

// assertItemSize faults when a byte sequence of length n may not be
// materialized as a single item.
func (l *Limits) assertItemSize(n int) {
	if n > l.MaxItemSize {
		throwf(FaultItemTooLarge, "item of %d bytes exceeds limit %d", n, l.MaxItemSize)
	}
}

// assertShift faults when a shift operand is out of range.
func (l *Limits) assertShift(n int) {
	if n < 0 || n > l.MaxShift {
		throwf(FaultInvalidOperand, "shift of %d out of range [0, %d]", n, l.MaxShift)
	}
}
