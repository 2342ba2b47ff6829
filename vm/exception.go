package vm

// ---------------------------------------------------------------------------
// Try descriptors
// ---------------------------------------------------------------------------

// tryState tracks which section of a TRY region the frame is inside.
type tryState int

const (
	tryStateTry tryState = iota
	tryStateCatch
	tryStateFinally
)

func (s tryState) String() string {
	switch s {
	case tryStateTry:
		return "try"
	case tryStateCatch:
		return "catch"
	case tryStateFinally:
		return "finally"
	default:
		return "invalid"
	}
}

// tryContext is one open TRY region in a frame. Positions are absolute
// script offsets; -1 marks an absent catch or finally block.
type tryContext struct {
	catchPos   int
	finallyPos int
	endPos     int // recorded by ENDTRY before entering finally

	state tryState

	// stackDepth is the evaluation stack depth when the region opened.
	// Entering the catch block truncates the stack back to it before the
	// exception payload is pushed.
	stackDepth int
}

func newTryContext(catchPos, finallyPos, stackDepth int) *tryContext {
	return &tryContext{
		catchPos:   catchPos,
		finallyPos: finallyPos,
		endPos:     -1,
		state:      tryStateTry,
		stackDepth: stackDepth,
	}
}

// HasCatch reports whether the region declares a catch block.
func (t *tryContext) HasCatch() bool { return t.catchPos >= 0 }

// HasFinally reports whether the region declares a finally block.
func (t *tryContext) HasFinally() bool { return t.finallyPos >= 0 }

// pushTry opens a try region on the frame.
func (c *ExecutionContext) pushTry(t *tryContext, maxDepth int) {
	if len(c.tryStack) >= maxDepth {
		throwf(FaultTryNestingExceeded, "%d try regions already open", len(c.tryStack))
	}
	c.tryStack = append(c.tryStack, t)
}

// currentTry returns the innermost open try region, or nil.
func (c *ExecutionContext) currentTry() *tryContext {
	if len(c.tryStack) == 0 {
		return nil
	}
	return c.tryStack[len(c.tryStack)-1]
}

// popTry closes the innermost try region.
func (c *ExecutionContext) popTry() *tryContext {
	t := c.currentTry()
	if t == nil {
		throwf(FaultInvalidOperand, "no open try region")
	}
	c.tryStack = c.tryStack[:len(c.tryStack)-1]
	return t
}
