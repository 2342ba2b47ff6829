package vm

// ---------------------------------------------------------------------------
// Execution context
// ---------------------------------------------------------------------------

// sharedStates is the part of a context that CALL-family frames share with
// their caller: the script, the evaluation stack and the static fields.
type sharedStates struct {
	script       *Script
	evalStack    *EvalStack
	staticFields *Slot
}

// ExecutionContext is one frame of the invocation stack.
type ExecutionContext struct {
	shared *sharedStates

	ip      int // offset of the instruction about to execute
	rvCount int // return values the caller expects, -1 for all

	locals    *Slot
	arguments *Slot

	tryStack []*tryContext
}

// newExecutionContext builds a root frame over script with its own shared
// state.
func newExecutionContext(script *Script, rvCount int, rc *refCounter) *ExecutionContext {
	return &ExecutionContext{
		shared: &sharedStates{
			script:    script,
			evalStack: newEvalStack(rc),
		},
		rvCount: rvCount,
	}
}

// Script returns the bytecode this frame executes.
func (c *ExecutionContext) Script() *Script { return c.shared.script }

// Stack returns the evaluation stack this frame operates on.
func (c *ExecutionContext) Stack() *EvalStack { return c.shared.evalStack }

// IP returns the current instruction offset.
func (c *ExecutionContext) IP() int { return c.ip }

// RVCount returns the declared return value count, -1 for all.
func (c *ExecutionContext) RVCount() int { return c.rvCount }

// currentInstruction decodes the instruction at the instruction pointer. A
// pointer at or past the script end reads as an implicit RET.
func (c *ExecutionContext) currentInstruction() *Instruction {
	if c.ip >= c.shared.script.Len() {
		return &Instruction{Opcode: OpRet, position: c.ip, size: 1}
	}
	in, err := c.shared.script.InstructionAt(c.ip)
	if err != nil {
		throwf(FaultInvalidOpcode, "%v", err)
	}
	return in
}

// jump repositions the instruction pointer. The target must begin an
// instruction within the script.
func (c *ExecutionContext) jump(pos int) {
	if pos < 0 || pos > c.shared.script.Len() {
		throwf(FaultInvalidJumpTarget, "jump to %d outside script of %d bytes", pos, c.shared.script.Len())
	}
	if pos < c.shared.script.Len() {
		if _, err := c.shared.script.InstructionAt(pos); err != nil {
			throwf(FaultInvalidJumpTarget, "%v", err)
		}
	}
	c.ip = pos
}

// cloneAtOffset derives a CALL frame: same script, shared evaluation stack
// and static fields, fresh locals, arguments and try stack.
func (c *ExecutionContext) cloneAtOffset(pos int, rvCount int) *ExecutionContext {
	return &ExecutionContext{
		shared:  c.shared,
		ip:      pos,
		rvCount: rvCount,
	}
}

// sharesStackWith reports whether both frames operate on one evaluation
// stack.
func (c *ExecutionContext) sharesStackWith(other *ExecutionContext) bool {
	return other != nil && c.shared.evalStack == other.shared.evalStack
}

// releaseSlots drops the references held by this frame's private slots, and
// the static fields when no other live frame shares them.
func (c *ExecutionContext) releaseSlots(sharedStillLive bool) {
	c.locals.clearReferences()
	c.arguments.clearReferences()
	if !sharedStillLive {
		c.shared.staticFields.clearReferences()
	}
}
