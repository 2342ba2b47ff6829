package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Engine state
// ---------------------------------------------------------------------------

// State is the engine's execution state.
type State byte

const (
	StateNone  State = 0 // loaded, not finished
	StateHalt  State = 1 // completed normally
	StateFault State = 2 // failed, results unusable
	StateBreak State = 4 // paused by the step budget or debugger
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateHalt:
		return "HALT"
	case StateFault:
		return "FAULT"
	case StateBreak:
		return "BREAK"
	default:
		return fmt.Sprintf("State(%d)", byte(s))
	}
}

// ErrNoScript is returned when execution starts with an empty invocation
// stack.
var ErrNoScript = errors.New("no script loaded")

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine executes bytecode deterministically: same scripts and limits, same
// result. Instruction handlers signal failure by panicking with a *VMError;
// the step loop recovers at exactly one point and either routes the failure
// through the open try regions (catchable kinds) or transitions to FAULT
// (fatal kinds).
type Engine struct {
	limits Limits
	rc     *refCounter

	istack      []*ExecutionContext // top is the current frame
	resultStack *EvalStack

	state    State
	uncaught StackItem // pending exception payload during unwinding
	faultErr error

	jumping bool // set by handlers that repositioned control

	interops map[uint32]*InteropDescriptor
	tokens   TokenResolver
}

// NewEngine returns an engine with the default limits and the builtin
// interops registered.
func NewEngine() *Engine {
	return NewEngineWithLimits(DefaultLimits())
}

// NewEngineWithLimits returns an engine with custom limits.
func NewEngineWithLimits(limits Limits) *Engine {
	rc := newRefCounter()
	e := &Engine{
		limits:      limits,
		rc:          rc,
		resultStack: newEvalStack(rc),
		interops:    make(map[uint32]*InteropDescriptor),
	}
	registerBuiltins(e)
	return e
}

// Limits returns the engine's resource limits.
func (e *Engine) Limits() Limits { return e.limits }

// State returns the current execution state.
func (e *Engine) State() State { return e.state }

// FaultError returns the failure that drove the engine to FAULT, nil
// otherwise.
func (e *Engine) FaultError() error { return e.faultErr }

// SetTokenResolver installs the CALLT token resolver.
func (e *Engine) SetTokenResolver(r TokenResolver) { e.tokens = r }

// Context returns the current frame, or nil when nothing is loaded.
func (e *Engine) Context() *ExecutionContext {
	if len(e.istack) == 0 {
		return nil
	}
	return e.istack[len(e.istack)-1]
}

// InvocationDepth returns the number of loaded frames.
func (e *Engine) InvocationDepth() int { return len(e.istack) }

// ResultStack returns the engine's result stack.
func (e *Engine) ResultStack() *EvalStack { return e.resultStack }

// PopResult removes and returns the top of the result stack.
func (e *Engine) PopResult() StackItem { return e.resultStack.Pop() }

// PeekResult returns the top of the result stack without removing it.
func (e *Engine) PeekResult() StackItem { return e.resultStack.Peek(0) }

// Push places item on the current evaluation stack.
func (e *Engine) Push(item StackItem) { e.Context().Stack().Push(item) }

// Pop removes and returns the top of the current evaluation stack.
func (e *Engine) Pop() StackItem { return e.Context().Stack().Pop() }

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadScript pushes a new frame with its own evaluation stack and shared
// state. The frame returns every item left on its stack.
func (e *Engine) LoadScript(script *Script) *ExecutionContext {
	return e.loadScriptWithRV(script, -1)
}

func (e *Engine) loadScriptWithRV(script *Script, rvCount int) *ExecutionContext {
	ctx := newExecutionContext(script, rvCount, e.rc)
	e.pushContext(ctx)
	return ctx
}

// pushContext makes ctx the current frame.
func (e *Engine) pushContext(ctx *ExecutionContext) {
	if len(e.istack) >= e.limits.MaxInvocationStackSize {
		throwf(FaultInvocationDepthExceeded, "invocation depth %d at limit", len(e.istack))
	}
	e.istack = append(e.istack, ctx)
}

// popContext removes the current frame without unloading it.
func (e *Engine) popContext() *ExecutionContext {
	ctx := e.istack[len(e.istack)-1]
	e.istack[len(e.istack)-1] = nil
	e.istack = e.istack[:len(e.istack)-1]
	return ctx
}

// sharedStillLive reports whether any loaded frame uses shared.
func (e *Engine) sharedStillLive(shared *sharedStates) bool {
	for _, ctx := range e.istack {
		if ctx.shared == shared {
			return true
		}
	}
	return false
}

// unloadContext finishes a frame popped by RET: moves its return values to
// the caller (or the result stack) and releases its slot references.
func (e *Engine) unloadContext(ctx *ExecutionContext) {
	cur := e.Context()
	target := e.resultStack
	if cur != nil {
		target = cur.Stack()
	}
	if !ctx.sharesStackWith(cur) {
		if ctx.rvCount >= 0 && ctx.Stack().Len() != ctx.rvCount {
			// The frame is already off the invocation stack; its
			// references must be released even if this gets caught.
			n := ctx.Stack().Len()
			e.discardContext(ctx)
			throwf(FaultInvalidOperand, "returned %d values, declared %d", n, ctx.rvCount)
		}
		ctx.Stack().MoveTo(target, -1)
	}
	ctx.releaseSlots(e.sharedStillLive(ctx.shared))
}

// discardContext drops a frame during exception unwinding. Nothing is
// returned to the caller.
func (e *Engine) discardContext(ctx *ExecutionContext) {
	if !e.sharedStillLive(ctx.shared) {
		ctx.Stack().Clear()
	}
	ctx.releaseSlots(e.sharedStillLive(ctx.shared))
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Execute runs until the engine halts or faults. It returns the fault
// reason, or nil on HALT.
func (e *Engine) Execute() error {
	return e.run(-1)
}

// ExecuteWithBudget runs at most budget instructions, entering BREAK if the
// budget is exhausted first. Calling it again resumes.
func (e *Engine) ExecuteWithBudget(budget int) error {
	return e.run(budget)
}

func (e *Engine) run(budget int) error {
	if len(e.istack) == 0 && e.state == StateNone {
		return ErrNoScript
	}
	if e.state == StateBreak {
		e.state = StateNone
	}
	for e.state == StateNone {
		if budget == 0 {
			e.state = StateBreak
			return nil
		}
		if budget > 0 {
			budget--
		}
		e.step()
	}
	return e.faultErr
}

// Step executes exactly one instruction. It is a no-op once the engine has
// halted or faulted.
func (e *Engine) Step() error {
	if e.state == StateHalt || e.state == StateFault {
		return e.faultErr
	}
	if len(e.istack) == 0 {
		return ErrNoScript
	}
	e.state = StateNone
	e.step()
	if e.state == StateNone {
		e.state = StateBreak
	}
	return e.faultErr
}

// step fetches, decodes and executes one instruction. This is the single
// recovery point for handler panics.
func (e *Engine) step() {
	defer func() {
		if r := recover(); r != nil {
			e.recoverPanic(r)
		}
	}()

	ctx := e.Context()
	in := ctx.currentInstruction()
	e.jumping = false
	e.execute(ctx, in)
	if !e.jumping && e.Context() == ctx {
		ctx.ip = in.Next()
	}
	e.postStep()
}

// postStep enforces the reference ledger limits, sweeping dead cycles first.
func (e *Engine) postStep() {
	if e.state != StateNone {
		return
	}
	if e.rc.size > e.limits.MaxStackSize {
		if e.rc.checkZeroReferred() > e.limits.MaxStackSize {
			throwf(FaultStackSizeExceeded, "%d live references exceed limit %d", e.rc.size, e.limits.MaxStackSize)
		}
	}
	if len(e.rc.tracked) > e.limits.MaxReferenceCount {
		e.rc.checkZeroReferred()
		if len(e.rc.tracked) > e.limits.MaxReferenceCount {
			throwf(FaultReferenceCountExceeded, "%d tracked items exceed limit %d", len(e.rc.tracked), e.limits.MaxReferenceCount)
		}
	}
}

// recoverPanic classifies a handler panic: catchable VM errors become script
// exceptions, everything else faults the engine.
func (e *Engine) recoverPanic(r any) {
	verr, ok := r.(*VMError)
	if !ok {
		e.fault(fmt.Errorf("internal error: %v", r))
		return
	}
	if verr.Fatal() {
		e.fault(verr)
		return
	}
	// Route the failure through the exception machinery. The unwinder
	// itself runs under its own recovery so an uncaught exception or a
	// nesting violation lands in FAULT.
	func() {
		defer func() {
			if r := recover(); r != nil {
				if inner, ok := r.(*VMError); ok {
					e.fault(inner)
					return
				}
				e.fault(fmt.Errorf("internal error: %v", r))
			}
		}()
		e.throwPayload(ByteString(verr.Error()))
	}()
}

// fault transitions to FAULT and records the reason.
func (e *Engine) fault(err error) {
	e.state = StateFault
	e.faultErr = err
	if e.uncaught != nil {
		e.rc.removeStackReference(e.uncaught)
		e.uncaught = nil
	}
}

// halt transitions to HALT.
func (e *Engine) halt() {
	e.state = StateHalt
}

// ---------------------------------------------------------------------------
// Exception machinery
// ---------------------------------------------------------------------------

// throwPayload raises item as a script exception and unwinds to the nearest
// handler. The ledger holds one reference on the payload while it is in
// flight so a cycle sweep cannot reclaim it.
func (e *Engine) throwPayload(item StackItem) {
	e.uncaught = item
	e.rc.addStackReference(item, 1)
	e.handleException()
}

// handleException walks the invocation stack from the current frame outward
// looking for a try region able to take the pending exception. Regions
// already running their finally block, and catch blocks without a finally
// that are themselves throwing, are closed and skipped. When a handler is
// found, every frame above it is discarded.
func (e *Engine) handleException() {
	pop := 0
	for i := len(e.istack) - 1; i >= 0; i-- {
		ctx := e.istack[i]
		for len(ctx.tryStack) > 0 {
			t := ctx.currentTry()
			if t.state == tryStateFinally || (t.state == tryStateCatch && !t.HasFinally()) {
				ctx.popTry()
				continue
			}
			for ; pop > 0; pop-- {
				e.discardContext(e.popContext())
			}
			if t.state == tryStateTry && t.HasCatch() {
				t.state = tryStateCatch
				ctx.Stack().truncate(t.stackDepth)
				ctx.Stack().Push(e.uncaught)
				e.rc.removeStackReference(e.uncaught)
				e.uncaught = nil
				ctx.jump(t.catchPos)
			} else {
				t.state = tryStateFinally
				ctx.jump(t.finallyPos)
			}
			e.jumping = true
			return
		}
		pop++
	}
	e.fault(&VMError{Kind: FaultThrow, Msg: fmt.Sprintf("uncaught exception: %s", itemString(e.uncaught))})
}

// executeEndTry leaves the try or catch section of the innermost region.
func (e *Engine) executeEndTry(ctx *ExecutionContext, endOffset int) {
	t := ctx.currentTry()
	if t == nil {
		throwf(FaultInvalidOperand, "ENDTRY outside try region")
	}
	if t.state == tryStateFinally {
		throwf(FaultInvalidOperand, "ENDTRY inside finally block")
	}
	endPos := ctx.IP() + endOffset
	if t.HasFinally() {
		t.state = tryStateFinally
		t.endPos = endPos
		ctx.jump(t.finallyPos)
	} else {
		ctx.popTry()
		ctx.jump(endPos)
	}
	e.jumping = true
}

// executeEndFinally leaves a finally block: resume after the region when no
// exception is pending, otherwise continue unwinding.
func (e *Engine) executeEndFinally(ctx *ExecutionContext) {
	t := ctx.currentTry()
	if t == nil || t.state != tryStateFinally {
		throwf(FaultInvalidOperand, "ENDFINALLY outside finally block")
	}
	ctx.popTry()
	if e.uncaught == nil {
		ctx.jump(t.endPos)
		e.jumping = true
		return
	}
	e.handleException()
}

// ---------------------------------------------------------------------------
// Frame transitions
// ---------------------------------------------------------------------------

// executeCall pushes a CALL frame at pos sharing the caller's stack.
func (e *Engine) executeCall(ctx *ExecutionContext, pos int) {
	if pos < 0 || pos >= ctx.Script().Len() {
		throwf(FaultInvalidJumpTarget, "call to %d outside script of %d bytes", pos, ctx.Script().Len())
	}
	in := ctx.currentInstruction()
	ctx.ip = in.Next()
	callee := ctx.cloneAtOffset(pos, -1)
	callee.jump(pos)
	e.pushContext(callee)
	e.jumping = true
}

// executeRet pops the current frame. The engine halts when the last frame
// returns.
func (e *Engine) executeRet() {
	ctx := e.popContext()
	e.unloadContext(ctx)
	if len(e.istack) == 0 {
		e.halt()
	}
	e.jumping = true
}

// executeSyscall dispatches a host function by identifier.
func (e *Engine) executeSyscall(id uint32) {
	desc, ok := e.interops[id]
	if !ok {
		throwf(FaultInvalidOperand, "unknown syscall 0x%08X", id)
	}
	desc.Handler(e)
}

// executeCallToken resolves a call token and loads the target script as a
// fresh frame with its own stack.
func (e *Engine) executeCallToken(ctx *ExecutionContext, token uint16) {
	if e.tokens == nil {
		throwf(FaultInvalidToken, "no token resolver installed")
	}
	script, err := e.tokens.ResolveToken(token)
	if err != nil {
		throwf(FaultInvalidToken, "token %d: %v", token, err)
	}
	in := ctx.currentInstruction()
	ctx.ip = in.Next()
	e.loadScriptWithRV(script, -1)
	e.jumping = true
}
