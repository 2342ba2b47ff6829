package vm

import (
	"math"
	"math/big"
)

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// execute runs a single decoded instruction against the current frame.
func (e *Engine) execute(ctx *ExecutionContext, in *Instruction) {
	stack := ctx.Stack()
	switch in.Opcode {

	// Constants
	case OpPushInt8, OpPushInt16, OpPushInt32, OpPushInt64, OpPushInt128, OpPushInt256:
		stack.Push(NewInteger(bytesToBigInt(in.Operand)))
	case OpPushTrue:
		stack.Push(itemTrue)
	case OpPushFalse:
		stack.Push(itemFalse)
	case OpPushA:
		target := int(in.I32())
		if target < 0 || target >= ctx.Script().Len() {
			throwf(FaultInvalidJumpTarget, "PUSHA target %d outside script", target)
		}
		stack.Push(NewPointer(ctx.Script(), target))
	case OpPushNull:
		stack.Push(itemNull)
	case OpPushData1, OpPushData2, OpPushData4:
		e.limits.assertItemSize(len(in.Operand))
		stack.Push(ByteString(in.Operand))
	case OpPushM1:
		stack.Push(NewIntegerFromInt64(-1))
	case OpPush0, OpPush1, OpPush2, OpPush3, OpPush4, OpPush5, OpPush6, OpPush7,
		OpPush8, OpPush9, OpPush10, OpPush11, OpPush12, OpPush13, OpPush14,
		OpPush15, OpPush16:
		stack.Push(NewIntegerFromInt64(int64(in.Opcode) - int64(OpPush0)))

	// Flow control
	case OpNop:
	case OpJmp:
		e.jumpRelative(ctx, in, int(in.I8()))
	case OpJmpL:
		e.jumpRelative(ctx, in, int(in.I32()))
	case OpJmpIf:
		e.jumpIf(ctx, in, int(in.I8()), true)
	case OpJmpIfL:
		e.jumpIf(ctx, in, int(in.I32()), true)
	case OpJmpIfNot:
		e.jumpIf(ctx, in, int(in.I8()), false)
	case OpJmpIfNotL:
		e.jumpIf(ctx, in, int(in.I32()), false)
	case OpJmpEq:
		e.jumpCompare(ctx, in, int(in.I8()), func(c int) bool { return c == 0 })
	case OpJmpEqL:
		e.jumpCompare(ctx, in, int(in.I32()), func(c int) bool { return c == 0 })
	case OpJmpNe:
		e.jumpCompare(ctx, in, int(in.I8()), func(c int) bool { return c != 0 })
	case OpJmpNeL:
		e.jumpCompare(ctx, in, int(in.I32()), func(c int) bool { return c != 0 })
	case OpJmpGt:
		e.jumpCompare(ctx, in, int(in.I8()), func(c int) bool { return c > 0 })
	case OpJmpGtL:
		e.jumpCompare(ctx, in, int(in.I32()), func(c int) bool { return c > 0 })
	case OpJmpGe:
		e.jumpCompare(ctx, in, int(in.I8()), func(c int) bool { return c >= 0 })
	case OpJmpGeL:
		e.jumpCompare(ctx, in, int(in.I32()), func(c int) bool { return c >= 0 })
	case OpJmpLt:
		e.jumpCompare(ctx, in, int(in.I8()), func(c int) bool { return c < 0 })
	case OpJmpLtL:
		e.jumpCompare(ctx, in, int(in.I32()), func(c int) bool { return c < 0 })
	case OpJmpLe:
		e.jumpCompare(ctx, in, int(in.I8()), func(c int) bool { return c <= 0 })
	case OpJmpLeL:
		e.jumpCompare(ctx, in, int(in.I32()), func(c int) bool { return c <= 0 })
	case OpCall:
		e.executeCall(ctx, in.Position()+int(in.I8()))
	case OpCallL:
		e.executeCall(ctx, in.Position()+int(in.I32()))
	case OpCallA:
		ptr, ok := stack.Pop().(Pointer)
		if !ok {
			throwf(FaultTypeMismatch, "CALLA needs a pointer")
		}
		if ptr.Script() != ctx.Script() {
			throwf(FaultInvalidOperand, "CALLA pointer belongs to another script")
		}
		e.executeCall(ctx, ptr.Position())
	case OpCallT:
		e.executeCallToken(ctx, in.U16())
	case OpAbort:
		throwf(FaultAbort, "ABORT at position %d", in.Position())
	case OpAssert:
		if !stack.Pop().Bool() {
			throwf(FaultAbort, "ASSERT failed at position %d", in.Position())
		}
	case OpThrow:
		e.throwPayload(stack.Pop())
	case OpTry:
		e.executeTry(ctx, in, int(in.I8()), int(in.I8At(1)))
	case OpTryL:
		e.executeTry(ctx, in, int(in.I32()), int(in.I32At(4)))
	case OpEndTry:
		e.executeEndTry(ctx, int(in.I8()))
	case OpEndTryL:
		e.executeEndTry(ctx, int(in.I32()))
	case OpEndFinally:
		e.executeEndFinally(ctx)
	case OpRet:
		e.executeRet()
	case OpSyscall:
		e.executeSyscall(in.U32())

	// Stack
	case OpDepth:
		stack.Push(NewIntegerFromInt64(int64(stack.Len())))
	case OpDrop:
		stack.Pop()
	case OpNip:
		stack.Remove(1)
	case OpXDrop:
		n := popCount(stack)
		stack.Remove(n)
	case OpClear:
		stack.Clear()
	case OpDup:
		stack.Push(stack.Peek(0))
	case OpOver:
		stack.Push(stack.Peek(1))
	case OpPick:
		n := popCount(stack)
		stack.Push(stack.Peek(n))
	case OpTuck:
		stack.Insert(2, stack.Peek(0))
	case OpSwap:
		stack.Push(stack.Remove(1))
	case OpRot:
		stack.Push(stack.Remove(2))
	case OpRoll:
		n := popCount(stack)
		if n > 0 {
			stack.Push(stack.Remove(n))
		}
	case OpReverse3:
		stack.Reverse(3)
	case OpReverse4:
		stack.Reverse(4)
	case OpReverseN:
		n := popCount(stack)
		stack.Reverse(n)

	// Slots
	case OpInitSSlot:
		n := int(in.U8())
		if n == 0 {
			throwf(FaultInvalidOperand, "INITSSLOT with zero count")
		}
		if ctx.shared.staticFields != nil {
			throwf(FaultInvalidOperand, "static fields already initialized")
		}
		ctx.shared.staticFields = newSlot(e.rc, n)
	case OpInitSlot:
		e.executeInitSlot(ctx, int(in.U8()), int(in.U8At(1)))
	case OpLdSFld0, OpLdSFld1, OpLdSFld2, OpLdSFld3, OpLdSFld4, OpLdSFld5, OpLdSFld6:
		stack.Push(ctx.shared.staticFields.Get(int(in.Opcode - OpLdSFld0)))
	case OpLdSFld:
		stack.Push(ctx.shared.staticFields.Get(int(in.U8())))
	case OpStSFld0, OpStSFld1, OpStSFld2, OpStSFld3, OpStSFld4, OpStSFld5, OpStSFld6:
		ctx.shared.staticFields.Set(int(in.Opcode-OpStSFld0), stack.Pop())
	case OpStSFld:
		ctx.shared.staticFields.Set(int(in.U8()), stack.Pop())
	case OpLdLoc0, OpLdLoc1, OpLdLoc2, OpLdLoc3, OpLdLoc4, OpLdLoc5, OpLdLoc6:
		stack.Push(ctx.locals.Get(int(in.Opcode - OpLdLoc0)))
	case OpLdLoc:
		stack.Push(ctx.locals.Get(int(in.U8())))
	case OpStLoc0, OpStLoc1, OpStLoc2, OpStLoc3, OpStLoc4, OpStLoc5, OpStLoc6:
		ctx.locals.Set(int(in.Opcode-OpStLoc0), stack.Pop())
	case OpStLoc:
		ctx.locals.Set(int(in.U8()), stack.Pop())
	case OpLdArg0, OpLdArg1, OpLdArg2, OpLdArg3, OpLdArg4, OpLdArg5, OpLdArg6:
		stack.Push(ctx.arguments.Get(int(in.Opcode - OpLdArg0)))
	case OpLdArg:
		stack.Push(ctx.arguments.Get(int(in.U8())))
	case OpStArg0, OpStArg1, OpStArg2, OpStArg3, OpStArg4, OpStArg5, OpStArg6:
		ctx.arguments.Set(int(in.Opcode-OpStArg0), stack.Pop())
	case OpStArg:
		ctx.arguments.Set(int(in.U8()), stack.Pop())

	// Splice
	case OpNewBuffer, OpMemCpy, OpCat, OpSubStr, OpLeft, OpRight:
		e.executeSplice(ctx, in.Opcode)

	// Bitwise logic
	case OpInvert, OpAnd, OpOr, OpXor, OpEqual, OpNotEqual:
		e.executeBitwise(ctx, in.Opcode)

	// Arithmetic
	case OpSign, OpAbs, OpNegate, OpInc, OpDec, OpAdd, OpSub, OpMul, OpDiv,
		OpMod, OpPow, OpSqrt, OpModMul, OpModPow, OpShl, OpShr, OpNot,
		OpBoolAnd, OpBoolOr, OpNz, OpNumEqual, OpNumNotEqual, OpLt, OpLe,
		OpGt, OpGe, OpMin, OpMax, OpWithin:
		e.executeNumeric(ctx, in.Opcode)

	// Compound types
	case OpPackMap, OpPackStruct, OpPack, OpUnpack, OpNewArray0, OpNewArray,
		OpNewArrayT, OpNewStruct0, OpNewStruct, OpNewMap, OpSize, OpHasKey,
		OpKeys, OpValues, OpPickItem, OpAppend, OpSetItem, OpReverseItems,
		OpRemove, OpClearItems, OpPopItem:
		e.executeCompound(ctx, in)

	// Types
	case OpIsNull:
		_, isNull := stack.Pop().(Null)
		stack.Push(makeBool(isNull))
	case OpIsType:
		t := ItemType(in.U8())
		if !t.IsValid() {
			throwf(FaultInvalidOperand, "ISTYPE with invalid type 0x%02X", in.U8())
		}
		item := stack.Pop()
		stack.Push(makeBool(item.Type() == t))
	case OpConvert:
		e.executeConvert(ctx, ItemType(in.U8()))

	// Extensions
	case OpAbortMsg:
		msg := stack.Pop().Bytes()
		throwf(FaultAbort, "ABORTMSG at position %d: %s", in.Position(), msg)
	case OpAssertMsg:
		msg := stack.Pop().Bytes()
		if !stack.Pop().Bool() {
			throwf(FaultAbort, "ASSERTMSG failed at position %d: %s", in.Position(), msg)
		}

	default:
		throwf(FaultInvalidOpcode, "undefined opcode 0x%02X at position %d", byte(in.Opcode), in.Position())
	}
}

// ---------------------------------------------------------------------------
// Flow control helpers
// ---------------------------------------------------------------------------

// jumpRelative transfers control to the instruction at offset from in.
func (e *Engine) jumpRelative(ctx *ExecutionContext, in *Instruction, offset int) {
	ctx.jump(in.Position() + offset)
	e.jumping = true
}

// jumpIf pops a condition and branches when it matches want.
func (e *Engine) jumpIf(ctx *ExecutionContext, in *Instruction, offset int, want bool) {
	if ctx.Stack().Pop().Bool() == want {
		e.jumpRelative(ctx, in, offset)
	}
}

// jumpCompare pops two integers and branches on their ordering.
func (e *Engine) jumpCompare(ctx *ExecutionContext, in *Instruction, offset int, take func(int) bool) {
	b := ctx.Stack().Pop().BigInt()
	a := ctx.Stack().Pop().BigInt()
	if take(a.Cmp(b)) {
		e.jumpRelative(ctx, in, offset)
	}
}

// executeTry opens a try region. Offsets of zero mean the block is absent;
// at least one of catch and finally must be present.
func (e *Engine) executeTry(ctx *ExecutionContext, in *Instruction, catchOffset, finallyOffset int) {
	if catchOffset == 0 && finallyOffset == 0 {
		throwf(FaultInvalidOperand, "TRY without catch or finally")
	}
	catchPos, finallyPos := -1, -1
	if catchOffset != 0 {
		catchPos = in.Position() + catchOffset
	}
	if finallyOffset != 0 {
		finallyPos = in.Position() + finallyOffset
	}
	ctx.pushTry(newTryContext(catchPos, finallyPos, ctx.Stack().Len()), e.limits.MaxTryNestingDepth)
}

// executeInitSlot allocates the frame's locals and pops its arguments, first
// popped item becoming argument zero.
func (e *Engine) executeInitSlot(ctx *ExecutionContext, localCount, argCount int) {
	if localCount == 0 && argCount == 0 {
		throwf(FaultInvalidOperand, "INITSLOT with zero counts")
	}
	if ctx.locals != nil || ctx.arguments != nil {
		throwf(FaultInvalidOperand, "slots already initialized")
	}
	if localCount > 0 {
		ctx.locals = newSlot(e.rc, localCount)
	}
	if argCount > 0 {
		args := make([]StackItem, argCount)
		for i := 0; i < argCount; i++ {
			args[i] = ctx.Stack().Pop()
		}
		ctx.arguments = newSlotFromItems(e.rc, args)
	}
}

// ---------------------------------------------------------------------------
// Integer helpers
// ---------------------------------------------------------------------------

// popCount pops a non-negative count that fits the native int type.
func popCount(s *EvalStack) int {
	n := popInt(s)
	if n < 0 {
		throwf(FaultInvalidOperand, "negative count %d", n)
	}
	return n
}

// popInt pops an integer that fits the native int type.
func popInt(s *EvalStack) int {
	v := s.Pop().BigInt()
	if !v.IsInt64() {
		throwf(FaultInvalidOperand, "value %s does not fit a machine word", v)
	}
	n := v.Int64()
	if n < math.MinInt32 || n > math.MaxInt32 {
		throwf(FaultInvalidOperand, "value %d out of operand range", n)
	}
	return int(n)
}

// pushInt pushes v after enforcing the integer wire width.
func (e *Engine) pushInt(ctx *ExecutionContext, v *big.Int) {
	assertIntegerWidth(v, &e.limits)
	ctx.Stack().Push(NewInteger(v))
}
