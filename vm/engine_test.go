package vm

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
)

func assemble(build func(b *ScriptBuilder)) *Script {
	b := NewScriptBuilder()
	build(b)
	return b.ToScript()
}

func runScript(t *testing.T, build func(b *ScriptBuilder)) *Engine {
	t.Helper()
	e := NewEngine()
	e.LoadScript(assemble(build))
	e.Execute()
	return e
}

func expectHalt(t *testing.T, e *Engine) {
	t.Helper()
	if e.State() != StateHalt {
		t.Fatalf("state = %s, want HALT (fault: %v)", e.State(), e.FaultError())
	}
}

func expectFaultKind(t *testing.T, e *Engine, kind FaultKind) {
	t.Helper()
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
	var verr *VMError
	if !errors.As(e.FaultError(), &verr) {
		t.Fatalf("fault error %v is not a *VMError", e.FaultError())
	}
	if verr.Kind != kind {
		t.Fatalf("fault kind = %v, want %v (%v)", verr.Kind, kind, verr)
	}
}

func popResultInt(t *testing.T, e *Engine) int64 {
	t.Helper()
	item := e.PopResult()
	v, ok := item.(Integer)
	if !ok {
		t.Fatalf("result item is %s, want Integer", item.Type())
	}
	if !v.BigInt().IsInt64() {
		t.Fatalf("result %s does not fit int64", v.BigInt())
	}
	return v.BigInt().Int64()
}

// ---------------------------------------------------------------------------
// Basic execution
// ---------------------------------------------------------------------------

func TestAddHalts(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush2)
		b.Emit(OpPush3)
		b.Emit(OpAdd)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if e.ResultStack().Len() != 1 {
		t.Fatalf("result stack depth = %d, want 1", e.ResultStack().Len())
	}
	if got := popResultInt(t, e); got != 5 {
		t.Fatalf("result = %d, want 5", got)
	}
}

func TestImplicitReturnAtScriptEnd(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush7)
		// No RET: running off the end returns.
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 7 {
		t.Fatalf("result = %d, want 7", got)
	}
}

func TestExecuteWithoutScript(t *testing.T) {
	e := NewEngine()
	if err := e.Execute(); !errors.Is(err, ErrNoScript) {
		t.Fatalf("Execute() = %v, want ErrNoScript", err)
	}
}

func TestJumpSkipsInstruction(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitJump(OpJmpL, 6) // over PUSH1 (skipped)
		b.Emit(OpPush1)
		b.Emit(OpPush9)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 9 {
		t.Fatalf("result = %d, want 9", got)
	}
	if e.ResultStack().Len() != 0 {
		t.Fatalf("PUSH1 was not skipped")
	}
}

func TestConditionalJump(t *testing.T) {
	for _, cond := range []bool{true, false} {
		e := runScript(t, func(b *ScriptBuilder) {
			b.EmitPushBool(cond)
			b.EmitJump(OpJmpIfL, 7) // to the PUSH2 branch
			b.Emit(OpPush1)
			b.Emit(OpRet)
			b.Emit(OpPush2)
			b.Emit(OpRet)
		})
		expectHalt(t, e)
		want := int64(1)
		if cond {
			want = 2
		}
		if got := popResultInt(t, e); got != want {
			t.Fatalf("cond %t: result = %d, want %d", cond, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Exception handling
// ---------------------------------------------------------------------------

func TestThrowCaughtTruncatesStack(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush1)                 //  0: below the try, survives
		b.EmitTry(18, 0)                //  1: catch at 19
		b.Emit(OpPush2)                 // 10: discarded on catch entry
		b.Emit(OpPush3)                 // 11: discarded on catch entry
		b.EmitPushData([]byte("boom"))  // 12
		b.Emit(OpThrow)                 // 18
		b.EmitEndTry(5)                 // 19: catch block, end at 24
		b.Emit(OpRet)                   // 24
	})
	expectHalt(t, e)
	if e.ResultStack().Len() != 2 {
		t.Fatalf("result stack depth = %d, want 2", e.ResultStack().Len())
	}
	payload, ok := e.PopResult().(ByteString)
	if !ok || string(payload) != "boom" {
		t.Fatalf("payload = %v, want boom", payload)
	}
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("preserved item = %d, want 1", got)
	}
}

func TestDivisionByZeroIsCatchable(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitTry(12, 0) //  0: catch at 12
		b.Emit(OpPush1)  //  9
		b.Emit(OpPush0)  // 10
		b.Emit(OpDiv)    // 11
		b.Emit(OpDrop)   // 12: catch, drop the payload
		b.Emit(OpPush7)  // 13
		b.EmitEndTry(5)  // 14: end at 19
		b.Emit(OpRet)    // 19
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 7 {
		t.Fatalf("result = %d, want 7", got)
	}
}

func TestDivisionByZeroUncaught(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpPush0)
		b.Emit(OpDiv)
	})
	expectFaultKind(t, e, FaultThrow)
	if !strings.Contains(e.FaultError().Error(), "uncaught") {
		t.Fatalf("fault = %v, want an uncaught exception", e.FaultError())
	}
}

func TestFinallyRunsOnNormalExit(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitTry(0, 15)     //  0: finally at 15
		b.Emit(OpPush1)      //  9
		b.EmitEndTry(7)      // 10: end at 17
		b.Emit(OpPush9)      // 15: finally block
		b.Emit(OpEndFinally) // 16
		b.Emit(OpRet)        // 17
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 9 {
		t.Fatalf("finally result = %d, want 9", got)
	}
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("try result = %d, want 1", got)
	}
}

func TestFinallyRunsBeforeOuterCatch(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitWithOperand(OpInitSSlot, 1) //  0
		b.EmitTry(25, 0)                  //  2: outer, catch at 27
		b.EmitTry(0, 13)                  // 11: inner, finally at 24
		b.EmitPushData([]byte("e"))       // 20
		b.Emit(OpThrow)                   // 23
		b.Emit(OpPush5)                   // 24: inner finally
		b.Emit(OpStSFld0)                 // 25
		b.Emit(OpEndFinally)              // 26: rethrows to the outer catch
		b.Emit(OpDrop)                    // 27: outer catch, drop payload
		b.Emit(OpLdSFld0)                 // 28
		b.EmitEndTry(5)                   // 29: end at 34
		b.Emit(OpRet)                     // 34
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 5 {
		t.Fatalf("finally marker = %d, want 5", got)
	}
}

func TestUncaughtExceptionThroughFinally(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitTry(0, 13)            //  0: finally at 13
		b.EmitPushData([]byte("x")) //  9
		b.Emit(OpThrow)             // 12
		b.Emit(OpPush5)             // 13: finally
		b.Emit(OpEndFinally)        // 14: exception still pending
	})
	expectFaultKind(t, e, FaultThrow)
}

func TestUncaughtThrowFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushData([]byte("nobody home"))
		b.Emit(OpThrow)
	})
	expectFaultKind(t, e, FaultThrow)
	if !strings.Contains(e.FaultError().Error(), "uncaught exception") {
		t.Fatalf("fault = %v", e.FaultError())
	}
}

func TestEndTryOutsideRegionFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitEndTry(5)
	})
	expectFaultKind(t, e, FaultThrow) // catchable fault, nothing catches it
}

func TestTryNestingDepthIsFatal(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxTryNestingDepth = 4
	e := NewEngineWithLimits(limits)
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		for i := 0; i < 5; i++ {
			b.EmitTry(100, 0)
		}
		b.Emit(OpRet)
	}))
	e.Execute()
	expectFaultKind(t, e, FaultTryNestingExceeded)
}

// ---------------------------------------------------------------------------
// Fatal faults
// ---------------------------------------------------------------------------

func TestAbortIsNotCatchable(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitTry(10, 0) //  0: catch at 10
		b.Emit(OpAbort)  //  9
		b.Emit(OpPush1)  // 10: catch, must never run
		b.Emit(OpRet)    // 11
	})
	expectFaultKind(t, e, FaultAbort)
}

func TestAssertFailureAborts(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush0)
		b.Emit(OpAssert)
	})
	expectFaultKind(t, e, FaultAbort)

	e = runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpAssert)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
}

func TestAbortMsgCarriesMessage(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("bad state")
		b.Emit(OpAbortMsg)
	})
	expectFaultKind(t, e, FaultAbort)
	if !strings.Contains(e.FaultError().Error(), "bad state") {
		t.Fatalf("fault = %v, want the abort message", e.FaultError())
	}
}

func TestInvocationDepthIsFatalThroughTry(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitTry(14, 0) //  0: catch at 14
		b.EmitCall(0)    //  9: calls itself forever
		b.Emit(OpPush1)  // 14: catch, must never run
		b.Emit(OpRet)    // 15
	})
	expectFaultKind(t, e, FaultInvocationDepthExceeded)
}

func TestStackSizeIsFatalThroughTry(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxStackSize = 8
	e := NewEngineWithLimits(limits)
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.EmitTry(12, 0)                      //  0: catch at 12
		b.Emit(OpPush1)                       //  9
		b.EmitWithOperand(OpJmp, byte(0xFF))  // 10: offset -1, back to PUSH1
		b.Emit(OpPush0)                       // 12: catch, must never run
		b.Emit(OpRet)                         // 13
	}))
	e.Execute()
	expectFaultKind(t, e, FaultStackSizeExceeded)
}

func TestReferenceCountIsFatalThroughTry(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxReferenceCount = 4
	e := NewEngineWithLimits(limits)
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.EmitTry(17, 0) //  0: catch at 17
		for i := 0; i < 8; i++ {
			b.Emit(OpNewArray0) //  9..16: every array stays stack-referenced
		}
		b.Emit(OpPush0) // 17: catch, must never run
		b.Emit(OpRet)   // 18
	}))
	e.Execute()
	expectFaultKind(t, e, FaultReferenceCountExceeded)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func TestCallSharesEvaluationStack(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush2) // 0
		b.Emit(OpPush3) // 1
		b.EmitCall(6)   // 2: to 8
		b.Emit(OpRet)   // 7
		b.Emit(OpAdd)   // 8: callee sees the caller's operands
		b.Emit(OpRet)   // 9
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 5 {
		t.Fatalf("result = %d, want 5", got)
	}
}

func TestCallAWithPointer(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitWithOperand(OpPushA, 7, 0, 0, 0) // 0: pointer to 7
		b.Emit(OpCallA)                        // 5
		b.Emit(OpRet)                          // 6
		b.Emit(OpPush8)                        // 7
		b.Emit(OpRet)                          // 8
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 8 {
		t.Fatalf("result = %d, want 8", got)
	}
}

func TestCallANeedsPointer(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpCallA)
	})
	expectFaultKind(t, e, FaultThrow)
}

type staticResolver map[uint16]*Script

func (r staticResolver) ResolveToken(token uint16) (*Script, error) {
	s, ok := r[token]
	if !ok {
		return nil, fmt.Errorf("no script for token %d", token)
	}
	return s, nil
}

func TestCallTokenLoadsFreshFrame(t *testing.T) {
	callee := assemble(func(b *ScriptBuilder) {
		b.Emit(OpPush7)
		b.Emit(OpRet)
	})
	e := NewEngine()
	e.SetTokenResolver(staticResolver{3: callee})
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.EmitCallToken(3)
		b.Emit(OpRet)
	}))
	if err := e.Execute(); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 7 {
		t.Fatalf("result = %d, want 7", got)
	}
}

func TestCallTokenUnknownFaults(t *testing.T) {
	e := NewEngine()
	e.SetTokenResolver(staticResolver{})
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.EmitCallToken(9)
	}))
	e.Execute()
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

func TestCallTokenWithoutResolverFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitCallToken(1)
	})
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

func TestReturnValueCountEnforced(t *testing.T) {
	e := NewEngine()
	e.loadScriptWithRV(assemble(func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpPush2)
		b.Emit(OpRet)
	}), 1)
	e.Execute()
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT for surplus return values", e.State())
	}

	e = NewEngine()
	e.loadScriptWithRV(assemble(func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpRet)
	}), 1)
	e.Execute()
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("result = %d, want 1", got)
	}
}

func TestCaughtReturnCountFaultReleasesFrame(t *testing.T) {
	callee := assemble(func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpPush2)
		b.Emit(OpRet)
	})
	e := NewEngine()
	e.RegisterInterop("test.invoke", func(e *Engine) {
		e.loadScriptWithRV(callee, 1)
	})
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.EmitTry(19, 0)             //  0: catch at 19
		b.EmitSyscall("test.invoke") //  9: callee returns 2, declared 1
		b.EmitEndTry(8)              // 14
		b.Emit(OpDrop)               // 19: catch, drop the payload
		b.Emit(OpPush7)              // 20
		b.Emit(OpRet)                // 21
	}))
	if err := e.Execute(); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 7 {
		t.Fatalf("result = %d, want 7", got)
	}
	// The failed frame's operands must have left the ledger.
	if e.rc.size != 0 {
		t.Fatalf("ledger size = %d after the result was popped, want 0", e.rc.size)
	}
}

// ---------------------------------------------------------------------------
// Syscalls
// ---------------------------------------------------------------------------

func TestSyscallSha256(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("abc")
		b.EmitSyscall(SyscallSha256)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	digest, ok := e.PopResult().(ByteString)
	if !ok {
		t.Fatalf("result is not a ByteString")
	}
	want := sha256.Sum256([]byte("abc"))
	if string(digest) != string(want[:]) {
		t.Fatalf("digest = %x, want %x", digest, want)
	}
}

func TestSyscallMurmur32(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("test")
		b.EmitPushInt64(0)
		b.EmitSyscall(SyscallMurmur32)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 0xba6bd213 {
		t.Fatalf("hash = %#x, want 0xba6bd213", got)
	}
}

func TestRegisterInterop(t *testing.T) {
	e := NewEngine()
	e.RegisterInterop("Test.Answer", func(e *Engine) {
		e.Push(NewIntegerFromInt64(42))
	})
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.EmitSyscall("Test.Answer")
		b.Emit(OpRet)
	}))
	e.Execute()
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
}

func TestUnknownSyscallFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitSyscall("No.Such.Call")
	})
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

// ---------------------------------------------------------------------------
// Stepping and budgets
// ---------------------------------------------------------------------------

func TestBudgetBreaksAndResumes(t *testing.T) {
	e := NewEngine()
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.EmitJump(OpJmpL, 0) // spins forever
	}))
	if err := e.ExecuteWithBudget(10); err != nil {
		t.Fatalf("ExecuteWithBudget() = %v", err)
	}
	if e.State() != StateBreak {
		t.Fatalf("state = %s, want BREAK", e.State())
	}
	if err := e.ExecuteWithBudget(5); err != nil {
		t.Fatalf("resume = %v", err)
	}
	if e.State() != StateBreak {
		t.Fatalf("state after resume = %s, want BREAK", e.State())
	}
}

func TestBudgetLargeEnoughHalts(t *testing.T) {
	e := NewEngine()
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpRet)
	}))
	if err := e.ExecuteWithBudget(100); err != nil {
		t.Fatalf("ExecuteWithBudget() = %v", err)
	}
	expectHalt(t, e)
}

func TestStepSingleInstruction(t *testing.T) {
	e := NewEngine()
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.Emit(OpPush1)
		b.Emit(OpPush2)
		b.Emit(OpRet)
	}))
	if err := e.Step(); err != nil {
		t.Fatalf("Step() = %v", err)
	}
	if e.State() != StateBreak {
		t.Fatalf("state = %s, want BREAK", e.State())
	}
	if e.Context().Stack().Len() != 1 {
		t.Fatalf("stack depth after one step = %d, want 1", e.Context().Stack().Len())
	}
	e.Step()
	e.Step()
	expectHalt(t, e)
	if e.ResultStack().Len() != 2 {
		t.Fatalf("result depth = %d, want 2", e.ResultStack().Len())
	}
}

// ---------------------------------------------------------------------------
// Value semantics
// ---------------------------------------------------------------------------

func TestStructCopiedOnAppend(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpNewStruct0) //  0: s
		b.Emit(OpDup)        //  1
		b.Emit(OpPush1)      //  2
		b.Emit(OpAppend)     //  3: s = [1]
		b.Emit(OpNewArray0)  //  4: a
		b.Emit(OpTuck)       //  5: a s a
		b.Emit(OpOver)       //  6: a s a s
		b.Emit(OpAppend)     //  7: a = [copy of s]
		b.Emit(OpPush0)      //  8
		b.Emit(OpPush9)      //  9
		b.Emit(OpSetItem)    // 10: s[0] = 9, copy must not change
		b.Emit(OpPush0)      // 11
		b.Emit(OpPickItem)   // 12: a[0]
		b.Emit(OpPush0)      // 13
		b.Emit(OpPickItem)   // 14: a[0][0]
		b.Emit(OpRet)        // 15
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("copied struct element = %d, want 1", got)
	}
}

func TestArraySharedByReference(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpNewArray0)
		b.Emit(OpDup)
		b.Emit(OpDup)
		b.Emit(OpPush5)
		b.Emit(OpAppend) // mutates through one alias
		b.Emit(OpSize)   // observed through the other
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("aliased array size = %d, want 1", got)
	}
	arr, ok := e.PopResult().(*Array)
	if !ok || arr.Len() != 1 {
		t.Fatalf("bottom item should be the mutated array")
	}
}

func TestMapSetAndPickItem(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpNewMap)
		b.Emit(OpDup)
		b.Emit(OpPush1)
		b.Emit(OpPush2)
		b.Emit(OpSetItem)
		b.Emit(OpDup)
		b.Emit(OpPush1)
		b.Emit(OpPickItem)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 2 {
		t.Fatalf("map value = %d, want 2", got)
	}
}

func TestCompoundMapKeyIsCatchable(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitTry(13, 0)    //  0: catch at 13
		b.Emit(OpNewMap)    //  9
		b.Emit(OpNewArray0) // 10
		b.Emit(OpPush1)     // 11
		b.Emit(OpSetItem)   // 12: array key rejected
		b.Emit(OpDrop)      // 13: catch, drop payload
		b.Emit(OpPush1)     // 14
		b.EmitEndTry(5)     // 15: end at 20
		b.Emit(OpRet)       // 20
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("result = %d, want 1", got)
	}
}

func TestIntegerWidthLimit(t *testing.T) {
	// 2^254 encodes in 32 bytes; doubling it needs 33 and must fault.
	huge := new(big.Int).Lsh(big.NewInt(1), 254)
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt(huge)
		b.Emit(OpPush2)
		b.Emit(OpMul)
	})
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT for an oversized integer", e.State())
	}
}

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

func TestLocalSlots(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitWithOperand(OpInitSlot, 2, 0)
		b.Emit(OpPush5)
		b.Emit(OpStLoc0)
		b.Emit(OpLdLoc0)
		b.Emit(OpLdLoc1) // uninitialized local reads as null
		b.Emit(OpIsNull)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if isNull, ok := e.PopResult().(Boolean); !ok || !bool(isNull) {
		t.Fatalf("uninitialized local is not null")
	}
	if got := popResultInt(t, e); got != 5 {
		t.Fatalf("local = %d, want 5", got)
	}
}

func TestArgumentSlots(t *testing.T) {
	// First popped item becomes argument zero.
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpPush2)
		b.Emit(OpPush3)
		b.EmitWithOperand(OpInitSlot, 0, 2)
		b.Emit(OpLdArg0)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 3 {
		t.Fatalf("argument 0 = %d, want 3", got)
	}
}

func TestDoubleInitSlotFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitWithOperand(OpInitSlot, 1, 0)
		b.EmitWithOperand(OpInitSlot, 1, 0)
	})
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

func TestStaticFieldsSharedAcrossCalls(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitWithOperand(OpInitSSlot, 1) //  0
		b.EmitCall(7)                     //  2: to 9
		b.Emit(OpLdSFld0)                 //  7: written by the callee
		b.Emit(OpRet)                     //  8
		b.Emit(OpPush6)                   //  9
		b.Emit(OpStSFld0)                 // 10
		b.Emit(OpRet)                     // 11
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 6 {
		t.Fatalf("static field = %d, want 6", got)
	}
}

// ---------------------------------------------------------------------------
// Reference ledger
// ---------------------------------------------------------------------------

func TestCycleReclaimedUnderPressure(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxStackSize = 16
	e := NewEngineWithLimits(limits)
	// Build a self-referencing array, drop it, then push enough items to
	// cross the limit. The dead cycle must be swept instead of faulting.
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		b.Emit(OpNewArray0)
		b.Emit(OpDup)
		b.Emit(OpDup)
		b.Emit(OpAppend) // the array contains itself
		b.Emit(OpDrop)   // last stack reference gone, one internal ref left
		for i := 0; i < 16; i++ {
			b.Emit(OpPush1)
		}
		b.Emit(OpRet)
	}))
	e.Execute()
	expectHalt(t, e)
	if e.ResultStack().Len() != 16 {
		t.Fatalf("result depth = %d, want 16", e.ResultStack().Len())
	}
}

func TestDroppedMapsWithByteStringKeysReclaimed(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxStackSize = 8
	e := NewEngineWithLimits(limits)
	// Dropped maps still hold primitive keys and values. The sweep must
	// pass over those children rather than treat them as graph nodes.
	e.LoadScript(assemble(func(b *ScriptBuilder) {
		for i := 0; i < 4; i++ {
			b.Emit(OpNewMap)
			b.Emit(OpDup)
			b.EmitPushString("k")
			b.Emit(OpPush1)
			b.Emit(OpSetItem)
			b.Emit(OpDrop)
		}
		b.Emit(OpPush1)
		b.Emit(OpRet)
	}))
	e.Execute()
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("result = %d, want 1", got)
	}
}
