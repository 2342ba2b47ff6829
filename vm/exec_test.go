package vm

import (
	"bytes"
	"testing"
)

// runOp executes a script pushing the given integer operands followed by one
// opcode, and returns the engine after execution.
func runOp(t *testing.T, op Opcode, operands ...int64) *Engine {
	t.Helper()
	return runScript(t, func(b *ScriptBuilder) {
		for _, v := range operands {
			b.EmitPushInt64(v)
		}
		b.Emit(op)
		b.Emit(OpRet)
	})
}

func expectInt(t *testing.T, e *Engine, want int64) {
	t.Helper()
	expectHalt(t, e)
	if got := popResultInt(t, e); got != want {
		t.Fatalf("result = %d, want %d", got, want)
	}
}

func expectBool(t *testing.T, e *Engine, want bool) {
	t.Helper()
	expectHalt(t, e)
	v, ok := e.PopResult().(Boolean)
	if !ok {
		t.Fatalf("result is not a Boolean")
	}
	if bool(v) != want {
		t.Fatalf("result = %t, want %t", bool(v), want)
	}
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		name     string
		op       Opcode
		operands []int64
		want     int64
	}{
		{"add", OpAdd, []int64{2, 3}, 5},
		{"sub", OpSub, []int64{2, 3}, -1},
		{"mul", OpMul, []int64{-4, 3}, -12},
		{"div truncates", OpDiv, []int64{7, 2}, 3},
		{"div truncates toward zero", OpDiv, []int64{-7, 2}, -3},
		{"mod", OpMod, []int64{7, 3}, 1},
		{"mod keeps dividend sign", OpMod, []int64{-7, 3}, -1},
		{"pow", OpPow, []int64{2, 10}, 1024},
		{"sqrt exact", OpSqrt, []int64{9}, 3},
		{"sqrt floors", OpSqrt, []int64{8}, 2},
		{"shl", OpShl, []int64{3, 4}, 48},
		{"shl by zero", OpShl, []int64{7, 0}, 7},
		{"shr", OpShr, []int64{-8, 1}, -4},
		{"sign negative", OpSign, []int64{-9}, -1},
		{"sign zero", OpSign, []int64{0}, 0},
		{"abs", OpAbs, []int64{-5}, 5},
		{"negate", OpNegate, []int64{5}, -5},
		{"inc", OpInc, []int64{41}, 42},
		{"dec", OpDec, []int64{43}, 42},
		{"min", OpMin, []int64{2, 3}, 2},
		{"max", OpMax, []int64{2, 3}, 3},
		{"modmul", OpModMul, []int64{7, 8, 10}, 6},
		{"modpow", OpModPow, []int64{3, 4, 5}, 1},
		{"modpow inverse", OpModPow, []int64{3, -1, 7}, 5},
		{"invert", OpInvert, []int64{0}, -1},
		{"and", OpAnd, []int64{0b1100, 0b1010}, 0b1000},
		{"or", OpOr, []int64{0b1100, 0b1010}, 0b1110},
		{"xor", OpXor, []int64{0b1100, 0b1010}, 0b0110},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			expectInt(t, runOp(t, c.op, c.operands...), c.want)
		})
	}
}

func TestComparisons(t *testing.T) {
	cases := []struct {
		name     string
		op       Opcode
		operands []int64
		want     bool
	}{
		{"lt", OpLt, []int64{1, 2}, true},
		{"lt equal", OpLt, []int64{2, 2}, false},
		{"le", OpLe, []int64{2, 2}, true},
		{"gt", OpGt, []int64{3, 2}, true},
		{"ge", OpGe, []int64{1, 2}, false},
		{"numequal", OpNumEqual, []int64{5, 5}, true},
		{"numnotequal", OpNumNotEqual, []int64{5, 5}, false},
		{"nz", OpNz, []int64{-1}, true},
		{"nz zero", OpNz, []int64{0}, false},
		{"booland", OpBoolAnd, []int64{1, 0}, false},
		{"boolor", OpBoolOr, []int64{1, 0}, true},
		{"not", OpNot, []int64{0}, true},
		{"within", OpWithin, []int64{5, 1, 10}, true},
		{"within lower bound", OpWithin, []int64{1, 1, 10}, true},
		{"within upper bound", OpWithin, []int64{10, 1, 10}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			expectBool(t, runOp(t, c.op, c.operands...), c.want)
		})
	}
}

func TestCompareAgainstNullIsFalse(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushNull()
		b.EmitPushInt64(1)
		b.Emit(OpLt)
		b.Emit(OpRet)
	})
	expectBool(t, e, false)
}

func TestEqualOpcode(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(1)
		b.EmitPushData([]byte{0x01}) // same byte content
		b.Emit(OpEqual)
		b.Emit(OpRet)
	})
	expectBool(t, e, true)

	e = runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpNewArray0)
		b.Emit(OpNewArray0) // distinct arrays are never equal
		b.Emit(OpEqual)
		b.Emit(OpRet)
	})
	expectBool(t, e, false)
}

func TestNegativeShiftFaults(t *testing.T) {
	e := runOp(t, OpShl, 1, -1)
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

func TestShiftBeyondLimitFaults(t *testing.T) {
	e := runOp(t, OpShl, 1, 257)
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

func TestNegativeSqrtFaults(t *testing.T) {
	e := runOp(t, OpSqrt, -1)
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

// ---------------------------------------------------------------------------
// Stack manipulation
// ---------------------------------------------------------------------------

func TestStackShuffles(t *testing.T) {
	// Each script starts from [1 2 3] (3 on top) and ends with RET, so the
	// result stack mirrors the final evaluation stack bottom first.
	cases := []struct {
		name string
		op   Opcode
		want []int64
	}{
		{"drop", OpDrop, []int64{1, 2}},
		{"nip", OpNip, []int64{1, 3}},
		{"dup", OpDup, []int64{1, 2, 3, 3}},
		{"over", OpOver, []int64{1, 2, 3, 2}},
		{"tuck", OpTuck, []int64{1, 3, 2, 3}},
		{"swap", OpSwap, []int64{1, 3, 2}},
		{"rot", OpRot, []int64{2, 3, 1}},
		{"reverse3", OpReverse3, []int64{3, 2, 1}},
		{"depth", OpDepth, []int64{1, 2, 3, 3}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := runOp(t, c.op, 1, 2, 3)
			expectHalt(t, e)
			items := e.ResultStack().Items()
			if len(items) != len(c.want) {
				t.Fatalf("depth = %d, want %d", len(items), len(c.want))
			}
			for i, want := range c.want {
				got := items[i].(Integer).BigInt().Int64()
				if got != want {
					t.Fatalf("stack = %v at %d, want %d", got, i, want)
				}
			}
		})
	}
}

func TestPickAndRoll(t *testing.T) {
	// PICK copies the n-th item, ROLL moves it.
	e := runOp(t, OpPick, 10, 20, 30, 2)
	expectInt(t, e, 10)
	if e.ResultStack().Len() != 3 {
		t.Fatalf("PICK consumed its source")
	}

	e = runOp(t, OpRoll, 10, 20, 30, 2)
	expectInt(t, e, 10)
	if e.ResultStack().Len() != 2 {
		t.Fatalf("ROLL left its source behind")
	}
}

func TestXDropAndClear(t *testing.T) {
	e := runOp(t, OpXDrop, 10, 20, 30, 1)
	expectHalt(t, e)
	items := e.ResultStack().Items()
	if len(items) != 2 || items[1].(Integer).BigInt().Int64() != 30 {
		t.Fatalf("XDROP kept the wrong items: %v", items)
	}

	e = runOp(t, OpClear, 1, 2, 3)
	expectHalt(t, e)
	if e.ResultStack().Len() != 0 {
		t.Fatalf("CLEAR left %d items", e.ResultStack().Len())
	}
}

func TestPopFromEmptyStackFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpDrop)
	})
	expectFaultKind(t, e, FaultThrow) // underflow is catchable, nothing catches
}

// ---------------------------------------------------------------------------
// Splice
// ---------------------------------------------------------------------------

func expectBufferBytes(t *testing.T, e *Engine, want []byte) {
	t.Helper()
	expectHalt(t, e)
	buf, ok := e.PopResult().(*Buffer)
	if !ok {
		t.Fatalf("result is not a Buffer")
	}
	if !bytes.Equal(buf.Data, want) {
		t.Fatalf("buffer = %x, want %x", buf.Data, want)
	}
}

func TestCat(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("foo")
		b.EmitPushString("bar")
		b.Emit(OpCat)
		b.Emit(OpRet)
	})
	expectBufferBytes(t, e, []byte("foobar"))
}

func TestSubStrLeftRight(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("covenant")
		b.EmitPushInt64(2)
		b.EmitPushInt64(3)
		b.Emit(OpSubStr)
		b.Emit(OpRet)
	})
	expectBufferBytes(t, e, []byte("ven"))

	e = runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("covenant")
		b.EmitPushInt64(3)
		b.Emit(OpLeft)
		b.Emit(OpRet)
	})
	expectBufferBytes(t, e, []byte("cov"))

	e = runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("covenant")
		b.EmitPushInt64(3)
		b.Emit(OpRight)
		b.Emit(OpRet)
	})
	expectBufferBytes(t, e, []byte("ant"))
}

func TestSubStrOutOfRangeFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("abc")
		b.EmitPushInt64(2)
		b.EmitPushInt64(5)
		b.Emit(OpSubStr)
	})
	if e.State() != StateFault {
		t.Fatalf("state = %s, want FAULT", e.State())
	}
}

func TestNewBufferAndMemCpy(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(4)
		b.Emit(OpNewBuffer)         // dst, 4 zero bytes
		b.Emit(OpDup)               // keep the destination for the result
		b.EmitPushInt64(1)          // dstIndex
		b.EmitPushString("xyz")     // src
		b.EmitPushInt64(0)          // srcIndex
		b.EmitPushInt64(2)          // count
		b.Emit(OpMemCpy)
		b.Emit(OpRet)
	})
	expectBufferBytes(t, e, []byte{0, 'x', 'y', 0})
}

func TestBufferSetItemAndReverse(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(3)
		b.Emit(OpNewBuffer)
		b.Emit(OpDup)
		b.Emit(OpDup)
		b.EmitPushInt64(0)
		b.EmitPushInt64(7)
		b.Emit(OpSetItem)      // buf[0] = 7
		b.Emit(OpReverseItems) // -> [0 0 7]
		b.Emit(OpRet)
	})
	expectBufferBytes(t, e, []byte{0, 0, 7})
}

// ---------------------------------------------------------------------------
// Compound operations
// ---------------------------------------------------------------------------

func TestPackAndUnpack(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(10)
		b.EmitPushInt64(20)
		b.EmitPushInt64(30)
		b.EmitPushInt64(3)
		b.Emit(OpPack)
		b.Emit(OpUnpack)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 3 {
		t.Fatalf("unpacked count = %d, want 3", got)
	}
	// PACK then UNPACK restores the original pop order.
	if got := popResultInt(t, e); got != 30 {
		t.Fatalf("first element = %d, want 30", got)
	}
	if got := popResultInt(t, e); got != 20 {
		t.Fatalf("second element = %d, want 20", got)
	}
	if got := popResultInt(t, e); got != 10 {
		t.Fatalf("third element = %d, want 10", got)
	}
}

func TestPackMapAndKeys(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(200) // value for key 2
		b.EmitPushInt64(2)
		b.EmitPushInt64(100) // value for key 1
		b.EmitPushInt64(1)
		b.EmitPushInt64(2) // pair count
		b.Emit(OpPackMap)
		b.Emit(OpDup)
		b.Emit(OpSize)
		b.Emit(OpSwap)
		b.Emit(OpKeys)
		b.EmitPushInt64(0)
		b.Emit(OpPickItem)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("first key = %d, want 1", got)
	}
	if got := popResultInt(t, e); got != 2 {
		t.Fatalf("map size = %d, want 2", got)
	}
}

func TestNewArrayTypedDefaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(2)
		b.EmitWithOperand(OpNewArrayT, byte(TypeInteger))
		b.EmitPushInt64(0)
		b.Emit(OpPickItem)
		b.Emit(OpRet)
	})
	expectInt(t, e, 0)
}

func TestHasKey(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(2)
		b.Emit(OpNewArray)
		b.EmitPushInt64(1)
		b.Emit(OpHasKey)
		b.Emit(OpRet)
	})
	expectBool(t, e, true)

	e = runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(2)
		b.Emit(OpNewArray)
		b.EmitPushInt64(2)
		b.Emit(OpHasKey)
		b.Emit(OpRet)
	})
	expectBool(t, e, false)
}

func TestPickItemFromBytes(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushData([]byte{10, 20, 30})
		b.EmitPushInt64(1)
		b.Emit(OpPickItem)
		b.Emit(OpRet)
	})
	expectInt(t, e, 20)
}

func TestPickItemMissingKeyFaults(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpNewMap)
		b.EmitPushInt64(1)
		b.Emit(OpPickItem)
	})
	expectFaultKind(t, e, FaultThrow)
}

func TestRemoveAndPopItem(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(10)
		b.EmitPushInt64(20)
		b.EmitPushInt64(30)
		b.EmitPushInt64(3)
		b.Emit(OpPack) // element 0 is the former top: [30 20 10]
		b.Emit(OpDup)
		b.EmitPushInt64(1)
		b.Emit(OpRemove) // [30 10]
		b.Emit(OpDup)
		b.Emit(OpPopItem) // pops 10, array [30]
		b.Emit(OpSwap)
		b.Emit(OpSize)
		b.Emit(OpRet)
	})
	expectHalt(t, e)
	if got := popResultInt(t, e); got != 1 {
		t.Fatalf("remaining size = %d, want 1", got)
	}
	if got := popResultInt(t, e); got != 10 {
		t.Fatalf("popped item = %d, want 10", got)
	}
}

func TestClearItems(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(5)
		b.Emit(OpNewArray)
		b.Emit(OpDup)
		b.Emit(OpClearItems)
		b.Emit(OpSize)
		b.Emit(OpRet)
	})
	expectInt(t, e, 0)
}

func TestValuesCopiesStructElements(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.Emit(OpNewStruct0) //  s
		b.Emit(OpDup)
		b.EmitPushInt64(1)
		b.Emit(OpAppend)    // s = [1]
		b.Emit(OpDup)       // s s
		b.EmitPushInt64(1)
		b.Emit(OpPack)      // s [s']  (array wrapping the struct)
		b.Emit(OpValues)    // s values (struct copied again)
		b.EmitPushInt64(0)
		b.Emit(OpPickItem)  // s copy
		b.Emit(OpSwap)      // copy s
		b.EmitPushInt64(0)
		b.EmitPushInt64(9)
		b.Emit(OpSetItem)   // s[0] = 9
		b.EmitPushInt64(0)
		b.Emit(OpPickItem)  // copy[0]
		b.Emit(OpRet)
	})
	expectInt(t, e, 1)
}

func TestSizeOfByteString(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushString("four")
		b.Emit(OpSize)
		b.Emit(OpRet)
	})
	expectInt(t, e, 4)
}

func TestIsTypeAndConvert(t *testing.T) {
	e := runScript(t, func(b *ScriptBuilder) {
		b.EmitPushInt64(5)
		b.EmitWithOperand(OpConvert, byte(TypeBuffer))
		b.EmitWithOperand(OpIsType, byte(TypeBuffer))
		b.Emit(OpRet)
	})
	expectBool(t, e, true)

	e = runScript(t, func(b *ScriptBuilder) {
		b.EmitPushNull()
		b.Emit(OpIsNull)
		b.Emit(OpRet)
	})
	expectBool(t, e, true)
}
