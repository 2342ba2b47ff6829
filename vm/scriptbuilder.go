package vm

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// ---------------------------------------------------------------------------
// ScriptBuilder
// ---------------------------------------------------------------------------

// ScriptBuilder assembles bytecode programs.
type ScriptBuilder struct {
	buf []byte
}

// NewScriptBuilder creates an empty builder.
func NewScriptBuilder() *ScriptBuilder {
	return &ScriptBuilder{buf: make([]byte, 0, 64)}
}

// Len returns the current script length.
func (b *ScriptBuilder) Len() int { return len(b.buf) }

// Bytes returns the assembled bytecode.
func (b *ScriptBuilder) Bytes() []byte { return b.buf }

// ToScript wraps the assembled bytecode as an unvalidated Script.
func (b *ScriptBuilder) ToScript() *Script { return NewScript(b.buf) }

// Emit appends an opcode with no operand.
func (b *ScriptBuilder) Emit(op Opcode) {
	b.buf = append(b.buf, byte(op))
}

// EmitWithOperand appends an opcode followed by raw operand bytes.
func (b *ScriptBuilder) EmitWithOperand(op Opcode, operand ...byte) {
	b.buf = append(b.buf, byte(op))
	b.buf = append(b.buf, operand...)
}

// EmitPushBool pushes a boolean constant.
func (b *ScriptBuilder) EmitPushBool(v bool) {
	if v {
		b.Emit(OpPushTrue)
	} else {
		b.Emit(OpPushFalse)
	}
}

// EmitPushNull pushes the null constant.
func (b *ScriptBuilder) EmitPushNull() {
	b.Emit(OpPushNull)
}

// EmitPushInt64 pushes an integer constant.
func (b *ScriptBuilder) EmitPushInt64(v int64) {
	b.EmitPushInt(big.NewInt(v))
}

// EmitPushInt pushes an integer constant with the smallest encoding: the
// one-byte opcodes for -1 through 16, otherwise the narrowest PUSHINT form
// that fits the value sign-extended.
func (b *ScriptBuilder) EmitPushInt(v *big.Int) {
	if v.IsInt64() {
		n := v.Int64()
		if n == -1 {
			b.Emit(OpPushM1)
			return
		}
		if n >= 0 && n <= 16 {
			b.Emit(OpPush0 + Opcode(n))
			return
		}
	}
	raw := bigIntToBytes(v)
	widths := []struct {
		op    Opcode
		bytes int
	}{
		{OpPushInt8, 1}, {OpPushInt16, 2}, {OpPushInt32, 4},
		{OpPushInt64, 8}, {OpPushInt128, 16}, {OpPushInt256, 32},
	}
	for _, w := range widths {
		if len(raw) > w.bytes {
			continue
		}
		operand := make([]byte, w.bytes)
		copy(operand, raw)
		if v.Sign() < 0 {
			for i := len(raw); i < w.bytes; i++ {
				operand[i] = 0xFF
			}
		}
		b.EmitWithOperand(w.op, operand...)
		return
	}
	panic(fmt.Sprintf("integer %s wider than 256 bits", v))
}

// EmitPushData pushes a byte sequence with the narrowest length prefix.
func (b *ScriptBuilder) EmitPushData(data []byte) {
	switch {
	case len(data) < 0x100:
		b.buf = append(b.buf, byte(OpPushData1), byte(len(data)))
	case len(data) < 0x10000:
		b.buf = append(b.buf, byte(OpPushData2))
		b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(len(data)))
	default:
		b.buf = append(b.buf, byte(OpPushData4))
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(data)))
	}
	b.buf = append(b.buf, data...)
}

// EmitPushString pushes a string as a byte sequence.
func (b *ScriptBuilder) EmitPushString(s string) {
	b.EmitPushData([]byte(s))
}

// EmitJump appends a long-form jump with a 32-bit relative offset. Short
// jump opcodes are widened to their long form.
func (b *ScriptBuilder) EmitJump(op Opcode, offset int32) {
	if op >= OpJmp && op <= OpJmpLeL && op%2 == 0 {
		op++
	}
	if (op < OpJmpL || op > OpJmpLeL || op%2 == 0) && op != OpCallL && op != OpEndTryL {
		panic(fmt.Sprintf("opcode %s is not a jump", op))
	}
	b.buf = append(b.buf, byte(op))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(offset))
}

// EmitCall appends a long-form CALL with a 32-bit relative offset.
func (b *ScriptBuilder) EmitCall(offset int32) {
	b.buf = append(b.buf, byte(OpCallL))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(offset))
}

// EmitTry opens a try region with 32-bit catch and finally offsets, zero
// meaning absent.
func (b *ScriptBuilder) EmitTry(catchOffset, finallyOffset int32) {
	b.buf = append(b.buf, byte(OpTryL))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(catchOffset))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(finallyOffset))
}

// EmitEndTry leaves a try region with a 32-bit end offset.
func (b *ScriptBuilder) EmitEndTry(endOffset int32) {
	b.buf = append(b.buf, byte(OpEndTryL))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(endOffset))
}

// EmitSyscall appends a SYSCALL by name.
func (b *ScriptBuilder) EmitSyscall(name string) {
	b.buf = append(b.buf, byte(OpSyscall))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, InteropID(name))
}

// EmitCallToken appends a CALLT with a 16-bit token.
func (b *ScriptBuilder) EmitCallToken(token uint16) {
	b.buf = append(b.buf, byte(OpCallT))
	b.buf = binary.LittleEndian.AppendUint16(b.buf, token)
}
