package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instruction is a decoded opcode with its operand bytes. For the PUSHDATA
// family the operand excludes the length prefix.
type Instruction struct {
	Opcode  Opcode
	Operand []byte

	position int
	size     int
}

// Position returns the instruction's offset within its script.
func (in *Instruction) Position() int { return in.position }

// Size returns the full encoded size including opcode and any length prefix.
func (in *Instruction) Size() int { return in.size }

// Next returns the offset of the following instruction.
func (in *Instruction) Next() int { return in.position + in.size }

// I8 reads the operand as a signed 8-bit value.
func (in *Instruction) I8() int8 { return int8(in.Operand[0]) }

// I8At reads the signed 8-bit value at operand offset i.
func (in *Instruction) I8At(i int) int8 { return int8(in.Operand[i]) }

// I32 reads the operand as a signed 32-bit little-endian value.
func (in *Instruction) I32() int32 {
	return int32(binary.LittleEndian.Uint32(in.Operand))
}

// I32At reads the signed 32-bit value at operand offset i.
func (in *Instruction) I32At(i int) int32 {
	return int32(binary.LittleEndian.Uint32(in.Operand[i:]))
}

// U8 reads the operand as an unsigned 8-bit value.
func (in *Instruction) U8() uint8 { return in.Operand[0] }

// U8At reads the unsigned 8-bit value at operand offset i.
func (in *Instruction) U8At(i int) uint8 { return in.Operand[i] }

// U16 reads the operand as an unsigned 16-bit little-endian value.
func (in *Instruction) U16() uint16 {
	return binary.LittleEndian.Uint16(in.Operand)
}

// U32 reads the operand as an unsigned 32-bit little-endian value.
func (in *Instruction) U32() uint32 {
	return binary.LittleEndian.Uint32(in.Operand)
}

// String renders the instruction for disassembly.
func (in *Instruction) String() string {
	if len(in.Operand) == 0 {
		return fmt.Sprintf("%04d  %s", in.position, in.Opcode)
	}
	return fmt.Sprintf("%04d  %s 0x%x", in.position, in.Opcode, in.Operand)
}

// decodeInstruction decodes the instruction starting at pos. It fails when
// the opcode is undefined or the operand runs past the end of the script.
func decodeInstruction(code []byte, pos int) (*Instruction, error) {
	if pos < 0 || pos >= len(code) {
		return nil, fmt.Errorf("position %d out of script bounds [0, %d)", pos, len(code))
	}
	op := Opcode(code[pos])
	info, ok := opcodeTable[op]
	if !ok {
		return nil, fmt.Errorf("undefined opcode 0x%02X at position %d", byte(op), pos)
	}
	size := 1
	operandLen := info.OperandBytes
	if info.PrefixBytes > 0 {
		if pos+1+info.PrefixBytes > len(code) {
			return nil, fmt.Errorf("%s at %d: truncated length prefix", op, pos)
		}
		switch info.PrefixBytes {
		case 1:
			operandLen = int(code[pos+1])
		case 2:
			operandLen = int(binary.LittleEndian.Uint16(code[pos+1:]))
		case 4:
			n := binary.LittleEndian.Uint32(code[pos+1:])
			if n > uint32(len(code)) {
				return nil, fmt.Errorf("%s at %d: operand length %d exceeds script size", op, pos, n)
			}
			operandLen = int(n)
		}
		size += info.PrefixBytes
	}
	if pos+size+operandLen > len(code) {
		return nil, fmt.Errorf("%s at %d: operand of %d bytes runs past end of script", op, pos, operandLen)
	}
	operand := code[pos+size : pos+size+operandLen]
	size += operandLen
	return &Instruction{
		Opcode:   op,
		Operand:  operand,
		position: pos,
		size:     size,
	}, nil
}
