package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Script
// ---------------------------------------------------------------------------

// Script is an immutable bytecode program with a lazily built instruction
// cache. Decoding an instruction at a position records it so jump-heavy code
// decodes each position once.
type Script struct {
	code  []byte
	cache map[int]*Instruction
}

// NewScript wraps code without validation. Malformed instructions surface as
// faults when execution reaches them.
func NewScript(code []byte) *Script {
	return &Script{
		code:  code,
		cache: make(map[int]*Instruction),
	}
}

// NewScriptStrict wraps code after validating every instruction: defined
// opcodes, in-bounds operands, jump and try targets on instruction
// boundaries, and well-formed type operands.
func NewScriptStrict(code []byte) (*Script, error) {
	s := NewScript(code)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the script length in bytes.
func (s *Script) Len() int { return len(s.code) }

// Bytes returns the raw bytecode. Callers must not mutate it.
func (s *Script) Bytes() []byte { return s.code }

// InstructionAt decodes the instruction at pos, consulting the cache first.
func (s *Script) InstructionAt(pos int) (*Instruction, error) {
	if in, ok := s.cache[pos]; ok {
		return in, nil
	}
	in, err := decodeInstruction(s.code, pos)
	if err != nil {
		return nil, err
	}
	s.cache[pos] = in
	return in, nil
}

// validate decodes the whole script and checks static constraints.
func (s *Script) validate() error {
	starts := make(map[int]bool, len(s.code)/2)
	var ins []*Instruction
	for pos := 0; pos < len(s.code); {
		in, err := s.InstructionAt(pos)
		if err != nil {
			return err
		}
		starts[pos] = true
		ins = append(ins, in)
		pos = in.Next()
	}
	for _, in := range ins {
		switch in.Opcode {
		case OpJmp, OpJmpIf, OpJmpIfNot, OpJmpEq, OpJmpNe,
			OpJmpGt, OpJmpGe, OpJmpLt, OpJmpLe, OpCall, OpEndTry:
			if err := checkTarget(starts, s.Len(), in, int(in.I8())); err != nil {
				return err
			}
		case OpJmpL, OpJmpIfL, OpJmpIfNotL, OpJmpEqL, OpJmpNeL,
			OpJmpGtL, OpJmpGeL, OpJmpLtL, OpJmpLeL, OpCallL, OpEndTryL:
			if err := checkTarget(starts, s.Len(), in, int(in.I32())); err != nil {
				return err
			}
		case OpPushA:
			target := int(in.I32())
			if target < 0 || target >= s.Len() || !starts[target] {
				return fmt.Errorf("%s at %d: target %d is not an instruction boundary", in.Opcode, in.Position(), target)
			}
		case OpTry:
			for i := 0; i < 2; i++ {
				if off := int(in.I8At(i)); off != 0 {
					if err := checkTarget(starts, s.Len(), in, off); err != nil {
						return err
					}
				}
			}
		case OpTryL:
			for i := 0; i < 8; i += 4 {
				if off := int(in.I32At(i)); off != 0 {
					if err := checkTarget(starts, s.Len(), in, off); err != nil {
						return err
					}
				}
			}
		case OpIsType, OpConvert:
			t := ItemType(in.U8())
			if !t.IsValid() {
				return fmt.Errorf("%s at %d: invalid type operand 0x%02X", in.Opcode, in.Position(), in.U8())
			}
		case OpNewArrayT:
			t := ItemType(in.U8())
			if !t.IsValid() && t != TypeAny {
				return fmt.Errorf("%s at %d: invalid type operand 0x%02X", in.Opcode, in.Position(), in.U8())
			}
		}
	}
	return nil
}

// checkTarget verifies a relative branch lands on an instruction boundary.
func checkTarget(starts map[int]bool, scriptLen int, in *Instruction, offset int) error {
	target := in.Position() + offset
	if target < 0 || target >= scriptLen || !starts[target] {
		return fmt.Errorf("%s at %d: target %d is not an instruction boundary", in.Opcode, in.Position(), target)
	}
	return nil
}

// Disassemble renders the script one instruction per line.
func (s *Script) Disassemble() string {
	var b strings.Builder
	for pos := 0; pos < len(s.code); {
		in, err := s.InstructionAt(pos)
		if err != nil {
			fmt.Fprintf(&b, "%04d  <%v>\n", pos, err)
			break
		}
		b.WriteString(in.String())
		b.WriteByte('\n')
		pos = in.Next()
	}
	return b.String()
}
