package vm

import "math/big"

// ---------------------------------------------------------------------------
// Splice
// ---------------------------------------------------------------------------

func (e *Engine) executeSplice(ctx *ExecutionContext, op Opcode) {
	stack := ctx.Stack()
	switch op {
	case OpNewBuffer:
		n := popCount(stack)
		e.limits.assertItemSize(n)
		buf := NewBufferZeroed(n)
		stack.Push(buf)

	case OpMemCpy:
		count := popCount(stack)
		srcIndex := popCount(stack)
		src := stack.Pop().Bytes()
		dstIndex := popCount(stack)
		dst, ok := stack.Pop().(*Buffer)
		if !ok {
			throwf(FaultTypeMismatch, "MEMCPY destination must be a buffer")
		}
		if srcIndex+count > len(src) {
			throwf(FaultInvalidOperand, "MEMCPY source range [%d, %d) exceeds %d bytes", srcIndex, srcIndex+count, len(src))
		}
		if dstIndex+count > len(dst.Data) {
			throwf(FaultInvalidOperand, "MEMCPY destination range [%d, %d) exceeds %d bytes", dstIndex, dstIndex+count, len(dst.Data))
		}
		copy(dst.Data[dstIndex:dstIndex+count], src[srcIndex:srcIndex+count])

	case OpCat:
		b := stack.Pop().Bytes()
		a := stack.Pop().Bytes()
		e.limits.assertItemSize(len(a) + len(b))
		out := make([]byte, 0, len(a)+len(b))
		out = append(out, a...)
		out = append(out, b...)
		stack.Push(NewBuffer(out))

	case OpSubStr:
		count := popCount(stack)
		index := popCount(stack)
		data := stack.Pop().Bytes()
		if index+count > len(data) {
			throwf(FaultInvalidOperand, "SUBSTR range [%d, %d) exceeds %d bytes", index, index+count, len(data))
		}
		out := make([]byte, count)
		copy(out, data[index:index+count])
		stack.Push(NewBuffer(out))

	case OpLeft:
		count := popCount(stack)
		data := stack.Pop().Bytes()
		if count > len(data) {
			throwf(FaultInvalidOperand, "LEFT of %d bytes from %d", count, len(data))
		}
		out := make([]byte, count)
		copy(out, data[:count])
		stack.Push(NewBuffer(out))

	case OpRight:
		count := popCount(stack)
		data := stack.Pop().Bytes()
		if count > len(data) {
			throwf(FaultInvalidOperand, "RIGHT of %d bytes from %d", count, len(data))
		}
		out := make([]byte, count)
		copy(out, data[len(data)-count:])
		stack.Push(NewBuffer(out))
	}
}

// ---------------------------------------------------------------------------
// Bitwise logic
// ---------------------------------------------------------------------------

func (e *Engine) executeBitwise(ctx *ExecutionContext, op Opcode) {
	stack := ctx.Stack()
	switch op {
	case OpInvert:
		v := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Not(v))
	case OpAnd:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).And(a, b))
	case OpOr:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Or(a, b))
	case OpXor:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Xor(a, b))
	case OpEqual:
		b := stack.Pop()
		a := stack.Pop()
		stack.Push(makeBool(itemEquals(a, b, &e.limits)))
	case OpNotEqual:
		b := stack.Pop()
		a := stack.Pop()
		stack.Push(makeBool(!itemEquals(a, b, &e.limits)))
	}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (e *Engine) executeNumeric(ctx *ExecutionContext, op Opcode) {
	stack := ctx.Stack()
	switch op {
	case OpSign:
		v := stack.Pop().BigInt()
		stack.Push(NewIntegerFromInt64(int64(v.Sign())))
	case OpAbs:
		v := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Abs(v))
	case OpNegate:
		v := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Neg(v))
	case OpInc:
		v := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Add(v, bigOne))
	case OpDec:
		v := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Sub(v, bigOne))
	case OpAdd:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Add(a, b))
	case OpSub:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Sub(a, b))
	case OpMul:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Mul(a, b))
	case OpDiv:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		if b.Sign() == 0 {
			throwf(FaultDivisionByZero, "%s / 0", a)
		}
		e.pushInt(ctx, new(big.Int).Quo(a, b))
	case OpMod:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		if b.Sign() == 0 {
			throwf(FaultDivisionByZero, "%s %% 0", a)
		}
		e.pushInt(ctx, new(big.Int).Rem(a, b))
	case OpPow:
		exp := popInt(stack)
		if exp < 0 {
			throwf(FaultInvalidOperand, "negative exponent %d", exp)
		}
		base := stack.Pop().BigInt()
		e.pushInt(ctx, new(big.Int).Exp(base, big.NewInt(int64(exp)), nil))
	case OpSqrt:
		v := stack.Pop().BigInt()
		if v.Sign() < 0 {
			throwf(FaultInvalidOperand, "square root of negative %s", v)
		}
		e.pushInt(ctx, new(big.Int).Sqrt(v))
	case OpModMul:
		mod := stack.Pop().BigInt()
		if mod.Sign() == 0 {
			throwf(FaultDivisionByZero, "modulus is zero")
		}
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		out := new(big.Int).Mul(a, b)
		e.pushInt(ctx, out.Rem(out, mod))
	case OpModPow:
		mod := stack.Pop().BigInt()
		if mod.Sign() == 0 {
			throwf(FaultDivisionByZero, "modulus is zero")
		}
		exp := stack.Pop().BigInt()
		base := stack.Pop().BigInt()
		if exp.Cmp(big.NewInt(-1)) == 0 {
			inv := new(big.Int).ModInverse(base, mod)
			if inv == nil {
				throwf(FaultInvalidOperand, "%s has no inverse modulo %s", base, mod)
			}
			e.pushInt(ctx, inv)
			return
		}
		if exp.Sign() < 0 {
			throwf(FaultInvalidOperand, "negative exponent %s", exp)
		}
		e.pushInt(ctx, new(big.Int).Exp(base, exp, mod))
	case OpShl:
		shift := popInt(stack)
		e.limits.assertShift(shift)
		v := stack.Pop().BigInt()
		if shift == 0 {
			e.pushInt(ctx, v)
			return
		}
		e.pushInt(ctx, new(big.Int).Lsh(v, uint(shift)))
	case OpShr:
		shift := popInt(stack)
		e.limits.assertShift(shift)
		v := stack.Pop().BigInt()
		if shift == 0 {
			e.pushInt(ctx, v)
			return
		}
		e.pushInt(ctx, new(big.Int).Rsh(v, uint(shift)))
	case OpNot:
		stack.Push(makeBool(!stack.Pop().Bool()))
	case OpBoolAnd:
		b := stack.Pop().Bool()
		a := stack.Pop().Bool()
		stack.Push(makeBool(a && b))
	case OpBoolOr:
		b := stack.Pop().Bool()
		a := stack.Pop().Bool()
		stack.Push(makeBool(a || b))
	case OpNz:
		v := stack.Pop().BigInt()
		stack.Push(makeBool(v.Sign() != 0))
	case OpNumEqual:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		stack.Push(makeBool(a.Cmp(b) == 0))
	case OpNumNotEqual:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		stack.Push(makeBool(a.Cmp(b) != 0))
	case OpLt:
		e.compareOrdered(ctx, func(c int) bool { return c < 0 })
	case OpLe:
		e.compareOrdered(ctx, func(c int) bool { return c <= 0 })
	case OpGt:
		e.compareOrdered(ctx, func(c int) bool { return c > 0 })
	case OpGe:
		e.compareOrdered(ctx, func(c int) bool { return c >= 0 })
	case OpMin:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		if a.Cmp(b) <= 0 {
			e.pushInt(ctx, a)
		} else {
			e.pushInt(ctx, b)
		}
	case OpMax:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		if a.Cmp(b) >= 0 {
			e.pushInt(ctx, a)
		} else {
			e.pushInt(ctx, b)
		}
	case OpWithin:
		b := stack.Pop().BigInt()
		a := stack.Pop().BigInt()
		x := stack.Pop().BigInt()
		stack.Push(makeBool(a.Cmp(x) <= 0 && x.Cmp(b) < 0))
	}
}

// compareOrdered implements LT/LE/GT/GE. Comparing against Null yields
// false rather than faulting.
func (e *Engine) compareOrdered(ctx *ExecutionContext, take func(int) bool) {
	stack := ctx.Stack()
	b := stack.Pop()
	a := stack.Pop()
	if _, ok := a.(Null); ok {
		stack.Push(itemFalse)
		return
	}
	if _, ok := b.(Null); ok {
		stack.Push(itemFalse)
		return
	}
	stack.Push(makeBool(take(a.BigInt().Cmp(b.BigInt()))))
}
