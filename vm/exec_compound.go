package vm

// ---------------------------------------------------------------------------
// Compound types
// ---------------------------------------------------------------------------

func (e *Engine) executeCompound(ctx *ExecutionContext, in *Instruction) {
	stack := ctx.Stack()
	switch in.Opcode {

	case OpPackMap:
		n := popCount(stack)
		if n*2 > stack.Len() {
			throwf(FaultStackUnderflow, "PACKMAP of %d pairs from depth %d", n, stack.Len())
		}
		m := NewMap()
		for i := 0; i < n; i++ {
			key := stack.Pop()
			value := stack.Pop()
			e.mapSet(m, key, value)
		}
		stack.Push(m)

	case OpPackStruct:
		n := popCount(stack)
		items := e.popPacked(stack, n)
		s := NewStruct(items)
		for _, item := range items {
			e.rc.addReference(item, s)
		}
		stack.Push(s)

	case OpPack:
		n := popCount(stack)
		items := e.popPacked(stack, n)
		a := NewArray(items)
		for _, item := range items {
			e.rc.addReference(item, a)
		}
		stack.Push(a)

	case OpUnpack:
		switch col := stack.Pop().(type) {
		case *Array:
			for i := col.Len() - 1; i >= 0; i-- {
				stack.Push(col.At(i))
			}
			stack.Push(NewIntegerFromInt64(int64(col.Len())))
		case *Struct:
			for i := col.Len() - 1; i >= 0; i-- {
				stack.Push(col.At(i))
			}
			stack.Push(NewIntegerFromInt64(int64(col.Len())))
		case *Map:
			keys := col.Keys()
			for i := len(keys) - 1; i >= 0; i-- {
				value, _ := col.Get(keys[i])
				stack.Push(value)
				stack.Push(keys[i])
			}
			stack.Push(NewIntegerFromInt64(int64(len(keys))))
		default:
			throwf(FaultTypeMismatch, "UNPACK of %s", col.Type())
		}

	case OpNewArray0:
		stack.Push(NewArray(nil))

	case OpNewArray:
		stack.Push(e.newFilled(popCount(stack), TypeAny, false))

	case OpNewArrayT:
		t := ItemType(in.U8())
		if !t.IsValid() && t != TypeAny {
			throwf(FaultInvalidOperand, "NEWARRAY_T with invalid type 0x%02X", in.U8())
		}
		stack.Push(e.newFilled(popCount(stack), t, false))

	case OpNewStruct0:
		stack.Push(NewStruct(nil))

	case OpNewStruct:
		stack.Push(e.newFilled(popCount(stack), TypeAny, true))

	case OpNewMap:
		stack.Push(NewMap())

	case OpSize:
		switch col := stack.Pop().(type) {
		case *Array:
			stack.Push(NewIntegerFromInt64(int64(col.Len())))
		case *Struct:
			stack.Push(NewIntegerFromInt64(int64(col.Len())))
		case *Map:
			stack.Push(NewIntegerFromInt64(int64(col.Len())))
		case ByteString:
			stack.Push(NewIntegerFromInt64(int64(len(col))))
		case *Buffer:
			stack.Push(NewIntegerFromInt64(int64(len(col.Data))))
		default:
			throwf(FaultTypeMismatch, "SIZE of %s", col.Type())
		}

	case OpHasKey:
		key := stack.Pop()
		switch col := stack.Pop().(type) {
		case *Array:
			stack.Push(makeBool(indexOf(key) < col.Len()))
		case *Struct:
			stack.Push(makeBool(indexOf(key) < col.Len()))
		case *Map:
			stack.Push(makeBool(col.Has(key)))
		case ByteString:
			stack.Push(makeBool(indexOf(key) < len(col)))
		case *Buffer:
			stack.Push(makeBool(indexOf(key) < len(col.Data)))
		default:
			throwf(FaultTypeMismatch, "HASKEY on %s", col.Type())
		}

	case OpKeys:
		m, ok := stack.Pop().(*Map)
		if !ok {
			throwf(FaultTypeMismatch, "KEYS needs a map")
		}
		keys := m.Keys()
		a := NewArray(keys)
		for _, k := range keys {
			e.rc.addReference(k, a)
		}
		stack.Push(a)

	case OpValues:
		var values []StackItem
		switch col := stack.Pop().(type) {
		case *Array:
			values = append(values, col.Items()...)
		case *Struct:
			values = append(values, col.Items()...)
		case *Map:
			values = col.Values()
		default:
			throwf(FaultTypeMismatch, "VALUES on %s", col.Type())
		}
		for i, v := range values {
			values[i] = e.assignValue(v)
		}
		a := NewArray(values)
		for _, v := range values {
			e.rc.addReference(v, a)
		}
		stack.Push(a)

	case OpPickItem:
		key := stack.Pop()
		switch col := stack.Pop().(type) {
		case *Array:
			i := indexOf(key)
			if i >= col.Len() {
				throwf(FaultItemNotFound, "index %d beyond %d elements", i, col.Len())
			}
			stack.Push(col.At(i))
		case *Struct:
			i := indexOf(key)
			if i >= col.Len() {
				throwf(FaultItemNotFound, "index %d beyond %d elements", i, col.Len())
			}
			stack.Push(col.At(i))
		case *Map:
			value, ok := col.Get(key)
			if !ok {
				throwf(FaultItemNotFound, "key %s not in map", itemString(key))
			}
			stack.Push(value)
		case ByteString:
			i := indexOf(key)
			if i >= len(col) {
				throwf(FaultItemNotFound, "index %d beyond %d bytes", i, len(col))
			}
			stack.Push(NewIntegerFromInt64(int64(col[i])))
		case *Buffer:
			i := indexOf(key)
			if i >= len(col.Data) {
				throwf(FaultItemNotFound, "index %d beyond %d bytes", i, len(col.Data))
			}
			stack.Push(NewIntegerFromInt64(int64(col.Data[i])))
		default:
			throwf(FaultTypeMismatch, "PICKITEM on %s", col.Type())
		}

	case OpAppend:
		item := e.assignValue(stack.Pop())
		switch col := stack.Pop().(type) {
		case *Array:
			col.Append(item)
			e.rc.addReference(item, col)
		case *Struct:
			col.Append(item)
			e.rc.addReference(item, col)
		default:
			throwf(FaultTypeMismatch, "APPEND to %s", col.Type())
		}

	case OpSetItem:
		value := stack.Pop()
		key := stack.Pop()
		switch col := stack.Pop().(type) {
		case *Array:
			e.sequenceSet(col.Items(), indexOf(key), e.assignValue(value), col)
		case *Struct:
			e.sequenceSet(col.Items(), indexOf(key), e.assignValue(value), col)
		case *Map:
			e.mapSet(col, key, e.assignValue(value))
		case *Buffer:
			i := indexOf(key)
			if i >= len(col.Data) {
				throwf(FaultItemNotFound, "index %d beyond %d bytes", i, len(col.Data))
			}
			b := value.BigInt()
			if !b.IsInt64() || b.Int64() < -128 || b.Int64() > 255 {
				throwf(FaultInvalidOperand, "byte value %s out of range", b)
			}
			col.Data[i] = byte(b.Int64())
		default:
			throwf(FaultTypeMismatch, "SETITEM on %s", col.Type())
		}

	case OpReverseItems:
		switch col := stack.Pop().(type) {
		case *Array:
			col.Reverse()
		case *Struct:
			col.Reverse()
		case *Buffer:
			for i, j := 0, len(col.Data)-1; i < j; i, j = i+1, j-1 {
				col.Data[i], col.Data[j] = col.Data[j], col.Data[i]
			}
		default:
			throwf(FaultTypeMismatch, "REVERSEITEMS on %s", col.Type())
		}

	case OpRemove:
		key := stack.Pop()
		switch col := stack.Pop().(type) {
		case *Array:
			i := indexOf(key)
			if i >= col.Len() {
				throwf(FaultItemNotFound, "index %d beyond %d elements", i, col.Len())
			}
			e.rc.removeReference(col.At(i), col)
			col.Remove(i)
		case *Struct:
			i := indexOf(key)
			if i >= col.Len() {
				throwf(FaultItemNotFound, "index %d beyond %d elements", i, col.Len())
			}
			e.rc.removeReference(col.At(i), col)
			col.Remove(i)
		case *Map:
			if value, ok := col.Get(key); ok {
				e.rc.removeReference(value, col)
				for _, k := range col.Keys() {
					if mapKey(k) == mapKey(key) {
						e.rc.removeReference(k, col)
						break
					}
				}
				col.Delete(key)
			}
		default:
			throwf(FaultTypeMismatch, "REMOVE on %s", col.Type())
		}

	case OpClearItems:
		col := stack.Pop()
		switch col.(type) {
		case *Array, *Struct, *Map:
			eachChild(col, func(child StackItem) {
				e.rc.removeReference(child, col)
			})
			switch v := col.(type) {
			case *Array:
				v.Clear()
			case *Struct:
				v.Clear()
			case *Map:
				v.Clear()
			}
		default:
			throwf(FaultTypeMismatch, "CLEARITEMS on %s", col.Type())
		}

	case OpPopItem:
		switch col := stack.Pop().(type) {
		case *Array:
			if col.Len() == 0 {
				throwf(FaultItemNotFound, "POPITEM from empty array")
			}
			last := col.At(col.Len() - 1)
			stack.Push(last)
			e.rc.removeReference(last, col)
			col.Remove(col.Len() - 1)
		case *Struct:
			if col.Len() == 0 {
				throwf(FaultItemNotFound, "POPITEM from empty struct")
			}
			last := col.At(col.Len() - 1)
			stack.Push(last)
			e.rc.removeReference(last, col)
			col.Remove(col.Len() - 1)
		default:
			throwf(FaultTypeMismatch, "POPITEM from %s", col.Type())
		}
	}
}

// executeConvert converts the top item to type t.
func (e *Engine) executeConvert(ctx *ExecutionContext, t ItemType) {
	if !t.IsValid() {
		throwf(FaultInvalidOperand, "CONVERT to invalid type 0x%02X", byte(t))
	}
	item := ctx.Stack().Pop()
	out := convertItem(item, t, &e.limits)
	if out != item {
		switch col := out.(type) {
		case *Array:
			for _, child := range col.Items() {
				e.rc.addReference(child, col)
			}
		case *Struct:
			for _, child := range col.Items() {
				e.rc.addReference(child, col)
			}
		}
	}
	ctx.Stack().Push(out)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// popPacked pops n items for PACK and PACKSTRUCT, top of stack first.
func (e *Engine) popPacked(stack *EvalStack, n int) []StackItem {
	if n > stack.Len() {
		throwf(FaultStackUnderflow, "pack of %d items from depth %d", n, stack.Len())
	}
	items := make([]StackItem, n)
	for i := 0; i < n; i++ {
		items[i] = stack.Pop()
	}
	return items
}

// newFilled builds an array or struct of n default elements.
func (e *Engine) newFilled(n int, t ItemType, asStruct bool) StackItem {
	if n > e.limits.MaxStackSize {
		throwf(FaultInvalidOperand, "collection of %d elements exceeds limit %d", n, e.limits.MaxStackSize)
	}
	items := make([]StackItem, n)
	for i := range items {
		items[i] = defaultItem(t)
	}
	if asStruct {
		s := NewStruct(items)
		for _, item := range items {
			e.rc.addReference(item, s)
		}
		return s
	}
	a := NewArray(items)
	for _, item := range items {
		e.rc.addReference(item, a)
	}
	return a
}

// mapSet stores value under key in m, maintaining ledger references.
func (e *Engine) mapSet(m *Map, key StackItem, value StackItem) {
	if old, ok := m.Get(key); ok {
		e.rc.removeReference(old, m)
	} else {
		e.rc.addReference(key, m)
	}
	m.Set(key, value)
	e.rc.addReference(value, m)
}

// sequenceSet replaces items[i], maintaining ledger references against col.
func (e *Engine) sequenceSet(items []StackItem, i int, value StackItem, col StackItem) {
	if i >= len(items) {
		throwf(FaultItemNotFound, "index %d beyond %d elements", i, len(items))
	}
	e.rc.removeReference(items[i], col)
	items[i] = value
	e.rc.addReference(value, col)
}

// assignValue applies struct value semantics at an assignment boundary,
// registering the clone's containment edges with the ledger.
func (e *Engine) assignValue(item StackItem) StackItem {
	s, ok := item.(*Struct)
	if !ok {
		return item
	}
	dup := deepCopy(s, make(map[StackItem]StackItem)).(*Struct)
	e.addStructRefs(dup)
	return dup
}

// addStructRefs records containment references for a freshly cloned struct
// tree.
func (e *Engine) addStructRefs(s *Struct) {
	seen := make(map[*Struct]bool)
	var walk func(*Struct)
	walk = func(st *Struct) {
		if seen[st] {
			return
		}
		seen[st] = true
		for _, child := range st.items {
			e.rc.addReference(child, st)
			if cs, ok := child.(*Struct); ok {
				walk(cs)
			}
		}
	}
	walk(s)
}

// indexOf interprets key as a non-negative collection index.
func indexOf(key StackItem) int {
	v := key.BigInt()
	if !v.IsInt64() || v.Int64() < 0 {
		throwf(FaultInvalidOperand, "index %s out of range", v)
	}
	n := v.Int64()
	if n > int64(^uint(0)>>1) {
		throwf(FaultInvalidOperand, "index %d out of range", n)
	}
	return int(n)
}
