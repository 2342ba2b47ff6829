package vm

// ---------------------------------------------------------------------------
// Evaluation stack
// ---------------------------------------------------------------------------

// EvalStack is an evaluation stack backed by the engine's reference ledger.
// Index 0 in Peek/Remove/Insert counts from the top.
type EvalStack struct {
	items []StackItem
	rc    *refCounter
}

func newEvalStack(rc *refCounter) *EvalStack {
	return &EvalStack{rc: rc}
}

// Len returns the number of items on the stack.
func (s *EvalStack) Len() int { return len(s.items) }

// Push places item on top of the stack.
func (s *EvalStack) Push(item StackItem) {
	s.items = append(s.items, item)
	s.rc.addStackReference(item, 1)
}

// Pop removes and returns the top item. Faults on an empty stack.
func (s *EvalStack) Pop() StackItem {
	n := len(s.items)
	if n == 0 {
		throwf(FaultStackUnderflow, "pop from empty stack")
	}
	item := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	s.rc.removeStackReference(item)
	return item
}

// Peek returns the item n positions below the top without removing it.
func (s *EvalStack) Peek(n int) StackItem {
	if n < 0 || n >= len(s.items) {
		throwf(FaultStackUnderflow, "peek %d beyond depth %d", n, len(s.items))
	}
	return s.items[len(s.items)-1-n]
}

// Insert places item n positions below the top.
func (s *EvalStack) Insert(n int, item StackItem) {
	if n < 0 || n > len(s.items) {
		throwf(FaultStackUnderflow, "insert %d beyond depth %d", n, len(s.items))
	}
	idx := len(s.items) - n
	s.items = append(s.items, nil)
	copy(s.items[idx+1:], s.items[idx:])
	s.items[idx] = item
	s.rc.addStackReference(item, 1)
}

// Remove removes and returns the item n positions below the top.
func (s *EvalStack) Remove(n int) StackItem {
	if n < 0 || n >= len(s.items) {
		throwf(FaultStackUnderflow, "remove %d beyond depth %d", n, len(s.items))
	}
	idx := len(s.items) - 1 - n
	item := s.items[idx]
	copy(s.items[idx:], s.items[idx+1:])
	s.items[len(s.items)-1] = nil
	s.items = s.items[:len(s.items)-1]
	s.rc.removeStackReference(item)
	return item
}

// Reverse reverses the top n items in place.
func (s *EvalStack) Reverse(n int) {
	if n < 0 || n > len(s.items) {
		throwf(FaultStackUnderflow, "reverse %d beyond depth %d", n, len(s.items))
	}
	if n <= 1 {
		return
	}
	base := len(s.items) - n
	for i, j := base, len(s.items)-1; i < j; i, j = i+1, j-1 {
		s.items[i], s.items[j] = s.items[j], s.items[i]
	}
}

// Clear removes every item.
func (s *EvalStack) Clear() {
	for _, item := range s.items {
		s.rc.removeStackReference(item)
	}
	s.items = s.items[:0]
}

// truncate drops items until depth items remain, bottom preserved.
func (s *EvalStack) truncate(depth int) {
	for len(s.items) > depth {
		s.Pop()
	}
}

// MoveTo transfers the top n items onto dst, preserving their order.
func (s *EvalStack) MoveTo(dst *EvalStack, n int) {
	if n == 0 {
		return
	}
	if n < 0 || n > len(s.items) {
		n = len(s.items)
	}
	moved := s.items[len(s.items)-n:]
	for _, item := range moved {
		dst.Push(item)
	}
	for range moved {
		s.Pop()
	}
}

// Items returns a snapshot of the stack, bottom first.
func (s *EvalStack) Items() []StackItem {
	out := make([]StackItem, len(s.items))
	copy(out, s.items)
	return out
}
