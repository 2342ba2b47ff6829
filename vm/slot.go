package vm

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

// Slot is a fixed-size variable store for static fields, locals or
// arguments. Unassigned positions read as Null.
type Slot struct {
	items []StackItem
	rc    *refCounter
}

// newSlot allocates n null-initialized positions.
func newSlot(rc *refCounter, n int) *Slot {
	s := &Slot{items: make([]StackItem, n), rc: rc}
	for i := range s.items {
		s.items[i] = itemNull
		rc.addStackReference(itemNull, 1)
	}
	return s
}

// newSlotFromItems wraps items as a slot, taking a reference on each.
func newSlotFromItems(rc *refCounter, items []StackItem) *Slot {
	for _, item := range items {
		rc.addStackReference(item, 1)
	}
	return &Slot{items: items, rc: rc}
}

// Len returns the slot count.
func (s *Slot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Get returns the item at index i.
func (s *Slot) Get(i int) StackItem {
	if s == nil || i < 0 || i >= len(s.items) {
		throwf(FaultInvalidOperand, "slot index %d out of range [0, %d)", i, s.Len())
	}
	return s.items[i]
}

// Set stores item at index i, releasing the previous occupant.
func (s *Slot) Set(i int, item StackItem) {
	if s == nil || i < 0 || i >= len(s.items) {
		throwf(FaultInvalidOperand, "slot index %d out of range [0, %d)", i, s.Len())
	}
	old := s.items[i]
	s.items[i] = item
	s.rc.addStackReference(item, 1)
	s.rc.removeStackReference(old)
}

// clearReferences releases every reference the slot holds.
func (s *Slot) clearReferences() {
	if s == nil {
		return
	}
	for _, item := range s.items {
		s.rc.removeStackReference(item)
	}
}
