package vm

import (
	"fmt"
	"math/big"
)

// ---------------------------------------------------------------------------
// Item types
// ---------------------------------------------------------------------------

// ItemType identifies the runtime type of a stack item. The byte values are
// the ones ISTYPE, CONVERT and NEWARRAY_T carry as operands.
type ItemType byte

const (
	TypeAny              ItemType = 0x00 // wildcard, only valid in type tests
	TypePointer          ItemType = 0x10 // instruction pointer into a script
	TypeBoolean          ItemType = 0x20 // true or false
	TypeInteger          ItemType = 0x21 // arbitrary-precision signed integer
	TypeByteString       ItemType = 0x28 // immutable byte sequence
	TypeBuffer           ItemType = 0x30 // mutable byte sequence
	TypeArray            ItemType = 0x40 // mutable item sequence, shared by reference
	TypeStruct           ItemType = 0x41 // item sequence copied on assignment
	TypeMap              ItemType = 0x48 // ordered key/value dictionary
	TypeInteropInterface ItemType = 0x60 // opaque host object
)

var itemTypeNames = map[ItemType]string{
	TypeAny:              "Any",
	TypePointer:          "Pointer",
	TypeBoolean:          "Boolean",
	TypeInteger:          "Integer",
	TypeByteString:       "ByteString",
	TypeBuffer:           "Buffer",
	TypeArray:            "Array",
	TypeStruct:           "Struct",
	TypeMap:              "Map",
	TypeInteropInterface: "InteropInterface",
}

// String returns the type name.
func (t ItemType) String() string {
	if name, ok := itemTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ItemType(0x%02X)", byte(t))
}

// IsValid reports whether t names a concrete item type. Any is not concrete.
func (t ItemType) IsValid() bool {
	_, ok := itemTypeNames[t]
	return ok && t != TypeAny
}

// ---------------------------------------------------------------------------
// StackItem
// ---------------------------------------------------------------------------

// StackItem is a value manipulated by the evaluation stack. Conversion
// accessors fault with TypeMismatch when the item cannot represent the
// requested view.
type StackItem interface {
	// Type returns the runtime type tag.
	Type() ItemType

	// Bool returns the item's truthiness.
	Bool() bool

	// BigInt returns the numeric view. Faults for non-numeric items.
	BigInt() *big.Int

	// Bytes returns the byte-sequence view. Faults for compound items.
	Bytes() []byte
}

// Null is the absence of a value. The zero item.
type Null struct{}

// Boolean is true or false.
type Boolean bool

// Integer is an arbitrary-precision signed integer bounded by the engine's
// integer wire width. The wrapped value is never mutated.
type Integer struct {
	value *big.Int
}

// ByteString is an immutable byte sequence.
type ByteString []byte

// Buffer is a mutable byte sequence shared by reference.
type Buffer struct {
	Data []byte
}

// Array is a mutable item sequence shared by reference.
type Array struct {
	items []StackItem
}

// Struct is an item sequence with value semantics: assigning a struct into a
// slot, collection or stack position stores a deep copy.
type Struct struct {
	items []StackItem
}

// Map is a dictionary with deterministic iteration order (insertion order).
// Keys are restricted to Boolean, Integer and ByteString.
type Map struct {
	keys   []StackItem
	values map[string]StackItem
	order  map[string]int
}

// Pointer is a code address inside a specific script.
type Pointer struct {
	script   *Script
	position int
}

// InteropInterface wraps an opaque host object.
type InteropInterface struct {
	Value any
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

var (
	itemNull  = Null{}
	itemTrue  = Boolean(true)
	itemFalse = Boolean(false)
	bigOne    = big.NewInt(1)
)

// NewInteger wraps v as an Integer item. The caller yields ownership of v.
func NewInteger(v *big.Int) Integer {
	return Integer{value: v}
}

// NewIntegerFromInt64 wraps a native integer.
func NewIntegerFromInt64(v int64) Integer {
	return Integer{value: big.NewInt(v)}
}

// NewBuffer wraps data as a Buffer without copying.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{Data: data}
}

// NewBufferZeroed allocates a zero-filled Buffer of n bytes.
func NewBufferZeroed(n int) *Buffer {
	return &Buffer{Data: make([]byte, n)}
}

// NewArray wraps items as an Array without copying the slice.
func NewArray(items []StackItem) *Array {
	return &Array{items: items}
}

// NewStruct wraps items as a Struct without copying the slice.
func NewStruct(items []StackItem) *Struct {
	return &Struct{items: items}
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{
		values: make(map[string]StackItem),
		order:  make(map[string]int),
	}
}

// NewPointer returns a Pointer to position within script.
func NewPointer(script *Script, position int) Pointer {
	return Pointer{script: script, position: position}
}

// NewInterop wraps a host object.
func NewInterop(value any) *InteropInterface {
	return &InteropInterface{Value: value}
}

// makeBool returns the canonical Boolean item for v.
func makeBool(v bool) Boolean {
	if v {
		return itemTrue
	}
	return itemFalse
}

// defaultItem returns the zero value NEWARRAY_T fills elements with.
func defaultItem(t ItemType) StackItem {
	switch t {
	case TypeBoolean:
		return itemFalse
	case TypeInteger:
		return NewIntegerFromInt64(0)
	case TypeByteString:
		return ByteString(nil)
	default:
		return itemNull
	}
}

// ---------------------------------------------------------------------------
// Type tags
// ---------------------------------------------------------------------------

func (Null) Type() ItemType              { return TypeAny }
func (Boolean) Type() ItemType           { return TypeBoolean }
func (Integer) Type() ItemType           { return TypeInteger }
func (ByteString) Type() ItemType        { return TypeByteString }
func (*Buffer) Type() ItemType           { return TypeBuffer }
func (*Array) Type() ItemType            { return TypeArray }
func (*Struct) Type() ItemType           { return TypeStruct }
func (*Map) Type() ItemType              { return TypeMap }
func (Pointer) Type() ItemType           { return TypePointer }
func (*InteropInterface) Type() ItemType { return TypeInteropInterface }

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

func (Null) Bool() bool      { return false }
func (b Boolean) Bool() bool { return bool(b) }
func (i Integer) Bool() bool { return i.value.Sign() != 0 }

func (s ByteString) Bool() bool {
	for _, b := range s {
		if b != 0 {
			return true
		}
	}
	return false
}

func (*Buffer) Bool() bool           { return true }
func (*Array) Bool() bool            { return true }
func (*Struct) Bool() bool           { return true }
func (*Map) Bool() bool              { return true }
func (Pointer) Bool() bool           { return true }
func (*InteropInterface) Bool() bool { return true }

// ---------------------------------------------------------------------------
// Numeric view
// ---------------------------------------------------------------------------

func (Null) BigInt() *big.Int {
	throwf(FaultTypeMismatch, "Null is not numeric")
	return nil
}

func (b Boolean) BigInt() *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

func (i Integer) BigInt() *big.Int { return i.value }

func (s ByteString) BigInt() *big.Int {
	return bytesToBigInt(s)
}

func (b *Buffer) BigInt() *big.Int {
	return bytesToBigInt(b.Data)
}

func (*Array) BigInt() *big.Int {
	throwf(FaultTypeMismatch, "Array is not numeric")
	return nil
}

func (*Struct) BigInt() *big.Int {
	throwf(FaultTypeMismatch, "Struct is not numeric")
	return nil
}

func (*Map) BigInt() *big.Int {
	throwf(FaultTypeMismatch, "Map is not numeric")
	return nil
}

func (Pointer) BigInt() *big.Int {
	throwf(FaultTypeMismatch, "Pointer is not numeric")
	return nil
}

func (*InteropInterface) BigInt() *big.Int {
	throwf(FaultTypeMismatch, "InteropInterface is not numeric")
	return nil
}

// ---------------------------------------------------------------------------
// Byte view
// ---------------------------------------------------------------------------

func (Null) Bytes() []byte {
	throwf(FaultTypeMismatch, "Null has no byte form")
	return nil
}

func (b Boolean) Bytes() []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func (i Integer) Bytes() []byte { return bigIntToBytes(i.value) }

func (s ByteString) Bytes() []byte { return s }

func (b *Buffer) Bytes() []byte { return b.Data }

func (*Array) Bytes() []byte {
	throwf(FaultTypeMismatch, "Array has no byte form")
	return nil
}

func (*Struct) Bytes() []byte {
	throwf(FaultTypeMismatch, "Struct has no byte form")
	return nil
}

func (*Map) Bytes() []byte {
	throwf(FaultTypeMismatch, "Map has no byte form")
	return nil
}

func (Pointer) Bytes() []byte {
	throwf(FaultTypeMismatch, "Pointer has no byte form")
	return nil
}

func (*InteropInterface) Bytes() []byte {
	throwf(FaultTypeMismatch, "InteropInterface has no byte form")
	return nil
}

// ---------------------------------------------------------------------------
// Collection accessors
// ---------------------------------------------------------------------------

// Len returns the element count.
func (a *Array) Len() int { return len(a.items) }

// Items exposes the backing slice. Mutations are visible to every holder.
func (a *Array) Items() []StackItem { return a.items }

// At returns the element at index i.
func (a *Array) At(i int) StackItem { return a.items[i] }

// Append adds an element at the end.
func (a *Array) Append(item StackItem) { a.items = append(a.items, item) }

// Set replaces the element at index i.
func (a *Array) Set(i int, item StackItem) { a.items[i] = item }

// Remove deletes the element at index i, shifting the tail left.
func (a *Array) Remove(i int) {
	a.items = append(a.items[:i], a.items[i+1:]...)
}

// Clear removes all elements.
func (a *Array) Clear() { a.items = a.items[:0] }

// Reverse reverses the elements in place.
func (a *Array) Reverse() {
	for i, j := 0, len(a.items)-1; i < j; i, j = i+1, j-1 {
		a.items[i], a.items[j] = a.items[j], a.items[i]
	}
}

func (s *Struct) Len() int                  { return len(s.items) }
func (s *Struct) Items() []StackItem        { return s.items }
func (s *Struct) At(i int) StackItem        { return s.items[i] }
func (s *Struct) Append(item StackItem)     { s.items = append(s.items, item) }
func (s *Struct) Set(i int, item StackItem) { s.items[i] = item }

func (s *Struct) Remove(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}

func (s *Struct) Clear() { s.items = s.items[:0] }

func (s *Struct) Reverse() {
	for i, j := 0, len(s.items)-1; i < j; i, j = i+1, j-1 {
		s.items[i], s.items[j] = s.items[j], s.items[i]
	}
}

// mapKey produces the lookup key for a map key item. Only primitive types
// with a stable byte form are admissible.
func mapKey(key StackItem) string {
	switch key.(type) {
	case Boolean, Integer, ByteString:
		return string(key.Type()) + string(key.Bytes())
	default:
		throwf(FaultTypeMismatch, "%s is not a valid map key", key.Type())
		return ""
	}
}

// Len returns the entry count.
func (m *Map) Len() int { return len(m.keys) }

// Get returns the value stored under key, if present.
func (m *Map) Get(key StackItem) (StackItem, bool) {
	v, ok := m.values[mapKey(key)]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key StackItem) bool {
	_, ok := m.values[mapKey(key)]
	return ok
}

// Set stores value under key, replacing any previous entry.
func (m *Map) Set(key StackItem, value StackItem) {
	k := mapKey(key)
	if _, ok := m.values[k]; !ok {
		m.order[k] = len(m.keys)
		m.keys = append(m.keys, key)
	}
	m.values[k] = value
}

// Delete removes the entry under key, if present.
func (m *Map) Delete(key StackItem) {
	k := mapKey(key)
	idx, ok := m.order[k]
	if !ok {
		return
	}
	delete(m.values, k)
	delete(m.order, k)
	m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	for i := idx; i < len(m.keys); i++ {
		m.order[mapKey(m.keys[i])] = i
	}
}

// Clear removes all entries.
func (m *Map) Clear() {
	m.keys = m.keys[:0]
	m.values = make(map[string]StackItem)
	m.order = make(map[string]int)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (m *Map) Keys() []StackItem {
	out := make([]StackItem, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns the values in key insertion order.
func (m *Map) Values() []StackItem {
	out := make([]StackItem, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[mapKey(k)])
	}
	return out
}

// Script returns the script the pointer addresses.
func (p Pointer) Script() *Script { return p.script }

// Position returns the instruction position.
func (p Pointer) Position() int { return p.position }

// ---------------------------------------------------------------------------
// Value semantics
// ---------------------------------------------------------------------------

// deepCopy clones structs recursively while sharing every other item. The
// seen map breaks reference cycles.
func deepCopy(item StackItem, seen map[StackItem]StackItem) StackItem {
	s, ok := item.(*Struct)
	if !ok {
		return item
	}
	if dup, ok := seen[item]; ok {
		return dup
	}
	dup := &Struct{items: make([]StackItem, len(s.items))}
	seen[item] = dup
	for i, sub := range s.items {
		dup.items[i] = deepCopy(sub, seen)
	}
	return dup
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// itemEquals implements the EQUAL opcode's semantics: primitives compare by
// byte content (capped by MaxComparableSize), structs compare element-wise,
// everything else by identity.
func itemEquals(a, b StackItem, limits *Limits) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch x := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Boolean:
		if y, ok := b.(Boolean); ok {
			return x == y
		}
	case Integer:
		if y, ok := b.(Integer); ok {
			return x.value.Cmp(y.value) == 0
		}
	case *Struct:
		y, ok := b.(*Struct)
		if !ok {
			return false
		}
		return structEquals(x, y, limits)
	case *Buffer:
		return a == b
	case *Array:
		return a == b
	case *Map:
		return a == b
	case *InteropInterface:
		if y, ok := b.(*InteropInterface); ok {
			return x == y || x.Value == y.Value
		}
		return false
	case Pointer:
		if y, ok := b.(Pointer); ok {
			return x.script == y.script && x.position == y.position
		}
		return false
	}
	// Remaining combinations are primitive byte comparisons across
	// Boolean, Integer and ByteString.
	ab, aok := primitiveBytes(a)
	bb, bok := primitiveBytes(b)
	if !aok || !bok {
		return false
	}
	if len(ab) > limits.MaxComparableSize || len(bb) > limits.MaxComparableSize {
		throwf(FaultInvalidOperand, "comparand exceeds %d bytes", limits.MaxComparableSize)
	}
	return string(ab) == string(bb)
}

// primitiveBytes returns the byte form of a primitive item.
func primitiveBytes(item StackItem) ([]byte, bool) {
	switch v := item.(type) {
	case Boolean:
		return v.Bytes(), true
	case Integer:
		return v.Bytes(), true
	case ByteString:
		return v, true
	default:
		return nil, false
	}
}

// structEquals compares structs element-wise with a bounded total size.
func structEquals(a, b *Struct, limits *Limits) bool {
	type pair struct{ a, b StackItem }
	stack := []pair{{a, b}}
	budget := limits.MaxComparableSize
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sa, aok := p.a.(*Struct)
		sb, bok := p.b.(*Struct)
		if aok != bok {
			return false
		}
		if aok {
			if sa == sb {
				continue
			}
			if len(sa.items) != len(sb.items) {
				return false
			}
			if budget -= len(sa.items); budget < 0 {
				throwf(FaultInvalidOperand, "struct comparison too deep")
			}
			for i := range sa.items {
				stack = append(stack, pair{sa.items[i], sb.items[i]})
			}
			continue
		}
		if !itemEquals(p.a, p.b, limits) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Conversion (CONVERT opcode)
// ---------------------------------------------------------------------------

// convertItem converts item to target type t, faulting with TypeMismatch on
// inadmissible conversions.
func convertItem(item StackItem, t ItemType, limits *Limits) StackItem {
	if item.Type() == t {
		return item
	}
	switch t {
	case TypeBoolean:
		return makeBool(item.Bool())
	case TypeInteger:
		switch item.(type) {
		case Boolean, Integer, ByteString, *Buffer:
			v := item.BigInt()
			assertIntegerWidth(v, limits)
			return NewInteger(v)
		}
	case TypeByteString:
		switch item.(type) {
		case Boolean, Integer, ByteString, *Buffer:
			b := item.Bytes()
			out := make([]byte, len(b))
			copy(out, b)
			return ByteString(out)
		}
	case TypeBuffer:
		switch item.(type) {
		case Boolean, Integer, ByteString, *Buffer:
			b := item.Bytes()
			out := make([]byte, len(b))
			copy(out, b)
			return NewBuffer(out)
		}
	case TypeArray:
		if s, ok := item.(*Struct); ok {
			items := make([]StackItem, len(s.items))
			copy(items, s.items)
			return NewArray(items)
		}
	case TypeStruct:
		if a, ok := item.(*Array); ok {
			items := make([]StackItem, len(a.items))
			copy(items, a.items)
			return NewStruct(items)
		}
	}
	throwf(FaultTypeMismatch, "cannot convert %s to %s", item.Type(), t)
	return nil
}

// assertIntegerWidth faults when v exceeds the integer wire width.
func assertIntegerWidth(v *big.Int, limits *Limits) {
	if len(bigIntToBytes(v)) > limits.MaxIntegerSize {
		throwf(FaultInvalidOperand, "integer exceeds %d bytes", limits.MaxIntegerSize)
	}
}

// ---------------------------------------------------------------------------
// Integer wire form
// ---------------------------------------------------------------------------

// bigIntToBytes encodes v as a minimal little-endian two's-complement byte
// sequence. Zero encodes as the empty sequence.
func bigIntToBytes(v *big.Int) []byte {
	sign := v.Sign()
	if sign == 0 {
		return nil
	}
	var raw []byte
	if sign > 0 {
		raw = v.Bytes()
		// Big-endian magnitude to little-endian.
		out := make([]byte, len(raw))
		for i, b := range raw {
			out[len(raw)-1-i] = b
		}
		// A set high bit would flip the sign on decode.
		if out[len(out)-1]&0x80 != 0 {
			out = append(out, 0)
		}
		return out
	}
	// Negative: two's complement of the magnitude, width chosen so the
	// high bit is set.
	mag := new(big.Int).Neg(v)
	n := (mag.BitLen() + 8) / 8
	if n == 0 {
		n = 1
	}
	comp := new(big.Int).Lsh(bigOne, uint(n*8))
	comp.Add(comp, v)
	be := comp.Bytes()
	out := make([]byte, n)
	for i := 0; i < len(be); i++ {
		out[i] = be[len(be)-1-i]
	}
	for i := len(be); i < n; i++ {
		out[i] = 0
	}
	// Trim redundant sign bytes.
	for len(out) > 1 && out[len(out)-1] == 0xFF && out[len(out)-2]&0x80 != 0 {
		out = out[:len(out)-1]
	}
	return out
}

// BigIntToBytes encodes v in the integer wire form.
func BigIntToBytes(v *big.Int) []byte { return bigIntToBytes(v) }

// BytesToBigInt decodes the integer wire form.
func BytesToBigInt(data []byte) *big.Int { return bytesToBigInt(data) }

// bytesToBigInt decodes a little-endian two's-complement byte sequence.
func bytesToBigInt(data []byte) *big.Int {
	if len(data) == 0 {
		return new(big.Int)
	}
	be := make([]byte, len(data))
	for i, b := range data {
		be[len(data)-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		comp := new(big.Int).Lsh(bigOne, uint(len(data)*8))
		v.Sub(v, comp)
	}
	return v
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// itemString renders an item for logs and the disassembler. Compound items
// render shallowly to stay cycle-safe.
func itemString(item StackItem) string {
	switch v := item.(type) {
	case nil:
		return "<nil>"
	case Null:
		return "null"
	case Boolean:
		return fmt.Sprintf("%t", bool(v))
	case Integer:
		return v.value.String()
	case ByteString:
		return fmt.Sprintf("0x%x", []byte(v))
	case *Buffer:
		return fmt.Sprintf("buffer(0x%x)", v.Data)
	case *Array:
		return fmt.Sprintf("array[%d]", len(v.items))
	case *Struct:
		return fmt.Sprintf("struct[%d]", len(v.items))
	case *Map:
		return fmt.Sprintf("map[%d]", len(v.keys))
	case Pointer:
		return fmt.Sprintf("pointer(%d)", v.position)
	case *InteropInterface:
		return fmt.Sprintf("interop(%T)", v.Value)
	default:
		return fmt.Sprintf("%v", item)
	}
}
