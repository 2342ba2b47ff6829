package wire

import (
	"fmt"

	"github.com/chazu/covenant/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode is the canonical CBOR mode so equal values always encode to
// equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Item type tags.
const (
	TagNull       = "null"
	TagBoolean    = "boolean"
	TagInteger    = "integer"
	TagByteString = "bytestring"
	TagBuffer     = "buffer"
	TagArray      = "array"
	TagStruct     = "struct"
	TagMap        = "map"
)

// Item is the portable form of a stack item. Pointers and interop handles
// are execution-scoped and have no wire form.
type Item struct {
	Type  string  `cbor:"type"`
	Bool  bool    `cbor:"bool,omitempty"`
	Int   []byte  `cbor:"int,omitempty"` // little-endian two's complement
	Bytes []byte  `cbor:"bytes,omitempty"`
	Items []*Item `cbor:"items,omitempty"`
	Pairs []*Pair `cbor:"pairs,omitempty"`
}

// Pair is one map entry.
type Pair struct {
	Key   *Item `cbor:"key"`
	Value *Item `cbor:"value"`
}

// Result is the outcome of one execution: the final state, the fault reason
// if any, and the result stack bottom first.
type Result struct {
	State string  `cbor:"state"`
	Fault string  `cbor:"fault,omitempty"`
	Stack []*Item `cbor:"stack,omitempty"`
}

// FromStackItem converts a stack item to its wire form. Reference cycles
// and execution-scoped items are rejected.
func FromStackItem(item vm.StackItem) (*Item, error) {
	return fromStackItem(item, make(map[vm.StackItem]bool))
}

func fromStackItem(item vm.StackItem, seen map[vm.StackItem]bool) (*Item, error) {
	switch v := item.(type) {
	case vm.Null:
		return &Item{Type: TagNull}, nil
	case vm.Boolean:
		return &Item{Type: TagBoolean, Bool: bool(v)}, nil
	case vm.Integer:
		return &Item{Type: TagInteger, Int: v.Bytes()}, nil
	case vm.ByteString:
		return &Item{Type: TagByteString, Bytes: v}, nil
	case *vm.Buffer:
		return &Item{Type: TagBuffer, Bytes: v.Data}, nil
	case *vm.Array:
		if seen[item] {
			return nil, fmt.Errorf("wire: item graph contains a cycle")
		}
		seen[item] = true
		defer delete(seen, item)
		out := &Item{Type: TagArray}
		for _, sub := range v.Items() {
			w, err := fromStackItem(sub, seen)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, w)
		}
		return out, nil
	case *vm.Struct:
		if seen[item] {
			return nil, fmt.Errorf("wire: item graph contains a cycle")
		}
		seen[item] = true
		defer delete(seen, item)
		out := &Item{Type: TagStruct}
		for _, sub := range v.Items() {
			w, err := fromStackItem(sub, seen)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, w)
		}
		return out, nil
	case *vm.Map:
		if seen[item] {
			return nil, fmt.Errorf("wire: item graph contains a cycle")
		}
		seen[item] = true
		defer delete(seen, item)
		out := &Item{Type: TagMap}
		for _, k := range v.Keys() {
			value, _ := v.Get(k)
			wk, err := fromStackItem(k, seen)
			if err != nil {
				return nil, err
			}
			wv, err := fromStackItem(value, seen)
			if err != nil {
				return nil, err
			}
			out.Pairs = append(out.Pairs, &Pair{Key: wk, Value: wv})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: %s has no wire form", item.Type())
	}
}

// ToStackItem converts a wire item back to a stack item.
func (i *Item) ToStackItem() (vm.StackItem, error) {
	switch i.Type {
	case TagNull:
		return vm.Null{}, nil
	case TagBoolean:
		return vm.Boolean(i.Bool), nil
	case TagInteger:
		return vm.NewInteger(vm.BytesToBigInt(i.Int)), nil
	case TagByteString:
		return vm.ByteString(i.Bytes), nil
	case TagBuffer:
		data := make([]byte, len(i.Bytes))
		copy(data, i.Bytes)
		return vm.NewBuffer(data), nil
	case TagArray, TagStruct:
		items := make([]vm.StackItem, 0, len(i.Items))
		for _, sub := range i.Items {
			item, err := sub.ToStackItem()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if i.Type == TagStruct {
			return vm.NewStruct(items), nil
		}
		return vm.NewArray(items), nil
	case TagMap:
		m := vm.NewMap()
		for _, p := range i.Pairs {
			if p.Key == nil || p.Value == nil {
				return nil, fmt.Errorf("wire: map pair with missing key or value")
			}
			switch p.Key.Type {
			case TagBoolean, TagInteger, TagByteString:
			default:
				return nil, fmt.Errorf("wire: %s is not a valid map key", p.Key.Type)
			}
			key, err := p.Key.ToStackItem()
			if err != nil {
				return nil, err
			}
			value, err := p.Value.ToStackItem()
			if err != nil {
				return nil, err
			}
			m.Set(key, value)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("wire: unknown item type %q", i.Type)
	}
}

// NewResult captures an engine's final state and result stack.
func NewResult(e *vm.Engine) (*Result, error) {
	r := &Result{State: e.State().String()}
	if err := e.FaultError(); err != nil {
		r.Fault = err.Error()
	}
	for _, item := range e.ResultStack().Items() {
		w, err := FromStackItem(item)
		if err != nil {
			return nil, err
		}
		r.Stack = append(r.Stack, w)
	}
	return r, nil
}

// MarshalItem serializes an Item to canonical CBOR bytes.
func MarshalItem(i *Item) ([]byte, error) {
	return cborEncMode.Marshal(i)
}

// UnmarshalItem deserializes an Item from CBOR bytes.
func UnmarshalItem(data []byte) (*Item, error) {
	var i Item
	if err := cbor.Unmarshal(data, &i); err != nil {
		return nil, fmt.Errorf("wire: unmarshal item: %w", err)
	}
	return &i, nil
}

// MarshalResult serializes a Result to canonical CBOR bytes.
func MarshalResult(r *Result) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalResult deserializes a Result from CBOR bytes.
func UnmarshalResult(data []byte) (*Result, error) {
	var r Result
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("wire: unmarshal result: %w", err)
	}
	return &r, nil
}
