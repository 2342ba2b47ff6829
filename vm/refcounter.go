package vm

// ---------------------------------------------------------------------------
// Reference ledger
// ---------------------------------------------------------------------------

// refCounter is the global reference ledger for one engine. It counts every
// live reference an item holds on an evaluation stack, in a slot, or inside a
// tracked compound, and reclaims unreachable reference cycles with a
// strongly-connected-component sweep.
type refCounter struct {
	size         int
	tracked      map[StackItem]*refEntry
	zeroReferred map[StackItem]struct{}
}

// refEntry records the references held on a tracked compound or buffer.
type refEntry struct {
	stackRefs  int
	objectRefs map[StackItem]int // parent compound -> reference count
}

func newRefCounter() *refCounter {
	return &refCounter{
		tracked:      make(map[StackItem]*refEntry),
		zeroReferred: make(map[StackItem]struct{}),
	}
}

// isTracked reports whether the ledger follows item individually. Primitive
// items are immutable and only contribute to the total count.
func isTracked(item StackItem) bool {
	switch item.(type) {
	case *Array, *Struct, *Map, *Buffer:
		return true
	default:
		return false
	}
}

func (rc *refCounter) entry(item StackItem) *refEntry {
	e, ok := rc.tracked[item]
	if !ok {
		e = &refEntry{objectRefs: make(map[StackItem]int)}
		rc.tracked[item] = e
	}
	return e
}

// addStackReference records n new stack or slot references to item.
func (rc *refCounter) addStackReference(item StackItem, n int) {
	rc.size += n
	if !isTracked(item) {
		return
	}
	e := rc.entry(item)
	e.stackRefs += n
	delete(rc.zeroReferred, item)
}

// removeStackReference releases one stack or slot reference to item.
func (rc *refCounter) removeStackReference(item StackItem) {
	rc.size--
	if !isTracked(item) {
		return
	}
	e, ok := rc.tracked[item]
	if !ok {
		return
	}
	e.stackRefs--
	if e.stackRefs <= 0 {
		rc.zeroReferred[item] = struct{}{}
	}
}

// addReference records that parent now contains child.
func (rc *refCounter) addReference(child StackItem, parent StackItem) {
	rc.size++
	if !isTracked(child) {
		return
	}
	e := rc.entry(child)
	e.objectRefs[parent]++
	delete(rc.zeroReferred, child)
}

// removeReference records that parent no longer contains child.
func (rc *refCounter) removeReference(child StackItem, parent StackItem) {
	rc.size--
	if !isTracked(child) {
		return
	}
	e, ok := rc.tracked[child]
	if !ok {
		return
	}
	if n := e.objectRefs[parent]; n <= 1 {
		delete(e.objectRefs, parent)
	} else {
		e.objectRefs[parent] = n - 1
	}
	if e.stackRefs <= 0 {
		rc.zeroReferred[child] = struct{}{}
	}
}

// ---------------------------------------------------------------------------
// Cycle reclamation
// ---------------------------------------------------------------------------

// checkZeroReferred sweeps items that lost their last direct reference. A
// tracked item survives only if some strongly connected component holding a
// stack reference can reach it. Everything else, reference cycles included,
// is untracked and its internal references are subtracted from the ledger.
// Returns the new total reference count.
func (rc *refCounter) checkZeroReferred() int {
	if len(rc.zeroReferred) == 0 {
		return rc.size
	}
	rc.zeroReferred = make(map[StackItem]struct{})

	comp := rc.condense()

	// Seed liveness with components holding direct stack references,
	// then flow it parent to child.
	live := make(map[int]bool)
	var flow func(c int)
	flow = func(c int) {
		if live[c] {
			return
		}
		live[c] = true
		for _, child := range comp.edges[c] {
			flow(child)
		}
	}
	for c, members := range comp.members {
		for _, item := range members {
			if rc.tracked[item].stackRefs > 0 {
				flow(c)
				break
			}
		}
	}

	for c, members := range comp.members {
		if live[c] {
			continue
		}
		for _, item := range members {
			rc.reclaim(item)
		}
	}
	return rc.size
}

// reclaim removes item from the ledger, dropping the references it holds on
// its children and emptying it so the cycle is broken for the collector.
func (rc *refCounter) reclaim(item StackItem) {
	e, ok := rc.tracked[item]
	if !ok {
		return
	}
	delete(rc.tracked, item)
	rc.size -= e.stackRefs

	eachChild(item, func(child StackItem) {
		rc.size--
		// Primitive children are not graph nodes and cannot key a map.
		if !isTracked(child) {
			return
		}
		if ce, ok := rc.tracked[child]; ok {
			delete(ce.objectRefs, item)
		}
	})
	switch v := item.(type) {
	case *Array:
		v.Clear()
	case *Struct:
		v.Clear()
	case *Map:
		v.Clear()
	}
}

// eachChild visits every item reference a compound holds, once per slot.
func eachChild(item StackItem, fn func(StackItem)) {
	switch v := item.(type) {
	case *Array:
		for _, sub := range v.items {
			fn(sub)
		}
	case *Struct:
		for _, sub := range v.items {
			fn(sub)
		}
	case *Map:
		for _, k := range v.keys {
			fn(k)
			fn(v.values[mapKey(k)])
		}
	}
}

// condensation is the component DAG of the tracked-item graph.
type condensation struct {
	members map[int][]StackItem
	edges   map[int][]int
}

// condense runs Tarjan's algorithm over the tracked items, with edges from
// parent compound to contained child.
func (rc *refCounter) condense() *condensation {
	type nodeState struct {
		index   int
		lowlink int
		onStack bool
		visited bool
	}
	states := make(map[StackItem]*nodeState, len(rc.tracked))
	for item := range rc.tracked {
		states[item] = &nodeState{}
	}

	out := &condensation{
		members: make(map[int][]StackItem),
		edges:   make(map[int][]int),
	}
	compOf := make(map[StackItem]int)
	index := 0
	nextComp := 0
	var stack []StackItem

	var strongconnect func(v StackItem)
	strongconnect = func(v StackItem) {
		sv := states[v]
		sv.visited = true
		sv.index = index
		sv.lowlink = index
		index++
		stack = append(stack, v)
		sv.onStack = true

		eachChild(v, func(w StackItem) {
			if !isTracked(w) {
				return
			}
			sw, ok := states[w]
			if !ok {
				return
			}
			if !sw.visited {
				strongconnect(w)
				if sw.lowlink < sv.lowlink {
					sv.lowlink = sw.lowlink
				}
			} else if sw.onStack {
				if sw.index < sv.lowlink {
					sv.lowlink = sw.index
				}
			}
		})

		if sv.lowlink == sv.index {
			c := nextComp
			nextComp++
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				states[w].onStack = false
				compOf[w] = c
				out.members[c] = append(out.members[c], w)
				if w == v {
					break
				}
			}
		}
	}

	for item := range rc.tracked {
		if !states[item].visited {
			strongconnect(item)
		}
	}

	// Component edges follow containment, deduplicated per parent.
	for item := range rc.tracked {
		from := compOf[item]
		seen := make(map[int]bool)
		eachChild(item, func(child StackItem) {
			if !isTracked(child) {
				return
			}
			to, ok := compOf[child]
			if !ok || to == from || seen[to] {
				return
			}
			seen[to] = true
			out.edges[from] = append(out.edges[from], to)
		})
	}
	return out
}
