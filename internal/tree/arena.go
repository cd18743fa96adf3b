// Package tree provides the arena-owned forest that backs the workspace.
//
// Every node lives in a slot of an Arena and is addressed by a NodeID
// handle. A handle packs the slot index with the slot generation, so a
// handle to a freed node never aliases a node that later reuses the slot.
//
// Parents hold ordered child handles and children hold their parent
// handle. Nothing is freed implicitly: removing a project from the
// workspace is an explicit Free of its subtree.
//
// An Arena is not safe for concurrent use.
package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleNode indicates a handle that was never issued or was freed.
	ErrStaleNode = errors.New("tree: stale or unknown node")

	// ErrAlreadyAttached indicates the child already has a parent.
	ErrAlreadyAttached = errors.New("tree: node already attached")

	// ErrCycle indicates an attachment would make a node its own ancestor.
	ErrCycle = errors.New("tree: attachment would create a cycle")

	// ErrNotAttached indicates a detach of a node without a parent.
	ErrNotAttached = errors.New("tree: node not attached")
)

// NodeID is a generation-checked handle to an arena slot. The zero value
// is never issued.
type NodeID uint64

// None is the invalid handle.
const None NodeID = 0

func makeID(index, gen uint32) NodeID {
	return NodeID(uint64(gen)<<32 | uint64(index))
}

func (id NodeID) index() uint32 { return uint32(id) }
func (id NodeID) gen() uint32   { return uint32(id >> 32) }

func (id NodeID) String() string {
	if id == None {
		return "none"
	}
	return fmt.Sprintf("%d@%d", id.index(), id.gen())
}

type slot struct {
	gen      uint32
	live     bool
	kind     Kind
	name     string
	parent   NodeID
	children []NodeID
}

// Arena owns every node of a forest.
type Arena struct {
	slots    []slot
	free     []uint32
	selected NodeID
	live     int
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// New allocates a detached node.
func (a *Arena) New(kind Kind, name string) NodeID {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
	}

	s := &a.slots[idx]
	s.gen++
	s.live = true
	s.kind = kind
	s.name = name
	s.parent = None
	s.children = nil
	a.live++

	return makeID(idx, s.gen)
}

func (a *Arena) get(id NodeID) (*slot, bool) {
	if id == None {
		return nil, false
	}
	idx := id.index()
	if int(idx) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[idx]
	if !s.live || s.gen != id.gen() {
		return nil, false
	}
	return s, true
}

// Valid reports whether id refers to a live node.
func (a *Arena) Valid(id NodeID) bool {
	_, ok := a.get(id)
	return ok
}

// Live returns the number of allocated nodes.
func (a *Arena) Live() int {
	return a.live
}

// Kind returns the kind of id, or zero for a stale handle.
func (a *Arena) Kind(id NodeID) Kind {
	if s, ok := a.get(id); ok {
		return s.kind
	}
	return 0
}

// Name returns the display name of id.
func (a *Arena) Name(id NodeID) string {
	if s, ok := a.get(id); ok {
		return s.name
	}
	return ""
}

// SetName changes the display name of id.
func (a *Arena) SetName(id NodeID, name string) error {
	s, ok := a.get(id)
	if !ok {
		return ErrStaleNode
	}
	s.name = name
	return nil
}

// Parent returns the parent of id, or None.
func (a *Arena) Parent(id NodeID) NodeID {
	if s, ok := a.get(id); ok {
		return s.parent
	}
	return None
}

// Children returns a copy of the ordered children of id.
func (a *Arena) Children(id NodeID) []NodeID {
	s, ok := a.get(id)
	if !ok || len(s.children) == 0 {
		return nil
	}
	out := make([]NodeID, len(s.children))
	copy(out, s.children)
	return out
}

// Len returns the number of children of id.
func (a *Arena) Len(id NodeID) int {
	if s, ok := a.get(id); ok {
		return len(s.children)
	}
	return 0
}

// Attach inserts child under parent at index. A negative index or one past
// the end appends.
func (a *Arena) Attach(parent, child NodeID, index int) error {
	ps, ok := a.get(parent)
	if !ok {
		return fmt.Errorf("attach parent %s: %w", parent, ErrStaleNode)
	}
	cs, ok := a.get(child)
	if !ok {
		return fmt.Errorf("attach child %s: %w", child, ErrStaleNode)
	}
	if cs.parent != None {
		return fmt.Errorf("attach child %s: %w", child, ErrAlreadyAttached)
	}
	if parent == child || a.IsAncestor(child, parent) {
		return ErrCycle
	}

	if index < 0 || index > len(ps.children) {
		index = len(ps.children)
	}
	ps.children = append(ps.children, None)
	copy(ps.children[index+1:], ps.children[index:])
	ps.children[index] = child
	cs.parent = parent

	return nil
}

// Detach removes id from its parent without freeing it.
func (a *Arena) Detach(id NodeID) error {
	s, ok := a.get(id)
	if !ok {
		return ErrStaleNode
	}
	if s.parent == None {
		return ErrNotAttached
	}
	ps, ok := a.get(s.parent)
	if !ok {
		return fmt.Errorf("detach %s: parent: %w", id, ErrStaleNode)
	}
	for i, c := range ps.children {
		if c == id {
			ps.children = append(ps.children[:i], ps.children[i+1:]...)
			break
		}
	}
	s.parent = None
	return nil
}

// Free detaches id and releases it together with its whole subtree.
// It returns the number of released nodes. A selection inside the subtree
// is cleared.
func (a *Arena) Free(id NodeID) int {
	s, ok := a.get(id)
	if !ok {
		return 0
	}
	if s.parent != None {
		_ = a.Detach(id)
	}
	if a.selected != None && (a.selected == id || a.IsAncestor(id, a.selected)) {
		a.selected = None
	}
	return a.release(id)
}

func (a *Arena) release(id NodeID) int {
	s, ok := a.get(id)
	if !ok {
		return 0
	}
	n := 1
	children := s.children
	s.children = nil
	for _, c := range children {
		n += a.release(c)
	}
	s.live = false
	s.parent = None
	s.name = ""
	a.free = append(a.free, id.index())
	a.live--
	return n
}

// IsAncestor reports whether ancestor is a strict ancestor of id.
func (a *Arena) IsAncestor(ancestor, id NodeID) bool {
	for p := a.Parent(id); p != None; p = a.Parent(p) {
		if p == ancestor {
			return true
		}
	}
	return false
}

// FirstChildOfKind returns the first direct child of parent with kind.
func (a *Arena) FirstChildOfKind(parent NodeID, kind Kind) (NodeID, bool) {
	s, ok := a.get(parent)
	if !ok {
		return None, false
	}
	for _, c := range s.children {
		if a.Kind(c) == kind {
			return c, true
		}
	}
	return None, false
}

// FirstChildWith returns the first direct child of parent whose kind has
// capability c.
func (a *Arena) FirstChildWith(parent NodeID, c Capability) (NodeID, bool) {
	s, ok := a.get(parent)
	if !ok {
		return None, false
	}
	for _, child := range s.children {
		if a.Kind(child).Is(c) {
			return child, true
		}
	}
	return None, false
}

// ChildrenOfKind returns the direct children of parent with kind, in order.
func (a *Arena) ChildrenOfKind(parent NodeID, kind Kind) []NodeID {
	s, ok := a.get(parent)
	if !ok {
		return nil
	}
	var out []NodeID
	for _, c := range s.children {
		if a.Kind(c) == kind {
			out = append(out, c)
		}
	}
	return out
}

// ChildrenWith returns the direct children of parent whose kind has
// capability c, in order.
func (a *Arena) ChildrenWith(parent NodeID, c Capability) []NodeID {
	s, ok := a.get(parent)
	if !ok {
		return nil
	}
	var out []NodeID
	for _, child := range s.children {
		if a.Kind(child).Is(c) {
			out = append(out, child)
		}
	}
	return out
}

// CountKind returns how many direct children of parent have kind.
func (a *Arena) CountKind(parent NodeID, kind Kind) int {
	return len(a.ChildrenOfKind(parent, kind))
}

// Select makes id the active selection.
func (a *Arena) Select(id NodeID) error {
	if !a.Valid(id) {
		return ErrStaleNode
	}
	a.selected = id
	return nil
}

// Selected returns the active selection, or None.
func (a *Arena) Selected() NodeID {
	if !a.Valid(a.selected) {
		return None
	}
	return a.selected
}

// Walk visits id and its descendants depth-first in child order. Returning
// false from fn skips the children of the visited node.
func (a *Arena) Walk(id NodeID, fn func(id NodeID, depth int) bool) {
	a.walk(id, 0, fn)
}

func (a *Arena) walk(id NodeID, depth int, fn func(NodeID, int) bool) {
	s, ok := a.get(id)
	if !ok {
		return
	}
	if !fn(id, depth) {
		return
	}
	for _, c := range s.children {
		a.walk(c, depth+1, fn)
	}
}
