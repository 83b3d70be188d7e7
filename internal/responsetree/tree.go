package responsetree

import (
	"fmt"
	"sync"
)

// ResponseError is a GraphQL error recorded against a Path, ready to
// be rendered into the "errors" array alongside "data".
type ResponseError struct {
	Message string
	Path    []interface{}
}

type objectRecord struct {
	shape  *Shape
	fields []Value
}

type listRecord struct {
	items []Value
}

// Tree is the arena: every object and list record allocated during one
// operation's execution lives here, indexed by small integer ids. Every
// method takes the Tree's mutex, so concurrent callers are serialized.
// internal/executor does not use Tree; it assembles responses in a
// map[string]interface{} guarded by its own RWMutex.
type Tree struct {
	mu   sync.Mutex
	objects []*objectRecord
	lists   []*listRecord

	root     ObjectID
	dataNull bool
	errors   []ResponseError
}

// New creates an empty Tree with a root object allocated from
// rootShape (the operation's root selection shape: Query, Mutation or
// Subscription).
func New(rootShape *Shape) *Tree {
	t := &Tree{}
	t.root = t.InsertObject(rootShape)
	return t
}

// Root returns the root object id.
func (t *Tree) Root() ObjectID {
	return t.root
}

// InsertObject appends a fresh object record with every field slot set
// to unset, sized to shape.FieldCount().
func (t *Tree) InsertObject(shape *Shape) ObjectID {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := make([]Value, shape.FieldCount())
	for i := range fields {
		fields[i] = Unset()
	}
	t.objects = append(t.objects, &objectRecord{shape: shape, fields: fields})
	return ObjectID(len(t.objects) - 1)
}

// InsertList appends a fresh list record of the given length, every
// item initialized to unset.
func (t *Tree) InsertList(length int) ListID {
	t.mu.Lock()
	defer t.mu.Unlock()

	items := make([]Value, length)
	for i := range items {
		items[i] = Unset()
	}
	t.lists = append(t.lists, &listRecord{items: items})
	return ListID(len(t.lists) - 1)
}

// Write assigns a value into an object's field slot.
func (t *Tree) Write(obj ObjectID, field string, v Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.objectRecord(obj)
	if err != nil {
		return err
	}
	idx, ok := rec.shape.IndexOf(field)
	if !ok {
		return fmt.Errorf("responsetree: shape %q has no field %q", rec.shape.Name, field)
	}
	rec.fields[idx] = v
	return nil
}

// WriteListItem assigns a value into a list's item slot.
func (t *Tree) WriteListItem(list ListID, index int, v Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.listRecord(list)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rec.items) {
		return fmt.Errorf("responsetree: list %d index %d out of range [0,%d)", list, index, len(rec.items))
	}
	rec.items[index] = v
	return nil
}

// MakeInaccessible marks an object field null for client-facing
// serialization while retaining its underlying value for internal
// reuse (e.g. by a later @requires selection).
func (t *Tree) MakeInaccessible(obj ObjectID, field string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.objectRecord(obj)
	if err != nil {
		return err
	}
	idx, ok := rec.shape.IndexOf(field)
	if !ok {
		return fmt.Errorf("responsetree: shape %q has no field %q", rec.shape.Name, field)
	}
	rec.fields[idx].Inaccessible = true
	return nil
}

// PropagateNull walks path from the leaf upward until it finds a
// nullable field, clears the tree at that point, and records a single
// error. If no ancestor (including the root) is nullable, the whole
// response collapses: Serialize will then return a bare `null`.
func (t *Tree) PropagateNull(path Path, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errPath := append([]interface{}{}, path.ResponseKeys()...)
	t.errors = append(t.errors, ResponseError{Message: message, Path: errPath})

	idx := path.nearestNullableAncestor()
	if idx < 0 {
		t.dataNull = true
		return nil
	}

	seg := path[idx]
	rec, err := t.objectRecord(seg.Object)
	if err != nil {
		return err
	}
	fieldIdx, ok := rec.shape.IndexOf(seg.Field)
	if !ok {
		return fmt.Errorf("responsetree: shape %q has no field %q", rec.shape.Name, seg.Field)
	}
	rec.fields[fieldIdx] = Null()
	return nil
}

// RecordError appends an error without mutating the tree, used when a
// subgraph reports an error whose field was already resolved null by
// that subgraph (no gateway-side propagation needed).
func (t *Tree) RecordError(path Path, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, ResponseError{Message: message, Path: path.ResponseKeys()})
}

// Errors returns the recorded errors in insertion order.
func (t *Tree) Errors() []ResponseError {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ResponseError, len(t.errors))
	copy(out, t.errors)
	return out
}

func (t *Tree) objectRecord(id ObjectID) (*objectRecord, error) {
	if int(id) < 0 || int(id) >= len(t.objects) {
		return nil, fmt.Errorf("responsetree: object id %d out of range", id)
	}
	return t.objects[id], nil
}

func (t *Tree) listRecord(id ListID) (*listRecord, error) {
	if int(id) < 0 || int(id) >= len(t.lists) {
		return nil, fmt.Errorf("responsetree: list id %d out of range", id)
	}
	return t.lists[id], nil
}
