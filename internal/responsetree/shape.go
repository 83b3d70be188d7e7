// Package responsetree is an arena-allocated, typed output store. It
// generalizes the path-based map[string]interface{} merge in
// internal/executor's Merge function into a typed structure with
// explicit nullability and path-aware null propagation, per the
// gateway's response-shape rules. The executor does not use it; it
// still assembles responses with Merge.
package responsetree

// FieldSpec describes one response-key slot in a concrete Shape.
type FieldSpec struct {
	// Name is the response key (alias if the operation aliased the
	// field, otherwise the field name).
	Name string
	// Nullable controls how propagate_null behaves when a descendant
	// of this field fails: a nullable field absorbs the null, a
	// non-null field forces propagation to continue upward.
	Nullable bool
}

// Shape is a concrete object type's field layout: a fixed, ordered
// list of response keys. Field order drives JSON serialization order
// and must match the operation's selection order, not the
// subgraph schema's declaration order.
type Shape struct {
	Name   string
	Fields []FieldSpec

	index map[string]int
}

// NewShape builds a concrete Shape and its field-name index.
func NewShape(name string, fields []FieldSpec) *Shape {
	s := &Shape{Name: name, Fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

// FieldCount returns the number of response-key slots this shape
// carries; object records allocated from this shape always satisfy
// len(fields) == shape.FieldCount().
func (s *Shape) FieldCount() int {
	return len(s.Fields)
}

// IndexOf returns the slot index for a response key.
func (s *Shape) IndexOf(field string) (int, bool) {
	i, ok := s.index[field]
	return i, ok
}

// Nullable reports whether the named field may legally hold null.
func (s *Shape) Nullable(field string) bool {
	i, ok := s.index[field]
	if !ok {
		return true
	}
	return s.Fields[i].Nullable
}

// PolymorphicShape resolves to one of several concrete Shapes based on
// the subgraph-reported __typename, falling back to Fallback when the
// typename is unrecognized (e.g. a new subgraph-side union member the
// gateway's composed schema hasn't seen yet).
type PolymorphicShape struct {
	Name       string
	ByTypename map[string]*Shape
	Fallback   *Shape
}

// Resolve picks the concrete Shape for a runtime __typename.
func (p *PolymorphicShape) Resolve(typename string) *Shape {
	if s, ok := p.ByTypename[typename]; ok {
		return s
	}
	return p.Fallback
}
