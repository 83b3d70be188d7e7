package responsetree

// Segment is one step of a Path: either a field access into an object
// record or an index access into a list record.
type Segment struct {
	IsList bool

	Object   ObjectID
	Field    string
	Nullable bool

	List  ListID
	Index int
}

// Path is the root-relative sequence of accesses leading to a value,
// accumulated by the executor as it descends into the response tree.
// It doubles as the GraphQL error path once translated via
// ResponseKeys.
type Path []Segment

// ResponseKeys renders a Path as the []interface{} GraphQL errors use
// for their "path" field (string response keys, int list indices).
func (p Path) ResponseKeys() []interface{} {
	keys := make([]interface{}, 0, len(p))
	for _, seg := range p {
		if seg.IsList {
			keys = append(keys, seg.Index)
		} else {
			keys = append(keys, seg.Field)
		}
	}
	return keys
}

// nearestNullableAncestor scans the path from the leaf upward and
// returns the index of the last segment whose field is nullable, or
// -1 if every ancestor (including root) is non-null.
func (p Path) nearestNullableAncestor() int {
	for i := len(p) - 1; i >= 0; i-- {
		seg := p[i]
		if seg.IsList {
			// List elements are never themselves nullable slots in
			// this model; nullability lives on the object field the
			// list is stored under. Continue walking up.
			continue
		}
		if seg.Nullable {
			return i
		}
	}
	return -1
}
