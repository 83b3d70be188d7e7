package responsetree

import "encoding/json"

// Kind discriminates the tagged union a Value holds.
type Kind int

const (
	KindUnset Kind = iota
	KindNull
	KindNumber
	KindString
	KindBool
	KindList
	KindObject
	KindInlineJSON
)

// ObjectID indexes into Tree.objects.
type ObjectID int

// ListID indexes into Tree.lists.
type ListID int

// Value is one response-tree slot: a scalar, a reference to a list or
// object record living in the same arena, or inline pre-serialized
// JSON (used for scalar custom types the gateway doesn't interpret,
// e.g. JSON/Any scalars passed through verbatim).
type Value struct {
	Kind Kind

	Number float64
	Str    string
	Bool   bool
	List   ListID
	Object ObjectID
	Inline json.RawMessage

	// Inaccessible marks a value that make_inaccessible stripped for
	// client-facing serialization while the underlying payload is
	// retained for later internal reads (e.g. a @requires selection
	// computed after an @inaccessible field).
	Inaccessible bool
}

func Null() Value              { return Value{Kind: KindNull} }
func Unset() Value             { return Value{Kind: KindUnset} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value   { return Value{Kind: KindBool, Bool: b} }
func ObjectValue(id ObjectID) Value { return Value{Kind: KindObject, Object: id} }
func ListValue(id ListID) Value     { return Value{Kind: KindList, List: id} }
func InlineJSON(raw json.RawMessage) Value { return Value{Kind: KindInlineJSON, Inline: raw} }
