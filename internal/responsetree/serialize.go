package responsetree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialize renders the tree's data under its root object, in
// response-key order (the shape's field order, which mirrors the
// operation's selection order, not arena allocation order or the
// subgraph schema's declaration order). If the tree collapsed to
// data: null (PropagateNull reached the root), it returns a bare
// `null` payload.
func (t *Tree) Serialize() (json.RawMessage, []ResponseError) {
	t.mu.Lock()
	defer t.mu.Unlock()

	errs := make([]ResponseError, len(t.errors))
	copy(errs, t.errors)

	if t.dataNull {
		return json.RawMessage("null"), errs
	}

	var buf bytes.Buffer
	t.writeObject(&buf, t.root)
	return json.RawMessage(buf.Bytes()), errs
}

func (t *Tree) writeObject(buf *bytes.Buffer, id ObjectID) {
	rec := t.objects[id]
	buf.WriteByte('{')
	first := true
	for i, f := range rec.shape.Fields {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeJSONString(buf, f.Name)
		buf.WriteByte(':')
		v := rec.fields[i]
		if v.Kind == KindUnset {
			buf.WriteString("null")
			continue
		}
		t.writeValue(buf, v)
	}
	buf.WriteByte('}')
}

func (t *Tree) writeList(buf *bytes.Buffer, id ListID) {
	rec := t.lists[id]
	buf.WriteByte('[')
	for i, v := range rec.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if v.Kind == KindUnset {
			buf.WriteString("null")
			continue
		}
		t.writeValue(buf, v)
	}
	buf.WriteByte(']')
}

func (t *Tree) writeValue(buf *bytes.Buffer, v Value) {
	if v.Inaccessible {
		buf.WriteString("null")
		return
	}

	switch v.Kind {
	case KindNull, KindUnset:
		buf.WriteString("null")
	case KindString:
		writeJSONString(buf, v.Str)
	case KindNumber:
		buf.WriteString(strconv.FormatFloat(v.Number, 'g', -1, 64))
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindObject:
		t.writeObject(buf, v.Object)
	case KindList:
		t.writeList(buf, v.List)
	case KindInlineJSON:
		if len(v.Inline) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(v.Inline)
		}
	default:
		panic(fmt.Sprintf("responsetree: unhandled value kind %d", v.Kind))
	}
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
