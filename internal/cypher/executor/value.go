package executor

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/aleksaelezovic/nodus/internal/index"
)

// Kind discriminates the value union.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindFloat
	KindBool
	KindNode
	KindRel
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindNode:
		return "node"
	case KindRel:
		return "relationship"
	default:
		return "unknown"
	}
}

// Value is a runtime query value. Exactly the field selected by Kind
// is meaningful.
type Value struct {
	Kind  Kind
	Text  string
	Float float64
	Bool  bool
	Node  uint64
	Rel   index.Triple
}

func Null() Value              { return Value{Kind: KindNull} }
func Text(s string) Value      { return Value{Kind: KindText, Text: s} }
func Float(f float64) Value    { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func Node(id uint64) Value     { return Value{Kind: KindNode, Node: id} }
func Rel(t index.Triple) Value { return Value{Kind: KindRel, Rel: t} }

// Equal compares two values. Values of different kinds are never
// equal; null equals nothing, including null.
func (v Value) Equal(other Value) bool {
	if v.Kind == KindNull || other.Kind == KindNull || v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindText:
		return v.Text == other.Text
	case KindFloat:
		return v.Float == other.Float
	case KindBool:
		return v.Bool == other.Bool
	case KindNode:
		return v.Node == other.Node
	case KindRel:
		return v.Rel == other.Rel
	}
	return false
}

// TermText renders the value as dictionary term text. Property values
// and literals meet in this canonical form: floats drop a trailing
// ".0" so that 30 and 30.0 name the same term.
func (v Value) TermText() (string, bool) {
	switch v.Kind {
	case KindText:
		return v.Text, true
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64), true
	case KindBool:
		if v.Bool {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

// TermValue interprets dictionary term text as a value: numbers become
// floats, "true"/"false" become booleans, everything else stays text.
func TermValue(text string) Value {
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Float(f)
	}
	switch text {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return Text(text)
}

// appendKey appends a canonical byte encoding of v, used for distinct
// row hashing. The kind byte keeps values of different kinds from
// colliding.
func (v Value) appendKey(buf []byte) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KindText:
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(v.Text)))
		buf = append(buf, n[:]...)
		buf = append(buf, v.Text...)
	case KindFloat:
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], math.Float64bits(v.Float))
		buf = append(buf, n[:]...)
	case KindBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindNode:
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], v.Node)
		buf = append(buf, n[:]...)
	case KindRel:
		var n [24]byte
		binary.BigEndian.PutUint64(n[0:], v.Rel.Subject)
		binary.BigEndian.PutUint64(n[8:], v.Rel.Predicate)
		binary.BigEndian.PutUint64(n[16:], v.Rel.Object)
		buf = append(buf, n[:]...)
	}
	return buf
}

// Record maps variable and column names to values.
type Record map[string]Value

// clone copies the record so downstream operators can extend it
// without aliasing.
func (r Record) clone() Record {
	out := make(Record, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}
