package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind is the primitive type held by a metadata Value.
type ValueKind int

const (
	NullValue ValueKind = iota
	StringValue
	IntValue
	FloatValue
	BoolValue
)

// Value is a metadata primitive: string, integer, float, bool or null.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
}

func String(s string) Value { return Value{kind: StringValue, s: s} }
func Int(i int64) Value     { return Value{kind: IntValue, i: i} }
func Float(f float64) Value { return Value{kind: FloatValue, f: f} }
func Bool(b bool) Value     { return Value{kind: BoolValue, b: b} }
func Null() Value           { return Value{} }

func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string value and whether v holds a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == StringValue }

func (v Value) Int() (int64, bool) { return v.i, v.kind == IntValue }

func (v Value) Float() (float64, bool) { return v.f, v.kind == FloatValue }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == BoolValue }

// Any returns the value as a plain Go value (nil for null).
func (v Value) Any() any {
	switch v.kind {
	case StringValue:
		return v.s
	case IntValue:
		return v.i
	case FloatValue:
		return v.f
	case BoolValue:
		return v.b
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case StringValue:
		return v.s
	case IntValue:
		return strconv.FormatInt(v.i, 10)
	case FloatValue:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case BoolValue:
		return strconv.FormatBool(v.b)
	}
	return "null"
}

// Equal reports whether two values have the same kind and content.
// NaN floats compare equal to each other so round trips stay reflexive.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case StringValue:
		return v.s == o.s
	case IntValue:
		return v.i == o.i
	case FloatValue:
		if math.IsNaN(v.f) && math.IsNaN(o.f) {
			return true
		}
		return v.f == o.f
	case BoolValue:
		return v.b == o.b
	}
	return true
}

// ValueOf converts a plain Go primitive into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint32:
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported metadata value type %T", ErrMalformedTrace, x)
}

// strNode builds a string scalar. Multi-line text is double-quoted: block
// scalars lose leading and lone newlines on the way back in.
func strNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.ContainsAny(s, "\n\r") {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

func (v Value) yamlNode() *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch v.kind {
	case StringValue:
		return strNode(v.s)
	case IntValue:
		n.Tag = "!!int"
		n.Value = strconv.FormatInt(v.i, 10)
	case FloatValue:
		n.Tag = "!!float"
		switch {
		case math.IsNaN(v.f):
			n.Value = ".nan"
		case math.IsInf(v.f, 1):
			n.Value = ".inf"
		case math.IsInf(v.f, -1):
			n.Value = "-.inf"
		default:
			n.Value = strconv.FormatFloat(v.f, 'g', -1, 64)
			if !bytes.ContainsAny([]byte(n.Value), ".eE") {
				n.Value += ".0"
			}
		}
	case BoolValue:
		n.Tag = "!!bool"
		n.Value = strconv.FormatBool(v.b)
	default:
		n.Tag = "!!null"
		n.Value = "null"
	}
	return n
}

func valueFromYAML(n *yaml.Node) (Value, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return Value{}, fmt.Errorf("%w: metadata values must be scalars (line %d)", ErrMalformedTrace, n.Line)
	}
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedTrace, err)
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedTrace, err)
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedTrace, err)
		}
		return Float(f), nil
	}
	return String(n.Value), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case StringValue:
		return json.Marshal(v.s)
	case IntValue:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case FloatValue:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("metadata float %v has no JSON form", v.f)
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !bytes.ContainsAny([]byte(s), ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case BoolValue:
		return []byte(strconv.FormatBool(v.b)), nil
	}
	return []byte("null"), nil
}

func valueFromJSON(tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		s := t.String()
		if !bytes.ContainsAny([]byte(s), ".eE") {
			if i, err := t.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedTrace, err)
		}
		return Float(f), nil
	}
	return Value{}, fmt.Errorf("%w: metadata values must be primitives, got %v", ErrMalformedTrace, tok)
}

// Metadata is an insertion-ordered map of string keys to primitive values.
// The zero value is an empty map ready to use.
type Metadata struct {
	keys []string
	vals map[string]Value
}

// MetadataOf builds metadata from alternating key/value pairs.
// It panics on an odd argument count or an unsupported value type.
func MetadataOf(kv ...any) Metadata {
	if len(kv)%2 != 0 {
		panic("trace: MetadataOf needs key/value pairs")
	}
	var m Metadata
	for i := 0; i < len(kv); i += 2 {
		v, err := ValueOf(kv[i+1])
		if err != nil {
			panic(err)
		}
		m.Set(kv[i].(string), v)
	}
	return m
}

// Set stores v under key. Re-setting an existing key keeps its position.
func (m *Metadata) Set(key string, v Value) {
	if m.vals == nil {
		m.vals = make(map[string]Value)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m Metadata) Get(key string) (Value, bool) {
	v, ok := m.vals[key]
	return v, ok
}

func (m Metadata) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Merge copies every entry of o into m, in o's order.
func (m *Metadata) Merge(o Metadata) {
	for _, k := range o.keys {
		m.Set(k, o.vals[k])
	}
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	var c Metadata
	c.Merge(m)
	return c
}

// Equal compares keys, order and values.
func (m Metadata) Equal(o Metadata) bool {
	if len(m.keys) != len(o.keys) {
		return false
	}
	for i, k := range m.keys {
		if o.keys[i] != k || !m.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

func (m Metadata) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		n.Content = append(n.Content,
			strNode(k),
			m.vals[k].yamlNode())
	}
	return n, nil
}

func (m *Metadata) UnmarshalYAML(value *yaml.Node) error {
	*m = Metadata{}
	if value.ShortTag() == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: metadata must be a mapping (line %d)", ErrMalformedTrace, value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		v, err := valueFromYAML(value.Content[i+1])
		if err != nil {
			return err
		}
		m.Set(value.Content[i].Value, v)
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := m.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTrace, err)
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: metadata must be an object", ErrMalformedTrace)
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedTrace, err)
		}
		key, _ := kt.(string)
		vt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedTrace, err)
		}
		v, err := valueFromJSON(vt)
		if err != nil {
			return err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTrace, err)
	}
	return nil
}
