// Package yamldoc is the order-preserving document layer the config codec
// and the policy/template document fields build on. It is the Go stand-in
// for cumulogenesis's ordered_yaml_load/ordered_yaml_dump helpers: instead
// of hand-rolling an OrderedDict on top of a map-flattening YAML library,
// it leans on gopkg.in/yaml.v3's own yaml.Node, which already preserves
// source key order natively.
package yamldoc

import (
	"bytes"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Mapping wraps a yaml.v3 mapping node. Keys() returns them in the order
// they appeared in the source document (or were inserted via Set), which
// is exactly what the round-trip law in the config codec depends on.
type Mapping struct {
	node *yaml.Node
}

// NewMapping returns an empty, ready-to-populate Mapping.
func NewMapping() *Mapping {
	return &Mapping{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// Decode parses doc as a single YAML document and returns its top-level
// mapping. It is an error for the document's root to be anything but a
// mapping.
func Decode(doc []byte) (*Mapping, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("yamldoc: decode: %w", err)
	}
	content := &root
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return NewMapping(), nil
		}
		content = root.Content[0]
	}
	if content.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yamldoc: decode: top-level document is not a mapping")
	}
	return &Mapping{node: content}, nil
}

// DecodeNode wraps an already-parsed mapping node without copying it.
func DecodeNode(n *yaml.Node) (*Mapping, error) {
	if n == nil {
		return nil, fmt.Errorf("yamldoc: decode node: nil node")
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yamldoc: decode node: not a mapping")
	}
	return &Mapping{node: n}, nil
}

// Node exposes the underlying yaml.Node, e.g. to embed this mapping as a
// value inside a larger document being built with Set.
func (m *Mapping) Node() *yaml.Node {
	if m == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	}
	return m.node
}

// Encode renders the mapping back to YAML bytes, preserving key order.
func (m *Mapping) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.Node()); err != nil {
		return nil, fmt.Errorf("yamldoc: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yamldoc: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Keys returns the mapping's keys in document order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.node.Content)/2)
	for i := 0; i < len(m.node.Content); i += 2 {
		keys = append(keys, m.node.Content[i].Value)
	}
	return keys
}

// Len returns the number of keys in the mapping.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.node.Content) / 2
}

// Get returns the raw value node for key, and whether it was present.
func (m *Mapping) Get(key string) (*yaml.Node, bool) {
	if m == nil {
		return nil, false
	}
	for i := 0; i < len(m.node.Content); i += 2 {
		if m.node.Content[i].Value == key {
			return m.node.Content[i+1], true
		}
	}
	return nil, false
}

// GetString returns key's scalar value as a string.
func (m *Mapping) GetString(key string) (string, bool) {
	n, ok := m.Get(key)
	if !ok || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return n.Value, true
}

// GetBool returns key's scalar value decoded as a bool.
func (m *Mapping) GetBool(key string) (bool, bool) {
	n, ok := m.Get(key)
	if !ok {
		return false, false
	}
	var v bool
	if err := n.Decode(&v); err != nil {
		return false, false
	}
	return v, true
}

// GetMapping returns key's value as a nested Mapping.
func (m *Mapping) GetMapping(key string) (*Mapping, bool) {
	n, ok := m.Get(key)
	if !ok || n.Kind != yaml.MappingNode {
		return nil, false
	}
	return &Mapping{node: n}, true
}

// GetSequence returns key's value as a slice of raw nodes.
func (m *Mapping) GetSequence(key string) ([]*yaml.Node, bool) {
	n, ok := m.Get(key)
	if !ok || n.Kind != yaml.SequenceNode {
		return nil, false
	}
	return n.Content, true
}

// GetStringSlice returns key's value as a slice of strings, decoding each
// element as a scalar.
func (m *Mapping) GetStringSlice(key string) ([]string, bool) {
	seq, ok := m.GetSequence(key)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(seq))
	for _, n := range seq {
		out = append(out, n.Value)
	}
	return out, true
}

// Set assigns key to value, preserving the existing position if key is
// already present, or appending it (in source order) if new.
func (m *Mapping) Set(key string, value *yaml.Node) {
	for i := 0; i < len(m.node.Content); i += 2 {
		if m.node.Content[i].Value == key {
			m.node.Content[i+1] = value
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	m.node.Content = append(m.node.Content, keyNode, value)
}

// SetString assigns a scalar string value.
func (m *Mapping) SetString(key, value string) {
	m.Set(key, ScalarString(value))
}

// SetBool assigns a scalar bool value.
func (m *Mapping) SetBool(key string, value bool) {
	m.Set(key, ScalarBool(value))
}

// SetStringSlice assigns a sequence of string scalars.
func (m *Mapping) SetStringSlice(key string, values []string) {
	m.Set(key, SequenceOfStrings(values))
}

// SetMapping assigns a nested mapping value.
func (m *Mapping) SetMapping(key string, value *Mapping) {
	m.Set(key, value.Node())
}

// ScalarString builds a plain string scalar node.
func ScalarString(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// ScalarBool builds a bool scalar node.
func ScalarBool(v bool) *yaml.Node {
	val := "false"
	if v {
		val = "true"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: val}
}

// SequenceOfStrings builds a sequence node of string scalars.
func SequenceOfStrings(values []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		n.Content = append(n.Content, ScalarString(v))
	}
	return n
}

// Equal reports whether a and b hold the same data, ignoring key order —
// the comparison orgmodel.EqualPolicies (and through it the differ) uses
// for policy document content. Document *rendering* still preserves order; only equality
// is order-insensitive.
func Equal(a, b *Mapping) bool {
	if a == nil || b == nil {
		return a == b
	}
	var av, bv interface{}
	if err := a.Node().Decode(&av); err != nil {
		return false
	}
	if err := b.Node().Decode(&bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
