package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Value is a node in the merged configuration tree.
//
// It is either a Mapping (nested section) or a Scalar (any leaf, sequences
// included). The interface is sealed; switch on the concrete type to tell
// the two apart.
type Value interface {
	// Interface returns the plain Go form of the value: map[string]any for
	// mappings, the decoded leaf for scalars.
	Interface() any

	isValue()
}

// Mapping is a configuration section keyed by string.
type Mapping map[string]Value

// Scalar is a configuration leaf. V holds the YAML-decoded value
// (string, int, float64, bool, []any, nil, ...).
type Scalar struct {
	V any
}

func (Mapping) isValue() {}
func (Scalar) isValue()  {}

// Interface returns the mapping as map[string]any, recursively.
func (m Mapping) Interface() any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// Interface returns a copy of the leaf value. Sequences and mappings
// nested in a leaf are copied so callers cannot modify the tree.
func (s Scalar) Interface() any {
	return copyLeaf(s.V)
}

// Clone returns a deep copy of the mapping, including sequences held in
// scalars.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case Mapping:
			out[k] = v.Clone()
		case Scalar:
			out[k] = Scalar{V: copyLeaf(v.V)}
		default:
			out[k] = v
		}
	}
	return out
}

// copyLeaf deep-copies the container types YAML decodes into.
func copyLeaf(v any) any {
	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyLeaf(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = copyLeaf(e)
		}
		return out
	default:
		return v
	}
}

// Merge combines two mappings into a new one.
//
// For keys present in both where both values are mappings, the values are
// merged recursively. Otherwise the override wins outright, including when
// a mapping meets a scalar. Keys unique to either side are kept as-is.
// Neither argument is modified.
func Merge(defaults, override Mapping) Mapping {
	out := defaults.Clone()
	for k, ov := range override {
		dv, exists := out[k]
		if exists {
			dm, dIsMap := dv.(Mapping)
			om, oIsMap := ov.(Mapping)
			if dIsMap && oIsMap {
				out[k] = Merge(dm, om)
				continue
			}
		}
		if om, ok := ov.(Mapping); ok {
			out[k] = om.Clone()
			continue
		}
		out[k] = ov
	}
	return out
}

// Lookup descends through nested mappings following segments.
// It reports false as soon as a segment is missing or a scalar is reached
// before the path is exhausted. With no segments it returns m itself.
func (m Mapping) Lookup(segments ...string) (Value, bool) {
	var cur Value = m
	for _, seg := range segments {
		section, ok := cur.(Mapping)
		if !ok {
			return nil, false
		}
		next, ok := section[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Decode re-encodes the mapping as YAML and decodes it into out, so typed
// structs can be filled from any section of the tree.
func (m Mapping) Decode(out any) error {
	data, err := yaml.Marshal(m.Interface())
	if err != nil {
		return fmt.Errorf("encoding section: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding section: %w", err)
	}
	return nil
}

// fromNode converts a parsed YAML node into a Value.
func fromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Mapping{}, nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		m := make(Mapping, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.Tag == "!!merge" {
				base, err := fromNode(valNode)
				if err != nil {
					return nil, err
				}
				if bm, ok := base.(Mapping); ok {
					m = Merge(bm, m)
				}
				continue
			}
			v, err := fromNode(valNode)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", keyNode.Value, err)
			}
			m[keyNode.Value] = v
		}
		return m, nil
	default:
		var leaf any
		if err := n.Decode(&leaf); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Scalar{V: leaf}, nil
	}
}

// parseDocument parses YAML bytes into a top-level mapping.
func parseDocument(data []byte) (Mapping, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if root.Kind == 0 {
		return Mapping{}, nil
	}
	v, err := fromNode(&root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	m, ok := v.(Mapping)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrMalformed)
	}
	return m, nil
}
