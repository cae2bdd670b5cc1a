package cfn

import (
	"gopkg.in/yaml.v3"
)

// MapGet returns the value node for a key in a mapping, or nil.
func MapGet(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// MapSet replaces the value for key, or appends the pair to the end of
// the mapping, preserving existing key order.
func MapSet(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, Scalar(key), value)
}

// MapKeys returns mapping keys in document order.
func MapKeys(m *yaml.Node) []string {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		keys = append(keys, m.Content[i].Value)
	}
	return keys
}

// Scalar builds a plain string scalar node.
func Scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// Map builds an empty mapping node.
func Map() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// Seq builds a sequence node over the given children.
func Seq(children ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: children}
}

// ToValue decodes a subtree into generic Go values: scalars become
// string/int/bool/float, sequences []any, mappings map[string]any, and
// intrinsic calls FnValue. Analysis code works over this view; mutation
// happens on the node tree itself.
func ToValue(n *yaml.Node) any {
	if n == nil {
		return nil
	}
	if in, ok := AsIntrinsic(n); ok {
		return FnValue{Name: in.Name, Canon: in.Canonical(), Arg: in.ScalarArg()}
	}
	switch n.Kind {
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return n.Value
		}
		return v
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			out = append(out, ToValue(c))
		}
		return out
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			out[n.Content[i].Value] = ToValue(n.Content[i+1])
		}
		return out
	case yaml.AliasNode:
		return ToValue(n.Alias)
	}
	return nil
}

// FnValue is the decoded form of an intrinsic call.
type FnValue struct {
	Name  string // canonical function name, e.g. "Fn::Sub"
	Canon string // stable comparison key
	Arg   string // scalar argument, "" when structured
}

// StringsOf flattens an IAM string-or-list value into a string slice.
// Intrinsic entries contribute their scalar argument so that
// !Sub "${X}" participates in substring heuristics.
func StringsOf(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case FnValue:
		if x.Arg != "" {
			return []string{x.Arg}
		}
		return []string{x.Canon}
	case []any:
		var out []string
		for _, e := range x {
			out = append(out, StringsOf(e)...)
		}
		return out
	}
	return nil
}

// StatementsOf extracts the Statement list of a decoded policy document.
func StatementsOf(doc any) []map[string]any {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["Statement"].([]any)
	if !ok {
		// Single-statement shorthand.
		if one, ok := m["Statement"].(map[string]any); ok {
			return []map[string]any{one}
		}
		return nil
	}
	var out []map[string]any
	for _, s := range raw {
		if sm, ok := s.(map[string]any); ok {
			out = append(out, sm)
		}
	}
	return out
}
