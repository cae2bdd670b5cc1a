// Package cfn is a CloudFormation template codec built on the yaml.v3
// node API. Templates are held as document trees so that key order,
// scalar style, and intrinsic short-tags survive a load-mutate-save
// cycle untouched in subtrees the caller never modified.
package cfn

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// shortTags maps the YAML short-tag spelling of each intrinsic to its
// canonical function name. Ref is the one intrinsic whose long form has
// no Fn:: prefix.
var shortTags = map[string]string{
	"!Ref":         "Ref",
	"!Condition":   "Condition",
	"!Sub":         "Fn::Sub",
	"!GetAtt":      "Fn::GetAtt",
	"!Join":        "Fn::Join",
	"!Select":      "Fn::Select",
	"!Split":       "Fn::Split",
	"!FindInMap":   "Fn::FindInMap",
	"!Base64":      "Fn::Base64",
	"!GetAZs":      "Fn::GetAZs",
	"!ImportValue": "Fn::ImportValue",
	"!Cidr":        "Fn::Cidr",
	"!If":          "Fn::If",
	"!Equals":      "Fn::Equals",
	"!And":         "Fn::And",
	"!Or":          "Fn::Or",
	"!Not":         "Fn::Not",
	"!Transform":   "Fn::Transform",
}

var longNames = func() map[string]string {
	m := make(map[string]string, len(shortTags))
	for tag, name := range shortTags {
		m[name] = tag
	}
	return m
}()

// Intrinsic is the tagged-union view of a function-call node: the
// canonical function name plus its raw argument subtree. All other nodes
// are literals.
type Intrinsic struct {
	Name string
	Args *yaml.Node
}

// AsIntrinsic reports whether a node is an intrinsic function call, in
// either the short-tag form (!Sub "...") or the long map form
// ({"Fn::Sub": "..."}). The returned Args node aliases the tree; callers
// must treat it as read-only unless they own the template.
func AsIntrinsic(n *yaml.Node) (Intrinsic, bool) {
	if n == nil {
		return Intrinsic{}, false
	}
	if name, ok := shortTags[n.Tag]; ok {
		return Intrinsic{Name: name, Args: n}, true
	}
	// Long form: a single-key mapping whose key is a known function name.
	if n.Kind == yaml.MappingNode && len(n.Content) == 2 {
		key := n.Content[0].Value
		if _, ok := longNames[key]; ok {
			return Intrinsic{Name: key, Args: n.Content[1]}, true
		}
	}
	return Intrinsic{}, false
}

// Ref builds a !Ref node for a logical resource or parameter name.
func Ref(target string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!Ref", Value: target}
}

// Sub builds a !Sub node over a substitution string.
func Sub(tmpl string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!Sub", Value: tmpl}
}

// GetAtt builds a !GetAtt node using the dotted scalar form.
func GetAtt(logical, attr string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!GetAtt", Value: logical + "." + attr}
}

// ScalarArg returns the scalar argument of an intrinsic, or "" when the
// argument is not a plain scalar.
func (i Intrinsic) ScalarArg() string {
	if i.Args != nil && i.Args.Kind == yaml.ScalarNode {
		return i.Args.Value
	}
	return ""
}

// Canonical renders an intrinsic as a stable comparison key, e.g.
// "Fn::Sub(arn:aws:...)". Used for deduplication, never for output.
func (i Intrinsic) Canonical() string {
	var b strings.Builder
	b.WriteString(i.Name)
	b.WriteString("(")
	writeRaw(&b, i.Args)
	b.WriteString(")")
	return b.String()
}

// CanonicalValue renders any node as a comparison key. Intrinsic calls
// carry their function name so Fn::Sub of an ARN never collides with the
// literal ARN string.
func CanonicalValue(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	if in, ok := AsIntrinsic(n); ok {
		return in.Canonical()
	}
	var b strings.Builder
	writeRaw(&b, n)
	return b.String()
}

// writeRaw walks node content without re-detecting an intrinsic on the
// node itself (short-tag intrinsics alias their own argument node).
func writeRaw(b *strings.Builder, n *yaml.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.ScalarNode:
		b.WriteString(n.Value)
	case yaml.SequenceNode:
		for i, c := range n.Content {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(CanonicalValue(c))
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(CanonicalValue(n.Content[i]))
			b.WriteString(":")
			b.WriteString(CanonicalValue(n.Content[i+1]))
		}
	}
}
