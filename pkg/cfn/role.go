package cfn

import "gopkg.in/yaml.v3"

// Role is a view over an AWS::IAM::Role resource node. Mutations through
// the view edit the underlying template tree.
type Role struct {
	Name string

	node *yaml.Node // resource mapping
}

// Roles returns every role resource in document order.
func (t *Template) Roles() []Role {
	resources := t.Resources()
	if resources == nil || resources.Kind != yaml.MappingNode {
		return nil
	}
	var roles []Role
	for i := 0; i+1 < len(resources.Content); i += 2 {
		name := resources.Content[i].Value
		node := resources.Content[i+1]
		if kind := MapGet(node, "Type"); kind != nil && kind.Value == RoleResourceType {
			roles = append(roles, Role{Name: name, node: node})
		}
	}
	return roles
}

// RoleByName returns the named role resource.
func (t *Template) RoleByName(name string) (Role, bool) {
	for _, r := range t.Roles() {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// Node exposes the underlying resource mapping.
func (r Role) Node() *yaml.Node { return r.node }

// Properties returns the Properties mapping, creating it when absent.
func (r Role) Properties() *yaml.Node {
	props := MapGet(r.node, "Properties")
	if props == nil {
		props = Map()
		MapSet(r.node, "Properties", props)
	}
	return props
}

// TrustPolicy returns the AssumeRolePolicyDocument node, or nil.
func (r Role) TrustPolicy() *yaml.Node {
	return MapGet(MapGet(r.node, "Properties"), "AssumeRolePolicyDocument")
}

// InlinePolicy is one named entry of a role Policies list.
type InlinePolicy struct {
	Name     string
	Document *yaml.Node

	entry *yaml.Node
}

// Policies returns the role's inline policies in document order.
func (r Role) Policies() []InlinePolicy {
	list := MapGet(MapGet(r.node, "Properties"), "Policies")
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]InlinePolicy, 0, len(list.Content))
	for _, entry := range list.Content {
		name := ""
		if n := MapGet(entry, "PolicyName"); n != nil {
			name = n.Value
		}
		out = append(out, InlinePolicy{
			Name:     name,
			Document: MapGet(entry, "PolicyDocument"),
			entry:    entry,
		})
	}
	return out
}

// AppendPolicy adds a named inline policy to the role, creating the
// Policies list when absent.
func (r Role) AppendPolicy(name string, document *yaml.Node) {
	props := r.Properties()
	list := MapGet(props, "Policies")
	if list == nil || list.Kind != yaml.SequenceNode {
		list = Seq()
		MapSet(props, "Policies", list)
	}
	entry := Map()
	MapSet(entry, "PolicyName", Scalar(name))
	MapSet(entry, "PolicyDocument", document)
	list.Content = append(list.Content, entry)
}

// ManagedPolicyArns returns the decoded ManagedPolicyArns list.
func (r Role) ManagedPolicyArns() []string {
	return StringsOf(ToValue(MapGet(MapGet(r.node, "Properties"), "ManagedPolicyArns")))
}

// Tags decodes literal Key/Value tags. Intrinsic-valued tags are kept
// under their canonical string.
func (r Role) Tags() map[string]string {
	tags := make(map[string]string)
	list := MapGet(MapGet(r.node, "Properties"), "Tags")
	if list == nil || list.Kind != yaml.SequenceNode {
		return tags
	}
	for _, entry := range list.Content {
		k := MapGet(entry, "Key")
		v := MapGet(entry, "Value")
		if k == nil {
			continue
		}
		val := ""
		if v != nil {
			val = CanonicalValue(v)
		}
		tags[k.Value] = val
	}
	return tags
}

// AddResource inserts a new resource node at the end of the Resources
// section. Existing resources keep their position.
func (t *Template) AddResource(name string, node *yaml.Node) {
	MapSet(t.Resources(), name, node)
}

// SetOutput writes one entry in the Outputs section, creating the
// section when the template has none.
func (t *Template) SetOutput(name string, node *yaml.Node) {
	outputs := MapGet(t.Root(), "Outputs")
	if outputs == nil {
		outputs = Map()
		MapSet(t.Root(), "Outputs", outputs)
	}
	MapSet(outputs, name, node)
}
