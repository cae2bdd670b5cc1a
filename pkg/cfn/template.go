package cfn

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Required top-level template sections.
const (
	SectionFormatVersion = "AWSTemplateFormatVersion"
	SectionResources     = "Resources"
)

// RoleResourceType is the resource kind discovery and auditing operate on.
const RoleResourceType = "AWS::IAM::Role"

// TemplateError reports a malformed or incomplete template, with a line
// hint when the parser provides one.
type TemplateError struct {
	Path   string
	Line   int
	Reason string
	Err    error
}

func (e *TemplateError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("template %s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("template %s: %s", loc, e.Reason)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Template is a loaded CloudFormation document tree. The zero value is
// not usable; construct via Load or Parse.
type Template struct {
	Path string

	doc *yaml.Node
}

// Load reads and parses a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Path: path, Reason: "unreadable", Err: err}
	}
	return Parse(data, path)
}

// Parse decodes template bytes. The two required top-level sections must
// be present; everything else is validated lazily by ValidateStructure.
func Parse(data []byte, path string) (*Template, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &TemplateError{Path: path, Reason: "malformed YAML", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &TemplateError{Path: path, Reason: "empty document"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &TemplateError{Path: path, Line: root.Line, Reason: "top level is not a mapping"}
	}

	t := &Template{Path: path, doc: &doc}
	for _, section := range []string{SectionFormatVersion, SectionResources} {
		if MapGet(root, section) == nil {
			return nil, &TemplateError{
				Path:   path,
				Reason: fmt.Sprintf("missing required section: %s", section),
			}
		}
	}
	return t, nil
}

// Root returns the top-level mapping node.
func (t *Template) Root() *yaml.Node { return t.doc.Content[0] }

// Resources returns the Resources mapping node.
func (t *Template) Resources() *yaml.Node {
	return MapGet(t.Root(), SectionResources)
}

// Resource returns the named resource node, or nil.
func (t *Template) Resource(name string) *yaml.Node {
	return MapGet(t.Resources(), name)
}

// ResourceNames returns logical IDs in document order.
func (t *Template) ResourceNames() []string {
	return MapKeys(t.Resources())
}

// Save writes the template, creating parent directories as needed.
// Output uses two-space indentation, the CloudFormation convention.
func (t *Template) Save(path string) error {
	data, err := t.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &TemplateError{Path: path, Reason: "cannot create parent directory", Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &TemplateError{Path: path, Reason: "write failed", Err: err}
	}
	return nil
}

// Marshal serializes the document tree.
func (t *Template) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t.doc.Content[0]); err != nil {
		return nil, &TemplateError{Path: t.Path, Reason: "serialization failed", Err: err}
	}
	if err := enc.Close(); err != nil {
		return nil, &TemplateError{Path: t.Path, Reason: "serialization failed", Err: err}
	}
	return buf.Bytes(), nil
}

// ValidateStructure checks structural soundness and returns issue
// strings. It never fails: a broken tree yields issues, not an error.
func (t *Template) ValidateStructure() []string {
	var issues []string
	root := t.Root()

	for _, section := range []string{SectionFormatVersion, SectionResources} {
		if MapGet(root, section) == nil {
			issues = append(issues, fmt.Sprintf("missing required section: %s", section))
		}
	}

	resources := t.Resources()
	if resources != nil {
		if resources.Kind != yaml.MappingNode || len(resources.Content) == 0 {
			issues = append(issues, "Resources section is empty")
		}
		for _, role := range t.Roles() {
			if role.TrustPolicy() == nil {
				issues = append(issues, fmt.Sprintf(
					"role %s has no AssumeRolePolicyDocument", role.Name))
			}
		}
	}
	return issues
}

// Equal compares two templates structurally, intrinsic nodes included.
func Equal(a, b *Template) bool {
	return NodeEqual(a.Root(), b.Root())
}

// NodeEqual compares two subtrees by kind, tag, value, and children.
// Style and comments are ignored: equality is structural.
func NodeEqual(a, b *yaml.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Value != b.Value {
		return false
	}
	if normalTag(a) != normalTag(b) {
		return false
	}
	if len(a.Content) != len(b.Content) {
		return false
	}
	for i := range a.Content {
		if !NodeEqual(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}

func normalTag(n *yaml.Node) string {
	if name, ok := shortTags[n.Tag]; ok {
		return name
	}
	return n.Tag
}

// IsNotExist reports whether a load failure was a missing file.
func IsNotExist(err error) bool {
	var te *TemplateError
	if errors.As(err, &te) {
		return errors.Is(te.Err, os.ErrNotExist)
	}
	return false
}
