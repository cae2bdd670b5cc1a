// Package policy loads and models IAM permission documents.
package policy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Document is a parsed IAM policy document tied to its source file.
// Immutable after load.
type Document struct {
	// File is the source file base name.
	File string `json:"-"`
	// Name is the template-safe logical name derived from File.
	Name string `json:"-"`

	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is one entry of a policy document Statement list.
type Statement struct {
	Sid       string     `json:"Sid,omitempty"`
	Effect    string     `json:"Effect"`
	Principal *Principal `json:"Principal,omitempty"`
	Action    StringList `json:"Action,omitempty"`
	Resource  StringList `json:"Resource,omitempty"`
}

// Principal models the policy Principal block. IAM accepts either the
// bare wildcard string or a map of principal kinds.
type Principal struct {
	Wildcard bool
	Service  StringList
	AWS      StringList
}

// principalJSON is the map form of Principal on the wire.
type principalJSON struct {
	Service StringList `json:"Service,omitempty"`
	AWS     StringList `json:"AWS,omitempty"`
}

// UnmarshalJSON accepts both `"Principal": "*"` and the map form.
func (p *Principal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("principal string must be %q, got %q", "*", s)
		}
		p.Wildcard = true
		return nil
	}
	var m principalJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	p.Service = m.Service
	p.AWS = m.AWS
	return nil
}

// MarshalJSON emits the wildcard string or the map form.
func (p Principal) MarshalJSON() ([]byte, error) {
	if p.Wildcard {
		return json.Marshal("*")
	}
	return json.Marshal(principalJSON{Service: p.Service, AWS: p.AWS})
}

// StringList is an IAM "string or list of strings" field.
type StringList []string

// UnmarshalJSON accepts a bare string or a JSON array.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// MarshalJSON keeps the single-element form compact, matching how the
// documents are authored.
func (l StringList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// Contains reports whether the list holds the exact value.
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// TemplateName converts a policy file name into a logical name safe for
// CloudFormation and IAM inline policy names.
// "agentcore-invoke-policy.json" -> "AgentcoreInvokePolicy".
func TemplateName(file string) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	var b strings.Builder
	upper := true
	for _, r := range base {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
