// Package enhance injects the runtime invoke permission into a
// discovered role and builds the new runtime execution role resource.
// Enhancement is idempotent: applying it twice is a no-op the second
// time.
package enhance

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/stackgraft/stackgraft/pkg/cfn"
	"github.com/stackgraft/stackgraft/pkg/config"
)

// InvokePolicyName is the inline policy added when no existing statement
// carries the invoke action.
const InvokePolicyName = "AgentCoreInvokeAccess"

// Enhancer carries the permission being grafted.
type Enhancer struct {
	Action          string
	ResourcePattern string
	Logger          *slog.Logger
}

// New returns an enhancer for the standard runtime invoke grant.
func New(logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhancer{
		Action:          config.InvokeAction,
		ResourcePattern: config.RuntimeResourcePattern,
		Logger:          logger,
	}
}

// Outcome reports what Enhance changed.
type Outcome struct {
	// Changed is false when the role already carried the exact grant.
	Changed bool
	// Extended names the inline policy whose statement was widened, ""
	// when a fresh policy was appended.
	Extended string
}

// Enhance injects the invoke permission into the named role. If any
// existing statement already lists the action, only that statement's
// resource list is extended (deduplicated); otherwise a new inline
// policy holding exactly the permission statement is appended.
func (e *Enhancer) Enhance(tpl *cfn.Template, roleName string) (Outcome, error) {
	role, ok := tpl.RoleByName(roleName)
	if !ok {
		return Outcome{}, fmt.Errorf("role %s not found in template", roleName)
	}

	if entry, stmt := e.findStatement(role); stmt != nil {
		added := extendResources(stmt, e.ResourcePattern)
		if !added {
			e.Logger.Info("Role already holds the invoke grant", "role", roleName)
			return Outcome{Changed: false, Extended: entry}, nil
		}
		e.Logger.Info("Extended existing invoke statement", "role", roleName, "policy", entry)
		return Outcome{Changed: true, Extended: entry}, nil
	}

	role.AppendPolicy(InvokePolicyName, e.invokeDocument())
	e.Logger.Info("Appended invoke policy", "role", roleName, "policy", InvokePolicyName)
	return Outcome{Changed: true}, nil
}

// Checklist names each sub-check Validate performs.
type Checklist struct {
	ActionPresent  bool
	ResourceScoped bool
	EffectAllow    bool
}

func (c Checklist) passedChecks() int {
	n := 0
	for _, ok := range []bool{c.ActionPresent, c.ResourceScoped, c.EffectAllow} {
		if ok {
			n++
		}
	}
	return n
}

// Issues lists every failed sub-check as a named issue.
func (c Checklist) Issues() []string {
	var issues []string
	if !c.ActionPresent {
		issues = append(issues, "invoke action missing from every inline policy")
	}
	if !c.ResourceScoped {
		issues = append(issues, "invoke action is not scoped to the runtime resource pattern")
	}
	if !c.EffectAllow {
		issues = append(issues, "invoke statement does not have Effect Allow")
	}
	return issues
}

// Validate confirms the grant is present and exactly scoped, reporting
// each missing sub-check rather than a single boolean. Each statement
// is judged on its own; sub-checks satisfied by different statements
// never combine into a pass.
func (e *Enhancer) Validate(tpl *cfn.Template, roleName string) Checklist {
	var best Checklist
	role, ok := tpl.RoleByName(roleName)
	if !ok {
		return best
	}
	for _, p := range role.Policies() {
		for _, stmt := range cfn.StatementsOf(cfn.ToValue(p.Document)) {
			if !contains(cfn.StringsOf(stmt["Action"]), e.Action) {
				continue
			}
			c := Checklist{ActionPresent: true}
			if effect, _ := stmt["Effect"].(string); effect == "Allow" {
				c.EffectAllow = true
			}
			if contains(cfn.StringsOf(stmt["Resource"]), e.ResourcePattern) {
				c.ResourceScoped = true
			}
			if c.passedChecks() > best.passedChecks() {
				best = c
			}
		}
	}
	return best
}

// findStatement returns the first inline-policy statement node whose
// action list contains the invoke action.
func (e *Enhancer) findStatement(role cfn.Role) (policyName string, stmt *yaml.Node) {
	for _, p := range role.Policies() {
		stmts := cfn.MapGet(p.Document, "Statement")
		if stmts == nil || stmts.Kind != yaml.SequenceNode {
			continue
		}
		for _, s := range stmts.Content {
			actions := cfn.MapGet(s, "Action")
			if nodeListContains(actions, e.Action) {
				return p.Name, s
			}
		}
	}
	return "", nil
}

// extendResources appends the pattern to the statement's Resource list
// unless an equivalent entry already exists. Returns true when the list
// grew.
func extendResources(stmt *yaml.Node, pattern string) bool {
	res := cfn.MapGet(stmt, "Resource")
	want := cfn.CanonicalValue(cfn.Scalar(pattern))

	switch {
	case res == nil:
		cfn.MapSet(stmt, "Resource", cfn.Scalar(pattern))
		return true
	case res.Kind == yaml.SequenceNode:
		for _, entry := range res.Content {
			if cfn.CanonicalValue(entry) == want {
				return false
			}
		}
		res.Content = append(res.Content, cfn.Scalar(pattern))
		return true
	default:
		// Scalar or intrinsic: promote to a two-entry list.
		if cfn.CanonicalValue(res) == want {
			return false
		}
		cfn.MapSet(stmt, "Resource", cfn.Seq(res, cfn.Scalar(pattern)))
		return true
	}
}

// invokeDocument builds the fresh inline policy node.
func (e *Enhancer) invokeDocument() *yaml.Node {
	doc := cfn.Map()
	cfn.MapSet(doc, "Version", cfn.Scalar(config.CurrentPolicyVersion))
	stmt := cfn.Map()
	cfn.MapSet(stmt, "Sid", cfn.Scalar("InvokeAgentRuntime"))
	cfn.MapSet(stmt, "Effect", cfn.Scalar("Allow"))
	cfn.MapSet(stmt, "Action", cfn.Scalar(e.Action))
	cfn.MapSet(stmt, "Resource", cfn.Scalar(e.ResourcePattern))
	cfn.MapSet(doc, "Statement", cfn.Seq(stmt))
	return doc
}

// nodeListContains checks a string-or-list action node for a value.
func nodeListContains(n *yaml.Node, v string) bool {
	if n == nil {
		return false
	}
	if n.Kind == yaml.ScalarNode {
		return n.Value == v
	}
	if n.Kind == yaml.SequenceNode {
		for _, c := range n.Content {
			if c.Kind == yaml.ScalarNode && c.Value == v {
				return true
			}
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
