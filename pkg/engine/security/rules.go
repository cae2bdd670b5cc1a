package security

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/stackgraft/stackgraft/pkg/cfn"
	"github.com/stackgraft/stackgraft/pkg/config"
)

// RuleConfig parameterizes the fixed rule set.
type RuleConfig struct {
	DangerousActions      map[string]string
	WildcardAllowed       map[string]bool
	RequiredTags          []string
	InvokeAction          string
	InvokeResourcePattern string
	CurrentVersion        string
}

// DefaultRuleConfig mirrors the shipped security policy.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		DangerousActions:      config.DangerousActions(),
		WildcardAllowed:       config.WildcardResourceAllowed(),
		RequiredTags:          config.RequiredTags(),
		InvokeAction:          config.InvokeAction,
		InvokeResourcePattern: config.RuntimeResourcePattern,
		CurrentVersion:        config.CurrentPolicyVersion,
	}
}

// Engine evaluates the fixed rules, plus any compiled dynamic rules.
type Engine struct {
	Config  RuleConfig
	Dynamic *CELEngine
	Logger  *slog.Logger
}

// NewEngine builds an evaluator with the default rule set.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Config: DefaultRuleConfig(), Logger: logger}
}

// ValidateRole runs every rule category over one role. expectedPrincipal
// is the service that must appear in the trust policy.
func (e *Engine) ValidateRole(role cfn.Role, expectedPrincipal string) Result {
	res := Result{RoleName: role.Name}

	res.Issues = append(res.Issues, e.checkTrustPolicy(role, expectedPrincipal)...)
	res.Issues = append(res.Issues, e.checkInlinePolicies(role)...)
	res.Issues = append(res.Issues, e.checkManagedPolicies(role)...)
	res.Issues = append(res.Issues, e.checkTags(role)...)

	if e.Dynamic != nil {
		res.Issues = append(res.Issues, e.Dynamic.Evaluate(ContextFor(role))...)
	}
	return res
}

// checkTrustPolicy covers the principal rules and the trust document
// version. A wildcard principal preempts the missing-principal rule so
// a single HIGH finding names the actual problem.
func (e *Engine) checkTrustPolicy(role cfn.Role, expectedPrincipal string) []Issue {
	var issues []Issue

	trust := cfn.ToValue(role.TrustPolicy())
	if trust == nil {
		return []Issue{{
			Severity:    SeverityHigh,
			Category:    CategoryMissingTrust,
			Message:     "role has no assume-role policy document",
			Resource:    role.Name,
			StatementID: -1,
			Remediation: fmt.Sprintf("add a trust policy naming %s", expectedPrincipal),
		}}
	}

	wildcard := false
	principalFound := false
	for _, stmt := range cfn.StatementsOf(trust) {
		switch p := stmt["Principal"].(type) {
		case string:
			if p == "*" {
				wildcard = true
			}
		case map[string]any:
			for _, v := range cfn.StringsOf(p["AWS"]) {
				if v == "*" {
					wildcard = true
				}
			}
			for _, svc := range cfn.StringsOf(p["Service"]) {
				if svc == expectedPrincipal {
					principalFound = true
				}
			}
		}
	}

	switch {
	case wildcard:
		issues = append(issues, Issue{
			Severity:    SeverityHigh,
			Category:    CategoryOverprivileged,
			Message:     "trust policy allows any principal (\"*\") to assume the role",
			Resource:    role.Name,
			StatementID: -1,
			Remediation: fmt.Sprintf("restrict the principal to %s", expectedPrincipal),
		})
	case !principalFound:
		issues = append(issues, Issue{
			Severity:    SeverityHigh,
			Category:    CategoryMissingTrust,
			Message:     fmt.Sprintf("trust policy does not name the expected principal %s", expectedPrincipal),
			Resource:    role.Name,
			StatementID: -1,
		})
	}

	if doc, ok := trust.(map[string]any); ok {
		if v, _ := doc["Version"].(string); v != "" && v != e.Config.CurrentVersion {
			issues = append(issues, Issue{
				Severity:    SeverityMedium,
				Category:    CategoryOutdatedVersion,
				Message:     fmt.Sprintf("trust policy uses outdated version %s", v),
				Resource:    role.Name,
				StatementID: -1,
				Remediation: fmt.Sprintf("use version %s", e.Config.CurrentVersion),
			})
		}
	}
	return issues
}

// checkInlinePolicies covers dangerous actions, invoke-grant scoping,
// wildcard resources, and policy versions.
func (e *Engine) checkInlinePolicies(role cfn.Role) []Issue {
	var issues []Issue

	for _, p := range role.Policies() {
		doc := cfn.ToValue(p.Document)

		if m, ok := doc.(map[string]any); ok {
			if v, _ := m["Version"].(string); v != "" && v != e.Config.CurrentVersion {
				issues = append(issues, Issue{
					Severity:    SeverityMedium,
					Category:    CategoryOutdatedVersion,
					Message:     fmt.Sprintf("policy uses outdated version %s", v),
					Resource:    role.Name,
					Policy:      p.Name,
					StatementID: -1,
				})
			}
		}

		for idx, stmt := range cfn.StatementsOf(doc) {
			actions := cfn.StringsOf(stmt["Action"])
			resources := cfn.StringsOf(stmt["Resource"])
			issues = append(issues, e.checkStatement(role.Name, p.Name, idx, actions, resources)...)
		}
	}
	return issues
}

func (e *Engine) checkStatement(roleName, policyName string, idx int, actions, resources []string) []Issue {
	var issues []Issue

	hasWildcardResource := false
	for _, r := range resources {
		if r == "*" {
			hasWildcardResource = true
		}
	}

	for _, action := range actions {
		if reason, dangerous := e.Config.DangerousActions[action]; dangerous {
			issues = append(issues, Issue{
				Severity:    SeverityHigh,
				Category:    CategoryDangerousAction,
				Message:     fmt.Sprintf("action %s is on the dangerous list: %s", action, reason),
				Resource:    roleName,
				Policy:      policyName,
				StatementID: idx,
				Remediation: "replace with the narrowest action set the workload needs",
			})
			continue
		}

		if action == e.Config.InvokeAction && !contains(resources, e.Config.InvokeResourcePattern) {
			issues = append(issues, Issue{
				Severity:    SeverityHigh,
				Category:    CategoryUnscopedResource,
				Message:     fmt.Sprintf("%s is not scoped to %s", action, e.Config.InvokeResourcePattern),
				Resource:    roleName,
				Policy:      policyName,
				StatementID: idx,
				Remediation: fmt.Sprintf("scope the resource to %s", e.Config.InvokeResourcePattern),
			})
			continue
		}

		if hasWildcardResource && !e.Config.WildcardAllowed[action] {
			issues = append(issues, Issue{
				Severity:    SeverityMedium,
				Category:    CategoryWildcardResource,
				Message:     fmt.Sprintf("action %s is paired with a wildcard resource", action),
				Resource:    roleName,
				Policy:      policyName,
				StatementID: idx,
				Remediation: "scope the resource ARN",
			})
		}
	}
	return issues
}

// checkManagedPolicies flags externally managed permission sets.
func (e *Engine) checkManagedPolicies(role cfn.Role) []Issue {
	arns := role.ManagedPolicyArns()
	if len(arns) == 0 {
		return nil
	}
	return []Issue{{
		Severity:    SeverityMedium,
		Category:    CategoryManagedPolicy,
		Message:     fmt.Sprintf("role attaches %d managed policies instead of embedded ones", len(arns)),
		Resource:    role.Name,
		StatementID: -1,
		Remediation: "inline the permissions so the stack owns the full grant",
	}}
}

// checkTags reports missing classification tags as a single LOW finding.
func (e *Engine) checkTags(role cfn.Role) []Issue {
	tags := role.Tags()
	var missing []string
	for _, key := range e.Config.RequiredTags {
		if _, ok := tags[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return []Issue{{
		Severity:    SeverityLow,
		Category:    CategoryMissingTags,
		Message:     fmt.Sprintf("missing required tags: %s", strings.Join(missing, ", ")),
		Resource:    role.Name,
		StatementID: -1,
	}}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
