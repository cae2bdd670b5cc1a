package security

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"gopkg.in/yaml.v3"

	"github.com/stackgraft/stackgraft/pkg/cfn"
)

// DynamicRule is a user-supplied rule loaded from the rules file.
// Condition is a CEL expression over the role variables, for example
// "'iam:PassRole' in actions && !('*' in resources)".
type DynamicRule struct {
	ID        string `yaml:"id"`
	Severity  string `yaml:"severity"` // HIGH, MEDIUM or LOW, defaults to MEDIUM
	Category  string `yaml:"category"` // defaults to DYNAMIC_RULE
	Condition string `yaml:"condition"`
	Message   string `yaml:"message"`
}

type rulesFile struct {
	Rules []DynamicRule `yaml:"rules"`
}

// CELEngine compiles and evaluates dynamic rules. Rules fire in the
// order they appear in the rules file.
type CELEngine struct {
	env      *cel.Env
	rules    []DynamicRule
	programs map[string]cel.Program
	logger   *slog.Logger
}

// NewCELEngine declares the role variables available to rule conditions.
func NewCELEngine(logger *slog.Logger) (*CELEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("name", decls.String),
			decls.NewVar("actions", decls.NewListType(decls.String)),
			decls.NewVar("resources", decls.NewListType(decls.String)),
			decls.NewVar("principals", decls.NewListType(decls.String)),
			decls.NewVar("tags", decls.NewMapType(decls.String, decls.String)),
			decls.NewVar("managed", decls.NewListType(decls.String)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	return &CELEngine{
		env:      env,
		programs: make(map[string]cel.Program),
		logger:   logger,
	}, nil
}

// LoadRulesFile reads and compiles a YAML rules file. A missing file is
// not an error, the engine simply carries no dynamic rules.
func (e *CELEngine) LoadRulesFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read rules file %s: %w", path, err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return e.Compile(f.Rules)
}

// Compile turns rule conditions into executable programs. A rule that
// does not compile rejects the whole set.
func (e *CELEngine) Compile(rules []DynamicRule) error {
	for _, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("dynamic rule without an id")
		}
		ast, issues := e.env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("rule %s: %w", r.ID, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
		e.rules = append(e.rules, r)
		e.programs[r.ID] = prg
	}
	return nil
}

// Len reports the number of compiled rules.
func (e *CELEngine) Len() int { return len(e.rules) }

// Evaluate runs every compiled rule against one role context. A rule
// evaluating to true produces a finding; evaluation errors are logged
// and skipped so one bad rule cannot sink the run.
func (e *CELEngine) Evaluate(vars map[string]any) []Issue {
	var issues []Issue
	for _, r := range e.rules {
		out, _, err := e.programs[r.ID].Eval(vars)
		if err != nil {
			e.logger.Warn("dynamic rule evaluation failed", "rule", r.ID, "error", err)
			continue
		}
		match, ok := out.Value().(bool)
		if !ok || !match {
			continue
		}
		issues = append(issues, Issue{
			Severity:    severityOrDefault(r.Severity),
			Category:    categoryOrDefault(r.Category),
			Message:     messageOrDefault(r),
			Resource:    fmt.Sprint(vars["name"]),
			StatementID: -1,
		})
	}
	return issues
}

func severityOrDefault(s string) Severity {
	switch Severity(s) {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(s)
	default:
		return SeverityMedium
	}
}

func categoryOrDefault(c string) string {
	if c == "" {
		return CategoryDynamicRule
	}
	return c
}

func messageOrDefault(r DynamicRule) string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("dynamic rule %s matched", r.ID)
}

// ContextFor flattens one role into the variables dynamic rules see.
func ContextFor(role cfn.Role) map[string]any {
	var actions, resources []string
	for _, p := range role.Policies() {
		doc := cfn.ToValue(p.Document)
		for _, stmt := range cfn.StatementsOf(doc) {
			actions = append(actions, cfn.StringsOf(stmt["Action"])...)
			resources = append(resources, cfn.StringsOf(stmt["Resource"])...)
		}
	}

	var principals []string
	for _, stmt := range cfn.StatementsOf(cfn.ToValue(role.TrustPolicy())) {
		switch p := stmt["Principal"].(type) {
		case string:
			principals = append(principals, p)
		case map[string]any:
			principals = append(principals, cfn.StringsOf(p["Service"])...)
			principals = append(principals, cfn.StringsOf(p["AWS"])...)
		}
	}

	sliceOrEmpty := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	return map[string]any{
		"name":       role.Name,
		"actions":    sliceOrEmpty(actions),
		"resources":  sliceOrEmpty(resources),
		"principals": sliceOrEmpty(principals),
		"tags":       role.Tags(),
		"managed":    sliceOrEmpty(role.ManagedPolicyArns()),
	}
}
