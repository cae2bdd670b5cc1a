// Package security runs a fixed rule set over role trust policies,
// inline policies, and tags, producing severity-classified findings.
// The evaluator is stateless and never mutates its input.
package security

// Severity classifies a finding. Only HIGH fails a validation.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Finding categories.
const (
	CategoryMissingTrust     = "MISSING_TRUST"
	CategoryOverprivileged   = "OVERPRIVILEGED"
	CategoryDangerousAction  = "DANGEROUS_ACTION"
	CategoryUnscopedResource = "UNSCOPED_RESOURCE"
	CategoryManagedPolicy    = "MANAGED_POLICY"
	CategoryOutdatedVersion  = "OUTDATED_VERSION"
	CategoryWildcardResource = "WILDCARD_RESOURCE"
	CategoryMissingTags      = "MISSING_TAGS"
	CategoryDynamicRule      = "DYNAMIC_RULE"
)

// Issue is one immutable finding.
type Issue struct {
	Severity    Severity
	Category    string
	Message     string
	Resource    string // logical role name
	Policy      string // inline policy name, "" for trust/tag findings
	StatementID int    // statement index within the policy, -1 when n/a
	Remediation string
}

// Result is the outcome of validating one role.
type Result struct {
	RoleName string
	Issues   []Issue
}

// Passed reports whether the role survived: no HIGH-severity issue.
// MEDIUM and LOW only inform the report.
func (r Result) Passed() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityHigh {
			return false
		}
	}
	return true
}

// CountBySeverity tallies issues for the summary.
func (r Result) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, i := range r.Issues {
		counts[i.Severity]++
	}
	return counts
}
