package engine

import (
	"fmt"
	"strings"

	"github.com/stackgraft/stackgraft/pkg/engine/security"
	"github.com/stackgraft/stackgraft/pkg/engine/validator"
)

// UpdateResult is the immutable outcome of the integration phase.
type UpdateResult struct {
	Success        bool
	CallerRole     string // discovered caller role logical name
	RuntimeRole    string // logical name of the execution role added
	PolicyExtended string // inline policy whose resources were widened, "" if a new policy was appended
	Changed        bool
	Security       []security.Result
	BackupPath     string
	OutputPath     string
	DryRun         bool
	Errors         []string
}

// IntegrationResult composes both phase outcomes plus the rendered
// summary. A skipped phase leaves its pointer nil.
type IntegrationResult struct {
	Validation     *validator.Result
	Update         *UpdateResult
	OverallSuccess bool
	Summary        string
}

// Errors flattens both phases' error lists.
func (r IntegrationResult) Errors() []string {
	var all []string
	if r.Validation != nil {
		all = append(all, r.Validation.Errors...)
	}
	if r.Update != nil {
		all = append(all, r.Update.Errors...)
	}
	return all
}

// phasesPassed holds when every phase that ran succeeded.
func (r IntegrationResult) phasesPassed(opts Options) bool {
	if !opts.SkipValidation && (r.Validation == nil || !r.Validation.Success) {
		return false
	}
	if !opts.SkipIntegration && (r.Update == nil || !r.Update.Success) {
		return false
	}
	return true
}

// summarize renders the operator-facing run summary.
func summarize(opts Options, r IntegrationResult) string {
	var b strings.Builder

	switch {
	case opts.SkipValidation:
		b.WriteString("Validation: SKIPPED\n")
	case r.Validation == nil:
		b.WriteString("Validation: NOT RUN\n")
	case r.Validation.Success:
		fmt.Fprintf(&b, "Validation: PASSED (%d policies attached", len(r.Validation.AttachedPolicies))
		if r.Validation.CleanupSuccessful {
			b.WriteString(", cleanup ok)\n")
		} else {
			b.WriteString(", CLEANUP FAILED)\n")
		}
	default:
		fmt.Fprintf(&b, "Validation: FAILED (%d errors)\n", len(r.Validation.Errors))
	}

	switch {
	case opts.SkipIntegration:
		b.WriteString("Integration: SKIPPED\n")
	case r.Update == nil:
		b.WriteString("Integration: NOT RUN\n")
	case r.Update.Success && r.Update.DryRun:
		fmt.Fprintf(&b, "Integration: DRY RUN (caller %s, runtime %s, no file written)\n",
			r.Update.CallerRole, r.Update.RuntimeRole)
	case r.Update.Success:
		fmt.Fprintf(&b, "Integration: UPDATED %s (caller %s, runtime %s)\n",
			r.Update.OutputPath, r.Update.CallerRole, r.Update.RuntimeRole)
	default:
		fmt.Fprintf(&b, "Integration: FAILED (%d errors)\n", len(r.Update.Errors))
	}

	if counts := securityCounts(r.Update); counts != "" {
		fmt.Fprintf(&b, "Security: %s\n", counts)
	}
	for _, err := range r.Errors() {
		fmt.Fprintf(&b, "  - %s\n", err)
	}

	if r.OverallSuccess {
		b.WriteString("Result: SUCCESS")
	} else {
		b.WriteString("Result: FAILURE")
	}
	return b.String()
}

func securityCounts(u *UpdateResult) string {
	if u == nil || len(u.Security) == 0 {
		return ""
	}
	totals := map[security.Severity]int{}
	for _, res := range u.Security {
		for sev, n := range res.CountBySeverity() {
			totals[sev] += n
		}
	}
	return fmt.Sprintf("%d high, %d medium, %d low",
		totals[security.SeverityHigh], totals[security.SeverityMedium], totals[security.SeverityLow])
}
