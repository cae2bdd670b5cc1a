// Package validator tests candidate policies against the live account by
// attaching them to a short-lived IAM role, then tearing everything down.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stackgraft/stackgraft/internal/audit"
	awsx "github.com/stackgraft/stackgraft/pkg/engine/aws"
	"github.com/stackgraft/stackgraft/pkg/config"
	"github.com/stackgraft/stackgraft/pkg/policy"
)

// PermissionError means the acting identity lacks the rights to run a
// validation at all; both the identity lookup and the list-only fallback
// were denied.
type PermissionError struct {
	Op  string
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("insufficient permissions for %s: %v", e.Op, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Result is the immutable outcome of one validation run. A run can be
// successful with CleanupSuccessful false; both facts are surfaced, never
// collapsed into one flag.
type Result struct {
	Success           bool
	RoleName          string
	RoleArn           string
	AttachedPolicies  []string
	CleanupSuccessful bool
	Errors            []string
}

// Validator owns one ephemeral-role lifecycle per Validate call.
type Validator struct {
	IAM      awsx.RoleAPI
	Identity awsx.IdentityAPI
	Logger   *slog.Logger

	// now and suffix are swappable for tests.
	now    func() time.Time
	suffix func() string
}

// New builds a validator over the given collaborators.
func New(iamAPI awsx.RoleAPI, identity awsx.IdentityAPI, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		IAM:      iamAPI,
		Identity: identity,
		Logger:   logger,
		now:      time.Now,
		suffix:   func() string { return uuid.NewString()[:8] },
	}
}

// Validate creates an ephemeral role, attaches each policy document as a
// same-named inline policy, and unconditionally cleans up. Attach and
// cleanup calls are not retried; a single remote failure is terminal for
// its phase.
func (v *Validator) Validate(ctx context.Context, docs []policy.Document) Result {
	res := Result{CleanupSuccessful: true}

	account, callerArn, err := v.preflight(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	roleName := fmt.Sprintf("%s-%s-%s",
		config.EphemeralRolePrefix, v.now().UTC().Format("20060102-150405"), v.suffix())
	res.RoleName = roleName

	trust, err := testTrustPolicy(account)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	ledger := &Ledger{}

	arn, err := v.IAM.CreateRole(ctx, roleName, trust, config.EphemeralRoleTags())
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.RoleArn = arn
	v.Logger.Info("Created ephemeral role", "role", roleName, "caller", callerArn)
	audit.LogAction("CREATE", roleName, "ephemeral validation role")
	ledger.Record("delete role "+roleName, func(ctx context.Context) error {
		err := v.IAM.DeleteRole(ctx, roleName)
		if awsx.IsNoSuchEntity(err) {
			// Someone else already removed it; the goal state holds.
			return nil
		}
		if err != nil {
			return err
		}
		audit.LogAction("DELETE", roleName, "ephemeral validation role")
		return nil
	})

	// Attach each document, recording every success immediately so a
	// later failure has an accurate rollback list.
	attachErr := v.attachAll(ctx, roleName, docs, ledger, &res)

	// Cleanup always runs, whatever happened above.
	if failures := ledger.Unwind(ctx); len(failures) > 0 {
		res.CleanupSuccessful = false
		for _, f := range failures {
			v.Logger.Error("Cleanup step failed", "step", f.Step, "error", f.Err)
			res.Errors = append(res.Errors, fmt.Sprintf("cleanup: %s: %v", f.Step, f.Err))
		}
	}

	if attachErr != nil {
		res.Errors = append(res.Errors, attachErr.Error())
		return res
	}

	res.Success = true
	return res
}

// attachAll puts every document as an inline policy on the role.
func (v *Validator) attachAll(ctx context.Context, roleName string, docs []policy.Document, ledger *Ledger, res *Result) error {
	for _, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("cannot serialize policy %s: %w", doc.Name, err)
		}
		if err := v.IAM.PutRolePolicy(ctx, roleName, doc.Name, string(body)); err != nil {
			v.Logger.Warn("Policy attach failed, rolling back", "policy", doc.Name, "error", err)
			return err
		}
		name := doc.Name
		res.AttachedPolicies = append(res.AttachedPolicies, name)
		ledger.Record("detach policy "+name, func(ctx context.Context) error {
			return v.IAM.DeleteRolePolicy(ctx, roleName, name)
		})
		v.Logger.Info("Attached inline policy", "role", roleName, "policy", name)
	}

	// Confirm the attachments actually landed.
	attached, err := v.IAM.ListRolePolicies(ctx, roleName)
	if err != nil {
		return err
	}
	if len(attached) != len(docs) {
		return fmt.Errorf("expected %d attached policies, found %d", len(docs), len(attached))
	}
	return nil
}

// preflight verifies the acting identity. Only a denied lookup falls
// back to a low-privilege list-only check; any other failure is a real
// remote error and surfaces unchanged.
func (v *Validator) preflight(ctx context.Context) (account, arn string, err error) {
	account, arn, err = v.Identity.CallerIdentity(ctx)
	if err == nil {
		return account, arn, nil
	}
	if !awsx.IsAccessDenied(err) {
		return "", "", err
	}
	v.Logger.Warn("Identity lookup denied, retrying with ListRoles", "error", err)
	if _, listErr := v.IAM.ListRoles(ctx, 1); listErr != nil {
		return "", "", &PermissionError{Op: "validation preflight", Err: listErr}
	}
	// The account stays unknown; the trust policy falls back to the
	// validation service principal instead of the account root.
	return "", "unknown", nil
}

// testTrustPolicy scopes the ephemeral role to the caller's own account
// so nothing outside it can ever assume the test role.
func testTrustPolicy(account string) (string, error) {
	principal := map[string]any{"Service": "sts.amazonaws.com"}
	if account != "" {
		principal = map[string]any{"AWS": fmt.Sprintf("arn:aws:iam::%s:root", account)}
	}
	doc := map[string]any{
		"Version": config.CurrentPolicyVersion,
		"Statement": []any{
			map[string]any{
				"Effect":    "Allow",
				"Principal": principal,
				"Action":    "sts:AssumeRole",
			},
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("cannot build trust policy: %w", err)
	}
	return string(body), nil
}
