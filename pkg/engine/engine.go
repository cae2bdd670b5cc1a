// Package engine sequences the two-phase workflow: validate the policy
// documents against a live account with an ephemeral role, then weave
// the permissions into the CloudFormation template. The engine is the
// single place where component errors are caught and turned into
// result records. Run never raises.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackgraft/stackgraft/pkg/cfn"
	"github.com/stackgraft/stackgraft/pkg/config"
	awsx "github.com/stackgraft/stackgraft/pkg/engine/aws"
	"github.com/stackgraft/stackgraft/pkg/engine/discovery"
	"github.com/stackgraft/stackgraft/pkg/engine/enhance"
	"github.com/stackgraft/stackgraft/pkg/engine/security"
	"github.com/stackgraft/stackgraft/pkg/engine/validator"
	"github.com/stackgraft/stackgraft/pkg/policy"
	"github.com/stackgraft/stackgraft/pkg/telemetry"
	"github.com/stackgraft/stackgraft/pkg/version"
)

// Options holds engine settings.
type Options struct {
	Region       string
	Profile      string
	TemplatePath string
	OutputPath   string // defaults to TemplatePath
	PolicyDir    string
	RulesFile    string // optional dynamic security rules

	SkipValidation  bool
	SkipIntegration bool
	DryRun          bool
	NoBackup        bool

	// Telemetry config.
	OtelEndpoint  string
	SkipTelemetry bool

	Logger *slog.Logger
}

// Engine is the runtime core. Discovery and rule state live on the
// instance, never in package globals, so runs stay independent.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	opts     Options
	iam      awsx.RoleAPI
	identity awsx.IdentityAPI
	dynamic  *security.CELEngine
}

// Option is a functional configuration override.
type Option func(*Engine)

// WithOptions sets raw options.
func WithOptions(opts Options) Option {
	return func(e *Engine) {
		e.opts = opts
		if opts.Logger != nil {
			e.Logger = opts.Logger
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.Logger = l }
}

// WithClients injects the cloud collaborators, used by tests and by
// callers that already hold a session.
func WithClients(iamAPI awsx.RoleAPI, identity awsx.IdentityAPI) Option {
	return func(e *Engine) {
		e.iam = iamAPI
		e.identity = identity
	}
}

// New initializes the engine with safe defaults.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: redactSensitiveData,
	})
	e := &Engine{
		Logger: slog.New(handler),
		Tracer: telemetry.Tracer("stackgraft/engine"),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.opts.TemplatePath == "" {
		e.opts.TemplatePath = config.DefaultTemplatePath
	}
	if e.opts.OutputPath == "" {
		e.opts.OutputPath = e.opts.TemplatePath
	}
	if e.opts.PolicyDir == "" {
		e.opts.PolicyDir = config.DefaultPolicyDir
	}
	if e.opts.Region == "" {
		e.opts.Region = config.DefaultRegion
	}

	if !e.opts.SkipTelemetry {
		if _, err := telemetry.Init(ctx, version.AppName, version.Current, e.opts.OtelEndpoint); err != nil {
			e.Logger.Warn("telemetry init failed", "error", err)
		}
	}

	if e.opts.RulesFile != "" {
		dyn, err := security.NewCELEngine(e.Logger)
		if err != nil {
			return nil, err
		}
		if err := dyn.LoadRulesFile(e.opts.RulesFile); err != nil {
			return nil, err
		}
		e.dynamic = dyn
	}

	return e, nil
}

// Run executes validation then integration. Phase-1 failure
// short-circuits phase 2 so a failed validation can never be followed
// by a template write.
func (e *Engine) Run(ctx context.Context) (result IntegrationResult) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run")
	defer span.End()
	defer e.recoverPanic(ctx, &result)
	defer func() { result.Summary = summarize(e.opts, result) }()

	e.Logger.Info("starting run",
		"template", e.opts.TemplatePath,
		"policy_dir", e.opts.PolicyDir,
		"dry_run", e.opts.DryRun)

	// Both phases consume the loaded documents; with both skipped there
	// is nothing to load. A load failure lands on the first phase that
	// would have used the documents.
	var docs []policy.Document
	if !e.opts.SkipValidation || !e.opts.SkipIntegration {
		var err error
		docs, err = policy.NewLoader(e.opts.PolicyDir).LoadAll()
		if err != nil {
			if e.opts.SkipValidation {
				result.Update = &UpdateResult{Errors: []string{err.Error()}}
			} else {
				result.Validation = &validator.Result{Errors: []string{err.Error()}}
			}
			span.SetStatus(codes.Error, "policy load failed")
			return result
		}
	}

	if !e.opts.SkipValidation {
		vres := e.runValidation(ctx, docs)
		result.Validation = &vres
		if !vres.Success {
			e.Logger.Error("validation failed, skipping integration", "errors", len(vres.Errors))
			span.SetAttributes(attribute.Bool("run.validation_failed", true))
			return result
		}
	}

	if !e.opts.SkipIntegration {
		ures := e.runIntegration(ctx, docs)
		result.Update = &ures
	}

	result.OverallSuccess = result.phasesPassed(e.opts)
	return result
}

func (e *Engine) runValidation(ctx context.Context, docs []policy.Document) validator.Result {
	ctx, span := e.Tracer.Start(ctx, "Engine.Validate")
	defer span.End()

	if err := e.ensureClients(ctx); err != nil {
		span.SetStatus(codes.Error, "session init failed")
		return validator.Result{Errors: []string{fmt.Sprintf("aws session: %v", err)}}
	}

	res := validator.New(e.iam, e.identity, e.Logger).Validate(ctx, docs)
	span.SetAttributes(
		attribute.Bool("validate.success", res.Success),
		attribute.Bool("validate.cleanup", res.CleanupSuccessful),
		attribute.Int("validate.attached", len(res.AttachedPolicies)),
	)
	return res
}

func (e *Engine) runIntegration(ctx context.Context, docs []policy.Document) UpdateResult {
	_, span := e.Tracer.Start(ctx, "Engine.Integrate")
	defer span.End()

	res := UpdateResult{
		OutputPath: e.opts.OutputPath,
		DryRun:     e.opts.DryRun,
	}
	fail := func(format string, args ...any) UpdateResult {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		span.SetStatus(codes.Error, res.Errors[len(res.Errors)-1])
		return res
	}

	tpl, err := cfn.Load(e.opts.TemplatePath)
	if err != nil {
		return fail("%v", err)
	}

	callerRole, found := discovery.NewFinder(e.Logger).FindRole(tpl)
	if !found {
		return fail("no role resource matched any discovery strategy in %s", e.opts.TemplatePath)
	}
	res.CallerRole = callerRole

	outcome, err := enhance.New(e.Logger).Enhance(tpl, callerRole)
	if err != nil {
		return fail("%v", err)
	}
	res.Changed = outcome.Changed
	res.PolicyExtended = outcome.Extended

	res.RuntimeRole = enhance.AddRuntimeRole(tpl, docs)

	rules := security.NewEngine(e.Logger)
	rules.Dynamic = e.dynamic
	checks := []struct{ name, principal string }{
		{callerRole, config.CallerServicePrincipal},
		{res.RuntimeRole, config.RuntimeServicePrincipal},
	}
	for _, check := range checks {
		name, principal := check.name, check.principal
		role, ok := tpl.RoleByName(name)
		if !ok {
			continue
		}
		sres := rules.ValidateRole(role, principal)
		res.Security = append(res.Security, sres)
		if !sres.Passed() {
			for _, issue := range sres.Issues {
				if issue.Severity == security.SeverityHigh {
					res.Errors = append(res.Errors, fmt.Sprintf(
						"%s: %s %s: %s", sres.RoleName, issue.Severity, issue.Category, issue.Message))
				}
			}
		}
	}
	if len(res.Errors) > 0 {
		span.SetStatus(codes.Error, "security validation failed")
		return res
	}

	if issues := tpl.ValidateStructure(); len(issues) > 0 {
		for _, issue := range issues {
			res.Errors = append(res.Errors, "template structure: "+issue)
		}
		span.SetStatus(codes.Error, "structure validation failed")
		return res
	}

	if e.opts.DryRun {
		e.Logger.Info("dry run, template not written",
			"caller_role", callerRole, "runtime_role", res.RuntimeRole)
		res.Success = true
		return res
	}

	if !e.opts.NoBackup {
		backup, err := backupFile(e.opts.OutputPath)
		if err != nil {
			return fail("backup: %v", err)
		}
		res.BackupPath = backup
	}
	if err := tpl.Save(e.opts.OutputPath); err != nil {
		return fail("%v", err)
	}

	e.Logger.Info("template updated",
		"path", e.opts.OutputPath,
		"caller_role", callerRole,
		"runtime_role", res.RuntimeRole)
	res.Success = true
	return res
}

// ValidatePrerequisites reports everything that would make a run fail
// before any remote call is made. An empty list means ready.
func (e *Engine) ValidatePrerequisites() []string {
	var issues []string

	for _, name := range config.ExpectedPolicyFiles() {
		path := filepath.Join(e.opts.PolicyDir, name)
		info, err := os.Stat(path)
		switch {
		case err != nil:
			issues = append(issues, fmt.Sprintf("policy file missing: %s", path))
		case info.Size() > config.MaxPolicyBytes:
			issues = append(issues, fmt.Sprintf("policy file exceeds %d bytes: %s", config.MaxPolicyBytes, path))
		}
	}

	if !e.opts.SkipIntegration {
		tpl, err := cfn.Load(e.opts.TemplatePath)
		if err != nil {
			issues = append(issues, err.Error())
		} else {
			for _, s := range tpl.ValidateStructure() {
				issues = append(issues, "template: "+s)
			}
		}
	}

	if e.opts.Region == "" {
		issues = append(issues, "no region configured")
	}
	return issues
}

func (e *Engine) ensureClients(ctx context.Context) error {
	if e.iam != nil && e.identity != nil {
		return nil
	}
	client, err := awsx.NewClient(ctx, e.opts.Region, e.opts.Profile)
	if err != nil {
		return err
	}
	e.iam = awsx.NewIAMClient(client.IAM)
	e.identity = awsx.NewSTSClient(client.STS)
	return nil
}

// backupFile copies the current on-disk template beside itself before
// it is overwritten. A missing original needs no backup.
func backupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	backup := path + ".bak"
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", err
	}
	return backup, nil
}

// recoverPanic converts a crash in either phase into result errors so
// the caller always receives a populated IntegrationResult.
func (e *Engine) recoverPanic(ctx context.Context, result *IntegrationResult) {
	r := recover()
	if r == nil {
		return
	}
	_, span := e.Tracer.Start(ctx, "CriticalPanic")
	defer span.End()

	stack := debug.Stack()
	span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
	span.SetStatus(codes.Error, "panic")
	span.SetAttributes(attribute.String("crash.reason", fmt.Sprintf("%v", r)))

	e.Logger.Error("panic recovered", "error", r, "stack", string(stack))

	if result.Update == nil {
		result.Update = &UpdateResult{}
	}
	result.Update.Success = false
	result.Update.Errors = append(result.Update.Errors, fmt.Sprintf("internal error: %v", r))
	result.OverallSuccess = false
	result.Summary = summarize(e.opts, *result)
}

// redactSensitiveData scrubs credential-shaped keys from log output.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"account": true, "password": true, "access_key": true, "token": true,
		"secret": true, "api_key": true, "private_key": true, "auth_token": true,
		"session_token": true, "credential": true, "signature": true,
	}
	if sensitiveKeys[a.Key] {
		return slog.Attr{Key: a.Key, Value: slog.StringValue("[REDACTED]")}
	}
	return a
}
