package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgraft/stackgraft/pkg/cfn"
	awsx "github.com/stackgraft/stackgraft/pkg/engine/aws"
)

const runtimePolicyJSON = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": ["logs:DescribeLogGroups"],
      "Resource": "*"
    }
  ]
}`

const invokePolicyJSON = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": "bedrock-agentcore:InvokeAgentRuntime",
      "Resource": "arn:aws:bedrock-agentcore:*:*:runtime/*"
    }
  ]
}`

const runTemplate = `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  ChatFunctionRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: lambda.amazonaws.com
            Action: sts:AssumeRole
      Policies:
        - PolicyName: Logs
          PolicyDocument:
            Version: '2012-10-17'
            Statement:
              - Effect: Allow
                Action: logs:DescribeLogGroups
                Resource: '*'
      Tags:
        - Key: Project
          Value: stackgraft
        - Key: ManagedBy
          Value: stackgraft
`

// writeWorkspace lays out a policy dir and template the way a real
// project would and returns the two paths.
func writeWorkspace(t *testing.T) (policyDir, templatePath string) {
	t.Helper()
	dir := t.TempDir()
	policyDir = filepath.Join(dir, "policies")
	require.NoError(t, os.Mkdir(policyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "agentcore-runtime-policy.json"), []byte(runtimePolicyJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "agentcore-invoke-policy.json"), []byte(invokePolicyJSON), 0o644))
	templatePath = filepath.Join(dir, "template.yaml")
	require.NoError(t, os.WriteFile(templatePath, []byte(runTemplate), 0o644))
	return policyDir, templatePath
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	t.Setenv("STACKGRAFT_HOME", t.TempDir())
	mock := awsx.NewMockIAM()
	opts.SkipTelemetry = true
	opts.Logger = slog.New(slog.DiscardHandler)
	e, err := New(context.Background(), WithOptions(opts), WithClients(mock, mock))
	require.NoError(t, err)
	return e
}

func TestRunFullCycle(t *testing.T) {
	policyDir, templatePath := writeWorkspace(t)
	e := newTestEngine(t, Options{PolicyDir: policyDir, TemplatePath: templatePath})

	res := e.Run(context.Background())

	require.True(t, res.OverallSuccess, "summary:\n%s", res.Summary)
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.Success)
	assert.True(t, res.Validation.CleanupSuccessful)
	assert.Len(t, res.Validation.AttachedPolicies, 2)

	require.NotNil(t, res.Update)
	assert.True(t, res.Update.Success)
	assert.Equal(t, "ChatFunctionRole", res.Update.CallerRole)
	assert.NotEmpty(t, res.Update.RuntimeRole)
	assert.FileExists(t, templatePath+".bak")

	tpl, err := cfn.Load(templatePath)
	require.NoError(t, err)
	assert.Len(t, tpl.Roles(), 2, "runtime role written to disk")
	assert.Contains(t, res.Summary, "Result: SUCCESS")
}

func TestRunDryRunLeavesTemplateUntouched(t *testing.T) {
	policyDir, templatePath := writeWorkspace(t)
	before, err := os.ReadFile(templatePath)
	require.NoError(t, err)

	e := newTestEngine(t, Options{PolicyDir: policyDir, TemplatePath: templatePath, DryRun: true})
	res := e.Run(context.Background())

	require.True(t, res.OverallSuccess, "summary:\n%s", res.Summary)
	after, err := os.ReadFile(templatePath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "dry run must not alter the template")
	assert.NoFileExists(t, templatePath+".bak")
	assert.Contains(t, res.Summary, "DRY RUN")
}

func TestRunValidationFailureShortCircuitsIntegration(t *testing.T) {
	policyDir, templatePath := writeWorkspace(t)
	before, err := os.ReadFile(templatePath)
	require.NoError(t, err)

	t.Setenv("STACKGRAFT_HOME", t.TempDir())
	mock := awsx.NewMockIAM()
	mock.FailCreate = true
	e, err := New(context.Background(),
		WithOptions(Options{
			PolicyDir:     policyDir,
			TemplatePath:  templatePath,
			SkipTelemetry: true,
			Logger:        slog.New(slog.DiscardHandler),
		}),
		WithClients(mock, mock))
	require.NoError(t, err)

	res := e.Run(context.Background())

	assert.False(t, res.OverallSuccess)
	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.Success)
	assert.Nil(t, res.Update, "integration must not run after a failed validation")

	after, err := os.ReadFile(templatePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunSkipFlags(t *testing.T) {
	policyDir, templatePath := writeWorkspace(t)

	e := newTestEngine(t, Options{
		PolicyDir:       policyDir,
		TemplatePath:    templatePath,
		SkipValidation:  true,
		SkipIntegration: true,
	})
	res := e.Run(context.Background())

	assert.True(t, res.OverallSuccess)
	assert.Nil(t, res.Validation)
	assert.Nil(t, res.Update)
	assert.Contains(t, res.Summary, "Validation: SKIPPED")
	assert.Contains(t, res.Summary, "Integration: SKIPPED")
}

func TestRunSkipBothPhasesIgnoresPolicyDir(t *testing.T) {
	_, templatePath := writeWorkspace(t)

	// Nothing consumes the documents, so an unusable policy dir must
	// not fail the run.
	e := newTestEngine(t, Options{
		PolicyDir:       filepath.Join(t.TempDir(), "no-such-dir"),
		TemplatePath:    templatePath,
		SkipValidation:  true,
		SkipIntegration: true,
	})
	res := e.Run(context.Background())

	assert.True(t, res.OverallSuccess, "summary:\n%s", res.Summary)
	assert.Empty(t, res.Errors())
}

func TestRunSkipValidationLoadFailureLandsOnIntegration(t *testing.T) {
	_, templatePath := writeWorkspace(t)

	e := newTestEngine(t, Options{
		PolicyDir:      filepath.Join(t.TempDir(), "no-such-dir"),
		TemplatePath:   templatePath,
		SkipValidation: true,
	})
	res := e.Run(context.Background())

	assert.False(t, res.OverallSuccess)
	assert.Nil(t, res.Validation, "the skipped phase must not carry the error")
	require.NotNil(t, res.Update)
	require.NotEmpty(t, res.Update.Errors)
	assert.Contains(t, res.Summary, "Validation: SKIPPED")
	assert.Contains(t, res.Summary, "Integration: FAILED")
}

func TestRunMissingPolicyFileNamesIt(t *testing.T) {
	dir := t.TempDir()
	policyDir := filepath.Join(dir, "policies")
	require.NoError(t, os.Mkdir(policyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "agentcore-runtime-policy.json"), []byte(runtimePolicyJSON), 0o644))

	e := newTestEngine(t, Options{PolicyDir: policyDir, TemplatePath: filepath.Join(dir, "template.yaml")})
	res := e.Run(context.Background())

	assert.False(t, res.OverallSuccess)
	require.NotNil(t, res.Validation)
	require.NotEmpty(t, res.Validation.Errors)
	assert.Contains(t, res.Validation.Errors[0], "agentcore-invoke-policy.json")
}

func TestRunSecurityFailureBlocksWrite(t *testing.T) {
	policyDir, templatePath := writeWorkspace(t)
	const openTemplate = `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  ChatFunctionRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal: '*'
            Action: sts:AssumeRole
`
	require.NoError(t, os.WriteFile(templatePath, []byte(openTemplate), 0o644))
	before, err := os.ReadFile(templatePath)
	require.NoError(t, err)

	e := newTestEngine(t, Options{PolicyDir: policyDir, TemplatePath: templatePath, SkipValidation: true})
	res := e.Run(context.Background())

	assert.False(t, res.OverallSuccess)
	require.NotNil(t, res.Update)
	assert.False(t, res.Update.Success)
	assert.Contains(t, res.Summary, "OVERPRIVILEGED")

	after, err := os.ReadFile(templatePath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed security validation must not write")
}

func TestValidatePrerequisites(t *testing.T) {
	policyDir, templatePath := writeWorkspace(t)

	e := newTestEngine(t, Options{PolicyDir: policyDir, TemplatePath: templatePath})
	assert.Empty(t, e.ValidatePrerequisites())

	missing := newTestEngine(t, Options{
		PolicyDir:    filepath.Join(t.TempDir(), "absent"),
		TemplatePath: filepath.Join(t.TempDir(), "absent.yaml"),
	})
	issues := missing.ValidatePrerequisites()
	assert.GreaterOrEqual(t, len(issues), 3)
}

func TestRedactSensitiveData(t *testing.T) {
	attr := redactSensitiveData(nil, slog.String("access_key", "AKIA123"))
	assert.Equal(t, "[REDACTED]", attr.Value.String())

	attr = redactSensitiveData(nil, slog.String("region", "us-east-1"))
	assert.Equal(t, "us-east-1", attr.Value.String())
}
