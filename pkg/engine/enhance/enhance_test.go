package enhance

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackgraft/stackgraft/pkg/cfn"
	"github.com/stackgraft/stackgraft/pkg/config"
	"github.com/stackgraft/stackgraft/pkg/policy"
)

const baseTemplate = `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  HandlerRole:
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
                Action:
                  - logs:CreateLogStream
                  - logs:PutLogEvents
                Resource: '*'
`

func parse(t *testing.T, src string) *cfn.Template {
	t.Helper()
	tpl, err := cfn.Parse([]byte(src), "test.yaml")
	require.NoError(t, err)
	return tpl
}

func newTestEnhancer() *Enhancer {
	return New(slog.New(slog.DiscardHandler))
}

func TestEnhanceAppendsFreshPolicy(t *testing.T) {
	tpl := parse(t, baseTemplate)
	e := newTestEnhancer()

	out, err := e.Enhance(tpl, "HandlerRole")
	require.NoError(t, err)
	require.True(t, out.Changed)
	require.Empty(t, out.Extended)

	role, _ := tpl.RoleByName("HandlerRole")
	policies := role.Policies()
	require.Len(t, policies, 2)
	require.Equal(t, InvokePolicyName, policies[1].Name)

	check := e.Validate(tpl, "HandlerRole")
	require.Empty(t, check.Issues())
}

func TestEnhanceIsIdempotent(t *testing.T) {
	tpl := parse(t, baseTemplate)
	e := newTestEnhancer()

	_, err := e.Enhance(tpl, "HandlerRole")
	require.NoError(t, err)
	once, err := tpl.Marshal()
	require.NoError(t, err)

	out, err := e.Enhance(tpl, "HandlerRole")
	require.NoError(t, err)
	require.False(t, out.Changed, "second run must be a no-op")

	twice, err := tpl.Marshal()
	require.NoError(t, err)
	require.Equal(t, string(once), string(twice))
}

func TestEnhanceExtendsExistingStatement(t *testing.T) {
	src := `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  HandlerRole:
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
        - PolicyName: AgentAccess
          PolicyDocument:
            Version: '2012-10-17'
            Statement:
              - Effect: Allow
                Action: bedrock-agentcore:InvokeAgentRuntime
                Resource: arn:aws:bedrock-agentcore:us-east-1:123456789012:runtime/existing
`
	tpl := parse(t, src)
	e := newTestEnhancer()

	out, err := e.Enhance(tpl, "HandlerRole")
	require.NoError(t, err)
	require.True(t, out.Changed)
	require.Equal(t, "AgentAccess", out.Extended, "existing statement must be extended, not duplicated")

	role, _ := tpl.RoleByName("HandlerRole")
	require.Len(t, role.Policies(), 1, "no second policy may be added")

	// Old resource is kept, new pattern appended.
	doc := cfn.ToValue(role.Policies()[0].Document)
	stmts := cfn.StatementsOf(doc)
	require.Len(t, stmts, 1)
	resources := cfn.StringsOf(stmts[0]["Resource"])
	require.Len(t, resources, 2)
	require.Contains(t, resources, config.RuntimeResourcePattern)

	// And still idempotent afterwards.
	out, err = e.Enhance(tpl, "HandlerRole")
	require.NoError(t, err)
	require.False(t, out.Changed)
}

func TestEnhanceMissingRole(t *testing.T) {
	tpl := parse(t, baseTemplate)
	_, err := newTestEnhancer().Enhance(tpl, "NoSuchRole")
	require.Error(t, err)
}

func TestValidateReportsNamedIssues(t *testing.T) {
	tpl := parse(t, baseTemplate)
	check := newTestEnhancer().Validate(tpl, "HandlerRole")
	issues := check.Issues()
	require.NotEmpty(t, issues)
	require.Contains(t, issues[0], "invoke action missing")
}

func TestValidateDoesNotCombineStatements(t *testing.T) {
	// One statement allows the action unscoped, another denies it on the
	// exact resource. Neither grants the permission, so the checklist
	// must not pass by pooling their sub-checks.
	src := `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  HandlerRole:
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
        - PolicyName: Split
          PolicyDocument:
            Version: '2012-10-17'
            Statement:
              - Effect: Allow
                Action: bedrock-agentcore:InvokeAgentRuntime
                Resource: '*'
              - Effect: Deny
                Action: bedrock-agentcore:InvokeAgentRuntime
                Resource: arn:aws:bedrock-agentcore:*:*:runtime/*
`
	tpl := parse(t, src)
	check := newTestEnhancer().Validate(tpl, "HandlerRole")

	require.True(t, check.ActionPresent)
	require.NotEmpty(t, check.Issues())
	require.False(t, check.EffectAllow && check.ResourceScoped,
		"no single statement carries the full grant")
}

func TestAddRuntimeRole(t *testing.T) {
	tpl := parse(t, baseTemplate)
	docs := []policy.Document{
		{
			Name: "AgentcoreRuntimePolicy", Version: "2012-10-17",
			Statement: []policy.Statement{
				{Sid: "Logs", Effect: "Allow", Action: policy.StringList{"logs:PutLogEvents"}, Resource: policy.StringList{"arn:aws:logs:*:*:*"}},
			},
		},
	}

	name := AddRuntimeRole(tpl, docs)
	require.Equal(t, config.RuntimeRoleName, name)

	role, ok := tpl.RoleByName(config.RuntimeRoleName)
	require.True(t, ok)
	require.NotNil(t, role.TrustPolicy())

	trust := cfn.ToValue(role.TrustPolicy())
	stmts := cfn.StatementsOf(trust)
	require.Len(t, stmts, 1)
	principal := stmts[0]["Principal"].(map[string]any)
	require.Equal(t, config.RuntimeServicePrincipal, principal["Service"])

	policies := role.Policies()
	require.Len(t, policies, 1)
	require.Equal(t, "AgentcoreRuntimePolicy", policies[0].Name)

	tags := role.Tags()
	for _, key := range config.RequiredTags() {
		require.Contains(t, tags, key)
	}

	// The role ARN is exported through the short-tag intrinsic form.
	out := cfn.MapGet(cfn.MapGet(tpl.Root(), "Outputs"), config.RuntimeRoleName+"Arn")
	require.NotNil(t, out)
	value := cfn.MapGet(out, "Value")
	require.Equal(t, "!GetAtt", value.Tag)
	require.Equal(t, config.RuntimeRoleName+".Arn", value.Value)

	// Adding again replaces in place, so the resource count is stable.
	before := len(tpl.ResourceNames())
	AddRuntimeRole(tpl, docs)
	require.Equal(t, before, len(tpl.ResourceNames()))

	// Structure stays valid after the mutation.
	require.Empty(t, tpl.ValidateStructure())
}
