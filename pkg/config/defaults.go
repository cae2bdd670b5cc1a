// Package config defines default configuration, policy constants, and
// security rule parameters.
package config

// Defaults.
const (
	DefaultRegion       = "us-east-1"
	DefaultTemplatePath = "template.yaml"
	DefaultPolicyDir    = "policies"

	// MaxPolicyBytes is the IAM ceiling for a role inline policy document.
	MaxPolicyBytes = 10240

	// CurrentPolicyVersion is the only accepted policy language version.
	CurrentPolicyVersion = "2012-10-17"

	// EphemeralRolePrefix names short-lived validation roles.
	EphemeralRolePrefix = "stackgraft-validate"

	// InvokeAction is the permission grafted onto the caller role.
	InvokeAction = "bedrock-agentcore:InvokeAgentRuntime"

	// RuntimeResourcePattern is the only resource scope the invoke
	// permission may carry.
	RuntimeResourcePattern = "arn:aws:bedrock-agentcore:*:*:runtime/*"

	// RuntimeRoleName is the logical ID of the execution role added to
	// the stack.
	RuntimeRoleName = "AgentCoreRuntimeRole"

	// RuntimeServicePrincipal must appear in the runtime role trust policy.
	RuntimeServicePrincipal = "bedrock-agentcore.amazonaws.com"

	// CallerServicePrincipal identifies the stack's compute role during
	// discovery.
	CallerServicePrincipal = "lambda.amazonaws.com"
)

// ExpectedPolicyFiles is the fixed set of permission documents a run loads.
// Order matters: policies are attached and embedded in this order.
func ExpectedPolicyFiles() []string {
	return []string{
		"agentcore-runtime-policy.json",
		"agentcore-invoke-policy.json",
	}
}

// CallerRoleNameHints are case-insensitive substrings used by discovery
// when no trust policy names the compute service.
func CallerRoleNameHints() []string {
	return []string{"lambda", "function", "handler"}
}

// DangerousActions lists permissions that always raise a HIGH finding.
func DangerousActions() map[string]string {
	return map[string]string{
		"*":                   "Full administrative access",
		"iam:*":               "Full IAM access",
		"s3:*":                "Full S3 access",
		"kms:*":               "Full KMS access",
		"secretsmanager:*":    "Full Secrets Manager access",
		"iam:PassRole":        "Privilege escalation via role passing",
		"sts:AssumeRole":      "Unscoped role assumption",
		"iam:CreateAccessKey": "Credential minting",
	}
}

// WildcardResourceAllowed lists actions that legitimately require a "*"
// resource and therefore only inform, never warn.
func WildcardResourceAllowed() map[string]bool {
	return map[string]bool{
		"logs:DescribeLogGroups":       true,
		"cloudwatch:PutMetricData":     true,
		"xray:PutTraceSegments":        true,
		"xray:PutTelemetryRecords":     true,
		"ecr:GetAuthorizationToken":    true,
		"bedrock:ListFoundationModels": true,
	}
}

// RequiredTags are the classification tags every role resource must carry.
func RequiredTags() []string {
	return []string{"Project", "ManagedBy"}
}

// EphemeralRoleTags mark validation roles for audit and janitor cleanup.
func EphemeralRoleTags() map[string]string {
	return map[string]string{
		"ManagedBy":   "stackgraft",
		"Purpose":     "policy-validation",
		"AutoCleanup": "true",
	}
}
