package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// RoleAPI is the IAM surface the validator consumes. Implementations
// return *RemoteError for any call that reaches AWS and fails.
type RoleAPI interface {
	CreateRole(ctx context.Context, name, trustPolicy string, tags map[string]string) (arn string, err error)
	DeleteRole(ctx context.Context, name string) error
	PutRolePolicy(ctx context.Context, roleName, policyName, document string) error
	DeleteRolePolicy(ctx context.Context, roleName, policyName string) error
	ListRolePolicies(ctx context.Context, roleName string) ([]string, error)
	ListRoles(ctx context.Context, maxItems int32) ([]string, error)
}

// IdentityAPI resolves the acting identity.
type IdentityAPI interface {
	CallerIdentity(ctx context.Context) (account, arn string, err error)
}

// IAMClient adapts the SDK IAM client to RoleAPI.
type IAMClient struct {
	Client *iam.Client
}

// NewIAMClient wraps an SDK client.
func NewIAMClient(c *iam.Client) *IAMClient {
	return &IAMClient{Client: c}
}

func (c *IAMClient) CreateRole(ctx context.Context, name, trustPolicy string, tags map[string]string) (string, error) {
	var roleTags []iamtypes.Tag
	for k, v := range tags {
		roleTags = append(roleTags, iamtypes.Tag{Key: awssdk.String(k), Value: awssdk.String(v)})
	}
	out, err := c.Client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 awssdk.String(name),
		AssumeRolePolicyDocument: awssdk.String(trustPolicy),
		Description:              awssdk.String("StackGraft ephemeral validation role"),
		Tags:                     roleTags,
	})
	if err != nil {
		return "", WrapRemote("iam.CreateRole", err)
	}
	return awssdk.ToString(out.Role.Arn), nil
}

func (c *IAMClient) DeleteRole(ctx context.Context, name string) error {
	_, err := c.Client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: awssdk.String(name)})
	return WrapRemote("iam.DeleteRole", err)
}

func (c *IAMClient) PutRolePolicy(ctx context.Context, roleName, policyName, document string) error {
	_, err := c.Client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       awssdk.String(roleName),
		PolicyName:     awssdk.String(policyName),
		PolicyDocument: awssdk.String(document),
	})
	return WrapRemote("iam.PutRolePolicy", err)
}

func (c *IAMClient) DeleteRolePolicy(ctx context.Context, roleName, policyName string) error {
	_, err := c.Client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   awssdk.String(roleName),
		PolicyName: awssdk.String(policyName),
	})
	return WrapRemote("iam.DeleteRolePolicy", err)
}

func (c *IAMClient) ListRolePolicies(ctx context.Context, roleName string) ([]string, error) {
	out, err := c.Client.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: awssdk.String(roleName),
	})
	if err != nil {
		return nil, WrapRemote("iam.ListRolePolicies", err)
	}
	return out.PolicyNames, nil
}

func (c *IAMClient) ListRoles(ctx context.Context, maxItems int32) ([]string, error) {
	out, err := c.Client.ListRoles(ctx, &iam.ListRolesInput{MaxItems: awssdk.Int32(maxItems)})
	if err != nil {
		return nil, WrapRemote("iam.ListRoles", err)
	}
	names := make([]string, 0, len(out.Roles))
	for _, r := range out.Roles {
		names = append(names, awssdk.ToString(r.RoleName))
	}
	return names, nil
}

// STSClient adapts the SDK STS client to IdentityAPI.
type STSClient struct {
	Client *sts.Client
}

// NewSTSClient wraps an SDK client.
func NewSTSClient(c *sts.Client) *STSClient {
	return &STSClient{Client: c}
}

func (c *STSClient) CallerIdentity(ctx context.Context) (string, string, error) {
	out, err := c.Client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", WrapRemote("sts.GetCallerIdentity", err)
	}
	return awssdk.ToString(out.Account), awssdk.ToString(out.Arn), nil
}
