// Package permissions generates the least-privilege IAM policy an
// operator needs to run the tool itself.
package permissions

// Catalog maps run phases to the IAM actions they issue.
var Catalog = map[string][]string{
	"validate": {
		"iam:CreateRole",
		"iam:DeleteRole",
		"iam:TagRole",
		"iam:PutRolePolicy",
		"iam:DeleteRolePolicy",
		"iam:ListRolePolicies",
	},
	"preflight": {
		"sts:GetCallerIdentity",
		"iam:ListRoles",
	},
}

// ephemeralScoped lists actions that only ever touch the ephemeral
// validation role and can be restricted to its name prefix.
var ephemeralScoped = map[string]bool{
	"iam:CreateRole":       true,
	"iam:DeleteRole":       true,
	"iam:TagRole":          true,
	"iam:PutRolePolicy":    true,
	"iam:DeleteRolePolicy": true,
	"iam:ListRolePolicies": true,
}
