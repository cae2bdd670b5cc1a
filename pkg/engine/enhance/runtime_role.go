package enhance

import (
	"gopkg.in/yaml.v3"

	"github.com/stackgraft/stackgraft/pkg/cfn"
	"github.com/stackgraft/stackgraft/pkg/config"
	"github.com/stackgraft/stackgraft/pkg/policy"
)

// AddRuntimeRole inserts the new runtime execution role, embedding each
// loaded permission document as a same-named inline policy, and exports
// the role ARN as a template output. Re-running replaces both nodes
// with identical ones, keeping the operation idempotent.
func AddRuntimeRole(tpl *cfn.Template, docs []policy.Document) string {
	node := cfn.Map()
	cfn.MapSet(node, "Type", cfn.Scalar(cfn.RoleResourceType))

	props := cfn.Map()
	cfn.MapSet(node, "Properties", props)
	cfn.MapSet(props, "RoleName", cfn.Sub(config.RuntimeRoleName+"-${AWS::StackName}"))
	cfn.MapSet(props, "AssumeRolePolicyDocument", runtimeTrustPolicy())

	policies := cfn.Seq()
	for _, doc := range docs {
		entry := cfn.Map()
		cfn.MapSet(entry, "PolicyName", cfn.Scalar(doc.Name))
		cfn.MapSet(entry, "PolicyDocument", policyNode(doc))
		policies.Content = append(policies.Content, entry)
	}
	cfn.MapSet(props, "Policies", policies)

	tags := cfn.Seq()
	for _, key := range config.RequiredTags() {
		entry := cfn.Map()
		cfn.MapSet(entry, "Key", cfn.Scalar(key))
		cfn.MapSet(entry, "Value", cfn.Scalar("stackgraft"))
		tags.Content = append(tags.Content, entry)
	}
	cfn.MapSet(props, "Tags", tags)

	tpl.AddResource(config.RuntimeRoleName, node)

	out := cfn.Map()
	cfn.MapSet(out, "Description", cfn.Scalar("ARN of the runtime execution role"))
	cfn.MapSet(out, "Value", cfn.GetAtt(config.RuntimeRoleName, "Arn"))
	tpl.SetOutput(config.RuntimeRoleName+"Arn", out)

	return config.RuntimeRoleName
}

// runtimeTrustPolicy scopes assumption to the runtime service principal.
func runtimeTrustPolicy() *yaml.Node {
	doc := cfn.Map()
	cfn.MapSet(doc, "Version", cfn.Scalar(config.CurrentPolicyVersion))
	stmt := cfn.Map()
	cfn.MapSet(stmt, "Effect", cfn.Scalar("Allow"))
	principal := cfn.Map()
	cfn.MapSet(principal, "Service", cfn.Scalar(config.RuntimeServicePrincipal))
	cfn.MapSet(stmt, "Principal", principal)
	cfn.MapSet(stmt, "Action", cfn.Scalar("sts:AssumeRole"))
	cfn.MapSet(doc, "Statement", cfn.Seq(stmt))
	return doc
}

// policyNode converts a loaded permission document into a template
// subtree, preserving statement order.
func policyNode(doc policy.Document) *yaml.Node {
	n := cfn.Map()
	cfn.MapSet(n, "Version", cfn.Scalar(doc.Version))

	stmts := cfn.Seq()
	for _, s := range doc.Statement {
		sn := cfn.Map()
		if s.Sid != "" {
			cfn.MapSet(sn, "Sid", cfn.Scalar(s.Sid))
		}
		cfn.MapSet(sn, "Effect", cfn.Scalar(s.Effect))
		if len(s.Action) > 0 {
			cfn.MapSet(sn, "Action", stringListNode(s.Action))
		}
		if len(s.Resource) > 0 {
			cfn.MapSet(sn, "Resource", stringListNode(s.Resource))
		}
		stmts.Content = append(stmts.Content, sn)
	}
	cfn.MapSet(n, "Statement", stmts)
	return n
}

// stringListNode keeps the compact scalar form for single entries.
func stringListNode(l policy.StringList) *yaml.Node {
	if len(l) == 1 {
		return cfn.Scalar(l[0])
	}
	seq := cfn.Seq()
	for _, s := range l {
		seq.Content = append(seq.Content, cfn.Scalar(s))
	}
	return seq
}
