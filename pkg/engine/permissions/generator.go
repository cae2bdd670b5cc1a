package permissions

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stackgraft/stackgraft/pkg/config"
)

type policyDocument struct {
	Version   string      `json:"Version"`
	Statement []statement `json:"Statement"`
}

type statement struct {
	Sid      string   `json:"Sid"`
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource string   `json:"Resource"`
}

// GeneratePolicy renders the operator policy for the given phases. An
// empty phase list means all of them. Actions that only touch the
// ephemeral role are scoped to its name prefix, the rest stay account
// wide because they have no narrower resource form.
func GeneratePolicy(phases []string) ([]byte, error) {
	desired := make(map[string]bool)
	if len(phases) == 0 {
		for _, actions := range Catalog {
			for _, a := range actions {
				desired[a] = true
			}
		}
	} else {
		for _, phase := range phases {
			actions, ok := Catalog[phase]
			if !ok {
				return nil, fmt.Errorf("unknown phase %q", phase)
			}
			for _, a := range actions {
				desired[a] = true
			}
		}
	}

	var scoped, wide []string
	for a := range desired {
		if ephemeralScoped[a] {
			scoped = append(scoped, a)
		} else {
			wide = append(wide, a)
		}
	}
	sort.Strings(scoped)
	sort.Strings(wide)

	var stmts []statement
	if len(scoped) > 0 {
		stmts = append(stmts, statement{
			Sid:      "StackGraftEphemeralRole",
			Effect:   "Allow",
			Action:   scoped,
			Resource: fmt.Sprintf("arn:aws:iam::*:role/%s-*", config.EphemeralRolePrefix),
		})
	}
	if len(wide) > 0 {
		stmts = append(stmts, statement{
			Sid:      "StackGraftPreflight",
			Effect:   "Allow",
			Action:   wide,
			Resource: "*",
		})
	}

	doc := policyDocument{Version: config.CurrentPolicyVersion, Statement: stmts}
	return json.MarshalIndent(doc, "", "  ")
}
