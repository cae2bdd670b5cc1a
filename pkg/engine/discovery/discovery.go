// Package discovery locates the stack's compute-execution role inside a
// loaded template using a layered heuristic.
package discovery

import (
	"log/slog"
	"strings"

	"github.com/stackgraft/stackgraft/pkg/cfn"
	"github.com/stackgraft/stackgraft/pkg/config"
)

// Finder applies three strategies in order, first match wins:
//
//  1. a trust-policy statement names the compute service principal;
//  2. the resource name contains a recognized substring;
//  3. an inline-policy action carries the compute service prefix.
//
// Within a strategy the first role in document order wins. Multiple
// matches are not disambiguated; this is a deliberate simplicity
// trade-off and a known limitation.
type Finder struct {
	ServicePrincipal string
	NameHints        []string
	ActionPrefix     string
	Logger           *slog.Logger
}

// NewFinder returns a finder tuned for the Lambda execution role.
func NewFinder(logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		ServicePrincipal: config.CallerServicePrincipal,
		NameHints:        config.CallerRoleNameHints(),
		ActionPrefix:     "lambda:",
		Logger:           logger,
	}
}

// FindRole returns the logical name of the compute-execution role, or
// false when no strategy matches.
func (f *Finder) FindRole(tpl *cfn.Template) (string, bool) {
	roles := tpl.Roles()
	if len(roles) == 0 {
		return "", false
	}

	for _, strategy := range []struct {
		name  string
		match func(cfn.Role) bool
	}{
		{"trust-principal", f.matchesTrustPrincipal},
		{"name-hint", f.matchesNameHint},
		{"action-prefix", f.matchesActionPrefix},
	} {
		for _, role := range roles {
			if strategy.match(role) {
				f.Logger.Debug("Discovered compute role", "role", role.Name, "strategy", strategy.name)
				return role.Name, true
			}
		}
	}
	return "", false
}

// matchesTrustPrincipal scans trust-policy statements for the compute
// service principal.
func (f *Finder) matchesTrustPrincipal(role cfn.Role) bool {
	doc := cfn.ToValue(role.TrustPolicy())
	for _, stmt := range cfn.StatementsOf(doc) {
		principal, ok := stmt["Principal"].(map[string]any)
		if !ok {
			continue
		}
		for _, svc := range cfn.StringsOf(principal["Service"]) {
			if svc == f.ServicePrincipal {
				return true
			}
		}
	}
	return false
}

// matchesNameHint scans the logical resource name, case-insensitively.
func (f *Finder) matchesNameHint(role cfn.Role) bool {
	name := strings.ToLower(role.Name)
	for _, hint := range f.NameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// matchesActionPrefix scans inline-policy action lists for the compute
// service's own API surface.
func (f *Finder) matchesActionPrefix(role cfn.Role) bool {
	for _, p := range role.Policies() {
		doc := cfn.ToValue(p.Document)
		for _, stmt := range cfn.StatementsOf(doc) {
			for _, action := range cfn.StringsOf(stmt["Action"]) {
				if strings.HasPrefix(action, f.ActionPrefix) {
					return true
				}
			}
		}
	}
	return false
}
