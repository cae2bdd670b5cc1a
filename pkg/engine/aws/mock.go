package aws

import (
	"context"
	"fmt"
	"sync"
)

// MockIAM is an in-memory RoleAPI and IdentityAPI for unit tests.
// Failure injection fields simulate partial outages.
type MockIAM struct {
	mu sync.Mutex

	Roles    map[string]*MockRole
	Account  string
	Arn      string
	CallLog  []string

	// Failure injection.
	FailCreate       bool
	FailDelete       bool
	FailIdentity     bool
	FailList         bool
	FailPutAfter     int // fail the Nth PutRolePolicy (1-based), 0 = never
	FailDeletePolicy bool

	// IdentityErr, when set, is returned verbatim from CallerIdentity.
	// Use it for failures that never reached the service, e.g. transport
	// errors. FailIdentity still simulates a plain denial.
	IdentityErr error

	putCount int
}

// MockRole is one created role with its attached inline policies.
type MockRole struct {
	Name     string
	Arn      string
	Trust    string
	Tags     map[string]string
	Policies map[string]string // name -> document
	Order    []string          // attach order
}

// NewMockIAM returns an empty mock account.
func NewMockIAM() *MockIAM {
	return &MockIAM{
		Roles:   make(map[string]*MockRole),
		Account: "123456789012",
		Arn:     "arn:aws:iam::123456789012:user/operator",
	}
}

func (m *MockIAM) record(call string) {
	m.CallLog = append(m.CallLog, call)
}

func (m *MockIAM) CreateRole(ctx context.Context, name, trustPolicy string, tags map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateRole:" + name)
	if m.FailCreate {
		return "", &RemoteError{Op: "iam.CreateRole", Code: "AccessDenied", Message: "not authorized to create roles"}
	}
	if _, exists := m.Roles[name]; exists {
		return "", &RemoteError{Op: "iam.CreateRole", Code: "EntityAlreadyExists", Message: name}
	}
	arn := fmt.Sprintf("arn:aws:iam::%s:role/%s", m.Account, name)
	m.Roles[name] = &MockRole{
		Name:     name,
		Arn:      arn,
		Trust:    trustPolicy,
		Tags:     tags,
		Policies: make(map[string]string),
	}
	return arn, nil
}

func (m *MockIAM) DeleteRole(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteRole:" + name)
	if m.FailDelete {
		return &RemoteError{Op: "iam.DeleteRole", Code: "ServiceFailure", Message: "injected"}
	}
	role, ok := m.Roles[name]
	if !ok {
		return &RemoteError{Op: "iam.DeleteRole", Code: "NoSuchEntity", Message: name}
	}
	if len(role.Policies) > 0 {
		return &RemoteError{Op: "iam.DeleteRole", Code: "DeleteConflict", Message: "role has attached policies"}
	}
	delete(m.Roles, name)
	return nil
}

func (m *MockIAM) PutRolePolicy(ctx context.Context, roleName, policyName, document string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PutRolePolicy:" + roleName + "/" + policyName)
	m.putCount++
	if m.FailPutAfter > 0 && m.putCount >= m.FailPutAfter {
		return &RemoteError{Op: "iam.PutRolePolicy", Code: "LimitExceeded", Message: "injected"}
	}
	role, ok := m.Roles[roleName]
	if !ok {
		return &RemoteError{Op: "iam.PutRolePolicy", Code: "NoSuchEntity", Message: roleName}
	}
	if _, exists := role.Policies[policyName]; !exists {
		role.Order = append(role.Order, policyName)
	}
	role.Policies[policyName] = document
	return nil
}

func (m *MockIAM) DeleteRolePolicy(ctx context.Context, roleName, policyName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteRolePolicy:" + roleName + "/" + policyName)
	if m.FailDeletePolicy {
		return &RemoteError{Op: "iam.DeleteRolePolicy", Code: "ServiceFailure", Message: "injected"}
	}
	role, ok := m.Roles[roleName]
	if !ok {
		return &RemoteError{Op: "iam.DeleteRolePolicy", Code: "NoSuchEntity", Message: roleName}
	}
	delete(role.Policies, policyName)
	return nil
}

func (m *MockIAM) ListRolePolicies(ctx context.Context, roleName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListRolePolicies:" + roleName)
	role, ok := m.Roles[roleName]
	if !ok {
		return nil, &RemoteError{Op: "iam.ListRolePolicies", Code: "NoSuchEntity", Message: roleName}
	}
	return append([]string(nil), role.Order...), nil
}

func (m *MockIAM) ListRoles(ctx context.Context, maxItems int32) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListRoles")
	if m.FailList {
		return nil, &RemoteError{Op: "iam.ListRoles", Code: "AccessDenied", Message: "injected"}
	}
	var names []string
	for name := range m.Roles {
		names = append(names, name)
		if int32(len(names)) >= maxItems {
			break
		}
	}
	return names, nil
}

func (m *MockIAM) CallerIdentity(ctx context.Context) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetCallerIdentity")
	if m.IdentityErr != nil {
		return "", "", m.IdentityErr
	}
	if m.FailIdentity {
		return "", "", &RemoteError{Op: "sts.GetCallerIdentity", Code: "AccessDenied", Message: "injected"}
	}
	return m.Account, m.Arn, nil
}
