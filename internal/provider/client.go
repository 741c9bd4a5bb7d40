// Package provider defines the ProviderClient capability the reconciliation
// engine consumes (spec.md §6): an abstraction over the upstream
// organization API that the Loader and ConvergenceDriver depend on through
// this interface alone. Concrete implementations (internal/provider/awsorg
// for production, internal/provider/providertest for tests) own retries,
// pagination, and credential handling — none of that lives in the engine.
package provider

import "context"

// ChildKind distinguishes the two kinds of entity a parent id can have as
// children when listing.
type ChildKind string

const (
	ChildKindOrgUnit ChildKind = "ORGANIZATIONAL_UNIT"
	ChildKindAccount ChildKind = "ACCOUNT"
)

// ParentKind distinguishes the kinds of parent an account or orgunit can
// have when listing parents.
type ParentKind string

const (
	ParentKindRoot    ParentKind = "ROOT"
	ParentKindOrgUnit ParentKind = "ORGANIZATIONAL_UNIT"
)

// OrganizationInfo is the result of DescribeOrganization.
type OrganizationInfo struct {
	Exists          bool
	FeatureSet      string
	MasterAccountID string
	OrgID           string
}

// ChildRef is one entry from ListChildren: just the provider-assigned id,
// the kind is implied by the ChildKind argument used to list it.
type ChildRef struct {
	ID string
}

// OrgUnitInfo is the result of DescribeOrgUnit.
type OrgUnitInfo struct {
	ID   string
	Name string
}

// AccountInfo is one entry from ListAccounts.
type AccountInfo struct {
	ID    string
	Name  string
	Email string
}

// PolicyFilter selects which policy type to list; the engine only ever
// asks for service-control policies, but the type keeps the interface
// honest about what it's filtering on.
type PolicyFilter string

const (
	PolicyFilterSCP PolicyFilter = "SERVICE_CONTROL_POLICY"
)

// PolicySummary is one entry from ListPolicies.
type PolicySummary struct {
	ID          string
	Name        string
	Description string
	AWSManaged  bool
}

// TargetKind distinguishes the three things a policy or attachment can
// target, matching spec.md §6's ROOT/ACCOUNT/ORGANIZATIONAL_UNIT triplet.
type TargetKind string

const (
	TargetKindRoot    TargetKind = "ROOT"
	TargetKindAccount TargetKind = "ACCOUNT"
	TargetKindOrgUnit TargetKind = "ORGANIZATIONAL_UNIT"
)

// PolicyTarget is one entry from ListTargetsForPolicy.
type PolicyTarget struct {
	Type TargetKind
	ID   string
	Name string
}

// AccountCreateState is the terminal/non-terminal state of an in-flight
// CreateAccount request.
type AccountCreateState string

const (
	AccountCreateInProgress AccountCreateState = "IN_PROGRESS"
	AccountCreateSucceeded  AccountCreateState = "SUCCEEDED"
	AccountCreateFailed     AccountCreateState = "FAILED"
)

// AccountCreateStatus is the result of DescribeCreateAccountStatus.
type AccountCreateStatus struct {
	State         AccountCreateState
	AccountID     string
	FailureReason string
}

// ParentRef is one entry from ListParents.
type ParentRef struct {
	ID   string
	Type ParentKind
}

// Client is the ProviderClient capability (spec.md §6). Every method takes
// a context so the engine's single cancellation token (§5) can interrupt
// an in-flight call or short-circuit the next one.
type Client interface {
	DescribeOrganization(ctx context.Context) (OrganizationInfo, error)
	ListRootParentOf(ctx context.Context, accountID string) (string, error)
	ListChildren(ctx context.Context, parentID string, kind ChildKind) ([]ChildRef, error)
	DescribeOrgUnit(ctx context.Context, id string) (OrgUnitInfo, error)
	ListAccounts(ctx context.Context) ([]AccountInfo, error)
	ListPolicies(ctx context.Context, filter PolicyFilter) ([]PolicySummary, error)
	DescribePolicy(ctx context.Context, id string) (string, error)
	ListTargetsForPolicy(ctx context.Context, id string) ([]PolicyTarget, error)

	CreateOrganization(ctx context.Context, featureSet string) error
	EnablePolicyType(ctx context.Context, rootID string) error

	CreateAccount(ctx context.Context, email, name string) (string, error)
	DescribeCreateAccountStatus(ctx context.Context, requestID string) (AccountCreateStatus, error)
	InviteAccount(ctx context.Context, accountID string) error

	CreateOrgUnit(ctx context.Context, parentID, name string) (string, error)
	UpdateOrgUnit(ctx context.Context, id, name string) error
	DeleteOrgUnit(ctx context.Context, id string) error

	CreatePolicy(ctx context.Context, name, description, content string) (string, error)
	UpdatePolicy(ctx context.Context, id, name, description, content string) error
	DeletePolicy(ctx context.Context, id string) error

	AttachPolicy(ctx context.Context, policyID, targetID string) error
	DetachPolicy(ctx context.Context, policyID, targetID string) error

	ListParents(ctx context.Context, childID string) ([]ParentRef, error)
	MoveAccount(ctx context.Context, accountID, srcParentID, dstParentID string) error
}
