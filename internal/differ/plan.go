// Package differ implements the Differ (spec.md §4.5): compares a declared
// Organization against an actual one and emits an ordered Plan. Ported from
// cumulogenesis's differ.py, which builds the same six action kinds over a
// Python OrderedDict; here each kind is an explicit ordered slice instead
// of a generic ordered-map type, since the kind set and its shape are fixed
// at compile time and a slice already preserves the insertion order the
// round-trip and ordering-invariant tests depend on.
package differ

import "github.com/stelligent/cumulogenesis/internal/orgmodel"

// Action is one of the verbs a Plan entry carries.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionInvite    Action = "invite"
	ActionAssociate Action = "associate"
)

// RootParent is the sentinel association target meaning "the organization
// root", used in AccountAssociation.Parent / OrgUnitAssociation.Parent when
// an entity has no declared or actual parent orgunit.
const RootParent = ""

// OrganizationAction is the Plan's single organizations-kind entry.
type OrganizationAction struct {
	Action Action
}

// PolicyAction is one policies-kind entry.
type PolicyAction struct {
	Name     string
	Action   Action
	Declared *orgmodel.Policy
	Actual   *orgmodel.Policy
}

// OrgUnitAction is one orgunits-kind entry.
type OrgUnitAction struct {
	Name     string
	Action   Action
	Declared *orgmodel.OrgUnit
	Actual   *orgmodel.OrgUnit
}

// AccountAction is one accounts-kind entry.
type AccountAction struct {
	Name     string
	Action   Action
	Declared *orgmodel.Account
	Actual   *orgmodel.Account
}

// AccountAssociation is one account_associations-kind entry: account Name
// should end up a child of orgunit Parent (RootParent for the org root).
type AccountAssociation struct {
	Name   string
	Parent string
	Reason string
}

// OrgUnitAssociation is one orgunit_associations-kind entry.
type OrgUnitAssociation struct {
	Name   string
	Parent string
}

// Plan is the Differ's output: six ordered action kinds plus any problems
// discovered while diffing (currently only "will be orphaned by the
// removal of parent orgunit X", spec.md §4.5 rule 5).
type Plan struct {
	Organization        *OrganizationAction
	Policies            []PolicyAction
	OrgUnits            []OrgUnitAction
	Accounts            []AccountAction
	AccountAssociations []AccountAssociation
	OrgUnitAssociations []OrgUnitAssociation
	Problems            orgmodel.ProblemReport
}

// Empty reports whether the plan carries no actions at all, the condition
// spec.md §8 calls an idempotent Diff ("Diff(declared, actual') = ∅").
func (p *Plan) Empty() bool {
	return p.Organization == nil &&
		len(p.Policies) == 0 &&
		len(p.OrgUnits) == 0 &&
		len(p.Accounts) == 0 &&
		len(p.AccountAssociations) == 0 &&
		len(p.OrgUnitAssociations) == 0
}
