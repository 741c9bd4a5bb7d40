package converge

import "github.com/stelligent/cumulogenesis/internal/orgmodel"

// Change is the outcome recorded for one plan entry after the driver has
// attempted it (spec.md §4.6: "same shape as the Plan but populated with
// {change: created|updated|deleted|reassociated|failed|unknown, id?,
// reason?}").
type Change string

const (
	ChangeCreated      Change = "created"
	ChangeUpdated      Change = "updated"
	ChangeDeleted      Change = "deleted"
	ChangeReassociated Change = "reassociated"
	ChangeFailed       Change = "failed"
	ChangeUnknown      Change = "unknown"
)

// OrganizationChange is the organizations-kind entry of a ChangeReport.
type OrganizationChange struct {
	Change Change
	Reason string
}

// PolicyChange is one policies-kind entry.
type PolicyChange struct {
	Name   string
	Change Change
	ID     string
	Reason string
}

// OrgUnitChange is one orgunits-kind entry.
type OrgUnitChange struct {
	Name   string
	Change Change
	ID     string
	Reason string
}

// AccountChange is one accounts-kind entry.
type AccountChange struct {
	Name   string
	Change Change
	ID     string
	Reason string
}

// AccountAssociationChange is one account_associations-kind entry.
type AccountAssociationChange struct {
	Name   string
	Parent string
	Change Change
	Reason string
}

// OrgUnitAssociationChange is one orgunit_associations-kind entry.
type OrgUnitAssociationChange struct {
	Name   string
	Parent string
	Change Change
	Reason string
}

// ChangeReport is the ConvergenceDriver's output, mirroring a Plan's shape
// (spec.md §4.6).
type ChangeReport struct {
	Organization        *OrganizationChange
	Policies            []PolicyChange
	OrgUnits            []OrgUnitChange
	Accounts            []AccountChange
	AccountAssociations []AccountAssociationChange
	OrgUnitAssociations []OrgUnitAssociationChange
	Problems            orgmodel.ProblemReport
}
