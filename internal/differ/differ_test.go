package differ_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelligent/cumulogenesis/internal/differ"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
)

func newOrg(source orgmodel.Source) *orgmodel.Organization {
	return orgmodel.New("111111111111", source)
}

// Scenario 1: declared and actual identical -> empty plan.
func TestDiff_ValidRoundTripProducesEmptyPlan(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)
	declared.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services", Policies: []string{"FullAWSAccess"}}
	declared.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads", Accounts: []string{"shared-services"}}

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true
	actual.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services", AccountID: "222222222222", Policies: []string{"FullAWSAccess"}}
	actual.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads", ID: "ou-1", Accounts: []string{"shared-services"}}

	plan := differ.Diff(declared, actual)
	assert.True(t, plan.Empty(), "%+v", plan)
}

// Scenario 2: declared account not referenced by any orgunit is orphaned;
// the differ itself does not reject it (the validator does), but it must
// not be placed under any parent.
func TestDiff_OrphanedDeclaredAccountGetsNoAssociation(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)
	declared.Accounts["orphan"] = &orgmodel.Account{Name: "orphan"}

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true

	plan := differ.Diff(declared, actual)
	require.Len(t, plan.Accounts, 1)
	assert.Equal(t, differ.ActionCreate, plan.Accounts[0].Action)
	assert.Empty(t, plan.AccountAssociations)
}

// Scenario 3: an account declared under two different orgunits — the
// differ only sees AccountParent's single-match result (validator catches
// the real problem); this just documents that the differ does not panic
// and produces a deterministic single placement.
func TestDiff_AccountWithAmbiguousDeclaredParentUsesFirstMatch(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)
	declared.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services"}
	declared.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", Accounts: []string{"shared-services"}}
	declared.OrgUnits["b"] = &orgmodel.OrgUnit{Name: "b", Accounts: []string{"shared-services"}}

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true

	plan := differ.Diff(declared, actual)
	require.Len(t, plan.AccountAssociations, 1)
	assert.Equal(t, "a", plan.AccountAssociations[0].Parent)
}

// Scenario 4: plan for a brand-new organization creates everything.
func TestDiff_PlanForNewOrganizationCreatesEverything(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)
	declared.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services"}
	declared.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads", Accounts: []string{"shared-services"}}
	declared.Policies["deny-root-user"] = &orgmodel.Policy{Name: "deny-root-user"}

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = false

	plan := differ.Diff(declared, actual)
	require.NotNil(t, plan.Organization)
	assert.Equal(t, differ.ActionCreate, plan.Organization.Action)
	require.Len(t, plan.OrgUnits, 1)
	assert.Equal(t, differ.ActionCreate, plan.OrgUnits[0].Action)
	require.Len(t, plan.Accounts, 1)
	assert.Equal(t, differ.ActionCreate, plan.Accounts[0].Action)
	require.Len(t, plan.Policies, 1)
	assert.Equal(t, differ.ActionCreate, plan.Policies[0].Action)
	require.Len(t, plan.AccountAssociations, 1)
	assert.Equal(t, "workloads", plan.AccountAssociations[0].Parent)
}

// Scenario 5: hierarchy restructure — an orgunit's parent changes.
func TestDiff_HierarchyRestructureMovesOrgUnit(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)
	declared.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a"}
	declared.OrgUnits["b"] = &orgmodel.OrgUnit{Name: "b", ChildOrgUnits: []string{"workloads"}}
	declared.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads"}

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true
	actual.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", ID: "ou-a", ChildOrgUnits: []string{"workloads"}}
	actual.OrgUnits["b"] = &orgmodel.OrgUnit{Name: "b", ID: "ou-b"}
	actual.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads", ID: "ou-w"}

	plan := differ.Diff(declared, actual)
	require.Len(t, plan.OrgUnitAssociations, 1)
	assert.Equal(t, "workloads", plan.OrgUnitAssociations[0].Name)
	assert.Equal(t, "b", plan.OrgUnitAssociations[0].Parent)
}

// Scenario 6: orgunit deletion orphans an account that the declared model
// does not reclaim — the account must be re-associated at root and the
// plan must carry the problem.
func TestDiff_AccountOrphanedByOrgUnitDeletionIsMovedToRootWithProblem(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true
	actual.OrgUnits["decommissioned"] = &orgmodel.OrgUnit{Name: "decommissioned", ID: "ou-1", Accounts: []string{"leftover"}}
	actual.Accounts["leftover"] = &orgmodel.Account{Name: "leftover", AccountID: "333333333333"}

	plan := differ.Diff(declared, actual)

	require.Len(t, plan.OrgUnits, 1)
	assert.Equal(t, differ.ActionDelete, plan.OrgUnits[0].Action)

	require.Len(t, plan.AccountAssociations, 1)
	assert.Equal(t, "leftover", plan.AccountAssociations[0].Name)
	assert.Equal(t, differ.RootParent, plan.AccountAssociations[0].Parent)

	require.Contains(t, plan.Problems, "accounts")
	require.Contains(t, plan.Problems["accounts"], "leftover")
}

func TestDiff_OrgUnitDeletionsOrderedBottomUp(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true
	actual.OrgUnits["parent"] = &orgmodel.OrgUnit{Name: "parent", ID: "ou-p", ChildOrgUnits: []string{"child"}}
	actual.OrgUnits["child"] = &orgmodel.OrgUnit{Name: "child", ID: "ou-c"}

	plan := differ.Diff(declared, actual)
	require.Len(t, plan.OrgUnits, 2)
	assert.Equal(t, "child", plan.OrgUnits[0].Name)
	assert.Equal(t, "parent", plan.OrgUnits[1].Name)
}

func TestDiff_PolicyDescriptionChangeProducesUpdate(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)
	declared.Policies["p"] = &orgmodel.Policy{Name: "p", Description: "new description"}

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true
	actual.Policies["p"] = &orgmodel.Policy{Name: "p", ID: "p-1", Description: "old description"}

	plan := differ.Diff(declared, actual)
	require.Len(t, plan.Policies, 1)
	assert.Equal(t, differ.ActionUpdate, plan.Policies[0].Action)
}

func TestDiff_OrganizationUpdateWhenFeatureSetDiffers(t *testing.T) {
	declared := newOrg(orgmodel.SourceDeclared)
	declared.FeatureSet = orgmodel.FeatureSetAll

	actual := newOrg(orgmodel.SourceActual)
	actual.Exists = true
	actual.FeatureSet = orgmodel.FeatureSetConsolidatedBilling

	plan := differ.Diff(declared, actual)
	require.NotNil(t, plan.Organization)
	assert.Equal(t, differ.ActionUpdate, plan.Organization.Action)
}
