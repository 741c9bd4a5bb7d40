package converge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/converge"
	"github.com/stelligent/cumulogenesis/internal/differ"
	"github.com/stelligent/cumulogenesis/internal/loader"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/provider/providertest"
)

func policyDoc(t *testing.T) *yamldoc.Mapping {
	t.Helper()
	doc, err := yamldoc.Decode([]byte(`Version: "2012-10-17"
Statement: []
`))
	require.NoError(t, err)
	return doc
}

func loadActual(t *testing.T, fake *providertest.Fake, rootAccountID string) *orgmodel.Organization {
	t.Helper()
	actual := orgmodel.New(rootAccountID, orgmodel.SourceActual)
	require.NoError(t, loader.New(fake).Load(context.Background(), actual))
	return actual
}

func TestConverge_CreatesNewOrganizationEndToEnd(t *testing.T) {
	fake := providertest.New("111111111111")

	declared := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	declared.Policies["deny-root-user"] = &orgmodel.Policy{Name: "deny-root-user", Document: orgmodel.PolicyDocument{Content: policyDoc(t)}}
	declared.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads", Accounts: []string{"shared-services"}, Policies: []string{"deny-root-user"}}
	declared.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services", OwnerEmail: "ops@example.com"}

	actual := loadActual(t, fake, "111111111111")
	assert.False(t, actual.Exists)

	plan := differ.Diff(declared, actual)
	require.NotNil(t, plan.Organization)
	assert.Equal(t, differ.ActionCreate, plan.Organization.Action)

	report, err := converge.New(fake).Converge(context.Background(), plan, declared, actual)
	require.NoError(t, err)

	require.NotNil(t, report.Organization)
	assert.Equal(t, converge.ChangeCreated, report.Organization.Change)

	require.Len(t, report.Policies, 1)
	assert.Equal(t, converge.ChangeCreated, report.Policies[0].Change)

	require.Len(t, report.OrgUnits, 1)
	assert.Equal(t, "workloads", report.OrgUnits[0].Name)
	assert.Equal(t, converge.ChangeCreated, report.OrgUnits[0].Change)

	require.Len(t, report.Accounts, 1)
	assert.Equal(t, "shared-services", report.Accounts[0].Name)
	assert.Equal(t, converge.ChangeCreated, report.Accounts[0].Change)

	require.Len(t, report.AccountAssociations, 1)
	assert.Equal(t, "workloads", report.AccountAssociations[0].Parent)

	// a re-load against the now-converged fake should produce an empty plan
	reloaded := loadActual(t, fake, "111111111111")
	again := differ.Diff(declared, reloaded)
	assert.True(t, again.Empty(), "%+v", again)
}

func TestConverge_UpdatesPolicyAndReconcilesRootPolicies(t *testing.T) {
	fake := providertest.New("111111111111")
	root := fake.Bootstrap("ALL")
	policyID := fake.AddPolicy("baseline", "old description", `Version: "2012-10-17"
Statement: []
`, false)

	declared := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	declared.Policies["baseline"] = &orgmodel.Policy{Name: "baseline", Description: "new description", Document: orgmodel.PolicyDocument{Content: policyDoc(t)}}
	declared.RootPolicies = []string{"baseline"}

	actual := loadActual(t, fake, "111111111111")
	require.True(t, actual.Exists)

	plan := differ.Diff(declared, actual)
	require.Len(t, plan.Policies, 1)
	assert.Equal(t, differ.ActionUpdate, plan.Policies[0].Action)

	report, err := converge.New(fake).Converge(context.Background(), plan, declared, actual)
	require.NoError(t, err)

	require.Len(t, report.Policies, 1)
	assert.Equal(t, converge.ChangeUpdated, report.Policies[0].Change)

	targets, err := fake.ListTargetsForPolicy(context.Background(), policyID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, root, targets[0].ID)
}

func TestConverge_MovesAccountBetweenSiblingOrgUnits(t *testing.T) {
	fake := providertest.New("111111111111")
	root := fake.Bootstrap("ALL")
	ouA := fake.AddOrgUnit(root, "a")
	fake.AddOrgUnit(root, "b")
	fake.AddAccount(ouA, "shared-services", "ops@example.com")

	declared := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	declared.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a"}
	declared.OrgUnits["b"] = &orgmodel.OrgUnit{Name: "b", Accounts: []string{"shared-services"}}
	declared.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services"}

	actual := loadActual(t, fake, "111111111111")
	plan := differ.Diff(declared, actual)
	require.Empty(t, plan.OrgUnitAssociations)
	require.Len(t, plan.AccountAssociations, 1)
	assert.Equal(t, "b", plan.AccountAssociations[0].Parent)

	report, err := converge.New(fake).Converge(context.Background(), plan, declared, actual)
	require.NoError(t, err)
	require.Len(t, report.AccountAssociations, 1)
	assert.Equal(t, converge.ChangeReassociated, report.AccountAssociations[0].Change)

	reloaded := loadActual(t, fake, "111111111111")
	assert.Equal(t, []string{"shared-services"}, reloaded.OrgUnits["b"].Accounts)
	assert.Empty(t, reloaded.OrgUnits["a"].Accounts)
}

func TestConverge_RebuildsHierarchyWhenOrgUnitParentChanges(t *testing.T) {
	fake := providertest.New("111111111111")
	root := fake.Bootstrap("ALL")
	a := fake.AddOrgUnit(root, "a")
	fake.AddOrgUnit(a, "workloads")

	declared := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	declared.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a"}
	declared.OrgUnits["b"] = &orgmodel.OrgUnit{Name: "b", ChildOrgUnits: []string{"workloads"}}
	declared.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads"}

	actual := loadActual(t, fake, "111111111111")
	plan := differ.Diff(declared, actual)
	require.Len(t, plan.OrgUnitAssociations, 1)

	report, err := converge.New(fake).Converge(context.Background(), plan, declared, actual)
	require.NoError(t, err)

	reloaded := loadActual(t, fake, "111111111111")
	require.Contains(t, reloaded.OrgUnits, "workloads")
	assert.Equal(t, "b", reloaded.OrgUnitParent("workloads"))

	again := differ.Diff(declared, reloaded)
	assert.Empty(t, again.OrgUnitAssociations)
	assert.True(t, report.Problems.Empty(), report.Problems.String())
}

func TestConverge_DeletesOrphanedPolicyAndOrgUnit(t *testing.T) {
	fake := providertest.New("111111111111")
	root := fake.Bootstrap("ALL")
	ou := fake.AddOrgUnit(root, "decommissioned")
	policyID := fake.AddPolicy("unused", "", `Version: "2012-10-17"
`, false)
	fake.AttachPolicyTarget(policyID, ou)

	declared := orgmodel.New("111111111111", orgmodel.SourceDeclared)

	actual := loadActual(t, fake, "111111111111")
	plan := differ.Diff(declared, actual)
	require.Len(t, plan.OrgUnits, 1)
	assert.Equal(t, differ.ActionDelete, plan.OrgUnits[0].Action)
	require.Len(t, plan.Policies, 1)
	assert.Equal(t, differ.ActionDelete, plan.Policies[0].Action)

	report, err := converge.New(fake).Converge(context.Background(), plan, declared, actual)
	require.NoError(t, err)
	require.Len(t, report.OrgUnits, 1)
	assert.Equal(t, converge.ChangeDeleted, report.OrgUnits[0].Change)
	require.Len(t, report.Policies, 1)
	assert.Equal(t, converge.ChangeDeleted, report.Policies[0].Change)
}
