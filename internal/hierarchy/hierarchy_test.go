package hierarchy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelligent/cumulogenesis/internal/hierarchy"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/validator"
)

func TestResolve_BuildsNestedTreeFromValidatedOrganization(t *testing.T) {
	org := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	org.Accounts["111111111111"] = &orgmodel.Account{Name: "111111111111"}
	org.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services"}
	org.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads", ChildOrgUnits: []string{"workloads-prod"}}
	org.OrgUnits["workloads-prod"] = &orgmodel.OrgUnit{Name: "workloads-prod", Accounts: []string{"shared-services"}}

	problems := validator.Validate(org)
	require.True(t, problems.Empty(), problems.String())

	resolved := hierarchy.Resolve(org)

	require.Contains(t, resolved.Root.OrgUnits, "workloads")
	require.Contains(t, resolved.Root.OrgUnits["workloads"].OrgUnits, "workloads-prod")
	assert.Equal(t, []string{"shared-services"}, resolved.Root.OrgUnits["workloads"].OrgUnits["workloads-prod"].Accounts)
	assert.Empty(t, resolved.OrphanedAccounts)
}

func TestResolve_RootAccountSitsAtRootAndUnparentedAccountIsOrphaned(t *testing.T) {
	org := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	org.Accounts["111111111111"] = &orgmodel.Account{Name: "111111111111"}
	org.Accounts["top-level"] = &orgmodel.Account{Name: "top-level"}

	validator.Validate(org)
	resolved := hierarchy.Resolve(org)

	assert.ElementsMatch(t, []string{"111111111111"}, resolved.Root.Accounts)
	assert.Equal(t, []string{"top-level"}, resolved.OrphanedAccounts)
}

func TestResolve_OrphanedAccountIsReportedSeparately(t *testing.T) {
	org := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	org.Accounts["111111111111"] = &orgmodel.Account{Name: "111111111111"}
	org.Accounts["orphan"] = &orgmodel.Account{Name: "orphan"}

	validator.Validate(org)
	resolved := hierarchy.Resolve(org)

	assert.Equal(t, []string{"orphan"}, resolved.OrphanedAccounts)
	assert.NotContains(t, resolved.Root.Accounts, "orphan")
}

func TestResolve_TopLevelOrgUnitHasNoParentReferences(t *testing.T) {
	org := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	org.Accounts["111111111111"] = &orgmodel.Account{Name: "111111111111"}
	org.OrgUnits["top"] = &orgmodel.OrgUnit{Name: "top"}

	validator.Validate(org)
	resolved := hierarchy.Resolve(org)

	assert.Contains(t, resolved.Root.OrgUnits, "top")
}
