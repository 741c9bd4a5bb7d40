package validator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/validator"
)

func baseOrg() *orgmodel.Organization {
	org := orgmodel.New("111111111111", orgmodel.SourceDeclared)
	org.Accounts["111111111111"] = &orgmodel.Account{Name: "111111111111"}
	return org
}

func TestValidate_CleanOrganizationHasNoProblems(t *testing.T) {
	org := baseOrg()
	org.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services", Policies: []string{"FullAWSAccess"}}
	org.OrgUnits["workloads"] = &orgmodel.OrgUnit{Name: "workloads", Accounts: []string{"shared-services"}, Policies: []string{"FullAWSAccess"}}

	problems := validator.Validate(org)
	assert.True(t, problems.Empty(), problems.String())
	assert.Equal(t, []string{"workloads"}, org.Accounts["shared-services"].ParentReferences)
}

func TestValidate_OrphanedAccountIsReported(t *testing.T) {
	org := baseOrg()
	org.Accounts["orphan"] = &orgmodel.Account{Name: "orphan"}

	problems := validator.Validate(org)
	require.Contains(t, problems, "accounts")
	require.Contains(t, problems["accounts"], "orphan")
}

func TestValidate_RootAccountIsNeverOrphaned(t *testing.T) {
	org := baseOrg()
	problems := validator.Validate(org)
	assert.NotContains(t, problems["accounts"], "111111111111")
}

func TestValidate_AccountWithMultipleParentsIsReported(t *testing.T) {
	org := baseOrg()
	org.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services"}
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", Accounts: []string{"shared-services"}}
	org.OrgUnits["b"] = &orgmodel.OrgUnit{Name: "b", Accounts: []string{"shared-services"}}

	problems := validator.Validate(org)
	require.Contains(t, problems["accounts"], "shared-services")
	assert.Contains(t, problems["accounts"]["shared-services"][0], "multiple orgunits")
}

func TestValidate_UnknownChildOrgUnitReferenceIsReported(t *testing.T) {
	org := baseOrg()
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", ChildOrgUnits: []string{"ghost"}}

	problems := validator.Validate(org)
	require.Contains(t, problems["orgunits"], "a")
	assert.Contains(t, problems["orgunits"]["a"][0], "unknown child orgunit")
}

func TestValidate_UnknownAccountReferenceIsReported(t *testing.T) {
	org := baseOrg()
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", Accounts: []string{"ghost"}}

	problems := validator.Validate(org)
	require.Contains(t, problems["orgunits"], "a")
	assert.Contains(t, problems["orgunits"]["a"][0], "unknown account")
}

func TestValidate_UnknownPolicyReferenceOnOrgUnitIsReported(t *testing.T) {
	org := baseOrg()
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", Policies: []string{"ghost-policy"}}

	problems := validator.Validate(org)
	require.Contains(t, problems["orgunits"], "a")
}

func TestValidate_AWSManagedPolicyReferenceIsNotAProblem(t *testing.T) {
	org := baseOrg()
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", Policies: []string{"FullAWSAccess"}}

	problems := validator.Validate(org)
	assert.NotContains(t, problems["orgunits"], "a")
}

func TestValidate_DirectOrgUnitCycleIsReported(t *testing.T) {
	org := baseOrg()
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", ChildOrgUnits: []string{"b"}}
	org.OrgUnits["b"] = &orgmodel.OrgUnit{Name: "b", ChildOrgUnits: []string{"a"}}

	problems := validator.Validate(org)
	require.Contains(t, problems, "orgunits")
	found := false
	for _, msgs := range problems["orgunits"] {
		for _, m := range msgs {
			if strings.Contains(m, "cycle") {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestValidate_SelfReferencingOrgUnitIsACycle(t *testing.T) {
	org := baseOrg()
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", ChildOrgUnits: []string{"a"}}

	problems := validator.Validate(org)
	require.Contains(t, problems, "orgunits")
}

func TestValidate_StackReferencingUnknownAccountIsReported(t *testing.T) {
	org := baseOrg()
	org.Stacks["baseline"] = &orgmodel.StackSet{
		Name:     "baseline",
		Accounts: []orgmodel.StackTarget{{Name: "ghost", Regions: []string{"us-east-1"}}},
	}

	problems := validator.Validate(org)
	require.Contains(t, problems["stacks"], "baseline")
}

func TestValidate_StackTargetWithNoRegionsIsReported(t *testing.T) {
	org := baseOrg()
	org.Accounts["shared-services"] = &orgmodel.Account{Name: "shared-services"}
	org.OrgUnits["a"] = &orgmodel.OrgUnit{Name: "a", Accounts: []string{"shared-services"}}
	org.Stacks["baseline"] = &orgmodel.StackSet{
		Name:     "baseline",
		Accounts: []orgmodel.StackTarget{{Name: "shared-services", Regions: nil}},
	}

	problems := validator.Validate(org)
	require.Contains(t, problems["stacks"], "baseline")
	assert.Contains(t, problems["stacks"]["baseline"][0], "no regions")
}

func TestRaiseIfInvalid_ReturnsInvalidOrganizationError(t *testing.T) {
	org := baseOrg()
	org.Accounts["orphan"] = &orgmodel.Account{Name: "orphan"}

	err := validator.RaiseIfInvalid(org)
	require.Error(t, err)
	var invalid *orgmodel.InvalidOrganizationError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Problems["accounts"], "orphan")
}

func TestRaiseIfInvalid_ReturnsNilForCleanOrganization(t *testing.T) {
	org := baseOrg()
	assert.NoError(t, validator.RaiseIfInvalid(org))
}
