package orgmodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelligent/cumulogenesis/internal/orgmodel"
)

func buildSample() *orgmodel.Organization {
	org := orgmodel.New("111111111111", orgmodel.SourceActual)
	org.Accounts["shared-services"] = &orgmodel.Account{
		Name:     "shared-services",
		Policies: []string{"FullAWSAccess"},
		Regions:  map[string]orgmodel.RegionConfig{"us-east-1": {Parameters: map[string]string{"key": "value"}}},
	}
	org.OrgUnits["workloads"] = &orgmodel.OrgUnit{
		Name:          "workloads",
		ChildOrgUnits: []string{"workloads-prod"},
		Accounts:      []string{"shared-services"},
		Policies:      []string{"FullAWSAccess"},
	}
	org.IDsToChildren["r-root"] = &orgmodel.ChildIDs{OrgUnitIDs: []string{"ou-1"}, AccountIDs: []string{"111111111111"}}
	return org
}

func TestDeepCopy_MutatingCopyLeavesOriginalUntouched(t *testing.T) {
	original := buildSample()
	cp := original.DeepCopy()

	cp.Accounts["shared-services"].Policies[0] = "mutated"
	cp.Accounts["shared-services"].Regions["us-east-1"].Parameters["key"] = "mutated"
	cp.OrgUnits["workloads"].ChildOrgUnits[0] = "mutated"
	cp.IDsToChildren["r-root"].OrgUnitIDs[0] = "mutated"
	cp.Accounts["new-account"] = &orgmodel.Account{Name: "new-account"}

	assert.Equal(t, "FullAWSAccess", original.Accounts["shared-services"].Policies[0])
	assert.Equal(t, "value", original.Accounts["shared-services"].Regions["us-east-1"].Parameters["key"])
	assert.Equal(t, "workloads-prod", original.OrgUnits["workloads"].ChildOrgUnits[0])
	assert.Equal(t, "ou-1", original.IDsToChildren["r-root"].OrgUnitIDs[0])
	assert.NotContains(t, original.Accounts, "new-account")
}

func TestDeepCopy_PreservesValues(t *testing.T) {
	original := buildSample()
	cp := original.DeepCopy()

	require.Contains(t, cp.Accounts, "shared-services")
	assert.Equal(t, original.Accounts["shared-services"].Policies, cp.Accounts["shared-services"].Policies)
	assert.Equal(t, original.RootAccountID, cp.RootAccountID)
	assert.Equal(t, original.Source, cp.Source)
	assert.ElementsMatch(t, original.SortedOrgUnitNames(), cp.SortedOrgUnitNames())
}
