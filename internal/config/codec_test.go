package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelligent/cumulogenesis/internal/config"
	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/validator"
)

const sampleDoc = `
version: default
root: "111111111111"
featureset: ALL
accounts:
  - name: shared-services
    owner: ops@example.com
    policies: [FullAWSAccess]
policies:
  - name: deny-root-user
    description: block root user actions
    document:
      content:
        Version: "2012-10-17"
        Statement: []
orgunits:
  - name: workloads
    policies: [FullAWSAccess, deny-root-user]
    accounts: [shared-services]
    orgunits:
      - name: workloads-prod
        accounts: []
`

func mustLoad(t *testing.T, raw string) *orgmodel.Organization {
	t.Helper()
	doc, err := yamldoc.Decode([]byte(raw))
	require.NoError(t, err)
	org, err := config.Load(doc)
	require.NoError(t, err)
	return org
}

func TestLoad_BuildsDeclaredModel(t *testing.T) {
	org := mustLoad(t, sampleDoc)

	assert.Equal(t, "111111111111", org.RootAccountID)
	assert.Equal(t, orgmodel.FeatureSetAll, org.FeatureSet)
	assert.Equal(t, orgmodel.SourceDeclared, org.Source)

	require.Contains(t, org.Accounts, "shared-services")
	assert.Equal(t, "ops@example.com", org.Accounts["shared-services"].OwnerEmail)

	require.Contains(t, org.OrgUnits, "workloads")
	assert.ElementsMatch(t, []string{"workloads-prod"}, org.OrgUnits["workloads"].ChildOrgUnits)
	assert.Equal(t, "", org.OrgUnitParent("workloads"))
	assert.Equal(t, "workloads", org.OrgUnitParent("workloads-prod"))

	require.Contains(t, org.Policies, "deny-root-user")
	assert.False(t, org.Policies["deny-root-user"].AWSManaged)
}

func TestLoad_DefaultsPoliciesWhenOmitted(t *testing.T) {
	org := mustLoad(t, `
root: "222222222222"
accounts:
  - name: no-policies-declared
orgunits: []
`)
	assert.Equal(t, []string{"FullAWSAccess"}, org.Accounts["no-policies-declared"].Policies)
}

func TestLoad_RejectsMissingRequiredRoot(t *testing.T) {
	doc, err := yamldoc.Decode([]byte(`
accounts:
  - name: no-root-declared
`))
	require.NoError(t, err)
	_, err = config.Load(doc)
	require.Error(t, err)
}

func TestLoad_RejectsDuplicateAccountNames(t *testing.T) {
	doc, err := yamldoc.Decode([]byte(`
root: "444444444444"
accounts:
  - name: dup
  - name: dup
`))
	require.NoError(t, err)
	_, err = config.Load(doc)
	require.Error(t, err)
}

func TestLoad_RejectsPolicyDocumentWithBothLocationAndContent(t *testing.T) {
	doc, err := yamldoc.Decode([]byte(`
root: "555555555555"
policies:
  - name: bad
    document:
      location: s3://bucket/key
      content:
        Version: "2012-10-17"
`))
	require.NoError(t, err)
	_, err = config.Load(doc)
	require.Error(t, err)
}

func TestDump_RoundTripsThroughValidate(t *testing.T) {
	org := mustLoad(t, sampleDoc)
	doc, err := config.Dump(org, "", validator.Validate)
	require.NoError(t, err)

	reloaded, err := config.Load(doc)
	require.NoError(t, err)

	assert.Equal(t, org.RootAccountID, reloaded.RootAccountID)
	assert.Equal(t, org.SortedAccountNames(), reloaded.SortedAccountNames())
	assert.Equal(t, org.SortedOrgUnitNames(), reloaded.SortedOrgUnitNames())
	assert.Equal(t, org.OrgUnits["workloads"].ChildOrgUnits, reloaded.OrgUnits["workloads"].ChildOrgUnits)
}

func TestDump_RegionsAndParametersAreByteStableAcrossRepeatedDumps(t *testing.T) {
	org := mustLoad(t, `
root: "777777777777"
accounts:
  - name: multi-region
    regions:
      us-west-2:
        parameters:
          zed: last
          alpha: first
          mid: middle
      ap-southeast-1:
        parameters:
          beta: two
          gamma: three
      eu-central-1:
        parameters: {}
orgunits:
  - name: regional
    accounts: [multi-region]
`)

	first, err := config.Dump(org, "", validator.Validate)
	require.NoError(t, err)
	firstBytes, err := first.Encode()
	require.NoError(t, err)

	second, err := config.Dump(org, "", validator.Validate)
	require.NoError(t, err)
	secondBytes, err := second.Encode()
	require.NoError(t, err)

	assert.Equal(t, string(firstBytes), string(secondBytes))

	reloaded, err := config.Load(first)
	require.NoError(t, err)
	redumped, err := config.Dump(reloaded, "", validator.Validate)
	require.NoError(t, err)
	redumpedBytes, err := redumped.Encode()
	require.NoError(t, err)

	assert.Equal(t, string(firstBytes), string(redumpedBytes))
}

func TestDump_RejectsInvalidOrganization(t *testing.T) {
	org := orgmodel.New("666666666666", orgmodel.SourceDeclared)
	org.OrgUnits["cycle-a"] = &orgmodel.OrgUnit{Name: "cycle-a", ChildOrgUnits: []string{"cycle-b"}}
	org.OrgUnits["cycle-b"] = &orgmodel.OrgUnit{Name: "cycle-b", ChildOrgUnits: []string{"cycle-a"}}

	_, err := config.Dump(org, "", validator.Validate)
	require.Error(t, err)
	var invalid *orgmodel.InvalidOrganizationError
	require.ErrorAs(t, err, &invalid)
}
