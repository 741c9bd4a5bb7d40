package loader_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelligent/cumulogenesis/internal/loader"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/provider"
	"github.com/stelligent/cumulogenesis/internal/provider/providertest"
)

func TestLoad_NonExistentOrganizationLeavesActualEmpty(t *testing.T) {
	fake := providertest.New("111111111111")
	actual := orgmodel.New("111111111111", orgmodel.SourceActual)

	err := loader.New(fake).Load(context.Background(), actual)
	require.NoError(t, err)
	assert.False(t, actual.Exists)
}

func TestLoad_MismatchedMasterAccountIsRejected(t *testing.T) {
	fake := providertest.New("999999999999")
	fake.Bootstrap("ALL")
	actual := orgmodel.New("111111111111", orgmodel.SourceActual)

	err := loader.New(fake).Load(context.Background(), actual)
	require.ErrorIs(t, err, orgmodel.ErrOrganizationMemberAccount)
}

func TestLoad_PopulatesAccountsOrgUnitsAndPolicies(t *testing.T) {
	fake := providertest.New("111111111111")
	root := fake.Bootstrap("ALL")

	fake.AddAccount(root, "111111111111", "root@example.com")
	ouID := fake.AddOrgUnit(root, "workloads")
	acctID := fake.AddAccount(ouID, "shared-services", "ops@example.com")

	policyID := fake.AddPolicy("deny-root-user", "block root user actions", `{"Version":"2012-10-17","Statement":[]}`, false)
	fake.AttachPolicyTarget(policyID, ouID)

	actual := orgmodel.New("111111111111", orgmodel.SourceActual)
	err := loader.New(fake).Load(context.Background(), actual)
	require.NoError(t, err)

	assert.True(t, actual.Exists)
	assert.Equal(t, orgmodel.FeatureSetAll, actual.FeatureSet)
	assert.Equal(t, root, actual.RootParentID)

	require.Contains(t, actual.Accounts, "shared-services")
	assert.Equal(t, acctID, actual.Accounts["shared-services"].AccountID)
	assert.Equal(t, "ops@example.com", actual.Accounts["shared-services"].OwnerEmail)

	require.Contains(t, actual.OrgUnits, "workloads")
	assert.Equal(t, []string{"shared-services"}, actual.OrgUnits["workloads"].Accounts)
	assert.Equal(t, []string{"deny-root-user"}, actual.OrgUnits["workloads"].Policies)

	require.Contains(t, actual.Policies, "deny-root-user")
	assert.Equal(t, policyID, actual.Policies["deny-root-user"].ID)
}

func TestLoad_NestedOrgUnitsAreWalkedBreadthFirst(t *testing.T) {
	fake := providertest.New("111111111111")
	root := fake.Bootstrap("ALL")
	parent := fake.AddOrgUnit(root, "workloads")
	child := fake.AddOrgUnit(parent, "workloads-prod")
	fake.AddAccount(child, "prod-app", "prod@example.com")

	actual := orgmodel.New("111111111111", orgmodel.SourceActual)
	err := loader.New(fake).Load(context.Background(), actual)
	require.NoError(t, err)

	require.Contains(t, actual.OrgUnits, "workloads-prod")
	assert.Equal(t, []string{"workloads-prod"}, actual.OrgUnits["workloads"].ChildOrgUnits)
	assert.Equal(t, []string{"prod-app"}, actual.OrgUnits["workloads-prod"].Accounts)
}

func TestLoad_RootPolicyAttachmentIsRecorded(t *testing.T) {
	fake := providertest.New("111111111111")
	root := fake.Bootstrap("ALL")
	policyID := fake.AddPolicy("baseline", "", `{"Version":"2012-10-17"}`, false)
	fake.AttachPolicyTarget(policyID, root)

	actual := orgmodel.New("111111111111", orgmodel.SourceActual)
	err := loader.New(fake).Load(context.Background(), actual)
	require.NoError(t, err)

	assert.Equal(t, []string{"baseline"}, actual.RootPolicies)
}

func TestLoad_DescribeOrganizationErrorIsPropagated(t *testing.T) {
	actual := orgmodel.New("111111111111", orgmodel.SourceActual)
	client := &erroringClient{Fake: providertest.New("111111111111")}
	err := loader.New(client).Load(context.Background(), actual)
	require.Error(t, err)
}

type erroringClient struct {
	*providertest.Fake
}

func (*erroringClient) DescribeOrganization(ctx context.Context) (provider.OrganizationInfo, error) {
	return provider.OrganizationInfo{}, assert.AnError
}
