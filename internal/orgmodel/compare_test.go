package orgmodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
)

func TestEqualAccounts_IgnoresPolicyOrder(t *testing.T) {
	a := &orgmodel.Account{Name: "shared-services", Policies: []string{"a", "b"}}
	b := &orgmodel.Account{Name: "shared-services", Policies: []string{"b", "a"}}
	assert.True(t, orgmodel.EqualAccounts(a, b))
}

func TestEqualAccounts_IgnoresOwnerAndAccountID(t *testing.T) {
	a := &orgmodel.Account{Name: "shared-services", AccountID: "111111111111", OwnerEmail: "a@example.com"}
	b := &orgmodel.Account{Name: "shared-services", AccountID: "222222222222", OwnerEmail: "b@example.com"}
	assert.True(t, orgmodel.EqualAccounts(a, b))
}

func TestEqualAccounts_DifferByPolicySet(t *testing.T) {
	a := &orgmodel.Account{Name: "shared-services", Policies: []string{"a"}}
	b := &orgmodel.Account{Name: "shared-services", Policies: []string{"a", "b"}}
	assert.False(t, orgmodel.EqualAccounts(a, b))
}

func TestEqualOrgUnits_IgnoresPolicyOrderAndID(t *testing.T) {
	a := &orgmodel.OrgUnit{Name: "workloads", ID: "ou-1", Policies: []string{"x", "y"}}
	b := &orgmodel.OrgUnit{Name: "workloads", ID: "ou-2", Policies: []string{"y", "x"}}
	assert.True(t, orgmodel.EqualOrgUnits(a, b))
}

func TestEqualPolicies_ContentOrderInsensitive(t *testing.T) {
	docA, err := yamldoc.Decode([]byte("Version: \"2012-10-17\"\nStatement: []\n"))
	assert := assert.New(t)
	assert.NoError(err)
	docB, err := yamldoc.Decode([]byte("Statement: []\nVersion: \"2012-10-17\"\n"))
	assert.NoError(err)

	a := &orgmodel.Policy{Name: "deny-root-user", Description: "d", Document: orgmodel.PolicyDocument{Content: docA}}
	b := &orgmodel.Policy{Name: "deny-root-user", Description: "d", Document: orgmodel.PolicyDocument{Content: docB}}
	assert.True(orgmodel.EqualPolicies(a, b))
}

func TestEqualPolicies_DifferByDescription(t *testing.T) {
	doc, err := yamldoc.Decode([]byte("Version: \"2012-10-17\"\n"))
	assert := assert.New(t)
	assert.NoError(err)

	a := &orgmodel.Policy{Name: "p", Description: "one", Document: orgmodel.PolicyDocument{Content: doc}}
	b := &orgmodel.Policy{Name: "p", Description: "two", Document: orgmodel.PolicyDocument{Content: doc}}
	assert.False(orgmodel.EqualPolicies(a, b))
}

func TestEqualPolicies_DifferByLocation(t *testing.T) {
	a := &orgmodel.Policy{Name: "p", Document: orgmodel.PolicyDocument{Location: "s3://bucket/a"}}
	b := &orgmodel.Policy{Name: "p", Document: orgmodel.PolicyDocument{Location: "s3://bucket/b"}}
	assert.False(t, orgmodel.EqualPolicies(a, b))
}
