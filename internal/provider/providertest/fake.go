// Package providertest is an in-memory fake implementing provider.Client,
// used by the loader and converge tests to exercise end-to-end
// scenarios (spec.md §8) without touching the real AWS Organizations API.
package providertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stelligent/cumulogenesis/internal/provider"
)

type fakeOU struct {
	id   string
	name string
}

type fakeAccount struct {
	id    string
	name  string
	email string
}

type fakePolicy struct {
	id          string
	name        string
	description string
	content     string
	awsManaged  bool
}

// Fake is a single-organization in-memory provider. All methods are safe
// for serial use, matching the real ProviderClient contract (spec.md §5).
type Fake struct {
	mu sync.Mutex

	exists          bool
	featureSet      string
	masterAccountID string
	orgID           string
	rootID          string
	nextID          int

	orgUnits map[string]*fakeOU
	accounts map[string]*fakeAccount
	policies map[string]*fakePolicy

	// parents maps a child id (account or orgunit) to its direct parent
	// id, which is either another orgunit id or rootID.
	parents map[string]string

	// targets maps a policy id to the set of ids (root/orgunit/account) it
	// is attached to.
	targets map[string]map[string]bool

	createStatuses map[string]provider.AccountCreateStatus
}

// New returns an empty fake whose organization does not yet exist —
// scenario 4 of spec.md §8 ("plan for new organization") starts here.
func New(masterAccountID string) *Fake {
	return &Fake{
		masterAccountID: masterAccountID,
		orgUnits:        map[string]*fakeOU{},
		accounts:        map[string]*fakeAccount{},
		policies:        map[string]*fakePolicy{},
		parents:         map[string]string{},
		targets:         map[string]map[string]bool{},
		createStatuses:  map[string]provider.AccountCreateStatus{},
	}
}

func (f *Fake) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%04d", prefix, f.nextID)
}

// Bootstrap seeds the fake as an already-existing organization with the
// given feature set and returns the root id. It adds no accounts: the
// master account id passed to New is reported by DescribeOrganization but
// is listed as a member only once a test adds it with AddAccount.
func (f *Fake) Bootstrap(featureSet string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = true
	f.featureSet = featureSet
	f.orgID = f.genID("o")
	f.rootID = f.genID("r")
	return f.rootID
}

// AddOrgUnit seeds an orgunit under parentID (rootID or another orgunit
// id) and returns its new id.
func (f *Fake) AddOrgUnit(parentID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID("ou")
	f.orgUnits[id] = &fakeOU{id: id, name: name}
	f.parents[id] = parentID
	return id
}

// AddAccount seeds an account under parentID and returns its new id.
func (f *Fake) AddAccount(parentID, name, email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID("acct")
	f.accounts[id] = &fakeAccount{id: id, name: name, email: email}
	f.parents[id] = parentID
	return id
}

// AddPolicy seeds a policy and returns its new id.
func (f *Fake) AddPolicy(name, description, content string, awsManaged bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID("p")
	f.policies[id] = &fakePolicy{id: id, name: name, description: description, content: content, awsManaged: awsManaged}
	return id
}

// AttachPolicyTarget seeds a policy attachment without going through the
// provider.Client method, for test setup.
func (f *Fake) AttachPolicyTarget(policyID, targetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.targets[policyID] == nil {
		f.targets[policyID] = map[string]bool{}
	}
	f.targets[policyID][targetID] = true
}

func (f *Fake) isOrgUnit(id string) bool { return strings.HasPrefix(id, "ou-") }
func (f *Fake) isAccount(id string) bool { return strings.HasPrefix(id, "acct-") }

func (f *Fake) DescribeOrganization(ctx context.Context) (provider.OrganizationInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return provider.OrganizationInfo{Exists: false}, nil
	}
	return provider.OrganizationInfo{
		Exists:          true,
		FeatureSet:      f.featureSet,
		MasterAccountID: f.masterAccountID,
		OrgID:           f.orgID,
	}, nil
}

func (f *Fake) ListRootParentOf(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rootID, nil
}

func (f *Fake) ListChildren(ctx context.Context, parentID string, kind provider.ChildKind) ([]provider.ChildRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for child, parent := range f.parents {
		if parent != parentID {
			continue
		}
		if kind == provider.ChildKindOrgUnit && f.isOrgUnit(child) {
			ids = append(ids, child)
		}
		if kind == provider.ChildKindAccount && f.isAccount(child) {
			ids = append(ids, child)
		}
	}
	sort.Strings(ids)
	refs := make([]provider.ChildRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, provider.ChildRef{ID: id})
	}
	return refs, nil
}

func (f *Fake) DescribeOrgUnit(ctx context.Context, id string) (provider.OrgUnitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ou, ok := f.orgUnits[id]
	if !ok {
		return provider.OrgUnitInfo{}, fmt.Errorf("%w: orgunit %s", provider.ErrNotFound, id)
	}
	return provider.OrgUnitInfo{ID: ou.id, Name: ou.name}, nil
}

func (f *Fake) ListAccounts(ctx context.Context) ([]provider.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]provider.AccountInfo, 0, len(ids))
	for _, id := range ids {
		a := f.accounts[id]
		out = append(out, provider.AccountInfo{ID: a.id, Name: a.name, Email: a.email})
	}
	return out, nil
}

func (f *Fake) ListPolicies(ctx context.Context, filter provider.PolicyFilter) ([]provider.PolicySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]provider.PolicySummary, 0, len(ids))
	for _, id := range ids {
		p := f.policies[id]
		out = append(out, provider.PolicySummary{ID: p.id, Name: p.name, Description: p.description, AWSManaged: p.awsManaged})
	}
	return out, nil
}

func (f *Fake) DescribePolicy(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[id]
	if !ok {
		return "", fmt.Errorf("%w: policy %s", provider.ErrNotFound, id)
	}
	return p.content, nil
}

func (f *Fake) ListTargetsForPolicy(ctx context.Context, id string) ([]provider.PolicyTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var targetIDs []string
	for t := range f.targets[id] {
		targetIDs = append(targetIDs, t)
	}
	sort.Strings(targetIDs)
	out := make([]provider.PolicyTarget, 0, len(targetIDs))
	for _, t := range targetIDs {
		out = append(out, provider.PolicyTarget{Type: f.targetKind(t), ID: t, Name: f.targetName(t)})
	}
	return out, nil
}

func (f *Fake) targetKind(id string) provider.TargetKind {
	switch {
	case id == f.rootID:
		return provider.TargetKindRoot
	case f.isOrgUnit(id):
		return provider.TargetKindOrgUnit
	default:
		return provider.TargetKindAccount
	}
}

func (f *Fake) targetName(id string) string {
	if ou, ok := f.orgUnits[id]; ok {
		return ou.name
	}
	if a, ok := f.accounts[id]; ok {
		return a.name
	}
	return id
}

func (f *Fake) CreateOrganization(ctx context.Context, featureSet string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = true
	f.featureSet = featureSet
	if f.orgID == "" {
		f.orgID = f.genID("o")
	}
	if f.rootID == "" {
		f.rootID = f.genID("r")
	}
	return nil
}

func (f *Fake) EnablePolicyType(ctx context.Context, rootID string) error {
	return nil
}

func (f *Fake) CreateAccount(ctx context.Context, email, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID("acct")
	f.accounts[id] = &fakeAccount{id: id, name: name, email: email}
	f.parents[id] = f.rootID
	reqID := f.genID("car")
	f.createStatuses[reqID] = provider.AccountCreateStatus{State: provider.AccountCreateSucceeded, AccountID: id}
	return reqID, nil
}

func (f *Fake) DescribeCreateAccountStatus(ctx context.Context, requestID string) (provider.AccountCreateStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.createStatuses[requestID]
	if !ok {
		return provider.AccountCreateStatus{}, fmt.Errorf("%w: create-account request %s", provider.ErrNotFound, requestID)
	}
	return status, nil
}

func (f *Fake) InviteAccount(ctx context.Context, accountID string) error {
	return provider.ErrNotImplemented
}

func (f *Fake) CreateOrgUnit(ctx context.Context, parentID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID("ou")
	f.orgUnits[id] = &fakeOU{id: id, name: name}
	f.parents[id] = parentID
	return id, nil
}

func (f *Fake) UpdateOrgUnit(ctx context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ou, ok := f.orgUnits[id]
	if !ok {
		return fmt.Errorf("%w: orgunit %s", provider.ErrNotFound, id)
	}
	ou.name = name
	return nil
}

func (f *Fake) DeleteOrgUnit(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgUnits[id]; !ok {
		return fmt.Errorf("%w: orgunit %s", provider.ErrNotFound, id)
	}
	delete(f.orgUnits, id)
	delete(f.parents, id)
	return nil
}

func (f *Fake) CreatePolicy(ctx context.Context, name, description, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID("p")
	f.policies[id] = &fakePolicy{id: id, name: name, description: description, content: content}
	return id, nil
}

func (f *Fake) UpdatePolicy(ctx context.Context, id, name, description, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[id]
	if !ok {
		return fmt.Errorf("%w: policy %s", provider.ErrNotFound, id)
	}
	p.name, p.description, p.content = name, description, content
	return nil
}

func (f *Fake) DeletePolicy(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.policies[id]; !ok {
		return fmt.Errorf("%w: policy %s", provider.ErrNotFound, id)
	}
	delete(f.policies, id)
	delete(f.targets, id)
	return nil
}

func (f *Fake) AttachPolicy(ctx context.Context, policyID, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.targets[policyID] == nil {
		f.targets[policyID] = map[string]bool{}
	}
	f.targets[policyID][targetID] = true
	return nil
}

func (f *Fake) DetachPolicy(ctx context.Context, policyID, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.targets[policyID] != nil {
		delete(f.targets[policyID], targetID)
	}
	return nil
}

func (f *Fake) ListParents(ctx context.Context, childID string) ([]provider.ParentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, ok := f.parents[childID]
	if !ok {
		parent = f.rootID
	}
	kind := provider.ParentKindOrgUnit
	if parent == f.rootID {
		kind = provider.ParentKindRoot
	}
	return []provider.ParentRef{{ID: parent, Type: kind}}, nil
}

func (f *Fake) MoveAccount(ctx context.Context, accountID, srcParentID, dstParentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[accountID]; !ok {
		return fmt.Errorf("%w: account %s", provider.ErrNotFound, accountID)
	}
	f.parents[accountID] = dstParentID
	return nil
}

// RootID exposes the fake's synthesized root parent id for test assertions.
func (f *Fake) RootID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rootID
}

var _ provider.Client = (*Fake)(nil)
