// Package orgmodel holds the in-memory Organization entity graph shared by
// every other engine component: the declared model built by the config
// codec, the actual model built by the loader, and the updated staging
// model mutated by the convergence driver are all the same Go type with a
// different Source tag.
package orgmodel

import (
	"sort"

	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
)

// FeatureSet is the capability level of an Organization.
type FeatureSet string

const (
	FeatureSetAll                 FeatureSet = "ALL"
	FeatureSetConsolidatedBilling FeatureSet = "CONSOLIDATED_BILLING"
)

// Source distinguishes a model built from the declared document from one
// discovered from the provider.
type Source string

const (
	SourceDeclared Source = "declared"
	SourceActual   Source = "actual"
)

// awsManagedPolicyNames is the set of AWS-managed policy names the
// validator and differ recognise without requiring a matching Policy
// entity. cumulogenesis's default loader only ever needed the one.
var awsManagedPolicyNames = map[string]bool{
	"FullAWSAccess": true,
}

// IsAWSManagedPolicyName reports whether name is a recognised AWS-managed
// policy, usable as a reference target without a corresponding Policy entry.
func IsAWSManagedPolicyName(name string) bool {
	return awsManagedPolicyNames[name]
}

// awsManagedPolicyIDs carries the well-known provider id for each recognised
// AWS-managed policy, so the convergence driver can attach/detach it without
// a corresponding Policy entity (which, being AWS-managed, is never created
// or loaded with an id of its own).
var awsManagedPolicyIDs = map[string]string{
	"FullAWSAccess": "p-FullAWSAccess",
}

// ManagedPolicyID returns the well-known provider id for an AWS-managed
// policy name, if recognised.
func ManagedPolicyID(name string) (string, bool) {
	id, ok := awsManagedPolicyIDs[name]
	return id, ok
}

// Provisioner carries the credentials and defaults used to build a
// ProviderClient. The engine treats it as opaque configuration except for
// the CLI's profile override.
type Provisioner struct {
	Role            string
	ProvisionerType string
	Profile         string
	AccessKey       string
	SecretKey       string
	DefaultRegion   string
}

// RegionConfig is the per-region parameter block on an Account. The codec
// checks only that an account's regions value is a mapping; it does not
// check region names or the type of a region's parameters block, and it
// never interprets the parameters themselves; that
// is the stack-template provisioner's job, which is out of scope here.
//
// Regions and Parameters are plain maps: the codec does not need to
// preserve the source document's region/parameter key order the way it
// does for policy document content, since nothing here is a free-form
// external payload being round-tripped byte-for-byte. The dump side
// (internal/config.renderAccount) sorts both before rendering so repeated
// Dump calls on the same model are byte-stable.
type RegionConfig struct {
	Parameters map[string]string
}

// Account is a member account, declared or discovered.
type Account struct {
	Name      string
	OwnerEmail string
	AccountID string
	Regions   map[string]RegionConfig
	Policies  []string
	Groups    []string

	// ParentReferences is derived by the Validator: the names of every
	// orgunit that lists this account as a child. A valid model has at
	// most one entry here (or zero, if this is the root account).
	ParentReferences []string
}

// OrgUnit is a named grouping of accounts and/or other orgunits.
type OrgUnit struct {
	Name          string
	ID            string
	ChildOrgUnits []string
	Accounts      []string
	Policies      []string

	// ParentReferences is derived by the Validator, same rules as Account.
	ParentReferences []string
}

// PolicyDocument is the body of a Policy or StackSet template: exactly one
// of Location (an external file reference) or Content (an embedded,
// order-preserving mapping) is populated on a valid model.
type PolicyDocument struct {
	Location string
	Content  *yamldoc.Mapping
}

// Policy is a service-control policy.
type Policy struct {
	Name        string
	ID          string // provider-assigned; actual-only
	Description string
	Document    PolicyDocument
	AWSManaged  bool
}

// StackTarget names an entity a StackSet applies to, along with the
// regions it should be provisioned into.
type StackTarget struct {
	Name    string
	Regions []string
}

// StackSet is validated for referential integrity only; the engine does
// not provision stacks.
type StackSet struct {
	Name     string
	Template PolicyDocument
	Accounts []StackTarget
	OrgUnits []StackTarget
	Groups   []StackTarget
}

// Organization is the root aggregate: the declared model, the actual model,
// and the driver's updated staging copy are all this type.
type Organization struct {
	RootAccountID string
	FeatureSet    FeatureSet
	Source        Source
	Exists        bool

	// Populated by the Loader on actual models only.
	RootParentID string
	OrgID        string

	RootPolicies []string
	Provisioner  Provisioner

	Accounts map[string]*Account
	OrgUnits map[string]*OrgUnit
	Policies map[string]*Policy
	Stacks   map[string]*StackSet

	// Derived indices, populated by the Loader on actual models. Never
	// serialized by the config codec.
	AccountIDsToNames map[string]string
	OrgUnitIDsToNames map[string]string
	IDsToChildren     map[string]*ChildIDs
}

// ChildIDs is the per-parent fan-out the Loader accumulates while walking
// the provider's orgunit tree: the raw provider ids of the orgunits and
// accounts directly under one parent id.
type ChildIDs struct {
	OrgUnitIDs []string
	AccountIDs []string
}

// New builds an empty Organization ready for a codec Load or a Loader run.
func New(rootAccountID string, source Source) *Organization {
	return &Organization{
		RootAccountID:     rootAccountID,
		FeatureSet:        FeatureSetAll,
		Source:            source,
		Accounts:          map[string]*Account{},
		OrgUnits:          map[string]*OrgUnit{},
		Policies:          map[string]*Policy{},
		Stacks:            map[string]*StackSet{},
		AccountIDsToNames: map[string]string{},
		OrgUnitIDsToNames: map[string]string{},
		IDsToChildren:     map[string]*ChildIDs{},
	}
}

// SortedAccountNames returns account names in deterministic (sorted) order,
// used everywhere the engine needs a stable iteration order over a map.
func (o *Organization) SortedAccountNames() []string {
	return sortedKeysA(o.Accounts)
}

// SortedOrgUnitNames returns orgunit names in deterministic order.
func (o *Organization) SortedOrgUnitNames() []string {
	return sortedKeysO(o.OrgUnits)
}

// SortedPolicyNames returns policy names in deterministic order.
func (o *Organization) SortedPolicyNames() []string {
	return sortedKeysP(o.Policies)
}

// SortedStackNames returns stack names in deterministic order.
func (o *Organization) SortedStackNames() []string {
	return sortedKeysS(o.Stacks)
}

func sortedKeysA(m map[string]*Account) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysO(m map[string]*OrgUnit) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysP(m map[string]*Policy) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysS(m map[string]*StackSet) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OrgUnitParent returns the name of the single orgunit claiming orgunit
// childName as a child, or "" if it is top-level. Assumes the model has
// already been validated (at most one parent).
func (o *Organization) OrgUnitParent(childName string) string {
	for _, name := range o.SortedOrgUnitNames() {
		ou := o.OrgUnits[name]
		for _, c := range ou.ChildOrgUnits {
			if c == childName {
				return name
			}
		}
	}
	return ""
}

// AccountParent returns the name of the single orgunit claiming accountName
// as a child, or "" if the account is unclaimed (root account, or orphaned).
func (o *Organization) AccountParent(accountName string) string {
	for _, name := range o.SortedOrgUnitNames() {
		ou := o.OrgUnits[name]
		for _, a := range ou.Accounts {
			if a == accountName {
				return name
			}
		}
	}
	return ""
}

// DeepCopy returns an independent copy of the organization, used by the
// convergence driver to build its "updated" staging model from the actual
// snapshot without aliasing the caller's maps or slices.
func (o *Organization) DeepCopy() *Organization {
	cp := &Organization{
		RootAccountID: o.RootAccountID,
		FeatureSet:    o.FeatureSet,
		Source:        o.Source,
		Exists:        o.Exists,
		RootParentID:  o.RootParentID,
		OrgID:         o.OrgID,
		RootPolicies:  append([]string(nil), o.RootPolicies...),
		Provisioner:   o.Provisioner,

		Accounts: make(map[string]*Account, len(o.Accounts)),
		OrgUnits: make(map[string]*OrgUnit, len(o.OrgUnits)),
		Policies: make(map[string]*Policy, len(o.Policies)),
		Stacks:   make(map[string]*StackSet, len(o.Stacks)),

		AccountIDsToNames: copyStringMap(o.AccountIDsToNames),
		OrgUnitIDsToNames: copyStringMap(o.OrgUnitIDsToNames),
		IDsToChildren:     make(map[string]*ChildIDs, len(o.IDsToChildren)),
	}
	for name, a := range o.Accounts {
		acopy := *a
		acopy.Policies = append([]string(nil), a.Policies...)
		acopy.Groups = append([]string(nil), a.Groups...)
		acopy.ParentReferences = append([]string(nil), a.ParentReferences...)
		acopy.Regions = make(map[string]RegionConfig, len(a.Regions))
		for rname, r := range a.Regions {
			acopy.Regions[rname] = RegionConfig{Parameters: copyStringMap(r.Parameters)}
		}
		cp.Accounts[name] = &acopy
	}
	for name, ou := range o.OrgUnits {
		oucopy := *ou
		oucopy.ChildOrgUnits = append([]string(nil), ou.ChildOrgUnits...)
		oucopy.Accounts = append([]string(nil), ou.Accounts...)
		oucopy.Policies = append([]string(nil), ou.Policies...)
		oucopy.ParentReferences = append([]string(nil), ou.ParentReferences...)
		cp.OrgUnits[name] = &oucopy
	}
	for name, p := range o.Policies {
		pcopy := *p
		cp.Policies[name] = &pcopy
	}
	for name, s := range o.Stacks {
		scopy := *s
		scopy.Accounts = append([]StackTarget(nil), s.Accounts...)
		scopy.OrgUnits = append([]StackTarget(nil), s.OrgUnits...)
		scopy.Groups = append([]StackTarget(nil), s.Groups...)
		cp.Stacks[name] = &scopy
	}
	for id, c := range o.IDsToChildren {
		ccopy := *c
		ccopy.OrgUnitIDs = append([]string(nil), c.OrgUnitIDs...)
		ccopy.AccountIDs = append([]string(nil), c.AccountIDs...)
		cp.IDsToChildren[id] = &ccopy
	}
	return cp
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
