package orgmodel

import (
	"sort"

	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
)

// ComparableAccount is the subset of Account attributes the differ
// compares when deciding whether an account needs an update (spec.md
// §4.5 "Comparable attribute sets"). Extra fields (owner email, regions,
// groups, account id) are ignored.
type ComparableAccount struct {
	Name     string
	Policies []string
}

// Comparable renders the account's comparable attribute set with its
// unordered collections sorted, so two accounts with the same policy set
// in a different order compare equal.
func (a *Account) Comparable() ComparableAccount {
	policies := append([]string(nil), a.Policies...)
	sort.Strings(policies)
	return ComparableAccount{Name: a.Name, Policies: policies}
}

// ComparableOrgUnit is the orgunit analogue of ComparableAccount.
type ComparableOrgUnit struct {
	Name     string
	Policies []string
}

// Comparable renders the orgunit's comparable attribute set.
func (o *OrgUnit) Comparable() ComparableOrgUnit {
	policies := append([]string(nil), o.Policies...)
	sort.Strings(policies)
	return ComparableOrgUnit{Name: o.Name, Policies: policies}
}

// ComparablePolicy is the policy analogue, including the document since a
// policy's content is its whole reason to exist.
type ComparablePolicy struct {
	Name        string
	Description string
	Document    PolicyDocument
}

// Comparable renders the policy's comparable attribute set.
func (p *Policy) Comparable() ComparablePolicy {
	return ComparablePolicy{Name: p.Name, Description: p.Description, Document: p.Document}
}

// EqualAccounts reports whether two accounts' comparable attributes match.
func EqualAccounts(a, b *Account) bool {
	ca, cb := a.Comparable(), b.Comparable()
	return ca.Name == cb.Name && equalStringSets(ca.Policies, cb.Policies)
}

// EqualOrgUnits reports whether two orgunits' comparable attributes match.
func EqualOrgUnits(a, b *OrgUnit) bool {
	ca, cb := a.Comparable(), b.Comparable()
	return ca.Name == cb.Name && equalStringSets(ca.Policies, cb.Policies)
}

// EqualPolicies reports whether two policies' comparable attributes match,
// including an order-insensitive comparison of embedded document content.
func EqualPolicies(a, b *Policy) bool {
	ca, cb := a.Comparable(), b.Comparable()
	if ca.Name != cb.Name || ca.Description != cb.Description {
		return false
	}
	if ca.Document.Location != cb.Document.Location {
		return false
	}
	return yamldoc.Equal(ca.Document.Content, cb.Document.Content)
}

// equalStringSets compares two already-sorted string slices for equality
// as sets (the slices passed in here are always pre-sorted by Comparable).
func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
