// Package hierarchy builds the nested orgunit/account tree used for report
// rendering. Ported from
// cumulogenesis's organization.py:_orgunits_to_hierarchy/_append_path/
// _find_orphaned_accounts.
package hierarchy

import (
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
)

// RootAccountKey and OrphanedAccountsKey name the two well-known top-level
// entries of a resolved Tree, matching spec.md §4.3's ROOT_ACCOUNT and
// ORPHANED_ACCOUNTS.
const (
	RootAccountKey      = "ROOT_ACCOUNT"
	OrphanedAccountsKey = "ORPHANED_ACCOUNTS"
)

// Tree is a recursive orgunit subtree: its direct child orgunits (by
// name) and the accounts parented directly under it.
type Tree struct {
	OrgUnits map[string]*Tree
	Accounts []string
}

func newTree() *Tree {
	return &Tree{OrgUnits: map[string]*Tree{}}
}

// Resolved is the full result of a Resolve call: the root account's
// subtree plus any accounts that could not be placed in it.
type Resolved struct {
	Root             *Tree
	OrphanedAccounts []string
}

// Resolve builds the orgunit/account tree from org's childOrgunits and
// accounts edges. Assumes org has already been validated (ParentReferences
// populated, no cycles); calling Resolve on an unvalidated model gives
// undefined results for entities with multiple parents.
func Resolve(org *orgmodel.Organization) *Resolved {
	root := newTree()

	for _, name := range org.SortedOrgUnitNames() {
		ou := org.OrgUnits[name]
		if len(ou.ParentReferences) == 0 {
			root.OrgUnits[name] = buildSubtree(org, name)
		}
	}

	for _, name := range org.SortedAccountNames() {
		account := org.Accounts[name]
		if len(account.ParentReferences) == 0 && name != org.RootAccountID && account.AccountID != org.RootAccountID {
			continue // orphan, handled below
		}
		if len(account.ParentReferences) == 0 {
			root.Accounts = append(root.Accounts, name)
		}
	}

	var orphaned []string
	for _, name := range org.SortedAccountNames() {
		account := org.Accounts[name]
		if len(account.ParentReferences) == 0 && name != org.RootAccountID && account.AccountID != org.RootAccountID {
			orphaned = append(orphaned, name)
		}
	}

	return &Resolved{Root: root, OrphanedAccounts: orphaned}
}

func buildSubtree(org *orgmodel.Organization, name string) *Tree {
	ou := org.OrgUnits[name]
	t := newTree()
	for _, childName := range orderedCopy(ou.ChildOrgUnits) {
		if _, ok := org.OrgUnits[childName]; ok {
			t.OrgUnits[childName] = buildSubtree(org, childName)
		}
	}
	for _, accountName := range orderedCopy(ou.Accounts) {
		if _, ok := org.Accounts[accountName]; ok {
			t.Accounts = append(t.Accounts, accountName)
		}
	}
	return t
}

func orderedCopy(in []string) []string {
	out := append([]string(nil), in...)
	// Insertion order from the declared/actual model is preserved rather
	// than re-sorted here: the tree's purpose is rendering, and the source
	// document's child ordering is more useful to a human reader than an
	// alphabetical one.
	return out
}
