package converge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stelligent/cumulogenesis/internal/differ"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
)

// rebuildOrgunits handles a hierarchy restructure (spec.md §4.6): the
// provider has no move/rename primitive for orgunits themselves, so any
// change to an orgunit's parent is realized by tearing down and
// recreating the whole orgunit tree rather than patching it in place.
// Steps, matching the spec:
//
//	a. stage every account currently under an orgunit back at the root
//	b. delete every existing orgunit, children before parents
//	c. recreate the declared orgunit tree, parents before children
//	d. fold the ids handed back by creation into the updated model
//	e. attach each orgunit's declared policies, then move accounts into
//	   their declared parent
func (d *Driver) rebuildOrgunits(ctx context.Context, log *slog.Logger, declared, updated *orgmodel.Organization, report *ChangeReport) error {
	// a. stage accounts at root.
	for _, name := range updated.SortedOrgUnitNames() {
		ou := updated.OrgUnits[name]
		for _, accountName := range append([]string(nil), ou.Accounts...) {
			account, ok := updated.Accounts[accountName]
			if !ok {
				continue
			}
			if err := d.Client.MoveAccount(ctx, account.AccountID, ou.ID, updated.RootParentID); err != nil {
				return fmt.Errorf("converge: rebuild: stage account %s at root: %w", accountName, err)
			}
			report.AccountAssociations = append(report.AccountAssociations, AccountAssociationChange{
				Name: accountName, Parent: differ.RootParent, Change: ChangeReassociated, Reason: "staged at root during orgunit rebuild",
			})
		}
		ou.Accounts = nil
	}

	// b. delete bottom-up.
	bottomUp := rebuildOrder(updated)
	for i, j := 0, len(bottomUp)-1; i < j; i, j = i+1, j-1 {
		bottomUp[i], bottomUp[j] = bottomUp[j], bottomUp[i]
	}
	for _, name := range bottomUp {
		ou := updated.OrgUnits[name]
		if err := d.Client.DeleteOrgUnit(ctx, ou.ID); err != nil {
			return fmt.Errorf("converge: rebuild: delete orgunit %s: %w", name, err)
		}
		report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: name, Change: ChangeDeleted, ID: ou.ID})
		delete(updated.OrgUnits, name)
		delete(updated.OrgUnitIDsToNames, ou.ID)
		log.Info("orgunit deleted for rebuild", "name", name)
	}

	// c. recreate top-down, tracking new ids as we go (this is also step
	// d: the ids are already known from CreateOrgUnit's own response, so
	// there is nothing further to reload).
	newIDs := map[string]string{}
	for _, name := range rebuildOrder(declared) {
		declaredOU := declared.OrgUnits[name]
		parentName := declared.OrgUnitParent(name)
		var parentID string
		if parentName == differ.RootParent {
			parentID = updated.RootParentID
		} else {
			parentID = newIDs[parentName]
		}
		id, err := d.Client.CreateOrgUnit(ctx, parentID, name)
		if err != nil {
			return fmt.Errorf("converge: rebuild: create orgunit %s: %w", name, err)
		}
		newIDs[name] = id
		stored := &orgmodel.OrgUnit{
			Name:          name,
			ID:            id,
			ChildOrgUnits: append([]string(nil), declaredOU.ChildOrgUnits...),
			Policies:      append([]string(nil), declaredOU.Policies...),
		}
		updated.OrgUnits[name] = stored
		updated.OrgUnitIDsToNames[id] = name

		// e (policies half): attach this orgunit's declared policies now,
		// while we still have its freshly assigned id in hand.
		if err := d.reconcileAttachments(ctx, updated, id, nil, stored.Policies); err != nil {
			return fmt.Errorf("converge: rebuild: attach policies to orgunit %s: %w", name, err)
		}
		report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: name, Change: ChangeCreated, ID: id})
		log.Info("orgunit recreated", "name", name, "id", id)
	}

	// e (accounts half): move every declared account into its declared
	// parent. Root-declared accounts are already at root from step a.
	for _, name := range declared.SortedAccountNames() {
		account, ok := updated.Accounts[name]
		if !ok {
			continue
		}
		parentName := declared.AccountParent(name)
		if parentName == differ.RootParent {
			continue
		}
		parentID, ok := newIDs[parentName]
		if !ok {
			continue
		}
		if err := d.Client.MoveAccount(ctx, account.AccountID, updated.RootParentID, parentID); err != nil {
			return fmt.Errorf("converge: rebuild: move account %s into %s: %w", name, parentName, err)
		}
		if ou, ok := updated.OrgUnits[parentName]; ok {
			ou.Accounts = append(ou.Accounts, name)
		}
		report.AccountAssociations = append(report.AccountAssociations, AccountAssociationChange{
			Name: name, Parent: parentName, Change: ChangeReassociated, Reason: "placed under declared parent after orgunit rebuild",
		})
	}

	return nil
}

// rebuildOrder is a local counterpart of the differ package's unexported
// topDownOrgUnitOrder, which this package cannot call.
func rebuildOrder(org *orgmodel.Organization) []string {
	var topLevel []string
	for _, name := range org.SortedOrgUnitNames() {
		if org.OrgUnitParent(name) == differ.RootParent {
			topLevel = append(topLevel, name)
		}
	}
	var order []string
	var visit func(name string)
	visit = func(name string) {
		order = append(order, name)
		ou, ok := org.OrgUnits[name]
		if !ok {
			return
		}
		children := append([]string(nil), ou.ChildOrgUnits...)
		sort.Strings(children)
		for _, child := range children {
			if _, ok := org.OrgUnits[child]; ok {
				visit(child)
			}
		}
	}
	for _, name := range topLevel {
		visit(name)
	}
	return order
}
