package differ

import (
	"fmt"
	"sort"

	"github.com/stelligent/cumulogenesis/internal/orgmodel"
)

// Diff compares declared against actual (both assumed already validated)
// and returns the ordered Plan described in spec.md §4.5. Both models are
// read-only; Diff never mutates them.
func Diff(declared, actual *orgmodel.Organization) *Plan {
	plan := &Plan{Problems: orgmodel.ProblemReport{}}

	plan.Organization = diffOrganization(declared, actual)
	plan.Policies = diffPolicies(declared, actual)
	plan.OrgUnits = diffOrgUnits(declared, actual)
	plan.Accounts = diffAccounts(declared, actual)
	plan.AccountAssociations = diffAccountAssociations(declared, actual, plan)
	plan.OrgUnitAssociations = diffOrgUnitAssociations(declared, actual)

	return plan
}

func diffOrganization(declared, actual *orgmodel.Organization) *OrganizationAction {
	if !actual.Exists {
		return &OrganizationAction{Action: ActionCreate}
	}
	if declared.FeatureSet != actual.FeatureSet || !equalStringSets(declared.RootPolicies, actual.RootPolicies) {
		return &OrganizationAction{Action: ActionUpdate}
	}
	return nil
}

func equalStringSets(a, b []string) bool {
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// diffPolicies orders creates/updates (by name) before deletes (by name),
// so that within the policies kind itself deletes come last — matching
// spec.md §4.5 ordering invariant 2 at the plan-section level; the driver
// additionally sequences whole phases (upsert before delete) across kinds.
func diffPolicies(declared, actual *orgmodel.Organization) []PolicyAction {
	var upserts, deletes []PolicyAction

	for _, name := range declared.SortedPolicyNames() {
		d := declared.Policies[name]
		if d.AWSManaged {
			continue
		}
		a, ok := actual.Policies[name]
		if !ok || a.AWSManaged {
			upserts = append(upserts, PolicyAction{Name: name, Action: ActionCreate, Declared: d})
			continue
		}
		if !orgmodel.EqualPolicies(d, a) {
			upserts = append(upserts, PolicyAction{Name: name, Action: ActionUpdate, Declared: d, Actual: a})
		}
	}
	for _, name := range actual.SortedPolicyNames() {
		a := actual.Policies[name]
		if a.AWSManaged {
			continue
		}
		if d, ok := declared.Policies[name]; !ok || d.AWSManaged {
			deletes = append(deletes, PolicyAction{Name: name, Action: ActionDelete, Actual: a})
		}
	}
	return append(upserts, deletes...)
}

// diffOrgUnits orders creates/updates top-down (declared parents before
// children) and deletes bottom-up (actual children before parents), per
// spec.md §4.5 ordering invariant 3.
func diffOrgUnits(declared, actual *orgmodel.Organization) []OrgUnitAction {
	var upserts, deletes []OrgUnitAction

	for _, name := range topDownOrgUnitOrder(declared) {
		d := declared.OrgUnits[name]
		a, ok := actual.OrgUnits[name]
		if !ok {
			upserts = append(upserts, OrgUnitAction{Name: name, Action: ActionCreate, Declared: d})
			continue
		}
		if !orgmodel.EqualOrgUnits(d, a) {
			upserts = append(upserts, OrgUnitAction{Name: name, Action: ActionUpdate, Declared: d, Actual: a})
		}
	}

	bottomUp := topDownOrgUnitOrder(actual)
	for i, j := 0, len(bottomUp)-1; i < j; i, j = i+1, j-1 {
		bottomUp[i], bottomUp[j] = bottomUp[j], bottomUp[i]
	}
	for _, name := range bottomUp {
		a := actual.OrgUnits[name]
		if _, ok := declared.OrgUnits[name]; !ok {
			deletes = append(deletes, OrgUnitAction{Name: name, Action: ActionDelete, Actual: a})
		}
	}
	return append(upserts, deletes...)
}

// topDownOrgUnitOrder walks org's orgunit tree from the top-level orgunits
// downward, breaking ties alphabetically at each level for a deterministic
// result given equal inputs (spec.md §5 "the plan's ordering is
// deterministic given equal inputs").
func topDownOrgUnitOrder(org *orgmodel.Organization) []string {
	var topLevel []string
	for _, name := range org.SortedOrgUnitNames() {
		if org.OrgUnitParent(name) == "" {
			topLevel = append(topLevel, name)
		}
	}

	var order []string
	var visit func(name string)
	visit = func(name string) {
		order = append(order, name)
		ou := org.OrgUnits[name]
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

// diffAccounts covers the accounts-kind action set only: create, invite,
// update. Reassignment between orgunits is handled separately by
// diffAccountAssociations, per spec.md §4.5's kind split.
func diffAccounts(declared, actual *orgmodel.Organization) []AccountAction {
	var out []AccountAction
	for _, name := range declared.SortedAccountNames() {
		d := declared.Accounts[name]
		a, ok := actual.Accounts[name]
		if !ok {
			if d.AccountID == "" {
				out = append(out, AccountAction{Name: name, Action: ActionCreate, Declared: d})
			} else {
				out = append(out, AccountAction{Name: name, Action: ActionInvite, Declared: d})
			}
			continue
		}
		if !orgmodel.EqualAccounts(d, a) {
			out = append(out, AccountAction{Name: name, Action: ActionUpdate, Declared: d, Actual: a})
		}
	}
	return out
}

// diffAccountAssociations handles three cases in one pass: an explicit
// hierarchy move (declared parent differs from actual parent, scenario 5),
// placement of a brand-new account under its declared parent, and orphaning
// by orgunit deletion (scenario 6) — an actual account whose actual parent
// orgunit is being removed and is not reclaimed by the declared model.
func diffAccountAssociations(declared, actual *orgmodel.Organization, plan *Plan) []AccountAssociation {
	var out []AccountAssociation

	orgUnitDeleted := map[string]bool{}
	for _, action := range plan.OrgUnits {
		if action.Action == ActionDelete {
			orgUnitDeleted[action.Name] = true
		}
	}

	for _, name := range declared.SortedAccountNames() {
		declaredParent := declared.AccountParent(name)
		if _, inActual := actual.Accounts[name]; !inActual {
			if declaredParent != RootParent {
				out = append(out, AccountAssociation{Name: name, Parent: declaredParent, Reason: "newly created account placed under its declared parent orgunit"})
			}
			continue
		}
		actualParent := actual.AccountParent(name)
		if declaredParent != actualParent {
			out = append(out, AccountAssociation{Name: name, Parent: declaredParent, Reason: fmt.Sprintf("declared parent %q differs from actual parent %q", displayParent(declaredParent), displayParent(actualParent))})
		}
	}

	for _, name := range actual.SortedAccountNames() {
		if _, inDeclared := declared.Accounts[name]; inDeclared {
			continue
		}
		actualParent := actual.AccountParent(name)
		if actualParent != RootParent && orgUnitDeleted[actualParent] {
			out = append(out, AccountAssociation{Name: name, Parent: RootParent, Reason: fmt.Sprintf("will be orphaned by the removal of parent orgunit %s", actualParent)})
			plan.Problems.Add("accounts", name, fmt.Sprintf("will be orphaned by the removal of parent orgunit %s", actualParent))
		}
	}

	return out
}

func displayParent(name string) string {
	if name == RootParent {
		return "root"
	}
	return name
}

// diffOrgUnitAssociations covers orgunits present in both models whose
// parent changed. Newly created orgunits are placed at creation time and
// never appear here (spec.md §4.5 "same rule" applied only to the shared
// subset).
func diffOrgUnitAssociations(declared, actual *orgmodel.Organization) []OrgUnitAssociation {
	var out []OrgUnitAssociation
	for _, name := range declared.SortedOrgUnitNames() {
		if _, inActual := actual.OrgUnits[name]; !inActual {
			continue
		}
		declaredParent := declared.OrgUnitParent(name)
		actualParent := actual.OrgUnitParent(name)
		if declaredParent != actualParent {
			out = append(out, OrgUnitAssociation{Name: name, Parent: declaredParent})
		}
	}
	return out
}
