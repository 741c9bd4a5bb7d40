// Package validator implements the Organization integrity checks of
// spec.md §4.2: a pure function over the model (aside from populating the
// derived ParentReferences index) that returns a structured problem
// report. Ported step-for-step from cumulogenesis's
// organization.py:validate/_validate_orgunits/_validate_accounts/
// _validate_stacksets/_generate_orgunit_parent_references.
package validator

import (
	"fmt"
	"sort"

	"github.com/stelligent/cumulogenesis/internal/orgmodel"
)

// Validate runs the five ordered steps from spec.md §4.2 against org and
// returns the resulting problem report. As a side effect it resets and
// repopulates every account's and orgunit's ParentReferences.
func Validate(org *orgmodel.Organization) orgmodel.ProblemReport {
	problems := orgmodel.ProblemReport{}

	// Step 1: reset parent references.
	for _, name := range org.SortedAccountNames() {
		org.Accounts[name].ParentReferences = nil
	}
	for _, name := range org.SortedOrgUnitNames() {
		org.OrgUnits[name].ParentReferences = nil
	}

	// Step 2: orgunit pass — child orgunits, accounts, policies.
	validateOrgUnitReferences(org, problems)

	// Step 3: account pass — parent cardinality, policy references.
	validateAccounts(org, problems)

	// Step 4: stack pass — referential integrity only.
	validateStacks(org, problems)

	// Step 5: cycle detection over the orgunit parent-of relation.
	if err := detectCycles(org); err != nil {
		if cycleErr, ok := err.(*orgmodel.OrgunitHierarchyCycleError); ok {
			problems.Add("orgunits", cycleErr.Path[0], cycleErr.Error())
		}
	}

	return problems
}

// RaiseIfInvalid runs Validate and, if the result is non-empty, returns an
// *orgmodel.InvalidOrganizationError wrapping it.
func RaiseIfInvalid(org *orgmodel.Organization) error {
	problems := Validate(org)
	if !problems.Empty() {
		return &orgmodel.InvalidOrganizationError{Problems: problems}
	}
	return nil
}

func validateOrgUnitReferences(org *orgmodel.Organization, problems orgmodel.ProblemReport) {
	for _, ouName := range org.SortedOrgUnitNames() {
		ou := org.OrgUnits[ouName]

		for _, child := range ou.ChildOrgUnits {
			if _, ok := org.OrgUnits[child]; !ok {
				problems.Add("orgunits", ouName, fmt.Sprintf("references unknown child orgunit %q", child))
				continue
			}
			org.OrgUnits[child].ParentReferences = append(org.OrgUnits[child].ParentReferences, ouName)
		}

		for _, accountName := range ou.Accounts {
			account, ok := org.Accounts[accountName]
			if !ok {
				problems.Add("orgunits", ouName, fmt.Sprintf("references unknown account %q", accountName))
				continue
			}
			account.ParentReferences = append(account.ParentReferences, ouName)
		}

		for _, policyName := range ou.Policies {
			if _, ok := org.Policies[policyName]; !ok && !orgmodel.IsAWSManagedPolicyName(policyName) {
				problems.Add("orgunits", ouName, fmt.Sprintf("references unknown policy %q", policyName))
			}
		}
	}
}

func validateAccounts(org *orgmodel.Organization, problems orgmodel.ProblemReport) {
	for _, name := range org.SortedAccountNames() {
		account := org.Accounts[name]

		switch {
		case len(account.ParentReferences) == 0 && name != org.RootAccountID && account.AccountID != org.RootAccountID:
			problems.Add("accounts", name, "orphaned: not referenced as a child of any orgunit and is not the root account")
		case len(account.ParentReferences) > 1:
			refs := append([]string(nil), account.ParentReferences...)
			sort.Strings(refs)
			problems.Add("accounts", name, fmt.Sprintf("referenced as a child of multiple orgunits: %s", joinComma(refs)))
		}

		for _, policyName := range account.Policies {
			if _, ok := org.Policies[policyName]; !ok && !orgmodel.IsAWSManagedPolicyName(policyName) {
				problems.Add("accounts", name, fmt.Sprintf("references unknown policy %q", policyName))
			}
		}
	}
}

func validateStacks(org *orgmodel.Organization, problems orgmodel.ProblemReport) {
	for _, name := range org.SortedStackNames() {
		stack := org.Stacks[name]

		for _, target := range stack.Accounts {
			if _, ok := org.Accounts[target.Name]; !ok {
				problems.Add("stacks", name, fmt.Sprintf("references unknown account %q", target.Name))
			} else if len(target.Regions) == 0 {
				problems.Add("stacks", name, fmt.Sprintf("account target %q carries no regions", target.Name))
			}
		}
		for _, target := range stack.OrgUnits {
			if _, ok := org.OrgUnits[target.Name]; !ok {
				problems.Add("stacks", name, fmt.Sprintf("references unknown orgunit %q", target.Name))
			} else if len(target.Regions) == 0 {
				problems.Add("stacks", name, fmt.Sprintf("orgunit target %q carries no regions", target.Name))
			}
		}
		for _, target := range stack.Groups {
			if len(target.Regions) == 0 {
				problems.Add("stacks", name, fmt.Sprintf("group target %q carries no regions", target.Name))
			}
		}
	}
}

// detectCycles runs a DFS from every orgunit over the childOrgunits edges,
// returning an *orgmodel.OrgunitHierarchyCycleError carrying the offending
// path on the first back-edge found.
func detectCycles(org *orgmodel.Organization) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(org.OrgUnits))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			cyclePath := append(append([]string(nil), path...), name)
			return &orgmodel.OrgunitHierarchyCycleError{Path: cyclePath}
		}
		state[name] = visiting
		path = append(path, name)
		ou, ok := org.OrgUnits[name]
		if ok {
			for _, child := range ou.ChildOrgUnits {
				if _, known := org.OrgUnits[child]; !known {
					continue
				}
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, name := range org.SortedOrgUnitNames() {
		if state[name] == unvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinComma(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
