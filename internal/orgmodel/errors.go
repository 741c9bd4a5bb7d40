package orgmodel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ProblemReport is the Validator's output: category (orgunits, accounts,
// stacks) -> entity name -> problem strings. An empty report means the
// model is valid.
type ProblemReport map[string]map[string][]string

// Add appends a problem string under category/name, creating either level
// as needed.
func (pr ProblemReport) Add(category, name, problem string) {
	if pr[category] == nil {
		pr[category] = map[string][]string{}
	}
	pr[category][name] = append(pr[category][name], problem)
}

// Empty reports whether the report carries no problems at all.
func (pr ProblemReport) Empty() bool {
	for _, byName := range pr {
		if len(byName) > 0 {
			return false
		}
	}
	return true
}

// String renders the report deterministically for error messages and
// converge logs.
func (pr ProblemReport) String() string {
	var b strings.Builder
	categories := make([]string, 0, len(pr))
	for c := range pr {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		names := make([]string, 0, len(pr[c]))
		for n := range pr[c] {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			for _, p := range pr[c][n] {
				fmt.Fprintf(&b, "%s.%s: %s\n", c, n, p)
			}
		}
	}
	return b.String()
}

// ConfigErrorKind enumerates the config codec's error taxonomy (spec.md
// §7 "Configuration").
type ConfigErrorKind string

const (
	KindMissingRequiredParameter    ConfigErrorKind = "MissingRequiredParameter"
	KindParameterTypeMismatch       ConfigErrorKind = "ParameterTypeMismatch"
	KindMultipleParametersSpecified ConfigErrorKind = "MultipleParametersSpecified"
	KindOneOfMissing                ConfigErrorKind = "OneOfMissing"
	KindDuplicateNames              ConfigErrorKind = "DuplicateNames"
)

// ConfigError is a single schema violation found while loading a declared
// document.
type ConfigError struct {
	Kind    ConfigErrorKind
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
}

// ConfigErrors batches every schema violation found during a single Load,
// since the codec reports problems in a batch rather than failing on the
// first one (spec.md §7 "Reported as a batch; processing stops after
// validation phase").
type ConfigErrors []*ConfigError

func (e ConfigErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, ce := range e {
		parts = append(parts, ce.Error())
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether the batch carries no errors.
func (e ConfigErrors) Empty() bool {
	return len(e) == 0
}

// InvalidOrganizationError wraps a non-empty ProblemReport raised by
// Validator.RaiseIfInvalid or ConfigCodec.Dump.
type InvalidOrganizationError struct {
	Problems ProblemReport
}

func (e *InvalidOrganizationError) Error() string {
	return "invalid organization:\n" + e.Problems.String()
}

// OrgunitHierarchyCycleError is raised by the Validator's cycle DFS.
type OrgunitHierarchyCycleError struct {
	Path []string
}

func (e *OrgunitHierarchyCycleError) Error() string {
	return fmt.Sprintf("orgunit hierarchy cycle: %s", strings.Join(e.Path, " -> "))
}

// Sentinel errors for the provider-precondition and credential kinds in
// spec.md §7, matched with errors.Is at call sites.
var (
	// ErrOrganizationMemberAccount is raised when the declared root account
	// is already a member of a different organization than the one the
	// provider reports.
	ErrOrganizationMemberAccount = errors.New("declared root account is a member of a different organization")

	// ErrNotAwsModel is the sentinel for an API-only operation invoked on a
	// declared (not actual) model. No function in this repository checks
	// for that case or returns it.
	ErrNotAwsModel = errors.New("operation requires an actual organization model")

	// ErrAccessKeysInvalid is raised at provisioner session construction.
	ErrAccessKeysInvalid = errors.New("provisioner access keys are invalid")

	// ErrRoleNameNotSpecified is raised at provisioner session construction.
	ErrRoleNameNotSpecified = errors.New("provisioner role name not specified")

	// ErrAccountCreateTimeout is raised when the bounded account-creation
	// poll loop exhausts its attempts without reaching a terminal state.
	ErrAccountCreateTimeout = errors.New("account creation did not reach a terminal state within the polling window")
)
