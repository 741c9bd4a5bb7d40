// Package config is the ConfigCodec (spec.md §4.1): it loads a declared
// Organization from a yamldoc.Mapping and dumps one back, validating
// entity shape against a parameter schema and dispatching on the
// document's `version` key. Ported from cumulogenesis's loaders/config.py
// and loaders/config_loaders/default_config_loader.py — this component has
// no teacher (nebula) equivalent, so its error types and one-of validation
// follow the original Python rather than an existing Go pattern.
package config

import (
	"fmt"
	"sort"

	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"gopkg.in/yaml.v3"
)

// defaultRootPolicies is the policy set every account/orgunit gets when it
// declares no `policies` key, per default_config_loader.py's
// `_default_root_policies = ['FullAWSAccess']`.
var defaultRootPolicies = []string{"FullAWSAccess"}

// defaultFeatureSet mirrors `_default_featureset = 'ALL'`.
const defaultFeatureSet = orgmodel.FeatureSetAll

// loader is the version-dispatched codec implementation. cumulogenesis
// only ever shipped one (DefaultConfigLoader); the table exists so a
// future schema revision has somewhere to register without touching call
// sites (spec.md §9 "Dispatch over config versions").
type loader interface {
	load(doc *yamldoc.Mapping) (*orgmodel.Organization, orgmodel.ConfigErrors)
	dump(org *orgmodel.Organization) *yamldoc.Mapping
}

var loaders = map[string]loader{
	"default":    defaultLoader{},
	"2018-05-04": defaultLoader{},
}

func resolveLoader(version string) loader {
	if l, ok := loaders[version]; ok {
		return l
	}
	return loaders["default"]
}

// Load builds a declared Organization from doc. Schema violations are
// returned as orgmodel.ConfigErrors (a batch); the caller decides whether
// to treat that as fatal.
func Load(doc *yamldoc.Mapping) (*orgmodel.Organization, error) {
	version, _ := doc.GetString("version")
	l := resolveLoader(version)
	org, errs := l.load(doc)
	if !errs.Empty() {
		return nil, errs
	}
	return org, nil
}

// Dump renders org back to a document using the schema identified by
// version ("" selects "default"). It first validates org and fails with
// *orgmodel.InvalidOrganizationError if problems exist — dumping an
// invalid model is never allowed (spec.md §4.1).
func Dump(org *orgmodel.Organization, version string, validate func(*orgmodel.Organization) orgmodel.ProblemReport) (*yamldoc.Mapping, error) {
	problems := validate(org)
	if !problems.Empty() {
		return nil, &orgmodel.InvalidOrganizationError{Problems: problems}
	}
	if version == "" {
		version = "default"
	}
	l := resolveLoader(version)
	return l.dump(org), nil
}

type defaultLoader struct{}

var topLevelParams = []ParamSpec{
	{Name: "version", Kind: KindString, Optional: true},
	{Name: "root", Kind: KindString},
	{Name: "featureset", Kind: KindString, Optional: true},
	{Name: "provisioner", Kind: KindMapping, Optional: true},
	{Name: "accounts", Kind: KindList, Optional: true},
	{Name: "policies", Kind: KindList, Optional: true},
	{Name: "orgunits", Kind: KindList, Optional: true},
	{Name: "stacks", Kind: KindList, Optional: true},
}

var accountParams = []ParamSpec{
	{Name: "name", Kind: KindString},
	{Name: "owner", Kind: KindString, Optional: true},
	{Name: "account_id", Kind: KindString, Optional: true},
	{Name: "policies", Kind: KindList, Optional: true},
	{Name: "groups", Kind: KindList, Optional: true},
	{Name: "regions", Kind: KindMapping, Optional: true},
}

var policyParams = []ParamSpec{
	{Name: "name", Kind: KindString},
	{Name: "description", Kind: KindString, Optional: true},
	{Name: "document", Kind: KindMapping},
}

var documentOneOf = OneOfGroup{Names: []string{"location", "content"}}

var stackParams = []ParamSpec{
	{Name: "name", Kind: KindString},
	{Name: "template", Kind: KindMapping},
	{Name: "accounts", Kind: KindList, Optional: true},
	{Name: "orgunits", Kind: KindList, Optional: true},
	{Name: "groups", Kind: KindList, Optional: true},
}

func (defaultLoader) load(doc *yamldoc.Mapping) (*orgmodel.Organization, orgmodel.ConfigErrors) {
	var errs orgmodel.ConfigErrors
	errs = append(errs, validateParams(doc, topLevelParams, "")...)

	root, _ := doc.GetString("root")
	org := orgmodel.New(root, orgmodel.SourceDeclared)

	if fs, ok := doc.GetString("featureset"); ok {
		org.FeatureSet = orgmodel.FeatureSet(fs)
	} else {
		org.FeatureSet = defaultFeatureSet
	}

	if provisioner, ok := doc.GetMapping("provisioner"); ok {
		p, perrs := loadProvisioner(provisioner)
		errs = append(errs, perrs...)
		org.Provisioner = p
	}

	if accounts, ok := doc.GetSequence("accounts"); ok {
		aerrs := loadAccounts(accounts, org.Accounts)
		errs = append(errs, aerrs...)
	}
	if policies, ok := doc.GetSequence("policies"); ok {
		perrs := loadPolicies(policies, org.Policies)
		errs = append(errs, perrs...)
	}
	if orgunits, ok := doc.GetSequence("orgunits"); ok {
		oerrs := loadOrgUnits(orgunits, org.OrgUnits)
		errs = append(errs, oerrs...)
	}
	if stacks, ok := doc.GetSequence("stacks"); ok {
		serrs := loadStacks(stacks, org.Stacks)
		errs = append(errs, serrs...)
	}

	if !errs.Empty() {
		return nil, errs
	}
	return org, nil
}

func (defaultLoader) dump(org *orgmodel.Organization) *yamldoc.Mapping {
	m := yamldoc.NewMapping()
	m.SetString("version", "default")
	m.SetString("root", org.RootAccountID)
	m.SetString("featureset", string(org.FeatureSet))

	if org.Provisioner != (orgmodel.Provisioner{}) {
		m.SetMapping("provisioner", renderProvisioner(org.Provisioner))
	}

	accounts := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, name := range org.SortedAccountNames() {
		accounts.Content = append(accounts.Content, renderAccount(org.Accounts[name]))
	}
	m.Set("accounts", accounts)

	policies := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, name := range org.SortedPolicyNames() {
		policies.Content = append(policies.Content, renderPolicy(org.Policies[name]))
	}
	m.Set("policies", policies)

	m.Set("orgunits", renderOrgUnits(org))

	stacks := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, name := range org.SortedStackNames() {
		stacks.Content = append(stacks.Content, renderStack(org.Stacks[name]))
	}
	m.Set("stacks", stacks)

	return m
}

func loadProvisioner(m *yamldoc.Mapping) (orgmodel.Provisioner, orgmodel.ConfigErrors) {
	p := orgmodel.Provisioner{ProvisionerType: "cfn-stack-set", Role: "org-bootstrapper"}
	if v, ok := m.GetString("role"); ok {
		p.Role = v
	}
	if v, ok := m.GetString("provisioner_type"); ok {
		p.ProvisionerType = v
	}
	if v, ok := m.GetString("profile"); ok {
		p.Profile = v
	}
	if v, ok := m.GetString("access_key"); ok {
		p.AccessKey = v
	}
	if v, ok := m.GetString("secret_key"); ok {
		p.SecretKey = v
	}
	if v, ok := m.GetString("default_region"); ok {
		p.DefaultRegion = v
	}
	return p, nil
}

func renderProvisioner(p orgmodel.Provisioner) *yamldoc.Mapping {
	m := yamldoc.NewMapping()
	m.SetString("role", p.Role)
	m.SetString("provisioner_type", p.ProvisionerType)
	if p.Profile != "" {
		m.SetString("profile", p.Profile)
	}
	if p.DefaultRegion != "" {
		m.SetString("default_region", p.DefaultRegion)
	}
	return m
}

func loadAccounts(seq []*yaml.Node, out map[string]*orgmodel.Account) orgmodel.ConfigErrors {
	var errs orgmodel.ConfigErrors
	seen := map[string]bool{}
	for _, raw := range seq {
		m, err := yamldoc.DecodeNode(raw)
		if err != nil {
			errs = append(errs, &orgmodel.ConfigError{Kind: orgmodel.KindParameterTypeMismatch, Path: "accounts", Message: "account entry must be a mapping"})
			continue
		}
		errs = append(errs, validateParams(m, accountParams, "accounts")...)
		name, _ := m.GetString("name")
		if name == "" {
			continue
		}
		if dupErr := checkDuplicateNames(seen, name, "accounts"); dupErr != nil {
			errs = append(errs, dupErr)
			continue
		}
		a := &orgmodel.Account{Name: name}
		a.OwnerEmail, _ = m.GetString("owner")
		a.AccountID, _ = m.GetString("account_id")
		if policies, ok := m.GetStringSlice("policies"); ok {
			a.Policies = policies
		} else {
			a.Policies = append([]string(nil), defaultRootPolicies...)
		}
		if groups, ok := m.GetStringSlice("groups"); ok {
			a.Groups = groups
		}
		if regions, ok := m.GetMapping("regions"); ok {
			a.Regions = map[string]orgmodel.RegionConfig{}
			for _, regionName := range regions.Keys() {
				regionMapping, _ := regions.GetMapping(regionName)
				rc := orgmodel.RegionConfig{Parameters: map[string]string{}}
				if regionMapping != nil {
					if params, ok := regionMapping.GetMapping("parameters"); ok {
						for _, k := range params.Keys() {
							v, _ := params.GetString(k)
							rc.Parameters[k] = v
						}
					}
				}
				a.Regions[regionName] = rc
			}
		}
		out[name] = a
	}
	return errs
}

func renderAccount(a *orgmodel.Account) *yaml.Node {
	m := yamldoc.NewMapping()
	m.SetString("name", a.Name)
	if a.OwnerEmail != "" {
		m.SetString("owner", a.OwnerEmail)
	}
	if a.AccountID != "" {
		m.SetString("account_id", a.AccountID)
	}
	m.SetStringSlice("policies", a.Policies)
	if len(a.Groups) > 0 {
		m.SetStringSlice("groups", a.Groups)
	}
	if len(a.Regions) > 0 {
		regions := yamldoc.NewMapping()
		for _, name := range sortedRegionNames(a.Regions) {
			rc := a.Regions[name]
			rm := yamldoc.NewMapping()
			params := yamldoc.NewMapping()
			for _, k := range sortedParameterNames(rc.Parameters) {
				params.SetString(k, rc.Parameters[k])
			}
			rm.SetMapping("parameters", params)
			regions.SetMapping(name, rm)
		}
		m.SetMapping("regions", regions)
	}
	return m.Node()
}

// sortedRegionNames and sortedParameterNames give renderAccount a
// deterministic key order to dump in. Account.Regions and RegionConfig.
// Parameters are plain Go maps with no preserved source order, so without
// this the dump's key order would vary run to run and break the round-trip
// law (spec.md §4.1/§8: Dump must be stable across repeated calls on the
// same model).
func sortedRegionNames(regions map[string]orgmodel.RegionConfig) []string {
	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedParameterNames(parameters map[string]string) []string {
	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loadPolicies(seq []*yaml.Node, out map[string]*orgmodel.Policy) orgmodel.ConfigErrors {
	var errs orgmodel.ConfigErrors
	seen := map[string]bool{}
	for _, raw := range seq {
		m, err := yamldoc.DecodeNode(raw)
		if err != nil {
			errs = append(errs, &orgmodel.ConfigError{Kind: orgmodel.KindParameterTypeMismatch, Path: "policies", Message: "policy entry must be a mapping"})
			continue
		}
		errs = append(errs, validateParams(m, policyParams, "policies")...)
		name, _ := m.GetString("name")
		if name == "" {
			continue
		}
		if dupErr := checkDuplicateNames(seen, name, "policies"); dupErr != nil {
			errs = append(errs, dupErr)
			continue
		}
		p := &orgmodel.Policy{Name: name, AWSManaged: orgmodel.IsAWSManagedPolicyName(name)}
		p.Description, _ = m.GetString("description")
		if doc, ok := m.GetMapping("document"); ok {
			errs = append(errs, validateOneOf(doc, documentOneOf, fmt.Sprintf("policies.%s.document", name))...)
			p.Document.Location, _ = doc.GetString("location")
			if content, ok := doc.GetMapping("content"); ok {
				p.Document.Content = content
			}
		}
		out[name] = p
	}
	return errs
}

func renderPolicy(p *orgmodel.Policy) *yaml.Node {
	m := yamldoc.NewMapping()
	m.SetString("name", p.Name)
	if p.Description != "" {
		m.SetString("description", p.Description)
	}
	doc := yamldoc.NewMapping()
	if p.Document.Location != "" {
		doc.SetString("location", p.Document.Location)
	} else if p.Document.Content != nil {
		doc.SetMapping("content", p.Document.Content)
	}
	m.SetMapping("document", doc)
	return m.Node()
}

func loadStacks(seq []*yaml.Node, out map[string]*orgmodel.StackSet) orgmodel.ConfigErrors {
	var errs orgmodel.ConfigErrors
	seen := map[string]bool{}
	for _, raw := range seq {
		m, err := yamldoc.DecodeNode(raw)
		if err != nil {
			errs = append(errs, &orgmodel.ConfigError{Kind: orgmodel.KindParameterTypeMismatch, Path: "stacks", Message: "stack entry must be a mapping"})
			continue
		}
		errs = append(errs, validateParams(m, stackParams, "stacks")...)
		name, _ := m.GetString("name")
		if name == "" {
			continue
		}
		if dupErr := checkDuplicateNames(seen, name, "stacks"); dupErr != nil {
			errs = append(errs, dupErr)
			continue
		}
		s := &orgmodel.StackSet{Name: name}
		if tmpl, ok := m.GetMapping("template"); ok {
			errs = append(errs, validateOneOf(tmpl, OneOfGroup{Names: []string{"location", "content"}}, fmt.Sprintf("stacks.%s.template", name))...)
			s.Template.Location, _ = tmpl.GetString("location")
			if content, ok := tmpl.GetMapping("content"); ok {
				s.Template.Content = content
			}
		}
		s.Accounts = loadStackTargets(m, "accounts")
		s.OrgUnits = loadStackTargets(m, "orgunits")
		s.Groups = loadStackTargets(m, "groups")
		out[name] = s
	}
	return errs
}

func loadStackTargets(m *yamldoc.Mapping, key string) []orgmodel.StackTarget {
	seq, ok := m.GetSequence(key)
	if !ok {
		return nil
	}
	var targets []orgmodel.StackTarget
	for _, raw := range seq {
		tm, err := yamldoc.DecodeNode(raw)
		if err != nil {
			continue
		}
		name, _ := tm.GetString("name")
		regions, _ := tm.GetStringSlice("regions")
		targets = append(targets, orgmodel.StackTarget{Name: name, Regions: regions})
	}
	return targets
}

func renderStack(s *orgmodel.StackSet) *yaml.Node {
	m := yamldoc.NewMapping()
	m.SetString("name", s.Name)
	tmpl := yamldoc.NewMapping()
	if s.Template.Location != "" {
		tmpl.SetString("location", s.Template.Location)
	} else if s.Template.Content != nil {
		tmpl.SetMapping("content", s.Template.Content)
	}
	m.SetMapping("template", tmpl)
	m.Set("accounts", renderStackTargets(s.Accounts))
	m.Set("orgunits", renderStackTargets(s.OrgUnits))
	m.Set("groups", renderStackTargets(s.Groups))
	return m.Node()
}

func renderStackTargets(targets []orgmodel.StackTarget) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, t := range targets {
		m := yamldoc.NewMapping()
		m.SetString("name", t.Name)
		m.SetStringSlice("regions", t.Regions)
		seq.Content = append(seq.Content, m.Node())
	}
	return seq
}
