package config

import (
	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"gopkg.in/yaml.v3"
)

var orgunitParams = []ParamSpec{
	{Name: "name", Kind: KindString},
	{Name: "policies", Kind: KindList, Optional: true},
	{Name: "accounts", Kind: KindList, Optional: true},
	{Name: "orgunits", Kind: KindList, Optional: true},
}

// loadOrgUnits flattens the declared document's nested `orgunits` list into
// the flat name-indexed map the rest of the engine works with, recording
// each level's nested children as childOrgunits edges. Ported from
// default_config_loader.py:_load_orgunits_from_orgunit / _load_orgunits.
func loadOrgUnits(seq []*yaml.Node, out map[string]*orgmodel.OrgUnit) orgmodel.ConfigErrors {
	var errs orgmodel.ConfigErrors
	seen := map[string]bool{}
	for _, raw := range seq {
		m, err := yamldoc.DecodeNode(raw)
		if err != nil {
			errs = append(errs, &orgmodel.ConfigError{Kind: orgmodel.KindParameterTypeMismatch, Path: "orgunits", Message: "orgunit entry must be a mapping"})
			continue
		}
		errs = append(errs, validateParams(m, orgunitParams, "orgunits")...)

		name, _ := m.GetString("name")
		if name == "" {
			continue
		}
		if dupErr := checkDuplicateNames(seen, name, "orgunits"); dupErr != nil {
			errs = append(errs, dupErr)
			continue
		}

		ou := &orgmodel.OrgUnit{Name: name}
		if policies, ok := m.GetStringSlice("policies"); ok {
			ou.Policies = policies
		} else {
			ou.Policies = append([]string(nil), defaultRootPolicies...)
		}
		if accounts, ok := m.GetStringSlice("accounts"); ok {
			ou.Accounts = accounts
		}
		if children, ok := m.GetSequence("orgunits"); ok {
			for _, child := range children {
				cm, cerr := yamldoc.DecodeNode(child)
				if cerr != nil {
					continue
				}
				childName, _ := cm.GetString("name")
				if childName != "" {
					ou.ChildOrgUnits = append(ou.ChildOrgUnits, childName)
				}
			}
			errs = append(errs, loadOrgUnits(children, out)...)
		}
		out[name] = ou
	}
	return errs
}

// renderOrgUnits rebuilds the nested `orgunits` document list from the
// flat model, starting at the orgunits with no parent (top level) and
// descending via childOrgunits edges — the inverse of loadOrgUnits.
func renderOrgUnits(org *orgmodel.Organization) *yaml.Node {
	var topLevel []string
	for _, name := range org.SortedOrgUnitNames() {
		if org.OrgUnitParent(name) == "" {
			topLevel = append(topLevel, name)
		}
	}
	return renderOrgUnitList(org, topLevel)
}

func renderOrgUnitList(org *orgmodel.Organization, names []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, name := range names {
		ou := org.OrgUnits[name]
		m := yamldoc.NewMapping()
		m.SetString("name", ou.Name)
		m.SetStringSlice("policies", ou.Policies)
		m.SetStringSlice("accounts", ou.Accounts)
		if len(ou.ChildOrgUnits) > 0 {
			children := append([]string(nil), ou.ChildOrgUnits...)
			m.Set("orgunits", renderOrgUnitList(org, children))
		}
		seq.Content = append(seq.Content, m.Node())
	}
	return seq
}
