package config

import (
	"fmt"

	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"gopkg.in/yaml.v3"
)

// ParamKind is the semantic type a ParamSpec checks a mapping key against,
// mirroring default_config_loader.py's {'type': str}/{'type': list}/etc.
// schema entries.
type ParamKind int

const (
	KindString ParamKind = iota
	KindBool
	KindList
	KindMapping
)

func (k ParamKind) nodeKind() yaml.Kind {
	switch k {
	case KindList:
		return yaml.SequenceNode
	case KindMapping:
		return yaml.MappingNode
	default:
		return yaml.ScalarNode
	}
}

func (k ParamKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// ParamSpec is one entry of an entity's parameter schema: a required or
// optional key of a given kind, with an optional default.
type ParamSpec struct {
	Name     string
	Kind     ParamKind
	Optional bool
	Default  string // only meaningful for KindString/KindBool defaults
}

// OneOfGroup names a set of mutually-exclusive, jointly-required keys
// (e.g. policy document.location vs document.content).
type OneOfGroup struct {
	Names []string
}

// validateParams checks m against specs, returning every violation found
// (the codec reports problems in a batch, per spec.md §7).
func validateParams(m *yamldoc.Mapping, specs []ParamSpec, path string) orgmodel.ConfigErrors {
	var errs orgmodel.ConfigErrors
	for _, spec := range specs {
		node, present := m.Get(spec.Name)
		if !present {
			if !spec.Optional {
				errs = append(errs, &orgmodel.ConfigError{
					Kind:    orgmodel.KindMissingRequiredParameter,
					Path:    fmt.Sprintf("%s.%s", path, spec.Name),
					Message: fmt.Sprintf("required parameter %q is missing", spec.Name),
				})
			}
			continue
		}
		if node.Kind != spec.Kind.nodeKind() {
			errs = append(errs, &orgmodel.ConfigError{
				Kind:    orgmodel.KindParameterTypeMismatch,
				Path:    fmt.Sprintf("%s.%s", path, spec.Name),
				Message: fmt.Sprintf("parameter %q must be a %s", spec.Name, spec.Kind),
			})
		}
	}
	return errs
}

// validateOneOf checks that exactly one of group.Names is present in m.
func validateOneOf(m *yamldoc.Mapping, group OneOfGroup, path string) orgmodel.ConfigErrors {
	var present []string
	for _, name := range group.Names {
		if _, ok := m.Get(name); ok {
			present = append(present, name)
		}
	}
	switch len(present) {
	case 1:
		return nil
	case 0:
		return orgmodel.ConfigErrors{{
			Kind:    orgmodel.KindOneOfMissing,
			Path:    path,
			Message: fmt.Sprintf("exactly one of %v must be specified", group.Names),
		}}
	default:
		return orgmodel.ConfigErrors{{
			Kind:    orgmodel.KindMultipleParametersSpecified,
			Path:    path,
			Message: fmt.Sprintf("only one of %v may be specified, got %v", group.Names, present),
		}}
	}
}

// checkDuplicateNames records a DuplicateNames error if name has already
// been seen at this level.
func checkDuplicateNames(seen map[string]bool, name, category string) *orgmodel.ConfigError {
	if seen[name] {
		return &orgmodel.ConfigError{
			Kind:    orgmodel.KindDuplicateNames,
			Path:    category,
			Message: fmt.Sprintf("duplicate name %q among %s", name, category),
		}
	}
	seen[name] = true
	return nil
}
