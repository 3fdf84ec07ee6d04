package compiler

import (
	"fmt"

	mm "github.com/roach88/ormsql/internal/metamodel"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateColumn        = "E201" // two attributes of one entity map the same column
	ErrDuplicateDiscriminator = "E202" // two types of a hierarchy share a discriminator value
	ErrVersionType            = "E203" // version attribute is neither numeric nor temporal
	ErrProfileTarget          = "E204" // fetch profile names an unknown entity or association
	ErrEagerBags              = "E205" // entity join-fetches more than one bag by default
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateModel checks a resolved model for mappings the translator would
// reject or silently mistranslate. Returns all errors found (does not
// fail-fast).
func ValidateModel(m *mm.Model) []ValidationError {
	var errs []ValidationError
	for _, e := range m.Entities() {
		errs = append(errs, validateEntity(e)...)
	}
	for _, p := range m.FetchProfiles() {
		errs = append(errs, validateFetchProfile(m, p)...)
	}
	return errs
}

func validateEntity(e *mm.Entity) []ValidationError {
	var errs []ValidationError
	field := "entity." + e.Name

	// E201: a column written by two attributes
	owners := map[string]string{}
	for _, a := range e.AllAttributes() {
		for _, c := range a.Columns() {
			key := e.TableOf(a) + "." + c
			if prev, dup := owners[key]; dup {
				errs = append(errs, ValidationError{
					Field:   field + ".attributes." + a.Name,
					Message: fmt.Sprintf("column %s is already mapped by %s", key, prev),
					Code:    ErrDuplicateColumn,
				})
				continue
			}
			owners[key] = a.Name
		}
	}

	// E202: discriminator values are unique within a single-table hierarchy
	if e.Super() == nil && e.Strategy() == mm.InheritanceSingleTable {
		seen := map[string]string{}
		for _, t := range e.Subtree() {
			if prev, dup := seen[t.DiscriminatorValue]; dup {
				errs = append(errs, ValidationError{
					Field:   "entity." + t.Name + ".discriminator.value",
					Message: fmt.Sprintf("discriminator value %q is already used by %s", t.DiscriminatorValue, prev),
					Code:    ErrDuplicateDiscriminator,
				})
				continue
			}
			seen[t.DiscriminatorValue] = t.Name
		}
	}

	// E203: generated versions must be incrementable
	if v := e.VersionAttribute(); v != nil && e.Super() == nil && !e.IsCustomVersion() {
		if v.Type == nil || !(v.Type.Kind.IsNumeric() || v.Type.Kind.IsTemporal()) {
			errs = append(errs, ValidationError{
				Field:   field + ".version",
				Message: fmt.Sprintf("version attribute %s must be numeric or temporal, or the entity must declare customVersion", v.Name),
				Code:    ErrVersionType,
			})
		}
	}

	// E205: selecting the entity would fail with a multiple bag fetch
	var bags []string
	for _, a := range e.AllAttributes() {
		if a.IsBag() && a.JoinFetch {
			bags = append(bags, a.Name)
		}
	}
	if len(bags) > 1 {
		errs = append(errs, ValidationError{
			Field:   field + ".attributes",
			Message: fmt.Sprintf("at most one bag can be join-fetched by default, found %v", bags),
			Code:    ErrEagerBags,
		})
	}
	return errs
}

func validateFetchProfile(m *mm.Model, p *mm.FetchProfile) []ValidationError {
	var errs []ValidationError
	for i, o := range p.Overrides {
		field := fmt.Sprintf("fetchProfile.%s[%d]", p.Name, i)
		e, ok := m.Entity(o.Entity)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".entity",
				Message: fmt.Sprintf("unknown entity %q", o.Entity),
				Code:    ErrProfileTarget,
			})
			continue
		}
		a := e.Attribute(o.Association)
		if a == nil || !a.IsAssociation() && a.Kind != mm.AttributePlural {
			errs = append(errs, ValidationError{
				Field:   field + ".association",
				Message: fmt.Sprintf("%s has no association or collection %q", e.Name, o.Association),
				Code:    ErrProfileTarget,
			})
		}
	}
	return errs
}
