package config

import (
	"github.com/zjrosen/formflow/internal/validation"
)

// FieldNames returns the field names in declaration order.
func (f FormConfig) FieldNames() []string {
	names := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		names = append(names, field.Name)
	}
	return names
}

// Field returns the field called name.
func (f FormConfig) Field(name string) (FieldConfig, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldConfig{}, false
}

// Values returns the configured default of every field that has one.
func (f FormConfig) Values() map[string]any {
	values := make(map[string]any)
	for _, field := range f.Fields {
		if field.Default != nil {
			values[field.Name] = field.Default
		}
	}
	return values
}

// Secrets returns the names of fields that must not be persisted.
func (f FormConfig) Secrets() []string {
	var out []string
	for _, field := range f.Fields {
		if field.Secret {
			out = append(out, field.Name)
		}
	}
	return out
}

// Spec returns the validator spec of the field.
func (fc FieldConfig) Spec() validation.Spec {
	if len(fc.Validators) == 0 {
		return nil
	}
	spec := make(validation.Spec, len(fc.Validators))
	for name, opts := range fc.Validators {
		spec[name] = opts
	}
	return spec
}

// DisplayLabel returns Label, falling back to Name.
func (fc FieldConfig) DisplayLabel() string {
	if fc.Label != "" {
		return fc.Label
	}
	return fc.Name
}

// Validators derives the validator mapping: the built-ins, plus "unique"
// when lookup is set, each delayed by Validation.Latency.
func (c Config) Validators(lookup validation.Lookup) map[string]validation.Validator {
	validators := validation.Builtins()
	if lookup != nil {
		validators[validation.NameUnique] = validation.NewUnique(lookup, c.Validation.UniqueTTL)
	}
	return validation.DelayAll(validators, c.Validation.Latency)
}

// Check fails when a field references a validator that validators does not
// provide.
func (f FormConfig) Check(validators map[string]validation.Validator) error {
	reg := validation.NewRegistry(validators)
	for _, field := range f.Fields {
		if err := reg.Check(field.Spec()); err != nil {
			return fieldError(field.Name, err)
		}
	}
	return nil
}
