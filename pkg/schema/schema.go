// Package schema defines the opaque schema-validation contract the
// engine consumes (spec §6) and ships one concrete, intentionally
// simple validator. The spec keeps the real validation library external
// ("an opaque validator + error reporter"); MapSchema is the stand-in a
// caller uses when it has no richer schema library of its own, not a
// general-purpose JSON-schema engine.
package schema

import "fmt"

// Validator is the external contract: validate a full payload, or
// validate a single field on a property set.
type Validator interface {
	// Validate checks payload as a whole, returning the (possibly
	// defaulted) parsed payload on success, or field->message errors.
	Validate(payload map[string]any) (parsed map[string]any, fieldErrors map[string]string)

	// ValidateProperty checks one field in isolation, as the model
	// layer does on a property set (spec §6).
	ValidateProperty(field string, value any) (any, error)
}

// Rule validates and optionally defaults a single field.
type Rule struct {
	Required bool
	Default  any
	Check    func(value any) error
}

// MapSchema is a small field-rule validator: required fields, defaults
// for missing optional fields, and a per-field predicate.
type MapSchema struct {
	Fields map[string]Rule
}

// New constructs a MapSchema from field rules.
func New(fields map[string]Rule) *MapSchema {
	return &MapSchema{Fields: fields}
}

func (s *MapSchema) Validate(payload map[string]any) (map[string]any, map[string]string) {
	parsed := make(map[string]any, len(payload))
	for k, v := range payload {
		parsed[k] = v
	}

	var fieldErrors map[string]string
	fail := func(field, msg string) {
		if fieldErrors == nil {
			fieldErrors = make(map[string]string)
		}
		fieldErrors[field] = msg
	}

	for field, rule := range s.Fields {
		value, present := parsed[field]
		if !present {
			if rule.Required {
				fail(field, "is required")
				continue
			}
			if rule.Default != nil {
				parsed[field] = rule.Default
			}
			continue
		}
		if rule.Check != nil {
			if err := rule.Check(value); err != nil {
				fail(field, err.Error())
			}
		}
	}

	if fieldErrors != nil {
		return nil, fieldErrors
	}
	return parsed, nil
}

func (s *MapSchema) ValidateProperty(field string, value any) (any, error) {
	rule, ok := s.Fields[field]
	if !ok {
		return value, nil
	}
	if rule.Check != nil {
		if err := rule.Check(value); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
	}
	return value, nil
}
