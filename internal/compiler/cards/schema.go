package cards

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Card is one schema-typed unit of generated lesson content. Cards are
// immutable once validated; regeneration produces a new Card.
type Card struct {
	Artifact    string         `json:"artifact"`
	Payload     map[string]any `json:"payload"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type FieldKind int

const (
	KindString FieldKind = iota
	KindStringList
	KindObjectList
	KindInt
	KindEnum
)

type FieldSpec struct {
	Kind FieldKind
	// Enum values for KindEnum.
	Enum []string
	// ItemFields/ItemRequired describe elements of a KindObjectList.
	ItemFields   map[string]FieldKind
	ItemRequired []string
}

// CardSchema declares the full field surface of one artifact type. Any
// top-level key not in Fields is invalid-if-present: models leak internal
// fields ("plan", "metalanguage") and those must be rejected, not stored.
type CardSchema struct {
	Name     string
	Fields   map[string]FieldSpec
	Required []string
}

type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"` // missing|unexpected|malformed
	Detail  string `json:"detail,omitempty"`
}

func (e FieldError) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Problem)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Problem, e.Detail)
}

// FormatErrors renders field errors for a repair prompt: precise, one line
// per field, stable order.
func FormatErrors(errs []FieldError) string {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, "- "+e.String())
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// Validate applies the schema to a parsed payload. Pure: no I/O, no mutation.
func Validate(payload map[string]any, schema CardSchema) []FieldError {
	var errs []FieldError

	if payload == nil {
		return []FieldError{{Field: schema.Name, Problem: "malformed", Detail: "payload is not a JSON object"}}
	}

	for key := range payload {
		if _, ok := schema.Fields[key]; !ok {
			errs = append(errs, FieldError{Field: key, Problem: "unexpected", Detail: "field is not part of the " + schema.Name + " schema"})
		}
	}

	for _, key := range schema.Required {
		if _, ok := payload[key]; !ok {
			errs = append(errs, FieldError{Field: key, Problem: "missing"})
		}
	}

	for key, spec := range schema.Fields {
		val, ok := payload[key]
		if !ok {
			continue
		}
		errs = append(errs, validateField(key, val, spec)...)
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Field != errs[j].Field {
			return errs[i].Field < errs[j].Field
		}
		return errs[i].Problem < errs[j].Problem
	})
	return errs
}

func validateField(key string, val any, spec FieldSpec) []FieldError {
	switch spec.Kind {
	case KindString:
		if _, ok := val.(string); !ok {
			return []FieldError{{Field: key, Problem: "malformed", Detail: "expected a string"}}
		}
	case KindEnum:
		s, ok := val.(string)
		if !ok {
			return []FieldError{{Field: key, Problem: "malformed", Detail: "expected a string"}}
		}
		for _, allowed := range spec.Enum {
			if s == allowed {
				return nil
			}
		}
		return []FieldError{{Field: key, Problem: "malformed", Detail: fmt.Sprintf("value %q not in [%s]", s, strings.Join(spec.Enum, ", "))}}
	case KindInt:
		switch n := val.(type) {
		case int:
		case int64:
		case float64:
			if n != float64(int64(n)) {
				return []FieldError{{Field: key, Problem: "malformed", Detail: "expected an integer"}}
			}
		default:
			return []FieldError{{Field: key, Problem: "malformed", Detail: "expected an integer"}}
		}
	case KindStringList:
		list, ok := val.([]any)
		if !ok {
			if _, isStrings := val.([]string); isStrings {
				return nil
			}
			return []FieldError{{Field: key, Problem: "malformed", Detail: "expected a list of strings"}}
		}
		for i, item := range list {
			if _, ok := item.(string); !ok {
				return []FieldError{{Field: key, Problem: "malformed", Detail: fmt.Sprintf("element %d is not a string", i)}}
			}
		}
	case KindObjectList:
		list, ok := val.([]any)
		if !ok {
			return []FieldError{{Field: key, Problem: "malformed", Detail: "expected a list of objects"}}
		}
		var errs []FieldError
		for i, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				errs = append(errs, FieldError{Field: key, Problem: "malformed", Detail: fmt.Sprintf("element %d is not an object", i)})
				continue
			}
			for _, req := range spec.ItemRequired {
				if _, present := obj[req]; !present {
					errs = append(errs, FieldError{Field: key, Problem: "malformed", Detail: fmt.Sprintf("element %d missing %q", i, req)})
				}
			}
			for subKey, subVal := range obj {
				kind, known := spec.ItemFields[subKey]
				if !known {
					continue
				}
				if ferrs := validateField(fmt.Sprintf("%s[%d].%s", key, i, subKey), subVal, FieldSpec{Kind: kind}); len(ferrs) > 0 {
					errs = append(errs, ferrs...)
				}
			}
		}
		return errs
	}
	return nil
}

// JSONSchema derives the strict provider-side json_schema for a card. Strict
// structured outputs require additionalProperties:false and every property
// listed in required, so optional semantics are enforced by Validate, not by
// the provider schema.
func JSONSchema(schema CardSchema) map[string]any {
	properties := map[string]any{}
	required := make([]string, 0, len(schema.Fields))

	keys := make([]string, 0, len(schema.Fields))
	for key := range schema.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		properties[key] = fieldJSONSchema(schema.Fields[key])
		required = append(required, key)
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldJSONSchema(spec FieldSpec) map[string]any {
	switch spec.Kind {
	case KindString:
		return map[string]any{"type": "string"}
	case KindEnum:
		values := make([]any, 0, len(spec.Enum))
		for _, v := range spec.Enum {
			values = append(values, v)
		}
		return map[string]any{"type": "string", "enum": values}
	case KindInt:
		return map[string]any{"type": "integer"}
	case KindStringList:
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case KindObjectList:
		itemProps := map[string]any{}
		itemReq := make([]string, 0, len(spec.ItemFields))
		subKeys := make([]string, 0, len(spec.ItemFields))
		for subKey := range spec.ItemFields {
			subKeys = append(subKeys, subKey)
		}
		sort.Strings(subKeys)
		for _, subKey := range subKeys {
			itemProps[subKey] = fieldJSONSchema(FieldSpec{Kind: spec.ItemFields[subKey]})
			itemReq = append(itemReq, subKey)
		}
		return map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"properties":           itemProps,
				"required":             itemReq,
				"additionalProperties": false,
			},
		}
	}
	return map[string]any{"type": "string"}
}
