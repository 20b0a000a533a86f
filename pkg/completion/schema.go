package completion

import (
	"fmt"
	"strings"
)

// Kind is the JSON type a schema field expects.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindNumber
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field describes one property of a JSON object.
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	// Elem constrains array elements when Kind is KindArray.
	Elem *Kind

	// Fields describes nested properties when Kind is KindObject.
	Fields Schema
}

// Schema is the expected shape of a JSON object. Unknown properties are
// allowed; nulls count as absent.
type Schema []Field

// SchemaError lists every mismatch found while validating an object.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "completion object does not match schema: " + strings.Join(e.Problems, "; ")
}

// Validate checks obj against the schema.
func (s Schema) Validate(obj map[string]any) error {
	var problems []string
	s.validate("", obj, &problems)
	if len(problems) > 0 {
		return &SchemaError{Problems: problems}
	}
	return nil
}

func (s Schema) validate(prefix string, obj map[string]any, problems *[]string) {
	for _, f := range s {
		path := prefix + f.Name
		v, ok := obj[f.Name]
		if !ok || v == nil {
			if f.Required {
				*problems = append(*problems, path+" is required")
			}
			continue
		}

		if !f.Kind.matches(v) {
			*problems = append(*problems, fmt.Sprintf("%s must be %s", path, f.Kind))
			continue
		}

		switch f.Kind {
		case KindArray:
			if f.Elem == nil {
				continue
			}
			for i, item := range v.([]any) {
				if !f.Elem.matches(item) {
					*problems = append(*problems, fmt.Sprintf("%s[%d] must be %s", path, i, *f.Elem))
				}
			}
		case KindObject:
			f.Fields.validate(path+".", v.(map[string]any), problems)
		}
	}
}

func (k Kind) matches(v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		_, ok := v.(float64)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}

// Of returns a pointer to k, for Field.Elem.
func Of(k Kind) *Kind {
	return &k
}
