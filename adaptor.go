package gql

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// ScalarParser converts a wire-format scalar value into a domain value.
type ScalarParser interface {
	ParseValue(value interface{}) (interface{}, error)
}

// ScalarParserFunc adapts a function to the ScalarParser interface.
type ScalarParserFunc func(value interface{}) (interface{}, error)

// ParseValue implements ScalarParser.
func (f ScalarParserFunc) ParseValue(value interface{}) (interface{}, error) {
	return f(value)
}

// TypeAdaptor walks result data alongside the schema's types, replacing the
// values of fields whose scalar type has a registered parser. Everything else
// passes through untouched. The traversal is pure: input data is never
// mutated.
type TypeAdaptor struct {
	schema  *ast.Schema
	parsers map[string]ScalarParser
}

// NewTypeAdaptor returns an adaptor applying parsers, keyed by scalar type
// name, to results produced against schema.
func NewTypeAdaptor(schema *ast.Schema, parsers map[string]ScalarParser) *TypeAdaptor {
	return &TypeAdaptor{schema: schema, parsers: parsers}
}

// Apply transforms one result tree. Top-level fields are matched against the
// schema's operation root types. Response keys that match no schema field
// (such as aliases) pass through unchanged.
func (a *TypeAdaptor) Apply(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return nil, nil
	}
	result := make(map[string]interface{}, len(data))
	for key, value := range data {
		fieldDef := a.rootField(key)
		if fieldDef == nil {
			result[key] = value
			continue
		}
		adapted, err := a.value(fieldDef.Type, key, value)
		if err != nil {
			return nil, err
		}
		result[key] = adapted
	}
	return result, nil
}

func (a *TypeAdaptor) rootField(name string) *ast.FieldDefinition {
	for _, root := range []*ast.Definition{a.schema.Query, a.schema.Mutation, a.schema.Subscription} {
		if root == nil {
			continue
		}
		if def := root.Fields.ForName(name); def != nil {
			return def
		}
	}
	return nil
}

func (a *TypeAdaptor) value(t *ast.Type, field string, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if t.NamedType == "" {
		list, ok := value.([]interface{})
		if !ok {
			return value, nil
		}
		result := make([]interface{}, len(list))
		for i, item := range list {
			adapted, err := a.value(t.Elem, field, item)
			if err != nil {
				return nil, err
			}
			result[i] = adapted
		}
		return result, nil
	}

	def := a.schema.Types[t.NamedType]
	if def == nil {
		return value, nil
	}
	switch def.Kind {
	case ast.Scalar:
		parser, ok := a.parsers[def.Name]
		if !ok {
			return value, nil
		}
		parsed, err := parser.ParseValue(value)
		if err != nil {
			return nil, &AdaptorError{Scalar: def.Name, Field: field, Err: err}
		}
		return parsed, nil
	case ast.Object, ast.Interface, ast.Union:
		fields, ok := value.(map[string]interface{})
		if !ok {
			return value, nil
		}
		concrete := a.concreteDefinition(def, fields)
		result := make(map[string]interface{}, len(fields))
		for key, fieldValue := range fields {
			fieldDef := concrete.Fields.ForName(key)
			if fieldDef == nil {
				result[key] = fieldValue
				continue
			}
			adapted, err := a.value(fieldDef.Type, key, fieldValue)
			if err != nil {
				return nil, err
			}
			result[key] = adapted
		}
		return result, nil
	default:
		return value, nil
	}
}

// concreteDefinition resolves interface and union values to their runtime
// object type when the result carries __typename.
func (a *TypeAdaptor) concreteDefinition(def *ast.Definition, fields map[string]interface{}) *ast.Definition {
	if def.Kind == ast.Object {
		return def
	}
	if name, ok := fields["__typename"].(string); ok {
		if concrete := a.schema.Types[name]; concrete != nil {
			return concrete
		}
	}
	return def
}
