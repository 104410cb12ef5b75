// Package dsl builds GraphQL documents programmatically against a schema.
// Lookups are schema-checked as they happen, so misspelled types, fields, and
// arguments fail at construction rather than on the server.
//
//	ds := dsl.NewSchema(schema)
//	query, _ := ds.Query()
//	hero, _ := query.Field("hero")
//	character, _ := ds.Type("Character")
//	name, _ := character.Field("name")
//	doc, _ := dsl.Operation(hero.Select(name))
package dsl

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/gqlgo/gql/astprint"
)

// Schema is the root of the DSL.
type Schema struct {
	schema *ast.Schema
}

// NewSchema wraps a schema for request building. The schema is typically the
// one held by a client, whether provided locally or introspected.
func NewSchema(schema *ast.Schema) *Schema {
	return &Schema{schema: schema}
}

// Type returns the named object or interface type.
func (s *Schema) Type(name string) (*Type, error) {
	def := s.schema.Types[name]
	if def == nil || (def.Kind != ast.Object && def.Kind != ast.Interface) {
		return nil, &SchemaLookupError{Name: name}
	}
	return &Type{schema: s.schema, def: def}, nil
}

// Query returns the schema's query root type.
func (s *Schema) Query() (*Type, error) {
	return s.root(s.schema.Query, "Query")
}

// Mutation returns the schema's mutation root type.
func (s *Schema) Mutation() (*Type, error) {
	return s.root(s.schema.Mutation, "Mutation")
}

// Subscription returns the schema's subscription root type.
func (s *Schema) Subscription() (*Type, error) {
	return s.root(s.schema.Subscription, "Subscription")
}

func (s *Schema) root(def *ast.Definition, name string) (*Type, error) {
	if def == nil {
		return nil, &SchemaLookupError{Name: name}
	}
	return &Type{schema: s.schema, def: def}, nil
}

// Type represents an object or interface type whose fields can be selected.
type Type struct {
	schema *ast.Schema
	def    *ast.Definition
}

// Name returns the type's name.
func (t *Type) Name() string {
	return t.def.Name
}

// Field returns the named field. The name is tried verbatim first, then in
// camel case, so snake_case spellings resolve to their camelCase fields.
func (t *Type) Field(name string) (*Field, error) {
	def := t.def.Fields.ForName(name)
	fieldName := name
	if def == nil {
		fieldName = toCamelCase(name)
		def = t.def.Fields.ForName(fieldName)
	}
	if def == nil {
		return nil, &UnknownFieldError{Type: t.def.Name, Field: name}
	}
	return &Field{
		schema: t.schema,
		parent: t.def,
		def:    def,
		field:  &ast.Field{Name: fieldName},
	}, nil
}

// Field represents one field of a request under construction. Its methods
// return the field itself for chaining.
type Field struct {
	schema *ast.Schema
	parent *ast.Definition
	def    *ast.FieldDefinition
	field  *ast.Field

	serializers map[string]*inputObjectSerializer
}

// Select appends children to the field's selection set. Repeated calls
// accumulate.
func (f *Field) Select(fields ...*Field) *Field {
	for _, child := range fields {
		f.field.SelectionSet = append(f.field.SelectionSet, child.field)
	}
	return f
}

// Alias sets the field's response alias.
func (f *Field) Alias(alias string) *Field {
	f.field.Alias = alias
	return f
}

// Args serializes the given argument values into the field's AST. Arguments
// are checked against the field's definition; repeated calls accumulate. To
// keep the printed request deterministic, arguments are emitted in the order
// the schema declares them.
func (f *Field) Args(args map[string]interface{}) (*Field, error) {
	for name := range args {
		if f.def.Arguments.ForName(name) == nil {
			return nil, &UnknownArgumentError{Field: f.field.Name, Argument: name}
		}
	}
	for _, argDef := range f.def.Arguments {
		value, ok := args[argDef.Name]
		if !ok {
			continue
		}
		serialized, err := f.serialize(argDef.Type, value)
		if err != nil {
			return nil, err
		}
		f.field.Arguments = append(f.field.Arguments, &ast.Argument{
			Name:  argDef.Name,
			Value: serialized,
		})
	}
	return f, nil
}

// AST returns the field's AST node.
func (f *Field) AST() *ast.Field {
	return f.field
}

func (f *Field) String() string {
	return astprint.Field(f.field)
}

// Operation assembles root fields into a single-operation document. Every
// field must be selected from the same operation root type of its schema.
func Operation(fields ...*Field) (*ast.QueryDocument, error) {
	if len(fields) == 0 {
		return nil, &TypeMismatchError{Expected: "at least one root field", Got: nil}
	}

	first := fields[0]
	op, err := first.rootKind()
	if err != nil {
		return nil, err
	}

	var selections ast.SelectionSet
	for _, field := range fields {
		kind, err := field.rootKind()
		if err != nil {
			return nil, err
		}
		if kind != op {
			return nil, &RootKindMismatchError{Want: string(op), Got: string(kind)}
		}
		selections = append(selections, field.field)
	}

	return &ast.QueryDocument{
		Operations: ast.OperationList{{
			Operation:    op,
			SelectionSet: selections,
		}},
	}, nil
}

func (f *Field) rootKind() (ast.Operation, error) {
	switch {
	case f.schema.Query != nil && f.parent == f.schema.Query:
		return ast.Query, nil
	case f.schema.Mutation != nil && f.parent == f.schema.Mutation:
		return ast.Mutation, nil
	case f.schema.Subscription != nil && f.parent == f.schema.Subscription:
		return ast.Subscription, nil
	}
	return "", &TypeMismatchError{Expected: "a field of an operation root type", Got: f.parent.Name + "." + f.field.Name}
}

// toCamelCase converts snake_case to camelCase, leaving other spellings
// untouched.
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return sb.String()
}
