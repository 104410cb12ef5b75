// Package local executes GraphQL documents in-process against a schema and a
// resolver registry. It backs clients constructed with a schema but no
// network transport, and makes subscriptions testable without a server.
package local

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/gqlgo/gql/transport"
)

// ResolverFunc resolves one field. source is the value produced by the parent
// resolver (nil at the root), args are the field's coerced arguments. A
// subscription root resolver may return a receive-only channel, whose values
// become the subscription's events.
type ResolverFunc func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error)

// Resolvers maps "Type.field" paths to resolver functions. Fields without a
// resolver are looked up on the parent's map value by name.
type Resolvers map[string]ResolverFunc

// Transport executes documents against a held schema.
type Transport struct {
	schema    *ast.Schema
	resolvers Resolvers
}

// New returns a transport executing against schema with the given resolvers.
func New(schema *ast.Schema, resolvers Resolvers) *Transport {
	return &Transport{schema: schema, resolvers: resolvers}
}

// Connect is a no-op; the transport has no connection to establish.
func (t *Transport) Connect(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (t *Transport) Close() error {
	return nil
}

// Execute runs the requested operation synchronously. Field resolution errors
// are collected into the result's error list rather than failing the call.
func (t *Transport) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	op, err := t.operation(req)
	if err != nil {
		return nil, err
	}
	rootDef, err := t.rootDefinition(op)
	if err != nil {
		return nil, err
	}

	exec := &execution{
		schema:    t.schema,
		doc:       req.Document,
		resolvers: t.resolvers,
		variables: req.Variables,
	}
	data := exec.selectionSet(ctx, rootDef, nil, op.SelectionSet, nil)
	return &transport.Response{Data: data, Errors: exec.errs}, nil
}

// Subscribe resolves the subscription's root field and streams the events it
// produces. A resolver returning a channel yields one result per value until
// the channel closes; any other value yields a single result.
func (t *Transport) Subscribe(ctx context.Context, req *transport.Request) (transport.Stream, error) {
	op, err := t.operation(req)
	if err != nil {
		return nil, err
	}
	if op.Operation != ast.Subscription {
		return nil, fmt.Errorf("%v operations cannot be subscribed to", op.Operation)
	}
	rootDef, err := t.rootDefinition(op)
	if err != nil {
		return nil, err
	}

	var field *ast.Field
	for _, sel := range op.SelectionSet {
		if f, ok := sel.(*ast.Field); ok {
			field = f
			break
		}
	}
	if field == nil {
		return nil, fmt.Errorf("subscription has no root field")
	}

	exec := &execution{
		schema:    t.schema,
		doc:       req.Document,
		resolvers: t.resolvers,
		variables: req.Variables,
	}
	fieldDef := rootDef.Fields.ForName(field.Name)
	if fieldDef == nil {
		return nil, fmt.Errorf("unknown subscription field: %v", field.Name)
	}

	source, err := exec.resolve(ctx, rootDef, nil, field, fieldDef)
	if err != nil {
		return nil, err
	}

	s := &stream{}
	alias := field.Alias
	if alias == "" {
		alias = field.Name
	}
	shape := func(ctx context.Context, value interface{}) *transport.Response {
		shaped := exec.fieldValue(ctx, fieldDef.Type, value, field.SelectionSet, ast.Path{ast.PathName(alias)})
		resp := &transport.Response{Data: map[string]interface{}{alias: shaped}}
		if len(exec.errs) > 0 {
			resp.Errors = exec.errs
			exec.errs = nil
		}
		return resp
	}

	if events, ok := source.(<-chan interface{}); ok {
		s.events = events
		s.shape = shape
		return s, nil
	}
	if events, ok := source.(chan interface{}); ok {
		s.events = events
		s.shape = shape
		return s, nil
	}
	s.single = shape(ctx, source)
	return s, nil
}

func (t *Transport) operation(req *transport.Request) (*ast.OperationDefinition, error) {
	if req.OperationName != "" {
		if op := req.Document.Operations.ForName(req.OperationName); op != nil {
			return op, nil
		}
		return nil, fmt.Errorf("operation %q not found", req.OperationName)
	}
	if len(req.Document.Operations) != 1 {
		return nil, fmt.Errorf("an operation name is required for documents with %v operations", len(req.Document.Operations))
	}
	return req.Document.Operations[0], nil
}

func (t *Transport) rootDefinition(op *ast.OperationDefinition) (*ast.Definition, error) {
	var def *ast.Definition
	switch op.Operation {
	case ast.Query:
		def = t.schema.Query
	case ast.Mutation:
		def = t.schema.Mutation
	case ast.Subscription:
		def = t.schema.Subscription
	}
	if def == nil {
		return nil, fmt.Errorf("the schema does not support %v operations", op.Operation)
	}
	return def, nil
}

type execution struct {
	schema    *ast.Schema
	doc       *ast.QueryDocument
	resolvers Resolvers
	variables map[string]interface{}
	errs      transport.ErrorList
}

func (e *execution) selectionSet(ctx context.Context, def *ast.Definition, source interface{}, selections ast.SelectionSet, path ast.Path) map[string]interface{} {
	result := map[string]interface{}{}
	for _, sel := range e.flatten(def, selections) {
		field := sel
		alias := field.Alias
		if alias == "" {
			alias = field.Name
		}
		fieldPath := append(append(ast.Path{}, path...), ast.PathName(alias))

		if field.Name == "__typename" {
			result[alias] = e.typeName(def, source)
			continue
		}

		fieldDef := def.Fields.ForName(field.Name)
		if fieldDef == nil {
			e.addError(fieldPath, fmt.Errorf("unknown field: %v", field.Name))
			result[alias] = nil
			continue
		}

		value, err := e.resolve(ctx, def, source, field, fieldDef)
		if err != nil {
			e.addError(fieldPath, err)
			result[alias] = nil
			continue
		}
		result[alias] = e.fieldValue(ctx, fieldDef.Type, value, field.SelectionSet, fieldPath)
	}
	return result
}

// flatten expands fragment spreads and inline fragments whose type condition
// matches the definition.
func (e *execution) flatten(def *ast.Definition, selections ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.FragmentSpread:
			if frag := e.doc.Fragments.ForName(s.Name); frag != nil && e.conditionMatches(def, frag.TypeCondition) {
				fields = append(fields, e.flatten(def, frag.SelectionSet)...)
			}
		case *ast.InlineFragment:
			if e.conditionMatches(def, s.TypeCondition) {
				fields = append(fields, e.flatten(def, s.SelectionSet)...)
			}
		}
	}
	return fields
}

func (e *execution) conditionMatches(def *ast.Definition, condition string) bool {
	if condition == "" || condition == def.Name {
		return true
	}
	for _, iface := range def.Interfaces {
		if iface == condition {
			return true
		}
	}
	return false
}

func (e *execution) resolve(ctx context.Context, def *ast.Definition, source interface{}, field *ast.Field, fieldDef *ast.FieldDefinition) (interface{}, error) {
	args := e.arguments(field, fieldDef)
	if resolver, ok := e.resolvers[def.Name+"."+field.Name]; ok {
		return resolver(ctx, source, args)
	}
	if m, ok := source.(map[string]interface{}); ok {
		return m[field.Name], nil
	}
	return nil, nil
}

func (e *execution) arguments(field *ast.Field, fieldDef *ast.FieldDefinition) map[string]interface{} {
	args := map[string]interface{}{}
	for _, arg := range field.Arguments {
		args[arg.Name] = e.value(arg.Value)
	}
	for _, argDef := range fieldDef.Arguments {
		if _, ok := args[argDef.Name]; !ok && argDef.DefaultValue != nil {
			args[argDef.Name] = e.value(argDef.DefaultValue)
		}
	}
	return args
}

func (e *execution) value(v *ast.Value) interface{} {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case ast.Variable:
		return e.variables[v.Raw]
	case ast.IntValue:
		n, _ := strconv.ParseInt(v.Raw, 10, 64)
		return n
	case ast.FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw
	case ast.BooleanValue:
		return v.Raw == "true"
	case ast.NullValue:
		return nil
	case ast.ListValue:
		list := make([]interface{}, 0, len(v.Children))
		for _, child := range v.Children {
			list = append(list, e.value(child.Value))
		}
		return list
	case ast.ObjectValue:
		obj := map[string]interface{}{}
		for _, child := range v.Children {
			obj[child.Name] = e.value(child.Value)
		}
		return obj
	default:
		return v.Raw
	}
}

// fieldValue shapes a resolved value according to the field's type, recursing
// through lists and composite selection sets.
func (e *execution) fieldValue(ctx context.Context, t *ast.Type, value interface{}, selections ast.SelectionSet, path ast.Path) interface{} {
	if value == nil {
		return nil
	}
	if t.NamedType == "" {
		list, ok := value.([]interface{})
		if !ok {
			e.addError(path, fmt.Errorf("expected a list value"))
			return nil
		}
		result := make([]interface{}, len(list))
		for i, item := range list {
			itemPath := append(append(ast.Path{}, path...), ast.PathIndex(i))
			result[i] = e.fieldValue(ctx, t.Elem, item, selections, itemPath)
		}
		return result
	}

	def := e.schema.Types[t.NamedType]
	if def == nil {
		return value
	}
	switch def.Kind {
	case ast.Object, ast.Interface, ast.Union:
		concrete := e.concreteDefinition(def, value)
		return e.selectionSet(ctx, concrete, value, selections, path)
	default:
		return value
	}
}

// concreteDefinition picks the runtime object type for interface and union
// values, keyed by a __typename entry in the value.
func (e *execution) concreteDefinition(def *ast.Definition, value interface{}) *ast.Definition {
	if def.Kind == ast.Object {
		return def
	}
	if m, ok := value.(map[string]interface{}); ok {
		if name, ok := m["__typename"].(string); ok {
			if concrete := e.schema.Types[name]; concrete != nil {
				return concrete
			}
		}
	}
	return def
}

func (e *execution) typeName(def *ast.Definition, source interface{}) string {
	if m, ok := source.(map[string]interface{}); ok {
		if name, ok := m["__typename"].(string); ok {
			return name
		}
	}
	return def.Name
}

func (e *execution) addError(path ast.Path, err error) {
	entry := &transport.Error{Message: err.Error()}
	for _, p := range path {
		switch p := p.(type) {
		case ast.PathName:
			entry.Path = append(entry.Path, string(p))
		case ast.PathIndex:
			entry.Path = append(entry.Path, int(p))
		}
	}
	e.errs = append(e.errs, entry)
}

// stream adapts a resolver's output to the transport.Stream interface.
type stream struct {
	mu     sync.Mutex
	single *transport.Response
	events <-chan interface{}
	shape  func(ctx context.Context, value interface{}) *transport.Response
	done   bool
}

func (s *stream) Recv(ctx context.Context) (*transport.Response, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, io.EOF
	}
	if s.single != nil {
		resp := s.single
		s.single = nil
		s.done = true
		s.mu.Unlock()
		return resp, nil
	}
	events := s.events
	s.mu.Unlock()

	select {
	case value, ok := <-events:
		if !ok {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return nil, io.EOF
		}
		return s.shape(ctx, value), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	return nil
}
