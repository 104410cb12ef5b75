package dsl

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

// serializerFunc turns a Go value into a GraphQL value literal.
type serializerFunc func(value interface{}) (*ast.Value, error)

// inputObjectSerializer is the two-phase memoization entry for input object
// types: the entry is inserted before its field serializers are derived so
// recursive input types terminate, and fn is filled in on completion.
type inputObjectSerializer struct {
	fn serializerFunc
}

func (f *Field) serialize(t *ast.Type, value interface{}) (*ast.Value, error) {
	serializer, err := f.serializerForType(t)
	if err != nil {
		return nil, err
	}
	return serializer(value)
}

// serializerForType derives a serializer from the argument's declared type.
// Non-null wrappers are transparent: ast.Type carries non-nullability as a
// flag, so only the list/named distinction matters here.
func (f *Field) serializerForType(t *ast.Type) (serializerFunc, error) {
	if t.NamedType == "" {
		inner, err := f.serializerForType(t.Elem)
		if err != nil {
			return nil, err
		}
		return listSerializer(inner), nil
	}

	def := f.schema.Types[t.NamedType]
	if def == nil {
		return nil, &SchemaLookupError{Name: t.NamedType}
	}

	switch def.Kind {
	case ast.InputObject:
		return f.inputObjectSerializerFor(def)
	case ast.Enum:
		return enumSerializer(def), nil
	case ast.Scalar:
		return scalarSerializer(def.Name), nil
	default:
		return nil, &TypeMismatchError{Expected: "an input type", Got: def.Name}
	}
}

func (f *Field) inputObjectSerializerFor(def *ast.Definition) (serializerFunc, error) {
	if f.serializers == nil {
		f.serializers = map[string]*inputObjectSerializer{}
	}
	if known, ok := f.serializers[def.Name]; ok {
		return func(value interface{}) (*ast.Value, error) {
			return known.fn(value)
		}, nil
	}

	entry := &inputObjectSerializer{}
	f.serializers[def.Name] = entry

	fieldSerializers := make(map[string]serializerFunc, len(def.Fields))
	for _, fieldDef := range def.Fields {
		serializer, err := f.serializerForType(fieldDef.Type)
		if err != nil {
			return nil, err
		}
		fieldSerializers[fieldDef.Name] = serializer
	}

	entry.fn = func(value interface{}) (*ast.Value, error) {
		if value == nil {
			return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
		}
		fields, ok := value.(map[string]interface{})
		if !ok {
			return nil, &TypeMismatchError{Expected: def.Name + " input object", Got: value}
		}
		for name := range fields {
			if _, ok := fieldSerializers[name]; !ok {
				return nil, &UnknownArgumentError{Field: def.Name, Argument: name}
			}
		}
		result := &ast.Value{Kind: ast.ObjectValue}
		// Emitted in declaration order so the printed form is stable; fields
		// absent from the map are omitted.
		for _, fieldDef := range def.Fields {
			fieldValue, ok := fields[fieldDef.Name]
			if !ok {
				continue
			}
			serialized, err := fieldSerializers[fieldDef.Name](fieldValue)
			if err != nil {
				return nil, err
			}
			result.Children = append(result.Children, &ast.ChildValue{
				Name:  fieldDef.Name,
				Value: serialized,
			})
		}
		return result, nil
	}
	return func(value interface{}) (*ast.Value, error) {
		return entry.fn(value)
	}, nil
}

func listSerializer(inner serializerFunc) serializerFunc {
	return func(value interface{}) (*ast.Value, error) {
		if value == nil {
			return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
		}
		v := reflect.ValueOf(value)
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return nil, &TypeMismatchError{Expected: "a list", Got: value}
		}
		result := &ast.Value{Kind: ast.ListValue}
		for i := 0; i < v.Len(); i++ {
			serialized, err := inner(v.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			result.Children = append(result.Children, &ast.ChildValue{Value: serialized})
		}
		return result, nil
	}
}

func enumSerializer(def *ast.Definition) serializerFunc {
	return func(value interface{}) (*ast.Value, error) {
		name, ok := value.(string)
		if !ok {
			return nil, &TypeMismatchError{Expected: def.Name + " enum value", Got: value}
		}
		if def.EnumValues.ForName(name) == nil {
			return nil, &TypeMismatchError{Expected: def.Name + " enum value", Got: name}
		}
		return &ast.Value{Kind: ast.EnumValue, Raw: name}, nil
	}
}

func scalarSerializer(name string) serializerFunc {
	switch name {
	case "Int":
		return serializeInt
	case "Float":
		return serializeFloat
	case "String":
		return serializeString
	case "Boolean":
		return serializeBoolean
	case "ID":
		return serializeID
	default:
		// Custom scalars serialize structurally from their Go representation.
		return serializeLiteral
	}
}

func serializeInt(value interface{}) (*ast.Value, error) {
	if value == nil {
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
	}
	if n, ok := asInt64(value); ok {
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(n, 10)}, nil
	}
	return nil, &TypeMismatchError{Expected: "Int", Got: value}
}

func serializeFloat(value interface{}) (*ast.Value, error) {
	if value == nil {
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
	}
	switch v := value.(type) {
	case float32:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(float64(v), 'g', -1, 64)}, nil
	case float64:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(v, 'g', -1, 64)}, nil
	}
	if n, ok := asInt64(value); ok {
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatInt(n, 10)}, nil
	}
	return nil, &TypeMismatchError{Expected: "Float", Got: value}
}

// serializeString stringifies numeric values the way servers serialize the
// String type, so human(id: 1000) prints as id: "1000".
func serializeString(value interface{}) (*ast.Value, error) {
	if value == nil {
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
	}
	if s, ok := value.(string); ok {
		return &ast.Value{Kind: ast.StringValue, Raw: s}, nil
	}
	if n, ok := asInt64(value); ok {
		return &ast.Value{Kind: ast.StringValue, Raw: strconv.FormatInt(n, 10)}, nil
	}
	switch v := value.(type) {
	case float32:
		return &ast.Value{Kind: ast.StringValue, Raw: strconv.FormatFloat(float64(v), 'g', -1, 64)}, nil
	case float64:
		return &ast.Value{Kind: ast.StringValue, Raw: strconv.FormatFloat(v, 'g', -1, 64)}, nil
	}
	return nil, &TypeMismatchError{Expected: "String", Got: value}
}

func serializeBoolean(value interface{}) (*ast.Value, error) {
	if value == nil {
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
	}
	if b, ok := value.(bool); ok {
		return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(b)}, nil
	}
	return nil, &TypeMismatchError{Expected: "Boolean", Got: value}
}

// serializeID always emits a string literal: numeric ids are stringified the
// way servers serialize the ID type.
func serializeID(value interface{}) (*ast.Value, error) {
	if value == nil {
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
	}
	if s, ok := value.(string); ok {
		return &ast.Value{Kind: ast.StringValue, Raw: s}, nil
	}
	if n, ok := asInt64(value); ok {
		return &ast.Value{Kind: ast.StringValue, Raw: strconv.FormatInt(n, 10)}, nil
	}
	return nil, &TypeMismatchError{Expected: "ID", Got: value}
}

// serializeLiteral maps an arbitrary Go value onto the closest GraphQL value
// kind.
func serializeLiteral(value interface{}) (*ast.Value, error) {
	if value == nil {
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
	}
	switch v := value.(type) {
	case string:
		return &ast.Value{Kind: ast.StringValue, Raw: v}, nil
	case bool:
		return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(v)}, nil
	case float32:
		return serializeFloatLiteral(float64(v))
	case float64:
		return serializeFloatLiteral(v)
	case map[string]interface{}:
		result := &ast.Value{Kind: ast.ObjectValue}
		for _, key := range sortedKeys(v) {
			serialized, err := serializeLiteral(v[key])
			if err != nil {
				return nil, err
			}
			result.Children = append(result.Children, &ast.ChildValue{Name: key, Value: serialized})
		}
		return result, nil
	}
	if n, ok := asInt64(value); ok {
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(n, 10)}, nil
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		result := &ast.Value{Kind: ast.ListValue}
		for i := 0; i < v.Len(); i++ {
			serialized, err := serializeLiteral(v.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			result.Children = append(result.Children, &ast.ChildValue{Value: serialized})
		}
		return result, nil
	}
	if s, ok := value.(fmt.Stringer); ok {
		return &ast.Value{Kind: ast.StringValue, Raw: s.String()}, nil
	}
	return nil, &TypeMismatchError{Expected: "a serializable scalar value", Got: value}
}

func serializeFloatLiteral(v float64) (*ast.Value, error) {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(int64(v), 10)}, nil
	}
	return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(v, 'g', -1, 64)}, nil
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v <= math.MaxInt64 {
			return int64(v), true
		}
	case float32:
		return asInt64(float64(v))
	}
	return 0, false
}

// Insertion order is unavailable on Go maps; sorted order keeps output
// deterministic.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
