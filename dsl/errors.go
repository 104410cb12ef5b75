package dsl

import "fmt"

// SchemaLookupError indicates a request for a type the schema does not define
// or that cannot be selected from.
type SchemaLookupError struct {
	Name string
}

func (err *SchemaLookupError) Error() string {
	return fmt.Sprintf("type %q not found in the schema", err.Name)
}

// UnknownFieldError indicates a request for a field the type does not define,
// neither verbatim nor in camel case.
type UnknownFieldError struct {
	Type  string
	Field string
}

func (err *UnknownFieldError) Error() string {
	return fmt.Sprintf("field %v does not exist in type %v", err.Field, err.Type)
}

// UnknownArgumentError indicates an argument the field (or input object) does
// not define.
type UnknownArgumentError struct {
	Field    string
	Argument string
}

func (err *UnknownArgumentError) Error() string {
	return fmt.Sprintf("argument %v does not exist in %v", err.Argument, err.Field)
}

// TypeMismatchError indicates a value that cannot be serialized as the
// expected GraphQL type, or a field used where another kind was required.
type TypeMismatchError struct {
	Expected string
	Got      interface{}
}

func (err *TypeMismatchError) Error() string {
	return fmt.Sprintf("expected %v, got %T", err.Expected, err.Got)
}

// RootKindMismatchError indicates an operation built from fields of different
// root types.
type RootKindMismatchError struct {
	Want string
	Got  string
}

func (err *RootKindMismatchError) Error() string {
	return fmt.Sprintf("all fields must share one root type: got %v and %v", err.Want, err.Got)
}
