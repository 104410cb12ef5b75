package gql

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/gqlgo/gql/transport"
)

// ConfigError indicates incompatible client construction arguments.
type ConfigError string

func (err ConfigError) Error() string {
	return string(err)
}

// SyntaxError indicates a query or type definition that could not be parsed,
// or a validation attempt without a schema to validate against.
type SyntaxError struct {
	Message string
	Err     error
}

func (err *SyntaxError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%v: %v", err.Message, err.Err)
	}
	return err.Message
}

func (err *SyntaxError) Unwrap() error {
	return err.Err
}

// ValidationError indicates that schema validation of an operation failed. It
// carries every validation error, first one foremost.
type ValidationError struct {
	Errors gqlerror.List
}

func (err *ValidationError) Error() string {
	if len(err.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + err.Errors[0].Message
}

// ServerError indicates that a unary result carried errors.
type ServerError struct {
	Errors transport.ErrorList
}

func (err *ServerError) Error() string {
	if len(err.Errors) == 0 {
		return "the server returned errors"
	}
	return "the server returned an error: " + err.Errors[0].Message
}

// RetryError indicates that every attempt at an operation failed. It carries
// the error of the last attempt.
type RetryError struct {
	Attempts int
	LastErr  error
}

func (err *RetryError) Error() string {
	return fmt.Sprintf("failed %v retries: %v", err.Attempts, err.LastErr)
}

func (err *RetryError) Unwrap() error {
	return err.LastErr
}

// AdaptorError indicates that a custom scalar parser failed on a result
// value.
type AdaptorError struct {
	Scalar string
	Field  string
	Err    error
}

func (err *AdaptorError) Error() string {
	return fmt.Sprintf("unable to parse %v value for field %v: %v", err.Scalar, err.Field, err.Err)
}

func (err *AdaptorError) Unwrap() error {
	return err.Err
}
