// Package gql is a GraphQL client: it submits queries, mutations, and
// subscriptions over pluggable transports, validates operations locally when
// a schema is available, and post-processes results through custom scalar
// parsers.
package gql

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Parse parses a GraphQL request into a document that can be executed or
// subscribed to.
func Parse(query string) (*ast.QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "request", Input: query})
	if err != nil {
		return nil, &SyntaxError{Message: "unable to parse request", Err: err}
	}
	return doc, nil
}

// MustParse is like Parse but panics on failure. It is intended for requests
// known at compile time.
func MustParse(query string) *ast.QueryDocument {
	doc, err := Parse(query)
	if err != nil {
		panic(err)
	}
	return doc
}
