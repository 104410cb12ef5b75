package introspection

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/gqlgo/gql/transport"
)

// Fetch executes the introspection query over the given transport and builds
// a schema from the result.
func Fetch(ctx context.Context, t transport.Transport) (*ast.Schema, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "introspection", Input: Query})
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse introspection query")
	}

	resp, err := t.Execute(ctx, &transport.Request{Document: doc})
	if err != nil {
		return nil, errors.Wrap(err, "introspection query failed")
	}
	if len(resp.Errors) > 0 {
		return nil, errors.Errorf("introspection query failed: %v", resp.Errors[0].Message)
	}

	data, err := jsoniter.Marshal(resp.Data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal introspection data")
	}
	return BuildClientSchema(data)
}
