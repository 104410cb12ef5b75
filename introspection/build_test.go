package introspection

import (
	"context"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/gqlgo/gql/astprint"
	"github.com/gqlgo/gql/transport"
)

const introspectionResult = `{
  "__schema": {
    "queryType": {"name": "Query"},
    "mutationType": null,
    "subscriptionType": null,
    "types": [
      {
        "kind": "OBJECT",
        "name": "Query",
        "fields": [
          {"name": "hello", "args": [], "type": {"kind": "SCALAR", "name": "String", "ofType": null}},
          {
            "name": "user",
            "args": [{"name": "id", "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID", "ofType": null}}, "defaultValue": null}],
            "type": {"kind": "OBJECT", "name": "User", "ofType": null}
          },
          {
            "name": "users",
            "args": [{"name": "filter", "type": {"kind": "INPUT_OBJECT", "name": "UserFilter", "ofType": null}, "defaultValue": null}],
            "type": {"kind": "LIST", "name": null, "ofType": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "OBJECT", "name": "User", "ofType": null}}}
          }
        ],
        "inputFields": null,
        "interfaces": [],
        "enumValues": null,
        "possibleTypes": null
      },
      {
        "kind": "OBJECT",
        "name": "User",
        "fields": [
          {"name": "id", "args": [], "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID", "ofType": null}}},
          {"name": "name", "args": [], "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "String", "ofType": null}}},
          {"name": "signedUpAt", "args": [], "type": {"kind": "SCALAR", "name": "DateTime", "ofType": null}},
          {"name": "role", "args": [], "type": {"kind": "ENUM", "name": "Role", "ofType": null}}
        ],
        "inputFields": null,
        "interfaces": [{"kind": "INTERFACE", "name": "Node", "ofType": null}],
        "enumValues": null,
        "possibleTypes": null
      },
      {
        "kind": "INTERFACE",
        "name": "Node",
        "fields": [
          {"name": "id", "args": [], "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID", "ofType": null}}}
        ],
        "inputFields": null,
        "interfaces": [],
        "enumValues": null,
        "possibleTypes": [{"kind": "OBJECT", "name": "User", "ofType": null}]
      },
      {
        "kind": "ENUM",
        "name": "Role",
        "fields": null,
        "inputFields": null,
        "interfaces": null,
        "enumValues": [{"name": "ADMIN"}, {"name": "MEMBER"}],
        "possibleTypes": null
      },
      {
        "kind": "INPUT_OBJECT",
        "name": "UserFilter",
        "fields": null,
        "inputFields": [
          {"name": "role", "type": {"kind": "ENUM", "name": "Role", "ofType": null}, "defaultValue": null},
          {"name": "limit", "type": {"kind": "SCALAR", "name": "Int", "ofType": null}, "defaultValue": "10"}
        ],
        "interfaces": null,
        "enumValues": null,
        "possibleTypes": null
      },
      {
        "kind": "SCALAR",
        "name": "DateTime",
        "fields": null,
        "inputFields": null,
        "interfaces": null,
        "enumValues": null,
        "possibleTypes": null
      },
      {"kind": "SCALAR", "name": "String", "fields": null, "inputFields": null, "interfaces": null, "enumValues": null, "possibleTypes": null},
      {"kind": "SCALAR", "name": "ID", "fields": null, "inputFields": null, "interfaces": null, "enumValues": null, "possibleTypes": null},
      {"kind": "OBJECT", "name": "__Schema", "fields": [], "inputFields": null, "interfaces": [], "enumValues": null, "possibleTypes": null}
    ],
    "directives": []
  }
}`

func TestBuildClientSchema(t *testing.T) {
	schema, err := BuildClientSchema([]byte(introspectionResult))
	require.NoError(t, err)

	require.NotNil(t, schema.Query)
	assert.Equal(t, "Query", schema.Query.Name)
	assert.Nil(t, schema.Mutation)

	user := schema.Types["User"]
	require.NotNil(t, user)
	assert.Equal(t, ast.Object, user.Kind)
	assert.Equal(t, []string{"Node"}, user.Interfaces)
	assert.NotNil(t, user.Fields.ForName("signedUpAt"))

	role := schema.Types["Role"]
	require.NotNil(t, role)
	assert.NotNil(t, role.EnumValues.ForName("ADMIN"))

	filter := schema.Types["UserFilter"]
	require.NotNil(t, filter)
	limit := filter.Fields.ForName("limit")
	require.NotNil(t, limit)
	require.NotNil(t, limit.DefaultValue)
	assert.Equal(t, "10", limit.DefaultValue.Raw)

	assert.NotNil(t, schema.Types["DateTime"])

	doc, err := parser.ParseQuery(&ast.Source{Name: "test", Input: `{ user(id: "1") { name role signedUpAt } }`})
	require.NoError(t, err)
	assert.Empty(t, validator.Validate(schema, doc))
}

func TestBuildClientSchema_WrappedInData(t *testing.T) {
	schema, err := BuildClientSchema([]byte(`{"data": ` + introspectionResult + `}`))
	require.NoError(t, err)
	assert.NotNil(t, schema.Query)
}

func TestBuildClientSchema_Malformed(t *testing.T) {
	_, err := BuildClientSchema([]byte(`BLAHBLAH`))
	assert.Error(t, err)

	_, err = BuildClientSchema([]byte(`{"foo": 1}`))
	assert.Error(t, err)
}

// introspectionTransport answers any document containing __schema with the
// canned introspection result.
type introspectionTransport struct {
	requests int
}

func (t *introspectionTransport) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	t.requests++
	query := astprint.Document(req.Document)
	if !strings.Contains(query, "__schema") {
		return &transport.Response{Errors: transport.ErrorList{{Message: "unexpected query"}}}, nil
	}
	var data map[string]interface{}
	if err := jsoniter.Unmarshal([]byte(introspectionResult), &data); err != nil {
		return nil, err
	}
	return &transport.Response{Data: data}, nil
}

func (t *introspectionTransport) Close() error {
	return nil
}

func TestFetch(t *testing.T) {
	tr := &introspectionTransport{}
	schema, err := Fetch(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.requests)
	require.NotNil(t, schema.Query)
	assert.NotNil(t, schema.Types["User"])
}
