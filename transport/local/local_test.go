package local

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/gqlgo/gql/transport"
)

const testTypeDef = `
enum Episode {
  NEWHOPE
  EMPIRE
  JEDI
}

type Character {
  id: String!
  name: String
  friends: [Character]
}

type Review {
  episode: Episode
  stars: Int!
  commentary: String
}

type Query {
  hero(episode: Episode): Character
  characters(ids: [ID]): [Character]
}

type Mutation {
  createReview(episode: Episode, stars: Int!): Review
}

type Subscription {
  reviewAdded(episode: Episode): Review
}
`

var characters = map[string]map[string]interface{}{
	"1000": {"id": "1000", "name": "Luke Skywalker"},
	"1001": {"id": "1001", "name": "Darth Vader"},
	"2001": {"id": "2001", "name": "R2-D2", "friends": []interface{}{
		map[string]interface{}{"id": "1000", "name": "Luke Skywalker"},
	}},
}

func testTransport(t *testing.T) *Transport {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "test", Input: testTypeDef})
	require.NoError(t, err)

	return New(schema, Resolvers{
		"Query.hero": func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
			if args["episode"] == "EMPIRE" {
				return characters["1000"], nil
			}
			return characters["2001"], nil
		},
		"Query.characters": func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
			ids, _ := args["ids"].([]interface{})
			result := make([]interface{}, 0, len(ids))
			for _, id := range ids {
				if c, ok := characters[id.(string)]; ok {
					result = append(result, c)
				}
			}
			return result, nil
		},
		"Mutation.createReview": func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{
				"episode": args["episode"],
				"stars":   args["stars"],
			}, nil
		},
	})
}

func parseQuery(t *testing.T, query string) *ast.QueryDocument {
	doc, err := parser.ParseQuery(&ast.Source{Name: "test", Input: query})
	require.NoError(t, err)
	return doc
}

func TestExecute(t *testing.T) {
	tr := testTransport(t)

	resp, err := tr.Execute(context.Background(), &transport.Request{
		Document: parseQuery(t, `{ hero { name } }`),
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, map[string]interface{}{"hero": map[string]interface{}{"name": "R2-D2"}}, resp.Data)
}

func TestExecute_Arguments(t *testing.T) {
	tr := testTransport(t)

	resp, err := tr.Execute(context.Background(), &transport.Request{
		Document: parseQuery(t, `{ hero(episode: EMPIRE) { name } }`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Luke Skywalker", resp.Data["hero"].(map[string]interface{})["name"])
}

func TestExecute_Variables(t *testing.T) {
	tr := testTransport(t)

	resp, err := tr.Execute(context.Background(), &transport.Request{
		Document:  parseQuery(t, `query Hero($ep: Episode) { hero(episode: $ep) { name } }`),
		Variables: map[string]interface{}{"ep": "EMPIRE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Luke Skywalker", resp.Data["hero"].(map[string]interface{})["name"])
}

func TestExecute_NestedSelectionsAndAliases(t *testing.T) {
	tr := testTransport(t)

	resp, err := tr.Execute(context.Background(), &transport.Request{
		Document: parseQuery(t, `{ droid: hero { name friends { name } } }`),
	})
	require.NoError(t, err)

	droid := resp.Data["droid"].(map[string]interface{})
	assert.Equal(t, "R2-D2", droid["name"])
	friends := droid["friends"].([]interface{})
	require.Len(t, friends, 1)
	assert.Equal(t, "Luke Skywalker", friends[0].(map[string]interface{})["name"])
}

func TestExecute_ListArguments(t *testing.T) {
	tr := testTransport(t)

	resp, err := tr.Execute(context.Background(), &transport.Request{
		Document: parseQuery(t, `{ characters(ids: ["1000", "1001"]) { name } }`),
	})
	require.NoError(t, err)

	list := resp.Data["characters"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, "Luke Skywalker", list[0].(map[string]interface{})["name"])
	assert.Equal(t, "Darth Vader", list[1].(map[string]interface{})["name"])
}

func TestExecute_Mutation(t *testing.T) {
	tr := testTransport(t)

	resp, err := tr.Execute(context.Background(), &transport.Request{
		Document: parseQuery(t, `mutation { createReview(episode: JEDI, stars: 5) { episode stars } }`),
	})
	require.NoError(t, err)
	review := resp.Data["createReview"].(map[string]interface{})
	assert.Equal(t, "JEDI", review["episode"])
	assert.EqualValues(t, 5, review["stars"])
}

func TestExecute_ResolverErrorsAreCollected(t *testing.T) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "test", Input: testTypeDef})
	require.NoError(t, err)
	tr := New(schema, Resolvers{
		"Query.hero": func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
			return nil, context.DeadlineExceeded
		},
	})

	resp, err := tr.Execute(context.Background(), &transport.Request{
		Document: parseQuery(t, `{ hero { name } }`),
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Data["hero"])
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, []interface{}{"hero"}, resp.Errors[0].Path)
}

func TestExecute_OperationSelection(t *testing.T) {
	tr := testTransport(t)
	doc := parseQuery(t, `query A { hero { name } } query B { hero(episode: EMPIRE) { name } }`)

	resp, err := tr.Execute(context.Background(), &transport.Request{Document: doc, OperationName: "B"})
	require.NoError(t, err)
	assert.Equal(t, "Luke Skywalker", resp.Data["hero"].(map[string]interface{})["name"])

	_, err = tr.Execute(context.Background(), &transport.Request{Document: doc})
	assert.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "test", Input: testTypeDef})
	require.NoError(t, err)

	events := make(chan interface{}, 2)
	events <- map[string]interface{}{"stars": 3, "commentary": "Was expecting more stuff"}
	events <- map[string]interface{}{"stars": 5, "commentary": "This is a great movie!"}
	close(events)

	tr := New(schema, Resolvers{
		"Subscription.reviewAdded": func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
			return (<-chan interface{})(events), nil
		},
	})

	stream, err := tr.Subscribe(context.Background(), &transport.Request{
		Document: parseQuery(t, `subscription { reviewAdded { stars commentary } }`),
	})
	require.NoError(t, err)

	resp, err := stream.Recv(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Data["reviewAdded"].(map[string]interface{})["stars"])

	resp, err = stream.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "This is a great movie!", resp.Data["reviewAdded"].(map[string]interface{})["commentary"])

	_, err = stream.Recv(context.Background())
	assert.Equal(t, io.EOF, err)
}
