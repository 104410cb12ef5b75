package astprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

func parse(t *testing.T, query string) *ast.QueryDocument {
	doc, err := parser.ParseQuery(&ast.Source{Name: "test", Input: query})
	require.NoError(t, err)
	return doc
}

func TestDocument(t *testing.T) {
	for name, tc := range map[string]struct {
		Query    string
		Expected string
	}{
		"Shorthand": {
			Query:    `{ hero { name } }`,
			Expected: "{\n  hero {\n    name\n  }\n}\n",
		},
		"NamedQueryWithVariables": {
			Query:    `query GetHero($ep: Episode!) { hero(episode: $ep) { name } }`,
			Expected: "query GetHero($ep: Episode!) {\n  hero(episode: $ep) {\n    name\n  }\n}\n",
		},
		"Subscription": {
			Query:    `subscription { reviewAdded { stars commentary } }`,
			Expected: "subscription {\n  reviewAdded {\n    stars\n    commentary\n  }\n}\n",
		},
		"Arguments": {
			Query:    `{ human(id: "1000", detailed: true) { name } }`,
			Expected: "{\n  human(id: \"1000\", detailed: true) {\n    name\n  }\n}\n",
		},
		"Fragments": {
			Query:    `{ hero { ...CharacterFields } } fragment CharacterFields on Character { name }`,
			Expected: "{\n  hero {\n    ...CharacterFields\n  }\n}\n\nfragment CharacterFields on Character {\n  name\n}\n",
		},
		"InlineFragment": {
			Query:    `{ hero { ... on Droid { primaryFunction } } }`,
			Expected: "{\n  hero {\n    ... on Droid {\n      primaryFunction\n    }\n  }\n}\n",
		},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.Expected, Document(parse(t, tc.Query)))
		})
	}
}

func TestDocument_RoundTrips(t *testing.T) {
	queries := []string{
		`{ hero { name friends { name appearsIn } } }`,
		`query Luke { luke: human(id: "1000") { name } }`,
		`mutation($review: ReviewInput!) { createReview(episode: JEDI, review: $review) { stars } }`,
	}
	for _, query := range queries {
		printed := Document(parse(t, query))
		reparsed, err := parser.ParseQuery(&ast.Source{Name: "reparsed", Input: printed})
		require.NoError(t, err, "printed form should re-parse: %v", printed)
		assert.Equal(t, printed, Document(reparsed))
	}
}

func TestValue(t *testing.T) {
	doc := parse(t, `{ field(a: 1, b: 2.5, c: "x\ny", d: true, e: null, f: JEDI, g: [1, 2], h: {stars: 5, commentary: "ok"}, i: $var) }`)
	field := doc.Operations[0].SelectionSet[0].(*ast.Field)

	expected := []string{"1", "2.5", `"x\ny"`, "true", "null", "JEDI", "[1, 2]", `{stars: 5, commentary: "ok"}`, "$var"}
	require.Len(t, field.Arguments, len(expected))
	for i, arg := range field.Arguments {
		assert.Equal(t, expected[i], Value(arg.Value))
	}
}
