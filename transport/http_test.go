package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

func parseQuery(t *testing.T, query string) *ast.QueryDocument {
	doc, err := parser.ParseQuery(&ast.Source{Name: "test", Input: query})
	require.NoError(t, err)
	return doc
}

func TestHTTP_Execute(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("Authorization"))

		var body struct {
			Query     string                 `json:"query"`
			Variables map[string]interface{} `json:"variables"`
		}
		require.NoError(t, jsoniter.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, "hello")
		assert.Equal(t, map[string]interface{}{"name": "alice"}, body.Variables)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"hello":"alice"}}`))
	}))
	defer ts.Close()

	tr := &HTTP{
		URL:     ts.URL,
		Headers: http.Header{"Authorization": []string{"secret"}},
	}
	resp, err := tr.Execute(context.Background(), &Request{
		Document:  parseQuery(t, `query($name: String!) { hello(name: $name) }`),
		Variables: map[string]interface{}{"name": "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"hello": "alice"}, resp.Data)
	assert.Empty(t, resp.Errors)
}

func TestHTTP_ExecuteFormEncoded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("query"), "hello")
		assert.JSONEq(t, `{"name": "alice"}`, r.PostForm.Get("variables"))
		w.Write([]byte(`{"data":{"hello":"alice"}}`))
	}))
	defer ts.Close()

	tr := &HTTP{URL: ts.URL, UseFormEncoding: true}
	resp, err := tr.Execute(context.Background(), &Request{
		Document:  parseQuery(t, `{ hello }`),
		Variables: map[string]interface{}{"name": "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Data["hello"])
}

func TestHTTP_ExecuteServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"no such field","path":["hello"]}]}`))
	}))
	defer ts.Close()

	tr := &HTTP{URL: ts.URL}
	resp, err := tr.Execute(context.Background(), &Request{Document: parseQuery(t, `{ hello }`)})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "no such field", resp.Errors[0].Message)
	assert.Equal(t, []interface{}{"hello"}, resp.Errors[0].Path)
}

func TestHTTP_ExecuteNonGraphQLResponses(t *testing.T) {
	for name, tc := range map[string]struct {
		Status int
		Body   string
	}{
		"NotJSON":           {Status: http.StatusNotFound, Body: "not found"},
		"MissingBothFields": {Status: http.StatusOK, Body: `{"foo": 1}`},
		"JSONArray":         {Status: http.StatusOK, Body: `[1, 2]`},
	} {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.Status)
				w.Write([]byte(tc.Body))
			}))
			defer ts.Close()

			tr := &HTTP{URL: ts.URL}
			_, err := tr.Execute(context.Background(), &Request{Document: parseQuery(t, `{ hello }`)})
			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tc.Status, httpErr.StatusCode)
		})
	}
}

func TestHTTP_RetriesServerErrors(t *testing.T) {
	var requests atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":{"hello":"world"}}`))
	}))
	defer ts.Close()

	tr := &HTTP{URL: ts.URL, Retries: 3}
	resp, err := tr.Execute(context.Background(), &Request{Document: parseQuery(t, `{ hello }`)})
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Data["hello"])
	assert.EqualValues(t, 3, requests.Load())
}

func TestHTTP_RetriesExhausted(t *testing.T) {
	var requests atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	tr := &HTTP{URL: ts.URL, Retries: 2}
	_, err := tr.Execute(context.Background(), &Request{Document: parseQuery(t, `{ hello }`)})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.EqualValues(t, 3, requests.Load())
}

func TestHTTP_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	tr := &HTTP{URL: ts.URL, Timeout: 50 * time.Millisecond}
	_, err := tr.Execute(context.Background(), &Request{Document: parseQuery(t, `{ hello }`)})
	assert.Error(t, err)
}
