package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gqlgo/gql/astprint"
)

// HTTP executes operations by POSTing them to a GraphQL endpoint. The zero
// value plus a URL is a working transport.
type HTTP struct {
	// URL is the GraphQL server endpoint.
	URL string

	// Headers are added to every request.
	Headers http.Header

	// Client is the HTTP client used for requests. If nil, a dedicated client
	// is used.
	Client *http.Client

	// UseFormEncoding sends the request body form-encoded instead of as JSON.
	UseFormEncoding bool

	// Timeout bounds each request when the caller's context carries no
	// deadline of its own.
	Timeout time.Duration

	// Retries is the number of times responses with a retriable status (500,
	// 502, 503, 504) are retried with exponential backoff before the last
	// response is used.
	Retries int

	// Logger, if given, receives a line per retried request.
	Logger logrus.FieldLogger
}

var retriableStatuses = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

const backoffFactor = 100 * time.Millisecond

// Backoff before the given 1-based retry attempt, matching the common
// backoff_factor * 2^(attempt-1) schedule.
func retryBackoff(attempt int) time.Duration {
	return backoffFactor * (1 << (attempt - 1))
}

// Execute POSTs the printed document and variables to the endpoint and
// decodes the response. A response that is not JSON, or is JSON without
// either data or errors, surfaces as an *HTTPError carrying the status.
func (t *HTTP) Execute(ctx context.Context, req *Request) (*Response, error) {
	if t.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}
	}

	body, contentType, err := t.encodeBody(req)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "unable to create request")
		}
		for key, values := range t.Headers {
			for _, value := range values {
				httpReq.Header.Add(key, value)
			}
		}
		httpReq.Header.Set("Content-Type", contentType)

		resp, err = t.client().Do(httpReq)
		if err != nil {
			return nil, errors.Wrap(err, "http request error")
		}
		if !retriableStatuses[resp.StatusCode] || attempt >= t.Retries {
			break
		}
		resp.Body.Close()
		if t.Logger != nil {
			t.Logger.WithFields(logrus.Fields{
				"status":  resp.StatusCode,
				"attempt": attempt + 1,
			}).Warn("retrying graphql request")
		}
		select {
		case <-time.After(retryBackoff(attempt + 1)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "error reading response body")
	}

	var probe map[string]json.RawMessage
	if err := jsoniter.Unmarshal(raw, &probe); err != nil {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: raw}
	}
	if _, hasData := probe["data"]; !hasData {
		if _, hasErrors := probe["errors"]; !hasErrors {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: raw}
		}
	}

	var result Response
	if err := jsoniter.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Reason: "malformed graphql response", Err: err}
	}
	return &result, nil
}

// Close releases the idle connections of the configured Client. When no
// Client is configured it does nothing.
func (t *HTTP) Close() error {
	if t.Client != nil {
		t.Client.CloseIdleConnections()
	}
	return nil
}

func (t *HTTP) encodeBody(req *Request) (body []byte, contentType string, err error) {
	query := astprint.Document(req.Document)

	if t.UseFormEncoding {
		values := url.Values{}
		values.Set("query", query)
		if req.Variables != nil {
			variables, err := jsoniter.Marshal(req.Variables)
			if err != nil {
				return nil, "", errors.Wrap(err, "unable to marshal variables")
			}
			values.Set("variables", string(variables))
		}
		if req.OperationName != "" {
			values.Set("operationName", req.OperationName)
		}
		return []byte(values.Encode()), "application/x-www-form-urlencoded", nil
	}

	payload := struct {
		Query         string                 `json:"query"`
		Variables     map[string]interface{} `json:"variables,omitempty"`
		OperationName string                 `json:"operationName,omitempty"`
	}{
		Query:         query,
		Variables:     req.Variables,
		OperationName: req.OperationName,
	}
	buf, err := jsoniter.Marshal(&payload)
	if err != nil {
		return nil, "", errors.Wrap(err, "unable to marshal request body")
	}
	return buf, "application/json", nil
}

func (t *HTTP) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return defaultHTTPClient
}

var defaultHTTPClient = &http.Client{}
