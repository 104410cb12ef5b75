package gql

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/gqlgo/gql/introspection"
	"github.com/gqlgo/gql/transport"
	"github.com/gqlgo/gql/transport/local"
)

// Config defines how a Client acquires its schema and transport. At most one
// of Schema, Introspection, and TypeDef may be set.
type Config struct {
	// Schema is an already-loaded schema.
	Schema *ast.Schema

	// Introspection is the JSON result of the standard introspection query,
	// converted into a schema at construction.
	Introspection json.RawMessage

	// TypeDef is a schema definition in SDL form, parsed at construction.
	TypeDef string

	// Transport executes operations. Required unless a schema input is given,
	// in which case a local transport executing against the schema is
	// synthesized.
	Transport transport.Transport

	// FetchSchemaFromTransport issues an introspection query when a session
	// is opened and installs the resulting schema. Incompatible with the
	// schema inputs above.
	FetchSchemaFromTransport bool

	// CustomScalars maps scalar type names to parsers applied to result data.
	CustomScalars map[string]ScalarParser

	// Resolvers backs the synthesized local transport. Ignored when Transport
	// is given.
	Resolvers local.Resolvers

	// Retries is the number of execution attempts made before giving up with
	// a RetryError. Zero means a single attempt whose error passes through
	// unwrapped.
	Retries int

	// Logger, if given, receives retry warnings and session diagnostics.
	Logger logrus.FieldLogger
}

// Client orchestrates operation execution: local validation when a schema is
// known, transport delegation with retries, and scalar adaption of results.
type Client struct {
	transport   transport.Transport
	fetchSchema bool
	parsers     map[string]ScalarParser
	retries     int
	logger      logrus.FieldLogger

	mu      sync.RWMutex
	schema  *ast.Schema
	adaptor *TypeAdaptor
}

// NewClient validates the configuration and builds a client from it.
func NewClient(cfg *Config) (*Client, error) {
	schemaInputs := 0
	if cfg.Schema != nil {
		schemaInputs++
	}
	if len(cfg.Introspection) > 0 {
		schemaInputs++
	}
	if cfg.TypeDef != "" {
		schemaInputs++
	}
	if schemaInputs > 1 {
		return nil, ConfigError("schema, introspection, and type definition are mutually exclusive")
	}
	if cfg.FetchSchemaFromTransport {
		if schemaInputs > 0 {
			return nil, ConfigError("cannot fetch the schema from the transport if one is already provided")
		}
		if cfg.Transport == nil {
			return nil, ConfigError("fetching the schema requires a transport")
		}
	}

	schema := cfg.Schema
	if len(cfg.Introspection) > 0 {
		built, err := introspection.BuildClientSchema(cfg.Introspection)
		if err != nil {
			return nil, err
		}
		schema = built
	} else if cfg.TypeDef != "" {
		built, err := gqlparser.LoadSchema(&ast.Source{Name: "type definition", Input: cfg.TypeDef})
		if err != nil {
			return nil, &SyntaxError{Message: "unable to load type definition", Err: err}
		}
		schema = built
	}

	tr := cfg.Transport
	if tr == nil {
		if schema == nil {
			return nil, ConfigError("a transport or a schema is required")
		}
		tr = local.New(schema, cfg.Resolvers)
	}

	logger := cfg.Logger
	if logger == nil {
		discard := logrus.New()
		discard.Out = io.Discard
		logger = discard
	}

	c := &Client{
		transport:   tr,
		fetchSchema: cfg.FetchSchemaFromTransport,
		parsers:     cfg.CustomScalars,
		retries:     cfg.Retries,
		logger:      logger,
	}
	c.setSchema(schema)
	return c, nil
}

// Schema returns the client's schema, or nil if none is known yet.
func (c *Client) Schema() *ast.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema
}

func (c *Client) setSchema(schema *ast.Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schema = schema
	if schema != nil && len(c.parsers) > 0 {
		c.adaptor = NewTypeAdaptor(schema, c.parsers)
	}
}

func (c *Client) typeAdaptor() *TypeAdaptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adaptor
}

// Validate checks the document against the client's schema. It is pure and
// performs no I/O. Without a schema there is nothing to validate against, and
// a SyntaxError is returned.
func (c *Client) Validate(doc *ast.QueryDocument) error {
	schema := c.Schema()
	if schema == nil {
		return &SyntaxError{Message: "cannot validate the document locally, you need to provide a schema"}
	}
	if errs := validator.Validate(schema, doc); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// RequestOption customizes a single operation.
type RequestOption func(*requestOptions)

type requestOptions struct {
	variables     map[string]interface{}
	operationName string
	timeout       time.Duration
}

// WithVariables binds variable values to the operation.
func WithVariables(variables map[string]interface{}) RequestOption {
	return func(o *requestOptions) {
		o.variables = variables
	}
}

// WithOperationName selects the operation to run from a multi-operation
// document.
func WithOperationName(name string) RequestOption {
	return func(o *requestOptions) {
		o.operationName = name
	}
}

// WithTimeout bounds the operation, taking precedence over any transport
// default. For Subscribe it bounds only starting the subscription; the
// returned Subscription's Recv calls are bounded by their own contexts.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = timeout
	}
}

// Execute validates the document if a schema is known, runs it on the
// transport, and returns its data. Results carrying errors surface as a
// *ServerError. Transport failures are retried per the configured retry
// count.
func (c *Client) Execute(ctx context.Context, doc *ast.QueryDocument, opts ...RequestOption) (map[string]interface{}, error) {
	req, ctx, cancel, err := c.request(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := c.executeWithRetries(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &ServerError{Errors: resp.Errors}
	}
	return c.adaptData(resp.Data)
}

// Subscribe validates the document if a schema is known and starts a
// subscription on the transport, which must be subscription-capable.
func (c *Client) Subscribe(ctx context.Context, doc *ast.QueryDocument, opts ...RequestOption) (*Subscription, error) {
	st, ok := c.transport.(transport.SubscriptionTransport)
	if !ok {
		return nil, ConfigError("the transport does not support subscriptions")
	}

	req, ctx, cancel, err := c.request(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()

	stream, err := st.Subscribe(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Subscription{client: c, stream: stream}, nil
}

func (c *Client) request(ctx context.Context, doc *ast.QueryDocument, opts []RequestOption) (*transport.Request, context.Context, context.CancelFunc, error) {
	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}

	if c.Schema() != nil {
		if err := c.Validate(doc); err != nil {
			return nil, nil, nil, err
		}
	}

	cancel := func() {}
	if options.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, options.timeout)
	}
	return &transport.Request{
		Document:      doc,
		Variables:     options.variables,
		OperationName: options.operationName,
	}, ctx, cancel, nil
}

func (c *Client) executeWithRetries(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if c.retries == 0 {
		return c.transport.Execute(ctx, req)
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff(attempt)):
			case <-ctx.Done():
				return nil, &RetryError{Attempts: attempt, LastErr: lastErr}
			}
		}
		resp, err := c.transport.Execute(ctx, req)
		if err == nil {
			return resp, nil
		}
		// The server answered the operation; that is not a transport failure.
		var queryErr *transport.QueryError
		if errors.As(err, &queryErr) {
			return nil, err
		}
		lastErr = err
		c.logger.WithError(err).Warnf("request failed, retrying for the %v time", attempt+1)
	}
	return nil, &RetryError{Attempts: c.retries, LastErr: lastErr}
}

// Exponential-friendly backoff with a 0.1s factor.
func retryBackoff(attempt int) time.Duration {
	return 100 * time.Millisecond * (1 << (attempt - 1))
}

func (c *Client) adaptData(data map[string]interface{}) (map[string]interface{}, error) {
	adaptor := c.typeAdaptor()
	if adaptor == nil {
		return data, nil
	}
	return adaptor.Apply(data)
}

// Connect opens a session: subscription-capable transports are connected,
// and, if configured, the schema is fetched from the transport before the
// session is returned.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if st, ok := c.transport.(transport.SubscriptionTransport); ok {
		if err := st.Connect(ctx); err != nil {
			return nil, err
		}
	}
	s := &Session{client: c}
	if c.fetchSchema {
		if err := s.FetchSchema(ctx); err != nil {
			c.transport.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the client's transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Session is a scoped handle on a connected transport. Closing it closes the
// transport regardless of exit path; on the graphql-ws transport, outstanding
// subscription streams end with transport.ErrClosed. The local transport's
// Close is a no-op, so its streams are not ended by it.
type Session struct {
	client *Client
}

// FetchSchema issues an introspection query over the session's transport and
// installs the resulting schema on the client.
func (s *Session) FetchSchema(ctx context.Context) error {
	schema, err := introspection.Fetch(ctx, s.client.transport)
	if err != nil {
		return errors.Wrap(err, "unable to fetch schema")
	}
	s.client.setSchema(schema)
	return nil
}

// Execute runs a unary operation within the session.
func (s *Session) Execute(ctx context.Context, doc *ast.QueryDocument, opts ...RequestOption) (map[string]interface{}, error) {
	return s.client.Execute(ctx, doc, opts...)
}

// Subscribe starts a subscription within the session.
func (s *Session) Subscribe(ctx context.Context, doc *ast.QueryDocument, opts ...RequestOption) (*Subscription, error) {
	return s.client.Subscribe(ctx, doc, opts...)
}

// Client returns the session's client.
func (s *Session) Client() *Client {
	return s.client
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.client.transport.Close()
}

// Subscription is a lazy sequence of subscription results.
type Subscription struct {
	client *Client
	stream transport.Stream
}

// Recv returns the next result's data, adaptor-transformed. It returns io.EOF
// once the server completes the subscription and a *transport.QueryError if
// the server answers the operation with errors.
func (s *Subscription) Recv(ctx context.Context) (map[string]interface{}, error) {
	resp, err := s.stream.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &transport.QueryError{Errors: resp.Errors}
	}
	return s.client.adaptData(resp.Data)
}

// Close cancels the subscription.
func (s *Subscription) Close() error {
	return s.stream.Close()
}
