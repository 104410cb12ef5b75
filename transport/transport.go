// Package transport defines the interfaces implemented by GraphQL transports
// along with the request, result, and error types they exchange.
package transport

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
)

// Request defines all of the inputs required to execute a GraphQL operation.
type Request struct {
	Document      *ast.QueryDocument
	Variables     map[string]interface{}
	OperationName string
}

// Location represents the location of a character within an operation's source
// text.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error represents a GraphQL error as defined by the spec. The client treats
// it as opaque beyond structural access.
type Error struct {
	Message    string                 `json:"message"`
	Locations  []Location             `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

func (err *Error) Error() string {
	return err.Message
}

// ErrorList is an ordered list of GraphQL errors.
type ErrorList []*Error

// Response represents the result of executing a GraphQL operation. Any
// response delivered by a server has at least one of Data and Errors set.
type Response struct {
	Data   map[string]interface{} `json:"data,omitempty"`
	Errors ErrorList              `json:"errors,omitempty"`
}

// Transport executes GraphQL operations. All transports are safe for
// concurrent use.
type Transport interface {
	// Execute runs a single operation to completion and returns its result.
	// The returned error distinguishes transport failures from GraphQL
	// results: a Response with a non-empty Errors list is not an error here.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Close releases the transport's resources. On the graphql-ws transport,
	// operations issued after Close fail with ErrClosed; the HTTP and local
	// transports keep executing operations after Close.
	Close() error
}

// Stream is a lazy sequence of results produced by a subscription.
type Stream interface {
	// Recv blocks until the next result arrives, the subscription ends, or
	// ctx is done. It returns io.EOF after the server completes the
	// operation.
	Recv(ctx context.Context) (*Response, error)

	// Close cancels the subscription. Cancellation is best-effort: the server
	// may still emit events, which are discarded.
	Close() error
}

// SubscriptionTransport is implemented by transports that can carry
// long-lived subscription operations.
type SubscriptionTransport interface {
	Transport

	// Connect establishes the transport's connection. It must be called
	// before Execute or Subscribe.
	Connect(ctx context.Context) error

	// Subscribe starts the operation and returns a stream of its results.
	Subscribe(ctx context.Context, req *Request) (Stream, error)
}
