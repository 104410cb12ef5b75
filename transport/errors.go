package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by operations issued on a transport whose connection
// has been closed or was never established.
var ErrClosed = errors.New("transport is closed")

// ErrAlreadyConnected is returned by Connect when the transport already has a
// connection, including when two Connect calls race.
var ErrAlreadyConnected = errors.New("transport is already connected")

// ProtocolError indicates that the server violated the transport's wire
// protocol: malformed JSON, a binary frame, an unknown message type, missing
// required fields, or a payload of the wrong shape. Protocol errors are fatal
// to the whole connection.
type ProtocolError struct {
	Reason string
	Err    error
}

func (err *ProtocolError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("protocol error: %v: %v", err.Reason, err.Err)
	}
	return "protocol error: " + err.Reason
}

func (err *ProtocolError) Unwrap() error {
	return err.Err
}

// QueryError indicates that the server answered a specific operation with
// errors. It is terminal for that operation only.
type QueryError struct {
	Errors ErrorList
}

func (err *QueryError) Error() string {
	if len(err.Errors) == 0 {
		return "query error"
	}
	return "query error: " + err.Errors[0].Message
}

// HTTPError is returned by the HTTP transport when the response cannot be
// interpreted as a GraphQL result, in which case the HTTP status is all the
// caller has to go on.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (err *HTTPError) Error() string {
	return fmt.Sprintf("server did not return a graphql result: %v", err.Status)
}
