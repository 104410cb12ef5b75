// Package graphqlws implements a client for the graphql-ws WebSocket
// subprotocol (the legacy subscriptions-transport-ws framing), multiplexing
// any number of concurrent operations over a single connection.
package graphqlws

import (
	"encoding/json"
)

// WebSocketSubprotocol is the subprotocol offered during the WebSocket
// handshake.
const WebSocketSubprotocol = "graphql-ws"

// MessageType represents a GraphQL-WS message type.
type MessageType string

// MessageType represents a GraphQL-WS message type.
const (
	MessageTypeConnectionInit      MessageType = "connection_init"
	MessageTypeConnectionKeepAlive MessageType = "ka"
	MessageTypeConnectionTerminate MessageType = "connection_terminate"
	MessageTypeConnectionAck       MessageType = "connection_ack"
	MessageTypeConnectionError     MessageType = "connection_error"
	MessageTypeComplete            MessageType = "complete"
	MessageTypeData                MessageType = "data"
	MessageTypeStart               MessageType = "start"
	MessageTypeStop                MessageType = "stop"
	MessageTypeError               MessageType = "error"
)

// Message represents a GraphQL-WS message. This can be used for both client
// and server messages.
type Message struct {
	Id      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// startPayload is the payload of a client-to-server start message.
type startPayload struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
}
