package graphqlws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gqlgo/gql/astprint"
	"github.com/gqlgo/gql/transport"
)

const defaultAckTimeout = 10 * time.Second

// Buffered per-subscriber. If a subscriber neither receives nor closes its
// stream, the reader blocks once the buffer fills, applying backpressure to
// the whole connection.
const subscriberBufferSize = 64

type connectionState int

const (
	stateDisconnected connectionState = iota
	stateConnecting
	stateReady
	stateClosed
)

// Transport is a subscription-capable GraphQL transport speaking the
// graphql-ws subprotocol over a single WebSocket connection. Connect must be
// called before any operation. The zero value plus a URL is usable.
type Transport struct {
	// URL is the server endpoint, with a ws or wss scheme.
	URL string

	// HTTPHeader is passed to the WebSocket handshake request.
	HTTPHeader http.Header

	// Dialer performs the WebSocket handshake. If nil, a dialer with the
	// graphql-ws subprotocol is used.
	Dialer *websocket.Dialer

	// ConnectionParams, if given, is sent as the connection_init payload.
	ConnectionParams interface{}

	// AckTimeout bounds the wait for the server's connection_ack.
	AckTimeout time.Duration

	// Logger, if given, receives connection lifecycle and protocol
	// diagnostics.
	Logger logrus.FieldLogger

	mu            sync.Mutex
	state         connectionState
	conn          *websocket.Conn
	nextId        uint64
	listeners     map[string]*listener
	fatalErr      error
	lastKeepAlive time.Time
	readDone      chan struct{}

	writeMu sync.Mutex

	logger logrus.FieldLogger
}

type event struct {
	response *transport.Response
	err      error
}

type listener struct {
	events chan event
	done   chan struct{}
}

func (l *listener) deliver(ev event) {
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

// Connect dials the server, performs the connection_init / connection_ack
// handshake, and starts the connection's reader. A call made while another
// is connecting, or after a connection is established, fails with
// transport.ErrAlreadyConnected; a call on a closed transport (including one
// whose handshake failed) fails with transport.ErrClosed. A failed dial
// leaves the transport disconnected, so Connect may be called again.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case stateDisconnected:
		t.state = stateConnecting
	case stateClosed:
		t.mu.Unlock()
		return transport.ErrClosed
	default:
		t.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	t.logger = t.fieldLogger().WithField("connection_id", uuid.New().String())
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		t.mu.Lock()
		t.state = stateDisconnected
		t.mu.Unlock()
		return errors.Wrap(err, "websocket dial error")
	}

	if err := t.handshake(ctx, conn); err != nil {
		conn.Close()
		t.mu.Lock()
		t.state = stateClosed
		t.fatalErr = err
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	if t.state != stateConnecting {
		// Closed while the handshake was in flight.
		t.mu.Unlock()
		conn.Close()
		return transport.ErrClosed
	}
	t.state = stateReady
	t.conn = conn
	t.listeners = map[string]*listener{}
	t.readDone = make(chan struct{})
	t.mu.Unlock()

	t.logger.Debug("graphql-ws connection established")
	go t.readLoop(conn)
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	if len(dialer.Subprotocols) == 0 {
		dialer = &websocket.Dialer{
			Proxy:             dialer.Proxy,
			HandshakeTimeout:  dialer.HandshakeTimeout,
			TLSClientConfig:   dialer.TLSClientConfig,
			EnableCompression: dialer.EnableCompression,
			Subprotocols:      []string{WebSocketSubprotocol},
		}
	}
	conn, resp, err := dialer.DialContext(ctx, t.URL, t.HTTPHeader)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// handshake sends connection_init and waits for connection_ack, tolerating
// keep-alives in between.
func (t *Transport) handshake(ctx context.Context, conn *websocket.Conn) error {
	init := &Message{Type: MessageTypeConnectionInit}
	if t.ConnectionParams != nil {
		payload, err := jsoniter.Marshal(t.ConnectionParams)
		if err != nil {
			return errors.Wrap(err, "unable to marshal connection params")
		}
		init.Payload = payload
	}
	buf, err := jsoniter.Marshal(init)
	if err != nil {
		return errors.Wrap(err, "error marshaling message")
	}
	if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		return errors.Wrap(err, "error sending connection init")
	}

	ackTimeout := t.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	deadline := time.Now().Add(ackTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return &transport.ProtocolError{Reason: "no connection_ack received", Err: err}
		}
		if messageType != websocket.TextMessage {
			return &transport.ProtocolError{Reason: "binary frame received"}
		}
		var msg Message
		if err := jsoniter.Unmarshal(data, &msg); err != nil {
			return &transport.ProtocolError{Reason: "malformed message", Err: err}
		}
		switch msg.Type {
		case MessageTypeConnectionAck:
			return nil
		case MessageTypeConnectionKeepAlive:
			continue
		case MessageTypeConnectionError:
			return &transport.ProtocolError{Reason: "connection rejected: " + string(msg.Payload)}
		default:
			return &transport.ProtocolError{Reason: "expected connection_ack, got " + string(msg.Type)}
		}
	}
}

// Subscribe registers a new operation, sends its start frame, and returns a
// stream of its results. The operation's id is registered before the frame is
// flushed so replies can never arrive for an unknown id.
func (t *Transport) Subscribe(ctx context.Context, req *transport.Request) (transport.Stream, error) {
	return t.subscribe(ctx, req)
}

func (t *Transport) subscribe(_ context.Context, req *transport.Request) (*stream, error) {
	t.mu.Lock()
	if t.state != stateReady {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	t.nextId++
	id := strconv.FormatUint(t.nextId, 10)
	l := &listener{
		events: make(chan event, subscriberBufferSize),
		done:   make(chan struct{}),
	}
	t.listeners[id] = l
	t.mu.Unlock()

	payload, err := jsoniter.Marshal(&startPayload{
		Query:         astprint.Document(req.Document),
		Variables:     req.Variables,
		OperationName: req.OperationName,
	})
	if err != nil {
		t.removeListener(id)
		return nil, errors.Wrap(err, "unable to marshal start payload")
	}
	if err := t.sendMessage(&Message{Id: id, Type: MessageTypeStart, Payload: payload}); err != nil {
		t.removeListener(id)
		return nil, err
	}

	t.logger.WithField("operation_id", id).Debug("graphql-ws operation started")
	return &stream{transport: t, id: id, listener: l}, nil
}

// Execute runs a unary operation over the subscription connection: start the
// operation, take its first result, then stop it. A server error frame or a
// result carrying errors surfaces as a *transport.QueryError.
func (t *Transport) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	s, err := t.subscribe(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	resp, err := s.Recv(ctx)
	if err == io.EOF {
		return nil, &transport.ProtocolError{Reason: "operation completed without a result"}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Close terminates the connection: connection_terminate is sent best-effort,
// the socket is closed, and every in-flight subscriber observes
// transport.ErrClosed. All subsequent operations fail with
// transport.ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.state == stateClosed {
		t.mu.Unlock()
		return nil
	}
	if t.state != stateReady {
		t.state = stateClosed
		t.fatalErr = transport.ErrClosed
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.sendMessage(&Message{Type: MessageTypeConnectionTerminate}); err != nil {
		t.fieldLogger().Debug(errors.Wrap(err, "unable to send connection terminate"))
	}
	t.shutdown(transport.ErrClosed)

	// The reader notices the closed socket and delivers the terminal error to
	// every subscriber before exiting.
	t.mu.Lock()
	readDone := t.readDone
	t.mu.Unlock()
	if readDone != nil {
		select {
		case <-readDone:
		case <-time.After(time.Second):
		}
	}
	return nil
}

// LastKeepAlive returns the arrival time of the most recent server
// keep-alive, or the zero time if none has been seen.
func (t *Transport) LastKeepAlive() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastKeepAlive
}

func (t *Transport) sendMessage(msg *Message) error {
	data, err := jsoniter.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "error marshaling message")
	}

	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()
	if state != stateReady || conn == nil {
		return transport.ErrClosed
	}

	// Serialized so concurrent start/stop frames cannot interleave.
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "websocket write error")
	}
	return nil
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	t.mu.Lock()
	readDone := t.readDone
	t.mu.Unlock()
	defer close(readDone)

	defer t.fanOut()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.state == stateClosed
			t.mu.Unlock()
			if !closed {
				t.logger.Debug(errors.Wrap(err, "websocket read error"))
			}
			t.shutdown(errors.Wrap(transport.ErrClosed, "connection lost"))
			return
		}
		if messageType != websocket.TextMessage {
			t.shutdown(&transport.ProtocolError{Reason: "binary frame received"})
			return
		}
		if err := t.handleMessage(data); err != nil {
			t.logger.Debug(err)
			t.shutdown(err)
			return
		}
	}
}

// handleMessage dispatches one inbound frame. A returned error is a protocol
// violation and fatal to the whole connection.
func (t *Transport) handleMessage(data []byte) error {
	var msg Message
	if err := jsoniter.Unmarshal(data, &msg); err != nil {
		return &transport.ProtocolError{Reason: "malformed message", Err: err}
	}

	switch msg.Type {
	case MessageTypeConnectionKeepAlive:
		t.mu.Lock()
		t.lastKeepAlive = time.Now()
		t.mu.Unlock()
		return nil
	case MessageTypeData:
		if msg.Id == "" {
			return &transport.ProtocolError{Reason: "data message without id"}
		}
		if len(msg.Payload) == 0 {
			return &transport.ProtocolError{Reason: "data message without payload"}
		}
		var payload struct {
			Data   json.RawMessage `json:"data"`
			Errors json.RawMessage `json:"errors"`
		}
		if err := jsoniter.Unmarshal(msg.Payload, &payload); err != nil {
			return &transport.ProtocolError{Reason: "malformed data payload", Err: err}
		}
		if len(payload.Data) == 0 && len(payload.Errors) == 0 {
			return &transport.ProtocolError{Reason: "data payload has neither data nor errors"}
		}
		response := &transport.Response{}
		if len(payload.Data) > 0 {
			if err := jsoniter.Unmarshal(payload.Data, &response.Data); err != nil {
				return &transport.ProtocolError{Reason: "malformed data payload", Err: err}
			}
		}
		if len(payload.Errors) > 0 {
			if err := jsoniter.Unmarshal(payload.Errors, &response.Errors); err != nil {
				return &transport.ProtocolError{Reason: "malformed errors payload", Err: err}
			}
		}
		if l := t.lookupListener(msg.Id); l != nil {
			if len(response.Errors) > 0 {
				l.deliver(event{err: &transport.QueryError{Errors: response.Errors}})
			} else {
				l.deliver(event{response: response})
			}
		}
		return nil
	case MessageTypeError:
		if msg.Id == "" {
			return &transport.ProtocolError{Reason: "error message without id"}
		}
		if len(msg.Payload) == 0 {
			return &transport.ProtocolError{Reason: "error message without payload"}
		}
		errorList, err := parseErrorPayload(msg.Payload)
		if err != nil {
			return err
		}
		// Stale ids are ignored, same as data frames.
		if l := t.removeListener(msg.Id); l != nil {
			l.deliver(event{err: &transport.QueryError{Errors: errorList}})
			close(l.events)
		}
		return nil
	case MessageTypeComplete:
		if msg.Id == "" {
			return &transport.ProtocolError{Reason: "complete message without id"}
		}
		if l := t.removeListener(msg.Id); l != nil {
			close(l.events)
		}
		return nil
	case MessageTypeConnectionError:
		return &transport.ProtocolError{Reason: "connection error: " + string(msg.Payload)}
	default:
		return &transport.ProtocolError{Reason: "unknown message type: " + string(msg.Type)}
	}
}

// parseErrorPayload accepts both forms servers use for error frames: a single
// error object or a list of them.
func parseErrorPayload(payload []byte) (transport.ErrorList, error) {
	var list transport.ErrorList
	if err := jsoniter.Unmarshal(payload, &list); err == nil {
		return list, nil
	}
	var single transport.Error
	if err := jsoniter.Unmarshal(payload, &single); err != nil {
		return nil, &transport.ProtocolError{Reason: "malformed error payload", Err: err}
	}
	return transport.ErrorList{&single}, nil
}

func (t *Transport) lookupListener(id string) *listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listeners[id]
}

func (t *Transport) removeListener(id string) *listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.listeners[id]
	delete(t.listeners, id)
	return l
}

// shutdown transitions the connection to closed and closes the socket. It is
// idempotent; the first cause wins. Subscriber notification is left to the
// reader goroutine (fanOut), which is the only goroutine allowed to close
// event channels.
func (t *Transport) shutdown(err error) {
	t.mu.Lock()
	if t.state == stateClosed {
		t.mu.Unlock()
		return
	}
	t.state = stateClosed
	t.fatalErr = err
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// fanOut delivers the connection's fatal error to every in-flight subscriber
// as its terminal event. Runs on the reader goroutine only.
func (t *Transport) fanOut() {
	t.mu.Lock()
	err := t.fatalErr
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	if err == nil {
		err = transport.ErrClosed
	}
	for _, l := range listeners {
		l.deliver(event{err: err})
		close(l.events)
	}
}

func (t *Transport) fieldLogger() logrus.FieldLogger {
	if t.Logger != nil {
		return t.Logger
	}
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}

// stream is the caller's handle on one in-flight operation.
type stream struct {
	transport *Transport
	id        string
	listener  *listener

	closeOnce sync.Once
	done      bool
}

// Recv returns the operation's next result. It returns io.EOF after the
// server completes the operation, a *transport.QueryError if the server
// answered the operation with errors, and the connection's fatal error if the
// connection failed.
func (s *stream) Recv(ctx context.Context) (*transport.Response, error) {
	if s.done {
		return nil, io.EOF
	}
	select {
	case ev, ok := <-s.listener.events:
		if !ok {
			s.done = true
			return nil, io.EOF
		}
		if ev.err != nil {
			s.done = true
			return nil, ev.err
		}
		return ev.response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels the operation. The id is unregistered immediately, so frames
// the server has already sent for it are discarded, and a stop frame is sent
// best-effort.
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if l := s.transport.removeListener(s.id); l != nil {
			close(l.done)
			err = s.transport.sendMessage(&Message{Id: s.id, Type: MessageTypeStop})
			if err == transport.ErrClosed {
				err = nil
			}
		}
	})
	return err
}
