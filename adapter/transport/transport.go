package transport

import (
	"errors"
)

// RawHandler receives the data payload of a raw transport event.
type RawHandler func(data interface{})

// ListenerToken identifies one registered RawHandler so it can be removed
// without comparing function values.
type ListenerToken uint64

// ResponseMeta carries the server-side metadata attached to a call response.
// A StatusCode in the 2xx range marks success; anything else is a failure.
type ResponseMeta struct {
	StatusCode int                    `json:"statusCode"`
	Headers    map[string]interface{} `json:"headers,omitempty"`
}

// ResponseFunc is the completion convention for Invoke: the transport calls it
// exactly once with the response payload and metadata. A nil meta means the
// server sent no status information and the call must be treated as failed.
type ResponseFunc func(payload interface{}, meta *ResponseMeta)

// Reserved raw event names for the transport's native lifecycle signals.
const (
	SignalConnect    = "connect"
	SignalDisconnect = "disconnect"
)

// Transport is the capability set the adapter requires from the underlying
// socket connection. Implementations must be safe for concurrent use.
type Transport interface {
	// Ready reports whether the raw connection object exists and is open.
	Ready() bool

	// AddListener subscribes h to raw events named event, including the
	// reserved SignalConnect and SignalDisconnect names.
	AddListener(event string, h RawHandler) ListenerToken

	// RemoveListener drops the subscription identified by token.
	RemoveListener(event string, token ListenerToken)

	// Connected reports whether the socket is currently connected.
	Connected() bool

	// Connecting reports whether a connection attempt is in flight.
	Connecting() bool

	// Reconnect asks the transport to attempt a reconnect. It is a no-op
	// while connected or while another attempt is in flight.
	Reconnect()

	// Disconnect tears the connection down and stops any reconnect loop.
	Disconnect() error

	// Invoke sends a method call over the socket and arranges for cb to be
	// called with the response. Method names are matched case-insensitively.
	Invoke(method string, args []interface{}, cb ResponseFunc) error
}

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrClosed       = errors.New("transport closed")
)
