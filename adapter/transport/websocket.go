package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// envelope is the wire frame shared by calls, responses and pushed events.
// A frame with an ID is a call or its response; a frame with an Event name is
// a server push.
type envelope struct {
	ID         string        `json:"id,omitempty"`
	Method     string        `json:"method,omitempty"`
	Args       []interface{} `json:"args,omitempty"`
	Event      string        `json:"event,omitempty"`
	Data       interface{}   `json:"data,omitempty"`
	Body       interface{}   `json:"body,omitempty"`
	StatusCode int           `json:"statusCode,omitempty"`
}

type WebSocketTransport struct {
	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	connecting bool
	closed     bool

	url     string
	dialer  *websocket.Dialer
	headers http.Header

	readTimeout  time.Duration
	writeTimeout time.Duration
	compression  bool

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	reconnectAttempts int

	// serializes frame writes; conn reads happen only on the read pump
	wmu sync.Mutex

	lmu       sync.RWMutex
	listeners map[string]map[ListenerToken]RawHandler
	nextToken uint64

	pmu     sync.Mutex
	pending map[string]ResponseFunc

	ctx        context.Context
	cancelFunc context.CancelFunc
}

var _ Transport = (*WebSocketTransport)(nil)

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.compression = enabled
	}
}

func WithReconnectDelay(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.reconnectDelay = d
	}
}

func WithMaxReconnectDelay(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.maxReconnectDelay = d
	}
}

// WithReconnectAttempts sets the cap per reconnect cycle. Zero disables
// automatic reconnects; a negative value retries without bound.
func WithReconnectAttempts(attempts int) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.reconnectAttempts = attempts
	}
}

func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &WebSocketTransport{
		url:               url,
		dialer:            websocket.DefaultDialer,
		headers:           make(http.Header),
		writeTimeout:      10 * time.Second,
		reconnectDelay:    1 * time.Second,
		maxReconnectDelay: 30 * time.Second,
		reconnectAttempts: -1,
		listeners:         make(map[string]map[ListenerToken]RawHandler),
		pending:           make(map[string]ResponseFunc),
		ctx:               ctx,
		cancelFunc:        cancel,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Dial establishes the initial connection. Later reconnects reuse the same
// parameters via Reconnect.
func (t *WebSocketTransport) Dial(ctx context.Context) error {
	return t.dial(ctx)
}

func (t *WebSocketTransport) dial(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	dialer := *t.dialer
	dialer.HandshakeTimeout = 10 * time.Second
	if t.compression {
		dialer.EnableCompression = true
	}

	conn, _, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		if log.IsLevelEnabled(log.DebugLevel) {
			log.WithFields(log.Fields{"domain": "transport", "url": t.url}).
				WithError(err).Debug("dial failed")
		}
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.connected = true
	t.connecting = false
	t.mu.Unlock()

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"domain": "transport", "url": t.url}).Debug("connected")
	}

	go t.readPump(conn)
	t.emit(SignalConnect, nil)
	return nil
}

func (t *WebSocketTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.connected && t.conn != nil
}

func (t *WebSocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.connected
}

func (t *WebSocketTransport) Connecting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.connecting
}

func (t *WebSocketTransport) Reconnect() {
	t.mu.Lock()
	if t.closed || t.connected || t.connecting {
		t.mu.Unlock()
		return
	}
	t.connecting = true
	t.mu.Unlock()

	go t.reconnectLoop()
}

func (t *WebSocketTransport) reconnectLoop() {
	delay := t.reconnectDelay
	attempts := 0

	for t.reconnectAttempts <= 0 || attempts < t.reconnectAttempts {
		select {
		case <-t.ctx.Done():
			t.mu.Lock()
			t.connecting = false
			t.mu.Unlock()
			return
		case <-time.After(delay):
			// dial clears connecting and emits the connect signal
			if err := t.dial(t.ctx); err == nil || err == ErrClosed {
				return
			}

			attempts++

			delay *= 2
			if delay > t.maxReconnectDelay {
				delay = t.maxReconnectDelay
			}
		}
	}

	t.mu.Lock()
	t.connecting = false
	t.mu.Unlock()

	log.WithFields(log.Fields{"domain": "transport", "url": t.url, "attempts": attempts}).
		Warn("reconnect attempts exhausted")
}

func (t *WebSocketTransport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	wasConnected := t.connected
	t.conn = nil
	t.connected = false
	t.connecting = false
	t.mu.Unlock()

	t.cancelFunc()
	t.failPending(ErrClosed)

	if conn == nil {
		return nil
	}

	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil && log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "transport").WithError(err).Debug("close handshake failed")
	}

	err = conn.Close()
	if wasConnected {
		t.emit(SignalDisconnect, nil)
	}
	return err
}

func (t *WebSocketTransport) AddListener(event string, h RawHandler) ListenerToken {
	t.lmu.Lock()
	defer t.lmu.Unlock()

	t.nextToken++
	token := ListenerToken(t.nextToken)
	if t.listeners[event] == nil {
		t.listeners[event] = make(map[ListenerToken]RawHandler)
	}
	t.listeners[event][token] = h
	return token
}

func (t *WebSocketTransport) RemoveListener(event string, token ListenerToken) {
	t.lmu.Lock()
	defer t.lmu.Unlock()

	delete(t.listeners[event], token)
	if len(t.listeners[event]) == 0 {
		delete(t.listeners, event)
	}
}

func (t *WebSocketTransport) Invoke(method string, args []interface{}, cb ResponseFunc) error {
	t.mu.Lock()
	if !t.connected || t.conn == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.Unlock()

	// methods are matched case-insensitively; normalize on the wire
	env := envelope{
		ID:     generateCallID(),
		Method: strings.ToLower(method),
		Args:   args,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	t.pmu.Lock()
	t.pending[env.ID] = cb
	t.pmu.Unlock()

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"domain": "transport", "method": env.Method, "id": env.ID}).
			Debug("invoke")
	}

	t.wmu.Lock()
	if t.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	t.wmu.Unlock()

	if err != nil {
		t.pmu.Lock()
		delete(t.pending, env.ID)
		t.pmu.Unlock()
		return err
	}
	return nil
}

func (t *WebSocketTransport) readPump(conn *websocket.Conn) {
	for {
		if t.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
				t.handleLost(conn, err)
				return
			}
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleLost(conn, err)
			return
		}

		t.handleMessage(data)
	}
}

// handleLost runs when the read pump dies. It is a no-op if conn was already
// replaced or torn down by Disconnect.
func (t *WebSocketTransport) handleLost(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.connected = false
	autoReconnect := t.reconnectAttempts != 0
	t.mu.Unlock()

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "transport").WithError(err).Debug("connection lost")
	}

	conn.Close()
	t.failPending(err)
	t.emit(SignalDisconnect, err)

	if autoReconnect {
		t.Reconnect()
	}
}

func (t *WebSocketTransport) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if log.IsLevelEnabled(log.DebugLevel) {
			log.WithField("domain", "transport").WithError(err).Debug("bad frame")
		}
		return
	}

	if env.ID != "" {
		t.pmu.Lock()
		cb, ok := t.pending[env.ID]
		delete(t.pending, env.ID)
		t.pmu.Unlock()

		if !ok {
			if log.IsLevelEnabled(log.DebugLevel) {
				log.WithFields(log.Fields{"domain": "transport", "id": env.ID}).
					Debug("response for unknown call")
			}
			return
		}

		var meta *ResponseMeta
		if env.StatusCode != 0 {
			meta = &ResponseMeta{StatusCode: env.StatusCode}
		}
		cb(env.Body, meta)
		return
	}

	if env.Event != "" {
		t.emit(env.Event, env.Data)
	}
}

// failPending settles every outstanding call with a nil meta so callers treat
// the connection loss as a failure.
func (t *WebSocketTransport) failPending(err error) {
	t.pmu.Lock()
	pending := t.pending
	t.pending = make(map[string]ResponseFunc)
	t.pmu.Unlock()

	for _, cb := range pending {
		cb(err.Error(), nil)
	}
}

func (t *WebSocketTransport) emit(event string, data interface{}) {
	t.lmu.RLock()
	handlers := make([]RawHandler, 0, len(t.listeners[event]))
	for _, h := range t.listeners[event] {
		handlers = append(handlers, h)
	}
	t.lmu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
}
