package adapter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sockline/sockline.go/adapter/transport"
)

type fakeInvoke struct {
	method string
	args   []interface{}
	cb     transport.ResponseFunc
}

// fakeTransport is a scripted transport.Transport: tests flip its readiness
// and connection flags and fire raw events by hand.
type fakeTransport struct {
	mu         sync.Mutex
	ready      bool
	connected  bool
	connecting bool
	nextToken  transport.ListenerToken
	listeners  map[string]map[transport.ListenerToken]transport.RawHandler
	addCalls   map[string]int
	invokes    []*fakeInvoke
	reconnects int
	invokeErr  error
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		listeners: make(map[string]map[transport.ListenerToken]transport.RawHandler),
		addCalls:  make(map[string]int),
	}
}

func (f *fakeTransport) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) AddListener(event string, h transport.RawHandler) transport.ListenerToken {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextToken++
	token := f.nextToken
	if f.listeners[event] == nil {
		f.listeners[event] = make(map[transport.ListenerToken]transport.RawHandler)
	}
	f.listeners[event][token] = h
	f.addCalls[event]++
	return token
}

func (f *fakeTransport) RemoveListener(event string, token transport.ListenerToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners[event], token)
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Connecting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connecting
}

func (f *fakeTransport) Reconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.ready = false
	return nil
}

func (f *fakeTransport) Invoke(method string, args []interface{}, cb transport.ResponseFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invokeErr != nil {
		return f.invokeErr
	}
	f.invokes = append(f.invokes, &fakeInvoke{method: method, args: args, cb: cb})
	return nil
}

// test controls

func (f *fakeTransport) setOpen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = true
	f.connected = true
}

func (f *fakeTransport) fireConnect() {
	f.mu.Lock()
	f.connected = true
	f.ready = true
	f.mu.Unlock()
	f.emit(transport.SignalConnect, nil)
}

func (f *fakeTransport) fireDisconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.emit(transport.SignalDisconnect, nil)
}

func (f *fakeTransport) emit(event string, data interface{}) {
	f.mu.Lock()
	handlers := make([]transport.RawHandler, 0, len(f.listeners[event]))
	for _, h := range f.listeners[event] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeTransport) invokeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invokes)
}

func (f *fakeTransport) invokeAt(i int) *fakeInvoke {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invokes[i]
}

func (f *fakeTransport) listenerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[event])
}

func (f *fakeTransport) addCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls[event]
}

func (f *fakeTransport) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

// drain waits until every task posted to the loop before the call has run.
func (a *Adapter) drain() {
	done := make(chan struct{})
	if a.loop.post(func() { close(done) }) {
		<-done
	}
}

func startConnected(t *testing.T) (*Adapter, *fakeTransport) {
	t.Helper()

	ft := newFakeTransport()
	ft.setOpen()

	a := New(ft, WithPollInterval(time.Millisecond))
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Start())
	require.Eventually(t, a.IsConnected, time.Second, time.Millisecond)
	return a, ft
}
