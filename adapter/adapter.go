package adapter

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/sockline/sockline.go/adapter/transport"
)

// State tracks the adapter's position in the connection lifecycle.
// StateDestroyed is absorbing: no further transitions, no further callbacks.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateConnected
	StateDisconnected
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Adapter wraps a single long-lived transport connection and exposes it as a
// request/response interface plus a stream of server-pushed events. It
// survives transport reconnects: listener subscriptions are rebound on every
// connect and calls issued while disconnected wait for the next one.
type Adapter struct {
	tr   transport.Transport
	loop *runLoop

	// alive flips exactly once, in Close; every deferred callback checks it
	alive       *atomic.Bool
	initialized *atomic.Bool
	st          *atomic.Int32
	pending     *atomic.Int64

	// loop-owned
	entries         map[string]*listenerEntry
	waiters         []*Call
	inflight        map[*Call]struct{}
	connectToken    transport.ListenerToken
	disconnectToken transport.ListenerToken

	hmu      sync.RWMutex
	handlers map[Event][]func(data interface{})

	pollInterval time.Duration
	verbField    string
}

type Option func(*Adapter)

// WithPollInterval sets the delay between readiness probes.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// WithVerbField sets the payload field used to build composite event names.
func WithVerbField(field string) Option {
	return func(a *Adapter) {
		a.verbField = field
	}
}

func New(tr transport.Transport, opts ...Option) *Adapter {
	a := &Adapter{
		tr:           tr,
		loop:         newRunLoop(),
		alive:        atomic.NewBool(true),
		initialized:  atomic.NewBool(false),
		st:           atomic.NewInt32(int32(StateUninitialized)),
		pending:      atomic.NewInt64(0),
		entries:      make(map[string]*listenerEntry),
		inflight:     make(map[*Call]struct{}),
		handlers:     make(map[Event][]func(data interface{})),
		pollInterval: 10 * time.Millisecond,
		verbField:    "verb",
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Start begins polling the transport for readiness. It may be called once.
func (a *Adapter) Start() error {
	if !a.alive.Load() {
		return ErrAdapterDestroyed
	}

	res := make(chan error, 1)
	posted := a.loop.post(func() {
		if a.state() != StateUninitialized {
			res <- ErrAlreadyStarted
			return
		}
		a.setState(StateInitializing)
		res <- nil
		go a.pollReady()
	})
	if !posted {
		return ErrAdapterDestroyed
	}
	return <-res
}

func (a *Adapter) state() State {
	return State(a.st.Load())
}

func (a *Adapter) setState(s State) {
	old := State(a.st.Swap(int32(s)))
	if old != s && log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"domain": "adapter", "from": old, "to": s}).
			Debug("state transition")
	}
}

func (a *Adapter) IsInitialized() bool {
	return a.initialized.Load()
}

func (a *Adapter) IsConnected() bool {
	return a.state() == StateConnected
}

// PendingOperations reports the number of calls issued but not yet settled.
func (a *Adapter) PendingOperations() int64 {
	return a.pending.Load()
}

// Busy reports whether the adapter can be relied on for synchronous work:
// false only when initialized, connected and idle. Derived on every call,
// never cached.
func (a *Adapter) Busy() bool {
	return !a.initialized.Load() || a.state() != StateConnected || a.pending.Load() > 0
}

// handleReady fires once, when the poller finds the transport open. Ordering
// matters: mark initialized, announce it, hook the native signals, then
// synthesize one connect transition. The transport is already connected at
// readiness time by contract of this integration; probing its connectedness
// separately is unreliable, so it is intentionally skipped.
func (a *Adapter) handleReady() {
	if !a.alive.Load() || a.state() != StateInitializing {
		return
	}

	a.initialized.Store(true)
	a.emit(EventInitialize, nil)

	a.connectToken = a.tr.AddListener(transport.SignalConnect, func(interface{}) {
		a.loop.post(a.handleConnect)
	})
	a.disconnectToken = a.tr.AddListener(transport.SignalDisconnect, func(interface{}) {
		a.loop.post(a.handleDisconnect)
	})

	a.handleConnect()
}

func (a *Adapter) handleConnect() {
	if !a.alive.Load() || a.state() == StateConnected {
		return
	}

	a.rebindAll()
	a.setState(StateConnected)
	a.emit(EventConnect, nil)
	a.releaseWaiters()
}

func (a *Adapter) handleDisconnect() {
	if !a.alive.Load() || a.state() != StateConnected {
		return
	}

	a.setState(StateDisconnected)
	a.emit(EventDisconnect, nil)
	a.unbindAllTracking()
}

// maybeReconnect asks the transport for a reconnect when initialized but not
// connected. The transport's own connected/connecting flags guard against a
// second in-flight attempt.
func (a *Adapter) maybeReconnect() {
	if !a.initialized.Load() {
		return
	}
	if a.tr.Connected() || a.tr.Connecting() {
		return
	}
	a.tr.Reconnect()
}

// Close destroys the adapter: every pending and future call fails with
// ErrAdapterDestroyed and no callback is delivered afterwards. Safe to call
// more than once.
func (a *Adapter) Close() error {
	if !a.alive.CAS(true, false) {
		return nil
	}

	done := make(chan struct{})
	if a.loop.post(func() {
		a.teardown()
		close(done)
	}) {
		<-done
	}
	a.loop.stop()
	return nil
}

func (a *Adapter) teardown() {
	wasConnected := a.state() == StateConnected
	a.setState(StateDestroyed)

	// unhook from the transport before disconnecting so its teardown signals
	// cannot echo back in
	a.unbindAllTracking()
	if a.initialized.Load() {
		a.tr.RemoveListener(transport.SignalConnect, a.connectToken)
		a.tr.RemoveListener(transport.SignalDisconnect, a.disconnectToken)
	}

	if wasConnected {
		if err := a.tr.Disconnect(); err != nil {
			log.WithField("domain", "adapter").WithError(err).Warn("disconnect on teardown")
		}
	}

	waiters := a.waiters
	a.waiters = nil
	for _, call := range waiters {
		a.settle(call, nil, ErrAdapterDestroyed)
	}
	for call := range a.inflight {
		a.settle(call, nil, ErrAdapterDestroyed)
	}
}
