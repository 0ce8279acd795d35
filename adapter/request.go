package adapter

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sockline/sockline.go/adapter/transport"
)

// Call is one in-flight request. It settles exactly once: Reply and Error are
// valid after Done receives the call.
type Call struct {
	Method string
	Args   []interface{}
	Reply  interface{}
	Error  error
	Done   chan *Call

	settled bool // loop-owned
}

// Go issues method asynchronously. The pending counter is incremented before
// Go returns, so Busy reflects the call the instant it is issued. If the
// transport is not connected the call waits, in FIFO order, for the next
// connect; a reconnect is requested when the adapter is initialized but the
// transport reports neither connected nor connecting. done must be buffered
// if supplied.
func (a *Adapter) Go(method string, args []interface{}, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("adapter: done channel is unbuffered")
	}

	call := &Call{
		Method: method,
		Args:   args,
		Done:   done,
	}

	a.pending.Inc()

	if !a.alive.Load() || !a.loop.post(func() { a.startCall(call) }) {
		// off-loop settle: the call never entered the loop, so it is not in
		// any loop-owned structure
		call.settled = true
		a.pending.Dec()
		call.Error = ErrAdapterDestroyed
		select {
		case call.Done <- call:
		default:
		}
	}
	return call
}

// Request is the blocking form of Go. Context cancellation abandons the wait
// but does not cancel the call itself; only adapter destruction does that.
func (a *Adapter) Request(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	call := a.Go(method, args, make(chan *Call, 1))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.Done:
		return call.Reply, call.Error
	}
}

func (a *Adapter) startCall(call *Call) {
	if !a.alive.Load() {
		a.settle(call, nil, ErrAdapterDestroyed)
		return
	}

	if a.state() == StateConnected {
		a.dispatch(call)
		return
	}

	a.waiters = append(a.waiters, call)
	a.maybeReconnect()
}

// releaseWaiters hands the fresh connection to every queued call, in the
// order the calls were issued.
func (a *Adapter) releaseWaiters() {
	waiters := a.waiters
	a.waiters = nil
	for _, call := range waiters {
		a.dispatch(call)
	}
}

func (a *Adapter) dispatch(call *Call) {
	a.inflight[call] = struct{}{}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"domain": "adapter", "method": call.Method}).Debug("dispatch")
	}

	err := a.tr.Invoke(call.Method, call.Args, func(payload interface{}, meta *transport.ResponseMeta) {
		// teardown settles anything still in flight, so a failed post here
		// means the call is already accounted for
		a.loop.post(func() {
			a.finishCall(call, payload, meta)
		})
	})
	if err != nil {
		a.settle(call, nil, err)
	}
}

func (a *Adapter) finishCall(call *Call, payload interface{}, meta *transport.ResponseMeta) {
	if meta == nil || meta.StatusCode/100 != 2 {
		status := 0
		if meta != nil {
			status = meta.StatusCode
		}
		a.settle(call, nil, &RemoteError{Status: status, Meta: meta, Payload: payload})
		return
	}
	a.settle(call, payload, nil)
}

// settle resolves a call exactly once and is the only place the pending
// counter is decremented.
func (a *Adapter) settle(call *Call, reply interface{}, err error) {
	if call.settled {
		return
	}
	call.settled = true
	delete(a.inflight, call)
	a.pending.Dec()

	call.Reply = reply
	call.Error = err

	select {
	case call.Done <- call:
	default:
		log.WithFields(log.Fields{"domain": "adapter", "method": call.Method}).
			Warn("discarding call reply, done channel full")
	}
}
