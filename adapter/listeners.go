package adapter

import (
	log "github.com/sirupsen/logrus"

	"github.com/sockline/sockline.go/adapter/transport"
)

// listenerEntry records one desired subscription. Entries persist across
// reconnects; only bound is reconnect-scoped. Invariant: bound is true iff a
// live transport subscription exists, which in turn requires the connected
// state.
type listenerEntry struct {
	event   string
	handler transport.RawHandler
	token   transport.ListenerToken
	bound   bool
}

// ListenFor declares (or withdraws) interest in a server-pushed event. While
// connected the transport subscription is added or removed before ListenFor
// returns; otherwise only the entry set changes and the transport side is
// applied at the next connect. Reports whether anything changed.
func (a *Adapter) ListenFor(event string, enable bool) bool {
	if !a.alive.Load() {
		return false
	}

	res := make(chan bool, 1)
	posted := a.loop.post(func() {
		res <- a.listenFor(event, enable)
	})
	if !posted {
		return false
	}
	return <-res
}

func (a *Adapter) listenFor(event string, enable bool) bool {
	entry, exists := a.entries[event]

	if enable {
		if exists {
			return false
		}
		entry = &listenerEntry{
			event: event,
			handler: func(data interface{}) {
				a.onRawEvent(event, data)
			},
		}
		a.entries[event] = entry
		if a.state() == StateConnected {
			a.bind(entry)
		}
		return true
	}

	if !exists {
		return false
	}
	if entry.bound {
		a.unbind(entry)
	}
	delete(a.entries, event)
	return true
}

func (a *Adapter) bind(entry *listenerEntry) {
	if entry.bound {
		return
	}
	entry.token = a.tr.AddListener(entry.event, entry.handler)
	entry.bound = true

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"domain": "adapter", "event": entry.event}).Debug("bind listener")
	}
}

func (a *Adapter) unbind(entry *listenerEntry) {
	if !entry.bound {
		return
	}
	a.tr.RemoveListener(entry.event, entry.token)
	entry.bound = false

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"domain": "adapter", "event": entry.event}).Debug("unbind listener")
	}
}

// rebindAll attaches every unbound entry. Idempotent.
func (a *Adapter) rebindAll() {
	for _, entry := range a.entries {
		a.bind(entry)
	}
}

// unbindAllTracking detaches every bound entry but keeps the entries around
// for the next rebind.
func (a *Adapter) unbindAllTracking() {
	for _, entry := range a.entries {
		a.unbind(entry)
	}
}
