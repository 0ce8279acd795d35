package adapter

import (
	log "github.com/sirupsen/logrus"
)

type Event string

// Lifecycle events observable via On. Server pushes are delivered under
// composite names: the subscribed event name joined to the payload's verb
// with a dot, e.g. "widget.created".
const (
	EventInitialize Event = "initialize"
	EventConnect    Event = "connect"
	EventDisconnect Event = "disconnect"
)

// On subscribes handler to a lifecycle or composite event.
func (a *Adapter) On(event Event, handler func(data interface{})) {
	a.hmu.Lock()
	defer a.hmu.Unlock()

	a.handlers[event] = append(a.handlers[event], handler)
}

// Off removes every handler subscribed to event.
func (a *Adapter) Off(event Event) {
	a.hmu.Lock()
	defer a.hmu.Unlock()

	delete(a.handlers, event)
}

func (a *Adapter) emit(event Event, data interface{}) {
	a.hmu.RLock()
	handlers := a.handlers[event]
	a.hmu.RUnlock()

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"domain": "adapter", "event": event, "handlers": len(handlers)}).
			Debug("emit")
	}

	for _, handler := range handlers {
		go handler(data)
	}
}

// onRawEvent fans a raw transport message out under its composite name. Runs
// off the transport's goroutine, so the work is posted onto the loop; a dead
// adapter drops the message. Delivery is at-most-once: with no subscriber
// attached at emission time the event is lost.
func (a *Adapter) onRawEvent(event string, data interface{}) {
	a.loop.post(func() {
		if !a.alive.Load() {
			return
		}

		name := Event(event)
		if m, ok := data.(map[string]interface{}); ok {
			if verb, ok := m[a.verbField].(string); ok && verb != "" {
				name = Event(event + "." + verb)
			}
		}
		a.emit(name, data)
	})
}
