package adapter

import (
	"time"
)

// pollReady probes the transport until it reports itself open, then hands off
// to the state machine via the loop rather than transitioning synchronously.
// Polling sidesteps duplicate-listener behavior seen when watching the native
// connect signal for this. Retries are unbounded: transport creation is
// assumed eventually successful, so there is no timeout or failure path.
func (a *Adapter) pollReady() {
	if !a.alive.Load() {
		return
	}

	if a.tr.Ready() {
		a.loop.post(a.handleReady)
		return
	}

	time.AfterFunc(a.pollInterval, a.pollReady)
}
