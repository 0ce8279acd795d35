package adapter

import (
	"sync"
)

// runLoop serializes every state mutation onto a single goroutine. Posting a
// closure is the adapter's "next tick": closures run in FIFO order relative to
// other closures posted at the same time, and nothing touches loop-owned state
// from outside. This is what keeps the core lock-free.
type runLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool

	done chan struct{}
}

func newRunLoop() *runLoop {
	l := &runLoop{
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *runLoop) run() {
	defer close(l.done)

	l.mu.Lock()
	for {
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()

		l.mu.Lock()
	}
}

// post schedules fn on the loop, reporting false once the loop has stopped.
// An accepted task always runs, even if it is queued during shutdown. The
// queue is unbounded so a loop task may itself post without blocking.
func (l *runLoop) post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

// stop rejects further posts, runs whatever is already queued and waits for
// the loop goroutine to exit.
func (l *runLoop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Signal()
	l.mu.Unlock()

	<-l.done
}
