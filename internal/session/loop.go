package session

import (
	"context"
	"sync"
)

// loop runs queued functions one at a time, in order, on its own goroutine.
// Posting never blocks, so tasks may post further tasks.
type loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	exit chan struct{}
}

func newLoop() *loop {
	l := &loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) run() {
	defer close(l.exit)
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				select {
				case <-l.done:
					return
				default:
				}
				fn()
			}
		}
	}
}

// post queues fn and reports whether the loop accepted it.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the loop and waits for it. Everything posted before call
// has run by the time fn starts.
func (l *loop) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.post(func() {
		fn()
		close(finished)
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop discards pending work and waits for the loop goroutine to exit. It
// must not be called from the loop itself.
func (l *loop) stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.exit
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	close(l.done)
	<-l.exit
}
