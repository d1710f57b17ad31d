package storage

import (
	"errors"
	"sync"
)

// ErrClosed is returned for work submitted after the store shut down.
var ErrClosed = errors.New("storage: store is closed")

// serializer runs queued closures one at a time, in enqueue order, on a
// single worker goroutine. The queue is unbounded: accepted jobs are never
// rejected for backpressure, only after close. A failing job reports to its
// own caller and never blocks later jobs.
type serializer struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newSerializer() *serializer {
	s := &serializer{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// enqueue appends fn to the queue. Once accepted, fn always runs, even when
// close is called before it gets its turn.
func (s *serializer) enqueue(fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *serializer) run() {
	defer s.wg.Done()
	for {
		fn, stopped := s.next()
		if fn != nil {
			fn()
			continue
		}
		if stopped {
			return
		}
		select {
		case <-s.wake:
		case <-s.stopCh:
		}
	}
}

// next pops the head of the queue. It reports stopped only once the queue
// has fully drained after close.
func (s *serializer) next() (fn func(), stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		fn = s.queue[0]
		s.queue = s.queue[1:]
		return fn, false
	}
	return nil, s.closed
}

// close rejects new jobs, drains the ones already queued, and waits for the
// worker to exit.
func (s *serializer) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}
