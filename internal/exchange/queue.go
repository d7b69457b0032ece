// Package exchange implements the bounded hand-off buffer between the decode
// goroutine and the consumer. A single producer enqueues committed
// containers; consumers dequeue them in order via Get.
package exchange

import (
	"errors"
	"sync"

	"github.com/Tobias-Fischer/dvstream/internal/events"
)

// ErrFull reports that a non-forced enqueue found the buffer at capacity.
var ErrFull = errors.New("exchange: buffer full")

// Queue is a bounded FIFO of containers.
type Queue struct {
	ch     chan *events.Container
	stop   chan struct{}
	once   sync.Once
	notify func()
}

// New creates a queue holding up to capacity containers. notify, when not
// nil, is invoked after every successful enqueue.
func New(capacity int, notify func()) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:     make(chan *events.Container, capacity),
		stop:   make(chan struct{}),
		notify: notify,
	}
}

// Put enqueues without blocking. An ordinary container carries no critical
// markers, so when the consumer lags it is dropped rather than stalling the
// decode loop.
func (q *Queue) Put(c *events.Container) error {
	select {
	case q.ch <- c:
		q.notifyData()
		return nil
	default:
		return ErrFull
	}
}

// PutForced blocks until space frees up or the queue closes, and reports
// whether the container was delivered. Reserved for containers the consumer
// must observe (timestamp reset markers) while the stream keeps running.
func (q *Queue) PutForced(c *events.Container) bool {
	select {
	case q.ch <- c:
		q.notifyData()
		return true
	case <-q.stop:
		return false
	}
}

// Get dequeues the next container. Blocking waits until data arrives or the
// queue closes; non-blocking returns nil immediately when empty. After close,
// anything enqueued earlier is still handed out before Get reports nil.
func (q *Queue) Get(blocking bool) *events.Container {
	if !blocking {
		select {
		case c := <-q.ch:
			return c
		default:
			return nil
		}
	}
	select {
	case c := <-q.ch:
		return c
	case <-q.stop:
		select {
		case c := <-q.ch:
			return c
		default:
			return nil
		}
	}
}

// Close unblocks all waiters. Idempotent.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.stop)
	})
}

// Drain closes the queue and discards everything still buffered, returning
// the number of containers thrown away.
func (q *Queue) Drain() int {
	q.Close()
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Cap() int {
	return cap(q.ch)
}

func (q *Queue) notifyData() {
	if q.notify != nil {
		q.notify()
	}
}
