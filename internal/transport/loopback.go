package transport

import (
	"io"
	"sync"
	"time"
)

// Loopback is an in-memory transport for tests and the mock stream
// generator. Feed queues chunks exactly as a device would deliver them;
// commands are recorded for inspection.
type Loopback struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once

	rest []byte // producer-side remainder of a partially copied chunk

	mu       sync.Mutex
	commands []string
}

func NewLoopback(buffer int) *Loopback {
	if buffer < 1 {
		buffer = 1
	}
	return &Loopback{
		ch:     make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// Feed queues one chunk for delivery, blocking while the buffer is full.
// It reports false once the transport is closed.
func (l *Loopback) Feed(chunk []byte) bool {
	select {
	case l.ch <- chunk:
		return true
	case <-l.closed:
		return false
	}
}

func (l *Loopback) Read(p []byte) (int, error) {
	if len(l.rest) > 0 {
		n := copy(p, l.rest)
		l.rest = l.rest[n:]
		return n, nil
	}
	select {
	case chunk := <-l.ch:
		n := copy(p, chunk)
		l.rest = chunk[n:]
		return n, nil
	case <-l.closed:
		return 0, io.EOF
	case <-time.After(defaultPollTimeout):
		return 0, nil
	}
}

func (l *Loopback) WriteCommand(cmd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, cmd)
	return nil
}

// Commands returns a copy of every command written so far.
func (l *Loopback) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.commands))
	copy(out, l.commands)
	return out
}

func (l *Loopback) Close() error {
	l.once.Do(func() {
		close(l.closed)
	})
	return nil
}
