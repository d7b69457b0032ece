package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultPollTimeout = 10 * time.Millisecond
)

type TCPOption func(*TCP)

func WithDialTimeout(d time.Duration) TCPOption {
	return func(t *TCP) { t.dialTimeout = d }
}

func WithPollTimeout(d time.Duration) TCPOption {
	return func(t *TCP) { t.pollTimeout = d }
}

// TCP connects to a network-attached sensor or a stream replay server.
type TCP struct {
	conn        net.Conn
	dialTimeout time.Duration
	pollTimeout time.Duration
}

func DialTCP(addr string, opts ...TCPOption) (*TCP, error) {
	t := &TCP{
		dialTimeout: defaultDialTimeout,
		pollTimeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}

	conn, err := net.DialTimeout("tcp", addr, t.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	t.conn = conn
	return t, nil
}

func (t *TCP) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.pollTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

func (t *TCP) WriteCommand(cmd string) error {
	_, err := t.conn.Write([]byte(cmd))
	return err
}

func (t *TCP) Close() error {
	return t.conn.Close()
}
