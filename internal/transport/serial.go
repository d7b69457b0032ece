package transport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

type SerialConfig struct {
	Port        string
	BaudRate    int
	PollTimeout time.Duration
}

// Serial attaches to an embedded sensor on a serial line (8N1). Command
// writes are serialized behind a mutex so configuration calls from control
// goroutines cannot interleave bytes.
type Serial struct {
	port serial.Port
	mu   sync.Mutex
}

func OpenSerial(cfg SerialConfig) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Port, err)
	}

	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("transport: read timeout on %s: %w", cfg.Port, err)
	}
	return &Serial{port: port}, nil
}

// Read returns 0, nil when the poll timeout elapses with no data.
func (s *Serial) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *Serial) WriteCommand(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte(cmd)); err != nil {
		return err
	}
	return s.port.Drain()
}

func (s *Serial) Close() error {
	return s.port.Close()
}
