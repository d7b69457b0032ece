// Package transport provides the byte-delivery adapters feeding the decode
// pipeline. The pipeline never touches a device directly: link specifics
// (TCP, serial, capture replay) stay behind a small poll-style interface.
package transport

// Transport is a producer-side byte source plus the device command channel.
//
// Read follows a poll model: it returns 0, nil when a poll timeout elapses
// with no data, so the caller can re-check its run flag, and a non-nil error
// only when the link is gone for good. WriteCommand may be called from any
// goroutine concurrently with Read.
type Transport interface {
	Read(p []byte) (int, error)
	WriteCommand(cmd string) error
	Close() error
}
