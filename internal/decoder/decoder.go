// Package decoder turns raw transport chunks into typed, timestamped events.
//
// Each protocol is a resumable state machine: a Decode call consumes every
// complete token in the chunk, defers or drops a trailing partial token per
// protocol policy, and hands decoded events to the batch layer, which owns
// all commit decisions.
package decoder

// Decoder consumes one raw chunk per call. Calls always happen on the
// producer goroutine, so implementations keep unsynchronized state.
type Decoder interface {
	Decode(chunk []byte)
}
