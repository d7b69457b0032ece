// Package events defines the typed event records produced by the decoders,
// the growable per-type packets they accumulate in, and the multi-type
// container handed from the decode goroutine to the consumer.
package events

import "math"

// Logical timestamps are microsecond ticks with 31 significant bits. Each
// exhaustion of that range increments the overflow epoch, which forms the
// high bits of the full 64-bit timestamp.
const TSOverflowShift = 31

// TimestampMax is the sentinel stamped on wrap and reset markers.
const TimestampMax = math.MaxInt32

// Full widens a 31-bit timestamp with its overflow epoch.
func Full(tsOverflow, timestamp int32) int64 {
	return int64(tsOverflow)<<TSOverflowShift | int64(timestamp)
}

// SpecialType identifies a control marker on the event stream.
type SpecialType uint8

const (
	TimestampWrap SpecialType = iota
	TimestampReset
	ExternalInputRisingEdge
	ExternalInputFallingEdge
	ExternalInputPulse
	ExternalGeneratorRisingEdge
	ExternalGeneratorFallingEdge
)

func (t SpecialType) String() string {
	switch t {
	case TimestampWrap:
		return "timestamp-wrap"
	case TimestampReset:
		return "timestamp-reset"
	case ExternalInputRisingEdge:
		return "ext-input-rising"
	case ExternalInputFallingEdge:
		return "ext-input-falling"
	case ExternalInputPulse:
		return "ext-input-pulse"
	case ExternalGeneratorRisingEdge:
		return "ext-generator-rising"
	case ExternalGeneratorFallingEdge:
		return "ext-generator-falling"
	default:
		return "unknown"
	}
}

// Polarity is a single pixel brightness-change event.
type Polarity struct {
	Timestamp int32
	X, Y      uint16
	On        bool
}

// Special is a control marker (edge/pulse detections, timestamp wrap/reset).
type Special struct {
	Timestamp int32
	Type      SpecialType
}

// IMU6 is a six-axis inertial sample with temperature. It is a composite
// event: the decoder assembles it from many on-wire fragments and it becomes
// visible only once the terminating token closes the sequence.
type IMU6 struct {
	Timestamp int32

	// Acceleration in g.
	AccelX, AccelY, AccelZ float32
	// Rotation in °/s.
	GyroX, GyroY, GyroZ float32
	// Temperature in °C.
	Temp float32
}
