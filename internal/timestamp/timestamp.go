// Package timestamp reconstructs a monotonically increasing logical clock
// from the narrow, wrapping timestamp counters the sensors put on the wire.
//
// Two reconstruction styles exist. Devices with an in-word timestamp field
// announce wraps explicitly with a dedicated token carrying the cumulative
// wrap count since the last one (Update + Wrap). Devices with a full-width
// per-record field signal a wrap implicitly by numeric regression against the
// previous value (Advance). Both styles share the coarse offset accumulator
// and the 31-bit overflow epochs.
package timestamp

import (
	"math"

	"github.com/Tobias-Fischer/dvstream/internal/events"
	"github.com/Tobias-Fischer/dvstream/internal/logging"
)

// Class tells the caller what kind of clock step just happened.
type Class uint8

const (
	ClassNormal Class = iota
	// ClassSmallWrap advanced the coarse offset; the clock kept increasing.
	ClassSmallWrap
	// ClassBigWrap exhausted the 31-bit range: the state was zeroed and the
	// overflow epoch incremented. The caller must force a container commit.
	ClassBigWrap
)

// State is the per-stream clock reconstruction state. It is owned exclusively
// by the decode goroutine and is reset wholesale on a device timestamp reset.
type State struct {
	// WrapOverflow counts exhaustions of the 31-bit timestamp space. It is
	// the time base recorded in every packet allocated while it holds.
	WrapOverflow int32
	// WrapAdd is the accumulated coarse offset from past wraps.
	WrapAdd int32
	Last    int32
	Current int32

	lastShort uint16

	log *logging.Leveled
}

func New(log *logging.Leveled) *State {
	return &State{log: log}
}

// Update expands a narrow in-word timestamp field within the current coarse
// offset. Wraps for this style arrive as explicit tokens, see Wrap.
func (s *State) Update(field uint16) {
	s.Last = s.Current
	s.Current = s.WrapAdd + int32(field)
	s.checkMonotonic()
}

// Wrap applies an explicit wrap token. count is the cumulative number of
// wraps since the previous token, increment the range of the narrow field.
func (s *State) Wrap(count uint16, increment int32) Class {
	jump := int64(increment) * int64(count)
	if int64(s.WrapAdd)+jump > math.MaxInt32 {
		s.bigWrap()
		return ClassBigWrap
	}
	s.WrapAdd += int32(jump)
	s.Last = s.Current
	s.Current = s.WrapAdd
	s.checkMonotonic()
	return ClassSmallWrap
}

// Advance reconstructs from a full-width per-record field. A numeric
// regression against the previous field is a wrap; a wrap that would push the
// coarse offset past the 31-bit range is a big wrap.
func (s *State) Advance(short uint16, increment int32) Class {
	wrapped := short < s.lastShort
	if wrapped && s.WrapAdd == math.MaxInt32-(increment-1) {
		s.bigWrap()
		return ClassBigWrap
	}

	class := ClassNormal
	if wrapped {
		s.WrapAdd += increment
		// Cleared so the same regressed value cannot wrap twice.
		s.lastShort = 0
		class = ClassSmallWrap
	} else {
		s.lastShort = short
	}

	s.Last = s.Current
	s.Current = s.WrapAdd + int32(short)
	s.checkMonotonic()
	return class
}

// Reset zeroes the whole reconstruction state. Used on device timestamp
// reset and on stream start.
func (s *State) Reset() {
	s.WrapOverflow = 0
	s.WrapAdd = 0
	s.Last = 0
	s.Current = 0
	s.lastShort = 0
}

// Full is the wide logical timestamp including overflow epochs.
func (s *State) Full() int64 {
	return events.Full(s.WrapOverflow, s.Current)
}

func (s *State) bigWrap() {
	s.WrapOverflow++
	s.WrapAdd = 0
	s.Last = 0
	s.Current = 0
	s.lastShort = 0
}

func (s *State) checkMonotonic() {
	if s.Current < s.Last {
		logger := s.log.Logger()
		logger.Error().
			Int32("last", s.Last).
			Int32("current", s.Current).
			Int32("diff", s.Last-s.Current).
			Msg("timestamps: non strictly-monotonic timestamp detected")
	}
}
