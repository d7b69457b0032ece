package timestamp

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tobias-Fischer/dvstream/internal/logging"
)

func newState() *State {
	return New(logging.New(zerolog.Nop()))
}

func TestUpdateExpandsWithinOffset(t *testing.T) {
	s := newState()

	s.Update(100)
	assert.Equal(t, int32(100), s.Current)
	assert.Equal(t, int32(0), s.Last)

	s.Update(250)
	assert.Equal(t, int32(250), s.Current)
	assert.Equal(t, int32(100), s.Last)
}

func TestWrapAccumulatesCoarseOffset(t *testing.T) {
	tests := []struct {
		name    string
		count   uint16
		want    int32
	}{
		{name: "single wrap", count: 1, want: 0x8000},
		{name: "batched wraps", count: 3, want: 3 * 0x8000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState()
			s.Update(500)

			class := s.Wrap(tt.count, 0x8000)

			assert.Equal(t, ClassSmallWrap, class)
			assert.Equal(t, tt.want, s.WrapAdd)
			assert.Equal(t, tt.want, s.Current)
			assert.Equal(t, int32(500), s.Last)
			assert.Equal(t, int32(0), s.WrapOverflow)
		})
	}
}

func TestWrapPastRangeRollsEpoch(t *testing.T) {
	s := newState()
	s.WrapAdd = math.MaxInt32 - 0x7FFF
	s.Current = s.WrapAdd

	class := s.Wrap(1, 0x8000)

	require.Equal(t, ClassBigWrap, class)
	assert.Equal(t, int32(1), s.WrapOverflow)
	assert.Equal(t, int32(0), s.WrapAdd)
	assert.Equal(t, int32(0), s.Current)
	assert.Equal(t, int32(0), s.Last)
}

func TestAdvanceDetectsRegressionAsWrap(t *testing.T) {
	s := newState()

	require.Equal(t, ClassNormal, s.Advance(100, 0x10000))
	assert.Equal(t, int32(100), s.Current)

	require.Equal(t, ClassNormal, s.Advance(200, 0x10000))

	class := s.Advance(50, 0x10000)
	require.Equal(t, ClassSmallWrap, class)
	assert.Equal(t, int32(0x10000), s.WrapAdd)
	assert.Equal(t, int32(0x10000+50), s.Current)
	assert.Equal(t, int32(200), s.Last)

	// The regressed value must not wrap a second time.
	require.Equal(t, ClassNormal, s.Advance(60, 0x10000))
	assert.Equal(t, int32(0x10000+60), s.Current)
}

func TestAdvanceBigWrapAtRangeEnd(t *testing.T) {
	s := newState()
	s.WrapAdd = math.MaxInt32 - 0xFFFF

	require.Equal(t, ClassNormal, s.Advance(100, 0x10000))

	class := s.Advance(50, 0x10000)
	require.Equal(t, ClassBigWrap, class)
	assert.Equal(t, int32(1), s.WrapOverflow)
	assert.Equal(t, int32(0), s.WrapAdd)
	assert.Equal(t, int32(0), s.Current)
}

func TestResetZeroesEverything(t *testing.T) {
	s := newState()
	s.Advance(100, 0x10000)
	s.Advance(50, 0x10000)
	s.WrapOverflow = 7

	s.Reset()

	assert.Equal(t, int32(0), s.WrapOverflow)
	assert.Equal(t, int32(0), s.WrapAdd)
	assert.Equal(t, int32(0), s.Last)
	assert.Equal(t, int32(0), s.Current)
	assert.Equal(t, uint16(0), s.lastShort)
}

func TestFullIncludesOverflowEpochs(t *testing.T) {
	s := newState()
	s.WrapOverflow = 2
	s.Current = 1000

	assert.Equal(t, int64(2)<<31|1000, s.Full())
}
