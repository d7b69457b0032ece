package decoder

import (
	"sync/atomic"

	"github.com/Tobias-Fischer/dvstream/internal/batch"
	"github.com/Tobias-Fischer/dvstream/internal/events"
	"github.com/Tobias-Fischer/dvstream/internal/logging"
	"github.com/Tobias-Fischer/dvstream/internal/timestamp"
)

// eDVS wire format: fixed 4-byte records. Byte 0 carries the alignment
// marker (bit 7, always set) and the Y address; byte 1 the polarity (bit 7)
// and the X address; bytes 2-3 a big-endian 16-bit timestamp.
const (
	edvsRecordSize = 4
	// Range of the 16-bit per-record timestamp field.
	edvsWrapAdd = 0x10000

	edvsAlignFlag = 0x80
	edvsAddrMask  = 0x7F
)

// EDVSConfig carries the sensor geometry (128x128 native).
type EDVSConfig struct {
	SizeX, SizeY uint16
}

// EDVS decodes the embedded-DVS serial record stream. A trailing partial
// record is carried over to the next chunk.
type EDVS struct {
	log *logging.Leveled
	cfg EDVSConfig
	ts  *timestamp.State
	b   *batch.Batcher

	// resetRequest is set by control callers; the producer consumes it at
	// the next record boundary. onReset forwards the reset command to the
	// device before the local state clears.
	resetRequest *atomic.Bool
	onReset      func()

	pending []byte
}

func NewEDVS(cfg EDVSConfig, ts *timestamp.State, b *batch.Batcher, resetRequest *atomic.Bool, onReset func(), log *logging.Leveled) *EDVS {
	return &EDVS{
		log:          log,
		cfg:          cfg,
		ts:           ts,
		b:            b,
		resetRequest: resetRequest,
		onReset:      onReset,
	}
}

func (d *EDVS) Decode(chunk []byte) {
	data := chunk
	if len(d.pending) > 0 {
		data = append(d.pending, chunk...)
		d.pending = nil
	}

	pos := 0
	for pos < len(data) {
		yByte := data[pos]

		// Resynchronize on the record alignment marker.
		if yByte&edvsAlignFlag == 0 {
			logger := d.log.Logger()
			logger.Warn().
				Int("offset", pos).
				Msg("record not aligned, skipping to next byte")
			pos++
			continue
		}

		if pos+edvsRecordSize > len(data) {
			// Copied out: the caller reuses the chunk buffer.
			d.pending = append([]byte(nil), data[pos:]...)
			return
		}

		tsReset := false
		tsBigWrap := false

		if d.resetRequest != nil && d.resetRequest.CompareAndSwap(true, false) {
			if d.onReset != nil {
				d.onReset()
			}
			d.ts.Reset()
			tsReset = true
		} else {
			short := uint16(data[pos+2])<<8 | uint16(data[pos+3])
			if d.ts.Advance(short, edvsWrapAdd) == timestamp.ClassBigWrap {
				d.b.AppendSpecial(events.Special{
					Timestamp: events.TimestampMax,
					Type:      events.TimestampWrap,
				})
				tsBigWrap = true
			} else {
				d.decodePixel(data[pos+1], yByte)
			}
		}

		d.b.CommitIfDue(tsReset, tsBigWrap)
		pos += edvsRecordSize
	}
}

func (d *EDVS) decodePixel(xByte, yByte uint8) {
	x := uint16(xByte & edvsAddrMask)
	y := uint16(yByte & edvsAddrMask)

	if x >= d.cfg.SizeX || y >= d.cfg.SizeY {
		logger := d.log.Logger()
		logger.Error().
			Uint16("x", x).
			Uint16("y", y).
			Msg("pixel address out of range")
		return
	}
	d.b.AppendPolarity(events.Polarity{
		Timestamp: d.ts.Current,
		X:         x,
		Y:         y,
		On:        xByte&edvsAlignFlag != 0,
	})
}
