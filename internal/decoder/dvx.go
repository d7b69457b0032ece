package decoder

import (
	"encoding/binary"

	"github.com/Tobias-Fischer/dvstream/internal/batch"
	"github.com/Tobias-Fischer/dvstream/internal/events"
	"github.com/Tobias-Fischer/dvstream/internal/logging"
	"github.com/Tobias-Fischer/dvstream/internal/timestamp"
)

// DVXplorer wire format: little-endian 16-bit words. Bit 15 set means the
// low 15 bits are a timestamp field; otherwise bits 14-12 are the event code
// and bits 11-0 its data. The layout is a hardware contract.
const (
	dvxTimestampFlag = 0x8000
	// Range of the 15-bit in-word timestamp field, applied per wrap.
	dvxWrapAdd = 0x8000

	dvxCodeSpecial  = 0
	dvxCodeColumn   = 1
	dvxCodeGroupOff = 2
	dvxCodeGroupOn  = 3
	dvxCodeRowGroup = 4
	dvxCodeMisc8    = 5
	dvxCodeWrap     = 7
)

// Special event payloads (code 0).
const (
	dvxSpecialReserved = 0
	dvxSpecialTSReset  = 1
	dvxSpecialExtFall  = 2
	dvxSpecialExtRise  = 3
	dvxSpecialExtPulse = 4
	dvxSpecialIMUStart = 5
	dvxSpecialIMUEnd   = 7
	dvxSpecialGenFall  = 16
	dvxSpecialGenRise  = 17
)

// Misc8 sub-codes (code 5).
const (
	dvxMisc8IMUData   = 0
	dvxMisc8IMUConfig = 3
)

const dvxGroupWidth = 8 // pixels per group event

// DVXConfig carries the per-device geometry and orientation, read from the
// device at open time.
type DVXConfig struct {
	SizeX, SizeY uint16
	// InvertXY swaps the coordinate axes of pixel events.
	InvertXY bool
	// IMU axis orientation.
	FlipX, FlipY, FlipZ bool
}

// DVX decodes the DVXplorer tagged-word protocol.
type DVX struct {
	log *logging.Leveled
	cfg DVXConfig
	ts  *timestamp.State
	b   *batch.Batcher

	// Pixel addresses arrive incrementally: a column token and a row-group
	// token set the coordinate context for the following group events.
	lastX uint16
	lastY uint16

	imu imuAssembler
}

func NewDVX(cfg DVXConfig, ts *timestamp.State, b *batch.Batcher, log *logging.Leveled) *DVX {
	return &DVX{
		log: log,
		cfg: cfg,
		ts:  ts,
		b:   b,
		imu: imuAssembler{
			log: log,
			// A sample already in flight at stream start can never be
			// completed; drop fragments until the first START marker.
			ignore: true,
			flipX:  cfg.FlipX,
			flipY:  cfg.FlipY,
			flipZ:  cfg.FlipZ,
		},
	}
}

func (d *DVX) Decode(chunk []byte) {
	if len(chunk)&0x01 != 0 {
		logger := d.log.Logger()
		logger.Error().
			Int("bytes", len(chunk)).
			Msg("chunk length not a multiple of the word size, truncating trailing byte")
		chunk = chunk[:len(chunk)-1]
	}

	for pos := 0; pos+1 < len(chunk); pos += 2 {
		word := binary.LittleEndian.Uint16(chunk[pos:])

		tsReset := false
		tsBigWrap := false

		if word&dvxTimestampFlag != 0 {
			d.ts.Update(word & 0x7FFF)
		} else {
			code := (word >> 12) & 0x07
			data := word & 0x0FFF

			switch code {
			case dvxCodeSpecial:
				tsReset = d.decodeSpecial(data)
			case dvxCodeColumn:
				d.decodeColumn(data)
			case dvxCodeGroupOff, dvxCodeGroupOn:
				d.decodeGroup(code == dvxCodeGroupOn, data)
			case dvxCodeRowGroup:
				d.decodeRowGroup(data)
			case dvxCodeMisc8:
				d.decodeMisc8(data)
			case dvxCodeWrap:
				tsBigWrap = d.decodeWrap(data)
			default:
				logger := d.log.Logger()
				logger.Error().
					Uint16("code", code).
					Msg("caught event that cannot be handled")
			}
		}

		if d.b.CommitIfDue(tsReset, tsBigWrap) {
			// The stream restarted behind our back; fragments of a
			// composite sample that straddle the boundary are garbage.
			d.imu.ignore = true
		}
	}
}

// decodeSpecial handles control markers and reports whether a timestamp
// reset happened.
func (d *DVX) decodeSpecial(data uint16) bool {
	switch data {
	case dvxSpecialReserved:
		logger := d.log.Logger()
		logger.Error().Msg("caught special reserved event")
	case dvxSpecialTSReset:
		d.ts.Reset()
		return true
	case dvxSpecialExtFall:
		d.appendSpecial(events.ExternalInputFallingEdge)
	case dvxSpecialExtRise:
		d.appendSpecial(events.ExternalInputRisingEdge)
	case dvxSpecialExtPulse:
		d.appendSpecial(events.ExternalInputPulse)
	case dvxSpecialIMUStart:
		d.imu.start()
	case dvxSpecialIMUEnd:
		if sample, ok := d.imu.end(d.ts.Current); ok {
			d.b.AppendIMU6(sample)
		}
	case dvxSpecialGenFall:
		d.appendSpecial(events.ExternalGeneratorFallingEdge)
	case dvxSpecialGenRise:
		d.appendSpecial(events.ExternalGeneratorRisingEdge)
	default:
		logger := d.log.Logger()
		logger.Error().
			Uint16("data", data).
			Msg("caught special event that cannot be handled")
	}
	return false
}

func (d *DVX) appendSpecial(t events.SpecialType) {
	d.b.AppendSpecial(events.Special{Timestamp: d.ts.Current, Type: t})
}

func (d *DVX) decodeColumn(data uint16) {
	if data&0x0800 != 0 {
		logger := d.log.Logger()
		logger.Debug().Msg("start of frame column marker")
	}
	column := data & 0x03FF
	if column >= d.cfg.SizeY {
		// Skip the invalid address, keeping the previous coordinate so
		// later groups still land somewhere plausible.
		logger := d.log.Logger()
		logger.Error().
			Uint16("column", column).
			Uint16("max", d.cfg.SizeY-1).
			Msg("column address out of range")
		return
	}
	d.lastY = column
}

func (d *DVX) decodeGroup(on bool, data uint16) {
	d.b.GrowPolarity(dvxGroupWidth)

	for i, mask := uint16(0), uint16(0x0080); i < dvxGroupWidth; i, mask = i+1, mask>>1 {
		if data&mask == 0 {
			continue
		}
		e := events.Polarity{Timestamp: d.ts.Current, On: on}
		if d.cfg.InvertXY {
			e.X, e.Y = d.lastY, d.lastX+i
		} else {
			e.X, e.Y = d.lastX+i, d.lastY
		}
		d.b.AppendPolarity(e)
	}
}

func (d *DVX) decodeRowGroup(data uint16) {
	if data&0x0FC0 != 0 {
		logger := d.log.Logger()
		logger.Error().Msg("MGROUP addressing not supported")
		return
	}
	d.lastX = (data & 0x003F) * dvxGroupWidth
}

func (d *DVX) decodeMisc8(data uint16) {
	switch sub := (data >> 8) & 0x0F; sub {
	case dvxMisc8IMUData:
		d.imu.feed(uint8(data))
	case dvxMisc8IMUConfig:
		d.imu.configure(data)
	default:
		logger := d.log.Logger()
		logger.Error().
			Uint16("code", sub).
			Msg("caught misc8 event that cannot be handled")
	}
}

// decodeWrap applies an explicit wrap token and reports whether it exhausted
// the timestamp range.
func (d *DVX) decodeWrap(count uint16) bool {
	if d.ts.Wrap(count, dvxWrapAdd) != timestamp.ClassBigWrap {
		return false
	}
	d.b.AppendSpecial(events.Special{
		Timestamp: events.TimestampMax,
		Type:      events.TimestampWrap,
	})
	return true
}
