package decoder

import (
	"github.com/Tobias-Fischer/dvstream/internal/events"
	"github.com/Tobias-Fischer/dvstream/internal/logging"
)

// Sub-sensor bits declared by the IMU configuration token.
const (
	imuTypeTemp  = 0x01
	imuTypeGyro  = 0x02
	imuTypeAccel = 0x04
)

type imuField uint8

const (
	fieldAccelX imuField = iota
	fieldAccelY
	fieldAccelZ
	fieldTemp
	fieldGyroX
	fieldGyroY
	fieldGyroZ
)

// imuAssembler builds the composite inertial sample from sequential one-byte
// fragments. The configuration token between START and the fragments fixes
// the field schedule; the sample stays private until the END marker confirms
// every scheduled field arrived, so a forced container commit can never
// expose a half-filled sample.
type imuAssembler struct {
	log *logging.Leveled

	flipX, flipY, flipZ bool

	// ignore drops everything after a forced stream boundary (and before
	// the very first START) until a fresh START arrives.
	ignore bool

	started    bool
	accelScale float32
	gyroScale  float32
	schedule   []imuField
	fed        int // fragment bytes consumed since START
	hi         uint8
	sample     events.IMU6
}

func (a *imuAssembler) start() {
	a.ignore = false
	a.started = true
	a.schedule = a.schedule[:0]
	a.fed = 0
	a.sample = events.IMU6{}
}

// configure decodes the per-sample scale and enabled-channels token:
// bits 7-5 enabled sensors, bits 3-2 accelerometer range, bits 1-0
// gyroscope range.
func (a *imuAssembler) configure(data uint16) {
	if a.ignore {
		return
	}

	// Raw LSBs per g: 65536 / (4 * 2^range). Raw LSBs per °/s:
	// 65536 / (250 * 2^(4-range)).
	a.accelScale = 65536.0 / float32(uint32(4)<<((data>>2)&0x03))
	a.gyroScale = 65536.0 / float32(uint32(250)<<(4-(data&0x03)))

	enabled := (data >> 5) & 0x07
	a.schedule = a.schedule[:0]
	if enabled&imuTypeAccel != 0 {
		a.schedule = append(a.schedule, fieldAccelX, fieldAccelY, fieldAccelZ)
	}
	if enabled&imuTypeTemp != 0 {
		a.schedule = append(a.schedule, fieldTemp)
	}
	if enabled&imuTypeGyro != 0 {
		a.schedule = append(a.schedule, fieldGyroX, fieldGyroY, fieldGyroZ)
	}
	if len(a.schedule) == 0 {
		logger := a.log.Logger()
		logger.Error().Msg("IMU config: no IMU sensors enabled")
	}
}

// feed consumes one fragment byte. Fields arrive high byte first.
func (a *imuAssembler) feed(b uint8) {
	if a.ignore || !a.started {
		return
	}
	if a.fed >= 2*len(a.schedule) {
		logger := a.log.Logger()
		logger.Error().Msg("IMU data: got invalid fragment sequence")
		return
	}

	if a.fed%2 == 0 {
		a.hi = b
		a.fed++
		return
	}
	raw := int16(uint16(a.hi)<<8 | uint16(b))

	switch a.schedule[a.fed/2] {
	case fieldAccelX:
		a.sample.AccelX = a.scaleAccel(raw, a.flipX)
	case fieldAccelY:
		a.sample.AccelY = a.scaleAccel(raw, a.flipY)
	case fieldAccelZ:
		a.sample.AccelZ = a.scaleAccel(raw, a.flipZ)
	case fieldTemp:
		a.sample.Temp = float32(raw)/512.0 + 23.0
	case fieldGyroX:
		a.sample.GyroX = a.scaleGyro(raw, a.flipX)
	case fieldGyroY:
		a.sample.GyroY = a.scaleGyro(raw, a.flipY)
	case fieldGyroZ:
		a.sample.GyroZ = a.scaleGyro(raw, a.flipZ)
	}
	a.fed++
}

func (a *imuAssembler) scaleAccel(raw int16, flip bool) float32 {
	if flip {
		raw = -raw
	}
	return float32(raw) / a.accelScale
}

func (a *imuAssembler) scaleGyro(raw int16, flip bool) float32 {
	if flip {
		raw = -raw
	}
	return float32(raw) / a.gyroScale
}

// end closes the sequence. The sample is exposed only if every scheduled
// field arrived; it is stamped with the stream timestamp current now.
func (a *imuAssembler) end(ts int32) (events.IMU6, bool) {
	if a.ignore || !a.started {
		return events.IMU6{}, false
	}
	a.started = false

	if len(a.schedule) == 0 || a.fed != 2*len(a.schedule) {
		logger := a.log.Logger()
		logger.Info().
			Int("got", a.fed).
			Int("want", 2*len(a.schedule)).
			Msg("IMU end: incomplete sample, discarding")
		return events.IMU6{}, false
	}
	a.sample.Timestamp = ts
	return a.sample, true
}
