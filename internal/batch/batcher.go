// Package batch accumulates decoded events into per-type packets and decides
// when the accumulated set becomes a committed container on the exchange
// queue. Commits trigger on packet size, on elapsed stream time, and
// unconditionally on timestamp reset or big-wrap boundaries.
package batch

import (
	"sync/atomic"

	"github.com/Tobias-Fischer/dvstream/internal/events"
	"github.com/Tobias-Fischer/dvstream/internal/exchange"
	"github.com/Tobias-Fischer/dvstream/internal/logging"
	"github.com/Tobias-Fischer/dvstream/internal/stats"
	"github.com/Tobias-Fischer/dvstream/internal/timestamp"
)

// Initial packet capacities. Packets grow past these on demand.
const (
	DefaultPolarityCapacity = 4096
	DefaultSpecialCapacity  = 128
	DefaultIMUCapacity      = 64
)

// Thresholds are the runtime-tunable commit triggers. Control goroutines may
// change them at any time; the decode loop reads them once per evaluation.
type Thresholds struct {
	maxPacketEvents atomic.Int32
	maxInterval     atomic.Int64
}

// NewThresholds sets the size trigger (events per packet, 0 disables) and
// the time trigger (µs of stream time per container).
func NewThresholds(maxPacketEvents int32, maxIntervalMicros int64) *Thresholds {
	t := &Thresholds{}
	t.SetMaxPacketEvents(maxPacketEvents)
	t.SetMaxInterval(maxIntervalMicros)
	return t
}

func (t *Thresholds) MaxPacketEvents() int32 {
	return t.maxPacketEvents.Load()
}

func (t *Thresholds) SetMaxPacketEvents(n int32) {
	if n < 0 {
		n = 0
	}
	t.maxPacketEvents.Store(n)
}

func (t *Thresholds) MaxInterval() int64 {
	return t.maxInterval.Load()
}

func (t *Thresholds) SetMaxInterval(micros int64) {
	if micros < 1 {
		micros = 1
	}
	t.maxInterval.Store(micros)
}

// Batcher owns the in-progress packets. On commit, non-empty packets move
// into a fresh container and the slots clear; the next event of a type
// allocates a new packet stamped with the overflow epoch current then.
type Batcher struct {
	log      *logging.Leveled
	ts       *timestamp.State
	thr      *Thresholds
	queue    *exchange.Queue
	counters *stats.Counters

	polarity *events.Packet[events.Polarity]
	special  *events.Packet[events.Special]
	imu6     *events.Packet[events.IMU6]

	// commitTS is the full-timestamp deadline of the time trigger, -1 until
	// armed by the first evaluation after start or reset.
	commitTS int64
}

func New(ts *timestamp.State, thr *Thresholds, queue *exchange.Queue, counters *stats.Counters, log *logging.Leveled) *Batcher {
	return &Batcher{
		log:      log,
		ts:       ts,
		thr:      thr,
		queue:    queue,
		counters: counters,
		commitTS: -1,
	}
}

func (b *Batcher) AppendPolarity(e events.Polarity) {
	if b.polarity == nil {
		b.polarity = events.NewPacket[events.Polarity](DefaultPolarityCapacity, b.ts.WrapOverflow)
	}
	b.polarity.Append(e)
	b.counters.PolarityEvents.Add(1)
}

// GrowPolarity reserves room for a pixel burst so the burst's appends cannot
// reallocate mid-burst.
func (b *Batcher) GrowPolarity(n int) {
	if b.polarity == nil {
		b.polarity = events.NewPacket[events.Polarity](DefaultPolarityCapacity, b.ts.WrapOverflow)
	}
	b.polarity.Grow(n)
}

func (b *Batcher) AppendSpecial(e events.Special) {
	if b.special == nil {
		b.special = events.NewPacket[events.Special](DefaultSpecialCapacity, b.ts.WrapOverflow)
	}
	b.special.Append(e)
	b.counters.SpecialEvents.Add(1)
}

func (b *Batcher) AppendIMU6(e events.IMU6) {
	if b.imu6 == nil {
		b.imu6 = events.NewPacket[events.IMU6](DefaultIMUCapacity, b.ts.WrapOverflow)
	}
	b.imu6.Append(e)
	b.counters.IMUEvents.Add(1)
}

// CommitIfDue evaluates all commit triggers after one decoded token. The
// returned forced flag tells the caller a stream discontinuity happened and
// any composite sample in flight must be abandoned.
func (b *Batcher) CommitIfDue(tsReset, tsBigWrap bool) (forced bool) {
	maxEvents := b.thr.MaxPacketEvents()
	sizeCommit := maxEvents > 0 &&
		((b.polarity != nil && int32(b.polarity.Len()) >= maxEvents) ||
			(b.special != nil && int32(b.special.Len()) >= maxEvents) ||
			(b.imu6 != nil && int32(b.imu6.Len()) >= maxEvents))

	full := b.ts.Full()
	if b.commitTS < 0 {
		b.commitTS = full + b.thr.MaxInterval() - 1
	}
	timeCommit := full > b.commitTS

	if tsReset || tsBigWrap || sizeCommit || timeCommit {
		b.commit(timeCommit)
	}

	if tsReset {
		b.commitTS = -1
		b.commitReset()
	}
	return tsReset || tsBigWrap
}

func (b *Batcher) commit(rearmDeadline bool) {
	c := &events.Container{}
	if b.polarity != nil && b.polarity.Len() > 0 {
		c.Polarity = b.polarity
		b.polarity = nil
	}
	if b.special != nil && b.special.Len() > 0 {
		c.Special = b.special
		b.special = nil
	}
	if b.imu6 != nil && b.imu6.Len() > 0 {
		c.IMU6 = b.imu6
		b.imu6 = nil
	}

	if rearmDeadline {
		// Stepped in interval increments so sparse streams keep deadlines
		// aligned to the original grid.
		interval := b.thr.MaxInterval()
		for full := b.ts.Full(); full > b.commitTS; {
			b.commitTS += interval
		}
	}

	if c.Empty() {
		return
	}

	if err := b.queue.Put(c); err != nil {
		b.counters.ContainersDropped.Add(1)
		logger := b.log.Logger()
		logger.Warn().
			Int("events", c.EventCount()).
			Msg("exchange buffer full, dropping container")
		return
	}
	b.counters.ContainersDelivered.Add(1)
}

// commitReset delivers the reset marker alone in its own container, through
// the forced path: the consumer must never miss it while the stream runs.
func (b *Batcher) commitReset() {
	p := events.NewPacket[events.Special](1, b.ts.WrapOverflow)
	p.Append(events.Special{Timestamp: events.TimestampMax, Type: events.TimestampReset})

	if !b.queue.PutForced(&events.Container{Special: p}) {
		logger := b.log.Logger()
		logger.Debug().Msg("stream stopped while delivering reset container")
		return
	}
	b.counters.SpecialEvents.Add(1)
	b.counters.ContainersDelivered.Add(1)
}
