// Package device ties a transport, a protocol decoder, the batcher and the
// exchange queue into one per-sensor pipeline and owns its lifecycle. The
// Device handle is the public surface of the driver: consumers Start a
// stream, pull containers with Next, tune thresholds at runtime, and Stop.
package device

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Tobias-Fischer/dvstream/internal/batch"
	"github.com/Tobias-Fischer/dvstream/internal/decoder"
	"github.com/Tobias-Fischer/dvstream/internal/events"
	"github.com/Tobias-Fischer/dvstream/internal/exchange"
	"github.com/Tobias-Fischer/dvstream/internal/logging"
	"github.com/Tobias-Fischer/dvstream/internal/stats"
	"github.com/Tobias-Fischer/dvstream/internal/timestamp"
	"github.com/Tobias-Fischer/dvstream/internal/transport"
)

type Protocol string

const (
	// ProtocolDVX is the DVXplorer tagged-word stream.
	ProtocolDVX Protocol = "dvx"
	// ProtocolEDVS is the embedded-DVS 4-byte serial record stream.
	ProtocolEDVS Protocol = "edvs"
)

const (
	DefaultExchangeCapacity  = 64
	DefaultMaxPacketEvents   = 4096
	DefaultMaxIntervalMicros = 10000
	DefaultReadChunkBytes    = 8192

	dvxDefaultSizeX  = 640
	dvxDefaultSizeY  = 480
	edvsDefaultSizeX = 128
	edvsDefaultSizeY = 128
)

// edvsTSResetCommand is the in-band command that zeroes the device-side
// timestamp counter.
const edvsTSResetCommand = "!ET0\n"

var (
	ErrAlreadyRunning  = errors.New("device: stream already running")
	ErrUnknownProtocol = errors.New("device: unknown protocol")
)

// Callbacks are the optional consumer notifications.
type Callbacks struct {
	// DataAvailable fires after every container enqueue, from the producer
	// goroutine. Must not block.
	DataAvailable func()
	// Shutdown fires when the producer exits on its own (transport failure
	// or end of a replay), not on Stop.
	Shutdown func()
}

type Config struct {
	ID       int16
	Protocol Protocol

	// Sensor geometry; zero means the protocol's native resolution.
	SizeX, SizeY uint16
	InvertXY     bool
	// IMU axis orientation.
	FlipX, FlipY, FlipZ bool

	// ExchangeCapacity is the hand-off buffer depth in containers.
	ExchangeCapacity int
	// MaxPacketEvents is the size commit trigger; 0 keeps the default,
	// SetMaxPacketEvents(0) disables it at runtime.
	MaxPacketEvents int32
	// MaxIntervalMicros is the time commit trigger in stream microseconds.
	MaxIntervalMicros int64
	ReadChunkBytes    int
}

func (c Config) withDefaults() Config {
	if c.SizeX == 0 {
		if c.Protocol == ProtocolEDVS {
			c.SizeX = edvsDefaultSizeX
		} else {
			c.SizeX = dvxDefaultSizeX
		}
	}
	if c.SizeY == 0 {
		if c.Protocol == ProtocolEDVS {
			c.SizeY = edvsDefaultSizeY
		} else {
			c.SizeY = dvxDefaultSizeY
		}
	}
	if c.ExchangeCapacity <= 0 {
		c.ExchangeCapacity = DefaultExchangeCapacity
	}
	if c.MaxPacketEvents <= 0 {
		c.MaxPacketEvents = DefaultMaxPacketEvents
	}
	if c.MaxIntervalMicros <= 0 {
		c.MaxIntervalMicros = DefaultMaxIntervalMicros
	}
	if c.ReadChunkBytes <= 0 {
		c.ReadChunkBytes = DefaultReadChunkBytes
	}
	return c
}

// Device is the public handle for one sensor stream. All methods are safe
// for concurrent use.
type Device struct {
	cfg Config
	log *logging.Leveled
	tr  transport.Transport
	cb  Callbacks

	thresholds *batch.Thresholds
	counters   stats.Counters

	mu      sync.Mutex // serializes Start/Stop transitions
	running atomic.Bool
	queue   atomic.Pointer[exchange.Queue]
	done    chan struct{}

	resetRequest atomic.Bool
}

func New(cfg Config, tr transport.Transport, logger zerolog.Logger) *Device {
	cfg = cfg.withDefaults()
	return &Device{
		cfg: cfg,
		log: logging.New(logger.With().
			Str("device", fmt.Sprintf("%s-%d", cfg.Protocol, cfg.ID)).
			Logger()),
		tr:         tr,
		thresholds: batch.NewThresholds(cfg.MaxPacketEvents, cfg.MaxIntervalMicros),
	}
}

// Start builds a fresh pipeline and launches the producer goroutine.
func (d *Device) Start(cb Callbacks) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return ErrAlreadyRunning
	}
	d.cb = cb

	queue := exchange.New(d.cfg.ExchangeCapacity, cb.DataAvailable)
	ts := timestamp.New(d.log)
	b := batch.New(ts, d.thresholds, queue, &d.counters, d.log)

	var dec decoder.Decoder
	switch d.cfg.Protocol {
	case ProtocolDVX:
		dec = decoder.NewDVX(decoder.DVXConfig{
			SizeX:    d.cfg.SizeX,
			SizeY:    d.cfg.SizeY,
			InvertXY: d.cfg.InvertXY,
			FlipX:    d.cfg.FlipX,
			FlipY:    d.cfg.FlipY,
			FlipZ:    d.cfg.FlipZ,
		}, ts, b, d.log)
	case ProtocolEDVS:
		dec = decoder.NewEDVS(decoder.EDVSConfig{
			SizeX: d.cfg.SizeX,
			SizeY: d.cfg.SizeY,
		}, ts, b, &d.resetRequest, d.sendTimestampReset, d.log)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, d.cfg.Protocol)
	}

	d.queue.Store(queue)
	d.done = make(chan struct{})
	d.running.Store(true)
	go d.produce(dec)

	logger := d.log.Logger()
	logger.Debug().Msg("stream started")
	return nil
}

// produce is the single producer goroutine: the transport read loop feeding
// the whole decode pipeline.
func (d *Device) produce(dec decoder.Decoder) {
	defer close(d.done)

	buf := make([]byte, d.cfg.ReadChunkBytes)
	for d.running.Load() {
		n, err := d.tr.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger := d.log.Logger()
				logger.Debug().Msg("transport stream ended")
			} else if d.running.Load() {
				logger := d.log.Logger()
				logger.Error().Err(err).Msg("transport read failed")
			}
			if d.cb.Shutdown != nil {
				d.cb.Shutdown()
			}
			return
		}
		if n == 0 {
			// Poll timeout; loop back to re-check the run flag.
			continue
		}
		// Re-checked before touching pipeline state: Stop tears the
		// pipeline down only after this goroutine exits.
		if !d.running.Load() {
			return
		}
		d.counters.BytesIn.Add(int64(n))
		dec.Decode(buf[:n])
	}
}

// Stop clears the run flag, joins the producer and drains the queue. Safe to
// call when not running.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.running.Store(false)

	queue := d.queue.Load()
	// Closing first unblocks a producer stuck in a forced delivery.
	queue.Close()
	<-d.done

	if dropped := queue.Drain(); dropped > 0 {
		logger := d.log.Logger()
		logger.Debug().
			Int("containers", dropped).
			Msg("drained exchange buffer")
	}
	logger := d.log.Logger()
	logger.Debug().Msg("stream stopped")
}

// Next dequeues the next committed container. With blocking set it waits
// until data arrives or the stream stops; otherwise it returns nil
// immediately when the buffer is empty.
func (d *Device) Next(blocking bool) *events.Container {
	queue := d.queue.Load()
	if queue == nil {
		return nil
	}
	return queue.Get(blocking)
}

func (d *Device) Running() bool {
	return d.running.Load()
}

// RequestTimestampReset asks the stream to zero its timestamp base. The
// producer honors it at the next record boundary; protocols without a
// driver-side reset path ignore it.
func (d *Device) RequestTimestampReset() {
	d.resetRequest.Store(true)
}

func (d *Device) sendTimestampReset() {
	if err := d.tr.WriteCommand(edvsTSResetCommand); err != nil {
		logger := d.log.Logger()
		logger.Error().Err(err).Msg("failed to send timestamp reset command")
	}
}

func (d *Device) Counters() *stats.Counters {
	return &d.counters
}

func (d *Device) MaxPacketEvents() int32 {
	return d.thresholds.MaxPacketEvents()
}

func (d *Device) SetMaxPacketEvents(n int32) {
	d.thresholds.SetMaxPacketEvents(n)
}

func (d *Device) MaxInterval() int64 {
	return d.thresholds.MaxInterval()
}

func (d *Device) SetMaxInterval(micros int64) {
	d.thresholds.SetMaxInterval(micros)
}

func (d *Device) LogLevel() zerolog.Level {
	return d.log.Level()
}

func (d *Device) SetLogLevel(level zerolog.Level) {
	d.log.SetLevel(level)
}
