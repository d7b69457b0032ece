// dvstreamd streams decoded dynamic-vision sensor events from a transport
// and logs per-container summaries. It exists for bring-up, captures and
// replay; the package API under internal/device is the real product surface.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tobias-Fischer/dvstream/internal/config"
	"github.com/Tobias-Fischer/dvstream/internal/device"
	"github.com/Tobias-Fischer/dvstream/internal/monitor"
	"github.com/Tobias-Fischer/dvstream/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(cfg.Level()).
		With().Timestamp().Logger()

	tr, stopMock, err := openTransport(cfg, logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	dev := device.New(device.Config{
		ID:                cfg.Device.ID,
		Protocol:          device.Protocol(cfg.Device.Protocol),
		SizeX:             cfg.Device.SizeX,
		SizeY:             cfg.Device.SizeY,
		InvertXY:          cfg.Device.InvertXY,
		FlipX:             cfg.Device.IMUFlipX,
		FlipY:             cfg.Device.IMUFlipY,
		FlipZ:             cfg.Device.IMUFlipZ,
		ExchangeCapacity:  cfg.Device.ExchangeCapacity,
		MaxPacketEvents:   cfg.Device.MaxPacketEvents,
		MaxIntervalMicros: cfg.Device.MaxIntervalMicros,
		ReadChunkBytes:    cfg.Transport.ReadChunkBytes,
	}, tr, logger)
	dev.SetLogLevel(cfg.Level())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdown := make(chan struct{}, 1)
	if err := dev.Start(device.Callbacks{
		Shutdown: func() {
			select {
			case shutdown <- struct{}{}:
			default:
			}
		},
	}); err != nil {
		return err
	}
	defer dev.Stop()

	if cfg.Monitor.Addr != "" {
		srv := &http.Server{
			Addr: cfg.Monitor.Addr,
			Handler: monitor.New(dev.Counters(),
				time.Duration(cfg.Monitor.IntervalMillis)*time.Millisecond, logger),
		}
		go func() {
			logger.Info().Str("addr", cfg.Monitor.Addr).Msg("monitor listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("monitor server failed")
			}
		}()
		defer srv.Close()
	}

	go consume(dev, logger)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-shutdown:
		logger.Info().Msg("stream ended, shutting down")
	}
	if stopMock != nil {
		stopMock()
	}
	return nil
}

func openTransport(cfg config.Config, logger zerolog.Logger) (transport.Transport, func(), error) {
	switch cfg.Transport.Kind {
	case "tcp":
		t, err := transport.DialTCP(cfg.Transport.Addr)
		return t, nil, err
	case "serial":
		t, err := transport.OpenSerial(transport.SerialConfig{
			Port:     cfg.Transport.SerialPort,
			BaudRate: cfg.Transport.BaudRate,
		})
		return t, nil, err
	case "replay":
		f, err := os.Open(cfg.Transport.ReplayFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open replay file: %w", err)
		}
		return transport.NewReplay(f), nil, nil
	case "mock":
		lb := transport.NewLoopback(16)
		stop := startMockStream(lb, logger)
		return lb, stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

// consume drains containers until the stream stops, logging summaries.
func consume(dev *device.Device, logger zerolog.Logger) {
	total := 0
	for {
		c := dev.Next(true)
		if c == nil {
			logger.Info().Int("events_total", total).Msg("consumer done")
			return
		}
		total += c.EventCount()
		logger.Debug().
			Int("events", c.EventCount()).
			Bool("polarity", c.Polarity != nil).
			Bool("special", c.Special != nil).
			Bool("imu", c.IMU6 != nil).
			Msg("container")
	}
}
