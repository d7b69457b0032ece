// Package config loads the daemon configuration: compiled-in defaults,
// overlaid by an optional TOML file, overlaid by environment variables.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

type Config struct {
	LogLevel string `toml:"log_level" env:"DVSTREAM_LOG_LEVEL"`

	Device    Device    `toml:"device"`
	Transport Transport `toml:"transport"`
	Monitor   Monitor   `toml:"monitor"`
}

type Device struct {
	ID       int16  `toml:"id" env:"DVSTREAM_DEVICE_ID"`
	Protocol string `toml:"protocol" env:"DVSTREAM_PROTOCOL"`

	// Sensor geometry; zero keeps the protocol's native resolution.
	SizeX    uint16 `toml:"size_x" env:"DVSTREAM_SIZE_X"`
	SizeY    uint16 `toml:"size_y" env:"DVSTREAM_SIZE_Y"`
	InvertXY bool   `toml:"invert_xy" env:"DVSTREAM_INVERT_XY"`

	IMUFlipX bool `toml:"imu_flip_x" env:"DVSTREAM_IMU_FLIP_X"`
	IMUFlipY bool `toml:"imu_flip_y" env:"DVSTREAM_IMU_FLIP_Y"`
	IMUFlipZ bool `toml:"imu_flip_z" env:"DVSTREAM_IMU_FLIP_Z"`

	ExchangeCapacity  int   `toml:"exchange_capacity" env:"DVSTREAM_EXCHANGE_CAPACITY"`
	MaxPacketEvents   int32 `toml:"max_packet_events" env:"DVSTREAM_MAX_PACKET_EVENTS"`
	MaxIntervalMicros int64 `toml:"max_interval_micros" env:"DVSTREAM_MAX_INTERVAL_MICROS"`
}

type Transport struct {
	// Kind selects the byte source: tcp, serial, replay or mock.
	Kind string `toml:"kind" env:"DVSTREAM_TRANSPORT"`

	Addr           string `toml:"addr" env:"DVSTREAM_ADDR"`
	SerialPort     string `toml:"serial_port" env:"DVSTREAM_SERIAL_PORT"`
	BaudRate       int    `toml:"baud_rate" env:"DVSTREAM_BAUD_RATE"`
	// ReplayFile is the raw capture streamed when kind is replay.
	ReplayFile     string `toml:"replay_file" env:"DVSTREAM_REPLAY_FILE"`
	ReadChunkBytes int    `toml:"read_chunk_bytes" env:"DVSTREAM_READ_CHUNK_BYTES"`
}

type Monitor struct {
	// Addr is the statistics websocket listen address; empty disables it.
	Addr           string `toml:"addr" env:"DVSTREAM_MONITOR_ADDR"`
	IntervalMillis int    `toml:"interval_millis" env:"DVSTREAM_MONITOR_INTERVAL_MILLIS"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Device: Device{
			Protocol:          "dvx",
			ExchangeCapacity:  64,
			MaxPacketEvents:   4096,
			MaxIntervalMicros: 10000,
		},
		Transport: Transport{
			Kind:           "tcp",
			Addr:           "127.0.0.1:4040",
			BaudRate:       4000000,
			ReadChunkBytes: 8192,
		},
		Monitor: Monitor{
			IntervalMillis: 1000,
		},
	}
}

// Load builds the effective configuration. path may be empty to skip the
// file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Device.Protocol {
	case "dvx", "edvs":
	default:
		return fmt.Errorf("config: unknown protocol %q", c.Device.Protocol)
	}
	switch c.Transport.Kind {
	case "tcp", "serial", "mock":
	case "replay":
		if c.Transport.ReplayFile == "" {
			return fmt.Errorf("config: replay transport needs replay_file")
		}
	default:
		return fmt.Errorf("config: unknown transport kind %q", c.Transport.Kind)
	}
	if c.Device.MaxIntervalMicros < 1 {
		return fmt.Errorf("config: max_interval_micros must be positive, got %d", c.Device.MaxIntervalMicros)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	return nil
}

// Level returns the parsed log level; call after validation.
func (c Config) Level() zerolog.Level {
	level, _ := zerolog.ParseLevel(c.LogLevel)
	return level
}
