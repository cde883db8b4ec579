// Package config loads the hub's YAML configuration over built-in defaults
// and validates it before anything is started.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sencol/hub/internal/logger"
	"github.com/sencol/hub/internal/stream"
)

// Transports a device may use.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
	TransportMock   = "mock"
)

// Framings for activation commands.
const (
	FramingZephyr = "zephyr"
	FramingText   = "text"
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Logging    logger.Config     `yaml:"logging"`
	Session    SessionConfig     `yaml:"session"`
	Broadcast  BroadcastConfig   `yaml:"broadcast"`
	Devices    []DeviceConfig    `yaml:"devices"`
	NATS       NATSConfig        `yaml:"nats"`
	Companions []CompanionConfig `yaml:"companions"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SessionConfig struct {
	DataDir       string        `yaml:"data_dir"`
	DefaultPrefix string        `yaml:"default_prefix"`
	AutoUnlock    bool          `yaml:"auto_unlock"`
	StartLogging  bool          `yaml:"start_logging"`
	FlushInterval time.Duration `yaml:"flush_interval"` // 0 flushes only on lock
}

type BroadcastConfig struct {
	ClientBuffer int `yaml:"client_buffer"`
}

// DeviceConfig declares one sensor. Activation nil means the family's
// default sequence; an empty list sends nothing.
type DeviceConfig struct {
	ID             string           `yaml:"id"`
	Family         string           `yaml:"family"`
	Label          string           `yaml:"label"`
	Transport      string           `yaml:"transport"`
	Address        string           `yaml:"address"`
	Active         *bool            `yaml:"active"`
	ReconnectDelay time.Duration    `yaml:"reconnect_delay"`
	Framing        string           `yaml:"framing"`
	Activation     *[]CommandConfig `yaml:"activation"`
	Buffers        map[string]int   `yaml:"buffers"`
}

type CommandConfig struct {
	ID      int   `yaml:"id"`
	Payload []int `yaml:"payload"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Name    string `yaml:"name"`
}

// CompanionConfig declares an external recorder that follows the lock.
type CompanionConfig struct {
	Name        string        `yaml:"name"`
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	Active      *bool         `yaml:"active"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// Error reports an unusable configuration. The hub refuses to start.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Logging: logger.Config{
			Level: "info",
		},
		Session: SessionConfig{
			DataDir:       "data",
			DefaultPrefix: "UNNAMED",
			FlushInterval: time.Second,
		},
		Broadcast: BroadcastConfig{
			ClientBuffer: 256,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "sencol.live",
			Name:    "sencol-hub",
		},
	}
}

// Default returns the built-in configuration with one simulated
// Bioharness, for running without a file.
func Default() *Config {
	cfg := defaultConfig()
	cfg.Devices = []DeviceConfig{{ID: "bioharness", Family: "bioharness", Transport: TransportMock, Address: "sim"}}
	cfg.applyDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		d.Family = strings.ToLower(strings.TrimSpace(d.Family))
		if d.Transport == "" {
			d.Transport = TransportSerial
		}
		if d.Framing == "" {
			d.Framing = FramingZephyr
		}
		if d.ReconnectDelay == 0 {
			d.ReconnectDelay = 5 * time.Second
		}
	}
	for i := range c.Companions {
		if c.Companions[i].StopTimeout == 0 {
			c.Companions[i].StopTimeout = 5 * time.Second
		}
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Session.DataDir) == "" {
		add("session.data_dir is empty")
	}
	if c.Session.DefaultPrefix == "" || strings.ContainsAny(c.Session.DefaultPrefix, `/\`) {
		add("session.default_prefix %q is not a valid directory prefix", c.Session.DefaultPrefix)
	}
	if c.Session.FlushInterval < 0 {
		add("session.flush_interval must not be negative")
	}
	if c.Broadcast.ClientBuffer <= 0 {
		add("broadcast.client_buffer must be positive")
	}

	ids := make(map[string]bool)
	streams := make(map[stream.Key]string)
	active := 0
	for i, d := range c.Devices {
		where := fmt.Sprintf("devices[%d]", i)
		if d.ID == "" {
			add("%s: id is required", where)
		} else if ids[d.ID] {
			add("%s: duplicate id %q", where, d.ID)
		}
		ids[d.ID] = true

		fam, err := stream.ParseFamily(d.Family)
		if err != nil {
			add("%s: %v", where, err)
			continue
		}
		switch d.Transport {
		case TransportTCP, TransportSerial:
			if d.Address == "" {
				add("%s: address is required for %s transport", where, d.Transport)
			}
		case TransportMock:
		default:
			add("%s: unknown transport %q", where, d.Transport)
		}
		if d.Framing != FramingZephyr && d.Framing != FramingText {
			add("%s: unknown framing %q", where, d.Framing)
		}
		if d.ReconnectDelay < 0 {
			add("%s: reconnect_delay must be positive", where)
		}
		if strings.ContainsAny(d.Label, `/\.`) {
			add("%s: label %q may not contain '/', '\\' or '.'", where, d.Label)
		}
		defaults := fam.DefaultBuffers()
		for ch, n := range d.Buffers {
			if _, ok := defaults[ch]; !ok {
				add("%s: unknown buffer channel %q for %s", where, ch, fam)
			} else if n <= 0 {
				add("%s: buffer %q capacity must be positive", where, ch)
			}
		}
		if d.Activation != nil {
			for j, cmd := range *d.Activation {
				if cmd.ID < 0 || cmd.ID > 0xFF {
					add("%s.activation[%d]: id %d is not a byte", where, j, cmd.ID)
				}
				for _, b := range cmd.Payload {
					if b < 0 || b > 0xFF {
						add("%s.activation[%d]: payload value %d is not a byte", where, j, b)
					}
				}
			}
		}
		if !d.IsActive() {
			continue
		}
		active++
		for _, k := range stream.Keys(fam, d.Label) {
			if other, ok := streams[k]; ok {
				add("%s: stream %s already declared by device %q", where, k, other)
			}
			streams[k] = d.ID
		}
	}
	if active == 0 {
		add("no active devices")
	}

	if c.NATS.Enabled && (c.NATS.URL == "" || c.NATS.Subject == "") {
		add("nats: url and subject are required when enabled")
	}
	for i, cp := range c.Companions {
		if cp.Name == "" || cp.Command == "" {
			add("companions[%d]: name and command are required", i)
		}
	}

	if len(errs) > 0 {
		return &Error{Err: errors.Join(errs...)}
	}
	return nil
}

// UseMock switches every device to the simulated transport.
func (c *Config) UseMock() {
	for i := range c.Devices {
		c.Devices[i].Transport = TransportMock
	}
}

// ActiveDevices returns the devices that should be connected.
func (c *Config) ActiveDevices() []DeviceConfig {
	var out []DeviceConfig
	for _, d := range c.Devices {
		if d.IsActive() {
			out = append(out, d)
		}
	}
	return out
}

// ActiveCompanions returns the companions that should follow the lock.
func (c *Config) ActiveCompanions() []CompanionConfig {
	var out []CompanionConfig
	for _, cp := range c.Companions {
		if cp.Active == nil || *cp.Active {
			out = append(out, cp)
		}
	}
	return out
}

// IsActive reports whether the device is enabled; devices default to
// active.
func (d DeviceConfig) IsActive() bool { return d.Active == nil || *d.Active }

// BufferSizes merges overrides over the family defaults.
func (d DeviceConfig) BufferSizes(f stream.Family) map[string]int {
	sizes := f.DefaultBuffers()
	for ch, n := range d.Buffers {
		if _, ok := sizes[ch]; ok {
			sizes[ch] = n
		}
	}
	return sizes
}
