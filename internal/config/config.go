package config

import (
	"fmt"
	"time"
)

// Transport names accepted for Config.Transport.
const (
	TransportWebsocket = "websocket"
	TransportSocketIO  = "socketio"
)

// Config is the full process configuration.
type Config struct {
	BackendURL      string `hcl:"backend_url,optional" yaml:"backend_url" validate:"required,url"`
	Transport       string `hcl:"transport,optional" yaml:"transport" validate:"oneof=websocket socketio"`
	ClientID        string `hcl:"client_id,optional" yaml:"client_id"`
	Workspace       string `hcl:"workspace,optional" yaml:"workspace"`
	QueueSize       int    `hcl:"queue_size,optional" yaml:"queue_size" validate:"gte=1,lte=4096"`
	HealthcheckPort int    `hcl:"healthcheck_port,optional" yaml:"healthcheck_port" validate:"gte=0,lte=65535"`
	ReconnectDelay  string `hcl:"reconnect_delay,optional" yaml:"reconnect_delay" validate:"duration"`

	Log      *Log      `hcl:"log,block" yaml:"log" validate:"required"`
	Fetch    *Fetch    `hcl:"fetch,block" yaml:"fetch" validate:"required"`
	SocketIO *SocketIO `hcl:"socketio,block" yaml:"socketio" validate:"required"`
	Terminal *Terminal `hcl:"terminal,block" yaml:"terminal" validate:"required"`
}

// Log configures the process logger.
type Log struct {
	Level  string `hcl:"level,optional" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `hcl:"format,optional" yaml:"format" validate:"oneof=text json"`
}

// Fetch configures definition fetches.
type Fetch struct {
	Timeout         string `hcl:"timeout,optional" yaml:"timeout" validate:"duration"`
	BreakerFailures int    `hcl:"breaker_failures,optional" yaml:"breaker_failures" validate:"gte=1"`
	BreakerCooldown string `hcl:"breaker_cooldown,optional" yaml:"breaker_cooldown" validate:"duration"`
}

// SocketIO configures the socket.io transport.
type SocketIO struct {
	Namespace          string `hcl:"namespace,optional" yaml:"namespace" validate:"startswith=/"`
	Path               string `hcl:"path,optional" yaml:"path" validate:"startswith=/"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional" yaml:"insecure_skip_verify"`
}

// Terminal configures the terminal line buffer.
type Terminal struct {
	Capacity int `hcl:"capacity,optional" yaml:"capacity" validate:"gte=1"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills every zero-valued field.
func (c *Config) applyDefaults() {
	setDefault(&c.BackendURL, "http://127.0.0.1:8188")
	setDefault(&c.Transport, TransportWebsocket)
	setDefault(&c.QueueSize, 16)
	setDefault(&c.ReconnectDelay, "2s")

	if c.Log == nil {
		c.Log = &Log{}
	}
	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "json")

	if c.Fetch == nil {
		c.Fetch = &Fetch{}
	}
	setDefault(&c.Fetch.Timeout, "10s")
	setDefault(&c.Fetch.BreakerFailures, 5)
	setDefault(&c.Fetch.BreakerCooldown, "30s")

	if c.SocketIO == nil {
		c.SocketIO = &SocketIO{}
	}
	setDefault(&c.SocketIO.Namespace, "/")
	setDefault(&c.SocketIO.Path, "/socket.io/")

	if c.Terminal == nil {
		c.Terminal = &Terminal{}
	}
	setDefault(&c.Terminal.Capacity, 1024)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// ReconnectDelayDuration returns ReconnectDelay parsed. Call after Validate.
func (c *Config) ReconnectDelayDuration() time.Duration {
	return mustDuration(c.ReconnectDelay)
}

// TimeoutDuration returns Timeout parsed. Call after Validate.
func (f *Fetch) TimeoutDuration() time.Duration {
	return mustDuration(f.Timeout)
}

// BreakerCooldownDuration returns BreakerCooldown parsed. Call after Validate.
func (f *Fetch) BreakerCooldownDuration() time.Duration {
	return mustDuration(f.BreakerCooldown)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("duration %q was not validated: %v", s, err))
	}
	return d
}
