package server

import "time"

// Config configures the reactor.
type Config struct {
	// Addr is the "host:port" to listen on.
	Addr    string
	Backlog int

	// BufferSize is the per-connection buffer capacity and therefore
	// the largest request header section accepted.
	BufferSize int

	// MaxEvents bounds how many ready descriptors one wait returns.
	MaxEvents int

	// WaitTimeout bounds each readiness wait, and with it how long a
	// cancelled context goes unnoticed when there is no I/O.
	WaitTimeout time.Duration

	Logger Logger

	// Handler is bound to every accepted connection. Nil selects
	// HTTPHandler.
	Handler Handler
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		Backlog:     128,
		BufferSize:  1024,
		MaxEvents:   128,
		WaitTimeout: 100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Backlog <= 0 {
		c.Backlog = def.Backlog
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = def.MaxEvents
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = def.WaitTimeout
	}
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	return c
}
