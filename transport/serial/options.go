package serial

import (
	"time"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/slip"
)

// Default settings.
const (
	// DefaultBaudRate matches the nRF5 SDK serial bootloader
	DefaultBaudRate = 115200

	// DefaultPRN is the packet receipt notification interval negotiated on open
	DefaultPRN = 16

	// DefaultPortRetries is how many times the port list is polled for the port
	DefaultPortRetries = 50

	// DefaultPortRetryInterval is the wait between port list polls
	DefaultPortRetryInterval = 200 * time.Millisecond
)

// Config holds serial transport settings.
type Config struct {
	// BaudRate of the port. Ignored by NewWithPort.
	BaudRate int

	// PRN is the packet receipt notification interval. 0 disables it.
	PRN int

	// ReadTimeout bounds each wait for a response
	ReadTimeout time.Duration

	// PortRetries is how many times the port list is polled before the
	// port is reported missing. A device that just rebooted into its
	// bootloader may take a few seconds to enumerate.
	PortRetries int

	// PortRetryInterval is the wait between polls
	PortRetryInterval time.Duration

	// MaxMessageSize is the largest response frame accepted
	MaxMessageSize int

	// Logger is used for logging operations (optional)
	Logger dfu.Logger
}

func defaultConfig() Config {
	return Config{
		BaudRate:          DefaultBaudRate,
		PRN:               DefaultPRN,
		ReadTimeout:       dfu.DefaultReadTimeout,
		PortRetries:       DefaultPortRetries,
		PortRetryInterval: DefaultPortRetryInterval,
		MaxMessageSize:    slip.DefaultMaxMessageSize,
	}
}

// Option is a functional option for configuring a Transport.
type Option func(*Config)

// WithBaudRate sets the baud rate.
func WithBaudRate(baud int) Option {
	return func(c *Config) {
		if baud > 0 {
			c.BaudRate = baud
		}
	}
}

// WithPRN sets the packet receipt notification interval.
func WithPRN(prn int) Option {
	return func(c *Config) {
		c.PRN = prn
	}
}

// WithReadTimeout sets how long a request waits for its response.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadTimeout = timeout
		}
	}
}

// WithPortRetries sets how many times the port list is polled.
func WithPortRetries(retries int) Option {
	return func(c *Config) {
		if retries > 0 {
			c.PortRetries = retries
		}
	}
}

// WithPortRetryInterval sets the wait between port list polls.
func WithPortRetryInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.PortRetryInterval = interval
		}
	}
}

// WithMaxMessageSize sets the largest response frame accepted.
func WithMaxMessageSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.MaxMessageSize = size
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger dfu.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func (c *Config) logDebug(msg string, keysAndValues ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debug(msg, keysAndValues...)
	}
}

func (c *Config) logInfo(msg string, keysAndValues ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(msg, keysAndValues...)
	}
}

func (c *Config) logError(msg string, keysAndValues ...interface{}) {
	if c.Logger != nil {
		c.Logger.Error(msg, keysAndValues...)
	}
}
