package dfu

import "time"

// Default settings.
const (
	// DefaultReadTimeout bounds each wait for a device response
	DefaultReadTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of times a failed chunk is resent
	DefaultMaxRetries = 5
)

// Config holds the configuration shared by Transfer, Exchange and Operation.
type Config struct {
	// ProgressCallback is called to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// ReadTimeout bounds each Exchange.Read
	ReadTimeout time.Duration

	// PRN is the packet receipt notification interval used by Exchange.
	// 0 disables windowed checksum checks.
	PRN int

	// MaxRetries is the number of times a chunk is resent after a
	// checksum or offset mismatch before the transfer fails
	MaxRetries int
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		ReadTimeout: DefaultReadTimeout,
		MaxRetries:  DefaultMaxRetries,
	}
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option is a functional option for configuring dfu components.
type Option func(*Config)

// WithProgressCallback sets a callback function to track transfer progress.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger.
//
// Example:
//
//	t := dfu.NewTransfer(transport, dfu.WithLogger(logging.NewZap(zapLogger)))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithReadTimeout sets how long Exchange.Read waits for a response.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadTimeout = timeout
		}
	}
}

// WithPRN sets the packet receipt notification interval.
// Values outside 0..0xFFFF are rejected by the device negotiation.
func WithPRN(prn int) Option {
	return func(c *Config) {
		c.PRN = prn
	}
}

// WithMaxRetries sets how many times a chunk is resent.
//
// Example:
//
//	t := dfu.NewTransfer(transport, dfu.WithMaxRetries(2))
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.MaxRetries = retries
		}
	}
}

// reportProgress calls the progress callback if one is configured.
func (c *Config) reportProgress(progress Progress) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (c *Config) logDebug(msg string, keysAndValues ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (c *Config) logInfo(msg string, keysAndValues ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (c *Config) logError(msg string, keysAndValues ...interface{}) {
	if c.Logger != nil {
		c.Logger.Error(msg, keysAndValues...)
	}
}
