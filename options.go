package sensorfw

import "time"

// Defaults fixed by spec.md §6.1/§6.3/§5.
const (
	DefaultBusName    = "com.nokia.SensorService"
	DefaultSocketPath = "/run/sensord.sock"
	DefaultRetryDelay = 5 * time.Second
	DefaultMaxFrame   = 16
)

// options holds the per-Service configuration. Unlike the logging
// façade (internal/obslog, process-wide per spec.md §9), these belong
// to the connection, not the process, so they are plain constructor
// options rather than globals.
type options struct {
	busName    string
	socketPath string
	retryDelay time.Duration
	maxFrame   int
}

func defaultOptions() options {
	return options{
		busName:    DefaultBusName,
		socketPath: DefaultSocketPath,
		retryDelay: DefaultRetryDelay,
		maxFrame:   DefaultMaxFrame,
	}
}

// Option configures a Service at construction, following the functional
// option pattern used throughout logiface's own Logger construction.
type Option func(*options)

// WithBusName overrides the daemon's well-known bus name.
func WithBusName(name string) Option {
	return func(o *options) { o.busName = name }
}

// WithSocketPath overrides the data-plane Unix socket path.
func WithSocketPath(path string) Option {
	return func(o *options) { o.socketPath = path }
}

// WithRetryDelay overrides the uniform one-shot retry delay applied on
// any tier's Failed state (spec.md §5).
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// WithMaxFrame overrides the sample-count-per-frame upper bound (spec.md
// §4.3/§6.3 fixes this at 16; exposed for testing against non-conforming
// stubs).
func WithMaxFrame(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrame = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
