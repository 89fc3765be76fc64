package store

import (
	"github.com/dogmatiq/dodeca/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// HandleOption configures the behavior of a Handle.
type HandleOption func(*handleOptions)

// WithConcurrencyLimit returns a handle option that limits the number of
// store operations that may be in progress at the same time, across all
// streams.
//
// If this option is omitted or n is zero, the number of concurrent operations
// is unlimited.
func WithConcurrencyLimit(n uint) HandleOption {
	return func(opts *handleOptions) {
		opts.ConcurrencyLimit = n
	}
}

// WithTracerProvider returns a handle option that sets the OpenTelemetry
// tracer provider used to trace store operations.
//
// If this option is omitted or tp is nil, the global tracer provider is used.
func WithTracerProvider(tp trace.TracerProvider) HandleOption {
	return func(opts *handleOptions) {
		opts.TracerProvider = tp
	}
}

// WithLogger returns a handle option that sets the target for log messages
// produced by the handle.
//
// If this option is omitted or l is nil, logging.DefaultLogger is used.
func WithLogger(l logging.Logger) HandleOption {
	return func(opts *handleOptions) {
		opts.Logger = l
	}
}

// handleOptions is a container for a fully-resolved set of handle options.
type handleOptions struct {
	ConcurrencyLimit uint
	TracerProvider   trace.TracerProvider
	Logger           logging.Logger
}

// resolveHandleOptions returns a fully-populated set of handle options built
// from the given set of option functions.
func resolveHandleOptions(options ...HandleOption) *handleOptions {
	opts := &handleOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}

	return opts
}
