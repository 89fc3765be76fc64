package journal

import (
	"reflect"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/journal/internal/x/loggingx"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/journal/store/memorystore"
	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
	"github.com/dogmatiq/marshalkit/codec/protobuf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures the behavior of a journal.
type Option func(*journalOptions)

// WithStore returns an option that sets the factory used to open the store
// when the journal is started.
//
// If this option is omitted or f is nil, events are kept in a new in-memory
// store that does not outlive the journal.
func WithStore(f store.Factory) Option {
	return func(opts *journalOptions) {
		opts.StoreFactory = f
	}
}

// WithEventTypes returns an option that adds the types of the given events to
// the set of types supported by the default marshaler.
//
// It has no effect if WithMarshaler() is also used.
func WithEventTypes(events ...any) Option {
	return func(opts *journalOptions) {
		for _, ev := range events {
			opts.EventTypes = append(opts.EventTypes, reflect.TypeOf(ev))
		}
	}
}

// NewDefaultMarshaler returns the default marshaler to use for the given
// event types.
//
// Protocol buffers messages are marshaled in their native binary format,
// everything else is marshaled as JSON.
func NewDefaultMarshaler(types []reflect.Type) marshalkit.Marshaler {
	m, err := codec.NewMarshaler(
		types,
		[]codec.Codec{
			&protobuf.NativeCodec{},
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	return m
}

// WithMarshaler returns an option that sets the marshaler used to marshal and
// unmarshal events.
//
// If this option is omitted or m is nil, NewDefaultMarshaler() is called with
// the types given by WithEventTypes() to obtain the default marshaler.
func WithMarshaler(m marshalkit.ValueMarshaler) Option {
	return func(opts *journalOptions) {
		opts.Marshaler = m
	}
}

// DefaultLogger is the default target for log messages produced by the
// journal.
var DefaultLogger = logging.DefaultLogger

// WithLogger returns an option that sets the target for log messages produced
// by the journal.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *journalOptions) {
		opts.Logger = l
	}
}

// WithZapLogger returns an option that sends log messages produced by the
// journal to a zap logger.
//
// Debug messages are only produced if z is enabled at the debug level.
func WithZapLogger(z *zap.Logger) Option {
	return func(opts *journalOptions) {
		if z == nil {
			opts.Logger = nil
		} else {
			opts.Logger = &loggingx.Zap{Target: z}
		}
	}
}

// WithStoreConcurrencyLimit returns an option that limits the number of store
// operations that may be in progress at the same time, across all streams.
//
// If this option is omitted or n is zero, the number of concurrent operations
// is unlimited.
func WithStoreConcurrencyLimit(n uint) Option {
	return func(opts *journalOptions) {
		opts.StoreConcurrencyLimit = n
	}
}

// WithTracerProvider returns an option that sets the OpenTelemetry tracer
// provider used to trace store operations.
//
// If this option is omitted or tp is nil, the global tracer provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opts *journalOptions) {
		opts.TracerProvider = tp
	}
}

// journalOptions is a container for a fully-resolved set of journal options.
type journalOptions struct {
	StoreFactory          store.Factory
	EventTypes            []reflect.Type
	Marshaler             marshalkit.ValueMarshaler
	Logger                logging.Logger
	StoreConcurrencyLimit uint
	TracerProvider        trace.TracerProvider
}

// resolveOptions returns a fully-populated set of journal options built from
// the given set of option functions.
func resolveOptions(options []Option) *journalOptions {
	opts := &journalOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.StoreFactory == nil {
		opts.StoreFactory = memorystore.Factory(&memorystore.Store{})
	}

	if opts.Marshaler == nil {
		if len(opts.EventTypes) == 0 {
			panic("no event types are configured, use WithEventTypes() or WithMarshaler()")
		}

		opts.Marshaler = NewDefaultMarshaler(opts.EventTypes)
	}

	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return opts
}
