package store

import (
	"context"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/journal/internal/tracing"
	"github.com/dogmatiq/marshalkit"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Handle is the single, shared point of access to a Store.
//
// It is safe for concurrent use. Failures are reported as *Error values.
type Handle struct {
	store  Store
	sem    *semaphore.Weighted
	tracer trace.Tracer
	logger logging.Logger

	m      sync.RWMutex
	closed bool
}

// Open calls f to open a store and returns a handle to it.
func Open(
	ctx context.Context,
	f Factory,
	options ...HandleOption,
) (*Handle, error) {
	if f == nil {
		panic("store factory must not be nil")
	}

	opts := resolveHandleOptions(options...)

	s, err := f(ctx)
	if err != nil {
		return nil, &Error{Op: OpenOp, Cause: err}
	}

	h := &Handle{
		store:  s,
		tracer: opts.TracerProvider.Tracer(tracing.InstrumentationName),
		logger: opts.Logger,
	}

	if opts.ConcurrencyLimit > 0 {
		h.sem = semaphore.NewWeighted(int64(opts.ConcurrencyLimit))
	}

	logging.Debug(h.logger, "store opened (%T)", s)

	return h, nil
}

// Append appends an event to the stream identified by id.
func (h *Handle) Append(
	ctx context.Context,
	id string,
	p marshalkit.Packet,
) (err error) {
	ctx, span := h.tracer.Start(
		ctx,
		"journal.store.append",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			tracing.PersistenceIDKey.String(id),
			tracing.MediaTypeKey.String(p.MediaType),
		),
	)
	defer func() {
		tracing.End(span, err)
	}()

	release, err := h.acquire(ctx)
	if err != nil {
		return &Error{Op: AppendOp, PersistenceID: id, Cause: err}
	}
	defer release()

	if err := h.store.Append(ctx, id, p); err != nil {
		logging.Debug(h.logger, "unable to append to stream '%s': %s", id, err)
		return &Error{Op: AppendOp, PersistenceID: id, Cause: err}
	}

	return nil
}

// ReadAll returns every event in the stream identified by id, in order.
func (h *Handle) ReadAll(
	ctx context.Context,
	id string,
) (_ []Record, err error) {
	ctx, span := h.tracer.Start(
		ctx,
		"journal.store.read_all",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			tracing.PersistenceIDKey.String(id),
		),
	)
	defer func() {
		tracing.End(span, err)
	}()

	release, err := h.acquire(ctx)
	if err != nil {
		return nil, &Error{Op: ReadOp, PersistenceID: id, Cause: err}
	}
	defer release()

	records, err := h.store.ReadAll(ctx, id)
	if err != nil {
		logging.Debug(h.logger, "unable to read stream '%s': %s", id, err)
		return nil, &Error{Op: ReadOp, PersistenceID: id, Cause: err}
	}

	span.SetAttributes(tracing.RecordCountKey.Int(len(records)))

	return records, nil
}

// Close closes the underlying store.
//
// It blocks until any in-progress operations have completed. Any future
// operations fail with ErrClosed.
func (h *Handle) Close() error {
	h.m.Lock()
	defer h.m.Unlock()

	if h.closed {
		return ErrClosed
	}

	h.closed = true
	logging.Debug(h.logger, "store closed (%T)", h.store)

	return h.store.Close()
}

// acquire obtains permission to perform an operation on the store.
//
// The returned function must be called when the operation is complete.
func (h *Handle) acquire(ctx context.Context) (func(), error) {
	h.m.RLock()

	if h.closed {
		h.m.RUnlock()
		return nil, ErrClosed
	}

	if h.sem == nil {
		return h.m.RUnlock, nil
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		h.m.RUnlock()
		return nil, err
	}

	return func() {
		h.sem.Release(1)
		h.m.RUnlock()
	}, nil
}
