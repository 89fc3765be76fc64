package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name passed to TracerProvider.Tracer() by every
// traced component in the journal.
const InstrumentationName = "github.com/dogmatiq/journal"

var (
	// PersistenceIDKey is a span attribute key for the persistence identifier
	// of the stream being operated on.
	PersistenceIDKey = attribute.Key("journal.persistence_id")

	// MediaTypeKey is a span attribute key for the media-type of an event
	// being appended.
	MediaTypeKey = attribute.Key("journal.media_type")

	// RecordCountKey is a span attribute key for the number of records read
	// from a stream.
	RecordCountKey = attribute.Key("journal.record_count")
)

// End records err on span, if it is non-nil, then ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
