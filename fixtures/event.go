package fixtures

import (
	"reflect"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
	"github.com/dogmatiq/marshalkit/codec/protobuf"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TestEvent is an event type marshaled as JSON.
type TestEvent struct {
	Value string `json:"value"`
}

// TestEventA1 etc are events with recognisable values.
var (
	TestEventA1 = TestEvent{Value: "A1"}
	TestEventA2 = TestEvent{Value: "A2"}
	TestEventA3 = TestEvent{Value: "A3"}
	TestEventB1 = TestEvent{Value: "B1"}
)

// NewProtoEvent returns an event that is marshaled as a protocol buffers
// message.
func NewProtoEvent(v string) *wrapperspb.StringValue {
	return wrapperspb.String(v)
}

// Marshaler is a marshaler that supports the event types in this package.
var Marshaler marshalkit.Marshaler

func init() {
	m, err := codec.NewMarshaler(
		[]reflect.Type{
			reflect.TypeOf(TestEvent{}),
			reflect.TypeOf(&wrapperspb.StringValue{}),
		},
		[]codec.Codec{
			&protobuf.NativeCodec{},
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	Marshaler = m
}
