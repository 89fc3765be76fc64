package storetest

import (
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/marshalkit"
)

// NewPacket returns a packet containing a JSON-encoded test event with the
// given value.
func NewPacket(v string) marshalkit.Packet {
	return marshalkit.Packet{
		MediaType: "application/json; type=TestEvent",
		Data:      []byte(`{"value":"` + v + `"}`),
	}
}

// NewRecord returns the record expected for a packet created by NewPacket().
func NewRecord(id string, offset uint64, v string) store.Record {
	return store.Record{
		PersistenceID: id,
		Offset:        offset,
		Packet:        NewPacket(v),
	}
}
