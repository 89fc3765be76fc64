// Package packetcodec encodes marshalkit packets as CBOR, for use by stores
// that persist each event as a single opaque value.
package packetcodec

import (
	"fmt"

	"github.com/dogmatiq/marshalkit"
	"github.com/fxamacker/cbor/v2"
)

// packet is the CBOR representation of a marshalkit.Packet.
type packet struct {
	MediaType string `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
}

// Marshal returns the CBOR encoding of p.
func Marshal(p marshalkit.Packet) ([]byte, error) {
	return cbor.Marshal(packet{p.MediaType, p.Data})
}

// Unmarshal decodes a packet produced by Marshal().
func Unmarshal(data []byte) (marshalkit.Packet, error) {
	var v packet
	if err := cbor.Unmarshal(data, &v); err != nil {
		return marshalkit.Packet{}, fmt.Errorf("unable to decode event packet: %w", err)
	}

	if v.MediaType == "" {
		return marshalkit.Packet{}, fmt.Errorf("unable to decode event packet: media-type is empty")
	}

	return marshalkit.Packet{
		MediaType: v.MediaType,
		Data:      v.Data,
	}, nil
}
