package parser

import (
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// UDPHeaderSize is the fixed UDP header size in bytes (RFC 768).
const UDPHeaderSize = 8

// coapDefaultPort is the registered CoAP UDP port (RFC 7252 Section 12.8).
const coapDefaultPort = 5683

// UDPModule decodes the fixed 8-byte UDP header: src_port, dst_port,
// length, checksum.
type UDPModule struct{}

// ID returns "udp".
func (UDPModule) ID() string { return "udp" }

// Parse decodes the UDP header and hints "coap" when either port is the
// registered CoAP port.
func (UDPModule) Parse(data []byte, offset int) ([]schc.PacketField, int, string, error) {
	if len(data)-offset < UDPHeaderSize {
		return nil, 0, "", fmt.Errorf("udp: header needs %d bytes, got %d: %w",
			UDPHeaderSize, len(data)-offset, ErrTruncated)
	}
	raw, err := buffer.New(data[offset:offset+UDPHeaderSize], 8*UDPHeaderSize, buffer.PadRight)
	if err != nil {
		return nil, 0, "", fmt.Errorf("udp: %w", err)
	}

	srcPort, _ := raw.Slice(0, 16)
	dstPort, _ := raw.Slice(16, 32)
	length, _ := raw.Slice(32, 48)
	checksum, _ := raw.Slice(48, 64)

	fields := []schc.PacketField{
		{Descriptor: schc.FieldDescriptor{ID: "udp.src_port", Length: 16}, Value: srcPort},
		{Descriptor: schc.FieldDescriptor{ID: "udp.dst_port", Length: 16}, Value: dstPort},
		{Descriptor: schc.FieldDescriptor{ID: "udp.length", Length: 16}, Value: length},
		{Descriptor: schc.FieldDescriptor{ID: "udp.checksum", Length: 16}, Value: checksum},
	}

	hint := HintPayload
	sp, _ := srcPort.Value(buffer.UnsignedInt)
	dp, _ := dstPort.Value(buffer.UnsignedInt)
	if sp == coapDefaultPort || dp == coapDefaultPort {
		hint = "coap"
	}
	return fields, offset + UDPHeaderSize, hint, nil
}

// Serialize re-encodes the 4 UDP header fields.
func (UDPModule) Serialize(fields []schc.PacketField, buf []byte) ([]byte, error) {
	if len(fields) != 4 {
		return nil, fmt.Errorf("udp: Serialize: want 4 fields, got %d: %w", len(fields), ErrMalformed)
	}
	whole := buffer.ConcatAll(fieldValues(fields)...).Pad(buffer.PadRight)
	return append(buf, whole.Bytes()...), nil
}

// FieldCount is always 4.
func (UDPModule) FieldCount(fields []schc.PacketField) int {
	if len(fields) < 4 {
		return len(fields)
	}
	return 4
}
