package parser

import (
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// IPv6HeaderSize is the fixed IPv6 base header size in bytes (RFC 8200
// Section 3).
const IPv6HeaderSize = 40

// Next Header values this parser recognizes for chaining.
const (
	protoHopByHop = 0
	protoUDP      = 17
	protoDestOpts = 60
	protoSCTP     = 132
)

// IPv6Module decodes the fixed 40-byte IPv6 base header. Extension header
// chaining is limited to Hop-by-Hop Options and Destination Options (the
// common TLV layout); any other Next Header value ends the chain and the
// remaining bytes become the packet's opaque payload. Fragmentation
// (Next Header 44) is out of scope.
type IPv6Module struct{}

// ID returns "ipv6".
func (IPv6Module) ID() string { return "ipv6" }

// Parse decodes the fixed IPv6 header fields in on-wire order: version,
// traffic_class, flow_label, payload_length, next_header, hop_limit,
// src_address, dst_address.
func (IPv6Module) Parse(data []byte, offset int) ([]schc.PacketField, int, string, error) {
	if len(data)-offset < IPv6HeaderSize {
		return nil, 0, "", fmt.Errorf("ipv6: header needs %d bytes, got %d: %w",
			IPv6HeaderSize, len(data)-offset, ErrTruncated)
	}
	raw, err := buffer.New(data[offset:offset+IPv6HeaderSize], 8*IPv6HeaderSize, buffer.PadRight)
	if err != nil {
		return nil, 0, "", fmt.Errorf("ipv6: %w", err)
	}

	version, _ := raw.Slice(0, 4)
	if v, _ := version.Value(buffer.UnsignedInt); v != 6 {
		return nil, 0, "", fmt.Errorf("ipv6: version %d: %w", v, ErrMalformed)
	}
	trafficClass, _ := raw.Slice(4, 12)
	flowLabel, _ := raw.Slice(12, 32)
	payloadLength, _ := raw.Slice(32, 48)
	nextHeader, _ := raw.Slice(48, 56)
	hopLimit, _ := raw.Slice(56, 64)
	src, _ := raw.Slice(64, 192)
	dst, _ := raw.Slice(192, 320)

	fields := []schc.PacketField{
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.version", Length: 4}, Value: version},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.traffic_class", Length: 8}, Value: trafficClass},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.flow_label", Length: 20}, Value: flowLabel},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.payload_length", Length: 16}, Value: payloadLength},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.next_header", Length: 8}, Value: nextHeader},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.hop_limit", Length: 8}, Value: hopLimit},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.src_address", Length: 128}, Value: src},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6.dst_address", Length: 128}, Value: dst},
	}

	nh, _ := nextHeader.Value(buffer.UnsignedInt)
	hint := hintForNextHeader(int(nh))
	return fields, offset + IPv6HeaderSize, hint, nil
}

func hintForNextHeader(nh int) string {
	switch nh {
	case protoUDP:
		return "udp"
	case protoSCTP:
		return "sctp"
	case protoHopByHop, protoDestOpts:
		return "ipv6ext"
	default:
		return HintPayload
	}
}

// Serialize re-encodes the 8 IPv6 header fields in order.
func (IPv6Module) Serialize(fields []schc.PacketField, buf []byte) ([]byte, error) {
	if len(fields) != 8 {
		return nil, fmt.Errorf("ipv6: Serialize: want 8 fields, got %d: %w", len(fields), ErrMalformed)
	}
	whole := buffer.ConcatAll(fieldValues(fields)...).Pad(buffer.PadRight)
	return append(buf, whole.Bytes()...), nil
}

// FieldCount is always 8 for the fixed IPv6 header.
func (IPv6Module) FieldCount(fields []schc.PacketField) int {
	if len(fields) < 8 {
		return len(fields)
	}
	return 8
}

func fieldValues(fields []schc.PacketField) []buffer.Buffer {
	out := make([]buffer.Buffer, len(fields))
	for i, f := range fields {
		out[i] = f.Value
	}
	return out
}

// IPv6ExtModule decodes a generic Hop-by-Hop/Destination Options
// extension header: Next Header(8), Hdr Ext Len(8), then
// (Hdr Ext Len+1)*8-2 bytes of opaque option data (RFC 8200 Section 4.3).
type IPv6ExtModule struct{}

// ID returns "ipv6ext".
func (IPv6ExtModule) ID() string { return "ipv6ext" }

// Parse decodes one extension header instance.
func (IPv6ExtModule) Parse(data []byte, offset int) ([]schc.PacketField, int, string, error) {
	if len(data)-offset < 2 {
		return nil, 0, "", fmt.Errorf("ipv6ext: %w", ErrTruncated)
	}
	nextHeader := data[offset]
	hdrExtLen := data[offset+1]
	total := (int(hdrExtLen) + 1) * 8
	if len(data)-offset < total {
		return nil, 0, "", fmt.Errorf("ipv6ext: needs %d bytes, got %d: %w", total, len(data)-offset, ErrTruncated)
	}

	nhBuf, _ := buffer.New([]byte{nextHeader}, 8, buffer.PadRight)
	lenBuf, _ := buffer.New([]byte{hdrExtLen}, 8, buffer.PadRight)
	optData := data[offset+2 : offset+total]
	optBuf, _ := buffer.New(optData, 8*len(optData), buffer.PadRight)

	fields := []schc.PacketField{
		{Descriptor: schc.FieldDescriptor{ID: "ipv6ext.next_header", Length: 8}, Value: nhBuf},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6ext.hdr_ext_len", Length: 8}, Value: lenBuf},
		{Descriptor: schc.FieldDescriptor{ID: "ipv6ext.options", Length: 0}, Value: optBuf},
	}
	return fields, offset + total, hintForNextHeader(int(nextHeader)), nil
}

// Serialize re-encodes the extension header.
func (IPv6ExtModule) Serialize(fields []schc.PacketField, buf []byte) ([]byte, error) {
	if len(fields) != 3 {
		return nil, fmt.Errorf("ipv6ext: Serialize: want 3 fields, got %d: %w", len(fields), ErrMalformed)
	}
	whole := buffer.ConcatAll(fieldValues(fields)...).Pad(buffer.PadRight)
	return append(buf, whole.Bytes()...), nil
}

// FieldCount is always 3.
func (IPv6ExtModule) FieldCount(fields []schc.PacketField) int {
	if len(fields) < 3 {
		return len(fields)
	}
	return 3
}
