package parser

import (
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// IPv4MinHeaderSize is the minimum (no-options) IPv4 header size in bytes
// (RFC 791 Section 3.1).
const IPv4MinHeaderSize = 20

// IPv4Module decodes the IPv4 header, including a variable-length
// Options field when IHL > 5.
type IPv4Module struct{}

// ID returns "ipv4".
func (IPv4Module) ID() string { return "ipv4" }

// Parse decodes version, ihl, dscp, ecn, total_length, identification,
// flags, fragment_offset, ttl, protocol, header_checksum, src_address,
// dst_address, and options (if IHL > 5).
func (IPv4Module) Parse(data []byte, offset int) ([]schc.PacketField, int, string, error) {
	if len(data)-offset < IPv4MinHeaderSize {
		return nil, 0, "", fmt.Errorf("ipv4: header needs %d bytes, got %d: %w",
			IPv4MinHeaderSize, len(data)-offset, ErrTruncated)
	}
	raw, err := buffer.New(data[offset:offset+IPv4MinHeaderSize], 8*IPv4MinHeaderSize, buffer.PadRight)
	if err != nil {
		return nil, 0, "", fmt.Errorf("ipv4: %w", err)
	}

	version, _ := raw.Slice(0, 4)
	if v, _ := version.Value(buffer.UnsignedInt); v != 4 {
		return nil, 0, "", fmt.Errorf("ipv4: version %d: %w", v, ErrMalformed)
	}
	ihl, _ := raw.Slice(4, 8)
	ihlVal, _ := ihl.Value(buffer.UnsignedInt)
	if ihlVal < 5 {
		return nil, 0, "", fmt.Errorf("ipv4: IHL %d below minimum 5: %w", ihlVal, ErrMalformed)
	}
	headerBytes := int(ihlVal) * 4
	if len(data)-offset < headerBytes {
		return nil, 0, "", fmt.Errorf("ipv4: header needs %d bytes, got %d: %w",
			headerBytes, len(data)-offset, ErrTruncated)
	}

	dscp, _ := raw.Slice(8, 14)
	ecn, _ := raw.Slice(14, 16)
	totalLength, _ := raw.Slice(16, 32)
	identification, _ := raw.Slice(32, 48)
	flags, _ := raw.Slice(48, 51)
	fragOffset, _ := raw.Slice(51, 64)
	ttl, _ := raw.Slice(64, 72)
	protocol, _ := raw.Slice(72, 80)
	checksum, _ := raw.Slice(80, 96)
	src, _ := raw.Slice(96, 128)
	dst, _ := raw.Slice(128, 160)

	fields := []schc.PacketField{
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.version", Length: 4}, Value: version},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.ihl", Length: 4}, Value: ihl},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.dscp", Length: 6}, Value: dscp},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.ecn", Length: 2}, Value: ecn},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.total_length", Length: 16}, Value: totalLength},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.identification", Length: 16}, Value: identification},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.flags", Length: 3}, Value: flags},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.fragment_offset", Length: 13}, Value: fragOffset},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.ttl", Length: 8}, Value: ttl},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.protocol", Length: 8}, Value: protocol},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.header_checksum", Length: 16}, Value: checksum},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.src_address", Length: 32}, Value: src},
		{Descriptor: schc.FieldDescriptor{ID: "ipv4.dst_address", Length: 32}, Value: dst},
	}

	if optBytes := headerBytes - IPv4MinHeaderSize; optBytes > 0 {
		opt := data[offset+IPv4MinHeaderSize : offset+headerBytes]
		optBuf, _ := buffer.New(opt, 8*len(opt), buffer.PadRight)
		fields = append(fields, schc.PacketField{
			Descriptor: schc.FieldDescriptor{ID: "ipv4.options", Length: 0},
			Value:      optBuf,
		})
	}

	proto, _ := protocol.Value(buffer.UnsignedInt)
	hint := HintPayload
	switch int(proto) {
	case protoUDP:
		hint = "udp"
	case protoSCTP:
		hint = "sctp"
	}
	return fields, offset + headerBytes, hint, nil
}

// Serialize re-encodes the IPv4 header fields, including trailing
// options if present.
func (IPv4Module) Serialize(fields []schc.PacketField, buf []byte) ([]byte, error) {
	if len(fields) < 13 {
		return nil, fmt.Errorf("ipv4: Serialize: want at least 13 fields, got %d: %w", len(fields), ErrMalformed)
	}
	whole := buffer.ConcatAll(fieldValues(fields)...).Pad(buffer.PadRight)
	return append(buf, whole.Bytes()...), nil
}

// FieldCount is 13, plus one more if an options field is present.
func (IPv4Module) FieldCount(fields []schc.PacketField) int {
	n := 13
	if len(fields) > n && fields[n].Descriptor.ID == "ipv4.options" {
		n++
	}
	if n > len(fields) {
		n = len(fields)
	}
	return n
}
