package parser

import (
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// SCTPCommonHeaderSize is the fixed SCTP common header size in bytes
// (RFC 9260 Section 3.1).
const SCTPCommonHeaderSize = 12

// SCTPModule decodes the fixed SCTP common header (src_port, dst_port,
// verification_tag, checksum). Chunk-level TLV decoding is out of scope:
// SCTP chunks (including any user-data chunk) are exposed as the
// PacketDescriptor's opaque payload, the same way UDP's payload is
// whatever follows its header. A context wanting per-chunk compression
// would need a dedicated chunk module; RFC 8724's SCHC is defined over
// the fixed headers this parser targets.
type SCTPModule struct{}

// ID returns "sctp".
func (SCTPModule) ID() string { return "sctp" }

// Parse decodes the 12-byte SCTP common header.
func (SCTPModule) Parse(data []byte, offset int) ([]schc.PacketField, int, string, error) {
	if len(data)-offset < SCTPCommonHeaderSize {
		return nil, 0, "", fmt.Errorf("sctp: header needs %d bytes, got %d: %w",
			SCTPCommonHeaderSize, len(data)-offset, ErrTruncated)
	}
	raw, err := buffer.New(data[offset:offset+SCTPCommonHeaderSize], 8*SCTPCommonHeaderSize, buffer.PadRight)
	if err != nil {
		return nil, 0, "", fmt.Errorf("sctp: %w", err)
	}

	srcPort, _ := raw.Slice(0, 16)
	dstPort, _ := raw.Slice(16, 32)
	verificationTag, _ := raw.Slice(32, 64)
	checksum, _ := raw.Slice(64, 96)

	fields := []schc.PacketField{
		{Descriptor: schc.FieldDescriptor{ID: "sctp.src_port", Length: 16}, Value: srcPort},
		{Descriptor: schc.FieldDescriptor{ID: "sctp.dst_port", Length: 16}, Value: dstPort},
		{Descriptor: schc.FieldDescriptor{ID: "sctp.verification_tag", Length: 32}, Value: verificationTag},
		{Descriptor: schc.FieldDescriptor{ID: "sctp.checksum", Length: 32}, Value: checksum},
	}
	return fields, offset + SCTPCommonHeaderSize, HintPayload, nil
}

// Serialize re-encodes the 4 SCTP common header fields.
func (SCTPModule) Serialize(fields []schc.PacketField, buf []byte) ([]byte, error) {
	if len(fields) != 4 {
		return nil, fmt.Errorf("sctp: Serialize: want 4 fields, got %d: %w", len(fields), ErrMalformed)
	}
	whole := buffer.ConcatAll(fieldValues(fields)...).Pad(buffer.PadRight)
	return append(buf, whole.Bytes()...), nil
}

// FieldCount is always 4.
func (SCTPModule) FieldCount(fields []schc.PacketField) int {
	if len(fields) < 4 {
		return len(fields)
	}
	return 4
}
