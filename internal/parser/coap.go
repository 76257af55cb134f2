package parser

import (
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// CoAPFixedHeaderSize is the fixed CoAP header size in bytes, excluding
// Token (RFC 7252 Section 3).
const CoAPFixedHeaderSize = 4

// coapPayloadMarker ends the Options list and introduces the payload.
const coapPayloadMarker = 0xFF

// coapExtendedFieldWidth is wide enough to hold any resolved option
// delta or length value (max 269+65535), as an internal bookkeeping
// width; it never appears on the wire.
const coapExtendedFieldWidth = 20

// CoAPModule decodes the CoAP header, Token, Options, and payload marker
// (RFC 7252 Section 3). Option numbers are not resolved to their
// registered meaning (e.g. Uri-Path, Content-Format): only the raw
// delta/length/value triples are exposed as fields, each carrying a
// Position so a rule can target a specific occurrence of a repeatable
// option. Resolving deltas to absolute option numbers is left to rule
// authors, matching the way this parser treats every other protocol
// syntactically rather than semantically.
type CoAPModule struct{}

// ID returns "coap".
func (CoAPModule) ID() string { return "coap" }

// Parse decodes ver/type/tkl/code/message_id, the token, zero or more
// options, and consumes the payload marker if present.
func (CoAPModule) Parse(data []byte, offset int) ([]schc.PacketField, int, string, error) {
	if len(data)-offset < CoAPFixedHeaderSize {
		return nil, 0, "", fmt.Errorf("coap: header needs %d bytes, got %d: %w",
			CoAPFixedHeaderSize, len(data)-offset, ErrTruncated)
	}
	raw, err := buffer.New(data[offset:offset+CoAPFixedHeaderSize], 8*CoAPFixedHeaderSize, buffer.PadRight)
	if err != nil {
		return nil, 0, "", fmt.Errorf("coap: %w", err)
	}

	ver, _ := raw.Slice(0, 2)
	typ, _ := raw.Slice(2, 4)
	tkl, _ := raw.Slice(4, 8)
	code, _ := raw.Slice(8, 16)
	messageID, _ := raw.Slice(16, 32)

	tklVal, _ := tkl.Value(buffer.UnsignedInt)
	if tklVal > 8 {
		return nil, 0, "", fmt.Errorf("coap: token length %d exceeds 8: %w", tklVal, ErrMalformed)
	}

	fields := []schc.PacketField{
		{Descriptor: schc.FieldDescriptor{ID: "coap.version", Length: 2}, Value: ver},
		{Descriptor: schc.FieldDescriptor{ID: "coap.type", Length: 2}, Value: typ},
		{Descriptor: schc.FieldDescriptor{ID: "coap.token_length", Length: 4}, Value: tkl},
		{Descriptor: schc.FieldDescriptor{ID: "coap.code", Length: 8}, Value: code},
		{Descriptor: schc.FieldDescriptor{ID: "coap.message_id", Length: 16}, Value: messageID},
	}

	cursor := offset + CoAPFixedHeaderSize
	if tklVal > 0 {
		if len(data)-cursor < int(tklVal) {
			return nil, 0, "", fmt.Errorf("coap: token needs %d bytes, got %d: %w",
				tklVal, len(data)-cursor, ErrTruncated)
		}
		tok := data[cursor : cursor+int(tklVal)]
		tokBuf, _ := buffer.New(tok, 8*len(tok), buffer.PadRight)
		fields = append(fields, schc.PacketField{
			Descriptor: schc.FieldDescriptor{ID: "coap.token", Length: 8 * int(tklVal)},
			Value:      tokBuf,
		})
		cursor += int(tklVal)
	}

	optionFields, cursor, err := parseCoAPOptions(data, cursor)
	if err != nil {
		return nil, 0, "", err
	}
	fields = append(fields, optionFields...)

	if cursor < len(data) && data[cursor] == coapPayloadMarker {
		cursor++
		if cursor >= len(data) {
			return nil, 0, "", fmt.Errorf("coap: payload marker with no payload: %w", ErrMalformed)
		}
		markerBuf, _ := buffer.New([]byte{coapPayloadMarker}, 8, buffer.PadRight)
		fields = append(fields, schc.PacketField{
			Descriptor: schc.FieldDescriptor{ID: "coap.payload_marker", Length: 8},
			Value:      markerBuf,
		})
	}

	return fields, cursor, HintPayload, nil
}

// parseCoAPOptions decodes the Options list per RFC 7252 Section 3.1,
// stopping at the payload marker or end of data. It returns raw
// delta/length/value field triples, one set per option occurrence.
func parseCoAPOptions(data []byte, offset int) ([]schc.PacketField, int, error) {
	var fields []schc.PacketField
	cursor := offset
	position := 0

	for cursor < len(data) && data[cursor] != coapPayloadMarker {
		deltaNibble := int(data[cursor] >> 4)
		lengthNibble := int(data[cursor] & 0x0F)
		cursor++

		delta, next, err := readCoAPExtended(data, cursor, deltaNibble)
		if err != nil {
			return nil, 0, fmt.Errorf("coap: option %d delta: %w", position, err)
		}
		cursor = next

		length, next, err := readCoAPExtended(data, cursor, lengthNibble)
		if err != nil {
			return nil, 0, fmt.Errorf("coap: option %d length: %w", position, err)
		}
		cursor = next

		if len(data)-cursor < length {
			return nil, 0, fmt.Errorf("coap: option %d value needs %d bytes, got %d: %w",
				position, length, len(data)-cursor, ErrTruncated)
		}
		val := data[cursor : cursor+length]
		cursor += length

		deltaBuf, _ := buffer.FromUint(uint64(delta), coapExtendedFieldWidth)
		lengthBuf, _ := buffer.FromUint(uint64(length), coapExtendedFieldWidth)
		var valueBuf buffer.Buffer
		if length > 0 {
			valueBuf, _ = buffer.New(val, 8*length, buffer.PadRight)
		} else {
			valueBuf = buffer.Zero(0, buffer.PadRight)
		}

		fields = append(fields,
			schc.PacketField{
				Descriptor: schc.FieldDescriptor{ID: "coap.option_delta", Length: deltaBuf.Len(), Position: position},
				Value:      deltaBuf,
			},
			schc.PacketField{
				Descriptor: schc.FieldDescriptor{ID: "coap.option_length", Length: lengthBuf.Len(), Position: position},
				Value:      lengthBuf,
			},
			schc.PacketField{
				Descriptor: schc.FieldDescriptor{ID: "coap.option_value", Length: 0, Position: position},
				Value:      valueBuf,
			},
		)
		position++
	}
	return fields, cursor, nil
}

// readCoAPExtended resolves a 4-bit option delta/length nibble into its
// actual value, consuming 0, 1, or 2 extension bytes per RFC 7252
// Section 3.1 (13 => +1 byte, base 13; 14 => +2 bytes, base 269; 15 is
// reserved outside the payload marker byte and is rejected with
// ErrMalformed).
func readCoAPExtended(data []byte, offset, nibble int) (int, int, error) {
	switch nibble {
	case 13:
		if len(data)-offset < 1 {
			return 0, 0, ErrTruncated
		}
		return 13 + int(data[offset]), offset + 1, nil
	case 14:
		if len(data)-offset < 2 {
			return 0, 0, ErrTruncated
		}
		return 269 + int(data[offset])<<8 + int(data[offset+1]), offset + 2, nil
	case 15:
		return 0, 0, fmt.Errorf("coap: reserved nibble 15 outside payload marker: %w", ErrMalformed)
	default:
		return nibble, offset, nil
	}
}

// encodeCoAPExtended is the inverse of readCoAPExtended: it returns the
// 4-bit nibble and any extension bytes to append after the option header
// byte.
func encodeCoAPExtended(value int) (nibble int, ext []byte) {
	switch {
	case value < 13:
		return value, nil
	case value < 269:
		return 13, []byte{byte(value - 13)}
	default:
		v := value - 269
		return 14, []byte{byte(v >> 8), byte(v)}
	}
}

// Serialize re-encodes the fixed header, token, options, and the
// payload marker if Parse recorded one. The caller appends the payload
// itself via PacketDescriptor.Payload.
func (CoAPModule) Serialize(fields []schc.PacketField, buf []byte) ([]byte, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("coap: Serialize: want at least 5 fields, got %d: %w", len(fields), ErrMalformed)
	}
	header := buffer.ConcatAll(fields[0].Value, fields[1].Value, fields[2].Value, fields[3].Value, fields[4].Value).Pad(buffer.PadRight)
	out := append(buf, header.Bytes()...)

	rest := fields[5:]
	idx := 0
	tklVal, _ := fields[2].Value.Value(buffer.UnsignedInt)
	if tklVal > 0 {
		if len(rest) == 0 || rest[0].Descriptor.ID != "coap.token" {
			return nil, fmt.Errorf("coap: Serialize: expected token field: %w", ErrMalformed)
		}
		out = append(out, rest[0].Value.Bytes()...)
		idx++
	}

	for idx+2 < len(rest) && rest[idx].Descriptor.ID == "coap.option_delta" {
		deltaVal, _ := rest[idx].Value.Value(buffer.UnsignedInt)
		lengthVal, _ := rest[idx+1].Value.Value(buffer.UnsignedInt)
		deltaNibble, deltaExt := encodeCoAPExtended(int(deltaVal))
		lengthNibble, lengthExt := encodeCoAPExtended(int(lengthVal))
		out = append(out, byte(deltaNibble<<4|lengthNibble))
		out = append(out, deltaExt...)
		out = append(out, lengthExt...)
		out = append(out, rest[idx+2].Value.Bytes()...)
		idx += 3
	}

	if idx < len(rest) && rest[idx].Descriptor.ID == "coap.payload_marker" {
		out = append(out, rest[idx].Value.Bytes()...)
		idx++
	}
	return out, nil
}

// FieldCount reports 5 (fixed header) plus an optional token field plus
// 3 fields per decoded option.
func (CoAPModule) FieldCount(fields []schc.PacketField) int {
	n := 5
	if n >= len(fields) {
		return len(fields)
	}
	tklVal, _ := fields[2].Value.Value(buffer.UnsignedInt)
	if tklVal > 0 && n < len(fields) && fields[n].Descriptor.ID == "coap.token" {
		n++
	}
	for n+2 < len(fields) && fields[n].Descriptor.ID == "coap.option_delta" {
		n += 3
	}
	if n < len(fields) && fields[n].Descriptor.ID == "coap.payload_marker" {
		n++
	}
	if n > len(fields) {
		n = len(fields)
	}
	return n
}
