// Package compressor implements the compression half of RFC 8724
// Section 7.5: given a packet already matched against a rule, it emits
// the rule's ID followed by each field's residue followed by the
// original payload.
package compressor

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// Sentinel errors.
var (
	// ErrFieldCountMismatch indicates the packet's field count does not
	// match the rule's direction-filtered field count; Compress requires
	// callers to pass a packet already selected against this rule via
	// ruler.Select.
	ErrFieldCountMismatch = errors.New("compressor: packet field count does not match rule")

	// ErrMappingValueNotFound indicates a mapping-sent field's value is
	// not present in the rule's TargetValue list.
	ErrMappingValueNotFound = errors.New("compressor: value not found in mapping")

	// ErrLSBUnderflow indicates MOArg is wider than the field itself, so
	// no residue bits remain for LSB.
	ErrLSBUnderflow = errors.New("compressor: LSB argument wider than field")

	// ErrResidueTooLong indicates a variable-length residue exceeds the
	// 16-bit length-prefix format's addressable range.
	ErrResidueTooLong = errors.New("compressor: residue exceeds maximum encodable length")
)

// Compress emits rule.ID, then each direction-filtered rule field's
// residue in order, then pkt.Payload, padded to a byte boundary (RFC 8724
// Section 6.1). Callers are expected to have already resolved rule via
// ruler.Select for pkt and dir; Compress re-derives the direction filter
// itself so it never trusts a caller-supplied alignment.
func Compress(pkt schc.PacketDescriptor, rule schc.RuleDescriptor, dir schc.Direction) (buffer.Buffer, error) {
	filtered := schc.FilterByDirection(rule.Fields, dir)
	if len(filtered) != len(pkt.Fields) {
		return buffer.Buffer{}, fmt.Errorf("compressor: rule has %d fields, packet has %d: %w",
			len(filtered), len(pkt.Fields), ErrFieldCountMismatch)
	}

	out := rule.ID
	for i, rf := range filtered {
		residue, err := applyCDA(pkt.Fields[i].Value, rf)
		if err != nil {
			return buffer.Buffer{}, fmt.Errorf("compressor: field %s: %w", rf.ID, err)
		}
		out = out.Concat(residue)
	}
	out = out.Concat(pkt.Payload)
	return out.Pad(buffer.PadRight), nil
}

// applyCDA produces the residue for one field per the CDA table in RFC 8724
// Section 4.4.
func applyCDA(value buffer.Buffer, rf schc.RuleFieldDescriptor) (buffer.Buffer, error) {
	switch rf.CDA {
	case schc.CDANotSent, schc.CDACompute:
		return buffer.Zero(0, buffer.PadLeft), nil

	case schc.CDAValueSent:
		if rf.Length == 0 {
			return withLengthPrefix(value)
		}
		return value, nil

	case schc.CDAMappingSent:
		for idx, candidate := range rf.TargetValue {
			if value.Equal(candidate) {
				bits := schc.BitsNeeded(len(rf.TargetValue))
				return buffer.FromUint(uint64(idx), bits)
			}
		}
		return buffer.Buffer{}, ErrMappingValueNotFound

	case schc.CDALSB:
		if rf.MOArg < 0 || rf.MOArg > value.Len() {
			return buffer.Buffer{}, ErrLSBUnderflow
		}
		residue, err := value.Slice(rf.MOArg, value.Len())
		if err != nil {
			return buffer.Buffer{}, fmt.Errorf("compressor: %w", err)
		}
		if rf.Length == 0 {
			return withLengthPrefix(residue)
		}
		return residue, nil

	default:
		return buffer.Buffer{}, fmt.Errorf("compressor: unknown CDA %s", rf.CDA)
	}
}

// withLengthPrefix byte-aligns residue (right-padding zeros) and
// prepends the variable-length field prefix (RFC 8724 Section 7.4).
func withLengthPrefix(residue buffer.Buffer) (buffer.Buffer, error) {
	aligned := residue
	if rem := residue.Len() % 8; rem != 0 {
		aligned = residue.Concat(buffer.Zero(8-rem, buffer.PadLeft))
	}
	prefix, err := encodeLengthPrefix(aligned.ByteLen())
	if err != nil {
		return buffer.Buffer{}, err
	}
	return prefix.Concat(aligned), nil
}

// encodeLengthPrefix encodes a byte count using the 4-bit / 4+8-bit /
// 4+8+16-bit scheme.
func encodeLengthPrefix(nBytes int) (buffer.Buffer, error) {
	if nBytes < 15 {
		return buffer.FromUint(uint64(nBytes), 4)
	}
	if nBytes < 255 {
		hi, _ := buffer.FromUint(0xF, 4)
		lo, _ := buffer.FromUint(uint64(nBytes), 8)
		return hi.Concat(lo), nil
	}
	if nBytes < 65535 {
		hi, _ := buffer.FromUint(0xF, 4)
		mid, _ := buffer.FromUint(0xFF, 8)
		lo, _ := buffer.FromUint(uint64(nBytes), 16)
		return hi.Concat(mid).Concat(lo), nil
	}
	return buffer.Buffer{}, fmt.Errorf("compressor: %d bytes: %w", nBytes, ErrResidueTooLong)
}
