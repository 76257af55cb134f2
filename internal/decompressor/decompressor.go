// Package decompressor implements the decompression half of RFC 8724
// Section 7.5: given a compressed stream and the context it was
// compressed against, it resolves the rule by ID, reconstructs each
// field from its residue (or its rule's target value), and runs the
// checksum/length recomputation post-pass for any compute-* fields.
package decompressor

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/ruler"
	"github.com/dantte-lp/goschc/internal/schc"
)

// Sentinel errors.
var (
	// ErrResidueUnderrun indicates the stream ran out of bits before all
	// rule fields were reconstructed.
	ErrResidueUnderrun = errors.New("decompressor: residue underrun")

	// ErrMappingOutOfRange indicates a mapping-sent index pointed past
	// the rule's TargetValue list.
	ErrMappingOutOfRange = errors.New("decompressor: mapping index out of range")

	// ErrLengthPrefixInvalid indicates a variable-length field's length
	// prefix could not be decoded (truncated, or an unsupported
	// encoding).
	ErrLengthPrefixInvalid = errors.New("decompressor: invalid length prefix")
)

// pendingCompute records a field whose value is deferred to the
// checksum/length post-pass.
type pendingCompute struct {
	index int
	kind  schc.ComputeKind
}

// Decompress resolves stream's rule via ruler.Lookup, reconstructs every
// field, and runs the post-pass for any compute-* fields.
func Decompress(stream buffer.Buffer, ctx schc.Context, dir schc.Direction) (schc.PacketDescriptor, schc.RuleDescriptor, error) {
	rule, residue, err := ruler.Lookup(stream, ctx)
	if err != nil {
		return schc.PacketDescriptor{}, schc.RuleDescriptor{}, fmt.Errorf("decompressor: %w", err)
	}

	filtered := schc.FilterByDirection(rule.Fields, dir)
	fields := make([]schc.PacketField, len(filtered))
	var pending []pendingCompute
	cursor := 0

	for i, rf := range filtered {
		value, consumed, deferred, err := reconstructField(residue, cursor, rf)
		if err != nil {
			return schc.PacketDescriptor{}, schc.RuleDescriptor{}, fmt.Errorf("decompressor: field %s: %w", rf.ID, err)
		}
		fields[i] = schc.PacketField{Descriptor: rf.FieldDescriptor, Value: value}
		cursor = consumed
		if deferred {
			pending = append(pending, pendingCompute{index: i, kind: rf.ComputeKind})
		}
	}

	payloadBits := residue.Len() - cursor
	if payloadBits < 0 {
		return schc.PacketDescriptor{}, schc.RuleDescriptor{}, fmt.Errorf("decompressor: %w", ErrResidueUnderrun)
	}
	// Bits after the last whole payload byte are the compressor's right
	// padding, not payload.
	payload, err := residue.Slice(cursor, residue.Len()-payloadBits%8)
	if err != nil {
		return schc.PacketDescriptor{}, schc.RuleDescriptor{}, fmt.Errorf("decompressor: %w", err)
	}
	payload = payload.Pad(buffer.PadRight)

	pd := schc.PacketDescriptor{Fields: fields, Payload: payload}
	if err := runComputePostPass(&pd, pending); err != nil {
		return schc.PacketDescriptor{}, schc.RuleDescriptor{}, fmt.Errorf("decompressor: %w", err)
	}
	return pd, rule, nil
}

// reconstructField applies the inverse CDA for one rule field, reading
// from residue starting at bit offset cursor. It returns the
// reconstructed value (a zero-value placeholder for compute-* fields),
// the new cursor, and whether the field needs the post-pass.
func reconstructField(residue buffer.Buffer, cursor int, rf schc.RuleFieldDescriptor) (buffer.Buffer, int, bool, error) {
	switch rf.CDA {
	case schc.CDANotSent:
		if len(rf.TargetValue) != 1 {
			return buffer.Buffer{}, cursor, false, fmt.Errorf("not-sent field has %d target values, want 1", len(rf.TargetValue))
		}
		return rf.TargetValue[0], cursor, false, nil

	case schc.CDACompute:
		return buffer.Zero(rf.Length, buffer.PadLeft), cursor, true, nil

	case schc.CDAValueSent:
		if rf.Length == 0 {
			val, next, err := readLengthPrefixed(residue, cursor)
			return val, next, false, err
		}
		val, next, err := readFixed(residue, cursor, rf.Length)
		return val, next, false, err

	case schc.CDAMappingSent:
		bits := schc.BitsNeeded(len(rf.TargetValue))
		idxBuf, next, err := readFixed(residue, cursor, bits)
		if err != nil {
			return buffer.Buffer{}, cursor, false, err
		}
		idx, _ := idxBuf.Value(buffer.UnsignedInt)
		if int(idx) >= len(rf.TargetValue) {
			return buffer.Buffer{}, cursor, false, ErrMappingOutOfRange
		}
		return rf.TargetValue[idx], next, false, nil

	case schc.CDALSB:
		var lsb buffer.Buffer
		var next int
		var err error
		if rf.Length == 0 {
			lsb, next, err = readLengthPrefixed(residue, cursor)
		} else {
			lsb, next, err = readFixed(residue, cursor, rf.Length-rf.MOArg)
		}
		if err != nil {
			return buffer.Buffer{}, cursor, false, err
		}
		if len(rf.TargetValue) != 1 {
			return buffer.Buffer{}, cursor, false, fmt.Errorf("LSB field has %d target values, want 1", len(rf.TargetValue))
		}
		msb, err := rf.TargetValue[0].Slice(0, rf.MOArg)
		if err != nil {
			return buffer.Buffer{}, cursor, false, fmt.Errorf("%w", err)
		}
		return msb.Concat(lsb), next, false, nil

	default:
		return buffer.Buffer{}, cursor, false, fmt.Errorf("unknown CDA %s", rf.CDA)
	}
}

// readFixed reads n bits from residue starting at cursor.
func readFixed(residue buffer.Buffer, cursor, n int) (buffer.Buffer, int, error) {
	if n < 0 || residue.Len()-cursor < n {
		return buffer.Buffer{}, cursor, ErrResidueUnderrun
	}
	val, err := residue.Slice(cursor, cursor+n)
	if err != nil {
		return buffer.Buffer{}, cursor, fmt.Errorf("%w", err)
	}
	return val, cursor + n, nil
}

// readLengthPrefixed decodes the variable-length field prefix from
// RFC 8724 Section 7.4, then reads that many bytes.
func readLengthPrefixed(residue buffer.Buffer, cursor int) (buffer.Buffer, int, error) {
	nBytes, next, err := decodeLengthPrefix(residue, cursor)
	if err != nil {
		return buffer.Buffer{}, cursor, err
	}
	return readFixed(residue, next, nBytes*8)
}

// decodeLengthPrefix is the inverse of the compressor's length-prefix
// encoding.
func decodeLengthPrefix(residue buffer.Buffer, cursor int) (int, int, error) {
	nibble, next, err := readFixed(residue, cursor, 4)
	if err != nil {
		return 0, cursor, fmt.Errorf("%w: %v", ErrLengthPrefixInvalid, err)
	}
	n, _ := nibble.Value(buffer.UnsignedInt)
	if n < 15 {
		return int(n), next, nil
	}

	byteExt, next2, err := readFixed(residue, next, 8)
	if err != nil {
		return 0, cursor, fmt.Errorf("%w: %v", ErrLengthPrefixInvalid, err)
	}
	b, _ := byteExt.Value(buffer.UnsignedInt)
	if b < 255 {
		return int(b), next2, nil
	}

	wordExt, next3, err := readFixed(residue, next2, 16)
	if err != nil {
		return 0, cursor, fmt.Errorf("%w: %v", ErrLengthPrefixInvalid, err)
	}
	w, _ := wordExt.Value(buffer.UnsignedInt)
	return int(w), next3, nil
}
