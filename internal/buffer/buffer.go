// Package buffer implements the bit-exact container used throughout the
// SCHC engine (RFC 8724 Section 4): every field value, residue, and
// compressed bitstream is a Buffer. A Buffer pairs a byte slice with a
// meaningful bit length and a padding side, so that values shorter than a
// byte multiple can be represented without ambiguity about which bits are
// filler.
//
// Buffers are immutable at the API level: every operation returns a new
// Buffer rather than mutating the receiver.
package buffer

import (
	"errors"
	"fmt"
)

// Padding identifies which side of the stored byte content holds the filler
// bits (8*len(content) - length of them).
type Padding uint8

const (
	// PadLeft means filler bits sit at the most-significant side; the
	// meaningful bits are right-aligned within the stored bytes. Rule IDs
	// and concatenation results use this side (RFC 8724 Section 4.1).
	PadLeft Padding = iota

	// PadRight means filler bits sit at the least-significant side; the
	// meaningful bits are left-aligned (MSB-aligned) within the stored
	// bytes. Byte-aligned wire data (parsed fields, serialized output)
	// uses this side.
	PadRight
)

// String returns "left" or "right".
func (p Padding) String() string {
	if p == PadLeft {
		return "left"
	}
	return "right"
}

// ValueKind selects the interpretation used by Buffer.Value.
type ValueKind uint8

const (
	// UnsignedInt reads the meaningful bits as an unsigned big-endian
	// integer.
	UnsignedInt ValueKind = iota

	// SignedInt reads the meaningful bits as a two's-complement
	// big-endian integer, sign-extended from the most significant bit.
	SignedInt
)

// ShiftMode selects how Buffer.Shift treats bits that fall outside the
// original length.
type ShiftMode uint8

const (
	// ShiftPreserveLength discards bits shifted off the meaningful range
	// and keeps the buffer's length unchanged (the default).
	ShiftPreserveLength ShiftMode = iota

	// ShiftExtendLength keeps every bit: it inserts |n| zero bits instead
	// of discarding anything, growing the length by |n|.
	ShiftExtendLength
)

// Sentinel errors. OutOfRange and LengthMismatch are
// programming errors in the caller: the Buffer layer always reports them
// rather than silently truncating or zero-filling.
var (
	ErrOutOfRange   = errors.New("buffer: index out of range")
	ErrLengthMismatch = errors.New("buffer: length mismatch")
	ErrValueTooWide = errors.New("buffer: value wider than 63 bits")
	ErrInvalidArg   = errors.New("buffer: invalid argument")
)

// Buffer is a bit-exact, immutable byte container.
type Buffer struct {
	content []byte
	length  int
	padding Padding
}

// New builds a Buffer from content, keeping only the length meaningful bits
// on the given padding side. It zeroes the filler bits so that two buffers
// built from differently-dirty byte slices compare equal. length must
// satisfy 0 <= length <= 8*len(content).
func New(content []byte, length int, padding Padding) (Buffer, error) {
	if length < 0 || length > 8*len(content) {
		return Buffer{}, fmt.Errorf("buffer: New: length %d out of range for %d content bytes: %w",
			length, len(content), ErrOutOfRange)
	}
	bits := make([]byte, length)
	total := 8 * len(content)
	filler := total - length
	for i := range bits {
		abs := i
		if padding == PadLeft {
			abs = filler + i
		}
		bits[i] = readBit(content, abs)
	}
	return fromBits(bits, padding), nil
}

// FromBytes builds a byte-aligned Buffer (length == 8*len(content)) with
// PadRight padding, since a fully byte-aligned buffer has no filler bits
// and the padding side is immaterial until it is sliced or shifted.
func FromBytes(content []byte) Buffer {
	b, _ := New(content, 8*len(content), PadRight)
	return b
}

// Zero returns a length-bit buffer of all-zero meaningful bits.
func Zero(length int, padding Padding) Buffer {
	if length < 0 {
		length = 0
	}
	return fromBits(make([]byte, length), padding)
}

// FromUint packs the low `length` bits of v into a new Buffer, MSB first,
// with PadLeft padding (the natural representation for a numeric value).
func FromUint(v uint64, length int) (Buffer, error) {
	if length < 0 || length > 64 {
		return Buffer{}, fmt.Errorf("buffer: FromUint: length %d out of range: %w", length, ErrInvalidArg)
	}
	bits := make([]byte, length)
	for i := 0; i < length; i++ {
		shift := uint(length - 1 - i)
		bits[i] = byte((v >> shift) & 1)
	}
	return fromBits(bits, PadLeft), nil
}

// Len returns the number of meaningful bits.
func (b Buffer) Len() int { return b.length }

// Padding returns the buffer's current padding side.
func (b Buffer) Padding() Padding { return b.padding }

// Bytes returns the raw stored bytes (including any zeroed filler bits).
// For a byte-aligned buffer (Len()%8 == 0) these are exactly the meaningful
// bytes in wire order.
func (b Buffer) Bytes() []byte {
	out := make([]byte, len(b.content))
	copy(out, b.content)
	return out
}

// ByteLen returns ceil(Len()/8), the number of bytes needed to carry the
// meaningful bits byte-aligned.
func (b Buffer) ByteLen() int {
	return (b.length + 7) / 8
}

// String renders the buffer as "<length>b:<hex content>/<padding side>" for
// diagnostics.
func (b Buffer) String() string {
	return fmt.Sprintf("%db:%x/%s", b.length, b.content, b.padding)
}

// bitsOf returns the meaningful bit sequence, MSB first, as a []byte of
// 0/1 values. This is the canonical in-memory representation every other
// operation is built from.
func bitsOf(b Buffer) []byte {
	bits := make([]byte, b.length)
	total := 8 * len(b.content)
	filler := total - b.length
	for i := range bits {
		abs := i
		if b.padding == PadLeft {
			abs = filler + i
		}
		bits[i] = readBit(b.content, abs)
	}
	return bits
}

// fromBits packs a 0/1 bit sequence into a Buffer, placing filler bits on
// the requested side of the minimal byte array.
func fromBits(bits []byte, padding Padding) Buffer {
	n := len(bits)
	nbytes := (n + 7) / 8
	content := make([]byte, nbytes)
	total := nbytes * 8
	filler := total - n
	for i, bit := range bits {
		if bit == 0 {
			continue
		}
		abs := i
		if padding == PadLeft {
			abs = filler + i
		}
		setBit(content, abs)
	}
	return Buffer{content: content, length: n, padding: padding}
}

func readBit(content []byte, absIdx int) byte {
	byteIdx := absIdx / 8
	bitIdx := 7 - absIdx%8
	return (content[byteIdx] >> uint(bitIdx)) & 1
}

func setBit(content []byte, absIdx int) {
	byteIdx := absIdx / 8
	bitIdx := 7 - absIdx%8
	content[byteIdx] |= 1 << uint(bitIdx)
}

// BitAt returns the bit at meaningful index i (0 = most significant). A
// negative i counts from the end, as in i == -1 for the last bit.
func (b Buffer) BitAt(i int) (int, error) {
	idx := i
	if idx < 0 {
		idx += b.length
	}
	if idx < 0 || idx >= b.length {
		return 0, fmt.Errorf("buffer: BitAt(%d): %w", i, ErrOutOfRange)
	}
	bits := bitsOf(b)
	return int(bits[idx]), nil
}

// normalizeRange resolves negative start/end indices against length and
// validates 0 <= start <= end <= length.
func normalizeRange(length, start, end int) (int, int, error) {
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	if start < 0 || end < start || end > length {
		return 0, 0, fmt.Errorf("buffer: range [%d,%d) invalid for length %d: %w", start, end, length, ErrOutOfRange)
	}
	return start, end, nil
}

// Slice returns the meaningful bits in [start,end), inheriting the source
// buffer's padding side. Negative indices count from the end.
func (b Buffer) Slice(start, end int) (Buffer, error) {
	s, e, err := normalizeRange(b.length, start, end)
	if err != nil {
		return Buffer{}, fmt.Errorf("buffer: Slice: %w", err)
	}
	bits := bitsOf(b)
	return fromBits(bits[s:e], b.padding), nil
}

// SetSlice returns a copy of b with the bits in [start,end) replaced by
// src, whose length must equal end-start.
func (b Buffer) SetSlice(start, end int, src Buffer) (Buffer, error) {
	s, e, err := normalizeRange(b.length, start, end)
	if err != nil {
		return Buffer{}, fmt.Errorf("buffer: SetSlice: %w", err)
	}
	if e-s != src.length {
		return Buffer{}, fmt.Errorf("buffer: SetSlice: range length %d != src length %d: %w",
			e-s, src.length, ErrLengthMismatch)
	}
	bits := bitsOf(b)
	copy(bits[s:e], bitsOf(src))
	return fromBits(bits, b.padding), nil
}

// Shift moves bits toward the most significant side (n < 0, "left") or the
// least significant side (n > 0, "right") by |n| positions. See ShiftMode
// for how bits falling outside the range are handled.
func (b Buffer) Shift(n int, mode ShiftMode) (Buffer, error) {
	if n == 0 {
		return b, nil
	}
	k := n
	left := k < 0
	if left {
		k = -k
	}
	bits := bitsOf(b)

	switch mode {
	case ShiftPreserveLength:
		if k > b.length {
			k = b.length
		}
		out := make([]byte, b.length)
		if left {
			copy(out, bits[k:])
		} else {
			copy(out[k:], bits[:b.length-k])
		}
		return fromBits(out, b.padding), nil
	case ShiftExtendLength:
		zeros := make([]byte, k)
		var out []byte
		if left {
			out = append(append([]byte{}, bits...), zeros...)
		} else {
			out = append(append([]byte{}, zeros...), bits...)
		}
		return fromBits(out, b.padding), nil
	default:
		return Buffer{}, fmt.Errorf("buffer: Shift: unknown mode %d: %w", mode, ErrInvalidArg)
	}
}

// Pad returns a Buffer holding the same meaningful bits with filler
// relocated to the requested side.
func (b Buffer) Pad(side Padding) Buffer {
	if b.padding == side {
		return b
	}
	return fromBits(bitsOf(b), side)
}

func (b Buffer) bitwise(other Buffer, op func(a, c byte) byte, opName string) (Buffer, error) {
	if b.length != other.length {
		return Buffer{}, fmt.Errorf("buffer: %s: length %d != %d: %w", opName, b.length, other.length, ErrLengthMismatch)
	}
	ab := bitsOf(b)
	ob := bitsOf(other)
	out := make([]byte, b.length)
	for i := range out {
		out[i] = op(ab[i], ob[i])
	}
	return fromBits(out, b.padding), nil
}

// And returns the bitwise AND of b and other. Both must share length; the
// result is padded on b's side.
func (b Buffer) And(other Buffer) (Buffer, error) {
	return b.bitwise(other, func(a, c byte) byte { return a & c }, "And")
}

// Or returns the bitwise OR of b and other.
func (b Buffer) Or(other Buffer) (Buffer, error) {
	return b.bitwise(other, func(a, c byte) byte { return a | c }, "Or")
}

// Xor returns the bitwise XOR of b and other.
func (b Buffer) Xor(other Buffer) (Buffer, error) {
	return b.bitwise(other, func(a, c byte) byte { return a ^ c }, "Xor")
}

// Not returns the bitwise complement of b, same length and padding side.
func (b Buffer) Not() Buffer {
	bits := bitsOf(b)
	out := make([]byte, len(bits))
	for i, v := range bits {
		if v == 0 {
			out[i] = 1
		}
	}
	return fromBits(out, b.padding)
}

// Concat returns a new buffer of length b.Len()+other.Len() with b's bits
// most significant, padded LEFT (RFC 8724 Section 4.1).
func (b Buffer) Concat(other Buffer) Buffer {
	all := append(append([]byte{}, bitsOf(b)...), bitsOf(other)...)
	return fromBits(all, PadLeft)
}

// ConcatAll concatenates a sequence of buffers left to right.
func ConcatAll(bufs ...Buffer) Buffer {
	if len(bufs) == 0 {
		return Zero(0, PadLeft)
	}
	out := bufs[0]
	for _, b := range bufs[1:] {
		out = out.Concat(b)
	}
	return out
}

// Chunks splits b into a sequence of n-bit buffers, MSB first; the final
// chunk may be shorter than n. n must be positive.
func (b Buffer) Chunks(n int) ([]Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("buffer: Chunks: n must be positive, got %d: %w", n, ErrInvalidArg)
	}
	bits := bitsOf(b)
	var out []Buffer
	for i := 0; i < len(bits); i += n {
		end := i + n
		if end > len(bits) {
			end = len(bits)
		}
		out = append(out, fromBits(bits[i:end], b.padding))
	}
	return out, nil
}

// Value reads the meaningful bits as a big-endian integer. Buffers wider
// than 63 bits (addresses and other bulk fields) are not representable and
// return ErrValueTooWide; callers needing their raw bytes should use Bytes
// or Slice instead.
func (b Buffer) Value(kind ValueKind) (int64, error) {
	if b.length == 0 {
		return 0, nil
	}
	if b.length > 63 {
		return 0, fmt.Errorf("buffer: Value: length %d: %w", b.length, ErrValueTooWide)
	}
	bits := bitsOf(b)
	var v int64
	for _, bit := range bits {
		v = (v << 1) | int64(bit)
	}
	if kind == SignedInt && bits[0] == 1 {
		v -= int64(1) << uint(b.length)
	}
	return v, nil
}

// Equal reports whether b and other carry the same meaningful bit
// sequence, regardless of padding side or stored byte length.
func (b Buffer) Equal(other Buffer) bool {
	if b.length != other.length {
		return false
	}
	ab := bitsOf(b)
	ob := bitsOf(other)
	for i := range ab {
		if ab[i] != ob[i] {
			return false
		}
	}
	return true
}
