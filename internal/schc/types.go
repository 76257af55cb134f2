// Package schc holds the shared SCHC (RFC 8724) data model: the field,
// rule, and context types every other core subsystem (parser, ruler,
// compressor, decompressor) builds on. It intentionally carries no
// behavior beyond small, pure helpers — the four subsystems own the
// actual parsing/matching/compression logic.
package schc

import "github.com/dantte-lp/goschc/internal/buffer"

// Direction identifies which way a packet is traveling relative to the
// device running this engine (RFC 8724 Section 6.1).
type Direction uint8

const (
	// DirUp is a packet traveling from the constrained device toward the
	// network (e.g. LPWAN node -> core network).
	DirUp Direction = iota

	// DirDown is a packet traveling from the network toward the
	// constrained device.
	DirDown

	// DirBidirectional field descriptors apply to traffic in either
	// direction.
	DirBidirectional
)

// String returns "up", "down", or "bidirectional".
func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirBidirectional:
		return "bidirectional"
	default:
		return "unknown"
	}
}

// CompatibleWith reports whether a rule field descriptor carrying
// direction d applies to a packet traveling in direction pkt.
func (d Direction) CompatibleWith(pkt Direction) bool {
	return d == DirBidirectional || pkt == DirBidirectional || d == pkt
}

// MatchingOperator is the predicate a RuleFieldDescriptor uses to decide
// whether a packet field is acceptable for its rule (RFC 8724 Section 7.4).
type MatchingOperator uint8

const (
	// MOIgnore always matches.
	MOIgnore MatchingOperator = iota
	// MOEqual requires bit-exact equality with TargetValue.
	MOEqual
	// MOMSB requires the MOArg most significant bits to equal the MOArg
	// most significant bits of TargetValue.
	MOMSB
	// MOMatchMapping requires the field to equal one entry of TargetValue.
	MOMatchMapping
)

// String names the matching operator.
func (m MatchingOperator) String() string {
	switch m {
	case MOIgnore:
		return "ignore"
	case MOEqual:
		return "equal"
	case MOMSB:
		return "MSB"
	case MOMatchMapping:
		return "match-mapping"
	default:
		return "unknown"
	}
}

// CDA is a Compression-Decompression Action: the per-field function that
// produces a residue on compression and reconstructs the field on
// decompression (RFC 8724 Section 7.5).
type CDA uint8

const (
	// CDANotSent emits no residue; the field is reconstructed from
	// TargetValue.
	CDANotSent CDA = iota
	// CDAValueSent transmits the full field value.
	CDAValueSent
	// CDAMappingSent transmits the index of the matching TargetValue entry.
	CDAMappingSent
	// CDALSB transmits the least-significant field.Length-MOArg bits.
	CDALSB
	// CDACompute emits nothing on the wire; the decompressor recomputes
	// the field's value in a post-pass. ComputeKind says how.
	CDACompute
)

// String names the CDA.
func (c CDA) String() string {
	switch c {
	case CDANotSent:
		return "not-sent"
	case CDAValueSent:
		return "value-sent"
	case CDAMappingSent:
		return "mapping-sent"
	case CDALSB:
		return "LSB"
	case CDACompute:
		return "compute"
	default:
		return "unknown"
	}
}

// ComputeKind names which compute-* function recomputes a CDACompute
// field during decompression's post-pass (RFC 8724 Section 7.5).
type ComputeKind uint8

const (
	// ComputeNone is the zero value; only meaningful when CDA == CDACompute.
	ComputeNone ComputeKind = iota
	// ComputeIPv4TotalLength recomputes the IPv4 Total Length field.
	ComputeIPv4TotalLength
	// ComputeIPv6PayloadLength recomputes the IPv6 Payload Length field.
	ComputeIPv6PayloadLength
	// ComputeUDPLength recomputes the UDP Length field.
	ComputeUDPLength
	// ComputeUDPChecksum recomputes the UDP Checksum field.
	ComputeUDPChecksum
)

// FieldDescriptor identifies one slot in a packet.
type FieldDescriptor struct {
	// ID names the field, e.g. "ipv6.next_header". Parser modules define
	// the vocabulary; rules reference it by this string.
	ID string

	// Length is the field's bit length, or 0 to signal a variable-length
	// field whose actual length is only known once parsed.
	Length int

	// Position disambiguates repeated occurrences of the same ID (e.g.
	// successive CoAP options), starting at 0.
	Position int

	// Direction restricts which packet direction this descriptor applies
	// to.
	Direction Direction
}

// RuleFieldDescriptor is a FieldDescriptor plus what a rule expects for it.
type RuleFieldDescriptor struct {
	FieldDescriptor

	// TargetValue holds what the rule expects: a single buffer for
	// equal/MSB matching, or several for match-mapping.
	TargetValue []buffer.Buffer

	// MO is the Matching Operator applied on the compression side.
	MO MatchingOperator

	// MOArg is the operand for parameterized operators: x in MSB(x), and
	// also the x used by the paired LSB(x) CDA.
	MOArg int

	// CDA is the Compression-Decompression Action applied to this field.
	CDA CDA

	// ComputeKind selects which compute-* function runs when CDA ==
	// CDACompute.
	ComputeKind ComputeKind
}

// PacketField pairs a parsed/reconstructed field with its descriptor.
type PacketField struct {
	Descriptor FieldDescriptor
	Value      buffer.Buffer
}

// PacketDescriptor is the ordered sequence of field buffers a Parser
// produces, or a Decompressor reconstructs, plus the trailing payload.
type PacketDescriptor struct {
	Fields  []PacketField
	Payload buffer.Buffer
}

// RuleNature distinguishes rules that compress from ones that merely
// fragment/pass traffic through unchanged (RFC 8724 Section 6.1).
type RuleNature uint8

const (
	NatureCompression RuleNature = iota
	NatureNoCompression
)

// RuleDescriptor is one entry of a Context's ruleset.
type RuleDescriptor struct {
	// ID is the rule identifier: right-aligned, left-zero-padded, at
	// least 1 bit.
	ID buffer.Buffer

	Nature RuleNature

	// Fields lists the rule's field descriptors in on-wire order. A rule
	// with no fields is the default rule: it matches any packet.
	Fields []RuleFieldDescriptor
}

// IsDefault reports whether r is the catch-all default rule.
func (r RuleDescriptor) IsDefault() bool {
	return len(r.Fields) == 0
}

// Context binds a ruleset to a parser stack and carries the rule-ID
// length needed to demultiplex compressed packets on decompression.
type Context struct {
	ID          string
	InterfaceID string
	ParserID    string

	// RuleIDLength is the fixed bit length of every rule ID in Ruleset.
	RuleIDLength int

	// Ruleset is evaluated first-match; if a default rule is present it
	// must be last.
	Ruleset []RuleDescriptor
}

// FilterByDirection keeps only the field descriptors compatible with dir,
// preserving order. RuleDescriptor authors may list direction-specific
// variants of the same slot; only the compatible one survives the filter.
func FilterByDirection(fields []RuleFieldDescriptor, dir Direction) []RuleFieldDescriptor {
	out := make([]RuleFieldDescriptor, 0, len(fields))
	for _, f := range fields {
		if f.Direction.CompatibleWith(dir) {
			out = append(out, f)
		}
	}
	return out
}

// BitsNeeded returns ceil(log2(n)), the number of bits required to index n
// distinct mapping entries. BitsNeeded(0) and BitsNeeded(1) are 0.
func BitsNeeded(n int) int {
	if n <= 1 {
		return 0
	}
	bits := 0
	for (1 << uint(bits)) < n {
		bits++
	}
	return bits
}
