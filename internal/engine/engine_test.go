package engine

import (
	"net"
	"testing"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/parser"
	"github.com/dantte-lp/goschc/internal/schc"
)

func mustBuf(t *testing.T, v uint64, length int) buffer.Buffer {
	t.Helper()
	b, err := buffer.FromUint(v, length)
	if err != nil {
		t.Fatalf("FromUint(%d, %d): %v", v, length, err)
	}
	return b
}

// ipv6UDPChecksum computes the standard RFC 768/2460 UDP checksum over
// an IPv6 pseudo-header, independently of the decompressor's
// implementation, so the test packet it seeds is internally consistent.
func ipv6UDPChecksum(src, dst, udpSegment []byte) uint16 {
	pseudo := append([]byte{}, src...)
	pseudo = append(pseudo, dst...)
	l := len(udpSegment)
	pseudo = append(pseudo, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
	pseudo = append(pseudo, 0, 0, 0, 17)
	full := append(pseudo, udpSegment...)
	if len(full)%2 == 1 {
		full = append(full, 0)
	}
	var sum uint32
	for i := 0; i+1 < len(full); i += 2 {
		sum += uint32(full[i])<<8 | uint32(full[i+1])
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	cs := ^uint16(sum)
	if cs == 0 {
		cs = 0xFFFF
	}
	return cs
}

// buildS6Packet assembles a 60-byte IPv6/UDP/CoAP packet: a 40-byte IPv6
// header, an 8-byte UDP header, and a 12-byte CoAP message (4-byte
// header, no token, payload marker, 7-byte payload).
func buildS6Packet(t *testing.T) []byte {
	t.Helper()
	coapPayload := []byte("2026073")
	coap := []byte{0x40, 0x01, 0x12, 0x34, 0xFF}
	coap = append(coap, coapPayload...)
	if len(coap) != 12 {
		t.Fatalf("test setup: coap message is %d bytes, want 12", len(coap))
	}

	udp := make([]byte, parser.UDPHeaderSize)
	udp[0], udp[1] = 0x9c, 0x40 // src port 40000
	udp[2], udp[3] = 0x16, 0x33 // dst port 5683
	udpLen := len(udp) + len(coap)
	udp[4], udp[5] = byte(udpLen>>8), byte(udpLen)

	srcIP := net.ParseIP("2001:db8:a::3").To16()
	dstIP := net.ParseIP("2001:db8:a::20").To16()
	checksum := ipv6UDPChecksum(srcIP, dstIP, append(append([]byte{}, udp...), coap...))
	udp[6], udp[7] = byte(checksum>>8), byte(checksum)

	ipv6 := make([]byte, parser.IPv6HeaderSize)
	ipv6[0] = 0x60
	ipv6[4], ipv6[5] = byte(udpLen>>8), byte(udpLen)
	ipv6[6] = 17 // next header UDP
	ipv6[7] = 64 // hop limit
	copy(ipv6[8:24], srcIP)
	copy(ipv6[24:40], dstIP)

	out := append([]byte{}, ipv6...)
	out = append(out, udp...)
	out = append(out, coap...)
	if len(out) != 60 {
		t.Fatalf("test setup: packet is %d bytes, want 60", len(out))
	}
	return out
}

// computeFieldKinds are fields this rule defers to the post-pass.
var computeFieldKinds = map[string]schc.ComputeKind{
	"ipv6.payload_length": schc.ComputeIPv6PayloadLength,
	"udp.length":          schc.ComputeUDPLength,
	"udp.checksum":        schc.ComputeUDPChecksum,
}

// buildFullyCompressingRule derives a rule matching pd field-for-field:
// compute-* fields are deferred, coap.message_id compresses via
// MSB(8)/LSB(8), and every other field is not-sent.
func buildFullyCompressingRule(t *testing.T, pd schc.PacketDescriptor) schc.RuleDescriptor {
	t.Helper()
	fields := make([]schc.RuleFieldDescriptor, len(pd.Fields))
	for i, pf := range pd.Fields {
		switch {
		case computeFieldKinds[pf.Descriptor.ID] != schc.ComputeNone:
			fields[i] = schc.RuleFieldDescriptor{
				FieldDescriptor: pf.Descriptor,
				MO:              schc.MOIgnore,
				CDA:             schc.CDACompute,
				ComputeKind:     computeFieldKinds[pf.Descriptor.ID],
			}
		case pf.Descriptor.ID == "coap.message_id":
			fields[i] = schc.RuleFieldDescriptor{
				FieldDescriptor: pf.Descriptor,
				TargetValue:     []buffer.Buffer{pf.Value},
				MO:              schc.MOMSB,
				MOArg:           8,
				CDA:             schc.CDALSB,
			}
		default:
			fields[i] = schc.RuleFieldDescriptor{
				FieldDescriptor: pf.Descriptor,
				TargetValue:     []buffer.Buffer{pf.Value},
				MO:              schc.MOEqual,
				CDA:             schc.CDANotSent,
			}
		}
		fields[i].Direction = schc.DirBidirectional
	}
	return schc.RuleDescriptor{ID: mustBuf(t, 1, 4), Fields: fields}
}

func newS6Engine(t *testing.T, pd schc.PacketDescriptor) Engine {
	t.Helper()
	stack := parser.NewStack("ipv6-udp-coap", "ipv6", parser.IPv6Module{}, parser.UDPModule{}, parser.CoAPModule{})
	rule := buildFullyCompressingRule(t, pd)
	defaultRule := schc.RuleDescriptor{ID: mustBuf(t, 0, 4)}
	ctx := schc.Context{
		ID:           "s6",
		ParserID:     stack.ID(),
		RuleIDLength: 4,
		Ruleset:      []schc.RuleDescriptor{rule, defaultRule},
	}
	return New(stack, ctx)
}

// TestFullStackRoundTrip implements scenario S6: a 60-byte IPv6/UDP/CoAP
// packet matching a fully-specified rule compresses to rule_id plus a
// small residue, and decompresses back to the original bytes exactly,
// after UDP checksum/length and IPv6 payload length recomputation.
func TestFullStackRoundTrip(t *testing.T) {
	t.Parallel()
	data := buildS6Packet(t)

	bootstrapStack := parser.NewStack("ipv6-udp-coap", "ipv6", parser.IPv6Module{}, parser.UDPModule{}, parser.CoAPModule{})
	pd, err := bootstrapStack.Parse(data)
	if err != nil {
		t.Fatalf("bootstrap Parse: %v", err)
	}

	eng := newS6Engine(t, pd)

	compressed, err := eng.CompressPacket(data, schc.DirUp)
	if err != nil {
		t.Fatalf("CompressPacket: %v", err)
	}

	residueBits := compressed.Len() - eng.Context.RuleIDLength - pd.Payload.Len()
	if residueBits > 16 {
		t.Errorf("residue is %d bits, want <= 16", residueBits)
	}
	if residueBits != 8 {
		t.Errorf("residue is %d bits, want exactly 8 (message_id LSB(8))", residueBits)
	}

	out, err := eng.DecompressPacket(compressed, schc.DirUp)
	if err != nil {
		t.Fatalf("DecompressPacket: %v", err)
	}
	if !buffer.FromBytes(out).Equal(buffer.FromBytes(data)) {
		t.Errorf("round trip mismatch:\n got % x\nwant % x", out, data)
	}
}

func TestMatchReturnsDefaultWhenNoRuleFits(t *testing.T) {
	t.Parallel()
	data := buildS6Packet(t)
	bootstrapStack := parser.NewStack("ipv6-udp-coap", "ipv6", parser.IPv6Module{}, parser.UDPModule{}, parser.CoAPModule{})
	pd, err := bootstrapStack.Parse(data)
	if err != nil {
		t.Fatalf("bootstrap Parse: %v", err)
	}

	defaultRule := schc.RuleDescriptor{ID: mustBuf(t, 0, 4)}
	ctx := schc.Context{ID: "default-only", ParserID: bootstrapStack.ID(), RuleIDLength: 4, Ruleset: []schc.RuleDescriptor{defaultRule}}
	eng := New(bootstrapStack, ctx)

	rule, _, err := eng.Match(pd, schc.DirUp)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !rule.IsDefault() {
		t.Errorf("expected default rule")
	}
}
