package decompressor

import (
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// ipv6HeaderBytes is the fixed IPv6 base header size; kept local rather
// than importing the parser package, since the post-pass only needs the
// constant, not any parsing behavior.
const ipv6HeaderBytes = 40

const protoUDP = 17

// runComputePostPass fills in every compute-* field deferred during
// reconstruction.
func runComputePostPass(pd *schc.PacketDescriptor, pending []pendingCompute) error {
	for _, p := range pending {
		width := pd.Fields[p.index].Descriptor.Length
		var value buffer.Buffer
		var err error
		switch p.kind {
		case schc.ComputeIPv4TotalLength:
			value, err = recomputeIPv4TotalLength(*pd, width)
		case schc.ComputeIPv6PayloadLength:
			value, err = recomputeIPv6PayloadLength(*pd, width)
		case schc.ComputeUDPLength:
			value, err = recomputeUDPLength(*pd, width)
		case schc.ComputeUDPChecksum:
			value, err = recomputeUDPChecksum(*pd, width)
		default:
			return fmt.Errorf("field %s: unknown compute kind", pd.Fields[p.index].Descriptor.ID)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", pd.Fields[p.index].Descriptor.ID, err)
		}
		pd.Fields[p.index].Value = value
	}
	return nil
}

func fieldIndex(pd schc.PacketDescriptor, id string) (int, bool) {
	for i, f := range pd.Fields {
		if f.Descriptor.ID == id {
			return i, true
		}
	}
	return 0, false
}

// bitsFrom sums the bit length of every field from startIdx onward, plus
// the trailing payload — i.e. everything that follows the layer starting
// at startIdx.
func bitsFrom(pd schc.PacketDescriptor, startIdx int) int {
	bits := 0
	for _, f := range pd.Fields[startIdx:] {
		bits += f.Value.Len()
	}
	return bits + pd.Payload.Len()
}

// recomputeIPv4TotalLength recomputes the IPv4 Total Length field: the
// byte count of everything from the IPv4 header's first field onward.
func recomputeIPv4TotalLength(pd schc.PacketDescriptor, width int) (buffer.Buffer, error) {
	idx, ok := fieldIndex(pd, "ipv4.version")
	if !ok {
		return buffer.Buffer{}, fmt.Errorf("no ipv4.version field present")
	}
	return buffer.FromUint(uint64(bitsFrom(pd, idx)/8), width)
}

// recomputeIPv6PayloadLength recomputes the IPv6 Payload Length field:
// everything after the fixed 40-byte base header.
func recomputeIPv6PayloadLength(pd schc.PacketDescriptor, width int) (buffer.Buffer, error) {
	idx, ok := fieldIndex(pd, "ipv6.version")
	if !ok {
		return buffer.Buffer{}, fmt.Errorf("no ipv6.version field present")
	}
	totalBytes := bitsFrom(pd, idx) / 8
	return buffer.FromUint(uint64(totalBytes-ipv6HeaderBytes), width)
}

// recomputeUDPLength recomputes the UDP Length field: UDP header plus
// everything that follows it.
func recomputeUDPLength(pd schc.PacketDescriptor, width int) (buffer.Buffer, error) {
	idx, ok := fieldIndex(pd, "udp.src_port")
	if !ok {
		return buffer.Buffer{}, fmt.Errorf("no udp.src_port field present")
	}
	return buffer.FromUint(uint64(bitsFrom(pd, idx)/8), width)
}

// recomputeUDPChecksum recomputes the UDP checksum over the standard
// RFC 768/RFC 2460 pseudo-header plus the UDP header (with checksum
// zeroed) plus everything after it. For IPv6, a computed result of zero
// is transmitted as 0xFFFF (RFC 2460 Section 8.1).
func recomputeUDPChecksum(pd schc.PacketDescriptor, width int) (buffer.Buffer, error) {
	udpIdx, ok := fieldIndex(pd, "udp.src_port")
	if !ok {
		return buffer.Buffer{}, fmt.Errorf("no udp.src_port field present")
	}
	udpLengthBytes := bitsFrom(pd, udpIdx) / 8

	var pseudoHeader []byte
	isIPv6 := false
	if srcIdx, ok := fieldIndex(pd, "ipv6.src_address"); ok {
		isIPv6 = true
		dstIdx, _ := fieldIndex(pd, "ipv6.dst_address")
		pseudoHeader = append(pseudoHeader, pd.Fields[srcIdx].Value.Bytes()...)
		pseudoHeader = append(pseudoHeader, pd.Fields[dstIdx].Value.Bytes()...)
		pseudoHeader = append(pseudoHeader,
			byte(udpLengthBytes>>24), byte(udpLengthBytes>>16), byte(udpLengthBytes>>8), byte(udpLengthBytes))
		pseudoHeader = append(pseudoHeader, 0, 0, 0, protoUDP)
	} else if srcIdx, ok := fieldIndex(pd, "ipv4.src_address"); ok {
		dstIdx, _ := fieldIndex(pd, "ipv4.dst_address")
		pseudoHeader = append(pseudoHeader, pd.Fields[srcIdx].Value.Bytes()...)
		pseudoHeader = append(pseudoHeader, pd.Fields[dstIdx].Value.Bytes()...)
		pseudoHeader = append(pseudoHeader, 0, protoUDP)
		pseudoHeader = append(pseudoHeader, byte(udpLengthBytes>>8), byte(udpLengthBytes))
	} else {
		return buffer.Buffer{}, fmt.Errorf("no enclosing IPv4/IPv6 addresses found for UDP checksum")
	}

	var body []byte
	for i := udpIdx; i < len(pd.Fields); i++ {
		if pd.Fields[i].Descriptor.ID == "udp.checksum" {
			body = append(body, 0, 0)
			continue
		}
		body = append(body, pd.Fields[i].Value.Bytes()...)
	}
	body = append(body, pd.Payload.Bytes()...)
	if len(body)%2 == 1 {
		body = append(body, 0)
	}

	sum := internetChecksum(append(pseudoHeader, body...))
	if isIPv6 && sum == 0 {
		sum = 0xFFFF
	}
	return buffer.FromUint(uint64(sum), width)
}

// internetChecksum computes the one's-complement-of-one's-complement-sum
// checksum shared by IPv4, UDP, and TCP (RFC 1071).
func internetChecksum(data []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
