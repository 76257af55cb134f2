package parser

import (
	"net"
	"testing"

	"github.com/dantte-lp/goschc/internal/buffer"
)

// buildIPv6Header assembles a minimal 40-byte IPv6 header for tests.
func buildIPv6Header(t *testing.T, nextHeader byte, src, dst string) []byte {
	t.Helper()
	srcIP := net.ParseIP(src).To16()
	dstIP := net.ParseIP(dst).To16()
	if srcIP == nil || dstIP == nil {
		t.Fatalf("invalid test addresses %q/%q", src, dst)
	}
	hdr := make([]byte, IPv6HeaderSize)
	hdr[0] = 0x60 // version 6, traffic class high nibble 0
	hdr[4] = 0x00 // payload length hi
	hdr[5] = 0x00 // payload length lo
	hdr[6] = nextHeader
	hdr[7] = 64 // hop limit
	copy(hdr[8:24], srcIP)
	copy(hdr[24:40], dstIP)
	return hdr
}

func TestIPv6ParseFieldOrder(t *testing.T) {
	t.Parallel()
	data := buildIPv6Header(t, 17, "2001:db8:a::3", "2001:db8:a::20")

	fields, next, hint, err := IPv6Module{}.Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if next != IPv6HeaderSize {
		t.Fatalf("next offset = %d, want %d", next, IPv6HeaderSize)
	}
	if hint != "udp" {
		t.Fatalf("hint = %q, want udp", hint)
	}

	wantIDs := []string{
		"ipv6.version", "ipv6.traffic_class", "ipv6.flow_label", "ipv6.payload_length",
		"ipv6.next_header", "ipv6.hop_limit", "ipv6.src_address", "ipv6.dst_address",
	}
	if len(fields) != len(wantIDs) {
		t.Fatalf("got %d fields, want %d", len(fields), len(wantIDs))
	}
	for i, id := range wantIDs {
		if fields[i].Descriptor.ID != id {
			t.Errorf("field %d ID = %q, want %q", i, fields[i].Descriptor.ID, id)
		}
	}
	if fields[6].Value.Len() != 128 {
		t.Errorf("src_address length = %d, want 128", fields[6].Value.Len())
	}
}

func TestIPv6RejectsBadVersion(t *testing.T) {
	t.Parallel()
	data := buildIPv6Header(t, 17, "2001:db8::1", "2001:db8::2")
	data[0] = 0x40 // version 4 in the top nibble
	if _, _, _, err := (IPv6Module{}).Parse(data, 0); err == nil {
		t.Fatal("expected error for bad version")
	}
}

func TestIPv6Truncated(t *testing.T) {
	t.Parallel()
	data := buildIPv6Header(t, 17, "2001:db8::1", "2001:db8::2")[:20]
	if _, _, _, err := (IPv6Module{}).Parse(data, 0); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestIPv6SerializeRoundTrip(t *testing.T) {
	t.Parallel()
	data := buildIPv6Header(t, 17, "2001:db8:a::3", "2001:db8:a::20")
	fields, _, _, err := (IPv6Module{}).Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := (IPv6Module{}).Serialize(fields, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !buffer.FromBytes(out).Equal(buffer.FromBytes(data)) {
		t.Errorf("round trip mismatch: got % x, want % x", out, data)
	}
}
