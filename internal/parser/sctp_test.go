package parser

import (
	"testing"

	"github.com/dantte-lp/goschc/internal/buffer"
)

func buildSCTPHeader(srcPort, dstPort uint16, tag, checksum uint32) []byte {
	b := make([]byte, SCTPCommonHeaderSize)
	b[0], b[1] = byte(srcPort>>8), byte(srcPort)
	b[2], b[3] = byte(dstPort>>8), byte(dstPort)
	b[4], b[5], b[6], b[7] = byte(tag>>24), byte(tag>>16), byte(tag>>8), byte(tag)
	b[8], b[9], b[10], b[11] = byte(checksum>>24), byte(checksum>>16), byte(checksum>>8), byte(checksum)
	return b
}

func TestSCTPParse(t *testing.T) {
	t.Parallel()
	data := buildSCTPHeader(1000, 2000, 0xdeadbeef, 0x11223344)
	fields, next, hint, err := (SCTPModule{}).Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if next != SCTPCommonHeaderSize {
		t.Fatalf("next = %d, want %d", next, SCTPCommonHeaderSize)
	}
	if hint != HintPayload {
		t.Fatalf("hint = %q, want payload", hint)
	}
	if len(fields) != 4 {
		t.Fatalf("got %d fields, want 4", len(fields))
	}
	tag, _ := fields[2].Value.Value(buffer.UnsignedInt)
	if tag != 0xdeadbeef {
		t.Errorf("verification_tag = %x, want deadbeef", tag)
	}
}

func TestSCTPSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	data := buildSCTPHeader(1000, 2000, 0xdeadbeef, 0x11223344)
	fields, _, _, err := (SCTPModule{}).Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := (SCTPModule{}).Serialize(fields, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !buffer.FromBytes(out).Equal(buffer.FromBytes(data)) {
		t.Errorf("round trip mismatch: got % x, want % x", out, data)
	}
}

func TestSCTPTruncated(t *testing.T) {
	t.Parallel()
	data := buildSCTPHeader(1, 2, 3, 4)[:8]
	if _, _, _, err := (SCTPModule{}).Parse(data, 0); err == nil {
		t.Fatal("expected truncation error")
	}
}
