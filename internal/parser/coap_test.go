package parser

import (
	"testing"

	"github.com/dantte-lp/goschc/internal/buffer"
)

// buildCoAPMessage assembles ver=1/type=0/tkl=2, code GET, a 2-byte
// token, a single 4-byte option (delta 11, simulating Uri-Path), the
// payload marker, and a payload.
func buildCoAPMessage() []byte {
	msg := []byte{
		0x42,       // ver=1 type=0 tkl=2
		0x01,       // code GET
		0x12, 0x34, // message id
		0xAA, 0xBB, // token
		0xB4,       // option header: delta=11, length=4
		't', 'e', 'm', 'p', // option value
		coapPayloadMarker,
		'2', '2', '.', '5',
	}
	return msg
}

func TestCoAPParse(t *testing.T) {
	t.Parallel()
	data := buildCoAPMessage()
	fields, next, hint, err := (CoAPModule{}).Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if hint != HintPayload {
		t.Fatalf("hint = %q, want payload", hint)
	}
	if next != len(data)-4 {
		t.Fatalf("next = %d, want %d (payload start)", next, len(data)-4)
	}

	wantIDs := []string{
		"coap.version", "coap.type", "coap.token_length", "coap.code", "coap.message_id",
		"coap.token", "coap.option_delta", "coap.option_length", "coap.option_value",
		"coap.payload_marker",
	}
	if len(fields) != len(wantIDs) {
		t.Fatalf("got %d fields, want %d", len(fields), len(wantIDs))
	}
	for i, id := range wantIDs {
		if fields[i].Descriptor.ID != id {
			t.Errorf("field %d ID = %q, want %q", i, fields[i].Descriptor.ID, id)
		}
	}

	delta, _ := fields[6].Value.Value(buffer.UnsignedInt)
	length, _ := fields[7].Value.Value(buffer.UnsignedInt)
	if delta != 11 || length != 4 {
		t.Errorf("option delta/length = %d/%d, want 11/4", delta, length)
	}
	if string(fields[8].Value.Bytes()) != "temp" {
		t.Errorf("option value = %q, want temp", fields[8].Value.Bytes())
	}
}

func TestCoAPParseNoOptionsNoPayload(t *testing.T) {
	t.Parallel()
	data := []byte{0x40, 0x01, 0x00, 0x01} // tkl=0, no token, no options, no marker
	fields, next, hint, err := (CoAPModule{}).Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if next != len(data) {
		t.Fatalf("next = %d, want %d", next, len(data))
	}
	if hint != HintPayload {
		t.Fatalf("hint = %q, want payload", hint)
	}
	if len(fields) != 5 {
		t.Fatalf("got %d fields, want 5", len(fields))
	}
}

func TestCoAPExtendedOptionNibbles(t *testing.T) {
	t.Parallel()
	for _, v := range []int{0, 12, 13, 100, 268, 269, 1000, 65804} {
		nibble, ext := encodeCoAPExtended(v)
		data := append([]byte{byte(nibble)}, ext...)
		got, _, err := readCoAPExtended(data, 1, nibble)
		if err != nil {
			t.Fatalf("readCoAPExtended(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip for %d: got %d", v, got)
		}
	}
}

func TestCoAPSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	data := buildCoAPMessage()
	fields, next, _, err := (CoAPModule{}).Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := (CoAPModule{}).Serialize(fields, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := data[:next]
	if !buffer.FromBytes(out).Equal(buffer.FromBytes(want)) {
		t.Errorf("round trip mismatch: got % x, want % x", out, want)
	}
}

func TestCoAPRejectsOversizeToken(t *testing.T) {
	t.Parallel()
	data := []byte{0x49, 0x01, 0x00, 0x01} // tkl=9, invalid
	if _, _, _, err := (CoAPModule{}).Parse(data, 0); err == nil {
		t.Fatal("expected error for token length > 8")
	}
}
