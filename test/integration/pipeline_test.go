//go:build integration

package integration_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/goschc/internal/config"
	"github.com/dantte-lp/goschc/internal/engine"
	"github.com/dantte-lp/goschc/internal/parser"
	"github.com/dantte-lp/goschc/internal/rulestore"
	"github.com/dantte-lp/goschc/internal/server"
)

const ruleYAML = `
id: s4
interface_id: eth0
parser: ipv4-only
rule_id_length: 8
rules:
  - id: "01"
    fields:
      - id: ipv4.version
        length: 4
        mo: equal
        cda: not_sent
        target_value: ["04"]
      - id: ipv4.ihl
        length: 4
        mo: equal
        cda: not_sent
        target_value: ["05"]
      - id: ipv4.dscp
        length: 6
        mo: ignore
        cda: value_sent
      - id: ipv4.ecn
        length: 2
        mo: ignore
        cda: value_sent
      - id: ipv4.total_length
        length: 16
        mo: ignore
        cda: compute
        compute_kind: ipv4_total_length
      - id: ipv4.identification
        length: 16
        mo: ignore
        cda: value_sent
      - id: ipv4.flags
        length: 3
        mo: ignore
        cda: value_sent
      - id: ipv4.fragment_offset
        length: 13
        mo: ignore
        cda: value_sent
      - id: ipv4.ttl
        length: 8
        mo: ignore
        cda: value_sent
      - id: ipv4.protocol
        length: 8
        mo: equal
        cda: not_sent
        target_value: ["11"]
      - id: ipv4.header_checksum
        length: 16
        mo: ignore
        cda: value_sent
      - id: ipv4.src_address
        length: 32
        mo: equal
        cda: not_sent
        target_value: ["c0000201"]
      - id: ipv4.dst_address
        length: 32
        mo: equal
        cda: not_sent
        target_value: ["c0000202"]
  - id: "00"
`

// buildIPv4Header constructs a 20-byte IPv4 header matching ruleYAML's
// fully-matchable rule, except for the payload-agnostic fields.
func buildIPv4Header() []byte {
	h := make([]byte, 20)
	h[0] = 0x45
	h[1] = 0x00
	h[2], h[3] = 0x00, 0x14
	h[4], h[5] = 0x00, 0x01
	h[6], h[7] = 0x00, 0x00
	h[8] = 64
	h[9] = 17
	h[10], h[11] = 0x00, 0x00
	copy(h[12:16], []byte{192, 0, 2, 1})
	copy(h[16:20], []byte{192, 0, 2, 2})
	return h
}

func TestFullPipelineConfigToHTTP(t *testing.T) {
	dir := t.TempDir()

	rulePath := filepath.Join(dir, "s4.yaml")
	if err := os.WriteFile(rulePath, []byte(ruleYAML), 0o644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}

	cfgPath := filepath.Join(dir, "goschc.yml")
	cfgYAML := `
http:
  addr: ":0"
engine:
  rule_dir: "` + dir + `"
contexts:
  - id: "s4"
    interface_id: "eth0"
    parser: "ipv4-only"
    rule_file: "s4.yaml"
    rule_id_length: 8
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	ctx, err := rulestore.LoadContext(filepath.Join(cfg.Engine.RuleDir, cfg.Contexts[0].RuleFile))
	if err != nil {
		t.Fatalf("rulestore.LoadContext: %v", err)
	}

	stack, err := parser.BuildStack(ctx.ParserID)
	if err != nil {
		t.Fatalf("parser.BuildStack: %v", err)
	}

	eng := engine.New(stack, ctx)
	srv := server.New(map[string]engine.Engine{ctx.ID: eng}, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	data := buildIPv4Header()
	reqBody, _ := json.Marshal(map[string]string{
		"context_id": "s4",
		"direction":  "up",
		"hex":        hex.EncodeToString(data),
	})

	resp, err := http.Post(ts.URL+"/v1/compress", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("compress request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("compress status = %d", resp.StatusCode)
	}

	var compressed struct {
		Hex        string `json:"hex"`
		BytesSaved int    `json:"bytes_saved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&compressed); err != nil {
		t.Fatalf("decode compress response: %v", err)
	}
	if compressed.BytesSaved <= 0 {
		t.Errorf("BytesSaved = %d, want > 0", compressed.BytesSaved)
	}

	decReqBody, _ := json.Marshal(map[string]string{
		"context_id": "s4",
		"direction":  "up",
		"hex":        compressed.Hex,
	})
	decResp, err := http.Post(ts.URL+"/v1/decompress", "application/json", bytes.NewReader(decReqBody))
	if err != nil {
		t.Fatalf("decompress request: %v", err)
	}
	defer decResp.Body.Close()
	if decResp.StatusCode != http.StatusOK {
		t.Fatalf("decompress status = %d", decResp.StatusCode)
	}

	var decompressed struct {
		Hex string `json:"hex"`
	}
	if err := json.NewDecoder(decResp.Body).Decode(&decompressed); err != nil {
		t.Fatalf("decode decompress response: %v", err)
	}
	if decompressed.Hex != hex.EncodeToString(data) {
		t.Errorf("round trip mismatch: got %s, want %s", decompressed.Hex, hex.EncodeToString(data))
	}
}
