package server_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/engine"
	schcmetrics "github.com/dantte-lp/goschc/internal/metrics"
	"github.com/dantte-lp/goschc/internal/parser"
	"github.com/dantte-lp/goschc/internal/schc"
	"github.com/dantte-lp/goschc/internal/server"
)

func mustBuf(t *testing.T, v uint64, length int) buffer.Buffer {
	t.Helper()
	b, err := buffer.FromUint(v, length)
	if err != nil {
		t.Fatalf("FromUint(%d, %d): %v", v, length, err)
	}
	return b
}

// buildIPv4Header assembles a bare 20-byte IPv4 header, no options, no
// payload.
func buildIPv4Header() []byte {
	h := make([]byte, parser.IPv4MinHeaderSize)
	h[0] = 0x45 // version 4, IHL 5
	h[8] = 64   // TTL
	h[9] = 17   // protocol UDP (unused beyond the header here, no trailing bytes)
	copy(h[12:16], []byte{192, 0, 2, 1})
	copy(h[16:20], []byte{192, 0, 2, 2})
	return h
}

func newTestEngine(t *testing.T) (string, engine.Engine) {
	t.Helper()
	stack := parser.NewStack("ipv4-only", "ipv4", parser.IPv4Module{})
	data := buildIPv4Header()
	pd, err := stack.Parse(data)
	if err != nil {
		t.Fatalf("bootstrap Parse: %v", err)
	}

	fields := make([]schc.RuleFieldDescriptor, len(pd.Fields))
	for i, pf := range pd.Fields {
		fields[i] = schc.RuleFieldDescriptor{
			FieldDescriptor: pf.Descriptor,
			TargetValue:     []buffer.Buffer{pf.Value},
			MO:              schc.MOEqual,
			CDA:             schc.CDANotSent,
		}
		fields[i].Direction = schc.DirBidirectional
	}
	rule := schc.RuleDescriptor{ID: mustBuf(t, 1, 4), Fields: fields}
	defaultRule := schc.RuleDescriptor{ID: mustBuf(t, 0, 4)}

	ctx := schc.Context{
		ID:           "ipv4-test",
		InterfaceID:  "eth0",
		ParserID:     stack.ID(),
		RuleIDLength: 4,
		Ruleset:      []schc.RuleDescriptor{rule, defaultRule},
	}
	return "ipv4-test", engine.New(stack, ctx)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	id, eng := newTestEngine(t)
	srv := server.New(map[string]engine.Engine{id: eng}, slog.New(slog.DiscardHandler))
	return httptest.NewServer(srv.Handler())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	defer ts.Close()

	data := buildIPv4Header()
	resp := postJSON(t, ts.URL+"/v1/compress", map[string]string{
		"context_id": "ipv4-test",
		"direction":  "up",
		"hex":        hex.EncodeToString(data),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("compress status = %d, body = %s", resp.StatusCode, body)
	}

	var compressed struct {
		RuleID     string `json:"rule_id"`
		Hex        string `json:"hex"`
		BytesSaved int    `json:"bytes_saved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&compressed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if compressed.BytesSaved != 20 {
		t.Errorf("BytesSaved = %d, want 20 (fully compressed header)", compressed.BytesSaved)
	}

	resp2 := postJSON(t, ts.URL+"/v1/decompress", map[string]string{
		"context_id": "ipv4-test",
		"direction":  "up",
		"hex":        compressed.Hex,
	})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp2.Body)
		t.Fatalf("decompress status = %d, body = %s", resp2.StatusCode, body)
	}

	var decompressed struct {
		RuleID string `json:"rule_id"`
		Hex    string `json:"hex"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&decompressed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decompressed.Hex != hex.EncodeToString(data) {
		t.Errorf("round trip mismatch: got %s, want %s", decompressed.Hex, hex.EncodeToString(data))
	}
}

func TestCompressUnknownContext(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/compress", map[string]string{
		"context_id": "nope",
		"direction":  "up",
		"hex":        "00",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCompressInvalidDirection(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/compress", map[string]string{
		"context_id": "ipv4-test",
		"direction":  "sideways",
		"hex":        hex.EncodeToString(buildIPv4Header()),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCompressRecordsMetrics(t *testing.T) {
	t.Parallel()

	id, eng := newTestEngine(t)
	reg := prometheus.NewRegistry()
	collector := schcmetrics.NewCollector(reg)
	srv := server.New(map[string]engine.Engine{id: eng}, slog.New(slog.DiscardHandler)).WithMetrics(collector)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	postJSON(t, ts.URL+"/v1/compress", map[string]string{
		"context_id": id,
		"direction":  "up",
		"hex":        hex.EncodeToString(buildIPv4Header()),
	}).Body.Close()

	counter, err := collector.BytesSaved.GetMetricWithLabelValues(id)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetCounter().GetValue() != 20 {
		t.Errorf("BytesSaved = %v, want 20", m.GetCounter().GetValue())
	}
}

func TestContextsListing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/contexts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var contexts []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&contexts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(contexts) != 1 || contexts[0].ID != "ipv4-test" {
		t.Errorf("contexts = %+v, want one entry \"ipv4-test\"", contexts)
	}
}
