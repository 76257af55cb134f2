package schcmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "goschc"
	subsystem = "engine"
)

// Label names for SCHC metrics.
const (
	labelContextID = "context_id"
	labelRuleID    = "rule_id"
	labelKind      = "kind"
)

// -------------------------------------------------------------------------
// Collector — Prometheus SCHC Metrics
// -------------------------------------------------------------------------

// Collector holds all SCHC Prometheus metrics.
//
//   - Compressed/decompressed counters track per-context, per-rule volume.
//   - BytesSaved tracks the compression win, the whole point of RFC 8724.
//   - CompressionErrors breaks down failures by Failure mode for alerting.
//   - RuleMatchAttempts counts how many rules were tested before a match,
//     useful for tuning ruleset ordering.
type Collector struct {
	// PacketsCompressed counts packets successfully compressed, labeled
	// by context and the rule that matched.
	PacketsCompressed *prometheus.CounterVec

	// PacketsDecompressed counts packets successfully decompressed,
	// labeled by context and the rule the stream resolved to.
	PacketsDecompressed *prometheus.CounterVec

	// BytesSaved accumulates (original length - compressed length) in
	// bytes, labeled by context.
	BytesSaved *prometheus.CounterVec

	// CompressionErrors counts failed compress/decompress attempts,
	// labeled by context and failure kind (one of the sentinel errors
	// surfaced by the engine).
	CompressionErrors *prometheus.CounterVec

	// RuleMatchAttempts counts how many ruleset entries were tested
	// before Select returned, labeled by context. Incremented once per
	// Match call by the number of rules examined.
	RuleMatchAttempts *prometheus.CounterVec
}

// NewCollector creates a Collector with all SCHC metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "goschc_engine_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PacketsCompressed,
		c.PacketsDecompressed,
		c.BytesSaved,
		c.CompressionErrors,
		c.RuleMatchAttempts,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	contextRuleLabels := []string{labelContextID, labelRuleID}
	contextLabels := []string{labelContextID}
	errorLabels := []string{labelContextID, labelKind}

	return &Collector{
		PacketsCompressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_compressed_total",
			Help:      "Total packets successfully compressed.",
		}, contextRuleLabels),

		PacketsDecompressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_decompressed_total",
			Help:      "Total packets successfully decompressed.",
		}, contextRuleLabels),

		BytesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_saved_total",
			Help:      "Total bytes saved by compression (original length minus compressed length).",
		}, contextLabels),

		CompressionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "compression_errors_total",
			Help:      "Total compress/decompress failures, labeled by failure kind.",
		}, errorLabels),

		RuleMatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rule_match_attempts_total",
			Help:      "Total ruleset entries tested across all Match calls.",
		}, contextLabels),
	}
}

// -------------------------------------------------------------------------
// Compression Lifecycle
// -------------------------------------------------------------------------

// IncPacketsCompressed increments the compressed packets counter for the
// given context and matched rule.
func (c *Collector) IncPacketsCompressed(contextID, ruleID string) {
	c.PacketsCompressed.WithLabelValues(contextID, ruleID).Inc()
}

// IncPacketsDecompressed increments the decompressed packets counter for
// the given context and resolved rule.
func (c *Collector) IncPacketsDecompressed(contextID, ruleID string) {
	c.PacketsDecompressed.WithLabelValues(contextID, ruleID).Inc()
}

// AddBytesSaved adds n bytes (original length minus compressed length) to
// the running total for the given context. Zero and negative values
// (residue larger than the original header, a pathological but possible
// case for a poorly authored rule) are ignored, since a Prometheus
// counter cannot decrease.
func (c *Collector) AddBytesSaved(contextID string, n int) {
	if n <= 0 {
		return
	}
	c.BytesSaved.WithLabelValues(contextID).Add(float64(n))
}

// IncCompressionErrors increments the error counter for the given context
// and failure kind (e.g. "no_match", "residue_underrun").
func (c *Collector) IncCompressionErrors(contextID, kind string) {
	c.CompressionErrors.WithLabelValues(contextID, kind).Inc()
}

// AddRuleMatchAttempts adds n to the rule match attempt counter for the
// given context.
func (c *Collector) AddRuleMatchAttempts(contextID string, n int) {
	if n <= 0 {
		return
	}
	c.RuleMatchAttempts.WithLabelValues(contextID).Add(float64(n))
}
