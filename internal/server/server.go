// Package server implements the goschc admin HTTP/JSON API: compress,
// decompress, list contexts, and health, over plain net/http rather
// than a generated-RPC stack (see DESIGN.md for why).
package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/engine"
	schcmetrics "github.com/dantte-lp/goschc/internal/metrics"
	"github.com/dantte-lp/goschc/internal/schc"
)

// Sentinel errors for the server package.
var (
	// ErrUnknownContext indicates the requested context_id has no
	// registered Engine.
	ErrUnknownContext = errors.New("unknown context_id")

	// ErrEmptyHex indicates the request carried no packet bytes.
	ErrEmptyHex = errors.New("hex field must not be empty")

	// ErrInvalidDirection indicates the request's direction field is
	// neither "up" nor "down".
	ErrInvalidDirection = errors.New("direction must be \"up\" or \"down\"")
)

// Server is a thin adapter between the admin HTTP API and the compression
// engines configured for each context.
type Server struct {
	engines map[string]engine.Engine
	logger  *slog.Logger
	metrics *schcmetrics.Collector
}

// New creates a Server serving the given contexts, keyed by
// schc.Context.ID.
func New(engines map[string]engine.Engine, logger *slog.Logger) *Server {
	return &Server{
		engines: engines,
		logger:  logger.With(slog.String("component", "server")),
	}
}

// WithMetrics attaches a Collector so every compress/decompress call
// records packet counts, bytes saved, and failure kinds.
func (s *Server) WithMetrics(c *schcmetrics.Collector) *Server {
	s.metrics = c
	return s
}

// Handler returns the mux for the admin API, wrapped in logging and panic
// recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/compress", s.handleCompress)
	mux.HandleFunc("POST /v1/decompress", s.handleDecompress)
	mux.HandleFunc("GET /v1/contexts", s.handleContexts)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return recoveryMiddleware(s.logger, loggingMiddleware(s.logger, mux))
}

// -------------------------------------------------------------------------
// Request / response payloads
// -------------------------------------------------------------------------

type compressRequest struct {
	ContextID string `json:"context_id"`
	Direction string `json:"direction"`
	Hex       string `json:"hex"`
}

type compressResponse struct {
	RuleID     string `json:"rule_id"`
	Hex        string `json:"hex"`
	BytesSaved int    `json:"bytes_saved"`
}

type decompressRequest struct {
	ContextID string `json:"context_id"`
	Direction string `json:"direction"`
	Hex       string `json:"hex"`
}

type decompressResponse struct {
	RuleID string `json:"rule_id"`
	Hex    string `json:"hex"`
}

type contextSummary struct {
	ID           string `json:"id"`
	InterfaceID  string `json:"interface_id"`
	ParserID     string `json:"parser_id"`
	RuleIDLength int    `json:"rule_id_length"`
	RuleCount    int    `json:"rule_count"`
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req compressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	eng, err := s.lookup(req.ContextID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	dir, err := parseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := decodeHex(req.Hex)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pd, err := eng.Parse(data)
	if err != nil {
		s.recordError(req.ContextID, "parse")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	rule, attempts, err := eng.Match(pd, dir)
	if err != nil {
		s.recordError(req.ContextID, "match")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	compressed, err := eng.Compress(pd, rule, dir)
	if err != nil {
		s.recordError(req.ContextID, "compress")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	ruleID := hex.EncodeToString(rule.ID.Bytes())
	bytesSaved := len(data) - compressed.ByteLen()
	if s.metrics != nil {
		s.metrics.IncPacketsCompressed(req.ContextID, ruleID)
		s.metrics.AddBytesSaved(req.ContextID, bytesSaved)
		s.metrics.AddRuleMatchAttempts(req.ContextID, attempts)
	}

	writeJSON(w, http.StatusOK, compressResponse{
		RuleID:     ruleID,
		Hex:        hex.EncodeToString(compressed.Bytes()),
		BytesSaved: bytesSaved,
	})
}

// recordError increments the compression error counter for kind, a no-op
// when no Collector is attached.
func (s *Server) recordError(contextID, kind string) {
	if s.metrics != nil {
		s.metrics.IncCompressionErrors(contextID, kind)
	}
}

func (s *Server) handleDecompress(w http.ResponseWriter, r *http.Request) {
	var req decompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	eng, err := s.lookup(req.ContextID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	dir, err := parseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := decodeHex(req.Hex)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stream := buffer.FromBytes(data)
	_, rule, err := eng.Decompress(stream, dir)
	if err != nil {
		s.recordError(req.ContextID, "decompress")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	out, err := eng.DecompressPacket(stream, dir)
	if err != nil {
		s.recordError(req.ContextID, "decompress_serialize")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	ruleID := hex.EncodeToString(rule.ID.Bytes())
	if s.metrics != nil {
		s.metrics.IncPacketsDecompressed(req.ContextID, ruleID)
	}

	writeJSON(w, http.StatusOK, decompressResponse{
		RuleID: ruleID,
		Hex:    hex.EncodeToString(out),
	})
}

func (s *Server) handleContexts(w http.ResponseWriter, _ *http.Request) {
	summaries := make([]contextSummary, 0, len(s.engines))
	for id, eng := range s.engines {
		summaries = append(summaries, contextSummary{
			ID:           id,
			InterfaceID:  eng.Context.InterfaceID,
			ParserID:     eng.Context.ParserID,
			RuleIDLength: eng.Context.RuleIDLength,
			RuleCount:    len(eng.Context.Ruleset),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func (s *Server) lookup(contextID string) (engine.Engine, error) {
	eng, ok := s.engines[contextID]
	if !ok {
		return engine.Engine{}, fmt.Errorf("%s: %w", contextID, ErrUnknownContext)
	}
	return eng, nil
}

func parseDirection(s string) (schc.Direction, error) {
	switch s {
	case "up":
		return schc.DirUp, nil
	case "down":
		return schc.DirDown, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidDirection)
	}
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrEmptyHex
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
