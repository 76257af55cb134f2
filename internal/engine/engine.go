// Package engine exposes the SCHC core API:
// parse, match, compress, decompress, and the compress_packet
// convenience composition. It is a thin facade over parser, ruler,
// compressor, and decompressor — no compression logic lives here.
package engine

import (
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/compressor"
	"github.com/dantte-lp/goschc/internal/decompressor"
	"github.com/dantte-lp/goschc/internal/parser"
	"github.com/dantte-lp/goschc/internal/ruler"
	"github.com/dantte-lp/goschc/internal/schc"
)

// Engine binds a parser Stack to the rule Context it compresses and
// decompresses against. It holds no mutable state: both fields are
// read-only once constructed and may be shared across goroutines
// (RFC 8724 Section 5).
type Engine struct {
	Stack   parser.Stack
	Context schc.Context
}

// New builds an Engine from a parser stack and a rule context. It does
// not validate that stack.ID() == ctx.ParserID; callers that load both
// from configuration should check this themselves (see rulestore).
func New(stack parser.Stack, ctx schc.Context) Engine {
	return Engine{Stack: stack, Context: ctx}
}

// Parse decomposes raw packet bytes into a PacketDescriptor.
func (e Engine) Parse(data []byte) (schc.PacketDescriptor, error) {
	pd, err := e.Stack.Parse(data)
	if err != nil {
		return schc.PacketDescriptor{}, fmt.Errorf("engine: parse: %w", err)
	}
	return pd, nil
}

// Match selects the rule pd matches for the given direction. The second
// return value is the number of rules examined before the match (or the
// full ruleset size on error), for metrics.
func (e Engine) Match(pd schc.PacketDescriptor, dir schc.Direction) (schc.RuleDescriptor, int, error) {
	rule, attempts, err := ruler.Select(pd, dir, e.Context)
	if err != nil {
		return schc.RuleDescriptor{}, attempts, fmt.Errorf("engine: match: %w", err)
	}
	return rule, attempts, nil
}

// Compress produces the compressed bitstream for pd against rule.
func (e Engine) Compress(pd schc.PacketDescriptor, rule schc.RuleDescriptor, dir schc.Direction) (buffer.Buffer, error) {
	out, err := compressor.Compress(pd, rule, dir)
	if err != nil {
		return buffer.Buffer{}, fmt.Errorf("engine: compress: %w", err)
	}
	return out, nil
}

// Decompress reconstructs a PacketDescriptor from a compressed stream.
func (e Engine) Decompress(stream buffer.Buffer, dir schc.Direction) (schc.PacketDescriptor, schc.RuleDescriptor, error) {
	pd, rule, err := decompressor.Decompress(stream, e.Context, dir)
	if err != nil {
		return schc.PacketDescriptor{}, schc.RuleDescriptor{}, fmt.Errorf("engine: decompress: %w", err)
	}
	return pd, rule, nil
}

// CompressPacket composes Parse, Match, and Compress into a single call
// (RFC 8724 Section 7: the compress_packet composition).
func (e Engine) CompressPacket(data []byte, dir schc.Direction) (buffer.Buffer, error) {
	pd, err := e.Parse(data)
	if err != nil {
		return buffer.Buffer{}, err
	}
	rule, _, err := e.Match(pd, dir)
	if err != nil {
		return buffer.Buffer{}, err
	}
	return e.Compress(pd, rule, dir)
}

// DecompressPacket composes Decompress and a final serialization pass,
// producing the reconstructed packet bytes.
func (e Engine) DecompressPacket(stream buffer.Buffer, dir schc.Direction) ([]byte, error) {
	pd, _, err := e.Decompress(stream, dir)
	if err != nil {
		return nil, err
	}
	out, err := e.Stack.Serialize(pd)
	if err != nil {
		return nil, fmt.Errorf("engine: decompress: serialize: %w", err)
	}
	return out, nil
}
