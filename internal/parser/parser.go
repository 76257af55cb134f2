// Package parser decomposes raw packet bytes into an ordered
// schc.PacketDescriptor without interpreting field semantics (RFC 8724
// Section 5): every protocol Module exposes the on-wire bit ranges it
// owns and nothing more. A Stack composes Modules end to end, following
// each Module's hint about what comes next (e.g. IPv6's Next Header byte
// telling the stack to hand off to UDP).
package parser

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// Sentinel errors.
var (
	// ErrTruncated indicates fewer bytes were available than the
	// protocol's encoded lengths require.
	ErrTruncated = errors.New("parser: truncated packet")

	// ErrMalformed indicates a structurally invalid encoding (bad
	// version, reserved value, invalid length field).
	ErrMalformed = errors.New("parser: malformed packet")

	// ErrUnknownModule names the case where a Module's next-hint does not
	// name any module registered in the Stack. Stack.Parse does not return
	// it: the stack stops and treats the remainder as opaque payload.
	ErrUnknownModule = errors.New("parser: unknown next module")
)

// HintPayload is the reserved hint value meaning "nothing more to parse;
// everything else is payload."
const HintPayload = ""

// Module decodes one protocol layer starting at byte offset in data. It
// returns the fields it owns, the byte offset immediately following its
// encoded header, and a hint naming the Module that should run next
// (HintPayload if none).
type Module interface {
	// ID is the module's name, used as the Stack's lookup key and as the
	// module-qualifying prefix on emitted field IDs (e.g. "ipv6").
	ID() string

	// Parse decodes fields from data[offset:].
	Parse(data []byte, offset int) (fields []schc.PacketField, nextOffset int, nextHint string, err error)

	// Serialize re-encodes fields (previously produced by Parse, or
	// reconstructed by a Decompressor) back into their wire bytes,
	// appending to buf and returning the extended slice.
	Serialize(fields []schc.PacketField, buf []byte) ([]byte, error)

	// FieldCount reports how many of the leading entries of fields this
	// module owns, so a Stack can hand the rest to the next module's
	// Serialize call.
	FieldCount(fields []schc.PacketField) int
}

// Stack composes Modules into a pipeline threaded by next-hints.
type Stack struct {
	id      string
	entry   string
	modules map[string]Module
}

// NewStack builds a Stack named id, starting parsing at the module named
// entry.
func NewStack(id, entry string, modules ...Module) Stack {
	m := make(map[string]Module, len(modules))
	for _, mod := range modules {
		m[mod.ID()] = mod
	}
	return Stack{id: id, entry: entry, modules: m}
}

// ID returns the stack's name (used as schc.Context.ParserID).
func (s Stack) ID() string { return s.id }

// Parse runs data through the module pipeline starting at the stack's
// entry module, returning the composed PacketDescriptor. Any byte left
// once no module claims the next hint becomes the payload.
func (s Stack) Parse(data []byte) (schc.PacketDescriptor, error) {
	offset := 0
	hint := s.entry
	var fields []schc.PacketField

	for hint != HintPayload {
		mod, ok := s.modules[hint]
		if !ok {
			break
		}
		fs, next, nextHint, err := mod.Parse(data, offset)
		if err != nil {
			return schc.PacketDescriptor{}, fmt.Errorf("parser: stack %s: module %s: %w", s.id, mod.ID(), err)
		}
		fields = append(fields, fs...)
		offset = next
		hint = nextHint
	}

	rest := data[offset:]
	payload, err := buffer.New(rest, 8*len(rest), buffer.PadRight)
	if err != nil {
		return schc.PacketDescriptor{}, fmt.Errorf("parser: stack %s: payload: %w", s.id, err)
	}
	return schc.PacketDescriptor{Fields: fields, Payload: payload}, nil
}

// Serialize re-encodes a PacketDescriptor back into wire bytes, walking
// the same module order Parse used. It is the inverse Parse needs for
// idempotence.
func (s Stack) Serialize(pd schc.PacketDescriptor) ([]byte, error) {
	buf := make([]byte, 0, 64)
	fields := pd.Fields
	hint := s.entry

	for hint != HintPayload && len(fields) > 0 {
		mod, ok := s.modules[hint]
		if !ok {
			break
		}
		n := mod.FieldCount(fields)
		if n > len(fields) {
			n = len(fields)
		}
		out, err := mod.Serialize(fields[:n], buf)
		if err != nil {
			return nil, fmt.Errorf("parser: stack %s: serialize %s: %w", s.id, mod.ID(), err)
		}
		buf = out
		fields = fields[n:]
		hint = nextHintFor(mod, fields)
	}

	buf = append(buf, pd.Payload.Bytes()...)
	return buf, nil
}

// nextHintFor re-derives which module should serialize next. Serialize is
// driven purely by field consumption order, so the hint is the module
// prefix of the first remaining field's ID (Stack.Serialize stops if no
// registered module has that name), or HintPayload once no fields remain.
// The Module argument is not consulted.
func nextHintFor(_ Module, fields []schc.PacketField) string {
	if len(fields) == 0 {
		return HintPayload
	}
	return fieldModulePrefix(fields[0].Descriptor.ID)
}

// fieldModulePrefix extracts the "<module>." prefix convention every
// protocol module uses for its field IDs.
func fieldModulePrefix(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return id[:i]
		}
	}
	return id
}
