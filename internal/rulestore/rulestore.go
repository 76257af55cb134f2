// Package rulestore loads schc.Context/RuleDescriptor definitions from
// YAML files. It sits outside the four-subsystem compression core the
// same way internal/config sits outside the daemon's domain logic: the
// core schc.Context type is a plain Go struct, and rulestore is one
// (swappable) way to build one from disk. This is not a YANG data model —
// the distilled spec's Non-goal excludes YANG interpretation specifically,
// not "rules live in files".
package rulestore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// Sentinel errors.
var (
	// ErrEmptyRuleID indicates a rule entry carries no id.
	ErrEmptyRuleID = errors.New("rulestore: rule id must not be empty")

	// ErrUnknownMatchingOperator indicates a field's mo string doesn't
	// name a recognized MatchingOperator.
	ErrUnknownMatchingOperator = errors.New("rulestore: unknown matching operator")

	// ErrUnknownCDA indicates a field's cda string doesn't name a
	// recognized CDA.
	ErrUnknownCDA = errors.New("rulestore: unknown CDA")

	// ErrUnknownComputeKind indicates a field's compute_kind string
	// doesn't name a recognized ComputeKind.
	ErrUnknownComputeKind = errors.New("rulestore: unknown compute kind")

	// ErrUnknownDirection indicates a field's direction string doesn't
	// name "up", "down", or "bidirectional".
	ErrUnknownDirection = errors.New("rulestore: unknown direction")

	// ErrMissingTargetValue indicates a field needs at least one target
	// value (every MO but ignore, unless its CDA is compute) but has none.
	ErrMissingTargetValue = errors.New("rulestore: field requires at least one target_value")
)

// -------------------------------------------------------------------------
// YAML schema
// -------------------------------------------------------------------------

// contextFile is the on-disk shape of one context's rule file.
type contextFile struct {
	ID           string      `yaml:"id"`
	InterfaceID  string      `yaml:"interface_id"`
	Parser       string      `yaml:"parser"`
	RuleIDLength int         `yaml:"rule_id_length"`
	Rules        []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	ID     string       `yaml:"id"` // hex-encoded, RuleIDLength bits wide
	Nature string       `yaml:"nature"`
	Fields []fieldEntry `yaml:"fields"`
}

type fieldEntry struct {
	ID          string   `yaml:"id"`
	Length      int      `yaml:"length"`
	Position    int      `yaml:"position"`
	Direction   string   `yaml:"direction"`
	TargetValue []string `yaml:"target_value"` // hex-encoded
	MO          string   `yaml:"mo"`
	MOArg       int      `yaml:"mo_arg"`
	CDA         string   `yaml:"cda"`
	ComputeKind string   `yaml:"compute_kind"`
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// LoadContext reads path and decodes it into a schc.Context. The parser
// stack name the context was declared against is carried in the returned
// Context's ParserID; callers (cmd/goschcd) are responsible for resolving
// that name to an actual parser.Stack.
func LoadContext(path string) (schc.Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schc.Context{}, fmt.Errorf("rulestore: read %s: %w", path, err)
	}

	var cf contextFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return schc.Context{}, fmt.Errorf("rulestore: parse %s: %w", path, err)
	}

	rules := make([]schc.RuleDescriptor, 0, len(cf.Rules))
	for i, re := range cf.Rules {
		rule, err := decodeRule(re, cf.RuleIDLength)
		if err != nil {
			return schc.Context{}, fmt.Errorf("rulestore: %s: rules[%d]: %w", path, i, err)
		}
		rules = append(rules, rule)
	}

	return schc.Context{
		ID:           cf.ID,
		InterfaceID:  cf.InterfaceID,
		ParserID:     cf.Parser,
		RuleIDLength: cf.RuleIDLength,
		Ruleset:      rules,
	}, nil
}

func decodeRule(re ruleEntry, ruleIDLength int) (schc.RuleDescriptor, error) {
	if re.ID == "" {
		return schc.RuleDescriptor{}, ErrEmptyRuleID
	}
	idBytes, err := hex.DecodeString(re.ID)
	if err != nil {
		return schc.RuleDescriptor{}, fmt.Errorf("decode rule id %q: %w", re.ID, err)
	}
	id, err := buffer.New(idBytes, ruleIDLength, buffer.PadLeft)
	if err != nil {
		return schc.RuleDescriptor{}, fmt.Errorf("rule id %q: %w", re.ID, err)
	}

	nature := schc.NatureCompression
	if re.Nature == "no_compression" {
		nature = schc.NatureNoCompression
	}

	fields := make([]schc.RuleFieldDescriptor, 0, len(re.Fields))
	for i, fe := range re.Fields {
		rf, err := decodeField(fe)
		if err != nil {
			return schc.RuleDescriptor{}, fmt.Errorf("fields[%d]: %w", i, err)
		}
		fields = append(fields, rf)
	}

	return schc.RuleDescriptor{ID: id, Nature: nature, Fields: fields}, nil
}

func decodeField(fe fieldEntry) (schc.RuleFieldDescriptor, error) {
	dir, err := decodeDirection(fe.Direction)
	if err != nil {
		return schc.RuleFieldDescriptor{}, err
	}
	mo, err := decodeMatchingOperator(fe.MO)
	if err != nil {
		return schc.RuleFieldDescriptor{}, err
	}
	cda, err := decodeCDA(fe.CDA)
	if err != nil {
		return schc.RuleFieldDescriptor{}, err
	}
	computeKind, err := decodeComputeKind(fe.ComputeKind)
	if err != nil {
		return schc.RuleFieldDescriptor{}, err
	}

	if mo != schc.MOIgnore && len(fe.TargetValue) == 0 && cda != schc.CDACompute {
		return schc.RuleFieldDescriptor{}, fmt.Errorf("%s: %w", fe.ID, ErrMissingTargetValue)
	}

	targets := make([]buffer.Buffer, 0, len(fe.TargetValue))
	for _, tv := range fe.TargetValue {
		b, err := decodeTargetValue(tv, fe.Length)
		if err != nil {
			return schc.RuleFieldDescriptor{}, fmt.Errorf("%s: target_value %q: %w", fe.ID, tv, err)
		}
		targets = append(targets, b)
	}

	return schc.RuleFieldDescriptor{
		FieldDescriptor: schc.FieldDescriptor{
			ID:        fe.ID,
			Length:    fe.Length,
			Position:  fe.Position,
			Direction: dir,
		},
		TargetValue: targets,
		MO:          mo,
		MOArg:       fe.MOArg,
		CDA:         cda,
		ComputeKind: computeKind,
	}, nil
}

func decodeTargetValue(hexVal string, length int) (buffer.Buffer, error) {
	raw, err := hex.DecodeString(hexVal)
	if err != nil {
		return buffer.Buffer{}, fmt.Errorf("decode hex: %w", err)
	}
	width := length
	if width == 0 {
		width = 8 * len(raw)
	}
	return buffer.New(raw, width, buffer.PadLeft)
}

func decodeDirection(s string) (schc.Direction, error) {
	switch s {
	case "", "bidirectional":
		return schc.DirBidirectional, nil
	case "up":
		return schc.DirUp, nil
	case "down":
		return schc.DirDown, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownDirection)
	}
}

func decodeMatchingOperator(s string) (schc.MatchingOperator, error) {
	switch s {
	case "", "ignore":
		return schc.MOIgnore, nil
	case "equal":
		return schc.MOEqual, nil
	case "msb":
		return schc.MOMSB, nil
	case "mapping":
		return schc.MOMatchMapping, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownMatchingOperator)
	}
}

func decodeCDA(s string) (schc.CDA, error) {
	switch s {
	case "", "not_sent":
		return schc.CDANotSent, nil
	case "value_sent":
		return schc.CDAValueSent, nil
	case "mapping_sent":
		return schc.CDAMappingSent, nil
	case "lsb":
		return schc.CDALSB, nil
	case "compute":
		return schc.CDACompute, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownCDA)
	}
}

func decodeComputeKind(s string) (schc.ComputeKind, error) {
	switch s {
	case "", "none":
		return schc.ComputeNone, nil
	case "ipv4_total_length":
		return schc.ComputeIPv4TotalLength, nil
	case "ipv6_payload_length":
		return schc.ComputeIPv6PayloadLength, nil
	case "udp_length":
		return schc.ComputeUDPLength, nil
	case "udp_checksum":
		return schc.ComputeUDPChecksum, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownComputeKind)
	}
}
