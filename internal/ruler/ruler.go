// Package ruler selects the rule a packet matches against a Context's
// ruleset (RFC 8724 Section 7.4: Matching Operators) and, on the
// decompression side, looks a rule back up by its wire-transmitted ID.
package ruler

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/schc"
)

// Sentinel errors.
var (
	// ErrNoMatch indicates no rule in the context's ruleset matched the
	// packet, and no default rule was present to fall back on.
	ErrNoMatch = errors.New("ruler: no matching rule")

	// ErrUnknownRuleID indicates a compressed stream's rule ID does not
	// name any rule in the context.
	ErrUnknownRuleID = errors.New("ruler: unknown rule ID")

	// ErrTruncatedStream indicates the stream is shorter than the
	// context's fixed rule-ID length.
	ErrTruncatedStream = errors.New("ruler: stream shorter than rule ID")
)

// Select finds the first rule in ctx.Ruleset whose direction-filtered
// field descriptors all match pkt, in declaration order (RFC 8724 Section
// 9: "Default rule position" — a rule with no fields is the default and
// always matches, so it must be last to avoid shadowing). Matching is
// deterministic: iteration order is Ruleset order, so the same packet
// against the same context always selects the same rule.
//
// The second return value is the number of rules examined before a match
// was found (or the full ruleset size, on ErrNoMatch), for
// schcmetrics.Collector.AddRuleMatchAttempts.
func Select(pkt schc.PacketDescriptor, dir schc.Direction, ctx schc.Context) (schc.RuleDescriptor, int, error) {
	for i, rule := range ctx.Ruleset {
		if rule.IsDefault() || ruleMatches(rule, pkt, dir) {
			return rule, i + 1, nil
		}
	}
	return schc.RuleDescriptor{}, len(ctx.Ruleset), fmt.Errorf("ruler: context %s: %w", ctx.ID, ErrNoMatch)
}

func ruleMatches(rule schc.RuleDescriptor, pkt schc.PacketDescriptor, dir schc.Direction) bool {
	filtered := schc.FilterByDirection(rule.Fields, dir)
	if len(filtered) != len(pkt.Fields) {
		return false
	}
	for i, rf := range filtered {
		pf := pkt.Fields[i]
		if pf.Descriptor.ID != rf.ID || pf.Descriptor.Position != rf.Position {
			return false
		}
		if !matchField(pf.Value, rf) {
			return false
		}
	}
	return true
}

// matchField applies a RuleFieldDescriptor's Matching Operator to a
// packet field's value (RFC 8724 Section 7.4).
func matchField(value buffer.Buffer, rf schc.RuleFieldDescriptor) bool {
	switch rf.MO {
	case schc.MOIgnore:
		return true
	case schc.MOEqual:
		return len(rf.TargetValue) == 1 && value.Equal(rf.TargetValue[0])
	case schc.MOMSB:
		return matchMSB(value, rf.TargetValue, rf.MOArg)
	case schc.MOMatchMapping:
		for _, candidate := range rf.TargetValue {
			if value.Equal(candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchMSB(value buffer.Buffer, target []buffer.Buffer, n int) bool {
	if len(target) != 1 || n <= 0 || value.Len() < n || target[0].Len() < n {
		return false
	}
	valuePrefix, err := value.Slice(0, n)
	if err != nil {
		return false
	}
	targetPrefix, err := target[0].Slice(0, n)
	if err != nil {
		return false
	}
	return valuePrefix.Equal(targetPrefix)
}

// Lookup splits a compressed stream into its rule ID and residue, and
// resolves the ID against ctx.Ruleset.
func Lookup(stream buffer.Buffer, ctx schc.Context) (schc.RuleDescriptor, buffer.Buffer, error) {
	if stream.Len() < ctx.RuleIDLength {
		return schc.RuleDescriptor{}, buffer.Buffer{}, fmt.Errorf(
			"ruler: context %s: stream has %d bits, need %d: %w",
			ctx.ID, stream.Len(), ctx.RuleIDLength, ErrTruncatedStream)
	}
	idBuf, err := stream.Slice(0, ctx.RuleIDLength)
	if err != nil {
		return schc.RuleDescriptor{}, buffer.Buffer{}, fmt.Errorf("ruler: %w", err)
	}
	residue, err := stream.Slice(ctx.RuleIDLength, stream.Len())
	if err != nil {
		return schc.RuleDescriptor{}, buffer.Buffer{}, fmt.Errorf("ruler: %w", err)
	}

	for _, rule := range ctx.Ruleset {
		if rule.ID.Equal(idBuf) {
			return rule, residue, nil
		}
	}
	return schc.RuleDescriptor{}, buffer.Buffer{}, fmt.Errorf("ruler: context %s: %w", ctx.ID, ErrUnknownRuleID)
}
