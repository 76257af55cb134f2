package parser

import (
	"errors"
	"fmt"
)

// ErrUnknownStack indicates a requested stack name has no registered
// construction recipe.
var ErrUnknownStack = errors.New("parser: unknown stack name")

// BuildStack constructs one of the well-known module stacks by name. This
// is the vocabulary of a rule file's parser key (schc.Context.ParserID,
// loaded by internal/rulestore), which the daemon's context wiring passes
// here; it exists so a YAML file can name a stack ("ipv6-udp-coap")
// without the caller hand-assembling Modules.
func BuildStack(name string) (Stack, error) {
	switch name {
	case "ipv4-only":
		return NewStack(name, "ipv4", IPv4Module{}), nil
	case "ipv4-udp":
		return NewStack(name, "ipv4", IPv4Module{}, UDPModule{}), nil
	case "ipv4-sctp":
		return NewStack(name, "ipv4", IPv4Module{}, SCTPModule{}), nil
	case "ipv6-only":
		return NewStack(name, "ipv6", IPv6Module{}, IPv6ExtModule{}), nil
	case "ipv6-udp":
		return NewStack(name, "ipv6", IPv6Module{}, IPv6ExtModule{}, UDPModule{}), nil
	case "ipv6-sctp":
		return NewStack(name, "ipv6", IPv6Module{}, IPv6ExtModule{}, SCTPModule{}), nil
	case "ipv6-udp-coap":
		return NewStack(name, "ipv6", IPv6Module{}, IPv6ExtModule{}, UDPModule{}, CoAPModule{}), nil
	case "ipv4-udp-coap":
		return NewStack(name, "ipv4", IPv4Module{}, UDPModule{}, CoAPModule{}), nil
	default:
		return Stack{}, fmt.Errorf("%q: %w", name, ErrUnknownStack)
	}
}
