package netio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tunnel framing carries a compressed SCHC bitstream between two gateways
// over a plain UDP encapsulation: a short fixed header identifying which
// context the payload belongs to, followed by the opaque payload itself.

const (
	tunnelVersion    = 1
	tunnelHeaderSize = 4 // version(8) + reserved(8) + context_id length-prefix(16)
)

// ErrTunnelFrameTooShort indicates a tunnel datagram is smaller than the
// fixed header.
var ErrTunnelFrameTooShort = errors.New("netio: tunnel frame shorter than header")

// ErrTunnelVersionMismatch indicates a tunnel datagram carries an
// unrecognized framing version.
var ErrTunnelVersionMismatch = errors.New("netio: tunnel frame version mismatch")

// ErrTunnelContextIDTruncated indicates the context ID length prefix
// claims more bytes than the datagram actually carries.
var ErrTunnelContextIDTruncated = errors.New("netio: tunnel frame context id truncated")

// encodeTunnelFrame prepends a framing header naming contextID to the
// compressed bitstream bytes.
func encodeTunnelFrame(contextID string, compressed []byte) ([]byte, error) {
	if len(contextID) > 0xFFFF {
		return nil, fmt.Errorf("netio: context id %q too long for tunnel frame", contextID)
	}
	out := make([]byte, 0, tunnelHeaderSize+len(contextID)+len(compressed))
	out = append(out, tunnelVersion, 0)
	out = binary.BigEndian.AppendUint16(out, uint16(len(contextID)))
	out = append(out, contextID...)
	out = append(out, compressed...)
	return out, nil
}

// decodeTunnelFrame splits a tunnel datagram into its context ID and
// compressed-bitstream payload.
func decodeTunnelFrame(frame []byte) (contextID string, payload []byte, err error) {
	if len(frame) < tunnelHeaderSize {
		return "", nil, ErrTunnelFrameTooShort
	}
	if frame[0] != tunnelVersion {
		return "", nil, fmt.Errorf("%w: got %d, want %d", ErrTunnelVersionMismatch, frame[0], tunnelVersion)
	}
	idLen := int(binary.BigEndian.Uint16(frame[2:4]))
	if len(frame)-tunnelHeaderSize < idLen {
		return "", nil, ErrTunnelContextIDTruncated
	}
	contextID = string(frame[tunnelHeaderSize : tunnelHeaderSize+idLen])
	payload = frame[tunnelHeaderSize+idLen:]
	return contextID, payload, nil
}
