// Package netio provides the SCHC gateway: a packet-capture and tunnel
// transport loop that sits at the edge of a constrained network, running
// captured datagrams through a compression engine and forwarding the
// compressed bitstream to a peer gateway over UDP, and vice versa.
package netio
