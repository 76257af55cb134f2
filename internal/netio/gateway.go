package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goschc/internal/buffer"
	"github.com/dantte-lp/goschc/internal/engine"
	"github.com/dantte-lp/goschc/internal/schc"
)

// maxDatagramSize bounds a single read from either PacketConn. It is sized
// for the IPv6 minimum MTU (RFC 8200 Section 5) and does not follow the
// engine.max_packet_size configuration setting.
const maxDatagramSize = 1500

// Gateway captures raw datagrams on one interface, compresses them against
// an Engine's context, and forwards the compressed bitstream to a peer
// gateway over a UDP tunnel — and, in the other direction, receives tunnel
// frames, decompresses them, and writes the reconstructed bytes back out.
//
// Capture and Tunnel are each a PacketConn read loop; both directions
// share one Gateway since SCHC compression and decompression are
// symmetric operations over the same context.
type Gateway struct {
	Engine  engine.Engine
	Logger  *slog.Logger
	Capture net.PacketConn // raw datagrams to compress, read here
	Tunnel  net.PacketConn // compressed bitstream, read/written here
	Peer    net.Addr       // tunnel peer to forward compressed frames to
}

// ErrNilCapture and ErrNilTunnel guard against a misconstructed Gateway.
var (
	ErrNilCapture = errors.New("netio: gateway Capture is nil")
	ErrNilTunnel  = errors.New("netio: gateway Tunnel is nil")
)

// Run drives the capture and tunnel read loops until ctx is cancelled or
// either loop returns a non-context error.
func (g *Gateway) Run(ctx context.Context) error {
	if g.Capture == nil {
		return ErrNilCapture
	}
	if g.Tunnel == nil {
		return ErrNilTunnel
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return g.captureLoop(ctx) })
	grp.Go(func() error { return g.tunnelLoop(ctx) })

	go func() {
		<-ctx.Done()
		_ = g.Capture.Close()
		_ = g.Tunnel.Close()
	}()

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("netio: gateway run: %w", err)
	}
	return nil
}

// captureLoop reads raw datagrams, compresses them against g.Engine's
// context, and forwards the compressed bitstream to g.Peer over the
// tunnel.
func (g *Gateway) captureLoop(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := g.Capture.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			g.logAttr().Warn("netio: capture read failed", slog.Any("error", err))
			continue
		}

		compressed, err := g.Engine.CompressPacket(buf[:n], schc.DirUp)
		if err != nil {
			g.logAttr().Warn("netio: compress failed", slog.Any("error", err))
			continue
		}

		frame, err := encodeTunnelFrame(g.Engine.Context.ID, compressed.Bytes())
		if err != nil {
			g.logAttr().Warn("netio: encode tunnel frame failed", slog.Any("error", err))
			continue
		}

		if _, err := g.Tunnel.WriteTo(frame, g.Peer); err != nil {
			g.logAttr().Warn("netio: tunnel write failed", slog.Any("error", err))
		}
	}
}

// tunnelLoop reads tunnel frames, decompresses the payload against
// g.Engine's context, and writes the reconstructed bytes back out the
// capture connection toward src.
func (g *Gateway) tunnelLoop(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, src, err := g.Tunnel.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			g.logAttr().Warn("netio: tunnel read failed", slog.Any("error", err))
			continue
		}

		contextID, payload, err := decodeTunnelFrame(buf[:n])
		if err != nil {
			g.logAttr().Warn("netio: decode tunnel frame failed", slog.Any("error", err))
			continue
		}
		if contextID != g.Engine.Context.ID {
			g.logAttr().Warn("netio: tunnel frame context mismatch",
				slog.String("got", contextID), slog.String("want", g.Engine.Context.ID))
			continue
		}

		reconstructed, err := g.Engine.DecompressPacket(buffer.FromBytes(payload), schc.DirDown)
		if err != nil {
			g.logAttr().Warn("netio: decompress failed", slog.Any("error", err))
			continue
		}

		if _, err := g.Capture.WriteTo(reconstructed, src); err != nil {
			g.logAttr().Warn("netio: capture write failed", slog.Any("error", err))
		}
	}
}

func (g *Gateway) logAttr() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
