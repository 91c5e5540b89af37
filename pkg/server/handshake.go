package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"

	"github.com/Wa4h1h/unbrickd/pkg/types"
	"github.com/Wa4h1h/unbrickd/pkg/utils"
	"go.uber.org/zap"
)

// Handshake answers the bootloader's discovery probe: a 20-byte datagram
// carrying the SWKH magic, echoed back verbatim. The device will not
// issue its read request until it has seen the echo.
type Handshake struct {
	conn PacketConn
	l    *zap.SugaredLogger
}

func NewHandshake(l *zap.SugaredLogger, conn PacketConn) *Handshake {
	return &Handshake{conn: conn, l: l}
}

// Run answers probes until ctx is done. Cancellation is the only way it
// returns nil; receive errors other than cancellation are returned.
func (h *Handshake) Run(ctx context.Context) error {
	magic := types.HandshakeMagic()

	for {
		b, addr, err := h.conn.Receive(ctx, 0)
		if err != nil {
			if errors.Is(err, utils.ErrCancelled) {
				return nil
			}

			return err
		}

		if !bytes.Equal(b, magic) {
			h.l.Infof("bad handshake from %s: %s", addr, hex.EncodeToString(b))

			continue
		}

		h.l.Infof("handshake ok from %s", addr)

		_ = h.conn.Send(addr, b)
	}
}
