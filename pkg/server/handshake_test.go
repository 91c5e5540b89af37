package server

import (
	"context"
	"testing"

	"github.com/Wa4h1h/unbrickd/pkg/types"
	"github.com/Wa4h1h/unbrickd/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandshakeEchoesMagic(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(
		datagram{b: types.HandshakeMagic(), addr: deviceAddr},
	)
	conn.onEmpty = utils.ErrCancelled

	h := NewHandshake(zap.NewNop().Sugar(), conn)

	require.NoError(t, h.Run(context.Background()))

	require.Len(t, conn.sent, 1)
	assert.Equal(t, types.HandshakeMagic(), conn.sent[0].b)
	assert.Equal(t, deviceAddr, conn.sent[0].addr)
}

func TestHandshakeIgnoresBadProbes(t *testing.T) {
	t.Parallel()

	short := []byte("SWKH")

	padded := types.HandshakeMagic()
	padded[19] = 0xff

	conn := newFakeConn(
		datagram{b: short, addr: deviceAddr},            // right tag, wrong length
		datagram{b: padded, addr: deviceAddr},           // wrong padding
		datagram{b: []byte("garbage"), addr: foreignAddr},
		datagram{b: types.HandshakeMagic(), addr: deviceAddr},
	)
	conn.onEmpty = utils.ErrCancelled

	h := NewHandshake(zap.NewNop().Sugar(), conn)

	require.NoError(t, h.Run(context.Background()))

	// Only the exact 20-byte magic gets an echo.
	require.Len(t, conn.sent, 1)
	assert.Equal(t, types.HandshakeMagic(), conn.sent[0].b)
}
