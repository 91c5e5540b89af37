package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wa4h1h/unbrickd/pkg/types"
	"github.com/Wa4h1h/unbrickd/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func freePort(t *testing.T) int {
	t.Helper()

	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())

	return port
}

func writeFirmware(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)

	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "digicap.dav")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path, data
}

func testConfig(t *testing.T, firmwarePath string) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1"
	cfg.FirmwarePath = firmwarePath
	cfg.Port = freePort(t)
	cfg.HandshakePort = freePort(t)
	cfg.AckTimeout = 200 * time.Millisecond
	cfg.MaxRetries = 3

	return cfg
}

func TestNewServerValidatesUpfront(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AckTimeout = 0

	_, err := NewServer(zap.NewNop().Sugar(), cfg, nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.FirmwarePath = filepath.Join(t.TempDir(), "missing.dav")

	_, err = NewServer(zap.NewNop().Sugar(), cfg, nil)
	assert.Error(t, err)
}

// TestServerRecoversDevice plays the bootloader end to end over real
// loopback sockets: SWKH probe, read request, lock-step download.
func TestServerRecoversDevice(t *testing.T) {
	t.Parallel()

	path, data := writeFirmware(t, 3*512+40)

	cfg := testConfig(t, path)

	srv, err := NewServer(zap.NewNop().Sugar(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- srv.ListenAndServe(ctx)
	}()

	device, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	defer device.Close()

	probe, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	defer probe.Close()

	hsAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.HandshakePort}
	tftpAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.Port}

	buf := make([]byte, 65536)

	// Probe until the server is up and echoes the magic.
	require.Eventually(t, func() bool {
		if _, err := probe.WriteTo(types.HandshakeMagic(), hsAddr); err != nil {
			return false
		}

		_ = probe.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := probe.ReadFrom(buf)

		return err == nil && bytes.Equal(buf[:n], types.HandshakeMagic())
	}, 5*time.Second, 50*time.Millisecond)

	req := &types.Request{Opcode: types.OpCodeRRQ, Filename: "digicap.dav", Mode: "octet"}

	rawReq, err := req.MarshalBinary()
	require.NoError(t, err)

	_, err = device.WriteTo(rawReq, tftpAddr)
	require.NoError(t, err)

	var got []byte

	for {
		require.NoError(t, device.SetReadDeadline(time.Now().Add(2*time.Second)))

		n, from, err := device.ReadFrom(buf)
		require.NoError(t, err)

		var d types.Data
		require.NoError(t, d.UnmarshalBinary(buf[:n]))

		got = append(got, d.Payload...)

		ackPacket := &types.Ack{Opcode: types.OpCodeACK, BlockNum: d.BlockNum}

		rawAck, err := ackPacket.MarshalBinary()
		require.NoError(t, err)

		_, err = device.WriteTo(rawAck, from)
		require.NoError(t, err)

		if len(d.Payload) < types.DefaultBlockSize {
			break
		}
	}

	assert.Equal(t, data, got)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit after the transfer completed")
	}
}

func TestServerCancelledByOperator(t *testing.T) {
	t.Parallel()

	path, _ := writeFirmware(t, 100)

	srv, err := NewServer(zap.NewNop().Sugar(), testConfig(t, path), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- srv.ListenAndServe(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, utils.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit on cancellation")
	}
}

// The bound address must be reusable right after the server exits, on
// every exit path.
func TestServerReleasesSocketsOnExit(t *testing.T) {
	t.Parallel()

	path, _ := writeFirmware(t, 100)

	cfg := testConfig(t, path)

	srv, err := NewServer(zap.NewNop().Sugar(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- srv.ListenAndServe(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	for _, port := range []int{cfg.Port, cfg.HandshakePort} {
		c, err := Bind(zap.NewNop().Sugar(), cfg.BindAddr, port)
		require.NoError(t, err)
		require.NoError(t, c.Close())
	}
}
