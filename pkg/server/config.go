package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/Wa4h1h/unbrickd/pkg/types"
)

// Defaults match the recovery procedure of the target devices: the
// bootloader only ever talks to 192.0.0.128 and asks for digicap.dav.
const (
	DefaultBindAddr     = "192.0.0.128"
	DefaultFirmwareFile = "digicap.dav"
	DefaultAckTimeout   = 5 * time.Second
	DefaultMaxRetries   = 5
)

type Config struct {
	// BindAddr is the local IP both sockets bind to.
	BindAddr string
	// FirmwarePath points at the image to serve.
	FirmwarePath string
	// Port is the TFTP service port.
	Port int
	// HandshakePort answers the SWKH discovery probe.
	HandshakePort int
	// BlockSize is the initial payload size per data block. The client
	// may renegotiate it with the blksize option.
	BlockSize int
	// AckTimeout bounds each wait for an acknowledgment.
	AckTimeout time.Duration
	// MaxRetries is the per-block retransmission budget.
	MaxRetries int
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr:      DefaultBindAddr,
		FirmwarePath:  DefaultFirmwareFile,
		Port:          types.TFTPPort,
		HandshakePort: types.HandshakePort,
		BlockSize:     types.DefaultBlockSize,
		AckTimeout:    DefaultAckTimeout,
		MaxRetries:    DefaultMaxRetries,
	}
}

// Validate fails fast on unusable values, before any socket is bound.
func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return errors.New("bind address must be set")
	}

	if c.FirmwarePath == "" {
		return errors.New("firmware path must be set")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid tftp port %d", c.Port)
	}

	if c.HandshakePort <= 0 || c.HandshakePort > 65535 {
		return fmt.Errorf("invalid handshake port %d", c.HandshakePort)
	}

	if c.HandshakePort == c.Port {
		return errors.New("handshake port must differ from tftp port")
	}

	if c.BlockSize < types.MinBlockSize || c.BlockSize > types.MaxBlockSize {
		return fmt.Errorf("block size %d outside [%d, %d]", c.BlockSize, types.MinBlockSize, types.MaxBlockSize)
	}

	if c.AckTimeout <= 0 {
		return errors.New("ack timeout must be positive")
	}

	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}

	return nil
}
