package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/Wa4h1h/unbrickd/pkg/utils"
	"go.uber.org/zap"
)

// PacketConn is the transport the session runs on. Receive blocks until
// a datagram arrives, the timeout elapses (utils.ErrReceiveTimeout) or
// ctx is done (utils.ErrCancelled). A zero timeout waits indefinitely.
type PacketConn interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, net.Addr, error)
	Send(addr net.Addr, b []byte) error
	LocalAddr() net.Addr
	Close() error
}

// Conn owns one bound UDP socket.
type Conn struct {
	conn net.PacketConn
	l    *zap.SugaredLogger
}

// Bind claims addr:port. The three setup failures an operator actually
// hits get distinct sentinels: the recovery address not being assigned
// to any interface, the port being taken, and missing privileges for
// port 69.
func Bind(l *zap.SugaredLogger, addr string, port int) (*Conn, error) {
	conn, err := net.ListenPacket("udp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, classifyBindError(addr, port, err)
	}

	return &Conn{conn: conn, l: l}, nil
}

func classifyBindError(addr string, port int, err error) error {
	var errno syscall.Errno

	if errors.As(err, &errno) {
		switch errno {
		case syscall.EADDRNOTAVAIL:
			return fmt.Errorf("%w: %s", utils.ErrAddrNotAvailable, addr)
		case syscall.EADDRINUSE:
			return fmt.Errorf("%w: %s:%d", utils.ErrAddrInUse, addr, port)
		case syscall.EACCES, syscall.EPERM:
			return fmt.Errorf("%w: port %d", utils.ErrAddrPermission, port)
		}
	}

	return fmt.Errorf("error while binding %s:%d: %w", addr, port, err)
}

func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) Receive(ctx context.Context, timeout time.Duration) ([]byte, net.Addr, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("error while setting read timeout: %w", err)
	}

	// Registered after the deadline is set so a cancellation arriving in
	// between cannot be clobbered by it.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, 65536)

	n, addr, err := c.conn.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, utils.ErrCancelled
		}

		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, nil, utils.ErrReceiveTimeout
		}

		return nil, nil, fmt.Errorf("error while reading datagram: %w", err)
	}

	return buf[:n], addr, nil
}

// Send is fire-and-forget: a lost datagram and a failed write look the
// same to the state machine, so failures are logged and returned but
// never terminate the session on their own.
func (c *Conn) Send(addr net.Addr, b []byte) error {
	if _, err := c.conn.WriteTo(b, addr); err != nil {
		c.l.Errorf("error while writing datagram to %s: %s", addr, err.Error())

		return fmt.Errorf("error while writing datagram: %w", err)
	}

	return nil
}

func (c *Conn) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("error while closing connection: %w", err)
	}

	return nil
}
