// Package server implements the recovery transfer: one bound address,
// one read request, one lock-step block transfer, then exit.
package server

import (
	"context"

	"github.com/Wa4h1h/unbrickd/pkg/firmware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	cfg  *Config
	l    *zap.SugaredLogger
	sink EventSink
	img  *firmware.Image
}

// NewServer validates cfg and loads the firmware image into memory.
// No socket is bound yet; that happens in ListenAndServe.
func NewServer(l *zap.SugaredLogger, cfg *Config, sink EventSink) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if sink == nil {
		sink = NopSink{}
	}

	img, err := firmware.Load(cfg.FirmwarePath, cfg.BlockSize)
	if err != nil {
		return nil, err
	}

	return &Server{cfg: cfg, l: l, sink: sink, img: img}, nil
}

func (s *Server) Image() *firmware.Image { return s.img }

// ListenAndServe binds the transfer and handshake sockets, serves one
// session to its terminal state and releases both sockets on every exit
// path. It returns nil on Completed, utils.ErrCancelled when ctx was
// cancelled and the failure reason otherwise.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tftpConn, err := Bind(s.l, s.cfg.BindAddr, s.cfg.Port)
	if err != nil {
		return err
	}

	hsConn, err := Bind(s.l, s.cfg.BindAddr, s.cfg.HandshakePort)
	if err != nil {
		_ = tftpConn.Close()

		return err
	}

	defer func() {
		if err := tftpConn.Close(); err != nil {
			s.l.Error(err.Error())
		}

		if err := hsConn.Close(); err != nil {
			s.l.Error(err.Error())
		}
	}()

	s.l.Infof("listening on %s, serving %s (%d bytes, %d blocks)",
		tftpConn.LocalAddr(), s.img.Name(), s.img.Size(), s.img.TotalBlocks())

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(sctx)

	g.Go(func() error {
		return NewHandshake(s.l, hsConn).Run(gctx)
	})

	g.Go(func() error {
		// A finished session stops the handshake responder too.
		defer cancel()

		session := NewSession(s.l, tftpConn, s.img, s.sink, s.cfg.AckTimeout, s.cfg.MaxRetries)

		return session.Run(gctx)
	})

	return g.Wait()
}
