package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Wa4h1h/unbrickd/pkg/firmware"
	"github.com/Wa4h1h/unbrickd/pkg/types"
	"github.com/Wa4h1h/unbrickd/pkg/utils"
	"go.uber.org/zap"
)

type State uint8

const (
	StateAwaitingRequest State = iota
	StateAwaitingAck
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateAwaitingRequest:
		return "awaiting-request"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session drives exactly one client from read request to completion or
// abort. The protocol is lock-step: one block in flight, one expected
// acknowledgment, so the whole machine fits in a single goroutine with
// no shared state.
type Session struct {
	conn       PacketConn
	img        *firmware.Image
	sink       EventSink
	l          *zap.SugaredLogger
	ackTimeout time.Duration
	maxRetries int

	state       State
	client      net.Addr
	blockNum    int
	retriesLeft int
	lastSent    []byte
	failure     error
}

func NewSession(l *zap.SugaredLogger, conn PacketConn, img *firmware.Image,
	sink EventSink, ackTimeout time.Duration, maxRetries int,
) *Session {
	return &Session{
		conn: conn, img: img, sink: sink, l: l,
		ackTimeout: ackTimeout, maxRetries: maxRetries,
		state: StateAwaitingRequest,
	}
}

// Run loops the state machine until a terminal state is reached and
// reports it to the event sink. It returns nil on Completed,
// utils.ErrCancelled on Cancelled and the failure reason otherwise.
func (s *Session) Run(ctx context.Context) error {
	for {
		switch s.state {
		case StateAwaitingRequest:
			s.awaitRequest(ctx)
		case StateAwaitingAck:
			s.awaitAck(ctx)
		case StateCompleted:
			s.l.Infof("transfer completed: %s, %d bytes in %d blocks",
				s.img.Name(), s.img.Size(), s.img.TotalBlocks())
			s.sink.Completed()

			return nil
		case StateFailed:
			s.l.Errorf("transfer failed: %s", s.failure.Error())
			s.sink.Failed(s.failure)

			return s.failure
		case StateCancelled:
			s.l.Info("transfer cancelled")
			s.sink.Cancelled()

			return utils.ErrCancelled
		}
	}
}

// awaitRequest blocks without timeout: the operator controls when the
// device powers on, so an idle server waits until cancelled.
func (s *Session) awaitRequest(ctx context.Context) {
	b, addr, err := s.conn.Receive(ctx, 0)
	if err != nil {
		if errors.Is(err, utils.ErrCancelled) {
			s.state = StateCancelled

			return
		}

		s.l.Errorf("error while waiting for request: %s", err.Error())

		return
	}

	var req types.Request

	if err := req.UnmarshalBinary(b); err != nil {
		// Unrelated traffic on a shared link, keep waiting.
		s.l.Debugf("ignoring datagram from %s: %s", addr, err.Error())

		return
	}

	switch {
	case req.Opcode != types.OpCodeRRQ:
		s.reject(addr, types.ErrIllegalTftpOp, "only read requests are supported")
	case req.Filename != s.img.Name():
		s.reject(addr, types.ErrFileNotFound, fmt.Sprintf("%s not found", req.Filename))
	case !strings.EqualFold(req.Mode, types.ModeOctet):
		s.reject(addr, types.ErrIllegalTftpOp, fmt.Sprintf("mode %s not supported", req.Mode))
	default:
		s.accept(addr, &req)
	}
}

// reject answers an unsupported request with one error datagram and
// keeps waiting: a confused bootloader retrying deserves another chance.
func (s *Session) reject(addr net.Addr, code types.ErrCode, msg string) {
	s.l.Infof("rejecting request from %s: %s", addr, msg)

	errPacket := &types.Error{Opcode: types.OpCodeError, ErrorCode: code, ErrMsg: msg}

	b, err := errPacket.MarshalBinary()
	if err != nil {
		s.l.Errorf("error while marshalling error packet: %s", err.Error())

		return
	}

	_ = s.conn.Send(addr, b)
}

func (s *Session) accept(addr net.Addr, req *types.Request) {
	s.client = addr
	s.l.Infof("accepted read request for %s from %s", s.img.Name(), addr)

	if v, ok := req.Options[types.OptionBlksize]; ok {
		if size := usableBlksize(v); size > 0 {
			img, err := s.img.WithBlockSize(size)
			if err != nil {
				s.l.Errorf("error while applying block size %d: %s", size, err.Error())
				s.reject(addr, types.ErrNotDefined, "image too large for requested block size")
				s.client = nil

				return
			}

			s.img = img
			s.l.Infof("negotiated block size %d", size)
			s.sink.HandshakeAccepted(s.img.Name())
			s.sendOAck(size)

			// ACK 0 confirms the option and requests block 1.
			s.blockNum = 0
			s.retriesLeft = s.maxRetries
			s.state = StateAwaitingAck

			return
		}

		s.l.Debugf("ignoring unusable blksize offer %q", v)
	}

	s.sink.HandshakeAccepted(s.img.Name())
	s.sendBlock(1)
	s.blockNum = 1
	s.retriesLeft = s.maxRetries
	s.state = StateAwaitingAck
}

func usableBlksize(v string) int {
	size, err := strconv.Atoi(v)
	if err != nil || size < types.MinBlockSize || size > types.MaxBlockSize {
		return 0
	}

	return size
}

func (s *Session) sendOAck(size int) {
	oack := &types.OAck{
		Opcode:  types.OpCodeOACK,
		Options: []types.Option{{Key: types.OptionBlksize, Value: strconv.Itoa(size)}},
	}

	b, err := oack.MarshalBinary()
	if err != nil {
		s.l.Errorf("error while marshalling oack packet: %s", err.Error())

		return
	}

	s.lastSent = b
	_ = s.conn.Send(s.client, b)
}

func (s *Session) sendBlock(n int) {
	payload, err := s.img.Block(n)
	if err != nil {
		s.failure = err
		s.state = StateFailed

		return
	}

	data := &types.Data{Opcode: types.OpCodeDATA, BlockNum: uint16(n), Payload: payload}

	b, errM := data.MarshalBinary()
	if errM != nil {
		s.failure = errM
		s.state = StateFailed

		return
	}

	s.lastSent = b
	// A failed send and a lost datagram are the same thing to the
	// machine: no ack arrives and the retry path takes over.
	_ = s.conn.Send(s.client, b)
	s.l.Debugf("sent block#=%d/%d, #bytes=%d", n, s.img.TotalBlocks(), len(payload))
	s.sink.BlockSent(n, s.img.TotalBlocks())
}

func (s *Session) awaitAck(ctx context.Context) {
	b, addr, err := s.conn.Receive(ctx, s.ackTimeout)

	switch {
	case errors.Is(err, utils.ErrCancelled):
		s.state = StateCancelled

		return
	case errors.Is(err, utils.ErrReceiveTimeout):
		s.retryOrFail()

		return
	case err != nil:
		s.l.Errorf("error while waiting for ack: %s", err.Error())
		s.retryOrFail()

		return
	}

	// The client endpoint is pinned at request time. Anything else on
	// the wire is foreign traffic, not a protocol event.
	if addr.String() != s.client.String() {
		s.l.Debugf("ignoring datagram from foreign endpoint %s", addr)

		return
	}

	var (
		ack       types.Ack
		errPacket types.Error
	)

	switch {
	case ack.UnmarshalBinary(b) == nil:
		s.handleAck(int(ack.BlockNum))
	case errPacket.UnmarshalBinary(b) == nil:
		s.failure = fmt.Errorf("%w: code=%d %s", utils.ErrPeerAborted, errPacket.ErrorCode, errPacket.ErrMsg)
		s.state = StateFailed
	default:
		// Garbled datagram on a noisy link, same handling as silence.
		s.l.Debugf("ignoring unparseable datagram from %s", addr)
		s.retryOrFail()
	}
}

func (s *Session) handleAck(n int) {
	switch {
	case n == s.blockNum:
		if s.blockNum > 0 && s.img.Terminal(s.blockNum) {
			s.state = StateCompleted

			return
		}

		s.sendBlock(s.blockNum + 1)
		s.blockNum++
		// The retry budget is per block.
		s.retriesLeft = s.maxRetries
	case n < s.blockNum:
		// Late or duplicated ack for a block already delivered. Must not
		// regress or re-send: the transfer has moved on.
		s.l.Debugf("ignoring stale ack for block %d, current block %d", n, s.blockNum)
	default:
		s.l.Errorf("ack block# %d > expected block# %d", n, s.blockNum)
		s.retryOrFail()
	}
}

func (s *Session) retryOrFail() {
	if s.retriesLeft > 0 {
		s.retriesLeft--
		s.l.Debugf("resending block#=%d, retries left=%d", s.blockNum, s.retriesLeft)
		_ = s.conn.Send(s.client, s.lastSent)

		if s.blockNum > 0 {
			s.sink.BlockSent(s.blockNum, s.img.TotalBlocks())
		}

		return
	}

	s.failure = fmt.Errorf("%w: block %d", utils.ErrTransferTimeout, s.blockNum)
	s.state = StateFailed
}
