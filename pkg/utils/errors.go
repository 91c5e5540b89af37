package utils

import "errors"

var (
	ErrAddrNotAvailable = errors.New("error: bind address is not assigned to any local interface")
	ErrAddrInUse        = errors.New("error: bind address already in use")
	ErrAddrPermission   = errors.New("error: binding reserved port requires elevated privileges")

	ErrMalformedPacket = errors.New("error: malformed packet")
	ErrWrongOpCode     = errors.New("error: invalid operation code")

	ErrReceiveTimeout  = errors.New("error: no datagram received within timeout")
	ErrTransferTimeout = errors.New("error: retries exhausted waiting for ack")
	ErrPeerAborted     = errors.New("error: peer aborted the transfer")
	ErrCancelled       = errors.New("transfer cancelled")

	ErrEmptyImage      = errors.New("error: firmware image is empty")
	ErrImageTooLarge   = errors.New("error: firmware image exceeds block number space")
	ErrBlockOutOfRange = errors.New("error: block number out of range")
)
