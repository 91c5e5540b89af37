package types

type OpCode uint16

const (
	OpCodeRRQ OpCode = iota + 1
	OpCodeWRQ
	OpCodeDATA
	OpCodeACK
	OpCodeError
	OpCodeOACK
)

type ErrCode uint16

const (
	ErrNotDefined ErrCode = iota
	ErrFileNotFound
	ErrAccessViolation
	ErrDiskFull
	ErrIllegalTftpOp
	ErrUnknownTransferId
	ErrFileAlreadyExists
	ErrNoSuchUser
)

const (
	// MaxBlocks is bounded by the 2-byte block number on the wire.
	MaxBlocks        = 65535
	DefaultBlockSize = 512
	HeaderSize       = 4

	// MinBlockSize and MaxBlockSize bound the blksize option (RFC 2348).
	MinBlockSize = 8
	MaxBlockSize = 65464
)

// ModeOctet is the only transfer mode the recovery bootloader uses.
const ModeOctet = "octet"

// OptionBlksize is the sole RRQ option the server negotiates.
const OptionBlksize = "blksize"

const (
	TFTPPort      = 69
	HandshakePort = 9978
)

// HandshakeMagicLen is the fixed length of the discovery probe: the ASCII
// tag "SWKH" zero-padded to 20 bytes. The bootloader expects the exact
// payload echoed back before it issues the read request.
const HandshakeMagicLen = 20

func HandshakeMagic() []byte {
	m := make([]byte, HandshakeMagicLen)
	copy(m, "SWKH")

	return m
}
