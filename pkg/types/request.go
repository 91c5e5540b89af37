package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Wa4h1h/unbrickd/pkg/utils"
)

// Request is the first datagram of a session: RRQ or WRQ with filename,
// transfer mode and optional trailing option pairs (RFC 2348 style).
type Request struct {
	Filename string
	Mode     string
	Options  map[string]string
	Opcode   OpCode
}

func (r *Request) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)
	rqLen := 2 + len(r.Filename) + 1 + len(r.Mode) + 1

	b.Grow(rqLen)

	if err := binary.Write(b, binary.BigEndian, &r.Opcode); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if _, err := b.WriteString(r.Filename); err != nil {
		return nil, fmt.Errorf("error while writing filename: %w", err)
	}

	if err := b.WriteByte(0); err != nil {
		return nil, fmt.Errorf("error while writing null byte after filename: %w", err)
	}

	if _, err := b.WriteString(r.Mode); err != nil {
		return nil, fmt.Errorf("error while writing mode: %w", err)
	}

	if err := b.WriteByte(0); err != nil {
		return nil, fmt.Errorf("error while writing null byte after mode: %w", err)
	}

	for key, val := range r.Options {
		b.WriteString(key)
		b.WriteByte(0)
		b.WriteString(val)
		b.WriteByte(0)
	}

	return b.Bytes(), nil
}

func (r *Request) UnmarshalBinary(data []byte) error {
	var err error

	rd := bytes.NewBuffer(data)

	err = binary.Read(rd, binary.BigEndian, &r.Opcode)
	if err != nil {
		return fmt.Errorf("error while decoding opcode: %w", utils.ErrMalformedPacket)
	}

	if r.Opcode != OpCodeRRQ && r.Opcode != OpCodeWRQ {
		return utils.ErrWrongOpCode
	}

	r.Filename, err = rd.ReadString(0)
	if err != nil {
		return fmt.Errorf("error while decoding filename: %w", utils.ErrMalformedPacket)
	}

	r.Filename = strings.TrimRight(r.Filename, string(byte(0)))

	r.Mode, err = rd.ReadString(0)
	if err != nil {
		return fmt.Errorf("error while decoding mode: %w", utils.ErrMalformedPacket)
	}

	r.Mode = strings.TrimRight(r.Mode, string(byte(0)))

	r.Options = make(map[string]string)

	for rd.Len() > 0 {
		key, errK := rd.ReadString(0)
		if errK != nil {
			return fmt.Errorf("error while decoding option key: %w", utils.ErrMalformedPacket)
		}

		val, errV := rd.ReadString(0)
		if errV != nil {
			return fmt.Errorf("error while decoding option value: %w", utils.ErrMalformedPacket)
		}

		key = strings.ToLower(strings.TrimRight(key, string(byte(0))))
		if key != "" {
			r.Options[key] = strings.TrimRight(val, string(byte(0)))
		}
	}

	return nil
}
