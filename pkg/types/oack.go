package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Wa4h1h/unbrickd/pkg/utils"
)

// Option is one negotiated key/value pair carried by an OACK.
type Option struct {
	Key   string
	Value string
}

// OAck confirms the options the server accepted from the read request.
// Options keep their order so the reply mirrors the client's offer.
type OAck struct {
	Options []Option
	Opcode  OpCode
}

func (o *OAck) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)

	if err := binary.Write(b, binary.BigEndian, &o.Opcode); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	for _, opt := range o.Options {
		if _, err := b.WriteString(opt.Key); err != nil {
			return nil, fmt.Errorf("error while writing option key: %w", err)
		}

		if err := b.WriteByte(0); err != nil {
			return nil, fmt.Errorf("error while writing null byte: %w", err)
		}

		if _, err := b.WriteString(opt.Value); err != nil {
			return nil, fmt.Errorf("error while writing option value: %w", err)
		}

		if err := b.WriteByte(0); err != nil {
			return nil, fmt.Errorf("error while writing null byte: %w", err)
		}
	}

	return b.Bytes(), nil
}

func (o *OAck) UnmarshalBinary(data []byte) error {
	b := bytes.NewBuffer(data)

	if err := binary.Read(b, binary.BigEndian, &o.Opcode); err != nil {
		return fmt.Errorf("error while reading opcode: %w", err)
	}

	if o.Opcode != OpCodeOACK {
		return utils.ErrWrongOpCode
	}

	o.Options = o.Options[:0]

	for b.Len() > 0 {
		key, err := b.ReadString(0)
		if err != nil {
			return fmt.Errorf("error while reading option key: %w", utils.ErrMalformedPacket)
		}

		val, err := b.ReadString(0)
		if err != nil {
			return fmt.Errorf("error while reading option value: %w", utils.ErrMalformedPacket)
		}

		o.Options = append(o.Options, Option{
			Key:   strings.TrimRight(key, string(byte(0))),
			Value: strings.TrimRight(val, string(byte(0))),
		})
	}

	return nil
}
