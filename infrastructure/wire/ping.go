package wire

import (
	"io"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
	"github.com/google/uuid"
)

// Ping carries a fresh request id a peer must echo back in its Pong, so
// the sender can match the reply to a specific liveness probe and
// measure its round trip.
type Ping struct {
	baseMessage
	RequestID uuid.UUID
	SentAt    externalapi.DomainTimestamp
}

// Command implements Message.
func (m *Ping) Command() MessageCommand { return CmdPing }

// Encode implements Message.
func (m *Ping) Encode(w io.Writer) error {
	idBytes, err := m.RequestID.MarshalBinary()
	if err != nil {
		return err
	}
	if err := codec.WriteBytes(w, idBytes); err != nil {
		return err
	}
	return codec.WriteUint64(w, uint64(m.SentAt))
}

// Decode implements Message.
func (m *Ping) Decode(r io.Reader) error {
	idBytes, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	if err := m.RequestID.UnmarshalBinary(idBytes); err != nil {
		return err
	}
	sentAt, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	m.SentAt = externalapi.DomainTimestamp(sentAt)
	return nil
}

// Pong answers a Ping, echoing its request id.
type Pong struct {
	baseMessage
	RequestID uuid.UUID
}

// Command implements Message.
func (m *Pong) Command() MessageCommand { return CmdPong }

// Encode implements Message.
func (m *Pong) Encode(w io.Writer) error {
	idBytes, err := m.RequestID.MarshalBinary()
	if err != nil {
		return err
	}
	return codec.WriteBytes(w, idBytes)
}

// Decode implements Message.
func (m *Pong) Decode(r io.Reader) error {
	idBytes, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	return m.RequestID.UnmarshalBinary(idBytes)
}
