package wire

import (
	"io"

	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
	"github.com/google/uuid"
)

// Hello is the first message a connection's initiator sends: which clique
// (network) it belongs to, its protocol version, and the range of
// from-groups its broker serves.
type Hello struct {
	baseMessage
	CliqueID      uuid.UUID
	Version       uint32
	BrokerID      int
	BrokerNum     int
	Groups        int
	ListenAddress string
}

// Command implements Message.
func (m *Hello) Command() MessageCommand { return CmdHello }

// Encode implements Message.
func (m *Hello) Encode(w io.Writer) error {
	idBytes, err := m.CliqueID.MarshalBinary()
	if err != nil {
		return err
	}
	if err := codec.WriteBytes(w, idBytes); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, m.Version); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(m.BrokerID)); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(m.BrokerNum)); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(m.Groups)); err != nil {
		return err
	}
	return codec.WriteBytes(w, []byte(m.ListenAddress))
}

// Decode implements Message.
func (m *Hello) Decode(r io.Reader) error {
	idBytes, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	if err := m.CliqueID.UnmarshalBinary(idBytes); err != nil {
		return err
	}
	if m.Version, err = codec.ReadUint32(r); err != nil {
		return err
	}
	brokerID, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	m.BrokerID = int(brokerID)
	brokerNum, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	m.BrokerNum = int(brokerNum)
	groups, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	m.Groups = int(groups)
	addr, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	m.ListenAddress = string(addr)
	return nil
}

// HelloAck answers a Hello with the same shape, so both peers of a
// connection learn the other's clique membership and group range up
// front, and confirm the handshake completed by exchanging it.
type HelloAck struct {
	Hello
}

// Command implements Message.
func (m *HelloAck) Command() MessageCommand { return CmdHelloAck }
