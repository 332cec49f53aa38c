package wire

import (
	"bytes"
	"io"
	"time"

	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
	"github.com/pkg/errors"
)

// magic tags the start of every frame so a misaligned reader (or a peer on
// a different network) fails fast instead of decoding garbage.
const magic uint32 = 0x464c4f57 // "FLOW"

// maxFramePayload bounds a single frame's body, guarding a peer against a
// malicious or corrupt length prefix before it allocates a buffer.
const maxFramePayload = 32 * 1024 * 1024

// ErrUnknownCommand is returned when a frame's command byte doesn't match
// any registered message type.
var ErrUnknownCommand = errors.New("unknown wire command")

func newMessage(cmd MessageCommand) (Message, error) {
	switch cmd {
	case CmdHello:
		return &Hello{}, nil
	case CmdHelloAck:
		return &HelloAck{}, nil
	case CmdPing:
		return &Ping{}, nil
	case CmdPong:
		return &Pong{}, nil
	case CmdNewBlock:
		return &NewBlock{}, nil
	case CmdNewBlockHash:
		return &NewBlockHash{}, nil
	case CmdGetBlocks:
		return &GetBlocks{}, nil
	case CmdBlocks:
		return &Blocks{}, nil
	case CmdNewTxHashes:
		return &NewTxHashes{}, nil
	case CmdGetTxs:
		return &GetTxs{}, nil
	case CmdTxs:
		return &Txs{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "command %d", cmd)
	}
}

// WriteMessage frames msg as [magic][version][command][length][body] and
// writes it to w.
func WriteMessage(w io.Writer, msg Message) error {
	body := &bytes.Buffer{}
	if err := msg.Encode(body); err != nil {
		return err
	}
	if body.Len() > maxFramePayload {
		return errors.Errorf("message %s body of %d bytes exceeds frame limit", msg.Command(), body.Len())
	}
	if err := codec.WriteUint32(w, magic); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, ProtocolVersion); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(msg.Command())); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(body.Len())); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// ReadMessage reads and decodes the next frame from r.
func ReadMessage(r io.Reader) (Message, error) {
	gotMagic, err := codec.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if gotMagic != magic {
		log.Warnf("rejecting frame with bad magic %#x", gotMagic)
		return nil, errors.Errorf("bad frame magic %#x", gotMagic)
	}
	version, err := codec.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if version != ProtocolVersion {
		return nil, errors.Errorf("unsupported protocol version %d", version)
	}
	cmd, err := codec.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	length, err := codec.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if length > maxFramePayload {
		return nil, errors.Errorf("frame body of %d bytes exceeds limit", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	msg, err := newMessage(MessageCommand(cmd))
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(bytes.NewReader(body)); err != nil {
		return nil, err
	}
	msg.SetReceivedAt(time.Now())
	logDecoded(msg)
	return msg, nil
}
