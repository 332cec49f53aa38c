// Package wire defines the peer-to-peer message set described in section
// 6: handshake, liveness, and block/transaction relay and fetch, plus the
// length-prefixed framing every message travels in over a connection.
package wire

import (
	"fmt"
	"io"
	"time"
)

// ProtocolVersion is the wire format version this build speaks. A peer
// whose Hello carries a different value is rejected during handshake.
const ProtocolVersion uint32 = 1

// MessageCommand identifies a message's payload type in its frame header.
type MessageCommand uint32

// Commands used in flowchain message frames.
const (
	CmdHello MessageCommand = iota
	CmdHelloAck
	CmdPing
	CmdPong
	CmdNewBlock
	CmdNewBlockHash
	CmdGetBlocks
	CmdBlocks
	CmdNewTxHashes
	CmdGetTxs
	CmdTxs
)

var commandNames = map[MessageCommand]string{
	CmdHello:        "Hello",
	CmdHelloAck:     "HelloAck",
	CmdPing:         "Ping",
	CmdPong:         "Pong",
	CmdNewBlock:     "NewBlock",
	CmdNewBlockHash: "NewBlockHash",
	CmdGetBlocks:    "GetBlocks",
	CmdBlocks:       "Blocks",
	CmdNewTxHashes:  "NewTxHashes",
	CmdGetTxs:       "GetTxs",
	CmdTxs:          "Txs",
}

func (cmd MessageCommand) String() string {
	name, ok := commandNames[cmd]
	if !ok {
		name = "unknown command"
	}
	return fmt.Sprintf("%s [code %d]", name, uint32(cmd))
}

// Message is implemented by every payload type this package defines. A
// type has complete control over its own wire representation via Encode
// and Decode.
type Message interface {
	Command() MessageCommand
	ReceivedAt() time.Time
	SetReceivedAt(t time.Time)
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// baseMessage carries the fields every concrete message embeds rather
// than reimplements.
type baseMessage struct {
	receivedAt time.Time
}

func (m *baseMessage) ReceivedAt() time.Time     { return m.receivedAt }
func (m *baseMessage) SetReceivedAt(t time.Time) { m.receivedAt = t }
