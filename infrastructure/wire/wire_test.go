package wire

import (
	"bytes"
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/google/uuid"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	if got.Command() != msg.Command() {
		t.Fatalf("got command %s, want %s", got.Command(), msg.Command())
	}
	return got
}

func TestHelloRoundTrip(t *testing.T) {
	hello := &Hello{
		CliqueID:      uuid.New(),
		Version:       ProtocolVersion,
		BrokerID:      1,
		BrokerNum:     4,
		Groups:        4,
		ListenAddress: "127.0.0.1:32100",
	}
	got := roundTrip(t, hello).(*Hello)
	if got.CliqueID != hello.CliqueID || got.BrokerID != hello.BrokerID ||
		got.BrokerNum != hello.BrokerNum || got.Groups != hello.Groups ||
		got.ListenAddress != hello.ListenAddress {
		t.Errorf("got %+v, want %+v", got, hello)
	}
}

func TestHelloAckIsDistinguishableFromHello(t *testing.T) {
	ack := &HelloAck{Hello: Hello{CliqueID: uuid.New(), Version: ProtocolVersion}}
	if ack.Command() != CmdHelloAck {
		t.Fatalf("HelloAck.Command() = %s, want %s", ack.Command(), CmdHelloAck)
	}
	got := roundTrip(t, ack)
	if _, ok := got.(*HelloAck); !ok {
		t.Fatalf("round-tripped into %T, want *HelloAck", got)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	ping := &Ping{RequestID: uuid.New()}
	got := roundTrip(t, ping).(*Ping)
	if got.RequestID != ping.RequestID {
		t.Errorf("got request id %s, want %s", got.RequestID, ping.RequestID)
	}

	pong := &Pong{RequestID: ping.RequestID}
	gotPong := roundTrip(t, pong).(*Pong)
	if gotPong.RequestID != pong.RequestID {
		t.Errorf("got request id %s, want %s", gotPong.RequestID, pong.RequestID)
	}
}

func TestNewBlockHashRoundTrip(t *testing.T) {
	msg := &NewBlockHash{
		Chain: externalapi.ChainIndex{FromGroup: 1, ToGroup: 2},
		Hash:  externalapi.DomainHash{1, 2, 3},
	}
	got := roundTrip(t, msg).(*NewBlockHash)
	if got.Chain != msg.Chain || got.Hash != msg.Hash {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestGetBlocksRoundTripEmptyAndPopulated(t *testing.T) {
	empty := &GetBlocks{}
	gotEmpty := roundTrip(t, empty).(*GetBlocks)
	if len(gotEmpty.Hashes) != 0 {
		t.Errorf("got %d hashes, want 0", len(gotEmpty.Hashes))
	}

	populated := &GetBlocks{Hashes: []externalapi.DomainHash{{1}, {2}, {3}}}
	gotPopulated := roundTrip(t, populated).(*GetBlocks)
	if len(gotPopulated.Hashes) != len(populated.Hashes) {
		t.Fatalf("got %d hashes, want %d", len(gotPopulated.Hashes), len(populated.Hashes))
	}
	for i, h := range populated.Hashes {
		if gotPopulated.Hashes[i] != h {
			t.Errorf("hash %d: got %s, want %s", i, gotPopulated.Hashes[i], h)
		}
	}
}

func TestGetTxsAndNewTxHashesRoundTrip(t *testing.T) {
	hashes := []externalapi.DomainHash{{9}, {8}}
	got := roundTrip(t, &GetTxs{Hashes: hashes}).(*GetTxs)
	if len(got.Hashes) != len(hashes) {
		t.Fatalf("got %d hashes, want %d", len(got.Hashes), len(hashes))
	}
	gotNew := roundTrip(t, &NewTxHashes{Hashes: hashes}).(*NewTxHashes)
	if len(gotNew.Hashes) != len(hashes) {
		t.Fatalf("got %d hashes, want %d", len(gotNew.Hashes), len(hashes))
	}
}

func TestReadMessageRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write([]byte{0, 0, 0, 1})
	if _, err := ReadMessage(&buf); err == nil {
		t.Fatal("expected an error for a bad magic prefix, got nil")
	}
}

func TestGroupRouterRoutesConsistently(t *testing.T) {
	router := NewGroupRouter()
	router.AddPeer("peer-a:32100")
	router.AddPeer("peer-b:32100")
	router.AddPeer("peer-c:32100")

	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 1}
	first, err := router.PeerFor(chain)
	if err != nil {
		t.Fatalf("PeerFor: %s", err)
	}
	for i := 0; i < 10; i++ {
		got, err := router.PeerFor(chain)
		if err != nil {
			t.Fatalf("PeerFor: %s", err)
		}
		if got != first {
			t.Errorf("routing for %s changed from %s to %s across calls", chain, first, got)
		}
	}
}

func TestGroupRouterErrorsWithNoPeers(t *testing.T) {
	router := NewGroupRouter()
	if _, err := router.PeerFor(externalapi.ChainIndex{}); err == nil {
		t.Fatal("expected an error routing with no peers registered")
	}
}
