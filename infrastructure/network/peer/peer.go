// Package peer runs the raw TCP transport for the wire protocol: it
// accepts and dials connections, performs the Hello handshake, and
// dispatches decoded messages into an app.Domain. It plays the same role
// netadapter plays for the gRPC transport, adapted to the length-prefixed
// framing infrastructure/wire defines instead of protobuf-over-gRPC.
package peer

import (
	"net"
	"sync"

	"github.com/flowchain/flowchain/app"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/infrastructure/config"
	"github.com/flowchain/flowchain/infrastructure/logger"
	"github.com/flowchain/flowchain/infrastructure/wire"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Server owns the listening socket and every live connection's outbound
// message queue. One Server exists per broker process.
type Server struct {
	cfg      *config.Config
	domain   *app.Domain
	router   *wire.GroupRouter
	cliqueID uuid.UUID
	listener net.Listener
	log      *logger.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

// conn is one live connection, identified by the remote's advertised
// listen address once the handshake completes.
type conn struct {
	nc    net.Conn
	outCh chan wire.Message
}

// NewServer constructs a Server bound to cfg's sharding parameters,
// dispatching validated messages into domain and logging through log.
func NewServer(cfg *config.Config, domain *app.Domain, log *logger.Logger) *Server {
	return &Server{
		cfg:      cfg,
		domain:   domain,
		router:   wire.NewGroupRouter(),
		cliqueID: uuid.New(),
		conns:    make(map[string]*conn),
		log:      log,
	}
}

// Listen starts accepting inbound connections on listenAddress. It
// returns once the socket is bound; accepting runs in the background.
func (s *Server) Listen(listenAddress string) error {
	ln, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", listenAddress)
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			s.log.Warnf("accept failed, stopping listener: %s", err)
			return
		}
		go s.handleInbound(nc)
	}
}

// Connect dials a peer and completes the handshake as the initiator.
func (s *Server) Connect(remoteAddress, ownListenAddress string) error {
	nc, err := net.Dial("tcp", remoteAddress)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", remoteAddress)
	}
	hello := s.helloMessage(ownListenAddress)
	if err := wire.WriteMessage(nc, hello); err != nil {
		nc.Close()
		return err
	}
	ack, err := wire.ReadMessage(nc)
	if err != nil {
		nc.Close()
		return err
	}
	helloAck, ok := ack.(*wire.HelloAck)
	if !ok {
		nc.Close()
		return errors.Errorf("expected HelloAck, got %s", ack.Command())
	}
	if helloAck.CliqueID != s.cliqueID {
		nc.Close()
		return errors.New("peer belongs to a different clique")
	}
	s.router.AddPeer(remoteAddress)
	s.register(remoteAddress, nc)
	return nil
}

func (s *Server) handleInbound(nc net.Conn) {
	msg, err := wire.ReadMessage(nc)
	if err != nil {
		s.log.Warnf("failed to read handshake from %s: %s", nc.RemoteAddr(), err)
		nc.Close()
		return
	}
	hello, ok := msg.(*wire.Hello)
	if !ok {
		s.log.Warnf("first message from %s was not Hello", nc.RemoteAddr())
		nc.Close()
		return
	}
	ack := &wire.HelloAck{Hello: *s.helloMessage("")}
	if err := wire.WriteMessage(nc, ack); err != nil {
		nc.Close()
		return
	}
	s.router.AddPeer(hello.ListenAddress)
	s.register(hello.ListenAddress, nc)
}

func (s *Server) helloMessage(ownListenAddress string) *wire.Hello {
	return &wire.Hello{
		CliqueID:      s.cliqueID,
		Version:       wire.ProtocolVersion,
		BrokerID:      s.cfg.BrokerID,
		BrokerNum:     s.cfg.BrokerNum,
		Groups:        s.cfg.Groups,
		ListenAddress: ownListenAddress,
	}
}

func (s *Server) register(peerAddr string, nc net.Conn) {
	c := &conn{nc: nc, outCh: make(chan wire.Message, 64)}
	s.mu.Lock()
	s.conns[peerAddr] = c
	s.mu.Unlock()

	go s.writeLoop(peerAddr, c)
	go s.readLoop(peerAddr, c)
}

func (s *Server) writeLoop(peerAddr string, c *conn) {
	for msg := range c.outCh {
		if err := wire.WriteMessage(c.nc, msg); err != nil {
			s.log.Warnf("write to %s failed: %s", peerAddr, err)
			s.drop(peerAddr)
			return
		}
	}
}

func (s *Server) readLoop(peerAddr string, c *conn) {
	defer s.drop(peerAddr)
	for {
		msg, err := wire.ReadMessage(c.nc)
		if err != nil {
			s.log.Debugf("connection to %s closed: %s", peerAddr, err)
			return
		}
		if err := s.dispatch(peerAddr, msg); err != nil {
			s.log.Warnf("failed to handle %s from %s: %s", msg.Command(), peerAddr, err)
			s.domain.Events().Publish(app.Event{Kind: app.EventPeerMisbehavior, PeerAddress: peerAddr, MisbehaviorKind: err.Error()})
		}
	}
}

func (s *Server) drop(peerAddr string) {
	s.mu.Lock()
	c, ok := s.conns[peerAddr]
	if ok {
		delete(s.conns, peerAddr)
	}
	s.mu.Unlock()
	if ok {
		close(c.outCh)
		c.nc.Close()
	}
	s.router.RemovePeer(peerAddr)
}

func (s *Server) dispatch(origin string, msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.NewBlock:
		return s.domain.AddBlock(m.Block, origin)
	case *wire.NewBlockHash:
		return s.requestBlock(origin, m.Hash)
	case *wire.GetBlocks:
		return s.respondBlocks(origin, m.Hashes)
	case *wire.Blocks:
		for _, block := range m.Blocks {
			if err := s.domain.AddBlock(block, origin); err != nil {
				return err
			}
		}
		return nil
	case *wire.NewTxHashes:
		return s.requestTxs(origin, m.Hashes)
	case *wire.GetTxs:
		return nil
	case *wire.Txs:
		return s.admitTxs(m.Txs)
	case *wire.Ping:
		return s.send(origin, &wire.Pong{RequestID: m.RequestID})
	case *wire.Pong:
		return nil
	default:
		return errors.Errorf("unhandled message command %s", msg.Command())
	}
}

func (s *Server) requestBlock(origin string, hash externalapi.DomainHash) error {
	return s.send(origin, &wire.GetBlocks{Hashes: []externalapi.DomainHash{hash}})
}

func (s *Server) requestTxs(origin string, hashes []externalapi.DomainHash) error {
	return s.send(origin, &wire.GetTxs{Hashes: hashes})
}

func (s *Server) respondBlocks(origin string, hashes []externalapi.DomainHash) error {
	var blocks []*externalapi.DomainBlock
	for i := range hashes {
		hash := hashes[i]
		chain := externalapi.ChainIndexFromHash(&hash, s.cfg.Groups)
		tree, ok := s.domain.Context().Trees[chain]
		if !ok {
			continue
		}
		block, err := tree.Block(&hash)
		if err != nil {
			continue
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return nil
	}
	return s.send(origin, &wire.Blocks{Blocks: blocks})
}

func (s *Server) admitTxs(txs []*externalapi.DomainTransaction) error {
	for _, tx := range txs {
		if len(tx.Unsigned.Inputs) == 0 {
			continue
		}
		firstOutRef := tx.Unsigned.Inputs[0].OutputRef
		chain := externalapi.ChainIndexFromHash(&firstOutRef.Key, s.cfg.Groups)
		if err := s.domain.AddTx(tx, chain); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast fans a message out to the peers the group ring returns for
// chain, in a freshly shuffled order. It asks the ring for as many peers
// as there are live connections, so every registered peer receives it.
func (s *Server) Broadcast(chain externalapi.ChainIndex, msg wire.Message) error {
	s.mu.RLock()
	n := len(s.conns)
	s.mu.RUnlock()
	if n == 0 {
		return nil
	}
	peers, err := s.router.PeersFor(chain, n)
	if err != nil {
		return nil // no peers registered yet
	}
	return app.TxsBroadcast(peers, func(peer string) error {
		return s.send(peer, msg)
	})
}

// AnnounceBlock implements app.SyncPort, telling chain's peers about a
// newly accepted block.
func (s *Server) AnnounceBlock(chain externalapi.ChainIndex, block *externalapi.DomainBlock) error {
	return s.Broadcast(chain, &wire.NewBlock{Block: block})
}

// FetchBlocks implements app.SyncPort, requesting hashes from chain's
// peers.
func (s *Server) FetchBlocks(chain externalapi.ChainIndex, hashes []externalapi.DomainHash) error {
	return s.Broadcast(chain, &wire.GetBlocks{Hashes: hashes})
}

// RelayTx implements app.SyncPort, announcing txHashes to chain's peers.
func (s *Server) RelayTx(chain externalapi.ChainIndex, txHashes []externalapi.DomainHash) error {
	return s.Broadcast(chain, &wire.NewTxHashes{Hashes: txHashes})
}

func (s *Server) send(peerAddr string, msg wire.Message) error {
	s.mu.RLock()
	c, ok := s.conns[peerAddr]
	s.mu.RUnlock()
	if !ok {
		return errors.Errorf("no connection to %s", peerAddr)
	}
	select {
	case c.outCh <- msg:
		return nil
	default:
		return errors.Errorf("outbound queue to %s is full", peerAddr)
	}
}
