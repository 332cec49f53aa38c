package wire

import (
	"fmt"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/stathat/consistent"
)

// GroupRouter maps a chain's from-group to the peer(s) responsible for
// relaying its traffic, using consistent hashing so that adding or
// removing a peer reshuffles as few group assignments as possible.
type GroupRouter struct {
	ring *consistent.Consistent
}

// NewGroupRouter constructs an empty GroupRouter.
func NewGroupRouter() *GroupRouter {
	return &GroupRouter{ring: consistent.New()}
}

// AddPeer registers peerAddr as a relay candidate.
func (g *GroupRouter) AddPeer(peerAddr string) {
	g.ring.Add(peerAddr)
}

// RemovePeer withdraws peerAddr from the ring, e.g. on disconnect.
func (g *GroupRouter) RemovePeer(peerAddr string) {
	g.ring.Remove(peerAddr)
}

// PeerFor returns the peer address primarily responsible for relaying
// chain's traffic.
func (g *GroupRouter) PeerFor(chain externalapi.ChainIndex) (string, error) {
	return g.ring.Get(groupKey(chain))
}

// PeersFor returns the n peer addresses responsible for relaying chain's
// traffic, most-preferred first, for redundant fan-out.
func (g *GroupRouter) PeersFor(chain externalapi.ChainIndex, n int) ([]string, error) {
	return g.ring.GetN(groupKey(chain), n)
}

func groupKey(chain externalapi.ChainIndex) string {
	return fmt.Sprintf("%d->%d", chain.FromGroup, chain.ToGroup)
}
