// Package app wires the per-chain consensus managers into the node-level
// surface described in section 9: a small, explicitly-passed context
// replacing ambient global state, a publish/subscribe bus for the
// enumerated events, and a set of typed request/response commands.
package app

import (
	"sync/atomic"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/infrastructure/config"
)

// Metrics holds the gauges a running node exposes; every field is updated
// with atomic operations so it can be read concurrently from a metrics
// endpoint without its own lock.
type Metrics struct {
	BlocksProcessed uint64
	TxsProcessed    uint64
	Reorgs          uint64
}

func (m *Metrics) blockProcessed() { atomic.AddUint64(&m.BlocksProcessed, 1) }
func (m *Metrics) txProcessed()    { atomic.AddUint64(&m.TxsProcessed, 1) }
func (m *Metrics) reorged()        { atomic.AddUint64(&m.Reorgs, 1) }

// Context bundles the per-chain managers and node-wide collaborators a
// command handler needs, replacing the ambient singletons a smaller
// program might reach for.
type Context struct {
	Config *config.Config

	Flows      map[externalapi.ChainIndex]model.BlockFlowManager
	Validators map[externalapi.ChainIndex]model.BlockValidator
	Trees      map[externalapi.ChainIndex]model.BlockTreeManager
	Mempool    model.MempoolManager
	Coinbase   model.CoinbaseManager

	// Sync is the node's outbound network surface. It is nil until the
	// transport is constructed (buildNode wires Domain before the peer
	// server exists, since the server itself needs Domain to dispatch
	// inbound messages into), so callers must check for nil before use.
	Sync SyncPort

	Events  *EventBus
	Metrics *Metrics
}

// NewContext constructs a Context. The maps must already carry one entry
// per chain in the G x G grid.
func NewContext(cfg *config.Config, flows map[externalapi.ChainIndex]model.BlockFlowManager,
	validators map[externalapi.ChainIndex]model.BlockValidator, trees map[externalapi.ChainIndex]model.BlockTreeManager,
	mempool model.MempoolManager, coinbase model.CoinbaseManager) *Context {

	return &Context{
		Config:     cfg,
		Flows:      flows,
		Validators: validators,
		Trees:      trees,
		Mempool:    mempool,
		Coinbase:   coinbase,
		Events:     NewEventBus(),
		Metrics:    &Metrics{},
	}
}

func (c *Context) flow(chain externalapi.ChainIndex) model.BlockFlowManager { return c.Flows[chain] }
func (c *Context) validator(chain externalapi.ChainIndex) model.BlockValidator {
	return c.Validators[chain]
}
func (c *Context) tree(chain externalapi.ChainIndex) model.BlockTreeManager { return c.Trees[chain] }
