package app

import (
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/ruleerrors"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/pkg/errors"
)

// Domain is the node's single entry point for the commands section 6
// enumerates: AddBlock, AddTx, GetTemplate, GetBalance, GetTxStatus. It
// holds no state of its own beyond a Context and an address index kept
// in step with every committed block.
type Domain struct {
	ctx   *Context
	addrs *addressIndex
}

// NewDomain constructs a Domain over ctx.
func NewDomain(ctx *Context) *Domain {
	return &Domain{ctx: ctx, addrs: newAddressIndex()}
}

// Context returns the node context Domain was built over, for
// collaborators (the peer transport, RPC surfaces) that need direct
// access to per-chain managers Domain's own commands don't expose.
func (d *Domain) Context() *Context { return d.ctx }

// Events returns the bus Domain publishes its lifecycle events on.
func (d *Domain) Events() *EventBus { return d.ctx.Events }

// AddBlock validates block against the chain its own hash selects and,
// on success, folds it into that chain's tree and the address index, then
// publishes NewTip (and Reorg, if the tip moved off a different branch).
// A missing dependency is reported as ruleerrors.ErrHeaderIncomplete so
// the caller can park the block and fetch what it's missing instead of
// penalizing the sender.
func (d *Domain) AddBlock(block *externalapi.DomainBlock, origin string) error {
	hash := hashing.HeaderHash(block.Header)
	chain := externalapi.ChainIndexFromHash(&hash, d.ctx.Config.Groups)

	flow := d.ctx.flow(chain)
	if flow == nil {
		return ruleerrors.ErrInvalidGroup
	}
	tree := d.ctx.tree(chain)
	validator := d.ctx.validator(chain)

	if !block.Header.IsGenesis() {
		ownGroup := chain.FromGroup
		deps := block.Header.Deps
		for i, dep := range deps.InDeps() {
			otherGroup := i
			if otherGroup >= ownGroup {
				otherGroup++
			}
			if err := d.requireDep(externalapi.ChainIndex{FromGroup: otherGroup, ToGroup: ownGroup}, dep); err != nil {
				return err
			}
		}
		for toGroup, dep := range deps.OutDeps() {
			if err := d.requireDep(externalapi.ChainIndex{FromGroup: ownGroup, ToGroup: toGroup}, dep); err != nil {
				return err
			}
		}
	}

	view, err := flow.GetMutableGroupView(chain.FromGroup, block.Header.Deps)
	if err != nil {
		return err
	}
	brokerLow, brokerHigh := d.ctx.Config.BrokerFromGroupRange()
	if err := validator.ValidateBlock(block, chain, view, brokerLow, brokerHigh); err != nil {
		return err
	}
	if ok, err := flow.CheckFlowTxs(block); err != nil {
		return err
	} else if !ok {
		return ruleerrors.ErrInvalidFlowTxs
	}
	if err := flow.CommitBlockView(view, block.Header.DepStateHash); err != nil {
		return err
	}

	previousTip, _ := tree.BestTipUnsafe()
	if err := flow.AddAndUpdateView(block); err != nil {
		return err
	}
	d.addrs.applyBlock(block)
	d.ctx.Metrics.blockProcessed()

	newTip, err := tree.BestTipUnsafe()
	if err == nil && previousTip != nil && newTip != nil && *previousTip != *newTip {
		toRemove, toAdd, err := tree.CalHashDiff(newTip, previousTip)
		if err == nil && len(toRemove) > 0 {
			d.ctx.Metrics.reorged()
			removed := make([]externalapi.DomainHash, len(toRemove))
			for i, h := range toRemove {
				removed[i] = *h
			}
			added := make([]externalapi.DomainHash, len(toAdd))
			for i, h := range toAdd {
				added[i] = *h
			}
			d.ctx.Events.Publish(Event{Kind: EventReorg, Chain: chain, Removed: removed, Added: added})
		}
	}
	weight, _ := tree.ChainWeight(&hash)
	d.ctx.Events.Publish(Event{Kind: EventNewTip, Chain: chain, Hash: hash, Weight: weight})
	d.ctx.Events.Publish(Event{Kind: EventBroadcastBlock, Block: block, Origin: origin})
	if d.ctx.Sync != nil {
		_ = d.ctx.Sync.AnnounceBlock(chain, block)
	}
	return nil
}

// requireDep checks that depChain's tree already contains dep, the hash a
// block's deps vector declares for that chain. A nil dep (only possible for
// a genesis-adjacent chain that has not produced a block yet) is vacuously
// satisfied. A missing tree for depChain (out of this node's broker range)
// is not this node's concern to verify and is likewise skipped.
func (d *Domain) requireDep(depChain externalapi.ChainIndex, dep *externalapi.DomainHash) error {
	if dep == nil {
		return nil
	}
	depTree := d.ctx.tree(depChain)
	if depTree == nil {
		return nil
	}
	has, err := depTree.Contains(dep)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if d.ctx.Sync != nil {
		_ = d.ctx.Sync.FetchBlocks(depChain, []externalapi.DomainHash{*dep})
	}
	return ruleerrors.ErrHeaderIncomplete
}

// AddTx admits tx to chain's mempool, checked against a view at chain's
// current best deps, publishing BroadcastTx on success.
func (d *Domain) AddTx(tx *externalapi.DomainTransaction, chain externalapi.ChainIndex) error {
	flow := d.ctx.flow(chain)
	if flow == nil {
		return ruleerrors.ErrInvalidGroup
	}
	deps, err := flow.BestDeps(chain)
	if err != nil {
		return err
	}
	view, err := flow.GetMutableGroupView(chain.FromGroup, deps)
	if err != nil {
		return err
	}
	if err := d.ctx.Mempool.Add(chain, tx, view); err != nil {
		return err
	}
	d.ctx.Metrics.txProcessed()
	txHashes := []externalapi.DomainHash{hashing.TransactionID(tx)}
	d.ctx.Events.Publish(Event{Kind: EventBroadcastTx, Chain: chain, TxHashes: txHashes})
	if d.ctx.Sync != nil {
		_ = d.ctx.Sync.RelayTx(chain, txHashes)
	}
	return nil
}

// GetTemplate assembles a mining template for chain, addressed to
// minerLockup.
func (d *Domain) GetTemplate(chain externalapi.ChainIndex, minerLockup []byte) (*externalapi.DomainBlock, error) {
	flow := d.ctx.flow(chain)
	if flow == nil {
		return nil, ruleerrors.ErrInvalidGroup
	}
	return flow.PrepareBlockFlowUnsafe(chain, minerLockup)
}

// GetBalance sums the amount of at most utxosLimit outputs currently
// locked to lockupScript, per the address index maintained alongside
// AddBlock.
func (d *Domain) GetBalance(lockupScript []byte, utxosLimit int) (uint64, []externalapi.AssetOutputRef) {
	return d.addrs.balance(lockupScript, utxosLimit)
}

// TxStatus reports whether a transaction is known and, if so, where.
type TxStatus struct {
	Found   bool
	Shared  bool
	Pending bool
}

// GetTxStatus reports whether txID currently sits in chain's shared
// mempool pool. Only the shared pool is searched: a transaction waiting in
// the pending pool is reported as not found, and Pending is never set.
func (d *Domain) GetTxStatus(txID externalapi.DomainHash, chain externalapi.ChainIndex) (TxStatus, error) {
	if d.ctx.flow(chain) == nil {
		return TxStatus{}, errors.Errorf("chain %s not served by this broker", chain)
	}
	all := d.ctx.Mempool.AllByGasPrice(chain)
	for _, tx := range all {
		if hashing.TransactionID(tx) == txID {
			return TxStatus{Found: true, Shared: true}, nil
		}
	}
	return TxStatus{}, nil
}
