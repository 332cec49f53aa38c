package externalapi

// DomainBlockHeader commits to a block's dependency vector, the root of the
// world-state it builds on, the Merkle root of its transactions, and the
// proof-of-work fields. Hashing the header (see the hashing package) binds
// all of these fields together.
type DomainBlockHeader struct {
	Deps               *BlockDeps
	DepStateHash       DomainHash
	TransactionsHash   DomainHash
	TimestampInMillis  DomainTimestamp
	Target             DomainTarget
	Nonce              uint64
}

// IsGenesis returns whether this header has no parent, i.e. every entry of
// its deps vector (if any) is the zero hash, and it carries no deps at all
// for a fresh chain.
func (h *DomainBlockHeader) IsGenesis() bool {
	if h.Deps == nil {
		return true
	}
	for _, dep := range h.Deps.Hashes {
		if dep != nil && !dep.IsZero() {
			return false
		}
	}
	return true
}

// Clone deep-copies the header.
func (h *DomainBlockHeader) Clone() *DomainBlockHeader {
	if h == nil {
		return nil
	}
	clone := *h
	clone.Deps = h.Deps.Clone()
	return &clone
}

// DomainBlock is a header together with its ordered list of transactions.
// By convention the last transaction is the coinbase.
type DomainBlock struct {
	Header       *DomainBlockHeader
	Transactions []*DomainTransaction
}

// Coinbase returns the block's coinbase transaction, which is always the
// last entry of Transactions.
func (b *DomainBlock) Coinbase() *DomainTransaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[len(b.Transactions)-1]
}

// NonCoinbaseTransactions returns every transaction in the block except the
// trailing coinbase.
func (b *DomainBlock) NonCoinbaseTransactions() []*DomainTransaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[:len(b.Transactions)-1]
}

// Clone deep-copies the block.
func (b *DomainBlock) Clone() *DomainBlock {
	if b == nil {
		return nil
	}
	txs := make([]*DomainTransaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = tx.Clone()
	}
	return &DomainBlock{Header: b.Header.Clone(), Transactions: txs}
}
