package externalapi

import "math/big"

// DomainTarget is the 256-bit difficulty bound a block hash must not exceed
// to be considered a valid proof of work.
type DomainTarget struct {
	big.Int
}

// NewDomainTargetFromBig wraps a big.Int as a DomainTarget.
func NewDomainTargetFromBig(target *big.Int) *DomainTarget {
	return &DomainTarget{Int: *target}
}

// Compact returns the target encoded in the 4-byte "compact" form used in
// block headers, following the same mantissa/exponent layout as Bitcoin's
// nBits.
func (t *DomainTarget) Compact() uint32 {
	return BigToCompact(&t.Int)
}

// Weight returns the cumulative-weight contribution of a block mined at this
// target: the inverse of the target, scaled so that a lower target (harder
// to satisfy) yields a larger weight.
func (t *DomainTarget) Weight() *big.Int {
	if t.Int.Sign() <= 0 {
		return big.NewInt(0)
	}
	maxTarget := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(maxTarget, &t.Int)
}

// CompactToBig converts a compact-form target (nBits) to its *big.Int form.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a *big.Int target into its compact (nBits) form.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var isNegative bool
	work := n
	if n.Sign() < 0 {
		isNegative = true
		work = new(big.Int).Neg(n)
	}

	exponent := uint((len(work.Bytes())))
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(work.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		shifted := new(big.Int).Rsh(work, 8*(exponent-3))
		mantissa = uint32(shifted.Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if isNegative {
		compact |= 0x00800000
	}
	return compact
}
