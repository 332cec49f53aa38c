// Package bigint implements the fixed-width 256-bit integer types the
// stateful VM and the transaction model operate on, with checked,
// unchecked and modular arithmetic and explicit overflow behaviour.
package bigint

import "math/big"

var (
	u256Mod  = new(big.Int).Lsh(big.NewInt(1), 256)
	u256Max  = new(big.Int).Sub(u256Mod, big.NewInt(1))
	i256Max  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	i256Min  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

// U256 is an unsigned 256-bit integer.
type U256 struct {
	v big.Int
}

// ZeroU256 returns the value 0.
func ZeroU256() U256 { return U256{} }

// OneU256 returns the value 1.
func OneU256() U256 { return NewU256FromUint64(1) }

// NewU256FromUint64 builds a U256 from a native uint64.
func NewU256FromUint64(v uint64) U256 {
	return U256{v: *new(big.Int).SetUint64(v)}
}

// NewU256FromBig builds a U256 from a big.Int, wrapping it into range.
func NewU256FromBig(v *big.Int) U256 {
	wrapped := new(big.Int).Mod(v, u256Mod)
	return U256{v: *wrapped}
}

// Big returns a copy of the value as a big.Int.
func (u U256) Big() *big.Int {
	return new(big.Int).Set(&u.v)
}

// Uint64 returns the low 64 bits of the value, truncating silently; callers
// that need overflow detection should use Big() and check BitLen themselves.
func (u U256) Uint64() uint64 {
	return u.v.Uint64()
}

// String renders the decimal representation.
func (u U256) String() string { return u.v.String() }

// Cmp compares u to other the way big.Int.Cmp does.
func (u U256) Cmp(other U256) int { return u.v.Cmp(&other.v) }

// CheckedAdd returns u+other and true, or (0, false) if the result would
// not fit in 256 bits.
func (u U256) CheckedAdd(other U256) (U256, bool) {
	sum := new(big.Int).Add(&u.v, &other.v)
	if sum.Cmp(u256Max) > 0 {
		return U256{}, false
	}
	return U256{v: *sum}, true
}

// CheckedSub returns u-other and true, or (0, false) on underflow.
func (u U256) CheckedSub(other U256) (U256, bool) {
	diff := new(big.Int).Sub(&u.v, &other.v)
	if diff.Sign() < 0 {
		return U256{}, false
	}
	return U256{v: *diff}, true
}

// CheckedMul returns u*other and true, or (0, false) if the result would
// not fit in 256 bits.
func (u U256) CheckedMul(other U256) (U256, bool) {
	product := new(big.Int).Mul(&u.v, &other.v)
	if product.Cmp(u256Max) > 0 {
		return U256{}, false
	}
	return U256{v: *product}, true
}

// CheckedDiv returns u/other and true, or (0, false) if other is zero, per
// the "division by zero yields no value" rule.
func (u U256) CheckedDiv(other U256) (U256, bool) {
	if other.v.Sign() == 0 {
		return U256{}, false
	}
	return U256{v: *new(big.Int).Div(&u.v, &other.v)}, true
}

// CheckedMod returns u%other and true, or (0, false) if other is zero.
func (u U256) CheckedMod(other U256) (U256, bool) {
	if other.v.Sign() == 0 {
		return U256{}, false
	}
	return U256{v: *new(big.Int).Mod(&u.v, &other.v)}, true
}

// ModAdd returns (u+other) mod 2^256, never failing.
func (u U256) ModAdd(other U256) U256 {
	return NewU256FromBig(new(big.Int).Add(&u.v, &other.v))
}

// ModSub returns (u-other) mod 2^256, never failing.
func (u U256) ModSub(other U256) U256 {
	return NewU256FromBig(new(big.Int).Sub(&u.v, &other.v))
}

// ModMul returns (u*other) mod 2^256, never failing.
func (u U256) ModMul(other U256) U256 {
	return NewU256FromBig(new(big.Int).Mul(&u.v, &other.v))
}

// Bytes32 serializes the value as a 32-byte big-endian array.
func (u U256) Bytes32() [32]byte {
	var out [32]byte
	b := u.v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// U256FromBytes32 deserializes a 32-byte big-endian array into a U256.
func U256FromBytes32(b [32]byte) U256 {
	return U256{v: *new(big.Int).SetBytes(b[:])}
}
