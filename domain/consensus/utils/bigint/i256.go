package bigint

import "math/big"

// I256 is a signed 256-bit integer, two's-complement on the wire.
type I256 struct {
	v big.Int
}

// ZeroI256 returns the value 0.
func ZeroI256() I256 { return I256{} }

// NewI256FromInt64 builds an I256 from a native int64.
func NewI256FromInt64(v int64) I256 {
	return I256{v: *big.NewInt(v)}
}

// Big returns a copy of the value as a big.Int.
func (i I256) Big() *big.Int { return new(big.Int).Set(&i.v) }

// String renders the decimal representation.
func (i I256) String() string { return i.v.String() }

// Cmp compares i to other the way big.Int.Cmp does.
func (i I256) Cmp(other I256) int { return i.v.Cmp(&other.v) }

func inRange(v *big.Int) bool {
	return v.Cmp(i256Min) >= 0 && v.Cmp(i256Max) <= 0
}

// CheckedAdd returns i+other and true, or (0, false) on overflow.
func (i I256) CheckedAdd(other I256) (I256, bool) {
	sum := new(big.Int).Add(&i.v, &other.v)
	if !inRange(sum) {
		return I256{}, false
	}
	return I256{v: *sum}, true
}

// CheckedSub returns i-other and true, or (0, false) on overflow.
func (i I256) CheckedSub(other I256) (I256, bool) {
	diff := new(big.Int).Sub(&i.v, &other.v)
	if !inRange(diff) {
		return I256{}, false
	}
	return I256{v: *diff}, true
}

// CheckedMul returns i*other and true, or (0, false) on overflow.
func (i I256) CheckedMul(other I256) (I256, bool) {
	product := new(big.Int).Mul(&i.v, &other.v)
	if !inRange(product) {
		return I256{}, false
	}
	return I256{v: *product}, true
}

// CheckedDiv returns i/other and true, or (0, false) if other is zero.
func (i I256) CheckedDiv(other I256) (I256, bool) {
	if other.v.Sign() == 0 {
		return I256{}, false
	}
	return I256{v: *new(big.Int).Quo(&i.v, &other.v)}, true
}

// CheckedMod returns i%other and true, or (0, false) if other is zero.
func (i I256) CheckedMod(other I256) (I256, bool) {
	if other.v.Sign() == 0 {
		return I256{}, false
	}
	return I256{v: *new(big.Int).Rem(&i.v, &other.v)}, true
}

// Bytes32 serializes the value as a 32-byte two's-complement big-endian
// array.
func (i I256) Bytes32() [32]byte {
	var out [32]byte
	v := new(big.Int).Set(&i.v)
	if v.Sign() < 0 {
		v.Add(v, u256Mod)
	}
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// I256FromBytes32 deserializes a 32-byte two's-complement big-endian array
// into an I256.
func I256FromBytes32(b [32]byte) I256 {
	v := new(big.Int).SetBytes(b[:])
	if v.Cmp(i256Max) > 0 {
		v.Sub(v, u256Mod)
	}
	return I256{v: *v}
}
