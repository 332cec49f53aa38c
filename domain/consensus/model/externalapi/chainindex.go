package externalapi

import (
	"fmt"

	"github.com/pkg/errors"
)

// ChainIndex identifies one of the G x G chains in the block-flow DAG: the
// chain carrying transactions that move value from group FromGroup to group
// ToGroup.
type ChainIndex struct {
	FromGroup int
	ToGroup   int
}

// String implements fmt.Stringer.
func (c ChainIndex) String() string {
	return fmt.Sprintf("(%d -> %d)", c.FromGroup, c.ToGroup)
}

// IsIntraGroup returns whether this chain carries value within a single
// group, i.e. FromGroup == ToGroup.
func (c ChainIndex) IsIntraGroup() bool {
	return c.FromGroup == c.ToGroup
}

// Flattened returns the chain's position in a row-major G x G grid, used to
// derive a ChainIndex from the low-order bytes of a block hash.
func (c ChainIndex) Flattened(groupCount int) int {
	return c.FromGroup*groupCount + c.ToGroup
}

// ChainIndexFromFlattened reconstructs a ChainIndex from its flattened,
// row-major position in a G x G grid.
func ChainIndexFromFlattened(flattened, groupCount int) ChainIndex {
	return ChainIndex{
		FromGroup: flattened / groupCount,
		ToGroup:   flattened % groupCount,
	}
}

// ChainIndexFromHash derives the chain a block belongs to by taking the
// low-order bytes of its hash modulo G^2.
func ChainIndexFromHash(hash *DomainHash, groupCount int) ChainIndex {
	total := groupCount * groupCount
	low := int(hash[DomainHashSize-1]) | int(hash[DomainHashSize-2])<<8
	return ChainIndexFromFlattened(low%total, groupCount)
}

// Validate checks that both group indices are within [0, groupCount).
func (c ChainIndex) Validate(groupCount int) error {
	if c.FromGroup < 0 || c.FromGroup >= groupCount || c.ToGroup < 0 || c.ToGroup >= groupCount {
		return errors.Errorf("chain index %s is out of range for %d groups", c, groupCount)
	}
	return nil
}

// DepsLength returns 2*G - 1, the number of hashes in a BlockDeps vector for
// a grid with the given number of groups.
func DepsLength(groupCount int) int {
	return 2*groupCount - 1
}

// BlockDeps is the fixed-length sequence of predecessor hashes committed to
// by a block header: the G-1 intra-group deps followed by the G inter-group
// deps, as seen from the block's FromGroup. Position encodes which chain the
// dependency hash belongs to.
type BlockDeps struct {
	GroupCount int
	Hashes     []*DomainHash
}

// NewBlockDeps builds a BlockDeps, validating its length against groupCount.
func NewBlockDeps(groupCount int, hashes []*DomainHash) (*BlockDeps, error) {
	expected := DepsLength(groupCount)
	if len(hashes) != expected {
		return nil, errors.Errorf("block deps has %d hashes, expected %d", len(hashes), expected)
	}
	return &BlockDeps{GroupCount: groupCount, Hashes: hashes}, nil
}

// inDepOffset returns the index within Hashes of the dependency tracking the
// chain (otherGroup -> ownGroup), for otherGroup != ownGroup.
func inDepOffset(ownGroup, otherGroup, groupCount int) int {
	if otherGroup < ownGroup {
		return otherGroup
	}
	return otherGroup - 1
}

// DepFor returns the dependency hash this deps-vector (declared by a block
// in ownGroup) carries for target, or nil if target is not one of the
// chains this deps-vector can reference (i.e. neither originates from nor
// terminates at ownGroup).
func (d *BlockDeps) DepFor(ownGroup int, target ChainIndex) *DomainHash {
	if target.FromGroup == ownGroup {
		return d.Hashes[d.GroupCount-1+target.ToGroup]
	}
	if target.ToGroup == ownGroup {
		return d.Hashes[inDepOffset(ownGroup, target.FromGroup, d.GroupCount)]
	}
	return nil
}

// InDeps returns the G-1 hashes tracking the tips of chains flowing into
// ownGroup from every other group.
func (d *BlockDeps) InDeps() []*DomainHash {
	return d.Hashes[:d.GroupCount-1]
}

// OutDeps returns the G hashes tracking the tips of every chain flowing out
// of ownGroup, including the intra-group chain (ownGroup, ownGroup).
func (d *BlockDeps) OutDeps() []*DomainHash {
	return d.Hashes[d.GroupCount-1:]
}

// Clone deep-copies the deps vector.
func (d *BlockDeps) Clone() *BlockDeps {
	if d == nil {
		return nil
	}
	return &BlockDeps{GroupCount: d.GroupCount, Hashes: CloneDomainHashes(d.Hashes)}
}
