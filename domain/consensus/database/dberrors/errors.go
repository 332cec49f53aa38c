// Package dberrors defines the tier-1 error kinds a per-chain block tree or
// world-state store can fail with: storage faults and inconsistent on-disk
// state. These are fatal for the owning chain and escalate to a supervisor
// that may quiesce the node, unlike the tier-2 ruleerrors which simply
// reject a block or transaction.
package dberrors

import "github.com/pkg/errors"

// ErrNotFound indicates the requested entity is not present in the store.
var ErrNotFound = errors.New("not found")

// ErrCorruption indicates the on-disk state violates an invariant the
// store relies on, e.g. a block's parent is missing or a height index
// entry points at an unknown hash.
var ErrCorruption = errors.New("storage corruption")

// ErrIOFailure indicates the underlying storage engine failed to complete
// a read or write.
var ErrIOFailure = errors.New("storage I/O failure")

// ErrInvariant indicates an in-memory invariant was violated independent
// of the storage engine, e.g. a caller attempted to add a block whose
// parent was never added.
var ErrInvariant = errors.New("invariant violation")

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorruption reports whether err is or wraps ErrCorruption.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}
