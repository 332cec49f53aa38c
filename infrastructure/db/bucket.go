// Package db implements the column-family key-value storage abstraction
// backed by goleveldb. A DBBucket is a named prefix within the single
// underlying leveldb keyspace; the column families enumerated in the
// storage layout (headers, bodies, per-chain state, height index,
// world-state trie nodes, node-state) are each represented as a
// top-level bucket.
package db

import (
	"bytes"

	"github.com/flowchain/flowchain/domain/consensus/model"
)

const bucketSeparator = byte(0x2f) // '/'

// bucket implements model.DBBucket over a flat byte-slice path.
type bucket struct {
	path []byte
}

// NewBucket creates a new top-level bucket.
func NewBucket(name []byte) model.DBBucket {
	return &bucket{path: append([]byte(nil), name...)}
}

// Bucket returns a nested bucket under this one.
func (b *bucket) Bucket(name []byte) model.DBBucket {
	path := make([]byte, 0, len(b.path)+1+len(name))
	path = append(path, b.path...)
	path = append(path, bucketSeparator)
	path = append(path, name...)
	return &bucket{path: path}
}

// Key builds a key within this bucket's keyspace.
func (b *bucket) Key(suffix []byte) model.DBKey {
	return &dbKey{bucket: b, suffix: append([]byte(nil), suffix...)}
}

// Path returns the raw bucket path.
func (b *bucket) Path() []byte {
	return append([]byte(nil), b.path...)
}

// dbKey implements model.DBKey.
type dbKey struct {
	bucket *bucket
	suffix []byte
}

// Bytes returns the full, flattened key: bucket path + separator + suffix.
func (k *dbKey) Bytes() []byte {
	buf := make([]byte, 0, len(k.bucket.path)+1+len(k.suffix))
	buf = append(buf, k.bucket.path...)
	buf = append(buf, bucketSeparator)
	buf = append(buf, k.suffix...)
	return buf
}

// Bucket returns the bucket the key belongs to.
func (k *dbKey) Bucket() model.DBBucket {
	return k.bucket
}

func bucketPrefix(path []byte) []byte {
	prefix := make([]byte, len(path)+1)
	copy(prefix, path)
	prefix[len(path)] = bucketSeparator
	return prefix
}

func hasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
