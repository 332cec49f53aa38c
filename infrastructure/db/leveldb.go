package db

import (
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the given key does not exist.
var ErrNotFound = errors.New("key not found")

// levelDB implements model.DBManager over goleveldb, providing crash-safe
// batched commits: every block is committed through exactly one
// leveldb.Batch, so a crash mid-commit leaves the previous state intact.
type levelDB struct {
	ldb *leveldb.DB
}

// Open opens (creating if necessary) a leveldb store at path.
func Open(path string) (model.DBManager, error) {
	ldb, err := leveldb.OpenFile(path, Options())
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening database at %s", path)
	}
	return &levelDB{ldb: ldb}, nil
}

func (d *levelDB) Get(key model.DBKey) ([]byte, error) {
	data, err := d.ldb.Get(key.Bytes(), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (d *levelDB) Has(key model.DBKey) (bool, error) {
	return d.ldb.Has(key.Bytes(), nil)
}

func (d *levelDB) Put(key model.DBKey, value []byte) error {
	return d.ldb.Put(key.Bytes(), value, nil)
}

func (d *levelDB) Delete(key model.DBKey) error {
	return d.ldb.Delete(key.Bytes(), nil)
}

func (d *levelDB) Cursor(b model.DBBucket) (model.DBCursor, error) {
	prefix := bucketPrefix(b.Path())
	iter := d.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	return &levelDBCursor{iter: iter, bucket: b, prefix: prefix}, nil
}

func (d *levelDB) Begin() (model.DBTransaction, error) {
	return &levelDBTransaction{db: d, batch: new(leveldb.Batch)}, nil
}

func (d *levelDB) Close() error {
	return d.ldb.Close()
}

// levelDBCursor implements model.DBCursor over a leveldb iterator scoped to
// a single bucket's key prefix.
type levelDBCursor struct {
	iter    iterator
	bucket  model.DBBucket
	prefix  []byte
	started bool
}

type iterator interface {
	Next() bool
	First() bool
	Key() []byte
	Value() []byte
	Release()
}

func (c *levelDBCursor) Next() bool {
	c.started = true
	return c.iter.Next()
}

func (c *levelDBCursor) First() bool {
	c.started = true
	return c.iter.First()
}

func (c *levelDBCursor) Key() (model.DBKey, error) {
	if !c.started {
		return nil, errors.New("cursor has not been positioned, call First or Next before Key")
	}
	raw := c.iter.Key()
	if raw == nil {
		return nil, ErrNotFound
	}
	suffix := raw[len(c.prefix):]
	return &dbKey{bucket: c.bucket.(*bucket), suffix: append([]byte(nil), suffix...)}, nil
}

func (c *levelDBCursor) Value() ([]byte, error) {
	if !c.started {
		return nil, errors.New("cursor has not been positioned, call First or Next before Value")
	}
	raw := c.iter.Value()
	if raw == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (c *levelDBCursor) Close() error {
	c.iter.Release()
	return nil
}

// levelDBTransaction accumulates writes in a leveldb.Batch and applies them
// atomically on Commit. Reads observe the underlying database directly, not
// the pending batch, matching the write-after-commit visibility the store
// layer relies on.
type levelDBTransaction struct {
	db     *levelDB
	batch  *leveldb.Batch
	closed bool
}

func (t *levelDBTransaction) Get(key model.DBKey) ([]byte, error) {
	return t.db.Get(key)
}

func (t *levelDBTransaction) Has(key model.DBKey) (bool, error) {
	return t.db.Has(key)
}

func (t *levelDBTransaction) Cursor(b model.DBBucket) (model.DBCursor, error) {
	return t.db.Cursor(b)
}

func (t *levelDBTransaction) Put(key model.DBKey, value []byte) error {
	t.batch.Put(key.Bytes(), value)
	return nil
}

func (t *levelDBTransaction) Delete(key model.DBKey) error {
	t.batch.Delete(key.Bytes())
	return nil
}

func (t *levelDBTransaction) Commit() error {
	if t.closed {
		return errors.New("transaction is closed")
	}
	t.closed = true
	return t.db.ldb.Write(t.batch, nil)
}

func (t *levelDBTransaction) Rollback() error {
	t.closed = true
	t.batch = new(leveldb.Batch)
	return nil
}
