package db

import "github.com/syndtr/goleveldb/leveldb/opt"

var (
	defaultOptions = opt.Options{
		Compression:            opt.NoCompression,
		BlockCacheCapacity:     256 * opt.MiB,
		WriteBuffer:            128 * opt.MiB,
		DisableSeeksCompaction: true,
	}

	// Options returns the leveldb opt.Options used to open the store. It
	// is a variable, rather than a constant function, so tests can swap
	// in a smaller configuration.
	Options = func() *opt.Options {
		return &defaultOptions
	}
)
