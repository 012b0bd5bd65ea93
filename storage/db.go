package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. The ledger uses the
// raw key space for chain metadata and hands TrieDB to the state trie.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// NewBatch buffers writes that are applied atomically by Write.
	NewBatch() ethdb.Batch
	TrieDB() *triedb.Database
	Close()
}

type kvBackend struct {
	kv       ethdb.KeyValueStore
	once     sync.Once
	trieDB   *triedb.Database
	notFound func(key []byte, err error) bool
}

func (b *kvBackend) Put(key []byte, value []byte) error {
	return b.kv.Put(key, value)
}

func (b *kvBackend) Get(key []byte) ([]byte, error) {
	value, err := b.kv.Get(key)
	if err != nil {
		if b.notFound(key, err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (b *kvBackend) Has(key []byte) (bool, error) {
	return b.kv.Has(key)
}

func (b *kvBackend) Delete(key []byte) error {
	return b.kv.Delete(key)
}

func (b *kvBackend) NewBatch() ethdb.Batch {
	return b.kv.NewBatch()
}

func (b *kvBackend) TrieDB() *triedb.Database {
	b.once.Do(func() {
		b.trieDB = triedb.NewDatabase(rawdb.NewDatabase(b.kv), triedb.HashDefaults)
	})
	return b.trieDB
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kvBackend
	mem *memorydb.Database
}

func NewMemDB() *MemDB {
	mem := memorydb.New()
	db := &MemDB{mem: mem}
	db.kv = mem
	db.notFound = func(key []byte, _ error) bool {
		has, err := mem.Has(key)
		return err == nil && !has
	}
	return db
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.mem.Close()
}

// --- Persistent DB ---

// LevelDBOptions tunes the on-disk store.
type LevelDBOptions struct {
	CacheMB      int
	OpenFiles    int
	WriteBufferM int
}

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	kvBackend
	db *gethleveldb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens LevelDB at path, applying non-zero tuning values.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	db, err := gethleveldb.NewCustom(path, "", func(o *opt.Options) {
		if opts.CacheMB > 0 {
			o.BlockCacheCapacity = opts.CacheMB * opt.MiB
		}
		if opts.OpenFiles > 0 {
			o.OpenFilesCacheCapacity = opts.OpenFiles
		}
		if opts.WriteBufferM > 0 {
			o.WriteBuffer = opts.WriteBufferM * opt.MiB
		}
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	out := &LevelDB{db: db}
	out.kv = db
	out.notFound = func(_ []byte, err error) bool { return errors.Is(err, leveldb.ErrNotFound) }
	return out, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	if ldb.trieDB != nil {
		_ = ldb.trieDB.Close()
	}
	_ = ldb.db.Close()
}
