package db

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	committedTxTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_db_committed_transactions_total",
			Help: "Total number of read-write transactions committed to the database",
		})
	discardedTxTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_db_discarded_transactions_total",
			Help: "Total number of read-write transactions rolled back",
		})
)

var ErrKeyNotFound = errors.New("key not found in store")

// KVReader is a read-only view of the key-value state.
type KVReader interface {
	// Get returns ErrKeyNotFound if the key does not exist.
	Get(key []byte) ([]byte, error)
	// Iterate calls fn for every key with the given prefix in ascending key order.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// KVWriter is a read-write view of the key-value state. Writes only become visible once the enclosing
// transaction commits.
type KVWriter interface {
	KVReader
	Set(key, value []byte) error
	Delete(key []byte) error
}

// Store runs functions against a consistent snapshot of the state. Update commits all writes made by fn if and
// only if fn returns nil.
type Store interface {
	View(fn func(kv KVReader) error) error
	Update(fn func(kv KVWriter) error) error
}

type Database struct {
	db *badger.DB
}

var _ Store = (*Database)(nil)

// Open opens (creating if needed) a database in the given directory.
func Open(path string, logger *zap.Logger) (*Database, error) {
	opts := badger.DefaultOptions(path)
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Database{db: db}, nil
}

// OpenInMemory returns a database that is never persisted to disk.
func OpenInMemory() (*Database, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return &Database{db: db}, nil
}

// NewDatabase wraps an existing badger connection.
func NewDatabase(conn *badger.DB) *Database {
	return &Database{db: conn}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Conn returns a pointer to the underlying database connection.
func (d *Database) Conn() *badger.DB {
	return d.db
}

func (d *Database) View(fn func(kv KVReader) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		return fn(&txnAdapter{txn: txn})
	})
}

func (d *Database) Update(fn func(kv KVWriter) error) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return fn(&txnAdapter{txn: txn})
	})
	if err != nil {
		discardedTxTotal.Inc()
		return err
	}
	committedTxTotal.Inc()
	return nil
}

type txnAdapter struct {
	txn *badger.Txn
}

func (t *txnAdapter) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *txnAdapter) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func (t *txnAdapter) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t *txnAdapter) Delete(key []byte) error {
	return t.txn.Delete(key)
}

type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Errorf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warnf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debugf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Debugf(f, v...) }
