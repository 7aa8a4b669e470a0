package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"parley/pkg/logger"
)

var db *pebble.DB

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint (e.g. username) is hit.
var ErrConflict = errors.New("already exists")

// reads counts storage round-trips: one per exported read operation,
// regardless of how many rows the operation returns. Batched scans and
// multi-gets count as a single round-trip. Used by tests and exported
// as a Prometheus counter.
var reads uint64

// Reads returns the number of storage round-trips since Open.
func Reads() uint64 { return atomic.LoadUint64(&reads) }

func countRead() {
	atomic.AddUint64(&reads, 1)
	storeReads.Inc()
}

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	atomic.StoreUint64(&reads, 0)
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func ready() error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return nil
}

// getRaw reads a single key, translating pebble.ErrNotFound. The copy is
// required because the value becomes invalid once the closer is closed.
func getRaw(key string) ([]byte, error) {
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// scanPrefix collects all values under a key prefix in key order.
func scanPrefix(prefix string) ([][]byte, error) {
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out [][]byte
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, append([]byte(nil), iter.Value()...))
	}
	return out, iter.Error()
}

// scanPrefixKeys collects all keys under a key prefix in key order.
func scanPrefixKeys(prefix string) ([]string, error) {
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}
