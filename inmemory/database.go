// Package inmemory provides a process-local store backend for the execution
// engine. It keeps a versioned key-value map with optimistic concurrency:
// transactions stage their writes and record the version of every key they
// read, and commit only if none of those keys changed since. A lost race
// surfaces as a TransactionConflict, which the retry protocol resolves as
// retryable. Useful for tests, examples and embedded single-process setups.
package inmemory

import "sync"

// Database is the shared in-memory key-value state. Any number of
// Connections (and their transactions) can target the same Database.
type Database struct {
	mu      sync.Mutex
	data    map[string]entry
	version uint64
}

type entry struct {
	value   []byte
	version uint64
}

func NewDatabase() *Database {
	return &Database{data: make(map[string]entry)}
}

// Get returns the committed value of key. Meant for seeding and verifying
// state around transactions; transactional reads go through Transaction.Get.
func (db *Database) Get(key string) ([]byte, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

// Set writes key directly, outside any transaction.
func (db *Database) Set(key string, value []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.version++
	db.data[key] = entry{value: append([]byte(nil), value...), version: db.version}
}

// Len returns the number of keys currently stored.
func (db *Database) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.data)
}

// get returns the value and version of key; version 0 means absent.
func (db *Database) get(key string) ([]byte, uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.data[key]
	if !ok {
		return nil, 0
	}
	return append([]byte(nil), e.value...), e.version
}

// commit validates every recorded read against the current state and, if all
// still hold, applies the staged writes and deletes as one atomic step.
func (db *Database) commit(reads map[string]uint64, writes map[string][]byte, deletes map[string]struct{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for key, seen := range reads {
		current := uint64(0)
		if e, ok := db.data[key]; ok {
			current = e.version
		}
		if current != seen {
			return conflictError(key)
		}
	}
	db.version++
	for key, value := range writes {
		db.data[key] = entry{value: append([]byte(nil), value...), version: db.version}
	}
	for key := range deletes {
		delete(db.data, key)
	}
	return nil
}
