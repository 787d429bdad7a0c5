package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/axonkv/axon"
)

// Connection is a store connection bound to one Database. Connections are
// cheap; the executor typically pools several over the same Database.
type Connection struct {
	db     *Database
	mu     sync.Mutex
	closed bool
}

// OpenConnection opens a connection to db.
func OpenConnection(db *Database) (*Connection, error) {
	if db == nil {
		return nil, axon.Error{Code: axon.ConnectionFailure, Err: fmt.Errorf("no database to connect to")}
	}
	return &Connection{db: db}, nil
}

// Opener returns an axon.OpenConnectionFunc bound to db, for executor Init.
func Opener(db *Database) axon.OpenConnectionFunc {
	return func(ctx context.Context) (axon.Connection, error) {
		return OpenConnection(db)
	}
}

func (c *Connection) CreateTransaction() (axon.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("connection is closed, 'can't create transaction")
	}
	return newTransaction(c.db), nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
