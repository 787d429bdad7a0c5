// Package cassandra implements a store backend over a Cassandra cluster.
// Values live in a single key-value table auto-created at connection open;
// transactions stage writes into a logged batch executed at commit.
package cassandra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/axonkv/axon"
)

// Config contains configuration for connecting to a Cassandra cluster and the
// axon keyspace.
type Config struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string
	// Keyspace is the keyspace holding the key-value table.
	Keyspace string
	// Consistency is the default consistency level for queries.
	Consistency gocql.Consistency
	// ConnectionTimeout is the session connection timeout.
	ConnectionTimeout time.Duration
	// Authenticator is used when the cluster requires authentication.
	Authenticator gocql.Authenticator
	// ReplicationClause defines the keyspace replication (e.g., SimpleStrategy).
	ReplicationClause string
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config

	mu     sync.Mutex
	closed bool
}

// OpenConnection opens one session to the cluster, creating the keyspace and
// the key-value table if they do not exist yet.
func OpenConnection(config Config) (*Connection, error) {
	if config.Keyspace == "" {
		// default keyspace
		config.Keyspace = "axon"
	}
	if config.Consistency == gocql.Any {
		// Defaults to LocalQuorum consistency. You should set it to an appropriate level.
		config.Consistency = gocql.LocalQuorum
	}
	if config.ReplicationClause == "" {
		// Specify an appropriate replication feature.
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
		// Clear the authenticator just to be safer, we don't need to keep it hanging around.
		config.Authenticator = nil
	}
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, axon.Error{Code: axon.ConnectionFailure, Err: err}
	}
	if err := s.Query(fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;",
		config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		s.Close()
		return nil, axon.Error{Code: axon.ConnectionFailure, Err: err}
	}
	if err := s.Query(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.kv (key text PRIMARY KEY, value blob);",
		config.Keyspace)).Exec(); err != nil {
		s.Close()
		return nil, axon.Error{Code: axon.ConnectionFailure, Err: err}
	}
	return &Connection{Session: s, Config: config}, nil
}

// Opener returns an axon.OpenConnectionFunc bound to config, for executor Init.
func Opener(config Config) axon.OpenConnectionFunc {
	return func(ctx context.Context) (axon.Connection, error) {
		return OpenConnection(config)
	}
}

func (c *Connection) CreateTransaction() (axon.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, axon.Error{Code: axon.ConnectionFailure, Err: fmt.Errorf("connection is closed, 'can't create transaction")}
	}
	return newTransaction(c), nil
}

// Close the connection's session.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.Session.Close()
	return nil
}
