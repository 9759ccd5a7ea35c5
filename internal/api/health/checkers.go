package health

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteChecker checks SQLite database connectivity.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a new SQLite health checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check verifies the SQLite database is accessible.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// Pinger interface for dependencies that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks a named dependency through its Ping method. Firestore
// and Redis are checked this way.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker creates a checker reporting under name.
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: p}
}

// Name returns the checker name.
func (c *PingChecker) Name() string {
	return c.name
}

// Check verifies the dependency is reachable.
func (c *PingChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("%s not configured", c.name)
	}
	return c.pinger.Ping(ctx)
}

// ConnectionChecker reports the state of a long-lived connection, such as
// the RabbitMQ publisher.
type ConnectionChecker struct {
	name        string
	isConnected func() bool
}

// NewConnectionChecker creates a connection state checker.
func NewConnectionChecker(name string, isConnected func() bool) *ConnectionChecker {
	return &ConnectionChecker{name: name, isConnected: isConnected}
}

// Name returns the checker name.
func (c *ConnectionChecker) Name() string {
	return c.name
}

// Check fails when the connection is down.
func (c *ConnectionChecker) Check(ctx context.Context) error {
	if c.isConnected == nil || !c.isConnected() {
		return fmt.Errorf("%s not connected", c.name)
	}
	return nil
}
