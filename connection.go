package golemsql

import (
	"sync"

	"go.uber.org/zap"
)

// Connection is one adapter session over a store client. Cursors
// created from one connection share it; statements within one cursor
// complete in submission order, and nothing is promised across
// cursors — confine DDL to a single administrative session.
type Connection struct {
	cfg      *Config
	logger   *zap.Logger
	client   EntityClient
	executor StatementExecutor

	mu     sync.Mutex
	closed bool
}

// NewConnection assembles a connection from its parts. Applications
// normally call factory.Connect, which builds the catalog, engine,
// and store client from a DSN.
func NewConnection(cfg *Config, client EntityClient, executor StatementExecutor, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		executor: executor,
	}
}

// Config returns the connection's configuration.
func (c *Connection) Config() *Config {
	return c.cfg
}

// Client returns the underlying store client.
func (c *Connection) Client() EntityClient {
	return c.client
}

// Cursor opens a new cursor on the connection.
func (c *Connection) Cursor() (*Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, NewInterfaceError(ErrCodeConnectionClosed, "connection is closed")
	}
	return &Cursor{conn: c}, nil
}

// Close marks the connection closed. Execute on an open cursor then
// fails; a cursor's current result set can still be fetched.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.logger.Info("connection closed",
			zap.String("app_id", c.cfg.Connection.AppID),
			zap.String("schema_id", c.cfg.Connection.SchemaID))
	}
	return nil
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
