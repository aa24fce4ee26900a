// Package factory assembles connections from a DSN: catalog, engine,
// and store client. It is the primary entry point for applications.
package factory

import (
	"context"

	"go.uber.org/zap"

	"github.com/golem-base/golemsql"
	"github.com/golem-base/golemsql/internal"
	"github.com/golem-base/golemsql/internal/rpc"
)

// Option customizes Connect.
type Option func(*options)

type options struct {
	config *golemsql.Config
	logger *zap.Logger
	client golemsql.EntityClient
}

// WithConfig replaces the default tunables. Connection parameters
// from the DSN always win over cfg.Connection.
func WithConfig(cfg *golemsql.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger injects a structured logger; the default is a nop.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClient injects a backing-store client, replacing the JSON-RPC
// client built from the DSN. Tests and dry-run tooling pass
// internal memory stores here.
func WithClient(client golemsql.EntityClient) Option {
	return func(o *options) { o.client = client }
}

// Connect parses the DSN, loads the schema catalog for its schema_id,
// and wires the execution engine. The backing store is not contacted
// until the first statement that needs it.
func Connect(_ context.Context, dsn string, opts ...Option) (*golemsql.Connection, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if cfg == nil {
		cfg = golemsql.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	connCfg, err := golemsql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.Connection = connCfg

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := o.client
	if client == nil {
		client = rpc.NewClient(connCfg.RPCURL, connCfg.PrivateKey, logger)
	}

	catalog, err := internal.NewCatalog(cfg.Catalog, connCfg.SchemaID, logger)
	if err != nil {
		return nil, err
	}
	engine := internal.NewEngine(client, catalog, cfg, logger)

	logger.Info("connection opened",
		zap.String("app_id", connCfg.AppID),
		zap.String("schema_id", connCfg.SchemaID),
		zap.String("catalog", catalog.Path()))
	return golemsql.NewConnection(cfg, client, engine, logger), nil
}
