package golemsql

import (
	"net/url"
	"strings"
	"time"
)

// ConnectionConfig carries the five required connection-string
// parameters. All are mandatory; a DSN missing any of them is rejected
// with an InterfaceError.
type ConnectionConfig struct {
	RPCURL     string `json:"rpcUrl"`
	WSURL      string `json:"wsUrl"`
	PrivateKey string `json:"privateKey"` // hex, no 0x prefix required
	AppID      string `json:"appId"`      // tenant prefix
	SchemaID   string `json:"schemaId"`   // catalog file key
}

// QueryConfig contains execution settings for store round-trips.
type QueryConfig struct {
	Timeout        time.Duration `json:"timeout"`
	MaxReadRetries int           `json:"maxReadRetries"`
	RetryBaseDelay time.Duration `json:"retryBaseDelay"`
	PageLimit      int           `json:"pageLimit"` // validated as positive; the engine does not read it
	MaxFetchSize   int           `json:"maxFetchSize"`
}

// CatalogConfig controls where schema files are persisted. An empty
// Dir resolves to <user-config-dir>/golembase/schemas.
type CatalogConfig struct {
	Dir        string `json:"dir"`
	DefaultTTL uint64 `json:"defaultTtl"` // blocks, applied when DDL gives none
}

// Config consolidates adapter settings.
type Config struct {
	Connection ConnectionConfig `json:"connection"`
	Query      QueryConfig      `json:"query"`
	Catalog    CatalogConfig    `json:"catalog"`
}

// DefaultConfig returns the default configuration. Connection
// parameters have no defaults; they must come from a DSN.
func DefaultConfig() *Config {
	return &Config{
		Query: QueryConfig{
			Timeout:        30 * time.Second,
			MaxReadRetries: 3,
			RetryBaseDelay: 100 * time.Millisecond,
			PageLimit:      1000,
			MaxFetchSize:   10000,
		},
		Catalog: CatalogConfig{
			DefaultTTL: 1000,
		},
	}
}

// Validate checks tunables for sanity.
func (c *Config) Validate() error {
	if c.Query.Timeout <= 0 {
		return NewInterfaceError(ErrCodeInvalidDSN, "query timeout must be positive")
	}
	if c.Query.MaxReadRetries < 0 {
		return NewInterfaceError(ErrCodeInvalidDSN, "max read retries must not be negative")
	}
	if c.Query.PageLimit <= 0 {
		return NewInterfaceError(ErrCodeInvalidDSN, "page limit must be positive")
	}
	return nil
}

// requiredDSNParams in reporting order.
var requiredDSNParams = []string{"rpc_url", "ws_url", "private_key", "app_id", "schema_id"}

// ParseDSN parses a connection string of the form
//
//	golembase://?rpc_url=...&ws_url=...&private_key=...&app_id=...&schema_id=...
//
// A bare query string without the scheme is also accepted. Every
// parameter is required.
func ParseDSN(dsn string) (ConnectionConfig, error) {
	var cc ConnectionConfig

	raw := strings.TrimSpace(dsn)
	if raw == "" {
		return cc, NewInterfaceError(ErrCodeInvalidDSN, "empty connection string")
	}

	var values url.Values
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return cc, NewInterfaceError(ErrCodeInvalidDSN, "malformed connection string").WithCause(err)
		}
		values = u.Query()
	} else {
		v, err := url.ParseQuery(raw)
		if err != nil {
			return cc, NewInterfaceError(ErrCodeInvalidDSN, "malformed connection string").WithCause(err)
		}
		values = v
	}

	var missing []string
	for _, key := range requiredDSNParams {
		if values.Get(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return cc, NewInterfaceError(ErrCodeMissingParameter,
			"connection string missing required parameter(s): %s", strings.Join(missing, ", "))
	}

	cc.RPCURL = values.Get("rpc_url")
	cc.WSURL = values.Get("ws_url")
	cc.PrivateKey = strings.TrimPrefix(values.Get("private_key"), "0x")
	cc.AppID = values.Get("app_id")
	cc.SchemaID = values.Get("schema_id")
	return cc, nil
}
