package golemsql

import (
	"context"
)

// Entity is the backing store's atomic unit: opaque payload bytes, a
// block time-to-live, and two maps of queryable typed annotations.
type Entity struct {
	Payload            []byte            `json:"payload"`
	BTL                uint64            `json:"btl"`
	StringAnnotations  map[string]string `json:"stringAnnotations"`
	NumericAnnotations map[string]uint64 `json:"numericAnnotations"`
}

// EntityUpdate replaces an existing entity's payload, annotations, and
// TTL under its key.
type EntityUpdate struct {
	Key string `json:"entityKey"`
	Entity
}

// Receipt acknowledges a create, update, or delete.
type Receipt struct {
	Key             string `json:"entityKey"`
	ExpirationBlock uint64 `json:"expirationBlock"`
}

// QueryResult is one entity matched by a predicate query.
type QueryResult struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// EntityClient is the asynchronous RPC surface of the backing store.
// All operations suspend at the call; nothing else in the adapter
// blocks. Implementations must honor context cancellation, and callers
// must treat a cancelled batch write as "unknown" — the store offers
// no atomicity across a batch.
type EntityClient interface {
	CreateEntities(ctx context.Context, entities []Entity) ([]Receipt, error)
	UpdateEntities(ctx context.Context, updates []EntityUpdate) ([]Receipt, error)
	DeleteEntities(ctx context.Context, keys []string) ([]Receipt, error)
	QueryEntities(ctx context.Context, predicate string) ([]QueryResult, error)
	GetAccountAddress(ctx context.Context) (string, error)
}

// Reserved annotation keys and values used by the row encoding.
const (
	AnnotationRowType  = "row_type"
	AnnotationRelation = "relation"
	AnnotationRowKey   = "row_key"
	AnnotationNext     = "next"

	RowTypeJSON    = "json"
	RowTypeCounter = "counter"

	IndexAnnotationPrefix = "idx_"
)
