// Package eventstore implements the event document store: the
// jsonb-table stand-in for the search-engine index the correlator's
// document side would normally run against. Callers never join this store
// against the relational tables; every failure is classified so the
// dispatcher can tell a permanent condition from a retryable one.
package eventstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors every Store implementation must surface via errors.Is.
var (
	ErrNotFound  = errors.New("eventstore: document not found")
	ErrConflict  = errors.New("eventstore: version conflict")
	ErrTransient = errors.New("eventstore: transient failure")
)

// OpType mirrors a create-vs-upsert distinction for Index calls.
type OpType string

const (
	OpCreate OpType = "create"
	OpIndex  OpType = "index"
)

// Document is a single event document: its location plus its fields.
type Document struct {
	Index string
	ID    string
	Src   map[string]any
}

// Clause is one leaf of a bool query.
type Clause struct {
	Field  string
	Op     ClauseOp
	Value  any
	Values []any // for Op == OpTerms
}

// ClauseOp enumerates the predicate kinds a Query clause can express.
type ClauseOp string

const (
	OpTerm   ClauseOp = "term"
	OpTerms  ClauseOp = "terms"
	OpRange  ClauseOp = "range_lte" // Value is the upper bound
	OpExists ClauseOp = "exists"
)

// SortField orders search results.
type SortField struct {
	Field      string
	Descending bool
}

// ResponseShape controls how Search packages its results. There are three
// shapes (list, first, exactly_one); no raw-response shape is offered.
type ResponseShape string

const (
	ResponseList       ResponseShape = "list"
	ResponseFirst      ResponseShape = "first"
	ResponseExactlyOne ResponseShape = "exactly_one"
)

// Query describes a bool search against one index.
type Query struct {
	Index              string
	Must               []Clause
	MustNot            []Clause
	Sort               []SortField
	Size               int
	Response           ResponseShape
	MinimumShouldMatch int
}

// SearchResult is what Search returns; which fields are populated depends on
// Query.Response.
type SearchResult struct {
	Total int
	Hits  []Document
}

// BulkOp is one operation in a Bulk call.
type BulkOp struct {
	Index   string
	ID      string
	Partial map[string]any
}

// Store is the document-store contract every correlator task is written
// against. Implementations must never block indefinitely; every method
// takes a context and should respect its deadline.
type Store interface {
	Get(ctx context.Context, index, id string) (*Document, error)
	Search(ctx context.Context, q Query) (*SearchResult, error)
	Update(ctx context.Context, index, id string, partial map[string]any) error
	Bulk(ctx context.Context, ops []BulkOp) error
	Index(ctx context.Context, index, id string, doc map[string]any, opType OpType) error
}

// wrap prefixes err with the operation name, keeping the wrapped chain (and
// any sentinel classify attached) visible to errors.Is.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
