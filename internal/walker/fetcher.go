package walker

import (
	"context"
	"fmt"

	"github.com/dbsmedya/graphwalk/internal/classify"
	"github.com/dbsmedya/graphwalk/internal/schema"
)

// Fetcher is the batched fetch boundary the traversal engine depends on.
//
// FetchRelated resolves one edge for an entire frontier partition in a
// single logical operation: given a non-empty batch of source records (all
// of the edge's source type) it returns the related target records grouped
// by source key. This is the scaling contract — the walker issues exactly
// one FetchRelated call per distinct (type, edge) pair per BFS level,
// independent of batch size.
//
// Result ordering per parent must be the natural fetch order of the
// backend; Follow limits truncate in that order.
type Fetcher interface {
	FetchRelated(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error)
}

// FetchError reports a batched fetch failure. It is fatal to the walk in
// progress: partial levels are never committed and no retry is attempted.
type FetchError struct {
	Type  string // source type of the failing batch
	Field string // edge field being resolved
	Err   error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s.%s: %v", e.Type, e.Field, e.Err)
}

// Unwrap returns the underlying fetch error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
