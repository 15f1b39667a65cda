// Package walker implements the batched breadth-first traversal engine and
// its result container. Starting from root records it discovers every
// record transitively reachable through in-scope relationships, with query
// count per BFS level proportional to the number of distinct (type, edge)
// pairs in that level rather than the number of records.
package walker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/graphwalk/internal/classify"
	"github.com/dbsmedya/graphwalk/internal/logger"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

// Walker traverses the record graph according to a scope spec.
//
// Traversal is level-order BFS: each level's frontier is partitioned by
// record type, every traversable edge of a partition is resolved for the
// whole partition in one batched fetch, and newly discovered records form
// the next frontier. Deduplication by (type, pk) guarantees termination on
// cyclic data.
type Walker struct {
	spec     *scope.Spec
	reg      *schema.Registry
	fetcher  Fetcher
	log      *logger.Logger
	parallel int
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the walker's logger. Defaults to the package default.
func WithLogger(log *logger.Logger) Option {
	return func(w *Walker) { w.log = log }
}

// WithParallelFetches bounds the number of concurrent batched fetches
// inside one BFS level. Values below 1 disable intra-level parallelism.
func WithParallelFetches(n int) Option {
	return func(w *Walker) { w.parallel = n }
}

// New creates a Walker for the given spec, registry and fetch backend.
func New(spec *scope.Spec, reg *schema.Registry, fetcher Fetcher, opts ...Option) *Walker {
	w := &Walker{
		spec:     spec,
		reg:      reg,
		fetcher:  fetcher,
		parallel: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.NewDefault()
	}
	return w
}

// fetchTask is one batched fetch of a level: resolve edge for batch.
type fetchTask struct {
	rt    *schema.RecordType
	batch []*schema.Record
	edge  classify.Edge
}

// Walk traverses the graph from one or more root records and returns the
// collected result. wctx is the opaque caller context passed to override
// filters; it may be nil.
//
// Roots whose type is out of scope are skipped with a warning. A fetch
// failure aborts the whole walk: partial levels are never committed.
func (w *Walker) Walk(ctx context.Context, wctx scope.Ctx, roots ...*schema.Record) (*Result, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("walk requires at least one root record")
	}

	log := w.log.WithWalk(uuid.NewString())
	startTime := time.Now()
	cache := classify.NewCache(w.spec, w.reg)
	result := newResult()

	var frontier []*schema.Record
	for _, root := range roots {
		if !w.spec.Contains(root.Type.Name) {
			log.Warnf("Root record %s is of type %s which is not in scope, skipping",
				root.Key(), root.Type.Name)
			continue
		}
		if result.insert(root) {
			frontier = append(frontier, root)
		}
	}

	level := 0
	for len(frontier) > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("walk interrupted at level %d: %w", level, ctx.Err())
		default:
		}

		tasks, err := w.levelTasks(cache, frontier)
		if err != nil {
			return nil, err
		}

		log.WithLevel(level).Debugf("Resolving %d batched fetches for %d frontier records",
			len(tasks), len(frontier))

		fetched, err := w.runFetches(ctx, tasks)
		if err != nil {
			return nil, err
		}

		// Single-writer merge: all fetches of the level have completed, so
		// insertion order and at-most-once admission are decided here in
		// deterministic task order.
		var next []*schema.Record
		for i, task := range tasks {
			admitted := w.admit(task, fetched[i], wctx, result)
			next = append(next, admitted...)
		}

		frontier = next
		level++
	}

	result.freeze()
	log.Infof("Walk complete: %d records across %d types in %d levels, duration: %s",
		result.InstanceCount(), result.TypeCount(), level, time.Since(startTime))

	return result, nil
}

// levelTasks partitions the frontier by type and expands each partition
// into one task per traversable edge.
func (w *Walker) levelTasks(cache *classify.Cache, frontier []*schema.Record) ([]fetchTask, error) {
	byType := make(map[string][]*schema.Record)
	var typeOrder []string
	for _, rec := range frontier {
		name := rec.Type.Name
		if _, seen := byType[name]; !seen {
			typeOrder = append(typeOrder, name)
		}
		byType[name] = append(byType[name], rec)
	}

	var tasks []fetchTask
	for _, name := range typeOrder {
		batch := byType[name]
		rt := batch[0].Type
		edges, err := cache.Edges(rt)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if !classify.Traversable(edge, w.spec) {
				continue
			}
			tasks = append(tasks, fetchTask{rt: rt, batch: batch, edge: edge})
		}
	}
	return tasks, nil
}

// runFetches executes the level's batched fetches, in parallel when
// configured. Results are collected per task; nothing is merged until all
// fetches of the level have completed.
func (w *Walker) runFetches(ctx context.Context, tasks []fetchTask) ([]map[schema.Key][]*schema.Record, error) {
	results := make([]map[schema.Key][]*schema.Record, len(tasks))

	if w.parallel <= 1 {
		for i, task := range tasks {
			related, err := w.fetcher.FetchRelated(ctx, task.batch, task.edge)
			if err != nil {
				return nil, &FetchError{Type: task.rt.Name, Field: task.edge.Field, Err: err}
			}
			results[i] = related
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for i, task := range tasks {
		g.Go(func() error {
			related, err := w.fetcher.FetchRelated(gctx, task.batch, task.edge)
			if err != nil {
				return &FetchError{Type: task.rt.Name, Field: task.edge.Field, Err: err}
			}
			results[i] = related
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// admit applies override resolution to one task's candidates and inserts
// the survivors, returning the records that join the next frontier.
func (w *Walker) admit(task fetchTask, related map[schema.Key][]*schema.Record, wctx scope.Ctx, result *Result) []*schema.Record {
	follow, _ := w.followOverride(task)

	var next []*schema.Record
	for _, parent := range task.batch {
		candidates := related[parent.Key()]
		if len(candidates) == 0 {
			continue
		}

		if follow != nil && follow.Filter != nil {
			filtered := candidates[:0:0]
			for _, cand := range candidates {
				if follow.Filter(wctx, cand) {
					filtered = append(filtered, cand)
				}
			}
			candidates = filtered
		}
		// Limit truncates per parent, preserving fetch order.
		if follow != nil && follow.Limit > 0 && len(candidates) > follow.Limit {
			candidates = candidates[:follow.Limit]
		}

		for _, cand := range candidates {
			// Late-bound edges carry no static target type: membership is
			// decided per resolved record. Statically in-scope edges can
			// still surface out-of-scope records from a misbehaving
			// fetcher, so the check applies uniformly.
			if !w.spec.Contains(cand.Type.Name) {
				continue
			}
			if result.insert(cand) {
				next = append(next, cand)
			}
		}
	}
	return next
}

// followOverride returns the Follow override for a task's edge, if any.
func (w *Walker) followOverride(task fetchTask) (*scope.Follow, bool) {
	ov, ok := w.spec.Override(task.rt.Name, task.edge.Field)
	if !ok {
		return nil, false
	}
	follow, ok := ov.(scope.Follow)
	if !ok {
		return nil, false
	}
	return &follow, true
}
