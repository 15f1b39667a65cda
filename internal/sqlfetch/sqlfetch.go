// Package sqlfetch implements the traversal fetch boundary against a
// MySQL database. Every edge kind resolves to one batched query shape
// built around an IN clause over the frontier's primary keys, chunked to
// the configured batch size.
package sqlfetch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbsmedya/graphwalk/internal/classify"
	"github.com/dbsmedya/graphwalk/internal/logger"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/sqlutil"
)

// Fetcher resolves classified edges with batched SQL queries.
type Fetcher struct {
	db        *sql.DB
	reg       *schema.Registry
	batchSize int
	log       *logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBatchSize bounds the number of values per IN clause. Larger
// frontiers are resolved in multiple chunked queries.
func WithBatchSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithLogger sets the fetcher's logger.
func WithLogger(log *logger.Logger) Option {
	return func(f *Fetcher) { f.log = log }
}

// New creates a Fetcher over an open database connection.
func New(db *sql.DB, reg *schema.Registry, opts ...Option) *Fetcher {
	f := &Fetcher{
		db:        db,
		reg:       reg,
		batchSize: 1000,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.NewDefault()
	}
	return f
}

// FetchRelated resolves one edge for the whole batch. See the interface
// contract in the walker package.
func (f *Fetcher) FetchRelated(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	switch edge.Kind {
	case schema.KindFK, schema.KindO2O:
		return f.fetchForward(ctx, batch, edge)
	case schema.KindGenericFK:
		return f.fetchGenericForward(ctx, batch, edge)
	case schema.KindReverseFK, schema.KindReverseO2O:
		return f.fetchReverse(ctx, batch, edge)
	case schema.KindM2M:
		return f.fetchM2M(ctx, batch, edge)
	case schema.KindReverseM2M:
		return f.fetchReverseM2M(ctx, batch, edge)
	case schema.KindGenericRel:
		return f.fetchGenericReverse(ctx, batch, edge)
	default:
		return nil, fmt.Errorf("edge %s.%s has non-relational kind %s", edge.Source.Name, edge.Field, edge.Kind)
	}
}

// Load fetches full records of one type by primary key, preserving the
// requested order. Missing pks are skipped. Used to resolve walk roots.
func (f *Fetcher) Load(ctx context.Context, typeName string, pks []any) ([]*schema.Record, error) {
	normalized := make([]any, len(pks))
	for i, pk := range pks {
		normalized[i] = normalize(pk)
	}
	loaded, err := f.loadByPK(ctx, typeName, dedup(normalized))
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Record, 0, len(loaded))
	for _, pk := range normalized {
		if rec, ok := loaded[pk]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Count returns the row count of one type's table. Used by fan-out
// analysis to weigh schema findings with live cardinalities.
func (f *Fetcher) Count(ctx context.Context, typeName string) (int64, error) {
	rt, err := f.reg.Resolve(typeName)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", sqlutil.QuoteIdentifier(rt.StorageTable()))
	var n int64
	if err := f.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", typeName, err)
	}
	return n, nil
}

// fetchForward resolves fk/o2o edges: load target rows whose pk appears
// in the parents' reference columns, then group by parent.
func (f *Fetcher) fetchForward(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	var pks []any
	seen := make(map[any]bool)
	for _, parent := range batch {
		pk := normalize(parent.Ref(edge.Field))
		if pk == nil || seen[pk] {
			continue
		}
		seen[pk] = true
		pks = append(pks, pk)
	}

	loaded, err := f.loadByPK(ctx, edge.Target, pks)
	if err != nil {
		return nil, err
	}

	out := make(map[schema.Key][]*schema.Record)
	for _, parent := range batch {
		pk := normalize(parent.Ref(edge.Field))
		if pk == nil {
			continue
		}
		if rec, ok := loaded[pk]; ok {
			out[parent.Key()] = append(out[parent.Key()], rec)
		}
	}
	return out, nil
}

// fetchGenericForward resolves generic_fk edges. Parents are grouped by
// the concrete target type carried on each record, one batched load per
// distinct type.
func (f *Fetcher) fetchGenericForward(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	byType := make(map[string][]any)
	var typeOrder []string
	for _, parent := range batch {
		ref, ok := parent.GenericTarget(edge.Field)
		if !ok || !f.reg.Has(ref.Type) {
			continue
		}
		if _, seen := byType[ref.Type]; !seen {
			typeOrder = append(typeOrder, ref.Type)
		}
		byType[ref.Type] = append(byType[ref.Type], normalize(ref.PK))
	}

	loaded := make(map[string]map[any]*schema.Record, len(byType))
	for _, typeName := range typeOrder {
		recs, err := f.loadByPK(ctx, typeName, dedup(byType[typeName]))
		if err != nil {
			return nil, err
		}
		loaded[typeName] = recs
	}

	out := make(map[schema.Key][]*schema.Record)
	for _, parent := range batch {
		ref, ok := parent.GenericTarget(edge.Field)
		if !ok {
			continue
		}
		if rec, found := loaded[ref.Type][normalize(ref.PK)]; found {
			out[parent.Key()] = append(out[parent.Key()], rec)
		}
	}
	return out, nil
}

// fetchReverse resolves reverse_fk/reverse_o2o edges: load target rows
// whose foreign key column points at a frontier pk.
func (f *Fetcher) fetchReverse(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	targetType, fkField, err := f.remoteForward(edge)
	if err != nil {
		return nil, err
	}

	fkColumn := fkField.StorageColumn()
	parents := parentsByPK(batch)
	out := make(map[schema.Key][]*schema.Record)

	for _, chunk := range sqlutil.Chunk(parentPKs(batch), f.batchSize) {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s",
			f.columnList(targetType),
			sqlutil.QuoteIdentifier(targetType.StorageTable()),
			sqlutil.QuoteIdentifier(fkColumn),
			sqlutil.Placeholders(len(chunk)),
			sqlutil.QuoteIdentifier(targetType.PKColumn()),
		)
		if err := f.queryInto(ctx, targetType, query, chunk, func(rec *schema.Record) {
			if parent, ok := parents[normalize(rec.Ref(fkField.Name))]; ok {
				out[parent.Key()] = append(out[parent.Key()], rec)
			}
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fetchM2M resolves forward m2m edges: read the join table for the
// frontier's pks, then load the linked target rows.
func (f *Fetcher) fetchM2M(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	field, ok := edge.Source.Field(edge.Field)
	if !ok || field.JoinTable == "" {
		return nil, &schema.SchemaError{Type: edge.Source.Name, Field: edge.Field, Reason: "m2m field declares no join table"}
	}
	return f.fetchThroughJoin(ctx, batch, edge.Target,
		field.JoinTable, field.SourceColumn, field.TargetColumn)
}

// fetchReverseM2M resolves reverse m2m edges through the forward side's
// join table with the column roles swapped.
func (f *Fetcher) fetchReverseM2M(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	targetType, fwd, err := f.remoteForward(edge)
	if err != nil {
		return nil, err
	}
	if fwd.JoinTable == "" {
		return nil, &schema.SchemaError{Type: targetType.Name, Field: fwd.Name, Reason: "m2m field declares no join table"}
	}
	return f.fetchThroughJoin(ctx, batch, edge.Target,
		fwd.JoinTable, fwd.TargetColumn, fwd.SourceColumn)
}

// fetchThroughJoin reads link rows where parentColumn holds a frontier pk
// and relatedColumn holds the pk of the record to load.
func (f *Fetcher) fetchThroughJoin(ctx context.Context, batch []*schema.Record, targetName, joinTable, parentColumn, relatedColumn string) (map[schema.Key][]*schema.Record, error) {
	type link struct {
		parentPK  any
		relatedPK any
	}
	var links []link
	relatedSet := make(map[any]bool)

	for _, chunk := range sqlutil.Chunk(parentPKs(batch), f.batchSize) {
		query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY %s, %s",
			sqlutil.QuoteIdentifier(parentColumn),
			sqlutil.QuoteIdentifier(relatedColumn),
			sqlutil.QuoteIdentifier(joinTable),
			sqlutil.QuoteIdentifier(parentColumn),
			sqlutil.Placeholders(len(chunk)),
			sqlutil.QuoteIdentifier(parentColumn),
			sqlutil.QuoteIdentifier(relatedColumn),
		)
		rows, err := f.db.QueryContext(ctx, query, chunk...)
		if err != nil {
			return nil, fmt.Errorf("failed to read join table %s: %w", joinTable, err)
		}
		for rows.Next() {
			var parentPK, relatedPK any
			if err := rows.Scan(&parentPK, &relatedPK); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan join table %s: %w", joinTable, err)
			}
			parentPK, relatedPK = normalize(parentPK), normalize(relatedPK)
			links = append(links, link{parentPK: parentPK, relatedPK: relatedPK})
			relatedSet[relatedPK] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating join table %s: %w", joinTable, err)
		}
		rows.Close()
	}

	relatedPKs := make([]any, 0, len(relatedSet))
	for _, l := range links {
		if relatedSet[l.relatedPK] {
			relatedPKs = append(relatedPKs, l.relatedPK)
			delete(relatedSet, l.relatedPK)
		}
	}

	loaded, err := f.loadByPK(ctx, targetName, relatedPKs)
	if err != nil {
		return nil, err
	}

	parents := parentsByPK(batch)
	out := make(map[schema.Key][]*schema.Record)
	for _, l := range links {
		parent, ok := parents[l.parentPK]
		if !ok {
			continue
		}
		if rec, found := loaded[l.relatedPK]; found {
			out[parent.Key()] = append(out[parent.Key()], rec)
		}
	}
	return out, nil
}

// fetchGenericReverse resolves generic_rel edges: load target rows whose
// generic reference names the frontier's type and one of its pks.
func (f *Fetcher) fetchGenericReverse(ctx context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	targetType, gfk, err := f.remoteForward(edge)
	if err != nil {
		return nil, err
	}
	if gfk.Kind != schema.KindGenericFK || gfk.TypeColumn == "" {
		return nil, &schema.SchemaError{Type: targetType.Name, Field: gfk.Name, Reason: "remote field is not a generic reference"}
	}

	parents := parentsByPK(batch)
	out := make(map[schema.Key][]*schema.Record)

	for _, chunk := range sqlutil.Chunk(parentPKs(batch), f.batchSize) {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s IN (%s) ORDER BY %s",
			f.columnList(targetType),
			sqlutil.QuoteIdentifier(targetType.StorageTable()),
			sqlutil.QuoteIdentifier(gfk.TypeColumn),
			sqlutil.QuoteIdentifier(gfk.StorageColumn()),
			sqlutil.Placeholders(len(chunk)),
			sqlutil.QuoteIdentifier(targetType.PKColumn()),
		)
		args := append([]any{edge.Source.Name}, chunk...)
		if err := f.queryInto(ctx, targetType, query, args, func(rec *schema.Record) {
			ref, ok := rec.GenericTarget(gfk.Name)
			if !ok {
				return
			}
			if parent, found := parents[normalize(ref.PK)]; found {
				out[parent.Key()] = append(out[parent.Key()], rec)
			}
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// remoteForward resolves the forward field a reverse edge inverts: the
// target type and its declared field named by the reverse side's remote
// field.
func (f *Fetcher) remoteForward(edge classify.Edge) (*schema.RecordType, *schema.Field, error) {
	field, ok := edge.Source.Field(edge.Field)
	if !ok || field.RemoteField == "" {
		return nil, nil, &schema.SchemaError{
			Type:   edge.Source.Name,
			Field:  edge.Field,
			Reason: "reverse field declares no remote field",
		}
	}
	rt, err := f.reg.Resolve(edge.Target)
	if err != nil {
		return nil, nil, err
	}
	fwd, ok := rt.Field(field.RemoteField)
	if !ok {
		return nil, nil, &schema.SchemaError{
			Type:   rt.Name,
			Field:  field.RemoteField,
			Reason: "remote field is not declared on target type",
		}
	}
	return rt, fwd, nil
}

// loadByPK loads full records of one type for the given pks, chunked.
func (f *Fetcher) loadByPK(ctx context.Context, typeName string, pks []any) (map[any]*schema.Record, error) {
	out := make(map[any]*schema.Record, len(pks))
	if len(pks) == 0 {
		return out, nil
	}

	rt, err := f.reg.Resolve(typeName)
	if err != nil {
		return nil, err
	}

	for _, chunk := range sqlutil.Chunk(pks, f.batchSize) {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s",
			f.columnList(rt),
			sqlutil.QuoteIdentifier(rt.StorageTable()),
			sqlutil.QuoteIdentifier(rt.PKColumn()),
			sqlutil.Placeholders(len(chunk)),
			sqlutil.QuoteIdentifier(rt.PKColumn()),
		)
		if err := f.queryInto(ctx, rt, query, chunk, func(rec *schema.Record) {
			out[rec.PK] = rec
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// selectColumns returns the scanned columns of a type in a fixed order:
// pk, value fields, forward reference columns (type column after the id
// column for generic references).
func selectColumns(rt *schema.RecordType) []string {
	cols := []string{rt.PKColumn()}
	for i := range rt.Fields {
		f := &rt.Fields[i]
		switch f.Kind {
		case schema.KindValue, schema.KindFK, schema.KindO2O:
			cols = append(cols, f.StorageColumn())
		case schema.KindGenericFK:
			cols = append(cols, f.StorageColumn(), f.TypeColumn)
		}
	}
	return cols
}

func (f *Fetcher) columnList(rt *schema.RecordType) string {
	cols := selectColumns(rt)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sqlutil.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// queryInto runs a record query and invokes visit per scanned record, in
// row order.
func (f *Fetcher) queryInto(ctx context.Context, rt *schema.RecordType, query string, args []any, visit func(*schema.Record)) error {
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to fetch %s records: %w", rt.Name, err)
	}
	defer rows.Close()

	ncols := len(selectColumns(rt))
	for rows.Next() {
		values := make([]any, ncols)
		dest := make([]any, ncols)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan %s record: %w", rt.Name, err)
		}
		visit(buildRecord(rt, values))
	}
	return rows.Err()
}

// buildRecord maps one scanned row onto a Record, following the column
// order of selectColumns.
func buildRecord(rt *schema.RecordType, values []any) *schema.Record {
	rec := schema.NewRecord(rt, normalize(values[0]))
	i := 1
	for fi := range rt.Fields {
		f := &rt.Fields[fi]
		switch f.Kind {
		case schema.KindValue:
			rec.SetValue(f.Name, normalize(values[i]))
			i++
		case schema.KindFK, schema.KindO2O:
			if pk := normalize(values[i]); pk != nil {
				rec.SetRef(f.Name, pk)
			}
			i++
		case schema.KindGenericFK:
			pk := normalize(values[i])
			typeName, _ := normalize(values[i+1]).(string)
			if pk != nil && typeName != "" {
				rec.SetGenericRef(f.Name, typeName, pk)
			}
			i += 2
		}
	}
	return rec
}

// normalize converts driver values to the canonical pk/value forms used
// for grouping: []byte becomes string, integer widths collapse to int64.
func normalize(v any) any {
	switch n := v.(type) {
	case []byte:
		return string(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return v
}

func parentPKs(batch []*schema.Record) []any {
	pks := make([]any, 0, len(batch))
	for _, rec := range batch {
		pks = append(pks, normalize(rec.PK))
	}
	return pks
}

func parentsByPK(batch []*schema.Record) map[any]*schema.Record {
	m := make(map[any]*schema.Record, len(batch))
	for _, rec := range batch {
		m[normalize(rec.PK)] = rec
	}
	return m
}

func dedup(values []any) []any {
	seen := make(map[any]bool, len(values))
	var out []any
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
