package sqlfetch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/graphwalk/internal/analysis"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/sqlutil"
)

// EstimateEdge implements analysis.CardinalitySource with one grouped
// aggregate query per multi-valued edge.
func (f *Fetcher) EstimateEdge(ctx context.Context, e analysis.EdgeInfo) (analysis.CardinalityEstimate, bool, error) {
	switch e.Kind {
	case schema.KindReverseFK:
		return f.estimateReverseFK(ctx, e)
	case schema.KindReverseO2O:
		return f.estimateReverseO2O(ctx, e)
	case schema.KindM2M, schema.KindReverseM2M:
		return f.estimateM2M(ctx, e)
	case schema.KindGenericRel:
		return f.estimateGenericRel(ctx, e)
	default:
		return analysis.CardinalityEstimate{}, false, nil
	}
}

// forwardOf resolves the forward field a reverse edge inverts, by names.
func (f *Fetcher) forwardOf(sourceType, fieldName, targetType string) (*schema.RecordType, *schema.Field, error) {
	src, err := f.reg.Resolve(sourceType)
	if err != nil {
		return nil, nil, err
	}
	field, ok := src.Field(fieldName)
	if !ok || field.RemoteField == "" {
		return nil, nil, &schema.SchemaError{Type: sourceType, Field: fieldName, Reason: "reverse field declares no remote field"}
	}
	rt, err := f.reg.Resolve(targetType)
	if err != nil {
		return nil, nil, err
	}
	fwd, ok := rt.Field(field.RemoteField)
	if !ok {
		return nil, nil, &schema.SchemaError{Type: targetType, Field: field.RemoteField, Reason: "remote field is not declared on target type"}
	}
	return rt, fwd, nil
}

func (f *Fetcher) estimateReverseFK(ctx context.Context, e analysis.EdgeInfo) (analysis.CardinalityEstimate, bool, error) {
	rt, fwd, err := f.forwardOf(e.Source, e.Field, e.Target)
	if err != nil {
		return analysis.CardinalityEstimate{}, false, err
	}
	return f.groupedEstimate(ctx, e,
		rt.StorageTable(), fwd.StorageColumn(), "", nil)
}

func (f *Fetcher) estimateReverseO2O(ctx context.Context, e analysis.EdgeInfo) (analysis.CardinalityEstimate, bool, error) {
	total, err := f.Count(ctx, e.Target)
	if err != nil {
		return analysis.CardinalityEstimate{}, false, err
	}
	est := analysis.CardinalityEstimate{Edge: e, Total: total}
	if total > 0 {
		est.Avg = 1.0
		est.Max = 1
	}
	return est, true, nil
}

func (f *Fetcher) estimateM2M(ctx context.Context, e analysis.EdgeInfo) (analysis.CardinalityEstimate, bool, error) {
	var joinTable, groupColumn string

	if e.Kind == schema.KindM2M {
		src, err := f.reg.Resolve(e.Source)
		if err != nil {
			return analysis.CardinalityEstimate{}, false, err
		}
		field, ok := src.Field(e.Field)
		if !ok || field.JoinTable == "" {
			return analysis.CardinalityEstimate{}, false, nil
		}
		joinTable, groupColumn = field.JoinTable, field.SourceColumn
	} else {
		_, fwd, err := f.forwardOf(e.Source, e.Field, e.Target)
		if err != nil {
			return analysis.CardinalityEstimate{}, false, err
		}
		if fwd.JoinTable == "" {
			return analysis.CardinalityEstimate{}, false, nil
		}
		joinTable, groupColumn = fwd.JoinTable, fwd.TargetColumn
	}

	return f.groupedEstimate(ctx, e, joinTable, groupColumn, "", nil)
}

func (f *Fetcher) estimateGenericRel(ctx context.Context, e analysis.EdgeInfo) (analysis.CardinalityEstimate, bool, error) {
	rt, gfk, err := f.forwardOf(e.Source, e.Field, e.Target)
	if err != nil {
		return analysis.CardinalityEstimate{}, false, err
	}
	if gfk.Kind != schema.KindGenericFK || gfk.TypeColumn == "" {
		return analysis.CardinalityEstimate{}, false, nil
	}
	where := fmt.Sprintf("%s = ?", sqlutil.QuoteIdentifier(gfk.TypeColumn))
	return f.groupedEstimate(ctx, e,
		rt.StorageTable(), gfk.StorageColumn(), where, []any{e.Source})
}

// groupedEstimate runs the shared aggregate shape: count rows per group
// value, then take the average, maximum and total across groups.
func (f *Fetcher) groupedEstimate(ctx context.Context, e analysis.EdgeInfo, table, groupColumn, where string, args []any) (analysis.CardinalityEstimate, bool, error) {
	inner := fmt.Sprintf("SELECT COUNT(*) AS cnt FROM %s",
		sqlutil.QuoteIdentifier(table))
	if where != "" {
		inner += " WHERE " + where
	}
	inner += " GROUP BY " + sqlutil.QuoteIdentifier(groupColumn)

	query := fmt.Sprintf(
		"SELECT COALESCE(AVG(cnt), 0), COALESCE(MAX(cnt), 0), COALESCE(SUM(cnt), 0) FROM (%s) AS grouped",
		inner)

	var avg float64
	var max, total int64
	err := f.db.QueryRowContext(ctx, query, args...).Scan(&avg, &max, &total)
	if err == sql.ErrNoRows {
		return analysis.CardinalityEstimate{Edge: e}, true, nil
	}
	if err != nil {
		return analysis.CardinalityEstimate{}, false, fmt.Errorf("failed to estimate %s.%s: %w", e.Source, e.Field, err)
	}
	return analysis.CardinalityEstimate{Edge: e, Avg: avg, Max: max, Total: total}, true, nil
}
