package sqlfetch

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/graphwalk/internal/analysis"
	"github.com/dbsmedya/graphwalk/internal/schema"
)

func TestEstimateEdge_ReverseFK(t *testing.T) {
	reg := cmsRegistry()
	fetcher, mock := newMockFetcher(t, reg)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COALESCE(AVG(cnt), 0), COALESCE(MAX(cnt), 0), COALESCE(SUM(cnt), 0) "+
			"FROM (SELECT COUNT(*) AS cnt FROM `Page` GROUP BY `author_id`) AS grouped")).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "max", "total"}).AddRow(2.5, 7, 25))

	est, ok, err := fetcher.EstimateEdge(context.Background(), analysis.EdgeInfo{
		Source: "Author", Field: "pages", Target: "Page", Kind: schema.KindReverseFK,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2.5, est.Avg)
	assert.Equal(t, int64(7), est.Max)
	assert.Equal(t, int64(25), est.Total)
}

func TestEstimateEdge_M2MUsesJoinTable(t *testing.T) {
	reg := cmsRegistry()
	fetcher, mock := newMockFetcher(t, reg)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COALESCE(AVG(cnt), 0), COALESCE(MAX(cnt), 0), COALESCE(SUM(cnt), 0) "+
			"FROM (SELECT COUNT(*) AS cnt FROM `page_labels` GROUP BY `page_id`) AS grouped")).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "max", "total"}).AddRow(1.5, 3, 9))

	est, ok, err := fetcher.EstimateEdge(context.Background(), analysis.EdgeInfo{
		Source: "Page", Field: "labels", Target: "Label", Kind: schema.KindM2M,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(3), est.Max)
}

func TestEstimateEdge_GenericRelFiltersByType(t *testing.T) {
	reg := cmsRegistry()
	fetcher, mock := newMockFetcher(t, reg)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COALESCE(AVG(cnt), 0), COALESCE(MAX(cnt), 0), COALESCE(SUM(cnt), 0) "+
			"FROM (SELECT COUNT(*) AS cnt FROM `Comment` WHERE `subject_type` = ? GROUP BY `subject_id`) AS grouped")).
		WithArgs("Page").
		WillReturnRows(sqlmock.NewRows([]string{"avg", "max", "total"}).AddRow(4.0, 10, 40))

	est, ok, err := fetcher.EstimateEdge(context.Background(), analysis.EdgeInfo{
		Source: "Page", Field: "comments", Target: "Comment", Kind: schema.KindGenericRel,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(40), est.Total)
}

func TestEstimateEdge_ReverseO2OCountsTarget(t *testing.T) {
	reg := cmsRegistry()
	fetcher, mock := newMockFetcher(t, reg)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `Page`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	est, ok, err := fetcher.EstimateEdge(context.Background(), analysis.EdgeInfo{
		Source: "Author", Field: "pages", Target: "Page", Kind: schema.KindReverseO2O,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(12), est.Total)
	assert.Equal(t, 1.0, est.Avg)
	assert.Equal(t, int64(1), est.Max)
}

func TestEstimateEdge_ForwardKindsSkipped(t *testing.T) {
	reg := cmsRegistry()
	fetcher, _ := newMockFetcher(t, reg)

	_, ok, err := fetcher.EstimateEdge(context.Background(), analysis.EdgeInfo{
		Source: "Page", Field: "author", Target: "Author", Kind: schema.KindFK,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}
