package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/domain"
)

func testAsset() domain.Asset { return domain.Asset{ID: "AAPL", Class: domain.AssetClassEquity} }

func TestPositionStoreRoundTripsOpenPositions(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	pos := domain.Position{
		ID: "pos-1", Asset: testAsset(), Side: domain.SideLong,
		QuantityRemaining: 10, OriginalQuantity: 10, EntryPrice: 100, EntryTime: time.Now(),
	}
	require.NoError(t, s.Upsert(pos))

	loaded, err := s.LoadOpen()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "pos-1", loaded[0].ID)
	assert.Equal(t, 10.0, loaded[0].QuantityRemaining)
}

func TestPositionStoreExcludesClosedFromLoadOpen(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	pos := domain.Position{ID: "pos-2", Asset: testAsset(), Side: domain.SideLong, Closed: true}
	require.NoError(t, s.Upsert(pos))

	loaded, err := s.LoadOpen()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestPositionStoreUpsertReplacesPriorRow(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	pos := domain.Position{ID: "pos-3", Asset: testAsset(), Side: domain.SideLong, QuantityRemaining: 10}
	require.NoError(t, s.Upsert(pos))
	pos.QuantityRemaining = 5
	require.NoError(t, s.Upsert(pos))

	loaded, err := s.LoadOpen()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 5.0, loaded[0].QuantityRemaining)
}

func TestReportStoreSaveLoadList(t *testing.T) {
	dir := t.TempDir()
	rs, err := NewReportStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = rs.Save(ctx, "2026-01-01T00:00:00Z.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	_, err = rs.Save(ctx, "2026-02-01T00:00:00Z.json", []byte(`{"b":2}`))
	require.NoError(t, err)

	names, err := rs.List(ctx)
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Equal(t, "2026-02-01T00:00:00Z.json", names[0]) // newest first

	payload, err := rs.Load(ctx, "2026-01-01T00:00:00Z.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))
}

func TestReportStoreRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	rs, err := NewReportStore(dir)
	require.NoError(t, err)

	_, err = rs.Save(context.Background(), "../escape.json", []byte("x"))
	assert.Error(t, err)
}

func TestReportStoreLoadMissingReturnsError(t *testing.T) {
	rs, err := NewReportStore(t.TempDir())
	require.NoError(t, err)

	_, err = rs.Load(context.Background(), "missing.json")
	assert.Error(t, err)
}

func TestNewReportStoreCreatesDirIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	_, err := NewReportStore(dir)
	require.NoError(t, err)
}
