package runs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
)

func TestWALStoreSaveAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.Zero(t, store.CurrentIndex())

	first := domain.RunRecord{
		ID:        "run-1",
		StartedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Pool:      "0x53523De8a90053dDB1D330499D3dC080B909EDb9",
		Snapshot:  domain.Snapshot{"sBTC": domain.NewAsset(0.9, 10000)},
		Swaps:     []domain.Swap{{From: "sBTC", To: "sUSD", FromAmount: 0.445}},
		TxHashes:  []string{"0xabc"},
		Status:    domain.RunStatusSubmitted,
	}
	second := domain.RunRecord{ID: "run-2", Status: domain.RunStatusBalanced}

	require.NoError(t, store.Save(first))
	require.NoError(t, store.Save(second))
	require.Equal(t, uint64(2), store.CurrentIndex())

	entries, err := store.RunsAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(1), entries[0].Index)
	got := entries[0].Record
	require.Equal(t, first.ID, got.ID)
	require.True(t, first.StartedAt.Equal(got.StartedAt))
	require.Equal(t, first.Pool, got.Pool)
	require.Equal(t, first.Snapshot, got.Snapshot)
	require.Equal(t, first.Swaps, got.Swaps)
	require.Equal(t, first.TxHashes, got.TxHashes)
	require.Equal(t, first.Status, got.Status)
	require.Equal(t, "run-2", entries[1].Record.ID)

	entries, err = store.RunsAfter(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.RunStatusBalanced, entries[0].Record.Status)

	entries, err = store.RunsAfter(2)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWALStoreRequiresID(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.Save(domain.RunRecord{Status: domain.RunStatusFailed}))
}

func TestWALStoreReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(domain.RunRecord{ID: "run-1", Status: domain.RunStatusPlanned}))
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.RunsAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.RunStatusPlanned, entries[0].Record.Status)
}

func TestNilStore(t *testing.T) {
	var store *WALStore
	require.Error(t, store.Save(domain.RunRecord{ID: "x"}))
	require.Zero(t, store.CurrentIndex())
	require.Error(t, store.Close())
}
