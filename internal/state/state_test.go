package state

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": db}
}

func TestStore_lastUpdate(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.LastUpdate(ctx)
			require.NoError(t, err)
			assert.True(t, got.IsZero(), "fresh store should report zero time")

			when := time.Date(2023, 8, 9, 14, 45, 0, 0, time.UTC)
			require.NoError(t, s.SetLastUpdate(ctx, when))
			require.NoError(t, s.SetLastUpdate(ctx, when.Add(time.Hour)))
			got, err = s.LastUpdate(ctx)
			require.NoError(t, err)
			assert.True(t, got.Equal(when.Add(time.Hour)), "got %v", got)
		})
	}
}

func TestStore_cycles(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.NoError(t, s.RecordCycle(ctx, Cycle{
					ID:       fmt.Sprintf("c%d", i),
					Kind:     "epg",
					Started:  base.Add(time.Duration(i) * time.Hour),
					Finished: base.Add(time.Duration(i)*time.Hour + time.Minute),
					OK:       i != 1,
					Error:    map[bool]string{true: "boom"}[i == 1],
					Channels: 10 + i,
				}))
			}
			got, err := s.RecentCycles(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "c2", got[0].ID)
			assert.Equal(t, "c1", got[1].ID)
			assert.False(t, got[1].OK)
			assert.Equal(t, "boom", got[1].Error)
			assert.Equal(t, 12, got[0].Channels)
			assert.True(t, got[0].Finished.Equal(base.Add(2*time.Hour+time.Minute)))
		})
	}
}

func TestSQLite_persistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	when := time.Unix(1691592300, 0).UTC()
	require.NoError(t, db.SetLastUpdate(ctx, when))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.LastUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, when, got)
}
