package indexdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhost.ai/internal/persistence/worldsave"
	"voxelhost.ai/internal/terrain"
)

func TestSQLiteIndex_RecordsSavesAndSessions(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "world.sqlite"))
	require.NoError(t, err)
	defer idx.Close()

	key := terrain.ChunkKey{X: 2, Y: -5}
	idx.RecordChunkSave(key, 0xabc, 40, nil)
	idx.RecordChunkSave(key, 0xdef, 40, nil)
	idx.RecordChunkSave(key, 0x123, 40, errors.New("disk full"))
	idx.RecordSaveCycle(worldsave.Cycle{Seq: 1, Started: time.Now(), Written: 2, Failed: 1})
	idx.RecordSession(SessionEvent{Kind: "connected", SessionID: "s1", Alias: "ann"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, idx.Flush(ctx))

	var digest, lastErr string
	var saves int
	require.NoError(t, idx.db.QueryRow(`SELECT digest, saves, last_error FROM chunks WHERE x=? AND y=?`, 2, -5).Scan(&digest, &saves, &lastErr))
	assert.Equal(t, "0000000000000def", digest)
	assert.Equal(t, 2, saves)
	assert.Equal(t, "disk full", lastErr)

	var n int
	require.NoError(t, idx.db.QueryRow(`SELECT COUNT(*) FROM save_cycles`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, idx.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE alias='ann'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqCycle}

	s.RecordChunkSave(terrain.ChunkKey{}, 1, 1, nil)
	s.RecordSaveCycle(worldsave.Cycle{})
	s.RecordSession(SessionEvent{Kind: "chat"})

	st := s.Stats()
	assert.Equal(t, uint64(1), st.DropChunkTotal)
	assert.Equal(t, uint64(1), st.DropCycleTotal)
	assert.Equal(t, uint64(1), st.DropSessionTotal)
	assert.Equal(t, 1, st.QueueDepth)
}

func TestSQLiteIndex_NilSafe(t *testing.T) {
	var s *SQLiteIndex
	s.RecordSession(SessionEvent{})
	assert.NoError(t, s.Flush(context.Background()))
	assert.NoError(t, s.Close())
}
