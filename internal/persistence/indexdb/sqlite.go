// Package indexdb keeps a queryable sqlite record of save activity and
// session events. It is a secondary index: writes are queued and dropped
// when the writer falls behind, never blocking the tick.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelhost.ai/internal/persistence/worldsave"
	"voxelhost.ai/internal/terrain"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropChunk   atomic.Uint64
	dropCycle   atomic.Uint64
	dropSession atomic.Uint64
}

type reqKind int

const (
	reqChunk reqKind = iota + 1
	reqCycle
	reqSession
	reqFlush
)

type req struct {
	kind reqKind

	chunk   chunkRow
	cycle   worldsave.Cycle
	session SessionEvent
	flushed chan struct{}
}

type chunkRow struct {
	Key     terrain.ChunkKey
	Digest  uint64
	Height  int
	Err     string
	SavedAt time.Time
}

// SessionEvent is one connection lifecycle or chat event.
type SessionEvent struct {
	At        time.Time
	Kind      string
	SessionID string
	Alias     string
	Detail    string
}

type Stats struct {
	DropChunkTotal   uint64
	DropCycleTotal   uint64
	DropSessionTotal uint64
	QueueDepth       int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			digest TEXT NOT NULL,
			height INTEGER NOT NULL,
			saves INTEGER NOT NULL,
			last_error TEXT,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (x, y)
		);`,
		`CREATE TABLE IF NOT EXISTS save_cycles (
			seq INTEGER PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			written INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			failed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			session_id TEXT NOT NULL,
			alias TEXT NOT NULL,
			detail TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_alias ON sessions(alias, at);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordChunkSave implements worldsave.Recorder.
func (s *SQLiteIndex) RecordChunkSave(key terrain.ChunkKey, digest uint64, height int, err error) {
	if s == nil || s.closed.Load() {
		return
	}
	r := chunkRow{Key: key, Digest: digest, Height: height, SavedAt: time.Now().UTC()}
	if err != nil {
		r.Err = err.Error()
	}
	select {
	case s.ch <- req{kind: reqChunk, chunk: r}:
	default:
		s.dropChunk.Add(1)
	}
}

// RecordSaveCycle implements worldsave.Recorder.
func (s *SQLiteIndex) RecordSaveCycle(c worldsave.Cycle) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqCycle, cycle: c}:
	default:
		s.dropCycle.Add(1)
	}
}

func (s *SQLiteIndex) RecordSession(ev SessionEvent) {
	if s == nil || s.closed.Load() {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.ch <- req{kind: reqSession, session: ev}:
	default:
		s.dropSession.Add(1)
	}
}

// Flush waits until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropChunkTotal:   s.dropChunk.Load(),
		DropCycleTotal:   s.dropCycle.Load(),
		DropSessionTotal: s.dropSession.Load(),
		QueueDepth:       len(s.ch),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertChunk, _ := s.db.Prepare(`INSERT INTO chunks(x,y,digest,height,saves,last_error,saved_at) VALUES(?,?,?,?,1,?,?)
		ON CONFLICT(x,y) DO UPDATE SET
			digest=CASE WHEN excluded.last_error IS NULL THEN excluded.digest ELSE chunks.digest END,
			height=excluded.height,
			saves=chunks.saves + CASE WHEN excluded.last_error IS NULL THEN 1 ELSE 0 END,
			last_error=excluded.last_error,
			saved_at=excluded.saved_at`)
	insertCycle, _ := s.db.Prepare(`INSERT OR REPLACE INTO save_cycles(seq,started_at,duration_ms,written,skipped,failed) VALUES(?,?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT INTO sessions(at,kind,session_id,alias,detail) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertChunk, insertCycle, insertSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flushed)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqChunk:
			c := r.chunk
			var lastErr any
			if c.Err != "" {
				lastErr = c.Err
			}
			exec(upsertChunk, c.Key.X, c.Key.Y, fmt.Sprintf("%016x", c.Digest), c.Height, lastErr, c.SavedAt.Format(time.RFC3339Nano))
		case reqCycle:
			c := r.cycle
			exec(insertCycle, int64(c.Seq), c.Started.UTC().Format(time.RFC3339Nano), c.Duration.Milliseconds(), c.Written, c.Skipped, c.Failed)
		case reqSession:
			e := r.session
			exec(insertSession, e.At.UTC().Format(time.RFC3339Nano), e.Kind, e.SessionID, e.Alias, e.Detail)
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

var _ worldsave.Recorder = (*SQLiteIndex)(nil)
