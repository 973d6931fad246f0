// Package memstore archives memories evicted from the long-term tier into
// sqlite. Writes are asynchronous and drop under saturation; the journal
// remains the source of truth.
package memstore

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

	"voxelmind.ai/internal/mind"
)

type Store struct {
	db *sql.DB

	ch   chan row
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type row struct {
	agentID string
	rec     mind.MemoryRecord
}

type ArchivedMemory struct {
	AgentID    string    `json:"agent_id"`
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Tier       string    `json:"tier"`
	Touches    int       `json:"touches"`
	CreatedAt  time.Time `json:"created_at"`
	ArchivedAt time.Time `json:"archived_at"`
}

func Open(path string) (*Store, error) {
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

	s := &Store{
		db: db,
		ch: make(chan row, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
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
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL,
			tier TEXT NOT NULL,
			touches INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			archived_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent_time ON memories(agent_id, archived_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// ArchiveMemory implements the consolidation sink. Never blocks the caller;
// under saturation the record is counted and dropped.
func (s *Store) ArchiveMemory(agentID string, rec mind.MemoryRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- row{agentID: agentID, rec: rec}:
	default:
		s.dropped.Add(1)
	}
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Dropped       uint64 `json:"dropped"`
}

func (s *Store) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		Dropped:       s.dropped.Load(),
	}
}

func (s *Store) loop() {
	insert, err := s.db.Prepare(`INSERT OR REPLACE INTO memories
		(id,agent_id,kind,content,importance,tier,touches,created_at,archived_at)
		VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
		}
		return
	}
	defer insert.Close()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if tx == nil {
			txx, err := s.db.BeginTx(context.Background(), nil)
			if err != nil {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			tx = txx
			opCount = 0
			lastCommit = time.Now()
		}
		_, err := tx.Stmt(insert).Exec(
			r.rec.ID,
			r.agentID,
			r.rec.Kind,
			r.rec.Content,
			r.rec.Importance,
			r.rec.Tier.String(),
			r.rec.Touches,
			r.rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

// Recent returns an agent's newest archived memories.
func (s *Store) Recent(ctx context.Context, agentID string, limit int) ([]ArchivedMemory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,agent_id,kind,content,importance,tier,touches,created_at,archived_at
		 FROM memories WHERE agent_id = ? ORDER BY archived_at DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Search matches archived content with a LIKE pattern.
func (s *Store) Search(ctx context.Context, agentID, term string, limit int) ([]ArchivedMemory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,agent_id,kind,content,importance,tier,touches,created_at,archived_at
		 FROM memories WHERE agent_id = ? AND content LIKE ? ORDER BY archived_at DESC LIMIT ?`,
		agentID, "%"+term+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]ArchivedMemory, error) {
	var out []ArchivedMemory
	for rows.Next() {
		var m ArchivedMemory
		var created, archived string
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Kind, &m.Content, &m.Importance,
			&m.Tier, &m.Touches, &created, &archived); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		m.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archived)
		out = append(out, m)
	}
	return out, rows.Err()
}
