// Package indexdb keeps a queryable sqlite read-model of session logs.
// The tick logs stay the source of truth; rows may be dropped under load.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"rescuesim/internal/session"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan session.LogEntry
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	QueueDroppedTotal uint64
	WrittenTotal      uint64
	FailedTotal       uint64
}

const defaultQueue = 65536

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
		ch: make(chan session.LogEntry, defaultQueue),
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
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			scenario_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			remote_addr TEXT NOT NULL,
			remotes INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			reason TEXT,
			ticks INTEGER NOT NULL DEFAULT 0,
			final_hash TEXT NOT NULL,
			error TEXT,
			config_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_scenario ON sessions(scenario_id, started_at);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			time REAL NOT NULL,
			status TEXT NOT NULL,
			hash TEXT NOT NULL,
			intentions INTEGER NOT NULL,
			warnings INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS warnings (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			remote_id TEXT NOT NULL,
			intention TEXT NOT NULL,
			sensor_id TEXT,
			reason TEXT NOT NULL,
			PRIMARY KEY (session_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_warnings_remote ON warnings(remote_id, session_id, tick);`,
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
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEntry queues e for the writer goroutine and never blocks.
func (s *SQLiteIndex) WriteEntry(e session.LogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		QueueDroppedTotal: s.dropped.Load(),
		WrittenTotal:      s.written.Load(),
		FailedTotal:       s.failed.Load(),
	}
}

func wallTime(ms int64) string {
	if ms == 0 {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		pending       uint64 // entries applied in tx, counted once committed
		lastCommit    = time.Now()
		commitEvery   = 2000
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
		if err := tx.Commit(); err != nil {
			s.failed.Add(pending)
		} else {
			s.written.Add(pending)
		}
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	abort := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.failed.Add(pending)
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}

	for e := range s.ch {
		begin()
		if tx == nil {
			s.failed.Add(1)
			continue
		}
		// Each entry runs under its own savepoint so a bad entry does not
		// take the rest of the batch down with it.
		if _, err := tx.ExecContext(ctx, `SAVEPOINT entry`); err != nil {
			s.failed.Add(1)
			abort()
			continue
		}
		n, err := apply(tx, e)
		if err != nil {
			s.failed.Add(1)
			if _, rerr := tx.ExecContext(ctx, `ROLLBACK TO entry`); rerr != nil {
				abort()
				continue
			}
			_, _ = tx.ExecContext(ctx, `RELEASE entry`)
			continue
		}
		if _, err := tx.ExecContext(ctx, `RELEASE entry`); err != nil {
			s.failed.Add(1)
			abort()
			continue
		}
		pending++
		opCount += n
		// Session boundaries are rare and worth making visible promptly.
		if e.Type == session.EntryEnd || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

func apply(tx *sql.Tx, e session.LogEntry) (int, error) {
	switch e.Type {
	case session.EntryConfig:
		if e.Config == nil {
			return 0, errors.New("config entry without config")
		}
		cfgJSON, _ := json.Marshal(e.Config)
		remotes := 0
		for _, rc := range e.Config.Remotes {
			remotes += rc.Count
		}
		_, err := tx.Exec(`INSERT OR REPLACE INTO sessions(session_id,scenario_id,seed,remote_addr,remotes,started_at,status,ticks,final_hash,config_json) VALUES(?,?,?,?,?,?,?,?,?,?)`,
			e.SessionID, e.Config.ScenarioID, e.Config.Seed, e.RemoteAddr, remotes, wallTime(e.WallMS), string(e.Status), 0, e.Hash, string(cfgJSON))
		return 1, err

	case session.EntryTick:
		raw, _ := json.Marshal(e)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO ticks(session_id,tick,time,status,hash,intentions,warnings,raw_json) VALUES(?,?,?,?,?,?,?,?)`,
			e.SessionID, e.Tick, e.Time, string(e.Status), e.Hash, len(e.Intentions), len(e.Warnings), string(raw)); err != nil {
			return 0, err
		}
		ops := 1
		for i, w := range e.Warnings {
			if _, err := tx.Exec(`INSERT OR REPLACE INTO warnings(session_id,tick,seq,remote_id,intention,sensor_id,reason) VALUES(?,?,?,?,?,?,?)`,
				e.SessionID, e.Tick, i, w.RemoteID, string(w.Intention), w.SensorID, w.Reason); err != nil {
				return 0, err
			}
			ops++
		}
		if _, err := tx.Exec(`UPDATE sessions SET ticks=?, status=?, final_hash=? WHERE session_id=?`,
			e.Tick, string(e.Status), e.Hash, e.SessionID); err != nil {
			return 0, err
		}
		return ops + 1, nil

	case session.EntryEnd:
		_, err := tx.Exec(`UPDATE sessions SET ended_at=?, status=?, reason=?, ticks=?, final_hash=?, error=? WHERE session_id=?`,
			wallTime(e.WallMS), string(e.Status), e.Reason, e.Tick, e.Hash, e.Error, e.SessionID)
		return 1, err
	}
	return 0, fmt.Errorf("unknown entry type %q", e.Type)
}

// SessionRow is a sessions table row.
type SessionRow struct {
	SessionID  string
	ScenarioID string
	Seed       int64
	RemoteAddr string
	Remotes    int
	StartedAt  string
	EndedAt    string
	Status     string
	Reason     string
	Ticks      int64
	FinalHash  string
	Error      string
}

// LookupSession reads one session row. Rows still queued in the writer
// are not visible until committed.
func (s *SQLiteIndex) LookupSession(ctx context.Context, id string) (SessionRow, error) {
	var (
		r                      SessionRow
		ended, reason, errText sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT session_id,scenario_id,seed,remote_addr,remotes,started_at,ended_at,status,reason,ticks,final_hash,error FROM sessions WHERE session_id=?`, id).
		Scan(&r.SessionID, &r.ScenarioID, &r.Seed, &r.RemoteAddr, &r.Remotes, &r.StartedAt, &ended, &r.Status, &reason, &r.Ticks, &r.FinalHash, &errText)
	if err != nil {
		return SessionRow{}, err
	}
	r.EndedAt = ended.String
	r.Reason = reason.String
	r.Error = errText.String
	return r, nil
}

// CountTicks returns the number of tick rows stored for a session.
func (s *SQLiteIndex) CountTicks(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks WHERE session_id=?`, id).Scan(&n)
	return n, err
}
