// Package store is the shared-state backing store: a durable slot holding
// the latest published snapshot, and the ordered action queue drained by
// the simulation loop. Any backend satisfying those two contracts would
// do; this one is SQLite.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"fleetfeast.ai/internal/sim/city"
)

type Store struct {
	db        *sqlx.DB
	stateKey  string
	queueName string
	log       *logrus.Entry
}

func Open(path, stateKey, queueName string, logger *logrus.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty store path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:        db,
		stateKey:  stateKey,
		queueName: queueName,
		log:       logger.WithField("component", "store"),
	}
	if err := s.initPragmas(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initPragmas() error {
	// WAL suits the once-per-tick append/replace workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS state_slots (
			key TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS action_queue (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			queue TEXT NOT NULL,
			payload TEXT NOT NULL,
			enqueued_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_action_queue_name ON action_queue(queue, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the store is reachable, for the health endpoint.
func (s *Store) Ping() error {
	var one int
	return s.db.Get(&one, "SELECT 1")
}

// SaveState replaces the latest-snapshot slot. Called once per tick by the
// state writer; failures are retried with the next tick's payload.
func (s *Store) SaveState(tick uint64, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO state_slots (key, tick, payload, updated_at) VALUES (?, ?, ?, ?)`,
		s.stateKey, tick, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// LoadState returns the latest persisted snapshot document, or nil when
// the slot has never been written.
func (s *Store) LoadState() ([]byte, error) {
	var payload string
	err := s.db.Get(&payload, "SELECT payload FROM state_slots WHERE key = ?", s.stateKey)
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// Enqueue appends one action to the named queue. Safe for concurrent use.
func (s *Store) Enqueue(a city.PendingAction) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO action_queue (queue, payload, enqueued_at) VALUES (?, ?, ?)`,
		s.queueName, string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// DrainAll removes and returns the whole backlog in FIFO order as one
// transaction: entries enqueued after the drain starts are untouched and
// wait for the next tick. Undecodable rows come back with an empty type so
// the processor rejects them instead of losing them silently.
func (s *Store) DrainAll() ([]city.PendingAction, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows := []struct {
		Seq     int64  `db:"seq"`
		Payload string `db:"payload"`
	}{}
	if err := tx.Select(&rows,
		"SELECT seq, payload FROM action_queue WHERE queue = ? ORDER BY seq", s.queueName); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, tx.Commit()
	}

	maxSeq := rows[len(rows)-1].Seq
	if _, err := tx.Exec(
		"DELETE FROM action_queue WHERE queue = ? AND seq <= ?", s.queueName, maxSeq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := make([]city.PendingAction, 0, len(rows))
	for _, r := range rows {
		var a city.PendingAction
		if err := json.Unmarshal([]byte(r.Payload), &a); err != nil {
			s.log.WithError(err).WithField("seq", r.Seq).Error("undecodable queue entry")
			a = city.PendingAction{}
		}
		out = append(out, a)
	}
	return out, nil
}

var _ city.ActionQueue = (*Store)(nil)
