// Package store persists compiled scripts in SQLite, keyed by the hash of
// their input tree and compile options, so unchanged units are not
// recompiled.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/jsbc/vm"
	"github.com/chazu/jsbc/vm/dist"
)

// ErrNotFound indicates the requested key has no cached script.
var ErrNotFound = errors.New("store: not found")

var log = commonlog.GetLogger("jsbc.store")

// Key identifies one compilation: the unit's filename, its ESTree input
// and its options.
type Key [32]byte

// MakeKey hashes a compilation's inputs.
func MakeKey(filename string, ast []byte, opts dist.CompileOptions) (Key, error) {
	optBytes, err := dist.Marshal(opts)
	if err != nil {
		return Key{}, fmt.Errorf("encoding options: %w", err)
	}
	h := sha256.New()
	for _, part := range [][]byte{[]byte(filename), ast, optBytes} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write(part)
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

// Entry is a cached compilation. Diagnostics are the warnings the
// compilation reported.
type Entry struct {
	UnitID      uuid.UUID
	Filename    string
	Script      *vm.Script
	Diagnostics []dist.Diagnostic
	Created     time.Time
}

// Store handles SQLite storage for compiled scripts.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache database at path. The path ":memory:"
// gives a private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access from other processes
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS scripts (
		key BLOB PRIMARY KEY,
		unit_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		script_hash BLOB NOT NULL,
		data BLOB NOT NULL,
		diagnostics BLOB,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Put caches script and its warnings under key, replacing any previous
// entry.
func (s *Store) Put(ctx context.Context, key Key, unitID uuid.UUID, script *vm.Script, diags []dist.Diagnostic) error {
	data, err := dist.MarshalScript(script)
	if err != nil {
		return fmt.Errorf("encoding script: %w", err)
	}
	var diagData []byte
	if len(diags) > 0 {
		if diagData, err = dist.Marshal(diags); err != nil {
			return fmt.Errorf("encoding diagnostics: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO scripts (key, unit_id, filename, script_hash, data, diagnostics, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		key[:], unitID.String(), script.Filename, script.Hash[:], data, diagData, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving script: %w", err)
	}
	return nil
}

// Get returns the cached compilation for key. An entry that no longer
// verifies is dropped and reported as not found.
func (s *Store) Get(ctx context.Context, key Key) (*Entry, error) {
	var (
		unitID, filename string
		data, diagData   []byte
		created          int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT unit_id, filename, data, diagnostics, created_at FROM scripts WHERE key = ?", key[:],
	).Scan(&unitID, &filename, &data, &diagData, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying script: %w", err)
	}

	var diags []dist.Diagnostic
	script, err := dist.UnmarshalScript(data)
	if err == nil {
		err = dist.VerifyScript(script)
	}
	if err == nil && len(diagData) > 0 {
		err = dist.Unmarshal(diagData, &diags)
	}
	if err != nil {
		log.Warningf("dropping corrupt cache entry %x (%s): %s", key[:8], filename, err)
		if derr := s.Delete(ctx, key); derr != nil {
			return nil, derr
		}
		return nil, ErrNotFound
	}

	id, err := uuid.Parse(unitID)
	if err != nil {
		return nil, fmt.Errorf("parsing unit id %q: %w", unitID, err)
	}
	return &Entry{
		UnitID:      id,
		Filename:    filename,
		Script:      script,
		Diagnostics: diags,
		Created:     time.Unix(0, created),
	}, nil
}

// Delete removes the entry for key, if any.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scripts WHERE key = ?", key[:]); err != nil {
		return fmt.Errorf("deleting script: %w", err)
	}
	return nil
}

// LookupHash returns the most recent entry whose script has the given
// content hash.
func (s *Store) LookupHash(ctx context.Context, hash [32]byte) (*Entry, error) {
	var key []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT key FROM scripts WHERE script_hash = ? ORDER BY created_at DESC LIMIT 1", hash[:],
	).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying script hash: %w", err)
	}
	var k Key
	copy(k[:], key)
	return s.Get(ctx, k)
}

// Count returns the number of cached scripts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scripts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting scripts: %w", err)
	}
	return n, nil
}

// Prune removes entries created before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scripts WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning scripts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("pruned %d cache entries", n)
	}
	return n, nil
}
