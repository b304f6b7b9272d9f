package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is the persisted form of one cache entry.
type Record struct {
	Key       Key
	Tags      []Tag
	Payload   []byte
	Stale     bool
	FetchedAt time.Time
	LastUsed  time.Time
}

// Snapshotter persists cache entries between process runs.
type Snapshotter interface {
	Load() ([]Record, error)
	Save(r Record) error
	Delete(key Key) error
	Close() error
}

// SQLiteSnapshotter stores cache entries in a SQLite file.
type SQLiteSnapshotter struct {
	db *sql.DB

	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

// OpenSQLite opens (or creates) the snapshot database at path, applies schema
// migrations, and prepares statements.
func OpenSQLite(path string) (*SQLiteSnapshotter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps WAL checkpoints simple for a CLI.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteSnapshotter{db: db}
	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the DB.
func (s *SQLiteSnapshotter) Close() error {
	if s.upsertStmt != nil {
		s.upsertStmt.Close()
	}
	if s.deleteStmt != nil {
		s.deleteStmt.Close()
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
            key TEXT PRIMARY KEY,
            endpoint TEXT NOT NULL,
            args TEXT NOT NULL DEFAULT '',
            tags TEXT NOT NULL DEFAULT '[]',
            payload BLOB NOT NULL,
            stale BOOLEAN NOT NULL DEFAULT 0,
            fetched_at INTEGER NOT NULL,
            last_used INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_endpoint ON cache_entries(endpoint);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (s *SQLiteSnapshotter) prepareStatements() error {
	var err error
	if s.upsertStmt, err = s.db.Prepare(`INSERT INTO cache_entries(key,endpoint,args,tags,payload,stale,fetched_at,last_used)
        VALUES(?,?,?,?,?,?,?,?)
        ON CONFLICT(key) DO UPDATE SET
            tags=excluded.tags, payload=excluded.payload, stale=excluded.stale,
            fetched_at=excluded.fetched_at, last_used=excluded.last_used`); err != nil {
		return err
	}
	if s.deleteStmt, err = s.db.Prepare(`DELETE FROM cache_entries WHERE key=?`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Snapshotter
// ---------------------------------------------------------------------------

func (s *SQLiteSnapshotter) Load() ([]Record, error) {
	rows, err := s.db.Query(`SELECT endpoint,args,tags,payload,stale,fetched_at,last_used FROM cache_entries ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                 Record
			tags              string
			fetched, lastUsed int64
		)
		if err := rows.Scan(&r.Key.Endpoint, &r.Key.Args, &tags, &r.Payload, &r.Stale, &fetched, &lastUsed); err != nil {
			return nil, err
		}
		var raw []string
		if err := codec.UnmarshalFromString(tags, &raw); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", r.Key, err)
		}
		r.Tags = parseTags(raw)
		r.FetchedAt = time.Unix(0, fetched)
		r.LastUsed = time.Unix(0, lastUsed)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteSnapshotter) Save(r Record) error {
	tags, err := codec.MarshalToString(tagStrings(r.Tags))
	if err != nil {
		return err
	}
	_, err = s.upsertStmt.Exec(r.Key.String(), r.Key.Endpoint, r.Key.Args, tags, r.Payload, r.Stale,
		r.FetchedAt.UnixNano(), r.LastUsed.UnixNano())
	return err
}

func (s *SQLiteSnapshotter) Delete(key Key) error {
	_, err := s.deleteStmt.Exec(key.String())
	return err
}
