package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nbprep/internal/logging"
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries      int
	LastRecorded time.Time
}

// OpenSQLite creates or opens the cache database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.CacheDebug("opened execution cache at %s", path)
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		key TEXT PRIMARY KEY,
		notebook TEXT NOT NULL,
		cells_json TEXT NOT NULL,
		run_id TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_recorded ON executions(recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the entry for key, or nil if there is none.
func (s *SQLiteStore) Get(key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		e         = Entry{Key: key}
		cellsJSON string
		recorded  string
	)
	err := s.db.QueryRow(
		`SELECT notebook, cells_json, run_id, recorded_at FROM executions WHERE key = ?`, key,
	).Scan(&e.Notebook, &cellsJSON, &e.RunID, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query execution %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(cellsJSON), &e.Cells); err != nil {
		return nil, fmt.Errorf("decode execution %s: %w", key, err)
	}
	if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
		return nil, fmt.Errorf("decode execution %s timestamp: %w", key, err)
	}
	return &e, nil
}

// Put stores an entry, replacing any entry with the same key.
func (s *SQLiteStore) Put(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	cellsJSON, err := json.Marshal(entry.Cells)
	if err != nil {
		return fmt.Errorf("encode cells: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO executions (key, notebook, cells_json, run_id, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			notebook = excluded.notebook,
			cells_json = excluded.cells_json,
			run_id = excluded.run_id,
			recorded_at = excluded.recorded_at`,
		entry.Key, entry.Notebook, string(cellsJSON), entry.RunID,
		formatTime(entry.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("store execution %s: %w", entry.Key, err)
	}
	return nil
}

// Stats returns the number of entries and the newest record time.
func (s *SQLiteStore) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		st   Stats
		last sql.NullString
	)
	if err := s.db.QueryRow(`SELECT COUNT(*), MAX(recorded_at) FROM executions`).Scan(&st.Entries, &last); err != nil {
		return st, fmt.Errorf("query cache stats: %w", err)
	}
	if last.Valid {
		t, err := time.Parse(time.RFC3339Nano, last.String)
		if err != nil {
			return st, fmt.Errorf("decode cache stats: %w", err)
		}
		st.LastRecorded = t
	}
	return st, nil
}

// Prune deletes entries recorded before cutoff and returns how many went.
func (s *SQLiteStore) Prune(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM executions WHERE recorded_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	return res.RowsAffected()
}

// timeLayout keeps a fixed-width fraction so stored timestamps sort lexically
// in time order. time.RFC3339Nano parses it back.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
