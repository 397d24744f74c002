package crashdump

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrDumpNotFound indicates the requested dump is not in the index.
var ErrDumpNotFound = errors.New("dump not found")

// timeLayout sorts as text in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Index keeps dumps in a SQLite database so they can be listed and
// filtered by entry function.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS dumps (
		id     TEXT PRIMARY KEY,
		time   TEXT NOT NULL,
		entry  TEXT NOT NULL,
		reason TEXT NOT NULL,
		data   BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Add stores d, replacing a dump with the same id.
func (ix *Index) Add(d *Dump) error {
	data, err := Marshal(d)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, err = ix.db.Exec(
		"INSERT OR REPLACE INTO dumps (id, time, entry, reason, data) VALUES (?, ?, ?, ?, ?)",
		d.ID, d.Time.UTC().Format(timeLayout), d.Entry, d.Reason, data,
	)
	if err != nil {
		return fmt.Errorf("saving dump: %w", err)
	}
	return nil
}

// Get returns the dump with the given id.
func (ix *Index) Get(id string) (*Dump, error) {
	var data []byte
	err := ix.db.QueryRow("SELECT data FROM dumps WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDumpNotFound
		}
		return nil, fmt.Errorf("querying dump: %w", err)
	}
	return Unmarshal(data)
}

// List returns dumps oldest first. A non-empty entry keeps only dumps of
// processes started with that module:function/arity.
func (ix *Index) List(entry string) ([]*Dump, error) {
	query := "SELECT data FROM dumps ORDER BY time, id"
	var args []any
	if entry != "" {
		query = "SELECT data FROM dumps WHERE entry = ? ORDER BY time, id"
		args = append(args, entry)
	}
	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing dumps: %w", err)
	}
	defer rows.Close()

	var out []*Dump
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning dump: %w", err)
		}
		d, err := Unmarshal(data)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
