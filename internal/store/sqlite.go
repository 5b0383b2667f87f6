package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/acp.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/acp.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		address TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL,
		stored_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		base TEXT NOT NULL,
		link_type TEXT NOT NULL,
		target TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_links_base_type ON links(base, link_type, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create validates and stores a record. Storing an identical record again
// returns the same address.
func (s *SQLiteStore) Create(ctx context.Context, rec models.Record) (models.Address, error) {
	defer observe("sqlite", "create", time.Now())

	p, err := prepare(rec)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO records (address, kind, author, ts, data)
		VALUES (?, ?, ?, ?, ?)
	`, string(p.addr), string(rec.Kind), rec.Author, int64(rec.Timestamp), p.data)
	if err != nil {
		return "", err
	}
	return p.addr, nil
}

// Get retrieves a record by address.
func (s *SQLiteStore) Get(ctx context.Context, addr models.Address) (*models.Record, error) {
	defer observe("sqlite", "get", time.Now())

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM records WHERE address = ?
	`, string(addr)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rec, err := codec.DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateLink appends a link.
func (s *SQLiteStore) CreateLink(ctx context.Context, link models.Link) error {
	defer observe("sqlite", "create_link", time.Now())

	if _, err := prepareLink(link); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (base, link_type, target, author, ts)
		VALUES (?, ?, ?, ?, ?)
	`, link.Base, string(link.Type), string(link.Target), link.Author, int64(link.Timestamp))
	return err
}

// GetLinks returns links from base of the given type in insertion order.
func (s *SQLiteStore) GetLinks(ctx context.Context, base string, linkType models.LinkType) ([]models.Link, error) {
	defer observe("sqlite", "get_links", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT base, link_type, target, author, ts
		FROM links
		WHERE base = ? AND link_type = ?
		ORDER BY id
	`, base, string(linkType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		var (
			link               models.Link
			typeStr, targetStr string
			ts                 int64
		)
		if err := rows.Scan(&link.Base, &typeStr, &targetStr, &link.Author, &ts); err != nil {
			return nil, err
		}
		link.Type = models.LinkType(typeStr)
		link.Target = models.Address(targetStr)
		link.Timestamp = uint64(ts)
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return links, nil
}

// EnsureAnchor creates the anchor record for path if it does not exist.
func (s *SQLiteStore) EnsureAnchor(ctx context.Context, path string) (models.Address, error) {
	return ensureAnchor(ctx, s, path)
}

// CountRecords returns the number of stored records of a kind.
func (s *SQLiteStore) CountRecords(ctx context.Context, kind models.Kind) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE kind = ?`, string(kind)).Scan(&count)
	return count, err
}
