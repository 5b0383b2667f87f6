package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies the schema files in migrations/ in name order.
// Every statement is idempotent, so running them again is safe.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connecting for migrations: %w", err)
	}
	defer conn.Close(ctx)

	names, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("applying %s: %w", name, err)
		}
	}
	return nil
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create validates and stores a record. Storing an identical record again
// returns the same address.
func (s *PostgresStore) Create(ctx context.Context, rec models.Record) (models.Address, error) {
	defer observe("postgres", "create", time.Now())

	p, err := prepare(rec)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (address, kind, author, ts, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO NOTHING
	`, string(p.addr), string(rec.Kind), rec.Author, int64(rec.Timestamp), p.data)
	if err != nil {
		return "", err
	}
	return p.addr, nil
}

// Get retrieves a record by address.
func (s *PostgresStore) Get(ctx context.Context, addr models.Address) (*models.Record, error) {
	defer observe("postgres", "get", time.Now())

	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM records WHERE address = $1
	`, string(addr)).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) CreateLink(ctx context.Context, link models.Link) error {
	defer observe("postgres", "create_link", time.Now())

	if _, err := prepareLink(link); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO links (base, link_type, target, author, ts)
		VALUES ($1, $2, $3, $4, $5)
	`, link.Base, string(link.Type), string(link.Target), link.Author, int64(link.Timestamp))
	return err
}

// GetLinks returns links from base of the given type in insertion order.
func (s *PostgresStore) GetLinks(ctx context.Context, base string, linkType models.LinkType) ([]models.Link, error) {
	defer observe("postgres", "get_links", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT base, link_type, target, author, ts
		FROM links
		WHERE base = $1 AND link_type = $2
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
func (s *PostgresStore) EnsureAnchor(ctx context.Context, path string) (models.Address, error) {
	return ensureAnchor(ctx, s, path)
}

// CountRecords returns the number of stored records of a kind.
func (s *PostgresStore) CountRecords(ctx context.Context, kind models.Kind) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE kind = $1`, string(kind)).Scan(&count)
	return count, err
}
