package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/metrics"
	"github.com/eldtechnologies/acp/internal/models"
	"github.com/eldtechnologies/acp/internal/validation"
)

// DataStore is the content-addressed, append-only record store. Every
// backend (memory, SQLite, PostgreSQL, Redis) implements it.
//
// Create validates the record and returns a *validation.Error when it is
// rejected; nothing is written in that case. Get returns (nil, nil) when
// the address does not resolve.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Records
	Create(ctx context.Context, rec models.Record) (models.Address, error)
	Get(ctx context.Context, addr models.Address) (*models.Record, error)

	// Links
	CreateLink(ctx context.Context, link models.Link) error
	GetLinks(ctx context.Context, base string, linkType models.LinkType) ([]models.Link, error)

	// Anchors
	EnsureAnchor(ctx context.Context, path string) (models.Address, error)

	// Stats
	CountRecords(ctx context.Context, kind models.Kind) (int64, error)
}

// prepared is a record that passed validation, in stored form.
type prepared struct {
	addr models.Address
	data []byte
}

// prepare validates rec and encodes it.
func prepare(rec models.Record) (prepared, error) {
	if err := validation.ValidateRecord(rec).Err(); err != nil {
		metrics.ValidationRejections.WithLabelValues(string(rec.Kind)).Inc()
		return prepared{}, err
	}
	data, err := codec.EncodeRecord(rec)
	if err != nil {
		return prepared{}, fmt.Errorf("encoding record: %w", err)
	}
	return prepared{addr: codec.AddressOfBytes(data), data: data}, nil
}

// prepareLink validates a link and encodes it.
func prepareLink(link models.Link) ([]byte, error) {
	if err := validation.ValidateLink(link).Err(); err != nil {
		return nil, err
	}
	return codec.EncodeLink(link)
}

// AnchorRecord returns the well-known record for an anchor path. Anchors
// carry no author or timestamp, so the address depends on the path alone.
func AnchorRecord(path string) (models.Record, error) {
	return codec.NewRecord(models.KindAnchor, "", 0, models.Anchor{Path: path})
}

// AnchorAddress returns the address EnsureAnchor yields for path without
// touching a store.
func AnchorAddress(path string) (models.Address, error) {
	rec, err := AnchorRecord(path)
	if err != nil {
		return "", err
	}
	return codec.AddressOf(rec)
}

// ensureAnchor is the shared EnsureAnchor implementation. Create is
// idempotent for identical records, so a second call is a no-op.
func ensureAnchor(ctx context.Context, s DataStore, path string) (models.Address, error) {
	rec, err := AnchorRecord(path)
	if err != nil {
		return "", err
	}
	return s.Create(ctx, rec)
}

// observe records the latency of a store operation.
func observe(backend, op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
