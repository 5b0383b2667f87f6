package store

import (
	"context"
	"sync"
	"time"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
)

// MemoryStore keeps records and links in process memory. It serves tests
// and single-process development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[models.Address]storedRecord
	links   map[linkKey][][]byte
}

type storedRecord struct {
	kind models.Kind
	data []byte
}

type linkKey struct {
	base     string
	linkType models.LinkType
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[models.Address]storedRecord),
		links:   make(map[linkKey][][]byte),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Create validates and stores a record.
func (s *MemoryStore) Create(ctx context.Context, rec models.Record) (models.Address, error) {
	defer observe("memory", "create", time.Now())

	p, err := prepare(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[p.addr]; !exists {
		s.records[p.addr] = storedRecord{kind: rec.Kind, data: p.data}
	}
	return p.addr, nil
}

// Get retrieves a record by address.
func (s *MemoryStore) Get(ctx context.Context, addr models.Address) (*models.Record, error) {
	defer observe("memory", "get", time.Now())

	s.mu.RLock()
	stored, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	rec, err := codec.DecodeRecord(stored.data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateLink appends a link.
func (s *MemoryStore) CreateLink(ctx context.Context, link models.Link) error {
	defer observe("memory", "create_link", time.Now())

	data, err := prepareLink(link)
	if err != nil {
		return err
	}

	key := linkKey{base: link.Base, linkType: link.Type}
	s.mu.Lock()
	s.links[key] = append(s.links[key], data)
	s.mu.Unlock()
	return nil
}

// GetLinks returns links from base of the given type in insertion order.
func (s *MemoryStore) GetLinks(ctx context.Context, base string, linkType models.LinkType) ([]models.Link, error) {
	defer observe("memory", "get_links", time.Now())

	s.mu.RLock()
	stored := s.links[linkKey{base: base, linkType: linkType}]
	encoded := make([][]byte, len(stored))
	copy(encoded, stored)
	s.mu.RUnlock()

	links := make([]models.Link, 0, len(encoded))
	for _, data := range encoded {
		link, err := codec.DecodeLink(data)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// EnsureAnchor creates the anchor record for path if it does not exist.
func (s *MemoryStore) EnsureAnchor(ctx context.Context, path string) (models.Address, error) {
	return ensureAnchor(ctx, s, path)
}

// CountRecords returns the number of stored records of a kind.
func (s *MemoryStore) CountRecords(ctx context.Context, kind models.Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, stored := range s.records {
		if stored.kind == kind {
			count++
		}
	}
	return count, nil
}
