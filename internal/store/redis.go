package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
)

// RedisStore handles Redis operations: the record store backend, request
// nonce tracking, and the client shared with the rate limiter.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// recordKey returns the key holding an encoded record.
func recordKey(addr models.Address) string {
	return fmt.Sprintf("record:%s", addr)
}

// recordCountKey returns the key counting records of a kind.
func recordCountKey(kind models.Kind) string {
	return fmt.Sprintf("records:count:%s", kind)
}

// linksKey returns the key for the list of links from base of a type.
func linksKey(base string, linkType models.LinkType) string {
	return fmt.Sprintf("links:%s:%s", linkType, base)
}

// Create validates and stores a record. Storing an identical record again
// returns the same address.
func (s *RedisStore) Create(ctx context.Context, rec models.Record) (models.Address, error) {
	defer observe("redis", "create", time.Now())

	p, err := prepare(rec)
	if err != nil {
		return "", err
	}

	created, err := s.client.SetNX(ctx, recordKey(p.addr), p.data, 0).Result()
	if err != nil {
		return "", err
	}
	if created {
		if err := s.client.Incr(ctx, recordCountKey(rec.Kind)).Err(); err != nil {
			return "", err
		}
	}
	return p.addr, nil
}

// Get retrieves a record by address.
func (s *RedisStore) Get(ctx context.Context, addr models.Address) (*models.Record, error) {
	defer observe("redis", "get", time.Now())

	data, err := s.client.Get(ctx, recordKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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
func (s *RedisStore) CreateLink(ctx context.Context, link models.Link) error {
	defer observe("redis", "create_link", time.Now())

	data, err := prepareLink(link)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, linksKey(link.Base, link.Type), data).Err()
}

// GetLinks returns links from base of the given type in insertion order.
func (s *RedisStore) GetLinks(ctx context.Context, base string, linkType models.LinkType) ([]models.Link, error) {
	defer observe("redis", "get_links", time.Now())

	results, err := s.client.LRange(ctx, linksKey(base, linkType), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	links := make([]models.Link, 0, len(results))
	for _, data := range results {
		link, err := codec.DecodeLink([]byte(data))
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// EnsureAnchor creates the anchor record for path if it does not exist.
func (s *RedisStore) EnsureAnchor(ctx context.Context, path string) (models.Address, error) {
	return ensureAnchor(ctx, s, path)
}

// CountRecords returns the number of stored records of a kind.
func (s *RedisStore) CountRecords(ctx context.Context, kind models.Kind) (int64, error) {
	count, err := s.client.Get(ctx, recordCountKey(kind)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return count, nil
}

// nonceKey returns the key for nonce tracking.
func nonceKey(identity, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s", identity, nonce)
}

// UseNonce marks a nonce as used with a TTL. It reports false when the
// nonce had already been used.
func (s *RedisStore) UseNonce(ctx context.Context, identity, nonce string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, nonceKey(identity, nonce), "1", ttl).Result()
}
