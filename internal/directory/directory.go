// Package directory registers agent profiles and answers discovery queries.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/index"
	"github.com/eldtechnologies/acp/internal/metrics"
	"github.com/eldtechnologies/acp/internal/models"
	"github.com/eldtechnologies/acp/internal/store"
)

// Service is the agent directory. It holds no state of its own; every
// call reads and writes through the store.
type Service struct {
	store  store.DataStore
	index  *index.Maintainer
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a directory over s.
func New(s store.DataStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  s,
		index:  index.New(s),
		logger: logger.With().Str("component", "directory").Logger(),
		now:    time.Now,
	}
}

// Register stores a profile authored by owner and makes it discoverable.
// A zero RegisteredAt is filled with the current time. Validation failures
// are returned as *validation.Error and leave no links behind.
func (s *Service) Register(ctx context.Context, owner string, profile models.AgentProfile) (models.Address, error) {
	ts := uint64(s.now().UnixMicro())
	if profile.RegisteredAt == 0 {
		profile.RegisteredAt = ts
	}

	rec, err := codec.NewRecord(models.KindAgentProfile, owner, ts, profile)
	if err != nil {
		return "", err
	}

	addr, err := s.store.Create(ctx, rec)
	if err != nil {
		return "", err
	}

	if err := s.index.LinkProfile(ctx, owner, addr, ts); err != nil {
		return "", err
	}

	metrics.AgentsRegistered.Inc()
	s.logger.Info().
		Str("identity", owner).
		Str("address", string(addr)).
		Str("name", profile.Name).
		Msg("agent registered")

	return addr, nil
}

// Browse returns every registered profile whose name or description
// contains query, compared case-insensitively. An empty query matches
// all profiles. Targets that are missing or not profiles are skipped.
func (s *Service) Browse(ctx context.Context, query string) ([]models.AgentInfo, error) {
	metrics.BrowseQueries.Inc()

	addrs, err := s.index.AllProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	needle := strings.ToLower(query)
	results := make([]models.AgentInfo, 0, len(addrs))
	for _, addr := range addrs {
		profile, err := s.profile(ctx, addr)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(profile.Name), needle) &&
			!strings.Contains(strings.ToLower(profile.Description), needle) {
			continue
		}
		results = append(results, models.NewAgentInfo(*profile, addr))
	}
	return results, nil
}

// Get returns the profile stored at addr, or nil when there is none.
func (s *Service) Get(ctx context.Context, addr models.Address) (*models.AgentInfo, error) {
	profile, err := s.profile(ctx, addr)
	if err != nil || profile == nil {
		return nil, err
	}
	info := models.NewAgentInfo(*profile, addr)
	return &info, nil
}

// Mine returns the canonical profile of owner, or nil when owner has not
// registered.
func (s *Service) Mine(ctx context.Context, owner string) (*models.AgentInfo, error) {
	addr, ok, err := s.index.LatestProfile(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("reading profile links: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, addr)
}

// profile resolves addr as an agent profile. Malformed entries are logged
// and reported as absent; only store failures are errors.
func (s *Service) profile(ctx context.Context, addr models.Address) (*models.AgentProfile, error) {
	profile, _, err := index.Resolve[models.AgentProfile](ctx, s.store, addr, models.KindAgentProfile)
	if errors.Is(err, index.ErrMalformed) {
		s.logger.Debug().Err(err).Str("address", string(addr)).Msg("skipping malformed profile")
		return nil, nil
	}
	return profile, err
}
