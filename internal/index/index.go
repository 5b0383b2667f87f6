// Package index maintains the links that make stored records
// discoverable: identity to profile, the all_agents anchor to every
// profile, identity to job, and job to phase event.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
	"github.com/eldtechnologies/acp/internal/store"
)

// AllAgentsPath is the anchor every registered profile is linked from.
const AllAgentsPath = "all_agents"

// ErrMalformed is returned by Resolve when the target exists but is not
// a decodable entry of the expected kind.
var ErrMalformed = errors.New("index: malformed entry")

// Maintainer creates and reads index links. Links are only created for
// targets the caller has already stored successfully.
type Maintainer struct {
	store store.DataStore
}

// New creates a maintainer over s.
func New(s store.DataStore) *Maintainer {
	return &Maintainer{store: s}
}

// LinkProfile links owner to a stored profile and fans the profile out
// from the all_agents anchor, creating the anchor on first use.
func (m *Maintainer) LinkProfile(ctx context.Context, owner string, profile models.Address, ts uint64) error {
	if err := m.store.CreateLink(ctx, models.Link{
		Base:      owner,
		Target:    profile,
		Type:      models.LinkAgentToProfile,
		Author:    owner,
		Timestamp: ts,
	}); err != nil {
		return fmt.Errorf("linking profile to owner: %w", err)
	}

	anchor, err := m.store.EnsureAnchor(ctx, AllAgentsPath)
	if err != nil {
		return fmt.Errorf("ensuring %s anchor: %w", AllAgentsPath, err)
	}

	if err := m.store.CreateLink(ctx, models.Link{
		Base:      string(anchor),
		Target:    profile,
		Type:      models.LinkAllAgents,
		Author:    owner,
		Timestamp: ts,
	}); err != nil {
		return fmt.Errorf("linking profile to anchor: %w", err)
	}
	return nil
}

// LinkJob links owner to a stored job.
func (m *Maintainer) LinkJob(ctx context.Context, owner string, job models.Address, ts uint64) error {
	return m.store.CreateLink(ctx, models.Link{
		Base:      owner,
		Target:    job,
		Type:      models.LinkAgentToJobs,
		Author:    owner,
		Timestamp: ts,
	})
}

// LinkPhaseEvent links a job to a stored phase event.
func (m *Maintainer) LinkPhaseEvent(ctx context.Context, author string, job, event models.Address, ts uint64) error {
	return m.store.CreateLink(ctx, models.Link{
		Base:      string(job),
		Target:    event,
		Type:      models.LinkJobToEvents,
		Author:    author,
		Timestamp: ts,
	})
}

// AllProfiles returns every profile address linked from the all_agents
// anchor, each once, in first-linked order.
func (m *Maintainer) AllProfiles(ctx context.Context) ([]models.Address, error) {
	anchor, err := store.AnchorAddress(AllAgentsPath)
	if err != nil {
		return nil, err
	}
	links, err := m.store.GetLinks(ctx, string(anchor), models.LinkAllAgents)
	if err != nil {
		return nil, err
	}
	return uniqueTargets(links), nil
}

// LatestProfile returns the canonical profile address of owner: the
// target of the link with the greatest timestamp, the later link winning
// ties. ok is false when owner never registered.
func (m *Maintainer) LatestProfile(ctx context.Context, owner string) (addr models.Address, ok bool, err error) {
	links, err := m.store.GetLinks(ctx, owner, models.LinkAgentToProfile)
	if err != nil {
		return "", false, err
	}
	if len(links) == 0 {
		return "", false, nil
	}

	latest := links[0]
	for _, link := range links[1:] {
		if link.Timestamp >= latest.Timestamp {
			latest = link
		}
	}
	return latest.Target, true, nil
}

// Jobs returns the job addresses linked from owner.
func (m *Maintainer) Jobs(ctx context.Context, owner string) ([]models.Address, error) {
	links, err := m.store.GetLinks(ctx, owner, models.LinkAgentToJobs)
	if err != nil {
		return nil, err
	}
	return uniqueTargets(links), nil
}

// Events returns the phase event addresses linked from a job.
func (m *Maintainer) Events(ctx context.Context, job models.Address) ([]models.Address, error) {
	links, err := m.store.GetLinks(ctx, string(job), models.LinkJobToEvents)
	if err != nil {
		return nil, err
	}
	return uniqueTargets(links), nil
}

func uniqueTargets(links []models.Link) []models.Address {
	seen := make(map[models.Address]bool, len(links))
	targets := make([]models.Address, 0, len(links))
	for _, link := range links {
		if seen[link.Target] {
			continue
		}
		seen[link.Target] = true
		targets = append(targets, link.Target)
	}
	return targets
}

// Resolve fetches addr and decodes its payload as T, returning the
// envelope alongside. The entry is nil with a nil error when nothing is
// stored at addr; the error is ErrMalformed when the record is not of
// the given kind or its payload does not decode strictly.
func Resolve[T any](ctx context.Context, s store.DataStore, addr models.Address, kind models.Kind) (*T, *models.Record, error) {
	rec, err := s.Get(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, nil
	}
	if rec.Kind != kind {
		return nil, rec, ErrMalformed
	}

	var entry T
	if err := codec.UnmarshalStrict(rec.Payload, &entry); err != nil {
		return nil, rec, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &entry, rec, nil
}
