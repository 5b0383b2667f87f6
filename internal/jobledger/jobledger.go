// Package jobledger records jobs requested from agents and the phase
// transitions they go through. Stored jobs are never rewritten: a job's
// progress is the ordered set of phase events linked from it.
package jobledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/crypto"
	"github.com/eldtechnologies/acp/internal/index"
	"github.com/eldtechnologies/acp/internal/metrics"
	"github.com/eldtechnologies/acp/internal/models"
	"github.com/eldtechnologies/acp/internal/settlement"
	"github.com/eldtechnologies/acp/internal/store"
)

var (
	ErrJobNotFound       = errors.New("jobledger: job not found")
	ErrIllegalTransition = errors.New("jobledger: illegal phase transition")
	ErrNotParticipant    = errors.New("jobledger: identity is not a party to the job")
)

// Service is the job ledger.
type Service struct {
	store    store.DataStore
	index    *index.Maintainer
	escrows  settlement.EscrowVerifier
	logger   zerolog.Logger
	now      func() time.Time
	newJobID func() string
}

// New creates a ledger over s. escrows may be nil, in which case escrow
// references are recorded without being checked.
func New(s store.DataStore, escrows settlement.EscrowVerifier, logger zerolog.Logger) *Service {
	return &Service{
		store:    s,
		index:    index.New(s),
		escrows:  escrows,
		logger:   logger.With().Str("component", "jobledger").Logger(),
		now:      time.Now,
		newJobID: crypto.NewJobID,
	}
}

// CanonicalRequirements serializes service requirements as RFC 8785
// canonical JSON, so equal mappings always produce the same string.
func CanonicalRequirements(reqs map[string]string) (string, error) {
	if reqs == nil {
		reqs = map[string]string{}
	}
	raw, err := json.Marshal(reqs)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing service requirements: %w", err)
	}
	return string(canonical), nil
}

// Submit records a new job requested by owner and links it to owner.
func (s *Service) Submit(ctx context.Context, owner string, input models.JobCreationInput) (models.Address, error) {
	reqs, err := CanonicalRequirements(input.ServiceRequirements)
	if err != nil {
		return "", err
	}

	now := uint64(s.now().UnixMicro())
	job := models.Job{
		JobID:               s.newJobID(),
		Phases:              append([]string(nil), models.InitialPhases...),
		EscrowHash:          input.EscrowHash,
		AgentWalletAddress:  input.AgentWalletAddress,
		JobOfferingName:     input.JobOfferingName,
		ServiceRequirements: reqs,
		CreatedAt:           now,
		CurrentPhase:        string(models.PhaseRequested),
	}

	rec, err := codec.NewRecord(models.KindJob, owner, now, job)
	if err != nil {
		return "", err
	}
	addr, err := s.store.Create(ctx, rec)
	if err != nil {
		return "", err
	}
	if err := s.index.LinkJob(ctx, owner, addr, now); err != nil {
		return "", fmt.Errorf("linking job: %w", err)
	}

	metrics.JobsSubmitted.Inc()
	logger := s.logger.With().
		Str("identity", owner).
		Str("address", string(addr)).
		Str("job_id", job.JobID).
		Logger()
	logger.Info().Str("offering", job.JobOfferingName).Msg("job submitted")

	if s.escrows != nil {
		if err := s.escrows.VerifyEscrow(ctx, job.EscrowHash, job.AgentWalletAddress); err != nil {
			logger.Warn().Err(err).Str("escrow_hash", job.EscrowHash).Msg("escrow not verified")
		} else {
			logger.Debug().Str("escrow_hash", job.EscrowHash).Msg("escrow verified")
		}
	}

	return addr, nil
}

// ListMine returns the jobs linked from owner. Entries that do not decode
// as jobs are skipped.
func (s *Service) ListMine(ctx context.Context, owner string) ([]models.Job, error) {
	addrs, err := s.index.Jobs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	jobs := make([]models.Job, 0, len(addrs))
	for _, addr := range addrs {
		job, err := s.Get(ctx, addr)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

// Get returns the job stored at addr, or nil when nothing is stored there
// or the record is not a job.
func (s *Service) Get(ctx context.Context, addr models.Address) (*models.Job, error) {
	job, _, err := s.job(ctx, addr)
	return job, err
}

func (s *Service) job(ctx context.Context, addr models.Address) (*models.Job, *models.Record, error) {
	job, rec, err := index.Resolve[models.Job](ctx, s.store, addr, models.KindJob)
	if errors.Is(err, index.ErrMalformed) {
		s.logger.Debug().Err(err).Str("address", string(addr)).Msg("skipping malformed job")
		return nil, nil, nil
	}
	return job, rec, err
}

// party decides which identities may record phase events for one job: the
// identity that submitted it, and any identity whose canonical profile
// carries the job's agent wallet. Answers are cached per identity.
type party struct {
	svc     *Service
	owner   string
	wallet  string
	answers map[string]bool
}

func (s *Service) party(rec *models.Record, job *models.Job) *party {
	return &party{svc: s, owner: rec.Author, wallet: job.AgentWalletAddress, answers: make(map[string]bool)}
}

func (p *party) includes(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, nil
	}
	if identity == p.owner {
		return true, nil
	}
	if ok, seen := p.answers[identity]; seen {
		return ok, nil
	}

	addr, found, err := p.svc.index.LatestProfile(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("reading profile links: %w", err)
	}
	ok := false
	if found {
		profile, _, err := index.Resolve[models.AgentProfile](ctx, p.svc.store, addr, models.KindAgentProfile)
		if err != nil && !errors.Is(err, index.ErrMalformed) {
			return false, err
		}
		ok = profile != nil && strings.EqualFold(profile.WalletAddress, p.wallet)
	}
	p.answers[identity] = ok
	return ok, nil
}

// Advance records a phase transition of the job at jobAddr. The job must
// exist, author must be its submitter or the agent holding its wallet, and
// the transition must be legal from its current phase.
func (s *Service) Advance(ctx context.Context, author string, jobAddr models.Address, t models.Transition) (models.Address, error) {
	history, parties, err := s.history(ctx, jobAddr)
	if err != nil {
		return "", err
	}
	if history == nil {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobAddr)
	}
	ok, err := parties.includes(ctx, author)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotParticipant, author)
	}

	current := models.Phase(history.CurrentPhase)
	if !current.CanAdvanceTo(models.Phase(t.Phase)) {
		return "", fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, t.Phase)
	}

	now := uint64(s.now().UnixMicro())
	event := models.PhaseEvent{
		EventID:     crypto.NewEventID(),
		JobAddress:  jobAddr,
		Phase:       t.Phase,
		Deliverable: t.Deliverable,
		RecordedAt:  now,
	}

	rec, err := codec.NewRecord(models.KindPhaseEvent, author, now, event)
	if err != nil {
		return "", err
	}
	addr, err := s.store.Create(ctx, rec)
	if err != nil {
		return "", err
	}
	if err := s.index.LinkPhaseEvent(ctx, author, jobAddr, addr, now); err != nil {
		return "", fmt.Errorf("linking phase event: %w", err)
	}

	metrics.PhaseEventsRecorded.WithLabelValues(t.Phase).Inc()
	s.logger.Info().
		Str("identity", author).
		Str("address", string(jobAddr)).
		Str("job_id", history.Job.JobID).
		Str("from", string(current)).
		Str("to", t.Phase).
		Msg("job advanced")

	return addr, nil
}

// History returns the job at jobAddr with its phase events ordered by
// (recorded_at, event_id), or nil when there is no job there. Only events
// authored by a party to the job are included. The current phase and
// deliverable fold over them from the job's stored phase; events that are
// not legal at their point in the sequence are ignored.
func (s *Service) History(ctx context.Context, jobAddr models.Address) (*models.JobHistory, error) {
	history, _, err := s.history(ctx, jobAddr)
	return history, err
}

func (s *Service) history(ctx context.Context, jobAddr models.Address) (*models.JobHistory, *party, error) {
	job, jobRec, err := s.job(ctx, jobAddr)
	if err != nil || job == nil {
		return nil, nil, err
	}
	parties := s.party(jobRec, job)

	addrs, err := s.index.Events(ctx, jobAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listing phase events: %w", err)
	}

	events := make([]models.PhaseEvent, 0, len(addrs))
	for _, addr := range addrs {
		event, rec, err := index.Resolve[models.PhaseEvent](ctx, s.store, addr, models.KindPhaseEvent)
		if errors.Is(err, index.ErrMalformed) {
			s.logger.Debug().Err(err).Str("address", string(addr)).Msg("skipping malformed phase event")
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if event == nil || event.JobAddress != jobAddr {
			continue
		}
		ok, err := parties.includes(ctx, rec.Author)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			s.logger.Debug().
				Str("address", string(addr)).
				Str("identity", rec.Author).
				Msg("skipping phase event from non-party")
			continue
		}
		events = append(events, *event)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].RecordedAt != events[j].RecordedAt {
			return events[i].RecordedAt < events[j].RecordedAt
		}
		return events[i].EventID < events[j].EventID
	})

	history := &models.JobHistory{
		Address:      jobAddr,
		Job:          *job,
		Events:       events,
		CurrentPhase: job.CurrentPhase,
		Deliverable:  job.Deliverable,
	}
	for _, event := range events {
		if !models.Phase(history.CurrentPhase).CanAdvanceTo(models.Phase(event.Phase)) {
			continue
		}
		history.CurrentPhase = event.Phase
		if event.Deliverable != nil {
			history.Deliverable = event.Deliverable
		}
	}
	return history, parties, nil
}
