package jobledger

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
	"github.com/eldtechnologies/acp/internal/settlement"
	"github.com/eldtechnologies/acp/internal/store"
	"github.com/eldtechnologies/acp/internal/validation"
)

var (
	agentWallet = "0x" + strings.Repeat("a", 40)
	escrowHash  = "0x" + strings.Repeat("e", 64)
)

func newTestLedger(t *testing.T, escrows settlement.EscrowVerifier) (*Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	svc := New(s, escrows, zerolog.Nop())

	clock := time.UnixMicro(1_700_000_000_000_000)
	svc.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	n := 0
	svc.newJobID = func() string {
		n++
		return fmt.Sprintf("job_test_%d", n)
	}
	return svc, s
}

func input() models.JobCreationInput {
	return models.JobCreationInput{
		AgentWalletAddress:  agentWallet,
		JobOfferingName:     "summarise",
		ServiceRequirements: map[string]string{"language": "en", "format": "pdf"},
		EscrowHash:          escrowHash,
	}
}

func strPtr(s string) *string { return &s }

// registerAgent publishes a profile for identity holding wallet.
func registerAgent(t *testing.T, svc *Service, identity, wallet string) {
	t.Helper()
	ctx := context.Background()
	rec, err := codec.NewRecord(models.KindAgentProfile, identity, 1, models.AgentProfile{
		WalletAddress: wallet,
		Name:          identity,
	})
	require.NoError(t, err)
	addr, err := svc.store.Create(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, svc.index.LinkProfile(ctx, identity, addr, 1))
}

func TestCanonicalRequirements(t *testing.T) {
	got, err := CanonicalRequirements(map[string]string{"zeta": "1", "alpha": "<b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"<b>","zeta":"1"}`, got)

	empty, err := CanonicalRequirements(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)
}

func TestSubmit_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t, nil)

	addr, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)

	job, err := svc.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, models.Job{
		JobID:               "job_test_1",
		Phases:              []string{"requested", "negotiation", "transaction"},
		EscrowHash:          escrowHash,
		AgentWalletAddress:  agentWallet,
		JobOfferingName:     "summarise",
		ServiceRequirements: `{"format":"pdf","language":"en"}`,
		CreatedAt:           uint64(time.UnixMicro(1_700_000_000_000_000).Add(time.Millisecond).UnixMicro()),
		CurrentPhase:        "requested",
		Deliverable:         nil,
	}, *job)
}

func TestSubmit_DefaultJobIDIsUnique(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewMemoryStore(), nil, zerolog.Nop())

	a, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)
	b, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	jobA, err := svc.Get(ctx, a)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(jobA.JobID, "job_"))
}

func TestSubmit_Invalid(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestLedger(t, nil)

	in := input()
	in.EscrowHash = "0xabc"
	_, err := svc.Submit(ctx, "alice", in)
	require.Error(t, err)
	assert.Equal(t, "escrow_hash must be a valid transaction hash (0x... 66 chars)", validation.Reason(err))

	links, err := s.GetLinks(ctx, "alice", models.LinkAgentToJobs)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestStore_RejectsUnknownPhase(t *testing.T) {
	s := store.NewMemoryStore()
	job := models.Job{
		JobID:              "job_1",
		Phases:             models.InitialPhases,
		EscrowHash:         escrowHash,
		AgentWalletAddress: agentWallet,
		CurrentPhase:       "unknown",
	}
	rec, err := codec.NewRecord(models.KindJob, "alice", 1, job)
	require.NoError(t, err)

	_, err = s.Create(context.Background(), rec)
	require.Error(t, err)
	reason := validation.Reason(err)
	for _, phase := range models.AllPhases {
		assert.Contains(t, reason, string(phase))
	}
}

func TestListMine_ReturnsAllJobs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t, nil)

	first := input()
	second := input()
	second.JobOfferingName = "translate"

	_, err := svc.Submit(ctx, "alice", first)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "alice", second)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "bob", first)
	require.NoError(t, err)

	jobs, err := svc.ListMine(ctx, "alice")
	require.NoError(t, err)

	var offerings []string
	for _, j := range jobs {
		offerings = append(offerings, j.JobOfferingName)
	}
	assert.ElementsMatch(t, []string{"summarise", "translate"}, offerings)

	none, err := svc.ListMine(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGet_AbsentOrNotAJob(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestLedger(t, nil)

	job, err := svc.Get(ctx, models.Address(strings.Repeat("0", 64)))
	require.NoError(t, err)
	assert.Nil(t, job)

	anchor, err := s.EnsureAnchor(ctx, "all_agents")
	require.NoError(t, err)
	job, err = svc.Get(ctx, anchor)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestAdvance_FollowsStateMachine(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t, nil)
	registerAgent(t, svc, "bob", agentWallet)

	jobAddr, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)

	_, err = svc.Advance(ctx, "bob", jobAddr, models.Transition{Phase: "transaction"})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = svc.Advance(ctx, "bob", jobAddr, models.Transition{Phase: "negotiation"})
	require.NoError(t, err)
	_, err = svc.Advance(ctx, "bob", jobAddr, models.Transition{Phase: "transaction"})
	require.NoError(t, err)

	// A deliverable is only accepted on completion.
	_, err = svc.Advance(ctx, "bob", jobAddr, models.Transition{Phase: "rejected", Deliverable: strPtr("x")})
	require.Error(t, err)
	assert.True(t, validation.IsInvalid(err))

	_, err = svc.Advance(ctx, "bob", jobAddr, models.Transition{Phase: "completed", Deliverable: strPtr("ipfs://report")})
	require.NoError(t, err)

	_, err = svc.Advance(ctx, "bob", jobAddr, models.Transition{Phase: "rejected"})
	assert.ErrorIs(t, err, ErrIllegalTransition, "completed is terminal")

	history, err := svc.History(ctx, jobAddr)
	require.NoError(t, err)
	require.NotNil(t, history)
	assert.Equal(t, "completed", history.CurrentPhase)
	require.NotNil(t, history.Deliverable)
	assert.Equal(t, "ipfs://report", *history.Deliverable)
	require.Len(t, history.Events, 3)
	assert.Equal(t, "negotiation", history.Events[0].Phase)
	assert.Equal(t, "transaction", history.Events[1].Phase)
	assert.Equal(t, "completed", history.Events[2].Phase)

	// The stored job itself is unchanged.
	job, err := svc.Get(ctx, jobAddr)
	require.NoError(t, err)
	assert.Equal(t, "requested", job.CurrentPhase)
	assert.Nil(t, job.Deliverable)
}

func TestAdvance_MissingJob(t *testing.T) {
	svc, _ := newTestLedger(t, nil)
	_, err := svc.Advance(context.Background(), "bob", models.Address(strings.Repeat("0", 64)), models.Transition{Phase: "negotiation"})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

// injectEvent writes a phase event straight to the store, bypassing Advance.
func injectEvent(t *testing.T, s store.DataStore, author string, jobAddr models.Address, phase string, recordedAt uint64) {
	t.Helper()
	ctx := context.Background()
	rec, err := codec.NewRecord(models.KindPhaseEvent, author, recordedAt, models.PhaseEvent{
		EventID:     fmt.Sprintf("01AAAAAAAAAAAAAAAAAAAAAA%02d", recordedAt),
		JobAddress:  jobAddr,
		Phase:       phase,
		Deliverable: strPtr("forged"),
		RecordedAt:  recordedAt,
	})
	require.NoError(t, err)
	addr, err := s.Create(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, s.CreateLink(ctx, models.Link{
		Base:   string(jobAddr),
		Target: addr,
		Type:   models.LinkJobToEvents,
		Author: author,
	}))
}

func TestHistory_SkipsIllegalEvents(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestLedger(t, nil)

	jobAddr, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)

	// Jumps straight from requested to completed.
	injectEvent(t, s, "alice", jobAddr, "completed", 1)

	_, err = svc.Advance(ctx, "alice", jobAddr, models.Transition{Phase: "negotiation"})
	require.NoError(t, err)

	history, err := svc.History(ctx, jobAddr)
	require.NoError(t, err)
	require.Len(t, history.Events, 2)
	assert.Equal(t, "completed", history.Events[0].Phase, "ordered by recorded_at")
	assert.Equal(t, "negotiation", history.CurrentPhase)
	assert.Nil(t, history.Deliverable)
}

func TestAdvance_OnlyParties(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t, nil)
	registerAgent(t, svc, "bob", "0x"+strings.ToUpper(agentWallet[2:]))
	registerAgent(t, svc, "mallory", "0x"+strings.Repeat("d", 40))

	jobAddr, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)

	tests := []struct {
		identity string
		allowed  bool
	}{
		{"carol", false},   // no profile
		{"mallory", false}, // profile with another wallet
		{"", false},
		{"alice", true}, // submitter
		{"bob", true},   // agent, wallet compared case-insensitively
	}

	phases := []string{"negotiation", "transaction"}
	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			if tt.allowed {
				_, err := svc.Advance(ctx, tt.identity, jobAddr, models.Transition{Phase: phases[0]})
				require.NoError(t, err)
				phases = phases[1:]
				return
			}
			_, err := svc.Advance(ctx, tt.identity, jobAddr, models.Transition{Phase: "rejected"})
			assert.ErrorIs(t, err, ErrNotParticipant)
		})
	}

	history, err := svc.History(ctx, jobAddr)
	require.NoError(t, err)
	assert.Equal(t, "transaction", history.CurrentPhase)
	assert.Len(t, history.Events, 2)
}

func TestHistory_IgnoresEventsFromNonParties(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestLedger(t, nil)

	jobAddr, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)

	injectEvent(t, s, "mallory", jobAddr, "rejected", 1)

	history, err := svc.History(ctx, jobAddr)
	require.NoError(t, err)
	assert.Empty(t, history.Events)
	assert.Equal(t, "requested", history.CurrentPhase)

	// The stranger's event does not block the real parties either.
	_, err = svc.Advance(ctx, "alice", jobAddr, models.Transition{Phase: "negotiation"})
	require.NoError(t, err)
}

func TestHistory_Absent(t *testing.T) {
	svc, _ := newTestLedger(t, nil)
	history, err := svc.History(context.Background(), models.Address(strings.Repeat("0", 64)))
	require.NoError(t, err)
	assert.Nil(t, history)
}

func TestSubmit_EscrowVerificationIsBestEffort(t *testing.T) {
	ctx := context.Background()

	static := settlement.NewStatic()
	static.SetEscrow(escrowHash, agentWallet)
	svc, _ := newTestLedger(t, static)

	_, err := svc.Submit(ctx, "alice", input())
	require.NoError(t, err)

	unfunded := input()
	unfunded.EscrowHash = "0x" + strings.Repeat("f", 64)
	_, err = svc.Submit(ctx, "alice", unfunded)
	require.NoError(t, err, "escrow mismatch is logged, not returned")

	svc, _ = newTestLedger(t, settlement.Unavailable{})
	_, err = svc.Submit(ctx, "alice", input())
	require.NoError(t, err)
}
