package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/acp/internal/index"
	"github.com/eldtechnologies/acp/internal/models"
	"github.com/eldtechnologies/acp/internal/store"
	"github.com/eldtechnologies/acp/internal/validation"
)

var wallet = "0x" + strings.Repeat("a", 40)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	svc := New(s, zerolog.Nop())

	clock := time.UnixMicro(1_700_000_000_000_000)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, s
}

func helperBot() models.AgentProfile {
	return models.AgentProfile{
		WalletAddress: wallet,
		SessionKeyID:  7,
		Name:          "Helper Bot",
		Description:   "Summarises documents",
	}
}

func TestRegister_BrowseReturnsProfileOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	addr, err := svc.Register(ctx, "alice", helperBot())
	require.NoError(t, err)

	agents, err := svc.Browse(ctx, "")
	require.NoError(t, err)
	require.Len(t, agents, 1)

	got := agents[0]
	assert.Equal(t, addr, got.AgentHash)
	assert.Equal(t, wallet, got.WalletAddress)
	assert.Equal(t, uint64(7), got.SessionKeyID)
	assert.Equal(t, "Helper Bot", got.Name)
	assert.Equal(t, "Summarises documents", got.Description)
	assert.NotZero(t, got.RegisteredAt)
}

func TestRegister_KeepsCallerTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	p := helperBot()
	p.RegisteredAt = 42
	addr, err := svc.Register(ctx, "alice", p)
	require.NoError(t, err)

	info, err := svc.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint64(42), info.RegisteredAt)
}

func TestBrowse_CaseInsensitiveMatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "alice", helperBot())
	require.NoError(t, err)

	tests := []struct {
		query string
		want  int
	}{
		{"helper", 1},
		{"HELPER", 1},
		{"bot", 1},
		{"summarises", 1},
		{"zzz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			agents, err := svc.Browse(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, agents, tt.want)
		})
	}
}

func TestRegister_InvalidProfileCreatesNoLinks(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)

	p := helperBot()
	p.WalletAddress = "0x123"
	_, err := svc.Register(ctx, "alice", p)
	require.Error(t, err)
	assert.True(t, validation.IsInvalid(err))

	p = helperBot()
	p.Name = "   "
	_, err = svc.Register(ctx, "alice", p)
	require.Error(t, err)
	assert.Equal(t, "name cannot be empty", validation.Reason(err))

	links, err := s.GetLinks(ctx, "alice", models.LinkAgentToProfile)
	require.NoError(t, err)
	assert.Empty(t, links)

	agents, err := svc.Browse(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestBrowse_SkipsMalformedTargets(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)

	_, err := svc.Register(ctx, "alice", helperBot())
	require.NoError(t, err)

	anchor, err := s.EnsureAnchor(ctx, index.AllAgentsPath)
	require.NoError(t, err)

	// A dangling target and a target that is not a profile.
	for _, target := range []models.Address{models.Address(strings.Repeat("0", 64)), anchor} {
		require.NoError(t, s.CreateLink(ctx, models.Link{
			Base:   string(anchor),
			Target: target,
			Type:   models.LinkAllAgents,
			Author: "mallory",
		}))
	}

	agents, err := svc.Browse(ctx, "")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "Helper Bot", agents[0].Name)
}

func TestGet_Missing(t *testing.T) {
	svc, _ := newTestService(t)
	info, err := svc.Get(context.Background(), models.Address(strings.Repeat("9", 64)))
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestMine_ReturnsLatestProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	mine, err := svc.Mine(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, mine)

	_, err = svc.Register(ctx, "alice", helperBot())
	require.NoError(t, err)

	updated := helperBot()
	updated.Description = "Now translates too"
	addr, err := svc.Register(ctx, "alice", updated)
	require.NoError(t, err)

	mine, err = svc.Mine(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, addr, mine.AgentHash)
	assert.Equal(t, "Now translates too", mine.Description)

	other, err := svc.Mine(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, other)
}
