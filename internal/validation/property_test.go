package validation

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/eldtechnologies/acp/internal/models"
)

// candidate builds a string of total length n, starting with "0x" when
// prefixed is set, padded with fill.
func candidate(n int, prefixed bool, fill rune) string {
	var b strings.Builder
	if prefixed && n >= 2 {
		b.WriteString("0x")
	}
	for b.Len() < n {
		b.WriteRune(fill)
	}
	return b.String()
}

func TestWalletAddressProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("wallet accepted iff length 42 with 0x prefix", prop.ForAll(
		func(n int, prefixed bool, fill rune) bool {
			s := candidate(n, prefixed, fill)
			want := len(s) == 42 && strings.HasPrefix(s, "0x")
			res := ValidateAgentProfile(models.AgentProfile{WalletAddress: s, Name: "agent"})
			return res.Valid() == want && IsWalletAddress(s) == want
		},
		gen.IntRange(0, 80),
		gen.Bool(),
		gen.AlphaNumChar(),
	))

	properties.Property("arbitrary strings follow the same rule", prop.ForAll(
		func(s string) bool {
			want := len(s) == 42 && strings.HasPrefix(s, "0x")
			return IsWalletAddress(s) == want
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestTxHashProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("escrow hash accepted iff length 66 with 0x prefix", prop.ForAll(
		func(n int, prefixed bool, fill rune) bool {
			s := candidate(n, prefixed, fill)
			want := len(s) == 66 && strings.HasPrefix(s, "0x")
			j := validJob()
			j.EscrowHash = s
			return ValidateJob(j).Valid() == want && IsTxHash(s) == want
		},
		gen.IntRange(0, 100),
		gen.Bool(),
		gen.AlphaNumChar(),
	))

	properties.TestingRun(t)
}

func TestExamples(t *testing.T) {
	if IsWalletAddress("0x123") {
		t.Fatal("0x123 is too short")
	}
	if !IsWalletAddress("0x" + strings.Repeat("a", 40)) {
		t.Fatal("0x + 40 chars must be accepted")
	}
	if !IsTxHash("0x" + strings.Repeat("0", 64)) {
		t.Fatal("0x + 64 chars must be accepted")
	}
}
