// Package settlement is the boundary to the external settlement layer that
// holds wallet balances and job escrows. No network client ships with it;
// deployments plug in a BalanceProvider and EscrowVerifier, and the default
// reports every lookup as unavailable.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/acp/internal/models"
	"github.com/eldtechnologies/acp/internal/validation"
)

var (
	ErrUnavailable    = errors.New("settlement: service unavailable")
	ErrInvalidAddress = errors.New("settlement: invalid wallet address")
	ErrEscrowMismatch = errors.New("settlement: escrow does not fund agent wallet")
)

// weiPerEth is 10^18.
var weiPerEth = uint256.NewInt(1_000_000_000_000_000_000)

// BalanceProvider reports the balance of a wallet in wei.
type BalanceProvider interface {
	Balance(ctx context.Context, address string) (*uint256.Int, error)
}

// EscrowVerifier checks that an escrow transaction funds the given agent
// wallet.
type EscrowVerifier interface {
	VerifyEscrow(ctx context.Context, escrowHash, agentWallet string) error
}

// Unavailable is the provider used when no settlement service is
// configured.
type Unavailable struct{}

// Balance always fails with ErrUnavailable.
func (Unavailable) Balance(context.Context, string) (*uint256.Int, error) {
	return nil, ErrUnavailable
}

// VerifyEscrow always fails with ErrUnavailable.
func (Unavailable) VerifyEscrow(context.Context, string, string) error {
	return ErrUnavailable
}

// Bridge fronts a provider and verifier with address checks and
// placeholder handling.
type Bridge struct {
	balances BalanceProvider
	escrows  EscrowVerifier
	logger   zerolog.Logger
}

// NewBridge creates a bridge. Nil arguments fall back to Unavailable.
func NewBridge(balances BalanceProvider, escrows EscrowVerifier, logger zerolog.Logger) *Bridge {
	if balances == nil {
		balances = Unavailable{}
	}
	if escrows == nil {
		escrows = Unavailable{}
	}
	return &Bridge{
		balances: balances,
		escrows:  escrows,
		logger:   logger.With().Str("component", "settlement").Logger(),
	}
}

// Balance looks up the balance of address. A malformed address returns
// ErrInvalidAddress. When the provider fails the zero placeholder is
// returned with Available false and no error.
func (b *Bridge) Balance(ctx context.Context, address string) (models.WalletBalance, error) {
	if !validation.IsWalletAddress(address) {
		return models.WalletBalance{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	wei, err := b.balances.Balance(ctx, address)
	if err != nil || wei == nil {
		b.logger.Warn().Err(err).Str("wallet", address).Msg("balance lookup failed, returning placeholder")
		return Placeholder(address), nil
	}

	return models.WalletBalance{
		Address:    address,
		BalanceWei: wei.Dec(),
		BalanceEth: FormatEth(wei),
		Available:  true,
	}, nil
}

// VerifyEscrow asks the verifier whether escrowHash funds agentWallet.
func (b *Bridge) VerifyEscrow(ctx context.Context, escrowHash, agentWallet string) error {
	return b.escrows.VerifyEscrow(ctx, escrowHash, agentWallet)
}

// Placeholder is the balance reported while settlement is unreachable.
func Placeholder(address string) models.WalletBalance {
	return models.WalletBalance{
		Address:    address,
		BalanceWei: "0",
		BalanceEth: "0.0",
		Available:  false,
	}
}

// FormatEth renders a wei amount as a decimal ether string with trailing
// zeros removed and at least one fractional digit ("0.0", "1.5").
func FormatEth(wei *uint256.Int) string {
	whole, frac := new(uint256.Int).DivMod(wei, weiPerEth, new(uint256.Int))

	fracDigits := frac.Dec()
	fracDigits = strings.Repeat("0", 18-len(fracDigits)) + fracDigits
	fracDigits = strings.TrimRight(fracDigits, "0")
	if fracDigits == "" {
		fracDigits = "0"
	}
	return whole.Dec() + "." + fracDigits
}
