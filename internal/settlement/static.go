package settlement

import (
	"context"
	"strings"
	"sync"

	"github.com/holiman/uint256"
)

// Static is an in-memory settlement layer with fixed balances and
// escrows. Addresses and hashes compare case-insensitively.
type Static struct {
	mu       sync.RWMutex
	balances map[string]*uint256.Int
	escrows  map[string]string // escrow hash -> funded wallet
}

// NewStatic creates an empty static settlement layer.
func NewStatic() *Static {
	return &Static{
		balances: make(map[string]*uint256.Int),
		escrows:  make(map[string]string),
	}
}

// SetBalance sets the wei balance of a wallet.
func (s *Static) SetBalance(address string, wei *uint256.Int) {
	s.mu.Lock()
	s.balances[strings.ToLower(address)] = new(uint256.Int).Set(wei)
	s.mu.Unlock()
}

// SetEscrow records that escrowHash funds wallet.
func (s *Static) SetEscrow(escrowHash, wallet string) {
	s.mu.Lock()
	s.escrows[strings.ToLower(escrowHash)] = strings.ToLower(wallet)
	s.mu.Unlock()
}

// Balance returns the configured balance, zero for unknown wallets.
func (s *Static) Balance(_ context.Context, address string) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if wei, ok := s.balances[strings.ToLower(address)]; ok {
		return new(uint256.Int).Set(wei), nil
	}
	return uint256.NewInt(0), nil
}

// VerifyEscrow reports ErrEscrowMismatch unless escrowHash was recorded
// for agentWallet.
func (s *Static) VerifyEscrow(_ context.Context, escrowHash, agentWallet string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.escrows[strings.ToLower(escrowHash)] != strings.ToLower(agentWallet) {
		return ErrEscrowMismatch
	}
	return nil
}
