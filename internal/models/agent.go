package models

// AgentProfile is the discoverable profile an identity registers in the directory.
// Field formats are checked by the validation engine when the record is stored,
// not when the value is constructed.
type AgentProfile struct {
	WalletAddress string `json:"wallet_address" cbor:"wallet_address"`
	SessionKeyID  uint64 `json:"session_key_id" cbor:"session_key_id"`
	Name          string `json:"name" cbor:"name"`
	Description   string `json:"description" cbor:"description"`
	RegisteredAt  uint64 `json:"registered_at" cbor:"registered_at"` // Unix µs
}

// AgentInfo is a profile together with the content address it is stored under.
type AgentInfo struct {
	WalletAddress string  `json:"wallet_address"`
	SessionKeyID  uint64  `json:"session_key_id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	RegisteredAt  uint64  `json:"registered_at"`
	AgentHash     Address `json:"agent_hash"`
}

// NewAgentInfo pairs a profile with its address.
func NewAgentInfo(p AgentProfile, addr Address) AgentInfo {
	return AgentInfo{
		WalletAddress: p.WalletAddress,
		SessionKeyID:  p.SessionKeyID,
		Name:          p.Name,
		Description:   p.Description,
		RegisteredAt:  p.RegisteredAt,
		AgentHash:     addr,
	}
}
