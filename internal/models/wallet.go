package models

// WalletBalance is the settlement-layer balance of a wallet.
// Available is false when the balance is a placeholder because the
// settlement service could not be reached.
type WalletBalance struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balance_wei"`
	BalanceEth string `json:"balance_eth"`
	Available  bool   `json:"available"`
}
