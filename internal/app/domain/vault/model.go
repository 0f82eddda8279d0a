// Package vault defines the vault account model and the pure reward
// compounding math used by the ledger and the midnight harvest.
package vault

import "time"

// Account is a single staking vault, keyed by (owner, asset).
type Account struct {
	Owner               string    `json:"owner"`
	Asset               string    `json:"asset"`
	Balance             uint64    `json:"balance"`
	LastCompoundTime    int64     `json:"last_compound_time"`
	TotalSoulsHarvested uint64    `json:"total_souls_harvested"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Key returns the storage key for an owner/asset pair.
func Key(owner, asset string) string {
	return owner + "/" + asset
}
