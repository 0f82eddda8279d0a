// Package storage defines the persistence interfaces shared by the memory
// and postgres backends.
package storage

import (
	"context"
	"errors"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/achievement"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/leaderboard"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/vault"
)

// ErrNotFound is returned when a record does not exist. Backends wrap it
// with the record's key.
var ErrNotFound = errors.New("not found")

// ConfigStore persists the singleton protocol configuration and its
// aggregate counters.
type ConfigStore interface {
	InitConfig(ctx context.Context, cfg protocol.Config) (protocol.Config, error)
	GetConfig(ctx context.Context) (protocol.Config, error)
	UpdateConfig(ctx context.Context, cfg protocol.Config) (protocol.Config, error)

	// AddTVL atomically applies a signed delta to the aggregate TVL and
	// returns the new value. A delta that would drive TVL negative is an
	// error.
	AddTVL(ctx context.Context, delta int64) (uint64, error)

	// IncrementDepositorCount atomically counts first-time depositors and
	// returns the 1-based index of the caller.
	IncrementDepositorCount(ctx context.Context) (uint32, error)
}

// VaultStore persists vault accounts keyed by (owner, asset).
type VaultStore interface {
	CreateVault(ctx context.Context, acct vault.Account) (vault.Account, error)
	UpdateVault(ctx context.Context, acct vault.Account) (vault.Account, error)
	GetVault(ctx context.Context, owner, asset string) (vault.Account, error)
	ListVaults(ctx context.Context, owner string) ([]vault.Account, error)
	ListActiveVaults(ctx context.Context) ([]vault.Account, error)
	DeleteVault(ctx context.Context, owner, asset string) error
}

// LeaderboardStore persists per-owner TVL aggregates.
type LeaderboardStore interface {
	// AddLeaderboardTVL applies a signed delta to the owner's aggregate,
	// creating the entry on first use and returning the updated entry.
	AddLeaderboardTVL(ctx context.Context, owner string, delta int64) (leaderboard.Entry, error)
	GetLeaderboardEntry(ctx context.Context, owner string) (leaderboard.Entry, error)
	ListLeaderboard(ctx context.Context) ([]leaderboard.Entry, error)
	DeleteLeaderboardEntry(ctx context.Context, owner string) error
}

// AchievementStore persists per-owner achievement state.
type AchievementStore interface {
	CreateAchievementState(ctx context.Context, st achievement.State) (achievement.State, error)
	UpdateAchievementState(ctx context.Context, st achievement.State) (achievement.State, error)
	GetAchievementState(ctx context.Context, owner string) (achievement.State, error)
}

// BoostPassStore persists boost pass grants.
type BoostPassStore interface {
	// GrantBoostPass grants owner a pass and consumes one supply slot as a
	// single atomic step, returning the resulting supply. Granting an
	// existing holder returns granted=false without touching the supply;
	// a grant beyond limit fails with protocol.ErrSupplyExhausted and
	// consumes nothing.
	GrantBoostPass(ctx context.Context, owner string, limit uint64) (supply uint64, granted bool, err error)
	HasBoostPass(ctx context.Context, owner string) (bool, error)
}

// Transactor is implemented by backends that can run a sequence of store
// calls as one atomic unit. The callback receives a context carrying the
// transaction; store methods called with that context join it. Backends
// whose individual mutations already serialize under a process-wide lock
// may omit it.
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}
