package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/achievement"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/leaderboard"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/vault"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu           sync.RWMutex
	config       *protocol.Config
	vaults       map[string]vault.Account
	leaderboard  map[string]leaderboard.Entry
	nextSeq      uint64
	achievements map[string]achievement.State
	boostPasses  map[string]bool
	depositors   uint32
}

var _ storage.ConfigStore = (*Store)(nil)
var _ storage.VaultStore = (*Store)(nil)
var _ storage.LeaderboardStore = (*Store)(nil)
var _ storage.AchievementStore = (*Store)(nil)
var _ storage.BoostPassStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		vaults:       make(map[string]vault.Account),
		leaderboard:  make(map[string]leaderboard.Entry),
		nextSeq:      1,
		achievements: make(map[string]achievement.State),
		boostPasses:  make(map[string]bool),
	}
}

// ConfigStore implementation --------------------------------------------------

func (s *Store) InitConfig(_ context.Context, cfg protocol.Config) (protocol.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config != nil {
		return protocol.Config{}, protocol.ErrAlreadyInitialized
	}

	now := time.Now().UTC()
	cfg.ApplyDefaults()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	clone := cfg
	s.config = &clone
	return cfg, nil
}

func (s *Store) GetConfig(_ context.Context) (protocol.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return protocol.Config{}, fmt.Errorf("protocol config: %w", storage.ErrNotFound)
	}
	return *s.config, nil
}

func (s *Store) UpdateConfig(_ context.Context, cfg protocol.Config) (protocol.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == nil {
		return protocol.Config{}, fmt.Errorf("protocol config: %w", storage.ErrNotFound)
	}

	cfg.CreatedAt = s.config.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	clone := cfg
	s.config = &clone
	return cfg, nil
}

func (s *Store) AddTVL(_ context.Context, delta int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == nil {
		return 0, fmt.Errorf("protocol config: %w", storage.ErrNotFound)
	}

	if delta < 0 {
		dec := uint64(-delta)
		if dec > s.config.TotalTVL {
			return 0, fmt.Errorf("tvl underflow: have %d, subtract %d", s.config.TotalTVL, dec)
		}
		s.config.TotalTVL -= dec
	} else {
		s.config.TotalTVL += uint64(delta)
	}
	s.config.UpdatedAt = time.Now().UTC()
	return s.config.TotalTVL, nil
}

func (s *Store) IncrementDepositorCount(_ context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.depositors++
	return s.depositors, nil
}

// VaultStore implementation ---------------------------------------------------

func (s *Store) CreateVault(_ context.Context, acct vault.Account) (vault.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vault.Key(acct.Owner, acct.Asset)
	if existing, exists := s.vaults[key]; exists && existing.Active {
		return vault.Account{}, protocol.ErrVaultExists
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.vaults[key] = acct
	return acct, nil
}

func (s *Store) UpdateVault(_ context.Context, acct vault.Account) (vault.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vault.Key(acct.Owner, acct.Asset)
	original, ok := s.vaults[key]
	if !ok {
		return vault.Account{}, fmt.Errorf("vault %s: %w", key, storage.ErrNotFound)
	}

	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	s.vaults[key] = acct
	return acct, nil
}

func (s *Store) GetVault(_ context.Context, owner, asset string) (vault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := vault.Key(owner, asset)
	acct, ok := s.vaults[key]
	if !ok {
		return vault.Account{}, fmt.Errorf("vault %s: %w", key, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) ListVaults(_ context.Context, owner string) ([]vault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]vault.Account, 0)
	for _, acct := range s.vaults {
		if acct.Owner == owner {
			result = append(result, acct)
		}
	}
	return result, nil
}

func (s *Store) ListActiveVaults(_ context.Context) ([]vault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]vault.Account, 0)
	for _, acct := range s.vaults {
		if acct.Active {
			result = append(result, acct)
		}
	}
	return result, nil
}

func (s *Store) DeleteVault(_ context.Context, owner, asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vault.Key(owner, asset)
	if _, ok := s.vaults[key]; !ok {
		return fmt.Errorf("vault %s: %w", key, storage.ErrNotFound)
	}
	delete(s.vaults, key)
	return nil
}

// LeaderboardStore implementation ---------------------------------------------

func (s *Store) AddLeaderboardTVL(_ context.Context, owner string, delta int64) (leaderboard.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	entry, ok := s.leaderboard[owner]
	if !ok {
		entry = leaderboard.Entry{Owner: owner, Seq: s.nextSeq, CreatedAt: now}
		s.nextSeq++
	}

	if delta < 0 {
		dec := uint64(-delta)
		if dec > entry.TVL {
			return leaderboard.Entry{}, fmt.Errorf("leaderboard %s underflow: have %d, subtract %d", owner, entry.TVL, dec)
		}
		entry.TVL -= dec
	} else {
		entry.TVL += uint64(delta)
	}
	entry.UpdatedAt = now

	s.leaderboard[owner] = entry
	return entry, nil
}

func (s *Store) GetLeaderboardEntry(_ context.Context, owner string) (leaderboard.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.leaderboard[owner]
	if !ok {
		return leaderboard.Entry{}, fmt.Errorf("leaderboard %s: %w", owner, storage.ErrNotFound)
	}
	return entry, nil
}

func (s *Store) ListLeaderboard(_ context.Context) ([]leaderboard.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]leaderboard.Entry, 0, len(s.leaderboard))
	for _, entry := range s.leaderboard {
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) DeleteLeaderboardEntry(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leaderboard[owner]; !ok {
		return fmt.Errorf("leaderboard %s: %w", owner, storage.ErrNotFound)
	}
	delete(s.leaderboard, owner)
	return nil
}

// AchievementStore implementation ---------------------------------------------

func (s *Store) CreateAchievementState(_ context.Context, st achievement.State) (achievement.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.achievements[st.Owner]; exists {
		return achievement.State{}, fmt.Errorf("achievement state %s already exists", st.Owner)
	}

	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	s.achievements[st.Owner] = st
	return st, nil
}

func (s *Store) UpdateAchievementState(_ context.Context, st achievement.State) (achievement.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.achievements[st.Owner]
	if !ok {
		return achievement.State{}, fmt.Errorf("achievement state %s: %w", st.Owner, storage.ErrNotFound)
	}

	st.CreatedAt = original.CreatedAt
	st.UpdatedAt = time.Now().UTC()

	s.achievements[st.Owner] = st
	return st, nil
}

func (s *Store) GetAchievementState(_ context.Context, owner string) (achievement.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.achievements[owner]
	if !ok {
		return achievement.State{}, fmt.Errorf("achievement state %s: %w", owner, storage.ErrNotFound)
	}
	return st, nil
}

// BoostPassStore implementation -----------------------------------------------

func (s *Store) GrantBoostPass(_ context.Context, owner string, limit uint64) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == nil {
		return 0, false, fmt.Errorf("protocol config: %w", storage.ErrNotFound)
	}
	if s.boostPasses[owner] {
		return uint64(s.config.BoostPassSupply), false, nil
	}
	if uint64(s.config.BoostPassSupply) >= limit {
		return uint64(s.config.BoostPassSupply), false, protocol.ErrSupplyExhausted
	}
	s.config.BoostPassSupply++
	s.config.UpdatedAt = time.Now().UTC()
	s.boostPasses[owner] = true
	return uint64(s.config.BoostPassSupply), true, nil
}

func (s *Store) HasBoostPass(_ context.Context, owner string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.boostPasses[owner], nil
}
