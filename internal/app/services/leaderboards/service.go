// Package leaderboards exposes the ranked TVL view over the leaderboard
// store.
package leaderboards

import (
	"context"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/leaderboard"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

// Service reads leaderboard entries. All writes happen through the vault
// ledger; this service only orders and serves them.
type Service struct {
	store storage.LeaderboardStore
	log   *logger.Logger
}

// New constructs a leaderboard service.
func New(store storage.LeaderboardStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("leaderboards")
	}
	return &Service{store: store, log: log}
}

// RankedEntries returns all entries ordered by TVL descending, ties broken
// by insertion order, with ranks stamped from zero.
func (s *Service) RankedEntries(ctx context.Context) ([]leaderboard.Entry, error) {
	entries, err := s.store.ListLeaderboard(ctx)
	if err != nil {
		return nil, err
	}
	return leaderboard.Rank(entries), nil
}

// Entry returns one owner's entry with its current rank.
func (s *Service) Entry(ctx context.Context, owner string) (leaderboard.Entry, error) {
	entries, err := s.RankedEntries(ctx)
	if err != nil {
		return leaderboard.Entry{}, err
	}
	for _, entry := range entries {
		if entry.Owner == owner {
			return entry, nil
		}
	}
	return s.store.GetLeaderboardEntry(ctx, owner)
}
