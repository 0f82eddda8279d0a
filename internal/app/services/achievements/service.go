// Package achievements evaluates ledger events against the achievement
// catalogue and keeps per-owner state.
package achievements

import (
	"context"
	"errors"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/achievement"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/services/vaults"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

const (
	secondsPerDay      = 86_400
	diamondHandsDays   = 30
	ogSoulCutoff       = 100
	charityChampionMin = 10_000
)

// Service evaluates achievements. It implements the vault ledger's
// AchievementSink.
type Service struct {
	store storage.AchievementStore
	log   *logger.Logger
}

var _ vaults.AchievementSink = (*Service)(nil)

// New constructs an achievement service.
func New(store storage.AchievementStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("achievements")
	}
	return &Service{store: store, log: log}
}

// State returns the owner's achievement state, creating an empty one on
// first access.
func (s *Service) State(ctx context.Context, owner string) (achievement.State, error) {
	return s.ensure(ctx, owner)
}

func (s *Service) ensure(ctx context.Context, owner string) (achievement.State, error) {
	st, err := s.store.GetAchievementState(ctx, owner)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return achievement.State{}, err
	}
	return s.store.CreateAchievementState(ctx, achievement.State{Owner: owner})
}

// RecordDeposit evaluates deposit-driven achievements.
func (s *Service) RecordDeposit(ctx context.Context, ev vaults.DepositEvent) error {
	st, err := s.ensure(ctx, ev.Owner)
	if err != nil {
		return err
	}

	if st.FirstDepositTime == 0 {
		st.FirstDepositTime = ev.Time.Unix()
	}
	if st.DepositorIndex == 0 && ev.DepositorIndex > 0 {
		st.DepositorIndex = ev.DepositorIndex
	}

	var earned uint32
	earned += unlockBalanceTiers(&st, ev.NewBalance)
	if st.DepositorIndex > 0 && st.DepositorIndex <= ogSoulCutoff {
		earned += st.Unlock(achievement.OgSoul)
	}
	if ev.HasBoostPass {
		earned += st.Unlock(achievement.ReapersChosen)
	}

	if _, err := s.store.UpdateAchievementState(ctx, st); err != nil {
		return err
	}
	s.logEarned(ev.Owner, earned, st)
	return nil
}

// RecordCompound evaluates compound-driven achievements, including the
// time-of-day flags and consecutive-day streaks.
func (s *Service) RecordCompound(ctx context.Context, ev vaults.CompoundEvent) error {
	st, err := s.ensure(ctx, ev.Owner)
	if err != nil {
		return err
	}

	st.TotalCompounds++
	if ev.Reward > st.HighestCompound {
		st.HighestCompound = ev.Reward
	}

	day := ev.Time.Unix() / secondsPerDay
	switch {
	case st.LastCompoundDay == day:
		// Same-day compounds do not extend the streak.
	case st.LastCompoundDay == day-1:
		st.StreakDays++
	default:
		st.StreakDays = 1
	}
	st.LastCompoundDay = day

	var earned uint32
	if st.TotalCompounds >= 10 {
		earned += st.Unlock(achievement.CompoundKing)
	}
	if st.TotalCompounds >= 100 {
		earned += st.Unlock(achievement.YieldFarmer)
	}
	if st.TotalCompounds >= 1_000 {
		earned += st.Unlock(achievement.DefiDegen)
	}

	switch ev.Time.UTC().Hour() {
	case 0:
		earned += st.Unlock(achievement.NightOwl)
	case 5:
		earned += st.Unlock(achievement.EarlyBird)
	}

	if st.StreakDays >= 7 {
		earned += st.Unlock(achievement.HotStreak)
	}
	if st.StreakDays >= 30 {
		earned += st.Unlock(achievement.OnFire)
	}
	if st.StreakDays >= 100 {
		earned += st.Unlock(achievement.Unstoppable)
	}

	earned += unlockBalanceTiers(&st, ev.Balance)
	earned += unlockSoulTiers(&st, ev.TotalSouls)

	if st.FirstDepositTime > 0 && ev.Balance > 0 {
		held := ev.Time.Unix() - st.FirstDepositTime
		if held >= diamondHandsDays*secondsPerDay {
			earned += st.Unlock(achievement.DiamondHands)
		}
	}
	if ev.HasBoostPass {
		earned += st.Unlock(achievement.ReapersChosen)
	}

	if _, err := s.store.UpdateAchievementState(ctx, st); err != nil {
		return err
	}
	s.logEarned(ev.Owner, earned, st)
	return nil
}

// RecordHarvest evaluates midnight-harvest achievements.
func (s *Service) RecordHarvest(ctx context.Context, ev vaults.HarvestEvent) error {
	st, err := s.ensure(ctx, ev.Owner)
	if err != nil {
		return err
	}

	st.MidnightHarvestCount++
	st.CharityDonated += ev.Charity

	var earned uint32
	if st.MidnightHarvestCount >= 1 {
		earned += st.Unlock(achievement.WitchingHour)
	}
	if st.MidnightHarvestCount >= 7 {
		earned += st.Unlock(achievement.Haunted)
	}
	if st.MidnightHarvestCount >= 30 {
		earned += st.Unlock(achievement.Possessed)
	}
	if st.MidnightHarvestCount >= 365 {
		earned += st.Unlock(achievement.Eternal)
	}
	if st.CharityDonated >= charityChampionMin {
		earned += st.Unlock(achievement.CharityChampion)
	}

	earned += unlockBalanceTiers(&st, ev.Balance)
	earned += unlockSoulTiers(&st, ev.TotalSouls)

	if _, err := s.store.UpdateAchievementState(ctx, st); err != nil {
		return err
	}
	s.logEarned(ev.Owner, earned, st)
	return nil
}

// RecordBoostPass unlocks the pass-holder achievement.
func (s *Service) RecordBoostPass(ctx context.Context, owner string) error {
	st, err := s.ensure(ctx, owner)
	if err != nil {
		return err
	}

	earned := st.Unlock(achievement.ReapersChosen)
	if _, err := s.store.UpdateAchievementState(ctx, st); err != nil {
		return err
	}
	s.logEarned(owner, earned, st)
	return nil
}

func unlockBalanceTiers(st *achievement.State, balance uint64) uint32 {
	var earned uint32
	if balance > 0 {
		earned += st.Unlock(achievement.FirstBlood)
	}
	if balance >= 1_000 {
		earned += st.Unlock(achievement.SoulStarter)
	}
	if balance >= 10_000 {
		earned += st.Unlock(achievement.GraveDigger)
	}
	if balance >= 100_000 {
		earned += st.Unlock(achievement.CryptKeeper)
	}
	if balance >= 1_000_000 {
		earned += st.Unlock(achievement.Necromancer)
		earned += st.Unlock(achievement.Whale)
	}
	return earned
}

func unlockSoulTiers(st *achievement.State, souls uint64) uint32 {
	var earned uint32
	if souls >= 100 {
		earned += st.Unlock(achievement.SoulCollector)
	}
	if souls >= 1_000 {
		earned += st.Unlock(achievement.SoulReaper)
	}
	if souls >= 10_000 {
		earned += st.Unlock(achievement.SoulMaster)
	}
	if souls >= 100_000 {
		earned += st.Unlock(achievement.DeathLord)
	}
	if souls >= 1_000_000 {
		earned += st.Unlock(achievement.GrimReaper)
	}
	return earned
}

func (s *Service) logEarned(owner string, earned uint32, st achievement.State) {
	if earned == 0 {
		return
	}
	s.log.WithField("owner", owner).
		WithField("points_earned", earned).
		WithField("total_points", st.Points).
		WithField("rank", st.CurrentRank().Name()).
		Info("achievements unlocked")
}
