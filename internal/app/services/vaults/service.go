// Package vaults implements the vault ledger: protocol administration,
// deposits, withdrawals, compounding and the midnight harvest credit path.
package vaults

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/vault"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

// FundsGateway moves value between the caller and the protocol. The default
// implementation is a no-op so the ledger can run standalone; a deployment
// wires a real custodian here.
type FundsGateway interface {
	CollectDeposit(ctx context.Context, owner, asset string, amount uint64) error
	PayWithdrawal(ctx context.Context, owner, asset string, amount uint64) error
	DonateCharity(ctx context.Context, asset string, amount uint64) error
}

type noopGateway struct{}

func (noopGateway) CollectDeposit(context.Context, string, string, uint64) error { return nil }
func (noopGateway) PayWithdrawal(context.Context, string, string, uint64) error  { return nil }
func (noopGateway) DonateCharity(context.Context, string, uint64) error          { return nil }

// DepositEvent describes a completed vault creation for achievement
// evaluation.
type DepositEvent struct {
	Owner          string
	Asset          string
	Amount         uint64
	NewBalance     uint64
	DepositorIndex uint32
	HasBoostPass   bool
	Time           time.Time
}

// CompoundEvent describes a completed manual compound.
type CompoundEvent struct {
	Owner        string
	Asset        string
	Reward       uint64
	TotalSouls   uint64
	Balance      uint64
	HasBoostPass bool
	VaultAge     time.Duration
	Time         time.Time
}

// HarvestEvent describes one vault's share of a midnight harvest.
type HarvestEvent struct {
	Owner       string
	Asset       string
	GrossReward uint64
	NetReward   uint64
	Charity     uint64
	TotalSouls  uint64
	Balance     uint64
	Time        time.Time
}

// AchievementSink receives ledger events. Sink failures are logged and never
// abort the ledger operation that produced them.
type AchievementSink interface {
	RecordDeposit(ctx context.Context, ev DepositEvent) error
	RecordCompound(ctx context.Context, ev CompoundEvent) error
	RecordHarvest(ctx context.Context, ev HarvestEvent) error
	RecordBoostPass(ctx context.Context, owner string) error
}

// HarvestOutcome reports the per-vault result of a harvest credit.
type HarvestOutcome struct {
	Owner       string `json:"owner"`
	Asset       string `json:"asset"`
	GrossReward uint64 `json:"gross_reward"`
	SoulTax     uint64 `json:"soul_tax"`
	Charity     uint64 `json:"charity"`
	NetReward   uint64 `json:"net_reward"`
	SoulsEarned uint64 `json:"souls_earned"`
}

// Service is the vault ledger. Every balance-changing operation runs under
// the owner's lock and commits the vault, the leaderboard entry and the
// aggregate TVL as one unit.
type Service struct {
	config storage.ConfigStore
	vaults storage.VaultStore
	board  storage.LeaderboardStore
	passes storage.BoostPassStore
	funds  FundsGateway
	sink   AchievementSink
	log    *logger.Logger

	locks sync.Map // owner -> *sync.Mutex
	now   func() time.Time
}

// New constructs the vault ledger service.
func New(config storage.ConfigStore, vaults storage.VaultStore, board storage.LeaderboardStore, passes storage.BoostPassStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("vaults")
	}
	return &Service{
		config: config,
		vaults: vaults,
		board:  board,
		passes: passes,
		funds:  noopGateway{},
		log:    log,
		now:    time.Now,
	}
}

// AttachFundsGateway replaces the no-op funds gateway. Call before serving.
func (s *Service) AttachFundsGateway(gw FundsGateway) {
	if gw != nil {
		s.funds = gw
	}
}

// AttachAchievementSink wires the achievement evaluator. Call before serving.
func (s *Service) AttachAchievementSink(sink AchievementSink) {
	s.sink = sink
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) lockOwner(owner string) func() {
	v, _ := s.locks.LoadOrStore(owner, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// transact runs fn atomically when the backing store supports transactions.
// The memory backend serializes every mutation under one process lock and
// its calls cannot fail mid-sequence, so the direct path is safe there.
func (s *Service) transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := s.config.(storage.Transactor); ok {
		return tx.Transact(ctx, fn)
	}
	return fn(ctx)
}

// Initialize creates the protocol configuration. It fails if the protocol
// has already been initialized.
func (s *Service) Initialize(ctx context.Context, cfg protocol.Config) (protocol.Config, error) {
	if strings.TrimSpace(cfg.Authority) == "" {
		return protocol.Config{}, fmt.Errorf("authority is required")
	}
	created, err := s.config.InitConfig(ctx, cfg)
	if err != nil {
		return protocol.Config{}, err
	}
	s.log.WithField("authority", created.Authority).
		WithField("base_apy_bps", created.BaseAPYBps).
		Info("protocol initialized")
	return created, nil
}

// Config returns the current protocol configuration.
func (s *Service) Config(ctx context.Context) (protocol.Config, error) {
	return s.config.GetConfig(ctx)
}

// SetPaused flips the kill switch. Authority only. Paused blocks deposits,
// compounding and harvesting; withdrawals and closes stay available so the
// switch never traps funds.
func (s *Service) SetPaused(ctx context.Context, authority string, paused bool) (protocol.Config, error) {
	cfg, err := s.config.GetConfig(ctx)
	if err != nil {
		return protocol.Config{}, err
	}
	if cfg.Authority != authority {
		return protocol.Config{}, protocol.ErrUnauthorized
	}
	cfg.Paused = paused
	updated, err := s.config.UpdateConfig(ctx, cfg)
	if err != nil {
		return protocol.Config{}, err
	}
	s.log.WithField("paused", paused).Info("protocol pause state changed")
	return updated, nil
}

// IssueBoostPass grants a boost pass to owner. Authority only; the supply
// cap is enforced atomically by the store.
func (s *Service) IssueBoostPass(ctx context.Context, authority, owner string) error {
	cfg, err := s.config.GetConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Authority != authority {
		return protocol.ErrUnauthorized
	}
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}

	supply, granted, err := s.passes.GrantBoostPass(ctx, owner, uint64(protocol.BoostPassSupplyCap))
	if err != nil {
		return err
	}
	if !granted {
		// Owner already holds a pass; reissuing consumes no supply.
		return nil
	}
	s.notifyBoostPass(ctx, owner)
	s.log.WithField("owner", owner).WithField("supply", supply).Info("boost pass issued")
	return nil
}

// HasBoostPass reports whether owner holds a boost pass.
func (s *Service) HasBoostPass(ctx context.Context, owner string) (bool, error) {
	return s.passes.HasBoostPass(ctx, owner)
}

// CreateVault opens a vault for (owner, asset) with an initial deposit.
func (s *Service) CreateVault(ctx context.Context, owner, asset string, amount uint64) (vault.Account, error) {
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(asset) == "" {
		return vault.Account{}, fmt.Errorf("owner and asset are required")
	}
	if amount == 0 {
		return vault.Account{}, protocol.ErrInvalidDepositAmount
	}

	cfg, err := s.config.GetConfig(ctx)
	if err != nil {
		return vault.Account{}, err
	}
	if cfg.Paused {
		return vault.Account{}, protocol.ErrPaused
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	// Reject duplicates before touching the caller's funds so a conflicting
	// create never collects a deposit it cannot record.
	if existing, err := s.vaults.GetVault(ctx, owner, asset); err == nil && existing.Active {
		return vault.Account{}, protocol.ErrVaultExists
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return vault.Account{}, err
	}

	if err := s.funds.CollectDeposit(ctx, owner, asset, amount); err != nil {
		return vault.Account{}, fmt.Errorf("collect deposit: %w", err)
	}

	now := s.now().UTC()
	acct := vault.Account{
		Owner:            owner,
		Asset:            asset,
		Balance:          amount,
		LastCompoundTime: now.Unix(),
		Active:           true,
	}
	var created vault.Account
	err = s.transact(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.vaults.CreateVault(ctx, acct)
		if err != nil {
			return err
		}
		if _, err := s.config.AddTVL(ctx, int64(amount)); err != nil {
			return fmt.Errorf("credit tvl: %w", err)
		}
		if _, err := s.board.AddLeaderboardTVL(ctx, owner, int64(amount)); err != nil {
			return fmt.Errorf("credit leaderboard: %w", err)
		}
		return nil
	})
	if err != nil {
		// The ledger recorded nothing, so the collected deposit goes back.
		if refundErr := s.funds.PayWithdrawal(ctx, owner, asset, amount); refundErr != nil {
			s.log.WithError(refundErr).
				WithField("owner", owner).
				WithField("amount", amount).
				Error("deposit refund failed")
		}
		return vault.Account{}, err
	}

	index, err := s.config.IncrementDepositorCount(ctx)
	if err != nil {
		s.log.WithError(err).Warn("depositor count unavailable")
	}
	hasPass, _ := s.passes.HasBoostPass(ctx, owner)

	s.notifyDeposit(ctx, DepositEvent{
		Owner:          owner,
		Asset:          asset,
		Amount:         amount,
		NewBalance:     created.Balance,
		DepositorIndex: index,
		HasBoostPass:   hasPass,
		Time:           now,
	})

	s.log.WithField("owner", owner).
		WithField("asset", asset).
		WithField("amount", amount).
		Info("vault created")
	return created, nil
}

// Vault returns a single vault account.
func (s *Service) Vault(ctx context.Context, owner, asset string) (vault.Account, error) {
	return s.vaults.GetVault(ctx, owner, asset)
}

// ListVaults returns all vaults belonging to owner.
func (s *Service) ListVaults(ctx context.Context, owner string) ([]vault.Account, error) {
	return s.vaults.ListVaults(ctx, owner)
}

// Withdraw removes amount from the vault. Withdrawals never compound first
// and remain available while the protocol is paused or the vault inactive.
func (s *Service) Withdraw(ctx context.Context, owner, asset string, amount uint64) (vault.Account, error) {
	if amount == 0 {
		return vault.Account{}, protocol.ErrInvalidDepositAmount
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	acct, err := s.vaults.GetVault(ctx, owner, asset)
	if err != nil {
		return vault.Account{}, err
	}
	if acct.Balance < amount {
		return vault.Account{}, protocol.ErrInsufficientBalance
	}

	wasActive := acct.Active
	acct.Balance -= amount
	if acct.Balance == 0 {
		// A drained vault stops accruing until closed or recreated.
		acct.Active = false
	}
	var updated vault.Account
	err = s.transact(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.vaults.UpdateVault(ctx, acct)
		if err != nil {
			return err
		}
		if _, err := s.config.AddTVL(ctx, -int64(amount)); err != nil {
			return fmt.Errorf("debit tvl: %w", err)
		}
		if _, err := s.board.AddLeaderboardTVL(ctx, owner, -int64(amount)); err != nil {
			return fmt.Errorf("debit leaderboard: %w", err)
		}
		return nil
	})
	if err != nil {
		return vault.Account{}, err
	}

	if err := s.funds.PayWithdrawal(ctx, owner, asset, amount); err != nil {
		// Put the debited amount back so a failed payout never strands the
		// balance outside the vault.
		restore := updated
		restore.Balance += amount
		restore.Active = wasActive
		if restoreErr := s.transact(ctx, func(ctx context.Context) error {
			if _, err := s.vaults.UpdateVault(ctx, restore); err != nil {
				return err
			}
			if _, err := s.config.AddTVL(ctx, int64(amount)); err != nil {
				return err
			}
			_, err := s.board.AddLeaderboardTVL(ctx, owner, int64(amount))
			return err
		}); restoreErr != nil {
			s.log.WithError(restoreErr).
				WithField("owner", owner).
				WithField("amount", amount).
				Error("withdrawal re-credit failed")
		}
		return vault.Account{}, fmt.Errorf("pay withdrawal: %w", err)
	}

	s.log.WithField("owner", owner).
		WithField("asset", asset).
		WithField("amount", amount).
		WithField("balance", updated.Balance).
		Info("withdrawal complete")
	return updated, nil
}

// Compound accrues rewards since the last compound and folds them into the
// balance. The vault must be active and the protocol unpaused.
func (s *Service) Compound(ctx context.Context, owner, asset string) (vault.Account, error) {
	cfg, err := s.config.GetConfig(ctx)
	if err != nil {
		return vault.Account{}, err
	}
	if cfg.Paused {
		return vault.Account{}, protocol.ErrPaused
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	acct, err := s.vaults.GetVault(ctx, owner, asset)
	if err != nil {
		return vault.Account{}, err
	}
	if !acct.Active {
		return vault.Account{}, protocol.ErrVaultInactive
	}

	hasPass, err := s.passes.HasBoostPass(ctx, owner)
	if err != nil {
		return vault.Account{}, err
	}

	now := s.now().UTC()
	result, err := vault.ComputeCompound(vault.CompoundInput{
		Balance:      acct.Balance,
		APYBps:       cfg.CurrentAPYBps(),
		BoostBps:     cfg.BoostMultiplierBps,
		HasBoost:     hasPass,
		SoulsPerUnit: cfg.SoulsPerUnit,
		Elapsed:      now.Unix() - acct.LastCompoundTime,
	})
	if err != nil {
		return vault.Account{}, err
	}

	vaultAge := now.Sub(acct.CreatedAt)
	acct.Balance += result.Reward
	acct.TotalSoulsHarvested += result.SoulsEarned
	acct.LastCompoundTime = now.Unix()
	var updated vault.Account
	err = s.transact(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.vaults.UpdateVault(ctx, acct)
		if err != nil {
			return err
		}
		if result.Reward == 0 {
			return nil
		}
		if _, err := s.config.AddTVL(ctx, int64(result.Reward)); err != nil {
			return fmt.Errorf("credit tvl: %w", err)
		}
		if _, err := s.board.AddLeaderboardTVL(ctx, owner, int64(result.Reward)); err != nil {
			return fmt.Errorf("credit leaderboard: %w", err)
		}
		return nil
	})
	if err != nil {
		return vault.Account{}, err
	}

	s.notifyCompound(ctx, CompoundEvent{
		Owner:        owner,
		Asset:        asset,
		Reward:       result.Reward,
		TotalSouls:   updated.TotalSoulsHarvested,
		Balance:      updated.Balance,
		HasBoostPass: hasPass,
		VaultAge:     vaultAge,
		Time:         now,
	})

	s.log.WithField("owner", owner).
		WithField("asset", asset).
		WithField("reward", result.Reward).
		WithField("souls", result.SoulsEarned).
		Info("vault compounded")
	return updated, nil
}

// Close removes a vault. The balance must be zero; the owner's leaderboard
// entry is removed once it no longer carries TVL.
func (s *Service) Close(ctx context.Context, owner, asset string) error {
	unlock := s.lockOwner(owner)
	defer unlock()

	acct, err := s.vaults.GetVault(ctx, owner, asset)
	if err != nil {
		return err
	}
	if acct.Balance != 0 {
		return protocol.ErrNonZeroBalance
	}

	if err := s.vaults.DeleteVault(ctx, owner, asset); err != nil {
		return err
	}

	if entry, err := s.board.GetLeaderboardEntry(ctx, owner); err == nil && entry.TVL == 0 {
		if err := s.board.DeleteLeaderboardEntry(ctx, owner); err != nil {
			s.log.WithError(err).WithField("owner", owner).Warn("leaderboard cleanup failed")
		}
	}

	s.log.WithField("owner", owner).WithField("asset", asset).Info("vault closed")
	return nil
}

// HarvestVault applies the midnight harvest to one vault: rewards accrue at
// the current rate, the 13% soul tax and 1% charity cut come off the gross,
// souls are earned on the gross, and the net folds into the balance and the
// TVL aggregates.
func (s *Service) HarvestVault(ctx context.Context, owner, asset string, at time.Time) (HarvestOutcome, error) {
	cfg, err := s.config.GetConfig(ctx)
	if err != nil {
		return HarvestOutcome{}, err
	}
	if cfg.Paused {
		return HarvestOutcome{}, protocol.ErrPaused
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	acct, err := s.vaults.GetVault(ctx, owner, asset)
	if err != nil {
		return HarvestOutcome{}, err
	}
	if !acct.Active {
		return HarvestOutcome{}, protocol.ErrVaultInactive
	}

	hasPass, err := s.passes.HasBoostPass(ctx, owner)
	if err != nil {
		return HarvestOutcome{}, err
	}

	at = at.UTC()
	result, err := vault.ComputeCompound(vault.CompoundInput{
		Balance:      acct.Balance,
		APYBps:       cfg.CurrentAPYBps(),
		BoostBps:     cfg.BoostMultiplierBps,
		HasBoost:     hasPass,
		SoulsPerUnit: cfg.SoulsPerUnit,
		Elapsed:      at.Unix() - acct.LastCompoundTime,
	})
	if err != nil {
		return HarvestOutcome{}, err
	}

	soulTax, charity, net := vault.SplitHarvest(result.Reward)

	acct.Balance += net
	acct.TotalSoulsHarvested += result.SoulsEarned
	acct.LastCompoundTime = at.Unix()
	var updated vault.Account
	err = s.transact(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.vaults.UpdateVault(ctx, acct)
		if err != nil {
			return err
		}
		if net == 0 {
			return nil
		}
		if _, err := s.config.AddTVL(ctx, int64(net)); err != nil {
			return fmt.Errorf("credit tvl: %w", err)
		}
		if _, err := s.board.AddLeaderboardTVL(ctx, owner, int64(net)); err != nil {
			return fmt.Errorf("credit leaderboard: %w", err)
		}
		return nil
	})
	if err != nil {
		return HarvestOutcome{}, err
	}
	if charity > 0 {
		if err := s.funds.DonateCharity(ctx, asset, charity); err != nil {
			s.log.WithError(err).WithField("asset", asset).Warn("charity transfer failed")
		}
	}

	s.notifyHarvest(ctx, HarvestEvent{
		Owner:       owner,
		Asset:       asset,
		GrossReward: result.Reward,
		NetReward:   net,
		Charity:     charity,
		TotalSouls:  updated.TotalSoulsHarvested,
		Balance:     updated.Balance,
		Time:        at,
	})

	return HarvestOutcome{
		Owner:       owner,
		Asset:       asset,
		GrossReward: result.Reward,
		SoulTax:     soulTax,
		Charity:     charity,
		NetReward:   net,
		SoulsEarned: result.SoulsEarned,
	}, nil
}

// ActiveVaults lists the vaults eligible for harvesting.
func (s *Service) ActiveVaults(ctx context.Context) ([]vault.Account, error) {
	return s.vaults.ListActiveVaults(ctx)
}

func (s *Service) notifyDeposit(ctx context.Context, ev DepositEvent) {
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordDeposit(ctx, ev); err != nil {
		s.log.WithError(err).WithField("owner", ev.Owner).Warn("achievement deposit record failed")
	}
}

func (s *Service) notifyCompound(ctx context.Context, ev CompoundEvent) {
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordCompound(ctx, ev); err != nil {
		s.log.WithError(err).WithField("owner", ev.Owner).Warn("achievement compound record failed")
	}
}

func (s *Service) notifyHarvest(ctx context.Context, ev HarvestEvent) {
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordHarvest(ctx, ev); err != nil {
		s.log.WithError(err).WithField("owner", ev.Owner).Warn("achievement harvest record failed")
	}
}

func (s *Service) notifyBoostPass(ctx context.Context, owner string) {
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordBoostPass(ctx, owner); err != nil {
		s.log.WithError(err).WithField("owner", owner).Warn("achievement pass record failed")
	}
}
